package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/dmitrymomot/homecloud/pkg/locks"
	"github.com/dmitrymomot/homecloud/pkg/session"
	"github.com/dmitrymomot/homecloud/pkg/storage"
	"github.com/dmitrymomot/homecloud/pkg/vfs"
)

// httpError carries the status and user-facing message of a failed request.
// Err is logged and never written to the client.
type httpError struct {
	Err     error
	Message string
	Code    int
}

func (e *httpError) Error() string { return e.Message }

func (e *httpError) Unwrap() error { return e.Err }

func errUnauthorized(err error) *httpError {
	return &httpError{Err: err, Code: http.StatusUnauthorized, Message: "sign in required"}
}

// toHTTPError maps domain errors to responses. Unknown errors become 500.
func toHTTPError(err error) *httpError {
	var he *httpError
	if errors.As(err, &he) {
		return he
	}

	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, vfs.ErrNotFound), errors.Is(err, storage.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, vfs.ErrPermissionDenied), errors.Is(err, storage.ErrAccessDenied):
		code = http.StatusForbidden
	case errors.Is(err, vfs.ErrInvalidPath), errors.Is(err, vfs.ErrIsDirectory):
		code = http.StatusBadRequest
	case errors.Is(err, session.ErrInvalidToken), errors.Is(err, session.ErrExpired):
		code = http.StatusUnauthorized
	case errors.Is(err, locks.ErrLockTimeout), errors.Is(err, locks.ErrHeldTooLong),
		errors.Is(err, context.DeadlineExceeded), errors.Is(err, vfs.ErrClosed),
		errors.Is(err, storage.ErrUnavailable):
		code = http.StatusServiceUnavailable
	}
	return &httpError{Err: err, Code: code, Message: http.StatusText(code)}
}
