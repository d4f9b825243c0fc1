package storage

import (
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

var (
	ErrInvalidConfig = errors.New("storage: invalid configuration")
	ErrNotFound      = errors.New("storage: blob not found")
	ErrAccessDenied  = errors.New("storage: access denied")
	ErrUnavailable   = errors.New("storage: backend unavailable")
	ErrWriteFailed   = errors.New("storage: write failed")
)

// s3Codes sorts S3 error codes into the sentinels file serving acts on:
// a missing blob is a 404, a credential problem a 403 and a throttled or
// failing backend a 503.
var s3Codes = map[string]error{
	"NoSuchKey":             ErrNotFound,
	"NotFound":              ErrNotFound,
	"NoSuchBucket":          ErrNotFound,
	"AccessDenied":          ErrAccessDenied,
	"Forbidden":             ErrAccessDenied,
	"InvalidAccessKeyId":    ErrAccessDenied,
	"SignatureDoesNotMatch": ErrAccessDenied,
	"SlowDown":              ErrUnavailable,
	"ServiceUnavailable":    ErrUnavailable,
	"RequestTimeout":        ErrUnavailable,
	"InternalError":         ErrUnavailable,
}

// classify wraps an S3 failure of op on key in the matching sentinel, or in
// fallback for unknown codes and transport errors. The SDK error is kept
// as text only.
func classify(op, key string, err, fallback error) error {
	sentinel := fallback

	var (
		noKey  *types.NoSuchKey
		apiErr smithy.APIError
	)
	switch {
	case errors.As(err, &noKey):
		sentinel = ErrNotFound
	case errors.As(err, &apiErr):
		if s, ok := s3Codes[apiErr.ErrorCode()]; ok {
			sentinel = s
		}
	}
	return fmt.Errorf("%w: %s %q: %v", sentinel, op, key, err)
}
