package vfs

import (
	"io"
	"log/slog"
	"time"
)

// Option configures a Directory.
type Option func(*options)

type options struct {
	logger      *slog.Logger
	loadTimeout time.Duration
}

func defaultOptions() *options {
	return &options{
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		loadTimeout: 30 * time.Second,
	}
}

// WithLogger sets the directory logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithLoadTimeout bounds how long a file content load may run before it is
// cancelled and logged. Zero disables the limit.
// Default: 30s.
func WithLoadTimeout(d time.Duration) Option {
	return func(o *options) {
		if d >= 0 {
			o.loadTimeout = d
		}
	}
}
