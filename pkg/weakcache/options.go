package weakcache

import (
	"io"
	"log/slog"
)

// Option configures a Cache.
type Option func(*options)

type options struct {
	name   string
	logger *slog.Logger
	weigh  any
}

func defaultOptions() *options {
	return &options{
		name:   "weakcache",
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// WithName sets the cache name used in logs and sweep reports.
func WithName(name string) Option {
	return func(o *options) {
		if name != "" {
			o.name = name
		}
	}
}

// WithLogger sets the cache logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithWeigher reports the approximate size of each constructed or Set value
// to the pool's memory accounting. The charge is credited back once the
// value is garbage collected.
func WithWeigher[V any](fn func(*V) int64) Option {
	return func(o *options) {
		if fn != nil {
			o.weigh = fn
		}
	}
}
