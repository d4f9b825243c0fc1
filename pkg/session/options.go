package session

import (
	"io"
	"log/slog"
	"net/http"
	"time"
)

const (
	DefaultCookieName = "__session"
	DefaultMaxAge     = 30 * 24 * time.Hour
)

// Option configures a Cache.
type Option func(*options)

type options struct {
	logger     *slog.Logger
	cookieName string
	path       string
	domain     string
	maxAge     time.Duration
	secure     bool
	sameSite   http.SameSite
}

func defaultOptions() *options {
	return &options{
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		cookieName: DefaultCookieName,
		path:       "/",
		maxAge:     DefaultMaxAge,
		secure:     true,
		sameSite:   http.SameSiteLaxMode,
	}
}

// WithCookieName sets the session cookie name.
// Default: "__session".
func WithCookieName(name string) Option {
	return func(o *options) {
		if name != "" {
			o.cookieName = name
		}
	}
}

// WithMaxAge sets the session lifetime and cookie max age.
// Default: 30 days.
func WithMaxAge(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.maxAge = d
		}
	}
}

// WithDomain sets the cookie domain.
func WithDomain(domain string) Option {
	return func(o *options) {
		o.domain = domain
	}
}

// WithSecure sets the Secure cookie flag.
// Default: true.
func WithSecure(secure bool) Option {
	return func(o *options) {
		o.secure = secure
	}
}

// WithSameSite sets the SameSite cookie attribute.
// Default: http.SameSiteLaxMode.
func WithSameSite(mode http.SameSite) Option {
	return func(o *options) {
		o.sameSite = mode
	}
}

// WithLogger sets the logger for session events.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}
