package health

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
)

// ErrCheckTimeout is reported for a check that did not finish before the
// readiness timeout.
var ErrCheckTimeout = errors.New("health: check timeout")

// CheckFunc reports whether a backend is usable. db.Healthcheck,
// redis.Healthcheck and storage.S3.Ping have this shape.
type CheckFunc func(ctx context.Context) error

// Checks maps a backend name to its check.
type Checks map[string]CheckFunc

// Response is the JSON body of the health endpoints.
type Response struct {
	Status string           `json:"status"`
	Checks map[string]Check `json:"checks,omitempty"`
}

// Check is the outcome of one backend check.
type Check struct {
	Status  string `json:"status"`
	Latency string `json:"latency"`
	Error   string `json:"error,omitempty"`
}

// failing returns the names of unhealthy checks in name order.
func (r *Response) failing() []string {
	var names []string
	for _, name := range slices.Sorted(maps.Keys(r.Checks)) {
		if r.Checks[name].Status != StatusHealthy {
			names = append(names, name)
		}
	}
	return names
}

type options struct {
	timeout time.Duration
	logger  *slog.Logger
}

func defaultOptions() *options {
	return &options{
		timeout: 5 * time.Second,
		logger:  slog.New(slog.DiscardHandler),
	}
}

// Option configures the readiness handler.
type Option func(*options)

// WithTimeout bounds the whole readiness run. Checks still running when it
// expires fail with ErrCheckTimeout.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithLogger sets the logger failed checks are reported to.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// run executes every check concurrently under one deadline.
func run(ctx context.Context, checks Checks, o *options) *Response {
	resp := &Response{Status: StatusHealthy}
	if len(checks) == 0 {
		return resp
	}

	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	names := slices.Collect(maps.Keys(checks))
	results := make([]Check, len(names))

	var g errgroup.Group
	for i, name := range names {
		g.Go(func() error {
			results[i] = runCheck(ctx, name, checks[name], o.logger)
			return nil
		})
	}
	_ = g.Wait()

	resp.Checks = make(map[string]Check, len(names))
	for i, name := range names {
		resp.Checks[name] = results[i]
		if results[i].Status != StatusHealthy {
			resp.Status = StatusUnhealthy
		}
	}
	return resp
}

func runCheck(ctx context.Context, name string, check CheckFunc, log *slog.Logger) Check {
	start := time.Now()
	err := check(ctx)
	res := Check{
		Status:  StatusHealthy,
		Latency: time.Since(start).Round(time.Microsecond).String(),
	}
	if err == nil {
		return res
	}

	if errors.Is(err, context.DeadlineExceeded) {
		err = ErrCheckTimeout
	}
	res.Status = StatusUnhealthy
	res.Error = err.Error()
	log.WarnContext(ctx, "health check failed",
		slog.String("check", name),
		slog.String("latency", res.Latency),
		slog.Any("error", err),
	)
	return res
}
