package pinning

import (
	"io"
	"log/slog"
)

const (
	// DefaultCapacity is the number of pin slots of a pool created without WithCapacity.
	DefaultCapacity = 32768

	// DefaultSchedule is the cron spec on which a started Coordinator polls
	// the generation signal.
	DefaultSchedule = "@every 15s"

	defaultConcurrency = 4
)

// PoolOption configures a Pool.
type PoolOption func(*poolOptions)

type poolOptions struct {
	logger    *slog.Logger
	capacity  int
	maxMemory int64
}

func defaultPoolOptions() *poolOptions {
	return &poolOptions{
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		capacity: DefaultCapacity,
	}
}

// WithCapacity sets the number of pin slots.
// Zero creates a disabled pool on which Pin returns ErrNotConfigured.
// Default: 32768.
func WithCapacity(n int) PoolOption {
	return func(o *poolOptions) {
		if n >= 0 {
			o.capacity = n
		}
	}
}

// WithMaxMemory sets the memory budget enforced by AccountMemory, in bytes.
// Zero disables enforcement.
// Default: 0.
func WithMaxMemory(bytes int64) PoolOption {
	return func(o *poolOptions) {
		if bytes >= 0 {
			o.maxMemory = bytes
		}
	}
}

// WithPoolLogger sets the pool logger.
func WithPoolLogger(l *slog.Logger) PoolOption {
	return func(o *poolOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*coordinatorOptions)

type coordinatorOptions struct {
	generation  func() uint64
	logger      *slog.Logger
	schedule    string
	concurrency int
}

func defaultCoordinatorOptions() *coordinatorOptions {
	return &coordinatorOptions{
		generation:  GCCycles,
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		schedule:    DefaultSchedule,
		concurrency: defaultConcurrency,
	}
}

// WithGeneration sets the collection-generation signal polled by Check.
// A sweep is triggered whenever the returned value changes.
// Default: GCCycles.
func WithGeneration(fn func() uint64) CoordinatorOption {
	return func(o *coordinatorOptions) {
		if fn != nil {
			o.generation = fn
		}
	}
}

// WithSchedule sets the cron spec on which Start polls the generation signal.
// Accepts standard 5-field expressions and descriptors such as "@every 30s".
// Default: "@every 15s".
func WithSchedule(spec string) CoordinatorOption {
	return func(o *coordinatorOptions) {
		if spec != "" {
			o.schedule = spec
		}
	}
}

// WithConcurrency bounds how many caches a sweep prunes in parallel.
// Default: 4.
func WithConcurrency(n int) CoordinatorOption {
	return func(o *coordinatorOptions) {
		if n > 0 {
			o.concurrency = n
		}
	}
}

// WithCoordinatorLogger sets the coordinator logger.
func WithCoordinatorLogger(l *slog.Logger) CoordinatorOption {
	return func(o *coordinatorOptions) {
		if l != nil {
			o.logger = l
		}
	}
}
