package pinning

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/metrics"
	"sync"
	"sync/atomic"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"
)

const gcCyclesMetric = "/gc/cycles/total:gc-cycles"

const (
	sweepIdle int32 = iota
	sweepRunning
	sweepPending
)

// GCCycles returns the number of completed garbage collection cycles.
// It is the default generation signal of a Coordinator.
func GCCycles() uint64 {
	s := []metrics.Sample{{Name: gcCyclesMetric}}
	metrics.Read(s)
	if s[0].Value.Kind() != metrics.KindUint64 {
		return 0
	}
	return s[0].Value.Uint64()
}

// Coordinator sweeps registered caches after garbage collection.
// Check compares the generation signal with the last observed value and
// triggers a sweep when it moved. At most one sweep runs at a time; signals
// arriving during a sweep collapse into a single follow-up sweep.
type Coordinator struct {
	registry    registry
	generation  func() uint64
	lastGen     atomic.Uint64
	state       atomic.Int32
	sweeps      atomic.Int64
	pruned      atomic.Int64
	running     sync.WaitGroup
	concurrency int
	schedule    string
	logger      *slog.Logger

	mu   sync.Mutex
	cron *cron.Cron
}

// NewCoordinator creates a coordinator. Sweeps only run on Check or Trigger
// until Start schedules periodic checks.
func NewCoordinator(opts ...CoordinatorOption) *Coordinator {
	o := defaultCoordinatorOptions()
	for _, opt := range opts {
		opt(o)
	}

	c := &Coordinator{
		generation:  o.generation,
		concurrency: o.concurrency,
		schedule:    o.schedule,
		logger:      o.logger,
	}
	c.lastGen.Store(c.generation())
	return c
}

// Check triggers a sweep if the generation signal changed since the last check.
// It reports whether a sweep was started or queued.
func (c *Coordinator) Check() bool {
	gen := c.generation()
	last := c.lastGen.Load()
	if gen == last || !c.lastGen.CompareAndSwap(last, gen) {
		return false
	}
	return c.Trigger()
}

// Trigger starts a sweep, or queues one follow-up if a sweep is in flight.
// It returns false when a follow-up is already queued.
func (c *Coordinator) Trigger() bool {
	for {
		switch c.state.Load() {
		case sweepIdle:
			if c.state.CompareAndSwap(sweepIdle, sweepRunning) {
				c.running.Add(1)
				go c.loop()
				return true
			}
		case sweepRunning:
			if c.state.CompareAndSwap(sweepRunning, sweepPending) {
				return true
			}
		default:
			return false
		}
	}
}

func (c *Coordinator) loop() {
	defer c.running.Done()
	for {
		c.sweep()
		if c.state.CompareAndSwap(sweepRunning, sweepIdle) {
			return
		}
		c.state.Store(sweepRunning)
	}
}

func (c *Coordinator) sweep() {
	var (
		live    []func() Prunable
		dropped int64
		removed atomic.Int64
		g       errgroup.Group
	)
	g.SetLimit(c.concurrency)

	for n := c.registry.take(); n != nil; n = n.next {
		target := n.resolve()
		if target == nil {
			dropped++
			continue
		}
		live = append(live, n.resolve)
		g.Go(func() error {
			count, err := prune(target)
			if err != nil {
				c.logger.Error("cache sweep failed",
					slog.String("cache", target.Name()),
					slog.Any("error", err),
				)
				return nil
			}
			removed.Add(int64(count))
			return nil
		})
	}
	_ = g.Wait()

	for _, resolve := range live {
		c.registry.push(resolve)
	}
	c.registry.size.Add(-dropped)
	c.sweeps.Add(1)
	c.pruned.Add(removed.Load())

	c.logger.Debug("cache sweep completed",
		slog.Int("caches", len(live)),
		slog.Int64("dropped", dropped),
		slog.Int64("removed", removed.Load()),
	)
}

func prune(target Prunable) (n int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pinning: sweep panicked: %v", r)
		}
	}()
	return target.RemoveCollected(), nil
}

// Wait blocks until no sweep is running.
func (c *Coordinator) Wait() {
	c.running.Wait()
}

// Sweeps returns the number of completed sweeps.
func (c *Coordinator) Sweeps() int64 {
	return c.sweeps.Load()
}

// Pruned returns the total number of entries removed by sweeps.
func (c *Coordinator) Pruned() int64 {
	return c.pruned.Load()
}

// Registered returns the number of caches in the sweep set. Collected caches
// are counted until the sweep that drops them.
func (c *Coordinator) Registered() int {
	return int(c.registry.size.Load())
}

// Start schedules Check on the configured cron spec.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cron != nil {
		return ErrAlreadyStarted
	}

	cr := cron.New(cron.WithLogger(cronLogger{c.logger}))
	if _, err := cr.AddFunc(c.schedule, func() { c.Check() }); err != nil {
		return fmt.Errorf("pinning: invalid schedule %q: %w", c.schedule, err)
	}
	cr.Start()
	c.cron = cr

	c.logger.InfoContext(ctx, "cache sweep coordinator started",
		slog.String("schedule", c.schedule),
		slog.Int("caches", c.Registered()),
	)
	return nil
}

// Stop cancels periodic checks and waits for a running sweep to finish
// or for ctx to be done.
func (c *Coordinator) Stop(ctx context.Context) error {
	c.mu.Lock()
	cr := c.cron
	c.cron = nil
	c.mu.Unlock()

	if cr == nil {
		return ErrNotStarted
	}

	done := make(chan struct{})
	go func() {
		<-cr.Stop().Done()
		c.running.Wait()
		close(done)
	}()

	select {
	case <-done:
		c.logger.InfoContext(ctx, "cache sweep coordinator stopped",
			slog.Int64("sweeps", c.Sweeps()),
		)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// cronLogger routes cron's internal logging to slog.
type cronLogger struct {
	l *slog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error(msg, append(keysAndValues, "error", err)...)
}
