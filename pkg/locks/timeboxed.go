package locks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Holder identifies the current owner of a TimeboxedMutex.
// Goroutines have no identity, so a holder is described by the acquisition
// sequence number and the call site that acquired the lock.
type Holder struct {
	AcquiredAt time.Time
	Caller     string // "pkg.Func (file.go:42)", empty when the hold watchdog is off
	ID         uint64 // monotonically increasing per mutex
}

// HeldFor reports how long the holder has owned the lock.
func (h Holder) HeldFor() time.Duration {
	return time.Since(h.AcquiredAt)
}

// MutexOption configures a TimeboxedMutex.
type MutexOption func(*mutexOptions)

type mutexOptions struct {
	logger        *slog.Logger
	onHeldTooLong func(Holder)
	holdTimeout   time.Duration
}

func defaultMutexOptions() *mutexOptions {
	return &mutexOptions{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// WithHoldTimeout enables the hold watchdog. Once a guard has been held for d,
// its context is cancelled with ErrHeldTooLong and the OnHeldTooLong callback runs.
// Zero disables the watchdog.
func WithHoldTimeout(d time.Duration) MutexOption {
	return func(o *mutexOptions) {
		if d >= 0 {
			o.holdTimeout = d
		}
	}
}

// WithOnHeldTooLong sets the callback invoked by the hold watchdog.
// The callback runs on a timer goroutine and must not block.
// Default: log a warning.
func WithOnHeldTooLong(fn func(Holder)) MutexOption {
	return func(o *mutexOptions) {
		o.onHeldTooLong = fn
	}
}

// WithLogger sets the logger used by the default watchdog callback.
func WithLogger(l *slog.Logger) MutexOption {
	return func(o *mutexOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// TimeboxedMutex is a mutual exclusion lock with bounded acquisition and an
// optional hold-duration watchdog.
//
// The zero value is an unlocked mutex without a watchdog.
type TimeboxedMutex struct {
	sem    chan struct{}
	opts   *mutexOptions
	holder atomic.Pointer[Holder]
	once   sync.Once
	seq    atomic.Uint64
}

// NewTimeboxedMutex creates a mutex configured by opts.
func NewTimeboxedMutex(opts ...MutexOption) *TimeboxedMutex {
	o := defaultMutexOptions()
	for _, opt := range opts {
		opt(o)
	}
	m := &TimeboxedMutex{opts: o}
	m.init()
	return m
}

func (m *TimeboxedMutex) init() {
	m.once.Do(func() {
		m.sem = make(chan struct{}, 1)
		if m.opts == nil {
			m.opts = defaultMutexOptions()
		}
	})
}

// Acquire locks the mutex, waiting at most timeout.
// A timeout of zero or less waits until the lock is obtained.
// Returns ErrLockTimeout when the bound elapses first.
func (m *TimeboxedMutex) Acquire(timeout time.Duration) (*Guard, error) {
	m.init()

	select {
	case m.sem <- struct{}{}:
		return m.newGuard(), nil
	default:
	}

	if timeout <= 0 {
		m.sem <- struct{}{}
		return m.newGuard(), nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case m.sem <- struct{}{}:
		return m.newGuard(), nil
	case <-timer.C:
		return nil, ErrLockTimeout
	}
}

// AcquireContext locks the mutex, waiting until ctx is done.
// A context deadline is reported as ErrLockTimeout; cancellation returns the context error.
func (m *TimeboxedMutex) AcquireContext(ctx context.Context) (*Guard, error) {
	m.init()

	select {
	case m.sem <- struct{}{}:
		return m.newGuard(), nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, ErrLockTimeout
		}
		return nil, ctx.Err()
	}
}

// TryAcquire locks the mutex only if it is free.
func (m *TimeboxedMutex) TryAcquire() (*Guard, bool) {
	m.init()

	select {
	case m.sem <- struct{}{}:
		return m.newGuard(), true
	default:
		return nil, false
	}
}

// Holder returns the current owner, if any.
func (m *TimeboxedMutex) Holder() (Holder, bool) {
	h := m.holder.Load()
	if h == nil {
		return Holder{}, false
	}
	return *h, true
}

// newGuard must be called with the semaphore held.
func (m *TimeboxedMutex) newGuard() *Guard {
	h := &Holder{
		ID:         m.seq.Add(1),
		AcquiredAt: time.Now(),
	}
	if m.opts.holdTimeout > 0 {
		h.Caller = callerOutside()
	}
	m.holder.Store(h)

	ctx, cancel := context.WithCancelCause(context.Background())
	g := &Guard{
		m:      m,
		holder: h,
		ctx:    ctx,
		cancel: cancel,
	}

	if d := m.opts.holdTimeout; d > 0 {
		g.watchdog = time.AfterFunc(d, g.heldTooLong)
	}

	return g
}

// Guard is the proof of ownership returned by a successful acquisition.
type Guard struct {
	ctx      context.Context
	m        *TimeboxedMutex
	holder   *Holder
	cancel   context.CancelCauseFunc
	watchdog *time.Timer
	released atomic.Bool
}

// Context is cancelled when the guard is released or when the holder
// exceeds the hold timeout (cause ErrHeldTooLong). Work done under the lock
// should observe it.
func (g *Guard) Context() context.Context {
	return g.ctx
}

// Holder describes this acquisition.
func (g *Guard) Holder() Holder {
	return *g.holder
}

// Release unlocks the mutex and stops the watchdog. Release is idempotent.
func (g *Guard) Release() {
	if !g.released.CompareAndSwap(false, true) {
		return
	}
	if g.watchdog != nil {
		g.watchdog.Stop()
	}
	g.cancel(nil)
	g.m.holder.CompareAndSwap(g.holder, nil)
	<-g.m.sem
}

func (g *Guard) heldTooLong() {
	if g.released.Load() {
		return
	}
	g.cancel(ErrHeldTooLong)

	h := *g.holder
	if fn := g.m.opts.onHeldTooLong; fn != nil {
		fn(h)
		return
	}
	g.m.opts.logger.Warn("lock held too long",
		slog.Uint64("holder_id", h.ID),
		slog.String("caller", h.Caller),
		slog.Duration("held_for", h.HeldFor()),
	)
}

// callerOutside returns the first call site outside this package.
func callerOutside() string {
	var pcs [8]uintptr
	n := runtime.Callers(3, pcs[:])
	frames := runtime.CallersFrames(pcs[:n])
	for {
		f, more := frames.Next()
		if !isLocksFrame(f.Function) {
			return fmt.Sprintf("%s (%s:%d)", f.Function, filepath.Base(f.File), f.Line)
		}
		if !more {
			return ""
		}
	}
}

const pkgPath = "github.com/dmitrymomot/homecloud/pkg/locks."

func isLocksFrame(fn string) bool {
	return strings.HasPrefix(fn, pkgPath)
}
