package weakcache

import (
	"context"
	"errors"
	"io"
	"iter"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"weak"

	"github.com/dmitrymomot/homecloud/pkg/locks"
	"github.com/dmitrymomot/homecloud/pkg/pinning"
)

// Factory builds the value for key. It is called at most once at a time per
// key; errors are returned to the caller and nothing is cached.
type Factory[K comparable, V any, A any] func(ctx context.Context, key K, arg A) (*V, error)

type entry[V any] struct {
	mu      sync.Mutex
	ptr     atomic.Pointer[weak.Pointer[V]]
	removed atomic.Bool
}

func (e *entry[V]) value() *V {
	if p := e.ptr.Load(); p != nil {
		return p.Value()
	}
	return nil
}

// take clears the entry and returns its live value, if any.
// Each stored value is returned by exactly one take or replace.
func (e *entry[V]) take() *V {
	if p := e.ptr.Swap(nil); p != nil {
		return p.Value()
	}
	return nil
}

// Cache maps keys to weakly held values. A value stays in the cache for as
// long as something references it strongly, typically the shared pin pool.
// Once collected, the next Get rebuilds it and the next sweep drops the
// stale entry.
type Cache[K comparable, V any, A any] struct {
	mu      locks.PackedRWLock
	entries map[K]*entry[V]

	factory Factory[K, V, A]
	pool    *pinning.Pool
	weigh   func(*V) int64
	name    string
	logger  *slog.Logger
}

// New creates a cache and registers it with coord for sweeping.
// pool and coord may be nil, which disables pinning and sweeping respectively.
func New[K comparable, V any, A any](
	pool *pinning.Pool,
	coord *pinning.Coordinator,
	factory Factory[K, V, A],
	opts ...Option,
) (*Cache[K, V, A], error) {
	if factory == nil {
		return nil, ErrFactoryRequired
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	c := &Cache[K, V, A]{
		entries: make(map[K]*entry[V]),
		factory: factory,
		pool:    pool,
		name:    o.name,
		logger:  o.logger.With(slog.String("cache", o.name)),
	}

	if o.weigh != nil {
		fn, ok := o.weigh.(func(*V) int64)
		if !ok {
			return nil, ErrWeigherType
		}
		c.weigh = fn
	}

	if coord != nil {
		pinning.Register(coord, c)
	}
	return c, nil
}

// Name returns the cache name.
func (c *Cache[K, V, A]) Name() string {
	return c.name
}

// Len returns the number of entries, including ones whose values were
// collected but not yet swept.
func (c *Cache[K, V, A]) Len() int {
	done := c.mu.QuickRead()
	defer done()
	return len(c.entries)
}

// Get returns the live value for key, constructing it with the factory when
// missing. Concurrent callers for the same key wait for a single
// construction and share its result. The returned value is pinned.
func (c *Cache[K, V, A]) Get(ctx context.Context, key K, arg A) (*V, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		e, v := c.lookup(key)
		if v != nil {
			c.pin(v)
			return v, nil
		}
		if e == nil {
			e = c.insert(key)
		}

		v, err := c.construct(ctx, e, key, arg)
		if errors.Is(err, errRetry) {
			continue
		}
		if err != nil {
			return nil, err
		}

		c.pin(v)
		return v, nil
	}
}

// Peek returns the live value for key without constructing or pinning it.
func (c *Cache[K, V, A]) Peek(key K) (*V, bool) {
	_, v := c.lookup(key)
	return v, v != nil
}

var errRetry = errors.New("weakcache: entry removed")

func (c *Cache[K, V, A]) lookup(key K) (*entry[V], *V) {
	done := c.mu.QuickRead()
	e := c.entries[key]
	done()

	if e == nil {
		return nil, nil
	}
	return e, e.value()
}

func (c *Cache[K, V, A]) insert(key K) *entry[V] {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		e = &entry[V]{}
		c.entries[key] = e
	}
	return e
}

func (c *Cache[K, V, A]) construct(ctx context.Context, e *entry[V], key K, arg A) (*V, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.removed.Load() {
		return nil, errRetry
	}
	if v := e.value(); v != nil {
		return v, nil
	}

	v, err := c.factory(ctx, key, arg)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, ErrNilValue
	}

	wp := weak.Make(v)
	e.ptr.Store(&wp)
	c.charge(v)
	return v, nil
}

// Set installs v under key, replacing and disposing any previous value.
// Set with a nil value removes the key.
func (c *Cache[K, V, A]) Set(key K, v *V) {
	if v == nil {
		c.Remove(key)
		return
	}
	c.swap(key, v, nil)
}

// CompareAndSwap installs v under key only if the live value is old, which
// is then unpinned and disposed. A nil old matches a missing or collected
// value. It reports whether v was installed; on false the caller should Get
// the value another goroutine installed instead.
func (c *Cache[K, V, A]) CompareAndSwap(key K, old, v *V) bool {
	if v == nil {
		return false
	}
	return c.swap(key, v, func(cur *V) bool { return cur == old })
}

func (c *Cache[K, V, A]) swap(key K, v *V, match func(cur *V) bool) bool {
	for {
		e := c.insert(key)
		e.mu.Lock()
		// Remove marks entries under the write lock, so holding a read lock
		// here keeps v out of an entry that is already gone from the map.
		done := c.mu.QuickRead()
		if e.removed.Load() {
			done()
			e.mu.Unlock()
			continue
		}
		if match != nil && !match(e.value()) {
			done()
			e.mu.Unlock()
			return false
		}
		wp := weak.Make(v)
		prev := e.ptr.Swap(&wp)
		done()
		e.mu.Unlock()

		var old *V
		if prev != nil {
			old = prev.Value()
		}
		if old != v {
			c.charge(v)
			if old != nil {
				c.release(old)
			}
		}
		c.pin(v)
		return true
	}
}

// Remove deletes key, unpins its live value and disposes it.
// A construction already in flight for key completes for its callers but
// its result is not cached.
func (c *Cache[K, V, A]) Remove(key K) bool {
	c.mu.Lock()
	e, ok := c.entries[key]
	if ok {
		delete(c.entries, key)
		e.removed.Store(true)
	}
	c.mu.Unlock()

	if !ok {
		return false
	}
	if v := e.take(); v != nil {
		c.release(v)
	}
	return true
}

// Clear removes every entry. Live values are unpinned in one pass over the
// pool and disposed.
func (c *Cache[K, V, A]) Clear() {
	c.mu.Lock()
	old := c.entries
	c.entries = make(map[K]*entry[V])
	for _, e := range old {
		e.removed.Store(true)
	}
	c.mu.Unlock()

	live := make([]any, 0, len(old))
	for _, e := range old {
		if v := e.take(); v != nil {
			live = append(live, v)
		}
	}
	if len(live) == 0 {
		return
	}

	if c.pool != nil {
		c.pool.UnpinAll(live...)
	}
	for _, v := range live {
		c.dispose(v.(*V))
	}
	c.logger.Debug("cache cleared", slog.Int("disposed", len(live)))
}

// Values iterates over live values. Each iteration works on a fresh
// snapshot of the entries, so the sequence can be ranged over repeatedly.
func (c *Cache[K, V, A]) Values() iter.Seq[*V] {
	return func(yield func(*V) bool) {
		for _, e := range c.snapshot() {
			if v := e.value(); v != nil && !yield(v) {
				return
			}
		}
	}
}

// All iterates over keys and live values.
func (c *Cache[K, V, A]) All() iter.Seq2[K, *V] {
	return func(yield func(K, *V) bool) {
		done := c.mu.QuickRead()
		keys := make([]K, 0, len(c.entries))
		entries := make([]*entry[V], 0, len(c.entries))
		for k, e := range c.entries {
			keys = append(keys, k)
			entries = append(entries, e)
		}
		done()

		for i, e := range entries {
			if v := e.value(); v != nil && !yield(keys[i], v) {
				return
			}
		}
	}
}

func (c *Cache[K, V, A]) snapshot() []*entry[V] {
	done := c.mu.QuickRead()
	defer done()

	out := make([]*entry[V], 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e)
	}
	return out
}

// RemoveCollected drops entries whose values were garbage collected and
// entries left empty by failed constructions. Entries with a construction
// in flight are kept.
func (c *Cache[K, V, A]) RemoveCollected() int {
	done := c.mu.QuickRead()
	var stale []K
	for k, e := range c.entries {
		if e.value() == nil {
			stale = append(stale, k)
		}
	}
	done()

	if len(stale) == 0 {
		return 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var removed int
	for _, k := range stale {
		e, ok := c.entries[k]
		if !ok || e.value() != nil || !e.mu.TryLock() {
			continue
		}
		delete(c.entries, k)
		e.removed.Store(true)
		e.mu.Unlock()
		removed++
	}

	if removed > 0 {
		c.logger.Debug("collected entries removed", slog.Int("removed", removed))
	}
	return removed
}

func (c *Cache[K, V, A]) pin(v *V) {
	if c.pool == nil {
		return
	}
	if err := c.pool.Pin(v); err != nil && !errors.Is(err, pinning.ErrNotConfigured) {
		c.logger.Warn("pin failed", slog.Any("error", err))
	}
}

func (c *Cache[K, V, A]) release(v *V) {
	if c.pool != nil {
		c.pool.Unpin(v)
	}
	c.dispose(v)
}

func (c *Cache[K, V, A]) dispose(v *V) {
	closer, ok := any(v).(io.Closer)
	if !ok {
		return
	}
	if err := closer.Close(); err != nil {
		c.logger.Warn("dispose failed", slog.Any("error", err))
	}
}

func (c *Cache[K, V, A]) charge(v *V) {
	if c.weigh == nil || c.pool == nil {
		return
	}
	n := c.weigh(v)
	if n <= 0 {
		return
	}

	pool := c.pool
	pool.AccountMemory(n)
	runtime.AddCleanup(v, func(n int64) { pool.AccountMemory(-n) }, n)
}
