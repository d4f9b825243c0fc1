package pinning

import (
	"log/slog"
	"reflect"
	"sync"
	"sync/atomic"
)

// Aware is implemented by values that want to know how many pool slots
// currently hold them. OnPinned is called before the value becomes visible
// in a slot and OnUnpinned exactly once per slot it leaves, so a value
// pinned n times observes n calls of each.
type Aware interface {
	OnPinned()
	OnUnpinned()
}

// Counter is an embeddable Aware implementation.
type Counter struct {
	n atomic.Int64
}

func (c *Counter) OnPinned()   { c.n.Add(1) }
func (c *Counter) OnUnpinned() { c.n.Add(-1) }

// Pinned reports whether at least one pool slot currently holds the value.
func (c *Counter) Pinned() bool { return c.n.Load() > 0 }

// PinCount returns the number of pool slots currently holding the value.
func (c *Counter) PinCount() int64 { return c.n.Load() }

type cell struct {
	v any
}

type table struct {
	cells []atomic.Pointer[cell]
}

// Stats is a point-in-time snapshot of pool state.
type Stats struct {
	Capacity   int   `json:"capacity"`
	Occupied   int   `json:"occupied"`
	MemoryUsed int64 `json:"memory_used"`
	MaxMemory  int64 `json:"max_memory"`
	Pins       int64 `json:"pins"`
	Evictions  int64 `json:"evictions"`
}

// Pool is a fixed-capacity ring of strong references. Values pinned here
// stay reachable until the ring cursor comes around and overwrites them,
// which gives weak caches a bounded set of recently used entries that
// survive collection.
//
// A Pool is safe for concurrent use. Create one per process and pass it to
// every cache that should share the budget.
type Pool struct {
	table     atomic.Pointer[table]
	cursor    atomic.Uint64
	used      atomic.Int64
	maxMemory atomic.Int64
	pins      atomic.Int64
	evictions atomic.Int64
	drains    sync.WaitGroup
	logger    *slog.Logger
}

// NewPool creates a pool with the given options.
func NewPool(opts ...PoolOption) *Pool {
	o := defaultPoolOptions()
	for _, opt := range opts {
		opt(o)
	}

	p := &Pool{logger: o.logger}
	p.maxMemory.Store(o.maxMemory)
	if o.capacity > 0 {
		p.table.Store(newTable(o.capacity))
	}
	return p
}

func newTable(capacity int) *table {
	return &table{cells: make([]atomic.Pointer[cell], capacity)}
}

// Pin stores v in the next ring slot, replacing and unpinning whatever the
// slot held. Pin(nil) clears the next slot and is how memory pressure evicts.
func (p *Pool) Pin(v any) error {
	if v != nil && !reflect.TypeOf(v).Comparable() {
		return ErrNotComparable
	}

	t := p.table.Load()
	if t == nil {
		return ErrNotConfigured
	}

	var c *cell
	if v != nil {
		c = &cell{v: v}
		notifyPinned(v)
		p.pins.Add(1)
	}

	i := (p.cursor.Add(1) - 1) % uint64(len(t.cells))
	if old := t.cells[i].Swap(c); old != nil {
		notifyUnpinned(old.v)
		if v == nil {
			p.evictions.Add(1)
		}
	}

	// A concurrent Resize may have retired t after we loaded it. The drain
	// might have passed slot i already, so take the value back out ourselves.
	if c != nil && p.table.Load() != t {
		if t.cells[i].CompareAndSwap(c, nil) {
			notifyUnpinned(v)
		}
	}
	return nil
}

// Unpin clears every slot holding v.
// It reports whether any slot was cleared.
func (p *Pool) Unpin(v any) bool {
	if v == nil || !reflect.TypeOf(v).Comparable() {
		return false
	}

	t := p.table.Load()
	if t == nil {
		return false
	}

	var found bool
	for i := range t.cells {
		c := t.cells[i].Load()
		if c == nil || c.v != v {
			continue
		}
		if t.cells[i].CompareAndSwap(c, nil) {
			notifyUnpinned(c.v)
			found = true
		}
	}
	return found
}

// UnpinAll clears every slot holding any of vs in a single pass over the ring.
// It returns the number of slots cleared.
func (p *Pool) UnpinAll(vs ...any) int {
	t := p.table.Load()
	if t == nil || len(vs) == 0 {
		return 0
	}

	set := make(map[any]struct{}, len(vs))
	for _, v := range vs {
		if v != nil && reflect.TypeOf(v).Comparable() {
			set[v] = struct{}{}
		}
	}
	if len(set) == 0 {
		return 0
	}

	var n int
	for i := range t.cells {
		c := t.cells[i].Load()
		if c == nil {
			continue
		}
		if _, ok := set[c.v]; !ok {
			continue
		}
		if t.cells[i].CompareAndSwap(c, nil) {
			notifyUnpinned(c.v)
			n++
		}
	}
	return n
}

// Contains reports whether v currently occupies at least one slot.
func (p *Pool) Contains(v any) bool {
	if v == nil || !reflect.TypeOf(v).Comparable() {
		return false
	}
	t := p.table.Load()
	if t == nil {
		return false
	}
	for i := range t.cells {
		if c := t.cells[i].Load(); c != nil && c.v == v {
			return true
		}
	}
	return false
}

// Resize replaces the ring with an empty one of the given capacity.
// Values in the old ring are unpinned in the background; Close waits for
// outstanding drains. Zero capacity disables the pool.
func (p *Pool) Resize(capacity int) {
	var nt *table
	if capacity > 0 {
		nt = newTable(capacity)
	}

	old := p.table.Swap(nt)
	p.logger.Debug("pin pool resized", slog.Int("capacity", capacity))
	if old == nil {
		return
	}

	p.drains.Add(1)
	go func() {
		defer p.drains.Done()
		n := drain(old)
		p.logger.Debug("pin pool drained retired ring", slog.Int("unpinned", n))
	}()
}

func drain(t *table) int {
	var n int
	for i := range t.cells {
		if old := t.cells[i].Swap(nil); old != nil {
			notifyUnpinned(old.v)
			n++
		}
	}
	return n
}

// AccountMemory adds delta bytes to the running total and returns the new
// total. When the total exceeds the budget after a positive delta, up to
// Capacity slots are cleared in ring order. Evicted values credit their
// memory back through their own unpin or cleanup hooks, so the total
// converges below the budget once they are released.
//
// Credits that arrive only after collection, as with weakcache weighers,
// never lower the total during the eviction loop. Every charge made while
// over budget therefore empties the whole ring, and the pool holds nothing
// until the garbage collector has run the cleanups. Size the budget well
// above the working set when pins should survive memory pressure.
func (p *Pool) AccountMemory(delta int64) int64 {
	total := p.used.Add(delta)

	limit := p.maxMemory.Load()
	if delta <= 0 || limit <= 0 || total <= limit {
		return total
	}

	t := p.table.Load()
	if t == nil {
		return total
	}

	for range len(t.cells) {
		if p.used.Load() <= limit {
			break
		}
		if err := p.Pin(nil); err != nil {
			break
		}
	}

	total = p.used.Load()
	if total > limit {
		p.logger.Debug("pin pool over memory budget",
			slog.Int64("used", total),
			slog.Int64("max", limit),
		)
	}
	return total
}

// SetMaxMemory changes the memory budget. Zero disables enforcement.
func (p *Pool) SetMaxMemory(bytes int64) {
	if bytes < 0 {
		bytes = 0
	}
	p.maxMemory.Store(bytes)
}

// MemoryUsed returns the accounted memory total in bytes.
func (p *Pool) MemoryUsed() int64 {
	return p.used.Load()
}

// Capacity returns the number of slots in the current ring.
func (p *Pool) Capacity() int {
	if t := p.table.Load(); t != nil {
		return len(t.cells)
	}
	return 0
}

// Occupied returns the number of non-empty slots.
func (p *Pool) Occupied() int {
	t := p.table.Load()
	if t == nil {
		return 0
	}
	var n int
	for i := range t.cells {
		if t.cells[i].Load() != nil {
			n++
		}
	}
	return n
}

// Stats returns a snapshot of pool counters.
func (p *Pool) Stats() Stats {
	return Stats{
		Capacity:   p.Capacity(),
		Occupied:   p.Occupied(),
		MemoryUsed: p.used.Load(),
		MaxMemory:  p.maxMemory.Load(),
		Pins:       p.pins.Load(),
		Evictions:  p.evictions.Load(),
	}
}

// Close disables the pool, unpins every value and waits for background drains.
func (p *Pool) Close() {
	p.Resize(0)
	p.drains.Wait()
}

func notifyPinned(v any) {
	if a, ok := v.(Aware); ok {
		a.OnPinned()
	}
}

func notifyUnpinned(v any) {
	if a, ok := v.(Aware); ok {
		a.OnUnpinned()
	}
}
