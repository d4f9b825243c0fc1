package locks

import (
	"sync"
	"sync/atomic"
	"weak"
)

const (
	defaultSlots = 64
	maxSlots     = 1 << 16
	noWriter     = -1
)

// SpinRWLock is a reader/writer lock with a private reader counter per slot.
//
// Readers touch only their own counter, so concurrent reads do not contend on
// a shared word. A writer raises a flag and waits for every counter except
// its own to drain: a slot holding a read lock may take the write lock
// without releasing it first.
//
// Slots are obtained with [SpinRWLock.Slot] and must not be shared between
// goroutines. Ids of slots that were dropped without Release are reclaimed
// once the garbage collector has freed the slot; a reclaimed slot's read
// count is reset and, if it held the write lock, the write lock is released.
type SpinRWLock struct {
	free       *freeList
	readers    []atomic.Int32
	owners     []atomic.Pointer[weak.Pointer[Slot]]
	writerMu   sync.Mutex
	writer     atomic.Bool
	writerID   atomic.Int32
	reclaiming atomic.Bool
}

// NewSpinRWLock creates a lock with room for the given number of slots.
// Non-positive values select the default of 64.
func NewSpinRWLock(slots int) *SpinRWLock {
	if slots <= 0 {
		slots = defaultSlots
	}
	slots = min(slots, maxSlots)
	l := &SpinRWLock{
		free:    newFreeList(slots),
		readers: make([]atomic.Int32, slots),
		owners:  make([]atomic.Pointer[weak.Pointer[Slot]], slots),
	}
	l.writerID.Store(noWriter)
	return l
}

// Slot hands out a slot for the calling goroutine.
// When all slots are taken, ids of collected slots are reclaimed first;
// ErrNoSlots is returned if none could be recovered.
func (l *SpinRWLock) Slot() (*Slot, error) {
	id, ok := l.free.pop()
	if !ok {
		l.reclaim()
		if id, ok = l.free.pop(); !ok {
			return nil, ErrNoSlots
		}
	}

	s := &Slot{lock: l, id: id}
	ref := weak.Make(s)
	s.ref = &ref
	l.owners[id].Store(&ref)
	return s, nil
}

// Cap returns the number of slots.
func (l *SpinRWLock) Cap() int {
	return len(l.readers)
}

// reclaim scans the owner table and recycles ids whose slot was collected.
// Only one goroutine scans at a time; the others wait for it to finish.
func (l *SpinRWLock) reclaim() {
	if !l.reclaiming.CompareAndSwap(false, true) {
		for spins := 0; l.reclaiming.Load(); spins++ {
			backoff(spins)
		}
		return
	}
	defer l.reclaiming.Store(false)

	for id := range l.owners {
		ref := l.owners[id].Load()
		if ref == nil || ref.Value() != nil {
			continue
		}
		if l.owners[id].CompareAndSwap(ref, nil) {
			// A slot dropped inside a read section leaves its count behind.
			l.readers[id].Store(0)
			// One dropped inside a write section leaves the lock held.
			if l.writerID.CompareAndSwap(int32(id), noWriter) {
				l.writer.Store(false)
				l.writerMu.Unlock()
			}
			l.free.push(uint32(id))
		}
	}
}

// Slot is one goroutine's handle on a SpinRWLock.
type Slot struct {
	lock    *SpinRWLock
	ref     *weak.Pointer[Slot]
	id      uint32
	writing bool
}

// ID returns the slot index.
func (s *Slot) ID() int {
	return int(s.id)
}

// RLock acquires a read lock. Read locks on the same slot nest.
func (s *Slot) RLock() {
	l := s.lock
	count := &l.readers[s.id]
	spins := 0
	for {
		for !s.writing && l.writer.Load() {
			backoff(spins)
			spins++
		}
		count.Add(1)
		// A writer may have raised its flag between the check and the increment.
		if s.writing || !l.writer.Load() {
			return
		}
		count.Add(-1)
		backoff(spins)
		spins++
	}
}

// RUnlock releases a read lock.
func (s *Slot) RUnlock() {
	if s.lock.readers[s.id].Add(-1) < 0 {
		panic("locks: RUnlock of unlocked SpinRWLock slot")
	}
}

// Lock acquires the write lock. Writers are serialized; the caller's own
// read locks do not block it.
func (s *Slot) Lock() {
	l := s.lock
	l.writerMu.Lock()
	l.writerID.Store(int32(s.id))
	l.writer.Store(true)
	s.writing = true

	for id := range l.readers {
		if uint32(id) == s.id {
			continue
		}
		for spins := 0; l.readers[id].Load() != 0; spins++ {
			backoff(spins)
		}
	}
}

// Unlock releases the write lock.
func (s *Slot) Unlock() {
	if !s.writing {
		panic("locks: Unlock of SpinRWLock slot not holding the write lock")
	}
	s.writing = false
	s.lock.writerID.Store(noWriter)
	s.lock.writer.Store(false)
	s.lock.writerMu.Unlock()
}

// Release returns the slot id to the lock. The slot must not hold any lock
// and must not be used afterwards. Release is idempotent.
func (s *Slot) Release() {
	if s.ref == nil {
		return
	}
	l := s.lock
	if l.owners[s.id].CompareAndSwap(s.ref, nil) {
		l.free.push(s.id)
	}
	s.ref = nil
}
