package locks

import (
	"sync/atomic"
	"time"
)

const (
	writeRequested = uint32(1) << 31
	readerMask     = writeRequested - 1
)

// PackedRWLock packs the reader count and a write-request flag into one word.
//
// A read costs a single CAS and never blocks on the scheduler; a writer
// announces itself by setting the flag, which turns new readers away, and
// then waits for the count to reach zero. Read sections must be short:
// a steady stream of overlapping readers keeps a writer waiting.
//
// The zero value is an unlocked lock.
type PackedRWLock struct {
	writers TimeboxedMutex
	guard   *Guard // owned by the current writer
	state   atomic.Uint32
}

// RLock acquires a read lock.
func (l *PackedRWLock) RLock() {
	for spins := 0; ; spins++ {
		cur := l.state.Load()
		switch {
		case cur&writeRequested != 0:
			// Let the writer drain the readers and finish.
		case cur&readerMask == readerMask:
			// Saturated; wait for a reader to leave instead of overflowing into the flag.
		case l.state.CompareAndSwap(cur, cur+1):
			return
		default:
			continue
		}
		backoff(spins)
	}
}

// RUnlock releases a read lock.
func (l *PackedRWLock) RUnlock() {
	if l.state.Add(^uint32(0))&readerMask == readerMask {
		panic("locks: RUnlock of unlocked PackedRWLock")
	}
}

// QuickRead acquires a read lock and returns the function releasing it.
func (l *PackedRWLock) QuickRead() (release func()) {
	l.RLock()
	return l.RUnlock
}

// Lock acquires the write lock, waiting as long as necessary.
func (l *PackedRWLock) Lock() {
	_ = l.lock(0)
}

// Unlock releases a write lock taken with Lock or Exclusive.
func (l *PackedRWLock) Unlock() {
	g := l.guard
	l.guard = nil
	l.state.And(^writeRequested)
	g.Release()
}

// Exclusive acquires the write lock within timeout and returns the function
// releasing it. A timeout of zero or less waits as long as necessary.
// The timeout covers both waiting for other writers and draining readers;
// on ErrLockTimeout the lock is left untouched.
func (l *PackedRWLock) Exclusive(timeout time.Duration) (release func(), err error) {
	if err := l.lock(timeout); err != nil {
		return nil, err
	}
	return l.Unlock, nil
}

func (l *PackedRWLock) lock(timeout time.Duration) error {
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}

	g, err := l.writers.Acquire(timeout)
	if err != nil {
		return err
	}

	l.state.Or(writeRequested)
	for spins := 0; l.state.Load() != writeRequested; spins++ {
		if !deadline.IsZero() && time.Now().After(deadline) {
			l.state.And(^writeRequested)
			g.Release()
			return ErrLockTimeout
		}
		backoff(spins)
	}

	l.guard = g
	return nil
}

// Readers returns the number of read locks currently held.
func (l *PackedRWLock) Readers() int {
	return int(l.state.Load() & readerMask)
}

// WriteRequested reports whether a writer holds or waits for the lock.
func (l *PackedRWLock) WriteRequested() bool {
	return l.state.Load()&writeRequested != 0
}
