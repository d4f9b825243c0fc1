// Package locks provides low-level synchronization primitives used by the
// object cache and by read-heavy hot paths of the platform.
//
// Three primitives are available, each trading fairness, latency and memory
// differently:
//
//   - [TimeboxedMutex] — a mutex whose acquisition is bounded by a timeout and
//     whose hold duration can be watched. When a holder keeps the lock longer
//     than the hold timeout, the guard's context is cancelled with
//     [ErrHeldTooLong] and a callback receives the [Holder] identity.
//   - [SpinRWLock] — a reader/writer lock with one reader counter per slot.
//     Each goroutine that reads obtains its own [Slot]; writers wait for all
//     other slots to drain, which lets a slot upgrade a held read lock.
//   - [PackedRWLock] — a single-word lock packing the reader count and a
//     write-request bit. Reads are one CAS; writers serialize through a
//     TimeboxedMutex. Intended for very short read sections only: a writer
//     cannot finish while readers remain.
//
// None of the primitives park goroutines on the scheduler while waiting for
// readers or writers to drain. They spin, yielding with [runtime.Gosched] and
// backing off to short sleeps once a wait gets long.
//
// # Timed acquisition
//
//	mu := locks.NewTimeboxedMutex(
//	    locks.WithHoldTimeout(2*time.Second),
//	    locks.WithLogger(log),
//	)
//
//	g, err := mu.Acquire(100 * time.Millisecond)
//	if errors.Is(err, locks.ErrLockTimeout) {
//	    // busy
//	}
//	defer g.Release()
//
//	// Long-running work should watch g.Context().
//	return fetch(g.Context())
//
// # Slotted reads
//
//	l := locks.NewSpinRWLock(64)
//	s, err := l.Slot()
//	if err != nil {
//	    return err
//	}
//	defer s.Release()
//
//	s.RLock()
//	defer s.RUnlock()
package locks
