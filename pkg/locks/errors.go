package locks

import "errors"

var (
	// ErrLockTimeout is returned when a lock could not be obtained within the requested bound.
	ErrLockTimeout = errors.New("locks: acquire timed out")

	// ErrHeldTooLong is the cancellation cause of a guard context whose
	// holder exceeded the mutex hold timeout.
	ErrHeldTooLong = errors.New("locks: held too long")

	// ErrNoSlots is returned when every reader slot of a SpinRWLock is taken
	// and none could be reclaimed.
	ErrNoSlots = errors.New("locks: no free slots")
)
