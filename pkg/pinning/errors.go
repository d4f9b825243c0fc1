package pinning

import "errors"

var (
	// ErrNotConfigured is returned by Pin when the pool has no capacity
	// (never sized, resized to zero, or closed).
	ErrNotConfigured = errors.New("pinning: pool capacity not configured")

	// ErrNotComparable is returned by Pin for values that cannot be matched
	// by Unpin (slices, maps, funcs, structs containing them).
	ErrNotComparable = errors.New("pinning: value is not comparable")

	// ErrAlreadyStarted is returned when starting a running coordinator.
	ErrAlreadyStarted = errors.New("pinning: coordinator already started")

	// ErrNotStarted is returned when stopping a coordinator that is not running.
	ErrNotStarted = errors.New("pinning: coordinator not started")
)
