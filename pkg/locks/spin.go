package locks

import (
	"runtime"
	"time"
)

const (
	// spinsBeforeSleep is how many Gosched rounds a waiter performs before
	// it starts sleeping between checks.
	spinsBeforeSleep = 64
	spinSleep        = 50 * time.Microsecond
)

// backoff yields the processor. Short waits only call Gosched; long waits
// sleep so a spinning goroutine does not starve the one it waits for.
func backoff(spins int) {
	if spins < spinsBeforeSleep {
		runtime.Gosched()
		return
	}
	time.Sleep(spinSleep)
}
