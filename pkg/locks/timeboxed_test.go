package locks_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/homecloud/pkg/locks"
)

func TestTimeboxedMutex_Acquire(t *testing.T) {
	t.Parallel()

	t.Run("acquires free mutex", func(t *testing.T) {
		t.Parallel()

		m := locks.NewTimeboxedMutex()
		g, err := m.Acquire(time.Second)
		require.NoError(t, err)
		require.NotNil(t, g)

		h, ok := m.Holder()
		require.True(t, ok)
		require.Equal(t, g.Holder().ID, h.ID)

		g.Release()
		_, ok = m.Holder()
		require.False(t, ok)
	})

	t.Run("times out while held", func(t *testing.T) {
		t.Parallel()

		m := locks.NewTimeboxedMutex()
		g, err := m.Acquire(time.Second)
		require.NoError(t, err)
		defer g.Release()

		start := time.Now()
		_, err = m.Acquire(20 * time.Millisecond)
		require.ErrorIs(t, err, locks.ErrLockTimeout)
		require.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
	})

	t.Run("zero value is usable", func(t *testing.T) {
		t.Parallel()

		var m locks.TimeboxedMutex
		g, err := m.Acquire(0)
		require.NoError(t, err)
		g.Release()
	})

	t.Run("waiter gets lock after release", func(t *testing.T) {
		t.Parallel()

		m := locks.NewTimeboxedMutex()
		g, err := m.Acquire(time.Second)
		require.NoError(t, err)

		done := make(chan error, 1)
		go func() {
			g2, err := m.Acquire(time.Second)
			if err == nil {
				g2.Release()
			}
			done <- err
		}()

		time.Sleep(10 * time.Millisecond)
		g.Release()
		require.NoError(t, <-done)
	})

	t.Run("release is idempotent", func(t *testing.T) {
		t.Parallel()

		m := locks.NewTimeboxedMutex()
		g, err := m.Acquire(time.Second)
		require.NoError(t, err)
		g.Release()
		g.Release()

		g2, ok := m.TryAcquire()
		require.True(t, ok)
		g2.Release()
	})

	t.Run("holder ids increase", func(t *testing.T) {
		t.Parallel()

		m := locks.NewTimeboxedMutex()
		g1, err := m.Acquire(0)
		require.NoError(t, err)
		id1 := g1.Holder().ID
		g1.Release()

		g2, err := m.Acquire(0)
		require.NoError(t, err)
		defer g2.Release()
		require.Greater(t, g2.Holder().ID, id1)
	})
}

func TestTimeboxedMutex_AcquireContext(t *testing.T) {
	t.Parallel()

	t.Run("deadline maps to ErrLockTimeout", func(t *testing.T) {
		t.Parallel()

		m := locks.NewTimeboxedMutex()
		g, err := m.Acquire(0)
		require.NoError(t, err)
		defer g.Release()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()

		_, err = m.AcquireContext(ctx)
		require.ErrorIs(t, err, locks.ErrLockTimeout)
	})

	t.Run("cancellation returns context error", func(t *testing.T) {
		t.Parallel()

		m := locks.NewTimeboxedMutex()
		g, err := m.Acquire(0)
		require.NoError(t, err)
		defer g.Release()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err = m.AcquireContext(ctx)
		require.ErrorIs(t, err, context.Canceled)
	})
}

func TestTimeboxedMutex_TryAcquire(t *testing.T) {
	t.Parallel()

	m := locks.NewTimeboxedMutex()
	g, ok := m.TryAcquire()
	require.True(t, ok)

	_, ok = m.TryAcquire()
	require.False(t, ok)

	g.Release()
	g, ok = m.TryAcquire()
	require.True(t, ok)
	g.Release()
}

func TestTimeboxedMutex_Watchdog(t *testing.T) {
	t.Parallel()

	t.Run("fires callback and cancels guard context", func(t *testing.T) {
		t.Parallel()

		fired := make(chan locks.Holder, 1)
		m := locks.NewTimeboxedMutex(
			locks.WithHoldTimeout(20*time.Millisecond),
			locks.WithOnHeldTooLong(func(h locks.Holder) { fired <- h }),
		)

		g, err := m.Acquire(time.Second)
		require.NoError(t, err)
		defer g.Release()

		select {
		case h := <-fired:
			require.Equal(t, g.Holder().ID, h.ID)
			require.Contains(t, h.Caller, "TestTimeboxedMutex_Watchdog")
		case <-time.After(time.Second):
			t.Fatal("watchdog did not fire")
		}

		<-g.Context().Done()
		require.True(t, errors.Is(context.Cause(g.Context()), locks.ErrHeldTooLong))
	})

	t.Run("release before timeout stops watchdog", func(t *testing.T) {
		t.Parallel()

		var fired atomic.Bool
		m := locks.NewTimeboxedMutex(
			locks.WithHoldTimeout(30*time.Millisecond),
			locks.WithOnHeldTooLong(func(locks.Holder) { fired.Store(true) }),
		)

		g, err := m.Acquire(time.Second)
		require.NoError(t, err)
		g.Release()

		time.Sleep(60 * time.Millisecond)
		require.False(t, fired.Load())
		require.ErrorIs(t, context.Cause(g.Context()), context.Canceled)
	})
}

func TestTimeboxedMutex_MutualExclusion(t *testing.T) {
	t.Parallel()

	m := locks.NewTimeboxedMutex()
	var (
		wg      sync.WaitGroup
		inside  atomic.Int32
		counter int
	)

	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				g, err := m.Acquire(0)
				if err != nil {
					t.Error(err)
					return
				}
				if inside.Add(1) != 1 {
					t.Error("two holders at once")
				}
				counter++
				inside.Add(-1)
				g.Release()
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 1600, counter)
}
