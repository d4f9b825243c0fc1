package weakcache_test

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/homecloud/pkg/pinning"
	"github.com/dmitrymomot/homecloud/pkg/weakcache"
)

type doc struct {
	pinning.Counter
	key    string
	closed atomic.Int32
}

func (d *doc) Close() error {
	d.closed.Add(1)
	return nil
}

type factory struct {
	calls atomic.Int32
	delay time.Duration
	err   error
}

func (f *factory) build(ctx context.Context, key string, _ struct{}) (*doc, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return nil, f.err
	}
	return &doc{key: key}, nil
}

func newCache(t *testing.T, pool *pinning.Pool, f *factory, opts ...weakcache.Option) *weakcache.Cache[string, doc, struct{}] {
	t.Helper()
	c, err := weakcache.New(pool, nil, f.build, opts...)
	require.NoError(t, err)
	return c
}

func TestCache_Get(t *testing.T) {
	t.Parallel()

	t.Run("single construction for concurrent callers", func(t *testing.T) {
		t.Parallel()

		f := &factory{delay: 50 * time.Millisecond}
		c := newCache(t, pinning.NewPool(pinning.WithCapacity(16)), f)

		var (
			wg      sync.WaitGroup
			results = make([]*doc, 8)
		)
		for i := range results {
			wg.Add(1)
			go func() {
				defer wg.Done()
				v, err := c.Get(context.Background(), "a", struct{}{})
				if err != nil {
					t.Error(err)
					return
				}
				results[i] = v
			}()
		}
		wg.Wait()

		require.Equal(t, int32(1), f.calls.Load())
		for _, v := range results {
			require.Same(t, results[0], v)
		}
	})

	t.Run("returned value is pinned", func(t *testing.T) {
		t.Parallel()

		f := &factory{}
		pool := pinning.NewPool(pinning.WithCapacity(16))
		c := newCache(t, pool, f)

		v, err := c.Get(context.Background(), "a", struct{}{})
		require.NoError(t, err)
		require.True(t, v.Pinned())
		require.True(t, pool.Contains(v))
	})

	t.Run("pinned value survives collection", func(t *testing.T) {
		t.Parallel()

		f := &factory{}
		c := newCache(t, pinning.NewPool(pinning.WithCapacity(16)), f)

		_, err := c.Get(context.Background(), "a", struct{}{})
		require.NoError(t, err)

		runtime.GC()
		runtime.GC()

		_, err = c.Get(context.Background(), "a", struct{}{})
		require.NoError(t, err)
		require.Equal(t, int32(1), f.calls.Load())
	})

	t.Run("factory error is returned and retried", func(t *testing.T) {
		t.Parallel()

		boom := errors.New("boom")
		f := &factory{err: boom}
		c := newCache(t, pinning.NewPool(pinning.WithCapacity(16)), f)

		_, err := c.Get(context.Background(), "a", struct{}{})
		require.ErrorIs(t, err, boom)

		f.err = nil
		v, err := c.Get(context.Background(), "a", struct{}{})
		require.NoError(t, err)
		require.Equal(t, "a", v.key)
		require.Equal(t, int32(2), f.calls.Load())
	})

	t.Run("nil value is an error", func(t *testing.T) {
		t.Parallel()

		c, err := weakcache.New(nil, nil,
			func(context.Context, string, int) (*doc, error) { return nil, nil },
		)
		require.NoError(t, err)

		_, err = c.Get(context.Background(), "a", 1)
		require.ErrorIs(t, err, weakcache.ErrNilValue)
	})

	t.Run("cancelled context", func(t *testing.T) {
		t.Parallel()

		c := newCache(t, nil, &factory{})
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := c.Get(ctx, "a", struct{}{})
		require.ErrorIs(t, err, context.Canceled)
	})

	t.Run("factory is required", func(t *testing.T) {
		t.Parallel()

		_, err := weakcache.New[string, doc, struct{}](nil, nil, nil)
		require.ErrorIs(t, err, weakcache.ErrFactoryRequired)
	})
}

func TestCache_Collection(t *testing.T) {
	t.Parallel()

	t.Run("unpinned value is rebuilt and swept", func(t *testing.T) {
		t.Parallel()

		f := &factory{}
		c := newCache(t, pinning.NewPool(pinning.WithCapacity(0)), f)

		func() {
			_, err := c.Get(context.Background(), "a", struct{}{})
			require.NoError(t, err)
		}()

		require.Eventually(t, func() bool {
			runtime.GC()
			_, ok := c.Peek("a")
			return !ok
		}, 2*time.Second, 10*time.Millisecond)

		require.Equal(t, 1, c.Len())
		require.Equal(t, 1, c.RemoveCollected())
		require.Equal(t, 0, c.Len())
		require.Equal(t, 0, c.RemoveCollected())

		_, err := c.Get(context.Background(), "a", struct{}{})
		require.NoError(t, err)
		require.Equal(t, int32(2), f.calls.Load())
	})

	t.Run("values skips collected entries", func(t *testing.T) {
		t.Parallel()

		c := newCache(t, nil, &factory{})
		kept, err := c.Get(context.Background(), "kept", struct{}{})
		require.NoError(t, err)
		func() {
			_, err := c.Get(context.Background(), "gone", struct{}{})
			require.NoError(t, err)
		}()

		require.Eventually(t, func() bool {
			runtime.GC()
			_, ok := c.Peek("gone")
			return !ok
		}, 2*time.Second, 10*time.Millisecond)

		var got []*doc
		for v := range c.Values() {
			got = append(got, v)
		}
		require.Equal(t, []*doc{kept}, got)

		// Restartable.
		var again int
		for range c.Values() {
			again++
		}
		require.Equal(t, 1, again)
		runtime.KeepAlive(kept)
	})

	t.Run("coordinator sweeps registered cache", func(t *testing.T) {
		t.Parallel()

		coord := pinning.NewCoordinator()
		c, err := weakcache.New(nil, coord, (&factory{}).build)
		require.NoError(t, err)
		require.Equal(t, 1, coord.Registered())

		func() {
			_, err := c.Get(context.Background(), "a", struct{}{})
			require.NoError(t, err)
		}()

		require.Eventually(t, func() bool {
			runtime.GC()
			coord.Trigger()
			coord.Wait()
			return c.Len() == 0
		}, 2*time.Second, 10*time.Millisecond)
	})
}

func TestCache_SetRemoveClear(t *testing.T) {
	t.Parallel()

	t.Run("set replaces and disposes previous value", func(t *testing.T) {
		t.Parallel()

		pool := pinning.NewPool(pinning.WithCapacity(16))
		c := newCache(t, pool, &factory{})

		first, err := c.Get(context.Background(), "a", struct{}{})
		require.NoError(t, err)

		second := &doc{key: "a2"}
		c.Set("a", second)

		require.Equal(t, int32(1), first.closed.Load())
		require.False(t, first.Pinned())
		require.True(t, second.Pinned())

		got, ok := c.Peek("a")
		require.True(t, ok)
		require.Same(t, second, got)

		c.Set("a", second)
		require.Equal(t, int32(0), second.closed.Load())
	})

	t.Run("remove disposes once", func(t *testing.T) {
		t.Parallel()

		c := newCache(t, pinning.NewPool(pinning.WithCapacity(16)), &factory{})
		v, err := c.Get(context.Background(), "a", struct{}{})
		require.NoError(t, err)

		var (
			wg      sync.WaitGroup
			removed atomic.Int32
		)
		for range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if c.Remove("a") {
					removed.Add(1)
				}
				c.RemoveCollected()
			}()
		}
		wg.Wait()

		require.Equal(t, int32(1), removed.Load())
		require.Equal(t, int32(1), v.closed.Load())
		require.False(t, v.Pinned())
		require.False(t, c.Remove("a"))
	})

	t.Run("clear unpins and disposes everything", func(t *testing.T) {
		t.Parallel()

		pool := pinning.NewPool(pinning.WithCapacity(16))
		c := newCache(t, pool, &factory{})

		var docs []*doc
		for _, k := range []string{"a", "b", "c"} {
			v, err := c.Get(context.Background(), k, struct{}{})
			require.NoError(t, err)
			docs = append(docs, v)
		}

		c.Clear()
		require.Equal(t, 0, c.Len())
		require.Equal(t, 0, pool.Occupied())
		for _, d := range docs {
			require.Equal(t, int32(1), d.closed.Load())
			require.False(t, d.Pinned())
		}
	})

	t.Run("compare and swap installs only over the expected value", func(t *testing.T) {
		t.Parallel()

		pool := pinning.NewPool(pinning.WithCapacity(16))
		c := newCache(t, pool, &factory{})

		cur, err := c.Get(context.Background(), "a", struct{}{})
		require.NoError(t, err)

		stale := &doc{key: "stale"}
		require.False(t, c.CompareAndSwap("a", stale, &doc{key: "lost"}))
		require.Equal(t, int32(0), cur.closed.Load())

		next := &doc{key: "next"}
		require.True(t, c.CompareAndSwap("a", cur, next))
		require.Equal(t, int32(1), cur.closed.Load())
		require.False(t, cur.Pinned())
		require.True(t, next.Pinned())

		got, ok := c.Peek("a")
		require.True(t, ok)
		require.Same(t, next, got)

		require.True(t, c.CompareAndSwap("b", nil, &doc{key: "b"}))
		require.False(t, c.CompareAndSwap("b", nil, &doc{key: "b2"}))
		require.False(t, c.CompareAndSwap("a", next, nil))
	})

	t.Run("racing replacements dispose only the losing installs", func(t *testing.T) {
		t.Parallel()

		c := newCache(t, pinning.NewPool(pinning.WithCapacity(64)), &factory{})
		base, err := c.Get(context.Background(), "a", struct{}{})
		require.NoError(t, err)

		var (
			wg    sync.WaitGroup
			start = make(chan struct{})
			won   atomic.Int32
			cands = make([]*doc, 16)
		)
		for i := range cands {
			cands[i] = &doc{key: "a"}
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				if c.CompareAndSwap("a", base, cands[i]) {
					won.Add(1)
				}
			}()
		}
		close(start)
		wg.Wait()

		require.Equal(t, int32(1), won.Load())
		require.Equal(t, int32(1), base.closed.Load())
		for _, d := range cands {
			require.Equal(t, int32(0), d.closed.Load())
		}
	})

	t.Run("set nil removes", func(t *testing.T) {
		t.Parallel()

		c := newCache(t, nil, &factory{})
		c.Set("a", &doc{key: "a"})
		require.Equal(t, 1, c.Len())
		c.Set("a", nil)
		require.Equal(t, 0, c.Len())
	})
}

func TestCache_Weigher(t *testing.T) {
	t.Parallel()

	t.Run("charges and credits memory", func(t *testing.T) {
		t.Parallel()

		pool := pinning.NewPool(pinning.WithCapacity(0))
		c := newCache(t, pool, &factory{},
			weakcache.WithWeigher(func(*doc) int64 { return 100 }),
		)

		func() {
			_, err := c.Get(context.Background(), "a", struct{}{})
			require.NoError(t, err)
			require.Equal(t, int64(100), pool.MemoryUsed())
		}()

		require.Eventually(t, func() bool {
			runtime.GC()
			return pool.MemoryUsed() == 0
		}, 2*time.Second, 10*time.Millisecond)
	})

	t.Run("over budget charge empties the ring until collection credits", func(t *testing.T) {
		t.Parallel()

		pool := pinning.NewPool(pinning.WithCapacity(8), pinning.WithMaxMemory(250))
		c := newCache(t, pool, &factory{},
			weakcache.WithWeigher(func(*doc) int64 { return 100 }),
		)

		func() {
			held := make([]*doc, 0, 3)
			for _, k := range []string{"a", "b", "c"} {
				v, err := c.Get(context.Background(), k, struct{}{})
				require.NoError(t, err)
				held = append(held, v)
			}

			// The third charge crossed the budget; nothing is credited while
			// the values are still reachable, so every slot was cleared.
			require.Equal(t, int64(300), pool.MemoryUsed())
			require.Equal(t, 1, pool.Occupied(), "only the value pinned after the eviction remains")
			require.False(t, held[0].Pinned())
			require.False(t, held[1].Pinned())
			require.True(t, held[2].Pinned())
		}()

		c.Clear()
		require.Eventually(t, func() bool {
			runtime.GC()
			return pool.MemoryUsed() == 0
		}, 2*time.Second, 10*time.Millisecond)

		v, err := c.Get(context.Background(), "d", struct{}{})
		require.NoError(t, err)
		require.True(t, v.Pinned())
		require.Equal(t, int64(100), pool.MemoryUsed())
	})

	t.Run("mismatched weigher type", func(t *testing.T) {
		t.Parallel()

		_, err := weakcache.New(nil, nil, (&factory{}).build,
			weakcache.WithWeigher(func(*int) int64 { return 1 }),
		)
		require.ErrorIs(t, err, weakcache.ErrWeigherType)
	})
}

func TestCache_Name(t *testing.T) {
	t.Parallel()

	c := newCache(t, nil, &factory{}, weakcache.WithName("files"))
	require.Equal(t, "files", c.Name())
}
