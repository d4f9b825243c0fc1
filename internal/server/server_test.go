package server_test

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/homecloud/internal/config"
	"github.com/dmitrymomot/homecloud/internal/server"
	"github.com/dmitrymomot/homecloud/pkg/session"
	"github.com/dmitrymomot/homecloud/pkg/storage"
	"github.com/dmitrymomot/homecloud/pkg/vfs"
)

var (
	aliceToken = strings.Repeat("A", 43)
	bobToken   = strings.Repeat("B", 43)
)

type memStore struct {
	mu     sync.Mutex
	nodes  map[string]vfs.Node
	grants map[[2]string]vfs.Perm
}

func (m *memStore) Stat(_ context.Context, path string) (vfs.Node, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.nodes[path]
	if !ok {
		return vfs.Node{}, vfs.ErrNotFound
	}
	return n, nil
}

func (m *memStore) Owner(ctx context.Context, path string) (string, error) {
	n, err := m.Stat(ctx, path)
	if err != nil {
		return "", err
	}
	return n.Owner, nil
}

func (m *memStore) Grant(_ context.Context, path, user string) (vfs.Perm, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.grants[[2]string{path, user}], nil
}

// gatedBlobs holds the first Get until release is closed.
type gatedBlobs struct {
	*storage.Memory
	gets    atomic.Int32
	started chan struct{}
	release chan struct{}
}

func (b *gatedBlobs) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	if b.gets.Add(1) == 1 {
		close(b.started)
		<-b.release
	}
	return b.Memory.Get(ctx, key)
}

type fixture struct {
	srv   *server.Server
	store *memStore
}

func newFixture(t *testing.T, opts ...server.Option) *fixture {
	t.Helper()
	ctx := context.Background()

	store := &memStore{
		nodes: map[string]vfs.Node{
			"/alice/notes.txt": {
				Path: "/alice/notes.txt", Owner: "alice", BlobKey: "blob-notes",
				ContentType: "text/plain", Size: 5, ModTime: time.Unix(1700000000, 0),
			},
			"/alice/photo.png": {
				Path: "/alice/photo.png", Owner: "alice", BlobKey: "blob-photo",
				ContentType: "image/png", Size: 3, ModTime: time.Unix(1700000000, 0),
			},
			"/alice/docs": {Path: "/alice/docs", Owner: "alice", IsDir: true},
		},
		grants: map[[2]string]vfs.Perm{},
	}

	blobs := storage.NewMemory()
	require.NoError(t, blobs.Put(ctx, "blob-notes", strings.NewReader("hello"), 5, "text/plain"))
	require.NoError(t, blobs.Put(ctx, "blob-photo", strings.NewReader("png"), 3, "image/png"))

	sessions := session.NewMemoryStore()
	for token, user := range map[string]string{aliceToken: "alice", bobToken: "bob"} {
		s := session.New(user+"-session", token, time.Now().Add(time.Hour))
		s.SetUser(user)
		require.NoError(t, sessions.Create(ctx, s))
	}

	cfg := config.Default()
	cfg.Server.Debug = true
	cfg.Cache.Capacity = 64

	opts = append([]server.Option{
		server.WithStore(store),
		server.WithBlobs(blobs),
		server.WithSessionStore(sessions),
	}, opts...)

	srv, err := server.New(ctx, cfg, nil, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Close(context.Background()) })

	return &fixture{srv: srv, store: store}
}

func (f *fixture) do(t *testing.T, method, target, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	if token != "" {
		req.AddCookie(&http.Cookie{Name: "__session", Value: token})
	}
	rec := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestServer_Files(t *testing.T) {
	t.Parallel()

	t.Run("owner reads file", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		rec := f.do(t, http.MethodGet, "/files/alice/notes.txt", aliceToken)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "hello", rec.Body.String())
		assert.Equal(t, `"blob-notes"`, rec.Header().Get("ETag"))
		assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	})

	t.Run("upstream request id is kept", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		req.Header.Set("X-Request-ID", "req-42")
		rec := httptest.NewRecorder()
		f.srv.Handler().ServeHTTP(rec, req)
		assert.Equal(t, "req-42", rec.Header().Get("X-Request-ID"))
	})

	t.Run("anonymous request needs sign in", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		rec := f.do(t, http.MethodGet, "/files/alice/notes.txt", "")
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("other user needs a grant", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		rec := f.do(t, http.MethodGet, "/files/alice/notes.txt", bobToken)
		require.Equal(t, http.StatusForbidden, rec.Code)

		f.store.mu.Lock()
		f.store.grants[[2]string{"/alice/notes.txt", "bob"}] = vfs.PermRead
		f.store.mu.Unlock()

		// The denied permission is cached until invalidated.
		rec = f.do(t, http.MethodGet, "/files/alice/notes.txt", bobToken)
		require.Equal(t, http.StatusForbidden, rec.Code)

		rec = f.do(t, http.MethodDelete, "/files/alice/notes.txt", aliceToken)
		require.Equal(t, http.StatusNoContent, rec.Code)

		rec = f.do(t, http.MethodGet, "/files/alice/notes.txt", bobToken)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "hello", rec.Body.String())
	})

	t.Run("invalidation during load reopens the file", func(t *testing.T) {
		t.Parallel()

		blobs := &gatedBlobs{
			Memory:  storage.NewMemory(),
			started: make(chan struct{}),
			release: make(chan struct{}),
		}
		require.NoError(t, blobs.Put(context.Background(), "blob-notes", strings.NewReader("hello"), 5, "text/plain"))
		f := newFixture(t, server.WithBlobs(blobs))

		done := make(chan *httptest.ResponseRecorder)
		go func() {
			done <- f.do(t, http.MethodGet, "/files/alice/notes.txt", aliceToken)
		}()

		<-blobs.started
		rec := f.do(t, http.MethodDelete, "/files/alice/notes.txt", aliceToken)
		require.Equal(t, http.StatusNoContent, rec.Code)
		close(blobs.release)

		rec = <-done
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "hello", rec.Body.String())
		assert.Equal(t, int32(2), blobs.gets.Load())
	})

	t.Run("invalid session token is anonymous", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		rec := f.do(t, http.MethodGet, "/files/alice/notes.txt", "garbage")
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Header().Get("Set-Cookie"), "Max-Age=0")
	})

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		f.store.mu.Lock()
		f.store.grants[[2]string{"/alice/gone.txt", "alice"}] = vfs.PermRead
		f.store.mu.Unlock()

		rec := f.do(t, http.MethodGet, "/files/alice/gone.txt", aliceToken)
		require.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("directory is rejected", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		rec := f.do(t, http.MethodGet, "/files/alice/docs", aliceToken)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("manage right needed to invalidate", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		f.store.mu.Lock()
		f.store.grants[[2]string{"/alice/notes.txt", "bob"}] = vfs.PermRead
		f.store.mu.Unlock()

		rec := f.do(t, http.MethodDelete, "/files/alice/notes.txt", bobToken)
		require.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("handler panic is a 500", func(t *testing.T) {
		t.Parallel()

		handlers := vfs.NewHandlers()
		handlers.Register(storage.ClassImage, vfs.HandlerFunc(
			func(http.ResponseWriter, *http.Request, *vfs.File) error { panic("decoder crashed") },
		))
		f := newFixture(t, server.WithHandlers(handlers))

		rec := f.do(t, http.MethodGet, "/files/alice/photo.png", aliceToken)
		require.Equal(t, http.StatusInternalServerError, rec.Code)

		rec = f.do(t, http.MethodGet, "/files/alice/notes.txt", aliceToken)
		require.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestServer_DebugCache(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/files/alice/notes.txt", aliceToken).Code)

	rec := f.do(t, http.MethodGet, "/debug/cache", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var stats server.CacheStats
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&stats))
	assert.Equal(t, 64, stats.Pool.Capacity)
	assert.Positive(t, stats.Pool.Occupied)
	assert.Equal(t, 1, stats.Caches["vfs.files"])
	assert.Equal(t, 1, stats.Caches["sessions"])
	assert.GreaterOrEqual(t, stats.Registered, 4)
}

func TestServer_Health(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/healthz", "").Code)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/readyz", "").Code)
}

func TestNew_RequiresStore(t *testing.T) {
	t.Parallel()

	_, err := server.New(context.Background(), config.Default(), nil)
	require.ErrorIs(t, err, vfs.ErrStoreRequired)
}

func TestServer_Serve(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.srv.Serve(ctx, ln) }()

	var resp *http.Response
	require.Eventually(t, func() bool {
		resp, err = http.Get("http://" + ln.Addr().String() + "/healthz")
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, "OK", string(body))

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return after cancel")
	}

	assert.Equal(t, 0, f.srv.Pool().Capacity(), "pool is closed on shutdown")
}
