package vfs_test

import (
	"context"
	"io"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/homecloud/pkg/pinning"
	"github.com/dmitrymomot/homecloud/pkg/storage"
	"github.com/dmitrymomot/homecloud/pkg/vfs"
)

// MockStore is a mock implementation of vfs.Store.
type MockStore struct {
	mock.Mock
}

func (m *MockStore) Stat(ctx context.Context, path string) (vfs.Node, error) {
	args := m.Called(ctx, path)
	return args.Get(0).(vfs.Node), args.Error(1)
}

func (m *MockStore) Owner(ctx context.Context, path string) (string, error) {
	args := m.Called(ctx, path)
	return args.String(0), args.Error(1)
}

func (m *MockStore) Grant(ctx context.Context, path, user string) (vfs.Perm, error) {
	args := m.Called(ctx, path, user)
	return args.Get(0).(vfs.Perm), args.Error(1)
}

// countingBlobs counts content reads.
type countingBlobs struct {
	*storage.Memory
	gets atomic.Int32
}

func (b *countingBlobs) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	b.gets.Add(1)
	return b.Memory.Get(ctx, key)
}

// stallingBlobs never returns content until the context is done.
type stallingBlobs struct {
	*storage.Memory
}

func (stallingBlobs) Get(ctx context.Context, _ string) (io.ReadCloser, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func newBlobs(t *testing.T, files map[string]string) *countingBlobs {
	t.Helper()
	m := storage.NewMemory()
	for k, v := range files {
		require.NoError(t, m.Put(context.Background(), k, strings.NewReader(v), int64(len(v)), ""))
	}
	return &countingBlobs{Memory: m}
}

func node(path, key string, size int64) vfs.Node {
	return vfs.Node{
		Path:    path,
		Owner:   "alice",
		BlobKey: key,
		Size:    size,
		ModTime: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func newDirectory(t *testing.T, store vfs.Store, blobs storage.Blobs, opts ...vfs.Option) *vfs.Directory {
	t.Helper()
	dir, err := vfs.NewDirectory(pinning.NewPool(pinning.WithCapacity(64)), nil, store, blobs, opts...)
	require.NoError(t, err)
	return dir
}
