package vfs

import (
	"context"
	"fmt"
	"io"
	"path"
	"sync/atomic"
	"time"

	"github.com/dmitrymomot/homecloud/pkg/locks"
	"github.com/dmitrymomot/homecloud/pkg/pinning"
	"github.com/dmitrymomot/homecloud/pkg/storage"
)

const maxPrealloc = 64 << 20

// File is a cached file container. Content is read from the blob store on
// first use and dropped on Close.
type File struct {
	pinning.Counter

	node    Node
	blobs   storage.Blobs
	load    *locks.TimeboxedMutex
	content atomic.Pointer[[]byte]
	closed  atomic.Bool
}

func newFile(node Node, blobs storage.Blobs, loadOpts ...locks.MutexOption) *File {
	return &File{
		node:  node,
		blobs: blobs,
		load:  locks.NewTimeboxedMutex(loadOpts...),
	}
}

// Node returns the metadata the file was opened with.
func (f *File) Node() Node { return f.node }

func (f *File) matches(n Node) bool {
	return f.node.BlobKey == n.BlobKey && f.node.ModTime.Equal(n.ModTime)
}

// Name returns the base name of the file.
func (f *File) Name() string {
	return path.Base(f.node.Path)
}

func (f *File) Size() int64 { return f.node.Size }

func (f *File) ModTime() time.Time { return f.node.ModTime }

// ContentType returns the stored type, falling back to the file extension
// and then to sniffing loaded content.
func (f *File) ContentType() string {
	if f.node.ContentType != "" {
		return f.node.ContentType
	}
	if ct := storage.TypeByName(f.node.Path); ct != "" {
		return ct
	}
	if data := f.content.Load(); data != nil {
		return storage.Sniff(*data)
	}
	return storage.MIMEOctetStream
}

// Loaded reports whether content is held in memory.
func (f *File) Loaded() bool {
	return f.content.Load() != nil
}

// Content returns the file content, loading it from the blob store once.
// Concurrent callers wait for the first load. A load that exceeds the hold
// timeout is cancelled.
func (f *File) Content(ctx context.Context) ([]byte, error) {
	if f.closed.Load() {
		return nil, ErrClosed
	}
	if data := f.content.Load(); data != nil {
		return *data, nil
	}

	g, err := f.load.AcquireContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("vfs: wait for content load: %w", err)
	}
	defer g.Release()

	if f.closed.Load() {
		return nil, ErrClosed
	}
	if data := f.content.Load(); data != nil {
		return *data, nil
	}

	loadCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	stop := context.AfterFunc(g.Context(), func() { cancel(context.Cause(g.Context())) })
	defer stop()

	data, err := f.read(loadCtx)
	if err != nil {
		if cause := context.Cause(loadCtx); cause != nil {
			return nil, fmt.Errorf("vfs: load %s: %w", f.node.Path, cause)
		}
		return nil, fmt.Errorf("vfs: load %s: %w", f.node.Path, err)
	}

	if f.closed.Load() {
		return nil, ErrClosed
	}
	f.content.Store(&data)
	return data, nil
}

func (f *File) read(ctx context.Context) ([]byte, error) {
	rc, err := f.blobs.Get(ctx, f.node.BlobKey)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data := make([]byte, 0, min(max(f.node.Size, 0), maxPrealloc))
	buf := make([]byte, 32<<10)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n, err := rc.Read(buf)
		data = append(data, buf[:n]...)
		if err == io.EOF {
			return data, nil
		}
		if err != nil {
			return nil, err
		}
	}
}

// Close drops loaded content. Further Content calls return ErrClosed.
func (f *File) Close() error {
	f.closed.Store(true)
	f.content.Store(nil)
	return nil
}

// Closed reports whether the file was closed.
func (f *File) Closed() bool {
	return f.closed.Load()
}
