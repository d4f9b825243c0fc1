package vfs

import (
	"bytes"
	"fmt"
	"mime"
	"net/http"
	"runtime"
	"sync"

	"github.com/dmitrymomot/homecloud/pkg/locks"
	"github.com/dmitrymomot/homecloud/pkg/storage"
)

// Handler serves one file container over HTTP.
type Handler interface {
	ServeFile(w http.ResponseWriter, r *http.Request, f *File) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(w http.ResponseWriter, r *http.Request, f *File) error

func (fn HandlerFunc) ServeFile(w http.ResponseWriter, r *http.Request, f *File) error {
	return fn(w, r, f)
}

// Handlers selects a Handler by the content class of a file.
// Lookups take a read slot; Register takes the write side.
type Handlers struct {
	lock     *locks.SpinRWLock
	slots    sync.Pool
	byClass  map[storage.Class]Handler
	fallback Handler
}

// NewHandlers returns a registry with the default handler per class.
func NewHandlers() *Handlers {
	h := &Handlers{
		lock: locks.NewSpinRWLock(runtime.GOMAXPROCS(0) * 4),
		byClass: map[storage.Class]Handler{
			storage.ClassImage:    Inline("private, max-age=86400"),
			storage.ClassDocument: Inline("private, no-cache"),
			storage.ClassVideo:    Inline("private, no-transform"),
			storage.ClassAudio:    Inline("private, no-transform"),
			storage.ClassOther:    Attachment(),
		},
		fallback: Attachment(),
	}
	return h
}

func (h *Handlers) slot() *locks.Slot {
	if s, ok := h.slots.Get().(*locks.Slot); ok {
		return s
	}
	for {
		s, err := h.lock.Slot()
		if err == nil {
			return s
		}
		// Every slot is in use by a concurrent lookup; they are short.
		runtime.Gosched()
	}
}

// Register sets the handler for a class. A nil handler restores the fallback.
func (h *Handlers) Register(class storage.Class, handler Handler) {
	s := h.slot()
	defer h.slots.Put(s)

	s.Lock()
	defer s.Unlock()
	if handler == nil {
		delete(h.byClass, class)
		return
	}
	h.byClass[class] = handler
}

// For returns the handler for the content class of f.
func (h *Handlers) For(f *File) Handler {
	return h.ForClass(storage.ClassOf(f.ContentType()))
}

// ForClass returns the handler registered for class.
func (h *Handlers) ForClass(class storage.Class) Handler {
	s := h.slot()
	defer h.slots.Put(s)

	s.RLock()
	handler, ok := h.byClass[class]
	s.RUnlock()

	if !ok {
		return h.fallback
	}
	return handler
}

// Serve writes f with the handler for its class.
func (h *Handlers) Serve(w http.ResponseWriter, r *http.Request, f *File) error {
	return h.For(f).ServeFile(w, r, f)
}

// Inline streams content for display in the browser. Range and conditional
// requests are handled by http.ServeContent.
func Inline(cacheControl string) Handler {
	return HandlerFunc(func(w http.ResponseWriter, r *http.Request, f *File) error {
		return serve(w, r, f, cacheControl, "inline")
	})
}

// Attachment streams content as a download.
func Attachment() Handler {
	return HandlerFunc(func(w http.ResponseWriter, r *http.Request, f *File) error {
		return serve(w, r, f, "private, no-cache", "attachment")
	})
}

func serve(w http.ResponseWriter, r *http.Request, f *File, cacheControl, disposition string) error {
	data, err := f.Content(r.Context())
	if err != nil {
		return err
	}

	header := w.Header()
	header.Set("Content-Type", f.ContentType())
	header.Set("Content-Disposition", mime.FormatMediaType(disposition, map[string]string{"filename": f.Name()}))
	header.Set("X-Content-Type-Options", "nosniff")
	if cacheControl != "" {
		header.Set("Cache-Control", cacheControl)
	}
	if f.node.BlobKey != "" {
		header.Set("ETag", fmt.Sprintf("%q", f.node.BlobKey))
	}

	http.ServeContent(w, r, f.Name(), f.ModTime(), bytes.NewReader(data))
	return nil
}
