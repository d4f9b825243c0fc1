package vfs

import (
	"context"
	"path"
	"strings"
	"time"
)

// Node is the metadata of one file or directory.
type Node struct {
	Path        string
	Owner       string
	BlobKey     string
	ContentType string
	Size        int64
	ModTime     time.Time
	IsDir       bool
}

// Perm is a set of access rights granted on a path.
type Perm uint8

const (
	PermRead Perm = 1 << iota
	PermWrite
	PermManage

	PermNone Perm = 0
	PermAll       = PermRead | PermWrite | PermManage
)

// Has reports whether p includes every right in want.
func (p Perm) Has(want Perm) bool {
	return p&want == want
}

func (p Perm) String() string {
	if p == PermNone {
		return "none"
	}
	var parts []string
	if p.Has(PermRead) {
		parts = append(parts, "read")
	}
	if p.Has(PermWrite) {
		parts = append(parts, "write")
	}
	if p.Has(PermManage) {
		parts = append(parts, "manage")
	}
	return strings.Join(parts, "|")
}

// Store resolves file metadata, ownership and grants.
type Store interface {
	// Stat returns the node at path or ErrNotFound.
	Stat(ctx context.Context, path string) (Node, error)

	// Owner returns the owner id of path or ErrNotFound.
	Owner(ctx context.Context, path string) (string, error)

	// Grant returns the rights user holds on path. No grant is PermNone.
	Grant(ctx context.Context, path, user string) (Perm, error)
}

// Clean normalizes name to an absolute slash-separated path.
func Clean(name string) (string, error) {
	if name == "" || strings.ContainsRune(name, 0) {
		return "", ErrInvalidPath
	}
	for _, seg := range strings.Split(name, "/") {
		if seg == ".." {
			return "", ErrInvalidPath
		}
	}
	return path.Clean("/" + name), nil
}
