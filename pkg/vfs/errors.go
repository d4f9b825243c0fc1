package vfs

import "errors"

var (
	ErrNotFound         = errors.New("vfs: not found")
	ErrPermissionDenied = errors.New("vfs: permission denied")
	ErrIsDirectory      = errors.New("vfs: is a directory")
	ErrInvalidPath      = errors.New("vfs: invalid path")
	ErrClosed           = errors.New("vfs: file closed")
	ErrStoreRequired    = errors.New("vfs: store is required")
	ErrBlobsRequired    = errors.New("vfs: blob store is required")
)
