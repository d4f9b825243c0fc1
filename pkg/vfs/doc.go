// Package vfs serves files of mounted directory trees.
//
// A Directory resolves metadata through a Store, reads content from a
// storage.Blobs backend and keeps three weak caches on top: file containers,
// per-user permissions and owner ids. All of them share the process pin pool,
// so hot files keep their content in memory while cold ones are collected.
//
//	dir, err := vfs.NewDirectory(pool, coord, vfs.NewPGStore(db), blobs,
//		vfs.WithLogger(logger),
//	)
//	if err != nil {
//		return err
//	}
//
//	if err := dir.Authorize(ctx, "/alice/cat.jpg", userID, vfs.PermRead); err != nil {
//		return err // vfs.ErrPermissionDenied
//	}
//	f, err := dir.Open(ctx, "/alice/cat.jpg")
//	if err != nil {
//		return err
//	}
//	return handlers.Serve(w, r, f)
//
// File content is loaded once under a timeboxed lock. A load running past
// the configured timeout is cancelled and logged.
//
// Handlers picks a Handler by the content class of a file (image, document,
// video, audio, other). Inline streams for display; Attachment forces a
// download. Both support range requests.
package vfs
