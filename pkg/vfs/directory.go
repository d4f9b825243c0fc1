package vfs

import (
	"context"
	"errors"
	"iter"
	"log/slog"

	"github.com/dmitrymomot/homecloud/pkg/locks"
	"github.com/dmitrymomot/homecloud/pkg/pinning"
	"github.com/dmitrymomot/homecloud/pkg/storage"
	"github.com/dmitrymomot/homecloud/pkg/weakcache"
)

// Permission is a cached grant of rights on a path to a user.
type Permission struct {
	Path string
	User string
	Perm Perm
}

// Owner is a cached owner id of a path.
type Owner struct {
	Path string
	ID   string
}

type permKey struct {
	path string
	user string
}

// Directory serves files of one mounted tree. File containers, permissions
// and owner ids are kept in weak caches that share the process pin pool.
type Directory struct {
	store    Store
	blobs    storage.Blobs
	loadOpts []locks.MutexOption
	files    *weakcache.Cache[string, File, Node]
	perms    *weakcache.Cache[permKey, Permission, struct{}]
	owners   *weakcache.Cache[string, Owner, struct{}]
	logger   *slog.Logger
}

// NewDirectory creates a directory backed by store and blobs.
func NewDirectory(
	pool *pinning.Pool,
	coord *pinning.Coordinator,
	store Store,
	blobs storage.Blobs,
	opts ...Option,
) (*Directory, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	if blobs == nil {
		return nil, ErrBlobsRequired
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	d := &Directory{
		store:  store,
		blobs:  blobs,
		logger: o.logger,
	}

	d.loadOpts = []locks.MutexOption{
		locks.WithHoldTimeout(o.loadTimeout),
		locks.WithLogger(o.logger),
	}

	var err error
	d.files, err = weakcache.New(pool, coord,
		func(_ context.Context, _ string, node Node) (*File, error) {
			return newFile(node, blobs, d.loadOpts...), nil
		},
		weakcache.WithName("vfs.files"),
		weakcache.WithLogger(o.logger),
		weakcache.WithWeigher(func(f *File) int64 { return f.Size() }),
	)
	if err != nil {
		return nil, err
	}

	d.perms, err = weakcache.New(pool, coord,
		func(ctx context.Context, k permKey, _ struct{}) (*Permission, error) {
			perm, err := store.Grant(ctx, k.path, k.user)
			if err != nil {
				return nil, err
			}
			return &Permission{Path: k.path, User: k.user, Perm: perm}, nil
		},
		weakcache.WithName("vfs.permissions"),
		weakcache.WithLogger(o.logger),
	)
	if err != nil {
		return nil, err
	}

	d.owners, err = weakcache.New(pool, coord,
		func(ctx context.Context, p string, _ struct{}) (*Owner, error) {
			id, err := store.Owner(ctx, p)
			if err != nil {
				return nil, err
			}
			return &Owner{Path: p, ID: id}, nil
		},
		weakcache.WithName("vfs.owners"),
		weakcache.WithLogger(o.logger),
	)
	if err != nil {
		return nil, err
	}

	return d, nil
}

// Open returns the file container for name. A cached container whose
// metadata no longer matches the store is replaced and closed.
//
// The returned container may still be closed by Invalidate or a later
// replacement; File.Content then fails with ErrClosed and the caller should
// open the name again.
func (d *Directory) Open(ctx context.Context, name string) (*File, error) {
	p, err := Clean(name)
	if err != nil {
		return nil, err
	}

	node, err := d.store.Stat(ctx, p)
	if err != nil {
		return nil, err
	}
	if node.IsDir {
		return nil, ErrIsDirectory
	}

	for {
		f, err := d.files.Get(ctx, p, node)
		if err != nil {
			return nil, err
		}
		if f.matches(node) {
			return f, nil
		}

		// Concurrent openers of the same stale container race here; the
		// loser picks up the winner's container on the next Get.
		fresh := newFile(node, d.blobs, d.loadOpts...)
		if d.files.CompareAndSwap(p, f, fresh) {
			d.logger.DebugContext(ctx, "replaced stale file container", slog.String("path", p))
			return fresh, nil
		}
	}
}

// OwnerOf returns the owner id of name.
func (d *Directory) OwnerOf(ctx context.Context, name string) (string, error) {
	p, err := Clean(name)
	if err != nil {
		return "", err
	}
	o, err := d.owners.Get(ctx, p, struct{}{})
	if err != nil {
		return "", err
	}
	return o.ID, nil
}

// Authorize returns nil when user may access name with the wanted rights.
// Owners hold every right on their paths.
func (d *Directory) Authorize(ctx context.Context, name, user string, want Perm) error {
	p, err := Clean(name)
	if err != nil {
		return err
	}

	owner, err := d.OwnerOf(ctx, p)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	if user != "" && owner == user {
		return nil
	}

	perm, err := d.perms.Get(ctx, permKey{path: p, user: user}, struct{}{})
	if err != nil {
		return err
	}
	if !perm.Perm.Has(want) {
		return ErrPermissionDenied
	}
	return nil
}

// Invalidate drops every cached item for name and disposes the cached file.
func (d *Directory) Invalidate(name string) {
	p, err := Clean(name)
	if err != nil {
		return
	}

	d.files.Remove(p)
	d.owners.Remove(p)

	var stale []permKey
	for k := range d.perms.All() {
		if k.path == p {
			stale = append(stale, k)
		}
	}
	for _, k := range stale {
		d.perms.Remove(k)
	}
}

// Files iterates over live file containers.
func (d *Directory) Files() iter.Seq[*File] {
	return d.files.Values()
}

// Stats reports the number of entries per cache.
func (d *Directory) Stats() map[string]int {
	return map[string]int{
		d.files.Name():  d.files.Len(),
		d.perms.Name():  d.perms.Len(),
		d.owners.Name(): d.owners.Len(),
	}
}

// Close disposes every cached file container.
func (d *Directory) Close() error {
	d.files.Clear()
	d.perms.Clear()
	d.owners.Clear()
	return nil
}
