// Package weakcache provides a keyed cache of weakly referenced values with
// single-flight construction per key.
//
// The cache itself never keeps a value alive. Get pins every value it returns
// in a shared pinning.Pool, so recently used values survive garbage
// collection while cold ones are reclaimed by the runtime. A collected entry
// is rebuilt on the next Get and removed by the next sweep of the
// pinning.Coordinator the cache was registered with.
//
// Basic usage:
//
//	pool := pinning.NewPool()
//	coord := pinning.NewCoordinator()
//
//	files, err := weakcache.New(pool, coord,
//		func(ctx context.Context, path string, node vfs.Node) (*vfs.File, error) {
//			return vfs.NewFile(node, blobs), nil
//		},
//		weakcache.WithName("files"),
//	)
//	if err != nil {
//		return err
//	}
//
//	f, err := files.Get(ctx, "/photos/cat.jpg", node)
//
// Concurrent Get calls for the same key wait for one factory call and share
// its result. Factory errors are returned as-is and not cached, so the next
// Get tries again.
//
// Values implementing io.Closer are closed when the cache drops them through
// Set, Remove or Clear. Values collected by the runtime are not closed; use
// runtime.AddCleanup on the value for resources that must be released.
//
// WithWeigher charges each value's size to the pool's memory budget and
// credits it back when the value is collected:
//
//	weakcache.WithWeigher(func(f *vfs.File) int64 { return f.Size() })
package weakcache
