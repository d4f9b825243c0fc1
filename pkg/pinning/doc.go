// Package pinning keeps recently used cache values strongly reachable and
// coordinates cleanup of weak caches after garbage collection.
//
// # Pool
//
// A Pool is a fixed-size ring of strong references. Pin writes into the next
// slot in round-robin order and releases whatever the slot held, so a value
// stays alive for roughly Capacity pins after it was last touched. Values
// that implement Aware are told each time they enter or leave a slot;
// embedding Counter is the usual way to do that:
//
//	type Document struct {
//		pinning.Counter
//		Body []byte
//	}
//
//	pool := pinning.NewPool(
//		pinning.WithCapacity(32768),
//		pinning.WithMaxMemory(256<<20),
//	)
//	defer pool.Close()
//
//	doc := &Document{Body: body}
//	_ = pool.Pin(doc)
//	doc.Pinned() // true
//
// Memory accounting is cooperative. Owners report allocations with
// AccountMemory(+n) and releases with AccountMemory(-n). When a positive
// delta pushes the total over the budget, the pool clears slots in ring
// order until the total drops or every slot has been visited once.
//
// Resize swaps in an empty ring and drains the old one in the background.
// Resizing to zero disables the pool; Pin then returns ErrNotConfigured.
//
// # Coordinator
//
// A Coordinator holds caches weakly and calls RemoveCollected on each of them
// when the collection generation moves:
//
//	coord := pinning.NewCoordinator(
//		pinning.WithSchedule("@every 15s"),
//		pinning.WithCoordinatorLogger(logger),
//	)
//	pinning.Register(coord, cache)
//
//	if err := coord.Start(ctx); err != nil {
//		return err
//	}
//	defer coord.Stop(context.Background())
//
// Only one sweep runs at a time. Triggers that arrive while a sweep is in
// flight queue a single follow-up. A cache that panics during a sweep is
// logged and does not stop the others.
package pinning
