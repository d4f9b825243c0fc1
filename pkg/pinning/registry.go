package pinning

import (
	"sync/atomic"
	"weak"
)

// Prunable is a cache the coordinator can sweep.
type Prunable interface {
	// RemoveCollected drops entries whose values were collected and
	// returns how many were removed.
	RemoveCollected() int
	Name() string
}

type node struct {
	resolve func() Prunable
	next    *node
}

// registry is a lock-free stack of weakly held prunables. A sweep takes the
// whole stack, resolves each handle and pushes the live ones back.
type registry struct {
	head atomic.Pointer[node]
	size atomic.Int64
}

func (r *registry) push(resolve func() Prunable) {
	n := &node{resolve: resolve}
	for {
		head := r.head.Load()
		n.next = head
		if r.head.CompareAndSwap(head, n) {
			return
		}
	}
}

func (r *registry) take() *node {
	return r.head.Swap(nil)
}

// Register adds target to the coordinator's sweep set without keeping it
// alive. Once target is collected it is dropped on the next sweep.
func Register[T any, P interface {
	*T
	Prunable
}](c *Coordinator, target P) {
	wp := weak.Make((*T)(target))
	c.registry.push(func() Prunable {
		if v := wp.Value(); v != nil {
			return P(v)
		}
		return nil
	})
	c.registry.size.Add(1)
	c.logger.Debug("cache registered for sweeping", "cache", target.Name())
}
