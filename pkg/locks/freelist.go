package locks

import "sync/atomic"

// freeList is a lock-free stack of small integer ids.
//
// The head word packs a generation tag in the upper 32 bits and id+1 in the
// lower 32 bits (0 means empty). Bumping the tag on every successful CAS
// keeps a stale pop from succeeding after the same id was popped and pushed
// back by another goroutine.
type freeList struct {
	next []atomic.Uint32 // id+1 of the entry below, 0 at the bottom
	head atomic.Uint64
}

func newFreeList(size int) *freeList {
	f := &freeList{next: make([]atomic.Uint32, size)}
	for id := size - 1; id >= 0; id-- {
		f.push(uint32(id))
	}
	return f
}

func (f *freeList) push(id uint32) {
	for {
		old := f.head.Load()
		f.next[id].Store(uint32(old))
		if f.head.CompareAndSwap(old, bumpTag(old)|uint64(id+1)) {
			return
		}
	}
}

func (f *freeList) pop() (uint32, bool) {
	for {
		old := f.head.Load()
		top := uint32(old)
		if top == 0 {
			return 0, false
		}
		below := f.next[top-1].Load()
		if f.head.CompareAndSwap(old, bumpTag(old)|uint64(below)) {
			return top - 1, true
		}
	}
}

// len walks the stack; only meaningful when no goroutine mutates it.
func (f *freeList) len() int {
	n := 0
	for top := uint32(f.head.Load()); top != 0; top = f.next[top-1].Load() {
		n++
	}
	return n
}

func bumpTag(word uint64) uint64 {
	return (word>>32 + 1) << 32
}
