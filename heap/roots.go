package heap

import (
	"fmt"

	"github.com/joshuapare/regionheap/heap/region"
)

// Root is a handle to a strong root slot held outside the heap.
type Root int

type rootTable struct {
	slots []region.Addr
	live  []bool
	free  []int
}

func (t *rootTable) add(v region.Addr) Root {
	if n := len(t.free); n > 0 {
		i := t.free[n-1]
		t.free = t.free[:n-1]
		t.slots[i], t.live[i] = v, true
		return Root(i)
	}
	t.slots = append(t.slots, v)
	t.live = append(t.live, true)
	return Root(len(t.slots) - 1)
}

func (t *rootTable) valid(r Root) bool {
	return int(r) >= 0 && int(r) < len(t.slots) && t.live[r]
}

func (t *rootTable) release(r Root) {
	t.slots[r], t.live[r] = region.Null, false
	t.free = append(t.free, int(r))
}

func (t *rootTable) iterate(visitor func(i int, v region.Addr)) {
	for i, v := range t.slots {
		if t.live[i] && v != region.Null {
			visitor(i, v)
		}
	}
}

func (t *rootTable) count() int { return len(t.slots) - len(t.free) }

// NewRoot registers addr as a strong root and returns its handle.
func (h *Heap) NewRoot(addr region.Addr) Root {
	r := h.roots.add(addr)
	h.marker.shade(addr)
	return r
}

// Root returns the current value of a root. Collections update roots in
// place, so the value may differ from the one registered.
func (h *Heap) Root(r Root) region.Addr {
	if !h.roots.valid(r) {
		return region.Null
	}
	return h.roots.slots[r]
}

// SetRoot replaces the value of a root.
func (h *Heap) SetRoot(r Root, addr region.Addr) error {
	if !h.roots.valid(r) {
		return fmt.Errorf("%w: %d", ErrInvalidRoot, r)
	}
	h.roots.slots[r] = addr
	h.marker.shade(addr)
	return nil
}

// ReleaseRoot drops a root.
func (h *Heap) ReleaseRoot(r Root) error {
	if !h.roots.valid(r) {
		return fmt.Errorf("%w: %d", ErrInvalidRoot, r)
	}
	h.roots.release(r)
	return nil
}

// RootCount returns the number of registered roots.
func (h *Heap) RootCount() int { return h.roots.count() }
