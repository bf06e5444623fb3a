package region

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/joshuapare/regionheap/internal/format"
	"github.com/joshuapare/regionheap/internal/native"
)

// Table is the registry index of every live region. Lookup is lock-free;
// Allocate and Free serialize on a mutex.
//
// Spaces hold a *Table rather than a back-pointer to the heap: it is the
// only capability they need to acquire and release regions.
type Table struct {
	alloc native.AreaAllocator
	slots []atomic.Pointer[Region]

	mu   sync.Mutex
	free []int // recycled slot indexes, LIFO
	next int   // first never-used slot

	live atomic.Int64
}

// NewTable returns a table able to hold maxRegions regions at once.
func NewTable(alloc native.AreaAllocator, maxRegions int) *Table {
	if maxRegions <= 0 {
		maxRegions = 1
	}
	return &Table{
		alloc: alloc,
		slots: make([]atomic.Pointer[Region], maxRegions),
	}
}

// Capacity returns the maximum number of simultaneously live regions.
func (t *Table) Capacity() int { return len(t.slots) }

// Count returns the number of live regions.
func (t *Table) Count() int { return int(t.live.Load()) }

// Allocate acquires a zeroed region with the given flags.
func (t *Table) Allocate(flags Flag) (*Region, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var idx int
	switch {
	case len(t.free) > 0:
		idx = t.free[len(t.free)-1]
		t.free = t.free[:len(t.free)-1]
	case t.next < len(t.slots):
		idx = t.next
		t.next++
	default:
		return nil, ErrTableFull
	}

	mem, err := t.alloc.Allocate(format.RegionSize)
	if err != nil {
		t.free = append(t.free, idx)
		return nil, fmt.Errorf("allocate region: %w", err)
	}
	r := newRegion(slotBase(idx), mem, flags)
	t.slots[idx].Store(r)
	t.live.Add(1)
	return r, nil
}

// Free unregisters r, destroys its remembered sets and returns its memory.
func (t *Table) Free(r *Region) error {
	idx, ok := slotIndex(r.begin)
	if !ok || idx >= len(t.slots) {
		return fmt.Errorf("%w: %s", ErrNotOwned, r)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.slots[idx].Load() != r {
		return fmt.Errorf("%w: %s", ErrNotOwned, r)
	}
	t.slots[idx].Store(nil)
	t.free = append(t.free, idx)
	t.live.Add(-1)

	r.SetFlag(FlagUnreachable)
	r.DeleteCrossRegionRSet()
	r.DeleteOldToNewRSet()
	mem := r.mem
	r.mem = nil
	return t.alloc.Free(mem)
}

// Lookup returns the live region containing addr, or nil.
func (t *Table) Lookup(addr Addr) *Region {
	idx, ok := slotIndex(addr)
	if !ok || idx >= len(t.slots) {
		return nil
	}
	return t.slots[idx].Load()
}

// Iterate visits live regions in address order.
func (t *Table) Iterate(visitor func(*Region)) {
	for i := range t.slots {
		if r := t.slots[i].Load(); r != nil {
			visitor(r)
		}
	}
}

// Close frees every live region.
func (t *Table) Close() error {
	var first error
	for i := range t.slots {
		if r := t.slots[i].Load(); r != nil {
			if err := t.Free(r); err != nil && first == nil {
				first = err
			}
		}
	}
	return first
}

func slotBase(idx int) Addr {
	return Addr(format.HeapBase + uint64(idx)<<format.RegionSizeLog)
}

func slotIndex(addr Addr) (int, bool) {
	if addr < format.HeapBase {
		return 0, false
	}
	return int((uint64(addr) - format.HeapBase) >> format.RegionSizeLog), true
}
