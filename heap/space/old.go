package space

import (
	"sync"

	"github.com/joshuapare/regionheap/heap/object"
	"github.com/joshuapare/regionheap/heap/region"
	"github.com/joshuapare/regionheap/heap/sweep"
	"github.com/joshuapare/regionheap/internal/format"
)

// OldSpace holds promoted and directly allocated long-lived objects. It is
// swept in place: dead ranges of regions that still hold live objects are
// reused through a free list, empty regions are retired back to the table.
//
// Allocation is safe for concurrent use; collector threads promote into
// it while the collector thread walks Regions.
type OldSpace struct {
	LinearSpace

	mu   sync.Mutex
	free FreeList
}

// NewOldSpace returns an empty old space.
func NewOldSpace(table *region.Table, maximum int) *OldSpace {
	return &OldSpace{
		LinearSpace: newLinearSpace(KindOld, table, region.FlagOld, maximum, maximum),
	}
}

// Allocate serves size bytes from the free list, falling back to bumping
// and expanding.
func (s *OldSpace) Allocate(size int, isPromoted bool) (region.Addr, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if addr, ok := s.allocateFree(size); ok {
		return addr, nil
	}
	return s.LinearSpace.Allocate(size, isPromoted)
}

// AllocateSync is the path used by promotion allocators.
func (s *OldSpace) AllocateSync(size int) (region.Addr, error) {
	return s.Allocate(size, true)
}

// allocateFree carves size bytes from the front of a free range. Both the
// carved block and the remainder are left as fillers so the region stays
// walkable until the caller writes its object.
func (s *OldSpace) allocateFree(size int) (region.Addr, bool) {
	if size <= 0 || size&format.WordMask != 0 {
		return region.Null, false
	}
	rng, ok := s.free.take(size)
	if !ok {
		return region.Null, false
	}
	r := s.table.Lookup(rng.Off)
	object.WriteFiller(r, rng.Off, size)
	if rest := rng.Len - size; rest > 0 {
		tail := rng.Off + region.Addr(size)
		object.WriteFiller(r, tail, rest)
		s.free.add(sweep.Range{Off: tail, Len: rest})
	}
	return rng.Off, true
}

// Refill replaces the free list with swept ranges. Ranges outside the
// space's current regions are ignored.
func (s *OldSpace) Refill(ranges []sweep.Range) {
	s.mu.Lock()
	defer s.mu.Unlock()
	owned := make(map[*region.Region]bool, len(s.regions))
	for _, r := range s.regions {
		owned[r] = true
	}
	s.free.Reset()
	for _, rng := range ranges {
		if owned[s.table.Lookup(rng.Off)] {
			s.free.add(rng)
		}
	}
}

// FreeSize returns the bytes available on the free list.
func (s *OldSpace) FreeSize() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.free.Size()
}

// Regions returns a snapshot of the space's regions.
func (s *OldSpace) Regions() []*region.Region {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.LinearSpace.Regions()
}

// RetireRegion frees a region the sweeper found empty.
func (s *OldSpace) RetireRegion(r *region.Region) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.free.dropRegion(r)
	return s.RemoveRegion(r)
}

// AliveObjectSize sums the live-byte counters of every region.
func (s *OldSpace) AliveObjectSize() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.regions {
		n += r.AliveObject()
	}
	return n
}
