// Package space groups regions into the heap's spaces. Every variant embeds
// LinearSpace and shares its bump-pointer allocation contract:
//
//   - SemiSpace: one half of the young generation.
//   - OldSpace: promotion target, swept in place.
//   - SnapshotSpace: immortal objects deserialized from a snapshot.
//   - ReadOnlySpace: immortal built-ins behind a logical read-only flag.
//
// Allocate never collects or retries. A failed allocation is returned as
// ErrNoSpace and escalation is left to the heap.
package space

import (
	"errors"
	"fmt"

	"github.com/joshuapare/regionheap/heap/object"
	"github.com/joshuapare/regionheap/heap/region"
	"github.com/joshuapare/regionheap/internal/format"
)

// Kind identifies a space variant.
type Kind uint8

const (
	KindSemi Kind = iota
	KindOld
	KindSnapshot
	KindReadOnly
)

func (k Kind) String() string {
	switch k {
	case KindSemi:
		return "semi"
	case KindOld:
		return "old"
	case KindSnapshot:
		return "snapshot"
	case KindReadOnly:
		return "readonly"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Space is the allocation contract shared by every variant.
type Space interface {
	Kind() Kind
	Allocate(size int, isPromoted bool) (region.Addr, error)
	Regions() []*region.Region
	RegionCount() int
	CommittedSize() int
	HeapObjectSize() int
	IterateOverObjects(visitor func(r *region.Region, addr region.Addr, h object.Header))
}

// LinearSpace is a list of regions plus a bump pointer into the last one.
// It is not synchronized; variants add locking where the collector needs it.
type LinearSpace struct {
	kind  Kind
	table *region.Table
	flags region.Flag

	regions []*region.Region
	current *region.Region
	top     region.Addr
	end     region.Addr

	initialCapacity int
	maximumCapacity int
	waterLine       region.Addr
}

func newLinearSpace(kind Kind, table *region.Table, flags region.Flag, initial, maximum int) LinearSpace {
	if maximum < initial {
		maximum = initial
	}
	return LinearSpace{
		kind:            kind,
		table:           table,
		flags:           flags,
		initialCapacity: format.AlignRegion(initial),
		maximumCapacity: format.AlignRegion(maximum),
	}
}

// Kind returns the space variant.
func (s *LinearSpace) Kind() Kind { return s.kind }

// Table returns the region table backing the space.
func (s *LinearSpace) Table() *region.Table { return s.table }

// InitialCapacity returns the current (adjustable) capacity.
func (s *LinearSpace) InitialCapacity() int { return s.initialCapacity }

// MaximumCapacity returns the hard capacity limit.
func (s *LinearSpace) MaximumCapacity() int { return s.maximumCapacity }

// SetInitialCapacity sets the adjustable capacity, clamped to the maximum.
func (s *LinearSpace) SetInitialCapacity(n int) {
	s.initialCapacity = min(format.AlignRegion(n), s.maximumCapacity)
}

// Top returns the bump pointer.
func (s *LinearSpace) Top() region.Addr { return s.top }

// End returns the limit of the current region.
func (s *LinearSpace) End() region.Addr { return s.end }

// Allocate bumps the top pointer by size bytes. Mutator allocations may
// expand up to the adjustable capacity; promoted (collector) allocations up
// to the maximum.
func (s *LinearSpace) Allocate(size int, isPromoted bool) (region.Addr, error) {
	if size <= 0 || size&format.WordMask != 0 {
		panic(fmt.Sprintf("space: bad allocation size %d", size))
	}
	if size > format.RegionSize {
		return region.Null, fmt.Errorf("%w: %d bytes", ErrTooLarge, size)
	}
	if addr, ok := s.bump(size); ok {
		return addr, nil
	}
	if err := s.Expand(isPromoted); err != nil {
		return region.Null, err
	}
	addr, _ := s.bump(size)
	return addr, nil
}

func (s *LinearSpace) bump(size int) (region.Addr, bool) {
	if s.current == nil || s.top+region.Addr(size) > s.end {
		return region.Null, false
	}
	addr := s.top
	s.top += region.Addr(size)
	s.current.SetHighWaterMark(s.top)
	return addr, true
}

// Expand acquires one more region and makes it current.
func (s *LinearSpace) Expand(isPromoted bool) error {
	limit := s.initialCapacity
	if isPromoted {
		limit = s.maximumCapacity
	}
	if s.CommittedSize()+format.RegionSize > limit {
		return fmt.Errorf("%w: %s space at %d of %d bytes: %w",
			ErrNoSpace, s.kind, s.CommittedSize(), limit, ErrCapacityExhausted)
	}
	r, err := s.table.Allocate(s.flags)
	if err != nil {
		return fmt.Errorf("%w: %s space: %w", ErrNoSpace, s.kind, err)
	}
	s.regions = append(s.regions, r)
	s.current = r
	s.top = r.Begin()
	s.end = r.End()
	return nil
}

// Regions returns a snapshot of the space's regions in allocation order.
func (s *LinearSpace) Regions() []*region.Region {
	out := make([]*region.Region, len(s.regions))
	copy(out, s.regions)
	return out
}

// RegionCount returns the number of regions.
func (s *LinearSpace) RegionCount() int { return len(s.regions) }

// CommittedSize returns the bytes of memory held by the space.
func (s *LinearSpace) CommittedSize() int { return len(s.regions) * format.RegionSize }

// HeapObjectSize returns bytes allocated in the space, fillers included.
func (s *LinearSpace) HeapObjectSize() int {
	n := 0
	for _, r := range s.regions {
		n += int(r.HighWaterMark() - r.Begin())
	}
	return n
}

// IterateOverObjects walks every object and filler in allocation order.
func (s *LinearSpace) IterateOverObjects(visitor func(r *region.Region, addr region.Addr, h object.Header)) {
	for _, r := range s.regions {
		object.IterateRegion(s.table, r, func(addr region.Addr, h object.Header) {
			visitor(r, addr, h)
		})
	}
}

// RemoveRegion unregisters r from the space and frees it.
func (s *LinearSpace) RemoveRegion(r *region.Region) error {
	for i, cand := range s.regions {
		if cand != r {
			continue
		}
		s.regions = append(s.regions[:i], s.regions[i+1:]...)
		if s.current == r {
			s.current, s.top, s.end = nil, region.Null, region.Null
		}
		return s.table.Free(r)
	}
	return fmt.Errorf("space: %s not in %s space", r, s.kind)
}

// ReclaimRegions frees every region and resets the allocator.
func (s *LinearSpace) ReclaimRegions() error {
	var errs []error
	for _, r := range s.regions {
		if err := s.table.Free(r); err != nil {
			errs = append(errs, err)
		}
	}
	s.regions = nil
	s.current, s.top, s.end = nil, region.Null, region.Null
	s.waterLine = region.Null
	return errors.Join(errs...)
}

// SetWaterLine records the current top. Objects allocated before it have
// survived a collection: whole regions get FlagBelowAgeMark, the current
// region an age mark at top.
func (s *LinearSpace) SetWaterLine() {
	s.waterLine = s.top
	for _, r := range s.regions {
		if r == s.current {
			r.ClearFlag(region.FlagBelowAgeMark)
			r.SetAgeMark(s.top)
			continue
		}
		r.SetFlag(region.FlagBelowAgeMark)
	}
}

// GetWaterLine returns the top recorded by SetWaterLine.
func (s *LinearSpace) GetWaterLine() region.Addr { return s.waterLine }

// AllocatedSinceWaterLine returns bytes allocated after the water line.
func (s *LinearSpace) AllocatedSinceWaterLine() int {
	n := 0
	for _, r := range s.regions {
		if r.HasFlag(region.FlagBelowAgeMark) {
			continue
		}
		from := r.Begin()
		if am := r.AgeMark(); am > from {
			from = am
		}
		if hw := r.HighWaterMark(); hw > from {
			n += int(hw - from)
		}
	}
	return n
}

var (
	_ Space = (*SemiSpace)(nil)
	_ Space = (*OldSpace)(nil)
	_ Space = (*SnapshotSpace)(nil)
	_ Space = (*ReadOnlySpace)(nil)
)
