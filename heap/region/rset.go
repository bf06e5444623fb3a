package region

import (
	"fmt"

	"github.com/joshuapare/regionheap/internal/format"
)

// RememberedSet records the slots of one region whose pointer crosses a
// region or generation boundary. A bit is indexed by
// (slot & RegionMask) >> WordLog, so one bit covers one aligned slot.
//
// No bit is ever set for a slot outside the owning region.
type RememberedSet struct {
	begin Addr
	end   Addr
	bits  *GCBitset
}

// CreateRememberedSet returns an empty set covering [begin, begin+size).
func CreateRememberedSet(begin Addr, size int) *RememberedSet {
	return &RememberedSet{
		begin: begin,
		end:   begin + Addr(size),
		bits:  NewGCBitset(size),
	}
}

func (s *RememberedSet) index(slot Addr) int {
	if slot < s.begin || slot >= s.end {
		panic(fmt.Sprintf("region: slot %#x outside remembered set [%#x,%#x)", uint64(slot), uint64(s.begin), uint64(s.end)))
	}
	return int((uint64(slot) & format.RegionMask) >> format.WordLog)
}

// Insert records slot. Single-writer only (the mutator's write barrier).
func (s *RememberedSet) Insert(slot Addr) {
	s.bits.Set(s.index(slot))
}

// AtomicInsert records slot; safe against concurrent inserts.
func (s *RememberedSet) AtomicInsert(slot Addr) {
	s.bits.AtomicSet(s.index(slot))
}

// Contains reports whether slot is recorded.
func (s *RememberedSet) Contains(slot Addr) bool {
	return s.bits.Test(s.index(slot))
}

// ClearRange drops every slot in [start, end). Used after sweeping a
// sub-range of the owning region.
func (s *RememberedSet) ClearRange(start, end Addr) {
	if start < s.begin {
		start = s.begin
	}
	if end > s.end {
		end = s.end
	}
	if start >= end {
		return
	}
	from := int((start - s.begin) >> format.WordLog)
	to := int((end - s.begin + format.WordMask) >> format.WordLog)
	s.bits.ClearRange(from, to)
}

// ClearAll drops every slot.
func (s *RememberedSet) ClearAll() {
	s.bits.ClearAll()
}

// Count returns the number of recorded slots.
func (s *RememberedSet) Count() int {
	return s.bits.Count()
}

// Size returns the byte footprint of the backing bitset.
func (s *RememberedSet) Size() int {
	return s.bits.Size()
}

// IterateAllMarkedBits visits every recorded slot in address order. A
// visitor returning false removes the slot from the set. The sequence is
// restartable as long as nothing clears the set between passes.
func (s *RememberedSet) IterateAllMarkedBits(visitor func(slot Addr) bool) {
	s.bits.Iterate(func(idx int) bool {
		return visitor(s.begin + Addr(idx)<<format.WordLog)
	})
}
