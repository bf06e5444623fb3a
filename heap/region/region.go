// Package region implements the unit of heap management: a fixed-size,
// region-aligned chunk of memory with a mark bitset and two lazily created
// remembered sets, plus the table that maps addresses back to regions.
//
// Every exported method is safe for concurrent use unless it says otherwise.
// Out-of-range addresses are programming errors and panic.
package region

import (
	"fmt"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/joshuapare/regionheap/internal/format"
)

// Addr is a virtual address in the synthetic heap. Zero is the null reference.
type Addr uint64

// Null is the null reference.
const Null Addr = 0

// Base returns the region-aligned base containing a.
func (a Addr) Base() Addr { return Addr(format.RegionBase(uint64(a))) }

// Offset returns the in-region offset of a.
func (a Addr) Offset() int { return int(uint64(a) & format.RegionMask) }

// Flag is a region attribute bit.
type Flag uint32

const (
	// FlagYoung marks a region of the young generation (either semi space).
	FlagYoung Flag = 1 << iota
	// FlagFromSpace marks the semi space being evacuated by a young GC.
	FlagFromSpace
	// FlagOld marks an old-generation region.
	FlagOld
	// FlagSnapshot marks a snapshot-space region.
	FlagSnapshot
	// FlagReadOnly is the logical read-only bit checked by the write barrier.
	FlagReadOnly
	// FlagBelowAgeMark marks a young region allocated entirely before the
	// last water line; its survivors are promoted.
	FlagBelowAgeMark
	// FlagUnreachable marks a region that has been returned to the table.
	FlagUnreachable
)

var flagNames = []struct {
	f    Flag
	name string
}{
	{FlagYoung, "young"},
	{FlagFromSpace, "from"},
	{FlagOld, "old"},
	{FlagSnapshot, "snapshot"},
	{FlagReadOnly, "readonly"},
	{FlagBelowAgeMark, "aged"},
	{FlagUnreachable, "unreachable"},
}

func (f Flag) String() string {
	s := ""
	for _, fn := range flagNames {
		if f&fn.f != 0 {
			if s != "" {
				s += "|"
			}
			s += fn.name
		}
	}
	if s == "" {
		return "none"
	}
	return s
}

// Region is a contiguous [Begin, End) chunk of heap memory.
type Region struct {
	begin Addr
	end   Addr
	mem   []byte

	flags    atomic.Uint32
	markBits *GCBitset

	rsetMu         sync.Mutex
	crossRegionSet atomic.Pointer[RememberedSet]
	oldToNewSet    atomic.Pointer[RememberedSet]

	aliveObject   atomic.Int64
	highWaterMark atomic.Uint64
	ageMark       atomic.Uint64
}

func newRegion(begin Addr, mem []byte, flags Flag) *Region {
	r := &Region{
		begin:    begin,
		end:      begin + Addr(len(mem)),
		mem:      mem,
		markBits: NewGCBitset(len(mem)),
	}
	r.flags.Store(uint32(flags))
	r.highWaterMark.Store(uint64(begin))
	return r
}

// Begin returns the first address of the region.
func (r *Region) Begin() Addr { return r.begin }

// End returns the address one past the region.
func (r *Region) End() Addr { return r.end }

// Size returns End - Begin.
func (r *Region) Size() int { return int(r.end - r.begin) }

// Contains reports whether addr lies in [Begin, End).
func (r *Region) Contains(addr Addr) bool { return addr >= r.begin && addr < r.end }

func (r *Region) String() string {
	return fmt.Sprintf("region[%#x,%#x %s]", uint64(r.begin), uint64(r.end), r.Flags())
}

// Flags returns the current flag set.
func (r *Region) Flags() Flag { return Flag(r.flags.Load()) }

// HasFlag reports whether every bit of f is set.
func (r *Region) HasFlag(f Flag) bool { return Flag(r.flags.Load())&f == f }

// SetFlag sets f.
func (r *Region) SetFlag(f Flag) {
	for {
		old := r.flags.Load()
		if r.flags.CompareAndSwap(old, old|uint32(f)) {
			return
		}
	}
}

// ClearFlag clears f.
func (r *Region) ClearFlag(f Flag) {
	for {
		old := r.flags.Load()
		if r.flags.CompareAndSwap(old, old&^uint32(f)) {
			return
		}
	}
}

// InYoungGeneration reports whether the region belongs to either semi space.
func (r *Region) InYoungGeneration() bool { return r.HasFlag(FlagYoung) }

// InOldGeneration reports whether the region is old, snapshot or read-only.
func (r *Region) InOldGeneration() bool { return !r.HasFlag(FlagYoung) }

// InFromSpace reports whether the region is being evacuated.
func (r *Region) InFromSpace() bool { return r.HasFlag(FlagFromSpace) }

// IsReadOnly reports the logical read-only bit.
func (r *Region) IsReadOnly() bool { return r.HasFlag(FlagReadOnly) }

func (r *Region) index(addr Addr) int {
	if addr < r.begin || addr >= r.end {
		panic(fmt.Sprintf("region: address %#x outside %s", uint64(addr), r))
	}
	return int(addr-r.begin) >> format.WordLog
}

// AtomicMark marks addr and reports whether this call was the first to do so.
func (r *Region) AtomicMark(addr Addr) bool {
	return r.markBits.AtomicSet(r.index(addr))
}

// ClearMark clears the mark bit of addr.
func (r *Region) ClearMark(addr Addr) {
	r.markBits.Clear(r.index(addr))
}

// Test reports whether addr is marked.
func (r *Region) Test(addr Addr) bool {
	return r.markBits.Test(r.index(addr))
}

// ClearMarkBits resets every mark bit.
func (r *Region) ClearMarkBits() {
	r.markBits.ClearAll()
}

// MarkedCount returns the number of marked addresses.
func (r *Region) MarkedCount() int {
	return r.markBits.Count()
}

// IterateAllMarkedBits visits every marked address in ascending order.
func (r *Region) IterateAllMarkedBits(visitor func(addr Addr)) {
	r.markBits.Iterate(func(idx int) bool {
		visitor(r.begin + Addr(idx)<<format.WordLog)
		return true
	})
}

// GetOrCreateCrossRegionRememberedSet returns the cross-region set, creating
// it on first use. Concurrent callers always observe the same set.
func (r *Region) GetOrCreateCrossRegionRememberedSet() *RememberedSet {
	return r.getOrCreate(&r.crossRegionSet)
}

// GetOrCreateOldToNewRememberedSet returns the old-to-new set, creating it on
// first use. Concurrent callers always observe the same set.
func (r *Region) GetOrCreateOldToNewRememberedSet() *RememberedSet {
	return r.getOrCreate(&r.oldToNewSet)
}

func (r *Region) getOrCreate(p *atomic.Pointer[RememberedSet]) *RememberedSet {
	if s := p.Load(); s != nil {
		return s
	}
	r.rsetMu.Lock()
	defer r.rsetMu.Unlock()
	if s := p.Load(); s != nil {
		return s
	}
	s := CreateRememberedSet(r.begin, r.Size())
	p.Store(s)
	return s
}

// CrossRegionRememberedSet returns the set or nil if never created.
func (r *Region) CrossRegionRememberedSet() *RememberedSet { return r.crossRegionSet.Load() }

// OldToNewRememberedSet returns the set or nil if never created.
func (r *Region) OldToNewRememberedSet() *RememberedSet { return r.oldToNewSet.Load() }

// InsertCrossRegionRSet records slot. Single-writer only.
func (r *Region) InsertCrossRegionRSet(slot Addr) {
	r.GetOrCreateCrossRegionRememberedSet().Insert(slot)
}

// AtomicInsertCrossRegionRSet records slot; safe for concurrent writers.
func (r *Region) AtomicInsertCrossRegionRSet(slot Addr) {
	r.GetOrCreateCrossRegionRememberedSet().AtomicInsert(slot)
}

// InsertOldToNewRSet records slot. Single-writer only.
func (r *Region) InsertOldToNewRSet(slot Addr) {
	r.GetOrCreateOldToNewRememberedSet().Insert(slot)
}

// AtomicInsertOldToNewRSet records slot; safe for concurrent writers.
func (r *Region) AtomicInsertOldToNewRSet(slot Addr) {
	r.GetOrCreateOldToNewRememberedSet().AtomicInsert(slot)
}

// IterateAllCrossRegionBits visits recorded cross-region slots. Returning
// false from visitor drops the slot.
func (r *Region) IterateAllCrossRegionBits(visitor func(slot Addr) bool) {
	if s := r.crossRegionSet.Load(); s != nil {
		s.IterateAllMarkedBits(visitor)
	}
}

// IterateAllOldToNewBits visits recorded old-to-new slots. Returning false
// from visitor drops the slot.
func (r *Region) IterateAllOldToNewBits(visitor func(slot Addr) bool) {
	if s := r.oldToNewSet.Load(); s != nil {
		s.IterateAllMarkedBits(visitor)
	}
}

// ClearCrossRegionRSet empties the cross-region set if present.
func (r *Region) ClearCrossRegionRSet() {
	if s := r.crossRegionSet.Load(); s != nil {
		s.ClearAll()
	}
}

// ClearOldToNewRSet empties the old-to-new set if present.
func (r *Region) ClearOldToNewRSet() {
	if s := r.oldToNewSet.Load(); s != nil {
		s.ClearAll()
	}
}

// ClearCrossRegionRSetInRange drops cross-region slots in [start, end).
func (r *Region) ClearCrossRegionRSetInRange(start, end Addr) {
	if s := r.crossRegionSet.Load(); s != nil {
		s.ClearRange(start, end)
	}
}

// ClearOldToNewRSetInRange drops old-to-new slots in [start, end).
func (r *Region) ClearOldToNewRSetInRange(start, end Addr) {
	if s := r.oldToNewSet.Load(); s != nil {
		s.ClearRange(start, end)
	}
}

// DeleteCrossRegionRSet destroys the cross-region set.
func (r *Region) DeleteCrossRegionRSet() {
	r.rsetMu.Lock()
	r.crossRegionSet.Store(nil)
	r.rsetMu.Unlock()
}

// DeleteOldToNewRSet destroys the old-to-new set.
func (r *Region) DeleteOldToNewRSet() {
	r.rsetMu.Lock()
	r.oldToNewSet.Store(nil)
	r.rsetMu.Unlock()
}

// IncreaseAliveObject adds size bytes to the live counter.
func (r *Region) IncreaseAliveObject(size int) {
	r.aliveObject.Add(int64(size))
}

// AliveObject returns the live byte counter.
func (r *Region) AliveObject() int { return int(r.aliveObject.Load()) }

// ResetAliveObject zeroes the live byte counter.
func (r *Region) ResetAliveObject() { r.aliveObject.Store(0) }

// HighWaterMark returns the allocation top within the region.
func (r *Region) HighWaterMark() Addr { return Addr(r.highWaterMark.Load()) }

// SetHighWaterMark records the allocation top. Values outside
// [Begin, End] panic.
func (r *Region) SetHighWaterMark(top Addr) {
	if top < r.begin || top > r.end {
		panic(fmt.Sprintf("region: high water mark %#x outside %s", uint64(top), r))
	}
	r.highWaterMark.Store(uint64(top))
}

// SetAgeMark records that objects below addr were allocated before the last
// young GC. Zero clears it.
func (r *Region) SetAgeMark(addr Addr) { r.ageMark.Store(uint64(addr)) }

// AgeMark returns the recorded age mark.
func (r *Region) AgeMark() Addr { return Addr(r.ageMark.Load()) }

// BelowAgeMark reports whether the object at addr has survived one young GC
// already.
func (r *Region) BelowAgeMark(addr Addr) bool {
	if r.HasFlag(FlagBelowAgeMark) {
		return true
	}
	return addr < Addr(r.ageMark.Load())
}

// ClearAgeMark drops both the age flag and the partial age mark.
func (r *Region) ClearAgeMark() {
	r.ClearFlag(FlagBelowAgeMark)
	r.ageMark.Store(0)
}

func (r *Region) wordPtr(addr Addr) *uint64 {
	if addr&format.WordMask != 0 {
		panic(fmt.Sprintf("region: unaligned word access %#x", uint64(addr)))
	}
	off := int(addr - r.begin)
	if addr < r.begin || off+format.WordSize > len(r.mem) {
		panic(fmt.Sprintf("region: word %#x outside %s", uint64(addr), r))
	}
	return (*uint64)(unsafe.Pointer(&r.mem[off]))
}

// Word atomically loads the word at addr.
func (r *Region) Word(addr Addr) uint64 {
	return atomic.LoadUint64(r.wordPtr(addr))
}

// SetWord atomically stores v at addr.
func (r *Region) SetWord(addr Addr, v uint64) {
	atomic.StoreUint64(r.wordPtr(addr), v)
}

// CompareAndSwapWord atomically replaces old with v at addr.
func (r *Region) CompareAndSwapWord(addr Addr, old, v uint64) bool {
	return atomic.CompareAndSwapUint64(r.wordPtr(addr), old, v)
}

// Bytes returns the n bytes starting at addr, aliasing region memory.
func (r *Region) Bytes(addr Addr, n int) []byte {
	off := int(addr - r.begin)
	if addr < r.begin || n < 0 || off+n > len(r.mem) {
		panic(fmt.Sprintf("region: range %#x+%d outside %s", uint64(addr), n, r))
	}
	return r.mem[off : off+n : off+n]
}
