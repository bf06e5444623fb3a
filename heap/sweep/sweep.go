// Package sweep reclaims dead objects in place. Sweeping never moves an
// object: every run of unmarked objects and fillers becomes one filler, and
// the remembered sets covering a freed run are cleared so no stale slot
// survives into the next cycle.
package sweep

import (
	"slices"

	"github.com/joshuapare/regionheap/heap/object"
	"github.com/joshuapare/regionheap/heap/region"
)

// defaultRangeCapacity is the pre-allocated capacity for freed ranges.
const defaultRangeCapacity = 64

// Range is a freed byte range.
type Range struct {
	Off region.Addr
	Len int
}

// End returns the address one past the range.
func (r Range) End() region.Addr { return r.Off + region.Addr(r.Len) }

// Tracker accumulates freed ranges across regions.
//
// NOT thread-safe. Only one goroutine should use it at a time.
type Tracker struct {
	ranges []Range
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{ranges: make([]Range, 0, defaultRangeCapacity)}
}

// Add records a freed range.
func (t *Tracker) Add(off region.Addr, length int) {
	if length <= 0 {
		return
	}
	t.ranges = append(t.ranges, Range{Off: off, Len: length})
}

// Reset clears all tracked ranges.
func (t *Tracker) Reset() { t.ranges = t.ranges[:0] }

// Ranges returns a copy of the raw, uncoalesced ranges.
func (t *Tracker) Ranges() []Range {
	return slices.Clone(t.ranges)
}

// Total returns the sum of all coalesced range lengths.
func (t *Tracker) Total() int {
	n := 0
	for _, r := range t.Coalesce() {
		n += r.Len
	}
	return n
}

// Coalesce sorts the ranges and merges overlapping or adjacent ones.
func (t *Tracker) Coalesce() []Range {
	if len(t.ranges) == 0 {
		return nil
	}
	sorted := slices.Clone(t.ranges)
	slices.SortFunc(sorted, func(a, b Range) int {
		switch {
		case a.Off < b.Off:
			return -1
		case a.Off > b.Off:
			return 1
		default:
			return 0
		}
	})

	merged := sorted[:1]
	for _, r := range sorted[1:] {
		last := &merged[len(merged)-1]
		if r.Off <= last.End() {
			if r.End() > last.End() {
				last.Len = int(r.End() - last.Off)
			}
			continue
		}
		merged = append(merged, r)
	}
	return merged
}

// Result describes one swept region.
type Result struct {
	// Freed is the size of objects that died this cycle. Pre-existing
	// fillers are not counted.
	Freed int
	// Live is the size of marked objects.
	Live int
	// Empty reports that no marked object remains.
	Empty bool
}

// SweepRegion turns every dead run of r into a single filler and clears both
// remembered sets over it. Freed runs are recorded in t when non-nil.
func SweepRegion(mem object.Memory, r *region.Region, t *Tracker) Result {
	var res Result
	runStart := region.Null
	flush := func(end region.Addr) {
		if runStart == region.Null {
			return
		}
		object.WriteFiller(r, runStart, int(end-runStart))
		r.ClearOldToNewRSetInRange(runStart, end)
		r.ClearCrossRegionRSetInRange(runStart, end)
		if t != nil {
			t.Add(runStart, int(end-runStart))
		}
		runStart = region.Null
	}

	object.IterateRegion(mem, r, func(addr region.Addr, h object.Header) {
		if !h.IsFiller() && r.Test(addr) {
			flush(addr)
			res.Live += h.Size()
			return
		}
		if !h.IsFiller() {
			res.Freed += h.Size()
		}
		if runStart == region.Null {
			runStart = addr
		}
	})
	flush(r.HighWaterMark())
	res.Empty = res.Live == 0
	return res
}

// CountUnmarked returns the bytes of r that hold no marked object, fillers
// included. It is used to measure a from-space region before release.
func CountUnmarked(mem object.Memory, r *region.Region) int {
	n := 0
	object.IterateRegion(mem, r, func(addr region.Addr, h object.Header) {
		if h.IsFiller() || !r.Test(addr) {
			n += object.SizeOf(mem, addr)
		}
	})
	return n
}
