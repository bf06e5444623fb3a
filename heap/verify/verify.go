package verify

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/joshuapare/regionheap/heap/object"
	"github.com/joshuapare/regionheap/heap/region"
	"github.com/joshuapare/regionheap/internal/logger"
)

// Mode selects the phase-specific checks.
type Mode uint8

const (
	// PreGC runs before a collection.
	PreGC Mode = iota
	// PostGC runs after a collection.
	PostGC
)

func (m Mode) String() string {
	if m == PreGC {
		return "pre-gc"
	}
	return "post-gc"
}

// Failure types.
const (
	TypeDangling    = "dangling"
	TypeFiller      = "filler"
	TypeForwarded   = "forwarded"
	TypeFromSpace   = "from-space"
	TypeCrossRegion = "cross-region"
	TypeOldToNew    = "old-to-new"
	TypeReadOnly    = "read-only"
)

// maxRecorded bounds the failures kept for reporting; the count is exact.
const maxRecorded = 256

// Failure is one verification mismatch.
type Failure struct {
	Type    string
	Message string
	Addr    region.Addr // object holding the reference, Null for roots
	Slot    region.Addr // slot address, Null for roots
}

func (f *Failure) Error() string {
	if f.Addr == region.Null {
		return fmt.Sprintf("%s: %s", f.Type, f.Message)
	}
	return fmt.Sprintf("%s at object 0x%X slot 0x%X: %s", f.Type, uint64(f.Addr), uint64(f.Slot), f.Message)
}

// HeapView is the read-only heap surface verification walks.
type HeapView interface {
	Lookup(addr region.Addr) *region.Region
	IterateRoots(visitor func(root region.Addr))
	IterateObjects(visitor func(r *region.Region, addr region.Addr, h object.Header))
}

// Verification accumulates failures for one heap and mode.
//
// Safe for concurrent use.
type Verification struct {
	heap HeapView
	mode Mode

	failCount atomic.Int64
	mu        sync.Mutex
	failures  []*Failure
}

// New returns a verification for heap in mode.
func New(heap HeapView, mode Mode) *Verification {
	return &Verification{heap: heap, mode: mode}
}

// Mode returns the verification mode.
func (v *Verification) Mode() Mode { return v.mode }

// FailCount returns the total failures found so far.
func (v *Verification) FailCount() int { return int(v.failCount.Load()) }

// Failures returns up to the first 256 recorded failures.
func (v *Verification) Failures() []*Failure {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]*Failure, len(v.failures))
	copy(out, v.failures)
	return out
}

func (v *Verification) report(f *Failure) {
	v.failCount.Add(1)
	logger.Warn("heap verification failed",
		"mode", v.mode.String(), "type", f.Type, "object", uint64(f.Addr), "slot", uint64(f.Slot), "msg", f.Message)
	v.mu.Lock()
	if len(v.failures) < maxRecorded {
		v.failures = append(v.failures, f)
	}
	v.mu.Unlock()
}

// VerifyAll runs every check and returns the failures it found.
func (v *Verification) VerifyAll() int {
	return v.VerifyRoot() + v.VerifyHeap() + v.VerifyOldToNewRSet()
}

// VerifyRoot checks every root reference.
func (v *Verification) VerifyRoot() int {
	before := v.FailCount()
	v.heap.IterateRoots(func(root region.Addr) {
		if root == region.Null {
			return
		}
		v.checkTarget(region.Null, region.Null, object.Strip(uint64(root)))
	})
	return v.FailCount() - before
}

// VerifyHeap checks every reference held by a live object.
func (v *Verification) VerifyHeap() int {
	before := v.FailCount()
	visitor := &VerifyObjectVisitor{v: v}
	v.heap.IterateObjects(visitor.VisitObject)
	return v.FailCount() - before
}

// VerifyOldToNewRSet checks that every old-to-young reference is remembered
// in the source region's old-to-new set.
func (v *Verification) VerifyOldToNewRSet() int {
	before := v.FailCount()
	v.heap.IterateObjects(func(r *region.Region, addr region.Addr, h object.Header) {
		if h.IsFiller() || h.IsForwarded() || !r.InOldGeneration() {
			return
		}
		for i := 0; i < h.Fields(); i++ {
			slot := object.FieldSlot(addr, i)
			val := r.Word(slot)
			if val == 0 {
				continue
			}
			target := v.heap.Lookup(object.Strip(val))
			if target == nil || !target.InYoungGeneration() {
				continue
			}
			if r.IsReadOnly() {
				v.report(&Failure{Type: TypeReadOnly, Addr: addr, Slot: slot,
					Message: fmt.Sprintf("read-only object references young 0x%X", val)})
				continue
			}
			set := r.OldToNewRememberedSet()
			if set == nil || !set.Contains(slot) {
				v.report(&Failure{Type: TypeOldToNew, Addr: addr, Slot: slot,
					Message: fmt.Sprintf("old-to-young reference 0x%X not remembered", val)})
			}
		}
	})
	return v.FailCount() - before
}

func (v *Verification) checkTarget(obj, slot, target region.Addr) *region.Region {
	r := v.heap.Lookup(target)
	if r == nil {
		v.report(&Failure{Type: TypeDangling, Addr: obj, Slot: slot,
			Message: fmt.Sprintf("reference 0x%X outside any live region", uint64(target))})
		return nil
	}
	if v.mode == PostGC && r.InFromSpace() {
		v.report(&Failure{Type: TypeFromSpace, Addr: obj, Slot: slot,
			Message: fmt.Sprintf("reference 0x%X into evacuated %s", uint64(target), r)})
		return nil
	}
	h := object.HeaderAt(r, target)
	switch {
	case h.IsForwarded():
		v.report(&Failure{Type: TypeForwarded, Addr: obj, Slot: slot,
			Message: fmt.Sprintf("reference 0x%X to forwarded object", uint64(target))})
		return nil
	case h.IsFiller():
		v.report(&Failure{Type: TypeFiller, Addr: obj, Slot: slot,
			Message: fmt.Sprintf("reference 0x%X to free space", uint64(target))})
		return nil
	}
	return r
}

// VerifyObjectVisitor checks the outgoing references of one object at a
// time.
type VerifyObjectVisitor struct {
	v *Verification
}

// NewVerifyObjectVisitor returns a visitor reporting into v.
func NewVerifyObjectVisitor(v *Verification) *VerifyObjectVisitor {
	return &VerifyObjectVisitor{v: v}
}

// VisitObject checks every pointer field of the object at addr. Fillers and
// forwarded husks are skipped; references to them are caught at the source.
func (o *VerifyObjectVisitor) VisitObject(r *region.Region, addr region.Addr, h object.Header) {
	if h.IsFiller() || h.IsForwarded() {
		return
	}
	for i := 0; i < h.Fields(); i++ {
		slot := object.FieldSlot(addr, i)
		val := r.Word(slot)
		if val == 0 {
			continue
		}
		target := o.v.checkTarget(addr, slot, object.Strip(val))
		if target == nil {
			continue
		}
		if o.v.mode == PreGC && r.InYoungGeneration() && target.InYoungGeneration() && target != r {
			set := r.CrossRegionRememberedSet()
			if set == nil || !set.Contains(slot) {
				o.v.report(&Failure{Type: TypeCrossRegion, Addr: addr, Slot: slot,
					Message: fmt.Sprintf("cross-region reference 0x%X not remembered", val)})
			}
		}
	}
}
