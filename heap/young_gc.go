package heap

import (
	"fmt"
	"runtime"
	"time"

	"github.com/joshuapare/regionheap/heap/object"
	"github.com/joshuapare/regionheap/heap/region"
	"github.com/joshuapare/regionheap/heap/space"
	"github.com/joshuapare/regionheap/heap/sweep"
	"github.com/joshuapare/regionheap/heap/work"
	"github.com/joshuapare/regionheap/internal/logger"
)

// collectYoung evacuates the active semi space. Survivors below the age
// mark, or all of them when promoteAll is set, are promoted to the old
// space; the rest are copied to the inactive semi space, which then
// becomes active.
//
// The returned cycle satisfies Survived + Freed == Before.
func (h *Heap) collectYoung(promoteAll bool) Cycle {
	start := time.Now()
	from, to := h.activeSpace, h.inactiveSpace
	if to.RegionCount() > 0 {
		if err := to.Restart(); err != nil {
			logger.Warn("reset to-space", "error", err)
		}
	}

	allocated := from.AllocatedSinceWaterLine()
	before := from.HeapObjectSize()
	fromRegions := from.Regions()
	from.SetFromSpace()

	gcType := work.YoungGC
	if promoteAll {
		gcType = work.FullGC
	}
	// Workers expand the old space while thread 0 is still scanning it.
	// Regions they add hold only promoted copies, which scanEvacuated
	// records on its own.
	var remembered []*region.Region
	remembered = append(remembered, h.oldSpace.Regions()...)
	remembered = append(remembered, h.snapshotSpace.Regions()...)
	remembered = append(remembered, h.readOnlySpace.Regions()...)

	h.promoteAll = promoteAll
	h.work.Initialize(gcType, work.TaskYoungMark)
	h.tasks.begin()

	for i, v := range h.roots.slots {
		if h.roots.live[i] && v != region.Null {
			h.roots.slots[i] = h.evacuate(0, v)
		}
	}
	for _, r := range remembered {
		h.updateOldToNew(0, r)
	}
	h.drainParallel(h.drainEvacuate)

	alive, promoted := h.work.FinishWithPromoted()
	h.updateWeakReferences()

	freed := 0
	for _, r := range fromRegions {
		freed += sweep.CountUnmarked(h.table, r)
	}
	if err := from.ReclaimRegions(); err != nil {
		logger.Warn("reclaim from-space", "error", err)
	}
	h.activeSpace, h.inactiveSpace = space.Flip(from, to)
	h.promoteAll = false

	survived := alive + promoted
	h.activeSpace.SetSurvivalObjectSize(survived)
	h.activeSpace.SetWaterLine()
	if h.activeSpace.AdjustCapacity(allocated) {
		logger.Debug("semi space resized",
			"capacity", h.activeSpace.InitialCapacity(),
			"survived", survived,
			"allocated", allocated)
	}

	return Cycle{
		Type:     gcType,
		Duration: time.Since(start),
		Before:   before,
		Survived: survived,
		Promoted: promoted,
		Freed:    freed,
	}
}

// evacuate returns the new location of addr, copying it if this thread
// wins the race for it. Addresses outside the from-space are unchanged.
func (h *Heap) evacuate(tid int, addr region.Addr) region.Addr {
	r := h.table.Lookup(addr)
	if r == nil || !r.InFromSpace() {
		return addr
	}
	if !r.AtomicMark(addr) {
		return waitForwarded(r, addr)
	}

	size := object.HeaderAt(r, addr).Size()
	promote := h.promoteAll || r.BelowAgeMark(addr)
	dst, promoted, err := h.work.PromotionAllocator(tid).Allocate(size, promote)
	if err != nil {
		panic(fmt.Errorf("%w: evacuating %d bytes: %w", ErrOutOfMemory, size, err))
	}
	object.Copy(h.table.Lookup(dst), dst, r, addr, size)
	object.Forward(r, addr, dst)
	if promoted {
		h.work.IncreasePromotedSize(tid, size)
	} else {
		h.work.IncreaseAliveSize(tid, size)
	}
	h.work.Push(tid, dst)
	return dst
}

// waitForwarded spins until the winning thread installs the forwarding
// header of addr.
func waitForwarded(r *region.Region, addr region.Addr) region.Addr {
	for {
		if hd := object.HeaderAt(r, addr); hd.IsForwarded() {
			return hd.Forwardee()
		}
		runtime.Gosched()
	}
}

// scanEvacuated updates the strong fields of a copied object and records
// every slot in the remembered sets of its new region.
func (h *Heap) scanEvacuated(tid int, addr region.Addr) {
	r := h.table.Lookup(addr)
	hd := object.HeaderAt(r, addr)
	for i := range hd.Fields() {
		slot := object.FieldSlot(addr, i)
		v := r.Word(slot)
		if v == 0 {
			continue
		}
		target := object.Strip(v)
		tr := h.table.Lookup(target)
		if object.IsWeak(v) {
			if tr != nil && tr.InFromSpace() {
				h.work.PushWeakReference(tid, slot)
			} else {
				remember(r, slot, tr, true)
			}
			continue
		}
		if tr != nil && tr.InFromSpace() {
			target = h.evacuate(tid, target)
			r.SetWord(slot, uint64(target))
			tr = h.table.Lookup(target)
		}
		remember(r, slot, tr, true)
	}
}

func (h *Heap) drainEvacuate(tid int) {
	for {
		addr, ok := h.work.Pop(tid)
		if !ok {
			return
		}
		h.scanEvacuated(tid, addr)
	}
}

// updateOldToNew evacuates the young referents of r's old-to-new slots.
// Slots that no longer reference the young generation are dropped.
func (h *Heap) updateOldToNew(tid int, r *region.Region) {
	r.IterateAllOldToNewBits(func(slot region.Addr) bool {
		v := r.Word(slot)
		if v == 0 {
			return false
		}
		target := object.Strip(v)
		tr := h.table.Lookup(target)
		if tr == nil || !tr.InYoungGeneration() {
			return false
		}
		if object.IsWeak(v) {
			if tr.InFromSpace() {
				h.work.PushWeakReference(tid, slot)
			}
			return true
		}
		if !tr.InFromSpace() {
			return true
		}
		target = h.evacuate(tid, target)
		r.SetWord(slot, uint64(target))
		return h.table.Lookup(target).InYoungGeneration()
	})
}

// updateWeakReferences redirects queued weak slots to the forwarded copy of
// their target, or clears them when the target was not evacuated.
func (h *Heap) updateWeakReferences() {
	h.work.IterateWeakReferences(func(slot region.Addr) {
		r := h.table.Lookup(slot)
		if r == nil {
			return
		}
		v := r.Word(slot)
		if v == 0 || !object.IsWeak(v) {
			return
		}
		target := object.Strip(v)
		tr := h.table.Lookup(target)
		switch {
		case tr == nil:
			r.SetWord(slot, 0)
		case !tr.InFromSpace():
			remember(r, slot, tr, false)
		default:
			hd := object.HeaderAt(tr, target)
			if !hd.IsForwarded() {
				r.SetWord(slot, 0)
				return
			}
			r.SetWord(slot, object.Weak(hd.Forwardee()))
			remember(r, slot, h.table.Lookup(hd.Forwardee()), false)
		}
	})
}
