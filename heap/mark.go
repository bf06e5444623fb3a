package heap

import (
	"github.com/joshuapare/regionheap/heap/object"
	"github.com/joshuapare/regionheap/heap/region"
	"github.com/joshuapare/regionheap/heap/work"
)

// beginMark clears every mark bit and live counter and opens an old mark.
func (h *Heap) beginMark() {
	h.table.Iterate(func(r *region.Region) {
		r.ClearMarkBits()
		r.ResetAliveObject()
	})
	h.work.Initialize(work.OldGC, work.TaskOldMark)
}

// markObject greys addr for tid unless another thread got there first.
func (h *Heap) markObject(tid int, addr region.Addr) {
	r := h.table.Lookup(addr)
	if r == nil {
		return
	}
	if r.AtomicMark(addr) {
		h.work.PushWithRegion(tid, addr, r)
	}
}

// markRoots greys every root plus every snapshot and read-only object,
// which are immortal.
func (h *Heap) markRoots(tid int) {
	h.roots.iterate(func(_ int, v region.Addr) { h.markObject(tid, v) })
	immortal := func(_ *region.Region, addr region.Addr, hd object.Header) {
		if !hd.IsFiller() {
			h.markObject(tid, addr)
		}
	}
	h.snapshotSpace.IterateOverObjects(immortal)
	h.readOnlySpace.IterateOverObjects(immortal)
}

// scanMarked greys the strong referents of a black object. Weak slots are
// queued for clearing after marking.
func (h *Heap) scanMarked(tid int, addr region.Addr) {
	r := h.table.Lookup(addr)
	hd := object.HeaderAt(r, addr)
	for i := range hd.Fields() {
		slot := object.FieldSlot(addr, i)
		v := r.Word(slot)
		switch {
		case v == 0:
		case object.IsWeak(v):
			h.work.PushWeakReference(tid, slot)
		default:
			h.markObject(tid, object.Strip(v))
		}
	}
}

func (h *Heap) drainMark(tid int) {
	for {
		addr, ok := h.work.Pop(tid)
		if !ok {
			return
		}
		h.scanMarked(tid, addr)
	}
}

// clearDeadWeakReferences nulls every queued weak slot whose target was
// left unmarked.
func (h *Heap) clearDeadWeakReferences() int {
	cleared := 0
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
		if tr := h.table.Lookup(target); tr == nil || !tr.Test(target) {
			r.SetWord(slot, 0)
			cleared++
		}
	})
	return cleared
}
