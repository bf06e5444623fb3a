package heap

import (
	"fmt"

	"github.com/joshuapare/regionheap/heap/object"
	"github.com/joshuapare/regionheap/heap/region"
)

// SetField stores val into pointer field i of obj through the write barrier.
func (h *Heap) SetField(obj region.Addr, i int, val region.Addr) error {
	return h.store(obj, i, uint64(val), true)
}

// SetWeakField stores a weak reference to val. Weak references do not keep
// their target alive; collections clear them when the target dies.
func (h *Heap) SetWeakField(obj region.Addr, i int, val region.Addr) error {
	if val == region.Null {
		return h.store(obj, i, 0, true)
	}
	return h.store(obj, i, object.Weak(val), true)
}

// SetFieldNoBarrier stores val without recording it in any remembered set
// or shading it. It exists to exercise verification.
func (h *Heap) SetFieldNoBarrier(obj region.Addr, i int, val region.Addr) error {
	return h.store(obj, i, uint64(val), false)
}

func (h *Heap) store(obj region.Addr, i int, raw uint64, barrier bool) error {
	if h.closed {
		return ErrClosed
	}
	r, slot, err := h.slotOf(obj, i)
	if err != nil {
		return err
	}
	if r.IsReadOnly() {
		return fmt.Errorf("%w: %#x", ErrReadOnly, uint64(obj))
	}
	var target *region.Region
	if raw != 0 {
		if target = h.table.Lookup(object.Strip(raw)); target == nil {
			return fmt.Errorf("%w: value %#x", ErrInvalidAddress, raw)
		}
	}
	r.SetWord(slot, raw)
	if !barrier || raw == 0 {
		return nil
	}
	remember(r, slot, target, false)
	if h.marker.IsMarking() {
		if object.IsWeak(raw) {
			h.work.PushWeakReference(0, slot)
		} else {
			h.marker.shade(object.Strip(raw))
		}
	}
	return nil
}

// remember records slot of src, which now references an object in target.
// Old-to-young slots go to the old-to-new set; slots crossing regions
// within a generation go to the cross-region set.
func remember(src *region.Region, slot region.Addr, target *region.Region, concurrent bool) {
	switch {
	case target == nil || target == src:
	case src.InOldGeneration() && target.InYoungGeneration():
		if concurrent {
			src.AtomicInsertOldToNewRSet(slot)
		} else {
			src.InsertOldToNewRSet(slot)
		}
	case src.InYoungGeneration() == target.InYoungGeneration():
		if concurrent {
			src.AtomicInsertCrossRegionRSet(slot)
		} else {
			src.InsertCrossRegionRSet(slot)
		}
	}
}
