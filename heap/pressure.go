package heap

import (
	"github.com/joshuapare/regionheap/heap/work"
	"github.com/joshuapare/regionheap/internal/logger"
)

// SetGrowingType changes the semi-space capacity policy.
func (h *Heap) SetGrowingType(g GrowingType) {
	h.opts.GrowingType = g
	h.activeSpace.SetGrowingType(g)
	h.inactiveSpace.SetGrowingType(g)
}

// NotifyMemoryPressure switches the heap in or out of pressure mode.
// Entering it runs a full collection and drops the young generation to its
// minimum capacity; leaving it restores the configured growing type.
func (h *Heap) NotifyMemoryPressure(inHighMemoryPressure bool) error {
	if h.closed {
		return ErrClosed
	}
	if !inHighMemoryPressure {
		h.activeSpace.SetGrowingType(h.opts.GrowingType)
		h.inactiveSpace.SetGrowingType(h.opts.GrowingType)
		logger.Debug("memory pressure cleared", "growing", h.opts.GrowingType)
		return nil
	}
	h.activeSpace.SetGrowingType(Pressure)
	h.inactiveSpace.SetGrowingType(Pressure)
	if err := h.CollectGarbage(work.FullGC); err != nil {
		return err
	}
	h.activeSpace.ShrinkToMinimum()
	logger.Debug("memory pressure", "semi_capacity", h.activeSpace.InitialCapacity())
	return nil
}
