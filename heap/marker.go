package heap

import (
	"time"

	"github.com/joshuapare/regionheap/heap/region"
	"github.com/joshuapare/regionheap/internal/logger"
)

// IncrementalMarker interleaves old-generation marking with the mutator.
// Stores made while marking shade their value (insertion barrier) and new
// objects are allocated black, so the final remark only rescans roots.
// No parallel tasks are posted between the start and the remark.
type IncrementalMarker struct {
	h         *Heap
	marking   bool
	triggered bool
	steps     int
	start     time.Time
}

// IsMarking reports whether a mark is in progress.
func (m *IncrementalMarker) IsMarking() bool { return m.marking }

// IsTriggered reports whether work distribution is suppressed.
func (m *IncrementalMarker) IsTriggered() bool { return m.triggered }

// Steps returns the number of steps taken by the current mark.
func (m *IncrementalMarker) Steps() int { return m.steps }

// StartIncrementalMark greys the roots and returns. Marking proceeds with
// IncrementalMarkStep and completes at the next collection.
func (h *Heap) StartIncrementalMark() error {
	if h.closed {
		return ErrClosed
	}
	m := h.marker
	if m.marking {
		return ErrMarking
	}
	start := time.Now()
	m.marking, m.triggered = true, true
	m.steps = 0
	m.start = start
	h.beginMark()
	h.markRoots(0)
	h.stats.StatisticConcurrentMark(time.Since(start))
	logger.Debug("incremental mark started", "roots", h.roots.count())
	return nil
}

// IncrementalMarkStep scans up to budget grey objects and reports whether
// the grey set is empty. It is a no-op when no mark is in progress.
func (h *Heap) IncrementalMarkStep(budget int) bool {
	m := h.marker
	if !m.marking {
		return true
	}
	start := time.Now()
	defer func() { h.stats.StatisticConcurrentMark(time.Since(start)) }()
	m.steps++
	for range budget {
		addr, ok := h.work.Pop(0)
		if !ok {
			return true
		}
		h.scanMarked(0, addr)
	}
	return false
}

// IsMarking reports whether an incremental mark is in progress.
func (h *Heap) IsMarking() bool { return h.marker.marking }

// shade greys addr while marking.
func (m *IncrementalMarker) shade(addr region.Addr) {
	if !m.marking || addr == region.Null {
		return
	}
	m.h.markObject(0, addr)
}

// remark lifts the distribution suppression before the final drain.
func (m *IncrementalMarker) remark() {
	m.triggered = false
}

func (m *IncrementalMarker) finish() {
	logger.Debug("incremental mark finished", "steps", m.steps, "elapsed", time.Since(m.start))
	m.marking, m.triggered = false, false
}

// abandon drops a mark without collecting.
func (m *IncrementalMarker) abandon() {
	m.h.work.Finish()
	m.h.table.Iterate(func(r *region.Region) { r.ClearMarkBits() })
	m.finish()
}
