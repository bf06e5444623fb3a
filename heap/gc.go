package heap

import (
	"log/slog"
	"time"

	"github.com/joshuapare/regionheap/heap/stats"
	"github.com/joshuapare/regionheap/heap/verify"
	"github.com/joshuapare/regionheap/heap/work"
	"github.com/joshuapare/regionheap/internal/logger"
)

// Cycle is the accounting of one collection. Before, Survived, Promoted
// and Freed describe the young evacuation, so Survived + Freed == Before.
// The Old fields are only set by old and full collections.
type Cycle struct {
	Type        work.GCType
	Duration    time.Duration
	Incremental bool

	Before   int
	Survived int
	Promoted int
	Freed    int

	OldBefore      int
	OldLive        int
	OldFreed       int
	RetiredRegions int
	ClearedWeak    int

	VerifyFailures int
}

// bytes folds the old-space sweep into the young accounting.
func (c Cycle) bytes() stats.Bytes {
	return stats.Bytes{
		Before:   int64(c.Before + c.OldBefore),
		Survived: int64(c.Survived + c.OldLive),
		Promoted: int64(c.Promoted),
		Freed:    int64(c.Freed + c.OldFreed),
	}
}

// CollectGarbage runs one collection of the given type. A young collection
// requested while an incremental mark is in progress is escalated to an old
// collection, which completes the mark.
//
// Running out of memory while evacuating is fatal and panics.
func (h *Heap) CollectGarbage(gcType work.GCType) error {
	if h.closed {
		return ErrClosed
	}
	if gcType == work.YoungGC && h.marker.IsMarking() {
		logger.Debug("young gc escalated", "reason", "incremental mark in progress")
		gcType = work.OldGC
	}

	failures := 0
	if h.opts.VerifyHeap {
		failures += h.Verify(verify.PreGC)
	}

	var c Cycle
	switch gcType {
	case work.YoungGC:
		c = h.collectYoung(false)
		h.stats.StatisticYoungGC(c.Duration, c.bytes())
	case work.OldGC:
		c = h.collectOld(work.OldGC)
		h.stats.StatisticOldGC(c.Duration, c.bytes())
	default:
		c = h.collectOld(work.FullGC)
		h.stats.StatisticFullGC(c.Duration, c.bytes())
	}

	if h.opts.VerifyHeap {
		failures += h.Verify(verify.PostGC)
	}
	c.VerifyFailures = failures
	h.lastCycle = c
	h.logCycle(c)
	return nil
}

func (h *Heap) logCycle(c Cycle) {
	level := slog.LevelDebug
	if h.opts.LogGC {
		level = slog.LevelInfo
	}
	logger.Log(level, "gc",
		"type", c.Type,
		"duration", c.Duration,
		"incremental", c.Incremental,
		"before", c.Before,
		"survived", c.Survived,
		"promoted", c.Promoted,
		"freed", c.Freed,
		"old_freed", c.OldFreed,
		"retired", c.RetiredRegions,
		"semi_capacity", h.activeSpace.InitialCapacity())
}

// Verify checks the heap's invariants and returns the number of failures.
// Failures are logged as warnings.
func (h *Heap) Verify(mode verify.Mode) int {
	v := verify.New(h, mode)
	n := v.VerifyAll()
	if n > 0 {
		logger.Warn("heap verification failed", "mode", mode, "failures", n)
	}
	return n
}

// Verification runs a full verification and returns it for inspection.
func (h *Heap) Verification(mode verify.Mode) *verify.Verification {
	v := verify.New(h, mode)
	v.VerifyAll()
	return v
}
