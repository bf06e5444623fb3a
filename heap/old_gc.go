package heap

import (
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/joshuapare/regionheap/heap/region"
	"github.com/joshuapare/regionheap/heap/sweep"
	"github.com/joshuapare/regionheap/heap/work"
	"github.com/joshuapare/regionheap/internal/logger"
)

// collectOld marks the whole heap, sweeps the old space in place and then
// evacuates the young generation. A FullGC promotes every young survivor.
// When an incremental mark is in progress it is completed by a remark of
// the roots instead of a fresh mark.
func (h *Heap) collectOld(gcType work.GCType) Cycle {
	start := time.Now()
	incremental := h.marker.IsMarking()
	if incremental {
		h.marker.remark()
	} else {
		h.beginMark()
	}

	remarkStart := time.Now()
	h.tasks.begin()
	h.markRoots(0)
	waited := h.drainParallel(h.drainMark)
	h.stats.StatisticConcurrentMarkWait(waited)
	h.work.Finish()
	if incremental {
		h.marker.finish()
		h.stats.StatisticConcurrentRemark(time.Since(remarkStart))
	}
	clearedWeak := h.clearDeadWeakReferences()

	oldBefore := h.oldSpace.HeapObjectSize()
	freed, live, retired := h.sweepOldSpace()

	h.table.Iterate(func(r *region.Region) { r.ClearMarkBits() })
	young := h.collectYoung(gcType == work.FullGC)
	if incremental {
		h.stats.StatisticConcurrentEvacuate(young.Duration)
	}

	young.Type = gcType
	young.Duration = time.Since(start)
	young.Incremental = incremental
	young.OldBefore = oldBefore
	young.OldLive = live
	young.OldFreed = freed
	young.RetiredRegions = retired
	young.ClearedWeak = clearedWeak
	return young
}

// sweepOldSpace sweeps every old region in parallel, retires the empty
// ones and hands the dead ranges of the rest to the old-space free list.
// Live excludes objects promoted by the evacuation that follows.
func (h *Heap) sweepOldSpace() (freed, live, retired int) {
	regions := h.oldSpace.Regions()
	results := make([]sweep.Result, len(regions))
	trackers := make([]*sweep.Tracker, len(regions))

	var g errgroup.Group
	g.SetLimit(max(h.opts.GCThreadNum, 1))
	for i, r := range regions {
		g.Go(func() error {
			trackers[i] = sweep.NewTracker()
			results[i] = sweep.SweepRegion(h.table, r, trackers[i])
			return nil
		})
	}
	_ = g.Wait() // sweeping never fails

	var ranges []sweep.Range
	for i, r := range regions {
		freed += results[i].Freed
		live += results[i].Live
		if !results[i].Empty {
			ranges = append(ranges, trackers[i].Coalesce()...)
			continue
		}
		if err := h.oldSpace.RetireRegion(r); err != nil {
			logger.Warn("retire old region", "region", r, "error", err)
			continue
		}
		retired++
	}
	h.oldSpace.Refill(ranges)
	logger.Debug("old space swept",
		"regions", len(regions),
		"freed", freed,
		"live", live,
		"ranges", len(ranges),
		"reusable", h.oldSpace.FreeSize(),
		"retired", retired)
	return freed, live, retired
}
