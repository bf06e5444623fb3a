// Package heap is the collector's phase driver. It owns the region table,
// the spaces, the work manager and the telemetry, and exposes the mutator
// surface: allocation, barriered stores, roots and collection.
//
// A Heap is driven by a single mutator goroutine, which doubles as collector
// thread 0. Collector worker threads 1..GCThreadNum-1 only run inside
// CollectGarbage. None of the mutator methods are safe for concurrent use.
package heap

import (
	"fmt"

	"github.com/joshuapare/regionheap/heap/object"
	"github.com/joshuapare/regionheap/heap/region"
	"github.com/joshuapare/regionheap/heap/space"
	"github.com/joshuapare/regionheap/heap/stats"
	"github.com/joshuapare/regionheap/heap/work"
	"github.com/joshuapare/regionheap/internal/logger"
	"github.com/joshuapare/regionheap/internal/native"
)

// Heap is a region-based generational heap.
type Heap struct {
	opts        Options
	alloc       native.AreaAllocator
	nativeAlloc *native.Allocator // nil when the caller supplied an allocator
	table       *region.Table

	activeSpace   *space.SemiSpace
	inactiveSpace *space.SemiSpace
	oldSpace      *space.OldSpace
	snapshotSpace *space.SnapshotSpace
	readOnlySpace *space.ReadOnlySpace

	work   *work.WorkManager
	tasks  *taskPool
	stats  *stats.GCStats
	roots  rootTable
	marker *IncrementalMarker

	promoteAll bool
	lastCycle  Cycle
	closed     bool
}

// New builds a heap. A nil opts uses DefaultOptions.
func New(opts *Options) (*Heap, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	o := *opts
	if o.GCThreadNum <= 0 {
		o.GCThreadNum = 1
	}
	if o.WorkNodeCapacity <= 0 {
		o.WorkNodeCapacity = work.DefaultNodeCapacity
	}
	if o.WorkSpaceSize <= 0 {
		o.WorkSpaceSize = work.DefaultSpaceSize
	}

	h := &Heap{opts: o, alloc: o.Allocator, stats: stats.New()}
	if h.alloc == nil {
		h.nativeAlloc = native.New()
		h.alloc = h.nativeAlloc
	}
	h.table = region.NewTable(h.alloc, o.maxRegions())
	h.activeSpace = space.NewSemiSpace(h.table, o.SemiSpaceInitialCapacity, o.SemiSpaceMinimumCapacity, o.SemiSpaceMaximumCapacity)
	h.inactiveSpace = space.NewSemiSpace(h.table, o.SemiSpaceInitialCapacity, o.SemiSpaceMinimumCapacity, o.SemiSpaceMaximumCapacity)
	h.activeSpace.SetGrowingType(o.GrowingType)
	h.inactiveSpace.SetGrowingType(o.GrowingType)
	h.oldSpace = space.NewOldSpace(h.table, o.OldSpaceMaximumCapacity)
	h.snapshotSpace = space.NewSnapshotSpace(h.table, o.SnapshotSpaceMaximumCapacity)
	h.readOnlySpace = space.NewReadOnlySpace(h.table, o.ReadOnlySpaceMaximumCapacity)

	wm, err := work.New(h, h.alloc, work.Options{
		ThreadNum:    o.GCThreadNum,
		NodeCapacity: o.WorkNodeCapacity,
		SpaceSize:    o.WorkSpaceSize,
	})
	if err != nil {
		return nil, fmt.Errorf("heap: %w", err)
	}
	h.work = wm
	h.tasks = newTaskPool(h, o.GCThreadNum)
	h.marker = &IncrementalMarker{h: h}

	logger.Debug("heap created",
		"semi_initial", o.SemiSpaceInitialCapacity,
		"semi_max", o.SemiSpaceMaximumCapacity,
		"old_max", o.OldSpaceMaximumCapacity,
		"threads", o.GCThreadNum,
		"parallel", o.ParallelGC)
	return h, nil
}

// Close releases every region and arena. Any incremental mark in progress
// is abandoned.
func (h *Heap) Close() error {
	if h.closed {
		return nil
	}
	h.closed = true
	if h.marker.IsMarking() {
		h.marker.abandon()
	}
	err := h.work.Close()
	if cerr := h.table.Close(); err == nil {
		err = cerr
	}
	return err
}

// Options returns the effective options.
func (h *Heap) Options() Options { return h.opts }

// Stats returns the collection telemetry.
func (h *Heap) Stats() *stats.GCStats { return h.stats }

// LastCycle returns the accounting of the most recent collection.
func (h *Heap) LastCycle() Cycle { return h.lastCycle }

// Marker returns the incremental marker.
func (h *Heap) Marker() *IncrementalMarker { return h.marker }

// ActiveSemiSpace returns the semi space the mutator allocates into.
func (h *Heap) ActiveSemiSpace() *space.SemiSpace { return h.activeSpace }

// OldSpace returns the old generation.
func (h *Heap) OldSpace() *space.OldSpace { return h.oldSpace }

// SnapshotSpace returns the snapshot space.
func (h *Heap) SnapshotSpace() *space.SnapshotSpace { return h.snapshotSpace }

// ReadOnlySpace returns the read-only space.
func (h *Heap) ReadOnlySpace() *space.ReadOnlySpace { return h.readOnlySpace }

// Table returns the region table.
func (h *Heap) Table() *region.Table { return h.table }

// WorkManager returns the work distributor.
func (h *Heap) WorkManager() *work.WorkManager { return h.work }

// Lookup returns the live region containing addr, or nil.
func (h *Heap) Lookup(addr region.Addr) *region.Region { return h.table.Lookup(addr) }

// Summary returns the space-level picture for reporting.
func (h *Heap) Summary() stats.HeapSummary {
	s := stats.HeapSummary{
		SemiSpaceCapacity:  h.activeSpace.InitialCapacity(),
		SemiSpaceCommitted: h.activeSpace.CommittedSize(),
		SemiSpaceObjects:   h.activeSpace.HeapObjectSize(),
		OldSpaceCommitted:  h.oldSpace.CommittedSize(),
		OldSpaceObjects:    h.oldSpace.HeapObjectSize(),
		SnapshotCommitted:  h.snapshotSpace.CommittedSize(),
		ReadOnlyCommitted:  h.readOnlySpace.CommittedSize(),
		Regions:            h.table.Count(),
	}
	if h.nativeAlloc != nil {
		s.NativeAllocated = h.nativeAlloc.Allocated()
	}
	return s
}

// IsParallelGCEnabled reports whether worker threads may help.
func (h *Heap) IsParallelGCEnabled() bool {
	return h.opts.ParallelGC && h.opts.GCThreadNum > 1
}

// CheckCanDistributeTask reports whether an idle worker thread exists.
func (h *Heap) CheckCanDistributeTask() bool {
	return h.tasks.canDistribute()
}

// PostParallelGCTask starts a worker draining the global work stack.
func (h *Heap) PostParallelGCTask(phase work.TaskPhase) {
	h.tasks.post(phase)
}

// IsIncrementalMarkTriggered reports an incremental mark between its start
// and its final remark.
func (h *Heap) IsIncrementalMarkTriggered() bool {
	return h.marker.IsTriggered()
}

// ObjectSize returns the size of the object at addr, following forwarding.
func (h *Heap) ObjectSize(addr region.Addr) int {
	return object.SizeOf(h.table, addr)
}

// NewPromotionAllocator returns an evacuation allocator targeting the
// inactive semi space and the old space.
func (h *Heap) NewPromotionAllocator() work.PromotionAllocator {
	return space.NewTLAB(h.oldSpace, h.inactiveSpace)
}

// IterateRoots visits every live root value.
func (h *Heap) IterateRoots(visitor func(root region.Addr)) {
	h.roots.iterate(func(_ int, v region.Addr) { visitor(v) })
}

// IterateObjects visits every object and filler of every space.
func (h *Heap) IterateObjects(visitor func(r *region.Region, addr region.Addr, hd object.Header)) {
	for _, s := range h.spaces() {
		s.IterateOverObjects(visitor)
	}
}

func (h *Heap) spaces() []space.Space {
	return []space.Space{h.activeSpace, h.oldSpace, h.snapshotSpace, h.readOnlySpace}
}

var _ work.Heap = (*Heap)(nil)
