package work

import (
	"fmt"

	"github.com/joshuapare/regionheap/heap/region"
)

// GCType selects what a collection cycle covers.
type GCType uint8

const (
	// YoungGC evacuates the young generation only.
	YoungGC GCType = iota
	// OldGC marks the whole heap, sweeps the old generation, then evacuates
	// the young generation.
	OldGC
	// FullGC is OldGC with every young survivor promoted.
	FullGC
)

func (g GCType) String() string {
	switch g {
	case YoungGC:
		return "young"
	case OldGC:
		return "old"
	case FullGC:
		return "full"
	default:
		return fmt.Sprintf("GCType(%d)", uint8(g))
	}
}

// TaskPhase tells posted parallel tasks which drain loop to run.
type TaskPhase uint8

const (
	TaskUndefined TaskPhase = iota
	TaskYoungMark
	TaskOldMark
)

func (p TaskPhase) String() string {
	switch p {
	case TaskUndefined:
		return "undefined"
	case TaskYoungMark:
		return "young-mark"
	case TaskOldMark:
		return "old-mark"
	default:
		return fmt.Sprintf("TaskPhase(%d)", uint8(p))
	}
}

// Heap is the upstream context the work manager consults. It replaces a
// back-pointer to the concrete heap.
type Heap interface {
	// IsParallelGCEnabled reports whether worker threads exist at all.
	IsParallelGCEnabled() bool
	// CheckCanDistributeTask reports whether another task may be posted now.
	CheckCanDistributeTask() bool
	// PostParallelGCTask wakes a worker to drain the global stack.
	PostParallelGCTask(phase TaskPhase)
	// IsIncrementalMarkTriggered reports an incremental mark in progress, in
	// which case no tasks are posted.
	IsIncrementalMarkTriggered() bool
	// ObjectSize returns the byte size of the object at addr.
	ObjectSize(addr region.Addr) int
	// NewPromotionAllocator returns a fresh thread-local allocator.
	NewPromotionAllocator() PromotionAllocator
}

// PromotionAllocator is a thread-local bump allocator used to evacuate
// survivors. *space.TLAB implements it.
type PromotionAllocator interface {
	Allocate(size int, promote bool) (region.Addr, bool, error)
	Finalize()
}
