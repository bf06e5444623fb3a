package heap

import (
	"os"
	"runtime"

	"github.com/joshuapare/regionheap/heap/space"
	"github.com/joshuapare/regionheap/heap/work"
	"github.com/joshuapare/regionheap/internal/format"
	"github.com/joshuapare/regionheap/internal/native"
)

// Runtime debug flag for collection logging - controlled by REGIONHEAP_LOG_GC env var.
var logGC = os.Getenv("REGIONHEAP_LOG_GC") != ""

// maxDefaultGCThreads caps the default collector thread count.
const maxDefaultGCThreads = 4

// GrowingType re-exports the semi-space growing modes.
type GrowingType = space.GrowingType

const (
	Conservative   = space.Conservative
	HighThroughput = space.HighThroughput
	Pressure       = space.Pressure
)

// Options configures a Heap.
type Options struct {
	// SemiSpaceInitialCapacity is the starting capacity of the young generation.
	// Default: 1 MiB
	SemiSpaceInitialCapacity int

	// SemiSpaceMinimumCapacity is the floor capacity adjustment never crosses.
	// Default: 1 MiB
	SemiSpaceMinimumCapacity int

	// SemiSpaceMaximumCapacity bounds the young generation.
	// Default: 4 MiB
	SemiSpaceMaximumCapacity int

	// OldSpaceMaximumCapacity bounds the old generation.
	// Default: 64 MiB
	OldSpaceMaximumCapacity int

	// SnapshotSpaceMaximumCapacity bounds snapshot deserialization.
	// Default: 8 MiB
	SnapshotSpaceMaximumCapacity int

	// ReadOnlySpaceMaximumCapacity bounds the read-only space.
	// Default: 2 MiB
	ReadOnlySpaceMaximumCapacity int

	// GCThreadNum is the number of collector threads, the mutator included.
	// Default: min(GOMAXPROCS, 4)
	GCThreadNum int

	// ParallelGC lets worker threads help with marking and evacuation.
	// Default: true
	ParallelGC bool

	// WorkNodeCapacity is the number of objects per work node.
	// Default: 100
	WorkNodeCapacity int

	// WorkSpaceSize is the size of each work-node arena.
	// Default: 8 KiB
	WorkSpaceSize int

	// VerifyHeap runs full verification before and after every collection.
	// Default: false
	VerifyHeap bool

	// GrowingType selects the semi-space capacity policy.
	// Default: Conservative
	GrowingType GrowingType

	// LogGC logs every collection at info level instead of debug.
	// Default: true when REGIONHEAP_LOG_GC is set
	LogGC bool

	// Allocator provides region and arena memory. Nil uses native.New().
	Allocator native.AreaAllocator
}

// DefaultOptions returns the recommended options.
func DefaultOptions() *Options {
	return &Options{
		SemiSpaceInitialCapacity:     format.DefaultSemiSpaceInitialCapacity,
		SemiSpaceMinimumCapacity:     format.DefaultSemiSpaceMinimumCapacity,
		SemiSpaceMaximumCapacity:     format.DefaultSemiSpaceMaximumCapacity,
		OldSpaceMaximumCapacity:      format.DefaultOldSpaceMaximumCapacity,
		SnapshotSpaceMaximumCapacity: format.DefaultSnapshotSpaceMaximumCapacity,
		ReadOnlySpaceMaximumCapacity: format.DefaultReadOnlySpaceMaximumCapacity,
		GCThreadNum:                  min(runtime.GOMAXPROCS(0), maxDefaultGCThreads),
		ParallelGC:                   true,
		WorkNodeCapacity:             work.DefaultNodeCapacity,
		WorkSpaceSize:                work.DefaultSpaceSize,
		GrowingType:                  Conservative,
		LogGC:                        logGC,
	}
}

// maxRegions returns the number of regions every space can hold at once.
func (o *Options) maxRegions() int {
	total := 2*format.AlignRegion(o.SemiSpaceMaximumCapacity) +
		format.AlignRegion(o.OldSpaceMaximumCapacity) +
		format.AlignRegion(o.SnapshotSpaceMaximumCapacity) +
		format.AlignRegion(o.ReadOnlySpaceMaximumCapacity)
	return total / format.RegionSize
}
