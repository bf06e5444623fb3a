package space

import (
	"sync/atomic"

	"github.com/joshuapare/regionheap/heap/region"
)

// SnapshotSpace receives objects deserialized from a snapshot. Its objects
// are immortal: the collector treats them as roots and never frees them.
type SnapshotSpace struct {
	LinearSpace
	liveObjectSize atomic.Int64
}

// NewSnapshotSpace returns an empty snapshot space.
func NewSnapshotSpace(table *region.Table, maximum int) *SnapshotSpace {
	return &SnapshotSpace{
		LinearSpace: newLinearSpace(KindSnapshot, table, region.FlagSnapshot, maximum, maximum),
	}
}

// IncreaseLiveObjectSize records n deserialized bytes.
func (s *SnapshotSpace) IncreaseLiveObjectSize(n int) { s.liveObjectSize.Add(int64(n)) }

// LiveObjectSize returns the deserialized bytes.
func (s *SnapshotSpace) LiveObjectSize() int { return int(s.liveObjectSize.Load()) }
