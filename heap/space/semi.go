package space

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/joshuapare/regionheap/heap/region"
	"github.com/joshuapare/regionheap/internal/format"
)

const (
	// GrowingFactor scales semi-space capacity up or down.
	GrowingFactor = 2

	// growAllocatedRate is the share of capacity allocated since the last GC
	// above which the space counts as under allocation pressure.
	growAllocatedRate = 0.8

	// growSurvivalRate is the survival rate above which the space grows.
	growSurvivalRate = 0.8

	// shrinkSurvivalRate is the survival rate below which the space shrinks.
	shrinkSurvivalRate = 0.2

	// adjustThresholdRate is the share of capacity below which allocation
	// since GC is too small to judge.
	adjustThresholdRate = growSurvivalRate / GrowingFactor
)

// GrowingType is the heap's memory-growing mode.
type GrowingType uint8

const (
	// Conservative grows under pressure and shrinks on low survival.
	Conservative GrowingType = iota
	// HighThroughput grows under pressure and never shrinks.
	HighThroughput
	// Pressure never grows and shrinks on low survival.
	Pressure
)

func (g GrowingType) String() string {
	switch g {
	case Conservative:
		return "conservative"
	case HighThroughput:
		return "high-throughput"
	case Pressure:
		return "pressure"
	default:
		return fmt.Sprintf("GrowingType(%d)", uint8(g))
	}
}

// SemiSpace is one half of the young generation.
type SemiSpace struct {
	LinearSpace

	mu                 sync.Mutex
	minimumCapacity    int
	survivalObjectSize atomic.Int64
	growingType        GrowingType
}

// NewSemiSpace returns an empty semi space. Capacities are rounded up to
// whole regions; minimum ≤ initial ≤ maximum is enforced.
func NewSemiSpace(table *region.Table, initial, minimum, maximum int) *SemiSpace {
	minimum = format.AlignRegion(max(minimum, format.RegionSize))
	initial = max(initial, minimum)
	maximum = max(maximum, initial)
	return &SemiSpace{
		LinearSpace:     newLinearSpace(KindSemi, table, region.FlagYoung, initial, maximum),
		minimumCapacity: minimum,
	}
}

// MinimumCapacity returns the floor AdjustCapacity never crosses.
func (s *SemiSpace) MinimumCapacity() int { return s.minimumCapacity }

// SetGrowingType selects the capacity policy.
func (s *SemiSpace) SetGrowingType(g GrowingType) { s.growingType = g }

// AllocateSync is the locked slow path used by collector threads copying
// survivors into this space during a pause.
func (s *SemiSpace) AllocateSync(size int) (region.Addr, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Allocate(size, true)
}

// SetSurvivalObjectSize records the bytes that survived the last young GC.
func (s *SemiSpace) SetSurvivalObjectSize(n int) { s.survivalObjectSize.Store(int64(n)) }

// IncreaseSurvivalObjectSize adds n surviving bytes.
func (s *SemiSpace) IncreaseSurvivalObjectSize(n int) { s.survivalObjectSize.Add(int64(n)) }

// GetSurvivalObjectSize returns the bytes that survived the last young GC.
func (s *SemiSpace) GetSurvivalObjectSize() int { return int(s.survivalObjectSize.Load()) }

// AdjustCapacity resizes the space after a young GC and reports whether the
// capacity changed. The result always lies in [minimum, maximum].
func (s *SemiSpace) AdjustCapacity(allocatedSizeSinceGC int) bool {
	capacity := s.initialCapacity
	if float64(allocatedSizeSinceGC) <= float64(capacity)*adjustThresholdRate {
		return false
	}
	survivalRate := float64(s.GetSurvivalObjectSize()) / float64(allocatedSizeSinceGC)
	pressure := float64(allocatedSizeSinceGC) >= float64(capacity)*growAllocatedRate

	// Growth wins over shrinking: a space allocated close to full is never
	// halved, whatever the survival rate.
	newCapacity := capacity
	switch {
	case s.growingType != Pressure && (pressure || survivalRate > growSurvivalRate):
		newCapacity = min(capacity*GrowingFactor, s.maximumCapacity)
	case !pressure && survivalRate < shrinkSurvivalRate && s.growingType != HighThroughput:
		newCapacity = max(capacity/GrowingFactor, s.minimumCapacity)
	}
	if newCapacity == capacity {
		return false
	}
	s.SetInitialCapacity(newCapacity)
	return true
}

// ShrinkToMinimum drops the capacity to the minimum, used on memory
// pressure notifications.
func (s *SemiSpace) ShrinkToMinimum() {
	s.initialCapacity = s.minimumCapacity
}

// SetFromSpace flags every region as being evacuated.
func (s *SemiSpace) SetFromSpace() {
	for _, r := range s.regions {
		r.SetFlag(region.FlagFromSpace)
	}
}

// Restart frees every region and resets the allocator for reuse as a fresh
// to-space. The capacity is kept.
func (s *SemiSpace) Restart() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ReclaimRegions()
}

// Flip swaps the roles of the active and inactive semi spaces. The new
// active space inherits the old one's capacity and growing type.
func Flip(active, inactive *SemiSpace) (*SemiSpace, *SemiSpace) {
	inactive.initialCapacity = active.initialCapacity
	inactive.minimumCapacity = active.minimumCapacity
	inactive.maximumCapacity = active.maximumCapacity
	inactive.growingType = active.growingType
	return inactive, active
}
