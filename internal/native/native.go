// Package native provides the raw memory provider behind the heap: fixed-size
// areas for regions and work-node arenas. On unix the areas are anonymous
// private mappings; elsewhere they fall back to word-aligned Go slices.
//
// Areas are always zeroed and 8-byte aligned so callers may access them with
// 64-bit atomics.
package native

import (
	"errors"
	"fmt"
	"sync/atomic"
)

var (
	// ErrInvalidSize indicates a non-positive allocation request.
	ErrInvalidSize = errors.New("native: invalid area size")

	// ErrMapFailed indicates the platform refused to provide memory.
	ErrMapFailed = errors.New("native: map failed")
)

// AreaAllocator is the capability handed to regions and the work manager.
// Free must be called with the exact slice returned by Allocate.
type AreaAllocator interface {
	Allocate(size int) ([]byte, error)
	Free(area []byte) error
}

// Allocator is the default AreaAllocator. It keeps byte accounting so the
// heap can report committed native memory.
//
// Safe for concurrent use.
type Allocator struct {
	allocated atomic.Int64
	peak      atomic.Int64
	areas     atomic.Int64
}

// New returns an Allocator with zeroed accounting.
func New() *Allocator {
	return &Allocator{}
}

// Allocate returns a zeroed area of exactly size bytes.
func (a *Allocator) Allocate(size int) ([]byte, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSize, size)
	}
	area, err := mapArea(size)
	if err != nil {
		return nil, fmt.Errorf("%w: %d bytes: %v", ErrMapFailed, size, err)
	}
	total := a.allocated.Add(int64(size))
	a.areas.Add(1)
	for {
		peak := a.peak.Load()
		if total <= peak || a.peak.CompareAndSwap(peak, total) {
			break
		}
	}
	return area, nil
}

// Free releases an area previously returned by Allocate.
func (a *Allocator) Free(area []byte) error {
	if len(area) == 0 {
		return nil
	}
	n := len(area)
	if err := unmapArea(area); err != nil {
		return err
	}
	a.allocated.Add(-int64(n))
	a.areas.Add(-1)
	return nil
}

// Allocated returns the bytes currently held by live areas.
func (a *Allocator) Allocated() int64 { return a.allocated.Load() }

// Peak returns the highest value Allocated has reached.
func (a *Allocator) Peak() int64 { return a.peak.Load() }

// Areas returns the number of live areas.
func (a *Allocator) Areas() int64 { return a.areas.Load() }

var _ AreaAllocator = (*Allocator)(nil)
