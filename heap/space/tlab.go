package space

import (
	"errors"
	"fmt"

	"github.com/joshuapare/regionheap/heap/object"
	"github.com/joshuapare/regionheap/heap/region"
	"github.com/joshuapare/regionheap/internal/format"
)

// TLAB is a thread-local allocator for one collector thread. Survivors are
// copied into the to-space through its locked slow path; promoted objects
// are bumped out of chunks carved from the old space so promotion only
// takes the old-space lock once per chunk.
//
// A TLAB is owned by exactly one thread between creation and Finalize.
type TLAB struct {
	old *OldSpace
	to  *SemiSpace

	r        *region.Region
	top, end region.Addr
}

// NewTLAB returns a promotion allocator. to may be nil when survivors are
// never copied within the young generation.
func NewTLAB(old *OldSpace, to *SemiSpace) *TLAB {
	return &TLAB{old: old, to: to}
}

// Allocate reserves size bytes for an evacuated object. Young survivors go
// to the to-space unless promote is set or the to-space is exhausted.
// The second result reports whether the object landed in the old space.
func (t *TLAB) Allocate(size int, promote bool) (region.Addr, bool, error) {
	if !promote && t.to != nil {
		addr, err := t.to.AllocateSync(size)
		if err == nil {
			return addr, false, nil
		}
		if !errors.Is(err, ErrNoSpace) {
			return region.Null, false, err
		}
	}
	addr, err := t.AllocatePromoted(size)
	return addr, true, err
}

// AllocatePromoted reserves size bytes in the old space.
func (t *TLAB) AllocatePromoted(size int) (region.Addr, error) {
	if t.r != nil && t.top+region.Addr(size) <= t.end {
		addr := t.top
		t.top += region.Addr(size)
		return addr, nil
	}
	if size > format.TLABSize/2 {
		// Large objects bypass the buffer so the current chunk is kept.
		return t.old.AllocateSync(size)
	}
	t.Finalize()
	chunk, err := t.old.AllocateSync(format.TLABSize)
	if err != nil {
		addr, err2 := t.old.AllocateSync(size)
		if err2 != nil {
			return region.Null, fmt.Errorf("promote %d bytes: %w", size, err)
		}
		return addr, nil
	}
	t.r = t.old.Table().Lookup(chunk)
	t.top = chunk + region.Addr(size)
	t.end = chunk + format.TLABSize
	return chunk, nil
}

// Finalize turns the unused tail of the current chunk into a filler so the
// old space stays walkable.
func (t *TLAB) Finalize() {
	if t.r == nil {
		return
	}
	if t.top < t.end {
		object.WriteFiller(t.r, t.top, int(t.end-t.top))
	}
	t.r, t.top, t.end = nil, region.Null, region.Null
}
