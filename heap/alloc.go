package heap

import (
	"errors"
	"fmt"

	"github.com/joshuapare/regionheap/heap/object"
	"github.com/joshuapare/regionheap/heap/region"
	"github.com/joshuapare/regionheap/heap/space"
	"github.com/joshuapare/regionheap/heap/work"
)

// Allocate creates a young object with fields pointer slots and raw bytes
// of payload. When the young generation is full it collects once and
// retries, then falls back to the old space.
func (h *Heap) Allocate(fields, raw int) (region.Addr, error) {
	if h.closed {
		return region.Null, ErrClosed
	}
	size, err := object.SizeFor(fields, raw)
	if err != nil {
		return region.Null, err
	}
	addr, err := h.activeSpace.Allocate(size, false)
	if err != nil {
		if !errors.Is(err, space.ErrNoSpace) {
			return region.Null, err
		}
		if err := h.CollectGarbage(h.allocationGCType()); err != nil {
			return region.Null, err
		}
		if addr, err = h.activeSpace.Allocate(size, false); err != nil {
			if addr, err = h.oldSpace.Allocate(size, false); err != nil {
				return region.Null, fmt.Errorf("%w: %d bytes: %w", ErrOutOfMemory, size, err)
			}
		}
	}
	h.initObject(addr, size, fields)
	return addr, nil
}

// allocationGCType escalates to an old collection when the old space could
// not absorb a fully promoted young generation.
func (h *Heap) allocationGCType() work.GCType {
	if h.oldSpace.CommittedSize()+h.activeSpace.MaximumCapacity() > h.oldSpace.MaximumCapacity() {
		return work.OldGC
	}
	return work.YoungGC
}

// AllocateOld creates an object directly in the old space, collecting the
// whole heap once if it is full.
func (h *Heap) AllocateOld(fields, raw int) (region.Addr, error) {
	if h.closed {
		return region.Null, ErrClosed
	}
	size, err := object.SizeFor(fields, raw)
	if err != nil {
		return region.Null, err
	}
	addr, err := h.oldSpace.Allocate(size, false)
	if err != nil {
		if err := h.CollectGarbage(work.OldGC); err != nil {
			return region.Null, err
		}
		if addr, err = h.oldSpace.Allocate(size, false); err != nil {
			return region.Null, fmt.Errorf("%w: %d bytes: %w", ErrOutOfMemory, size, err)
		}
	}
	h.initObject(addr, size, fields)
	return addr, nil
}

// AllocateSnapshot creates an immortal object in the snapshot space.
func (h *Heap) AllocateSnapshot(fields, raw int) (region.Addr, error) {
	if h.closed {
		return region.Null, ErrClosed
	}
	size, err := object.SizeFor(fields, raw)
	if err != nil {
		return region.Null, err
	}
	addr, err := h.snapshotSpace.Allocate(size, false)
	if err != nil {
		return region.Null, fmt.Errorf("%w: %d bytes: %w", ErrOutOfMemory, size, err)
	}
	h.initObject(addr, size, fields)
	h.snapshotSpace.IncreaseLiveObjectSize(size)
	return addr, nil
}

// AllocateReadOnly creates an immortal object in the read-only space. It
// fails once the space has been made read-only.
func (h *Heap) AllocateReadOnly(fields, raw int) (region.Addr, error) {
	if h.closed {
		return region.Null, ErrClosed
	}
	if h.readOnlySpace.IsReadOnly() {
		return region.Null, ErrReadOnly
	}
	size, err := object.SizeFor(fields, raw)
	if err != nil {
		return region.Null, err
	}
	addr, err := h.readOnlySpace.Allocate(size, false)
	if err != nil {
		return region.Null, fmt.Errorf("%w: %d bytes: %w", ErrOutOfMemory, size, err)
	}
	h.initObject(addr, size, fields)
	return addr, nil
}

// SetReadOnly freezes the read-only space.
func (h *Heap) SetReadOnly() { h.readOnlySpace.SetReadOnly() }

// ClearReadOnly thaws the read-only space.
func (h *Heap) ClearReadOnly() { h.readOnlySpace.ClearReadOnly() }

// initObject writes the header. Objects born during an incremental mark
// are allocated black.
func (h *Heap) initObject(addr region.Addr, size, fields int) {
	r := h.table.Lookup(addr)
	object.Init(r, addr, size, fields)
	if h.marker.IsMarking() && r.AtomicMark(addr) {
		r.IncreaseAliveObject(size)
	}
}

func (h *Heap) objectAt(obj region.Addr) (*region.Region, object.Header, error) {
	r := h.table.Lookup(obj)
	if r == nil {
		return nil, 0, fmt.Errorf("%w: %#x", ErrInvalidAddress, uint64(obj))
	}
	hd := object.HeaderAt(r, obj)
	if hd.IsFiller() || hd.IsForwarded() {
		return nil, 0, fmt.Errorf("%w: %#x holds %s", ErrInvalidAddress, uint64(obj), hd)
	}
	return r, hd, nil
}

func (h *Heap) slotOf(obj region.Addr, i int) (*region.Region, region.Addr, error) {
	r, hd, err := h.objectAt(obj)
	if err != nil {
		return nil, region.Null, err
	}
	if i < 0 || i >= hd.Fields() {
		return nil, region.Null, fmt.Errorf("%w: %d of %d", ErrFieldIndex, i, hd.Fields())
	}
	return r, object.FieldSlot(obj, i), nil
}

// FieldCount returns the number of pointer fields of obj.
func (h *Heap) FieldCount(obj region.Addr) (int, error) {
	_, hd, err := h.objectAt(obj)
	if err != nil {
		return 0, err
	}
	return hd.Fields(), nil
}

// Field loads pointer field i of obj with any weak tag stripped.
func (h *Heap) Field(obj region.Addr, i int) (region.Addr, error) {
	r, slot, err := h.slotOf(obj, i)
	if err != nil {
		return region.Null, err
	}
	return object.Strip(r.Word(slot)), nil
}

// IsWeakField reports whether field i of obj holds a weak reference.
func (h *Heap) IsWeakField(obj region.Addr, i int) (bool, error) {
	r, slot, err := h.slotOf(obj, i)
	if err != nil {
		return false, err
	}
	return object.IsWeak(r.Word(slot)), nil
}

// Raw returns the payload bytes of obj, aliasing heap memory. The slice is
// only valid until the next collection.
func (h *Heap) Raw(obj region.Addr) ([]byte, error) {
	r, hd, err := h.objectAt(obj)
	if err != nil {
		return nil, err
	}
	start := object.RawStart(obj, hd.Fields())
	return r.Bytes(start, int(obj+region.Addr(hd.Size())-start)), nil
}
