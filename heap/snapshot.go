package heap

import (
	"bytes"
	"fmt"

	"github.com/joshuapare/regionheap/heap/object"
	"github.com/joshuapare/regionheap/heap/region"
	"github.com/joshuapare/regionheap/internal/buf"
	"github.com/joshuapare/regionheap/internal/format"
)

// SaveSnapshot serializes objs and everything reachable from them. Records
// are written breadth first, so objs[i] is record i of the result.
func (h *Heap) SaveSnapshot(objs []region.Addr) ([]byte, error) {
	if h.closed {
		return nil, ErrClosed
	}
	index := make(map[region.Addr]int, len(objs))
	var order []region.Addr
	enqueue := func(addr region.Addr) {
		if _, ok := index[addr]; !ok {
			index[addr] = len(order)
			order = append(order, addr)
		}
	}
	for _, addr := range objs {
		if _, _, err := h.objectAt(addr); err != nil {
			return nil, err
		}
		enqueue(addr)
	}
	for i := 0; i < len(order); i++ {
		r := h.table.Lookup(order[i])
		hd := object.HeaderAt(r, order[i])
		for f := range hd.Fields() {
			if v := r.Word(object.FieldSlot(order[i], f)); v != 0 {
				enqueue(object.Strip(v))
			}
		}
	}

	out := make([]byte, format.SnapshotHeaderSize)
	copy(out, format.SnapshotSignature)
	format.PutU32(out, format.SnapshotVersionOffset, format.SnapshotVersion)
	format.PutU32(out, format.SnapshotCountOffset, uint32(len(order)))

	for _, addr := range order {
		r := h.table.Lookup(addr)
		hd := object.HeaderAt(r, addr)
		fields := hd.Fields()
		raw := hd.Size() - object.HeaderSize - fields*format.WordSize

		rec := make([]byte, format.SnapshotRecordHeaderSize+fields*format.WordSize+raw)
		format.PutU32(rec, format.SnapshotFieldsOffset, uint32(fields))
		format.PutU32(rec, format.SnapshotRawOffset, uint32(raw))
		off := format.SnapshotRecordHeaderSize
		for f := range fields {
			v := r.Word(object.FieldSlot(addr, f))
			var enc uint64
			if v != 0 {
				enc = uint64(index[object.Strip(v)]+1) << 1
				if object.IsWeak(v) {
					enc |= object.WeakTag
				}
			}
			format.PutU64(rec, off, enc)
			off += format.WordSize
		}
		copy(rec[off:], r.Bytes(object.RawStart(addr, fields), raw))
		out = append(out, rec...)
	}
	return out, nil
}

// LoadSnapshot deserializes data into the snapshot space and returns the
// address of every record in order. Snapshot objects are immortal.
func (h *Heap) LoadSnapshot(data []byte) ([]region.Addr, error) {
	if h.closed {
		return nil, ErrClosed
	}
	if len(data) < format.SnapshotHeaderSize {
		return nil, fmt.Errorf("%w: %w", ErrSnapshot, format.ErrTruncated)
	}
	if !bytes.Equal(data[:len(format.SnapshotSignature)], format.SnapshotSignature) {
		return nil, fmt.Errorf("%w: %w", ErrSnapshot, format.ErrSignatureMismatch)
	}
	if v := format.ReadU32(data, format.SnapshotVersionOffset); v != format.SnapshotVersion {
		return nil, fmt.Errorf("%w: version %d: %w", ErrSnapshot, v, format.ErrUnsupported)
	}
	count := int(format.ReadU32(data, format.SnapshotCountOffset))

	type record struct {
		fields []uint64
		raw    []byte
	}
	records := make([]record, 0, min(count, len(data)/format.SnapshotRecordHeaderSize))
	off := format.SnapshotHeaderSize
	total := 0
	for i := range count {
		if !buf.Has(data, off, format.SnapshotRecordHeaderSize) {
			return nil, fmt.Errorf("%w: record %d: %w", ErrSnapshot, i, format.ErrTruncated)
		}
		fields := int(format.ReadU32(data, off+format.SnapshotFieldsOffset))
		raw := int(format.ReadU32(data, off+format.SnapshotRawOffset))
		off += format.SnapshotRecordHeaderSize

		end, err := buf.CheckListBounds(len(data), off, fields, format.WordSize)
		if err != nil {
			return nil, fmt.Errorf("%w: record %d fields: %w", ErrSnapshot, i, err)
		}
		size, err := object.SizeFor(fields, raw)
		if err != nil {
			return nil, fmt.Errorf("%w: record %d: %w", ErrSnapshot, i, err)
		}
		rec := record{fields: make([]uint64, fields)}
		for f := range fields {
			enc := format.ReadU64(data, off+f*format.WordSize)
			if target := enc >> 1; enc != 0 && (target == 0 || target > uint64(count)) {
				return nil, fmt.Errorf("%w: record %d field %d references %d", ErrSnapshot, i, f, int64(target)-1)
			}
			rec.fields[f] = enc
		}
		rawBytes, ok := buf.Slice(data, end, raw)
		if !ok {
			return nil, fmt.Errorf("%w: record %d raw: %w", ErrSnapshot, i, format.ErrTruncated)
		}
		rec.raw = rawBytes
		off = end + raw
		total += size
		records = append(records, rec)
	}
	// Reject snapshots that cannot fit before allocating anything.
	if free := h.snapshotSpace.MaximumCapacity() - h.snapshotSpace.HeapObjectSize(); total > free {
		return nil, fmt.Errorf("%w: snapshot needs %d bytes, %d free", ErrOutOfMemory, total, free)
	}

	addrs := make([]region.Addr, len(records))
	for i, rec := range records {
		addr, err := h.AllocateSnapshot(len(rec.fields), len(rec.raw))
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		r := h.table.Lookup(addr)
		copy(r.Bytes(object.RawStart(addr, len(rec.fields)), len(rec.raw)), rec.raw)
		addrs[i] = addr
	}
	for i, rec := range records {
		for f, enc := range rec.fields {
			if enc == 0 {
				continue
			}
			target := int(enc>>1) - 1
			var err error
			if enc&object.WeakTag != 0 {
				err = h.SetWeakField(addrs[i], f, addrs[target])
			} else {
				err = h.SetField(addrs[i], f, addrs[target])
			}
			if err != nil {
				return nil, fmt.Errorf("record %d field %d: %w", i, f, err)
			}
		}
	}
	return addrs, nil
}
