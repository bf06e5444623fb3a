package heap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuapare/regionheap/heap/object"
	"github.com/joshuapare/regionheap/heap/region"
	"github.com/joshuapare/regionheap/heap/verify"
	"github.com/joshuapare/regionheap/heap/work"
	"github.com/joshuapare/regionheap/internal/format"
)

func TestSnapshot_RoundTrip(t *testing.T) {
	src := newTestHeap(t, nil)
	a := newObject(t, src, 3, 1)
	b := newObject(t, src, 1, 2)
	c := newObject(t, src, 0, 3)
	require.NoError(t, src.SetField(a, 0, b))
	require.NoError(t, src.SetWeakField(a, 1, c))
	require.NoError(t, src.SetField(b, 0, a))

	data, err := src.SaveSnapshot([]region.Addr{a})
	require.NoError(t, err)
	require.Equal(t, format.SnapshotSignature, data[:4])

	dst := newTestHeap(t, nil)
	objs, err := dst.LoadSnapshot(data)
	require.NoError(t, err)
	require.Len(t, objs, 3)

	la := objs[0]
	for _, obj := range objs {
		assert.True(t, dst.Lookup(obj).HasFlag(region.FlagSnapshot))
	}
	assert.Equal(t, uint64(1), idOf(t, dst, la))
	lb := field(t, dst, la, 0)
	assert.Equal(t, uint64(2), idOf(t, dst, lb))
	assert.Equal(t, la, field(t, dst, lb, 0))
	lc := field(t, dst, la, 1)
	assert.Equal(t, uint64(3), idOf(t, dst, lc))
	weak, err := dst.IsWeakField(la, 1)
	require.NoError(t, err)
	assert.True(t, weak)
	assert.Equal(t, region.Null, field(t, dst, la, 2))
	assert.Equal(t, dst.SnapshotSpace().HeapObjectSize(), dst.SnapshotSpace().LiveObjectSize())

	// Snapshot objects are immortal and never move.
	collect(t, dst, work.FullGC)
	assert.Equal(t, uint64(2), idOf(t, dst, field(t, dst, la, 0)))
	assert.Equal(t, lc, field(t, dst, la, 1), "immortal weak targets stay")
	assert.Zero(t, dst.Verify(verify.PostGC))
}

func TestSnapshot_References(t *testing.T) {
	h := newTestHeap(t, nil)
	leaf := newObject(t, h, 0, 5)
	holder := newObject(t, h, 1, 6)
	require.NoError(t, h.SetField(holder, 0, leaf))

	// Listing a referenced object first keeps it at record zero.
	data, err := h.SaveSnapshot([]region.Addr{leaf, holder})
	require.NoError(t, err)
	objs, err := h.LoadSnapshot(data)
	require.NoError(t, err)
	require.Len(t, objs, 2)
	assert.Equal(t, uint64(5), idOf(t, h, objs[0]))
	assert.Equal(t, objs[0], field(t, h, objs[1], 0))

	_, err = h.SaveSnapshot([]region.Addr{region.Addr(format.HeapBase - 8)})
	require.ErrorIs(t, err, ErrInvalidAddress)
}

func TestLoadSnapshot_Errors(t *testing.T) {
	h := newTestHeap(t, nil)
	obj := newObject(t, h, 1, 1)
	require.NoError(t, h.SetField(obj, 0, obj))
	good, err := h.SaveSnapshot([]region.Addr{obj})
	require.NoError(t, err)
	second := newObject(t, h, 1, 2)
	pair, err := h.SaveSnapshot([]region.Addr{obj, second})
	require.NoError(t, err)
	secondField := len(good) + format.SnapshotRecordHeaderSize

	mutate := func(f func([]byte) []byte) []byte {
		return f(append([]byte(nil), good...))
	}
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"short header", good[:format.SnapshotHeaderSize-1]},
		{"signature", mutate(func(b []byte) []byte { b[0] = 'x'; return b })},
		{"version", mutate(func(b []byte) []byte {
			format.PutU32(b, format.SnapshotVersionOffset, 9)
			return b
		})},
		{"count beyond data", mutate(func(b []byte) []byte {
			format.PutU32(b, format.SnapshotCountOffset, 2)
			return b
		})},
		{"fields beyond data", mutate(func(b []byte) []byte {
			format.PutU32(b, format.SnapshotHeaderSize+format.SnapshotFieldsOffset, 1000)
			return b
		})},
		{"raw beyond data", good[:len(good)-1]},
		{"dangling reference", mutate(func(b []byte) []byte {
			format.PutU64(b, format.SnapshotHeaderSize+format.SnapshotRecordHeaderSize, 5<<1)
			return b
		})},
		{"dangling reference in last record", func() []byte {
			b := append([]byte(nil), pair...)
			format.PutU64(b, secondField, 100<<1)
			return b
		}()},
		{"too many fields", mutate(func(b []byte) []byte {
			format.PutU32(b, format.SnapshotHeaderSize+format.SnapshotFieldsOffset, object.MaxFields+1)
			return b
		})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.LoadSnapshot(tt.data)
			require.ErrorIs(t, err, ErrSnapshot)
			assert.Zero(t, h.SnapshotSpace().HeapObjectSize(), "a rejected snapshot allocates nothing")
		})
	}
}

func TestLoadSnapshot_TooLarge(t *testing.T) {
	h := newTestHeap(t, func(o *Options) { o.SnapshotSpaceMaximumCapacity = format.RegionSize })

	var objs []region.Addr
	for range format.RegionSize/1024 + 8 {
		obj, err := h.AllocateOld(0, 1016)
		require.NoError(t, err)
		objs = append(objs, obj)
	}
	data, err := h.SaveSnapshot(objs)
	require.NoError(t, err)

	_, err = h.LoadSnapshot(data)
	require.ErrorIs(t, err, ErrOutOfMemory)
	assert.Zero(t, h.SnapshotSpace().HeapObjectSize())
}
