package verify_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuapare/regionheap/heap/object"
	"github.com/joshuapare/regionheap/heap/region"
	"github.com/joshuapare/regionheap/heap/verify"
	"github.com/joshuapare/regionheap/internal/native"
)

// testHeap is a minimal HeapView: a region table, a bump pointer per
// region and a root list.
type testHeap struct {
	*region.Table
	regions []*region.Region
	roots   []region.Addr
}

func newTestHeap(t *testing.T) *testHeap {
	t.Helper()
	tbl := region.NewTable(native.New(), 8)
	t.Cleanup(func() { require.NoError(t, tbl.Close()) })
	return &testHeap{Table: tbl}
}

func (h *testHeap) region(t *testing.T, flags region.Flag) *region.Region {
	t.Helper()
	r, err := h.Allocate(flags)
	require.NoError(t, err)
	h.regions = append(h.regions, r)
	return r
}

func (h *testHeap) alloc(r *region.Region, fields int) region.Addr {
	size, _ := object.SizeFor(fields, 0)
	addr := r.HighWaterMark()
	object.Init(r, addr, size, fields)
	r.SetHighWaterMark(addr + region.Addr(size))
	return addr
}

// store writes a reference with no barrier at all.
func (h *testHeap) store(obj region.Addr, i int, val uint64) region.Addr {
	slot := object.FieldSlot(obj, i)
	h.Lookup(obj).SetWord(slot, val)
	return slot
}

func (h *testHeap) IterateRoots(visitor func(region.Addr)) {
	for _, r := range h.roots {
		visitor(r)
	}
}

func (h *testHeap) IterateObjects(visitor func(*region.Region, region.Addr, object.Header)) {
	for _, r := range h.regions {
		object.IterateRegion(h, r, func(addr region.Addr, hd object.Header) { visitor(r, addr, hd) })
	}
}

func TestVerifyOldToNewRSet_BarrierRegression(t *testing.T) {
	h := newTestHeap(t)
	old := h.region(t, region.FlagOld)
	young := h.region(t, region.FlagYoung)

	holder := h.alloc(old, 2)
	y1 := h.alloc(young, 0)
	y2 := h.alloc(young, 0)

	// With the barrier: every old-to-young store is remembered.
	slot := h.store(holder, 0, uint64(y1))
	old.InsertOldToNewRSet(slot)
	slot = h.store(holder, 1, object.Weak(y2))
	old.InsertOldToNewRSet(slot)

	v := verify.New(h, verify.PreGC)
	assert.Equal(t, 0, v.VerifyOldToNewRSet())

	// Regression double: a store that skips the barrier.
	other := h.alloc(old, 1)
	h.store(other, 0, uint64(y1))

	v = verify.New(h, verify.PreGC)
	assert.Equal(t, 1, v.VerifyOldToNewRSet())
	require.Len(t, v.Failures(), 1)
	f := v.Failures()[0]
	assert.Equal(t, verify.TypeOldToNew, f.Type)
	assert.Equal(t, other, f.Addr)
	assert.Equal(t, object.FieldSlot(other, 0), f.Slot)
	assert.Contains(t, f.Error(), "not remembered")
}

func TestVerifyOldToNewRSet_ReadOnly(t *testing.T) {
	h := newTestHeap(t)
	ro := h.region(t, region.FlagOld|region.FlagReadOnly)
	young := h.region(t, region.FlagYoung)

	obj := h.alloc(ro, 1)
	y := h.alloc(young, 0)
	ro.InsertOldToNewRSet(h.store(obj, 0, uint64(y)))

	v := verify.New(h, verify.PostGC)
	assert.Equal(t, 1, v.VerifyOldToNewRSet())
	assert.Equal(t, verify.TypeReadOnly, v.Failures()[0].Type)
}

func TestVerifyHeap_Clean(t *testing.T) {
	h := newTestHeap(t)
	a := h.region(t, region.FlagYoung)
	b := h.region(t, region.FlagYoung)
	old := h.region(t, region.FlagOld)

	x := h.alloc(a, 2)
	y := h.alloc(b, 1)
	o := h.alloc(old, 1)
	a.InsertCrossRegionRSet(h.store(x, 0, uint64(y)))
	h.store(x, 1, uint64(o))
	h.store(y, 0, uint64(y)) // same region: no set needed
	h.roots = []region.Addr{x, region.Null, o}

	for _, mode := range []verify.Mode{verify.PreGC, verify.PostGC} {
		v := verify.New(h, mode)
		assert.Equal(t, 0, v.VerifyAll(), mode.String())
		assert.Empty(t, v.Failures())
	}
}

func TestVerifyHeap_Failures(t *testing.T) {
	tests := []struct {
		name  string
		mode  verify.Mode
		setup func(t *testing.T, h *testHeap, src region.Addr)
		want  string
	}{
		{
			name: "dangling",
			mode: verify.PostGC,
			setup: func(t *testing.T, h *testHeap, src region.Addr) {
				h.store(src, 0, 0x10)
			},
			want: verify.TypeDangling,
		},
		{
			name: "filler target",
			mode: verify.PostGC,
			setup: func(t *testing.T, h *testHeap, src region.Addr) {
				r := h.region(t, region.FlagOld)
				dead := h.alloc(r, 0)
				object.WriteFiller(r, dead, 8)
				h.store(src, 0, uint64(dead))
			},
			want: verify.TypeFiller,
		},
		{
			name: "forwarded target",
			mode: verify.PreGC,
			setup: func(t *testing.T, h *testHeap, src region.Addr) {
				r := h.region(t, region.FlagOld)
				moved := h.alloc(r, 0)
				to := h.alloc(r, 0)
				object.Forward(r, moved, to)
				h.store(src, 0, uint64(moved))
			},
			want: verify.TypeForwarded,
		},
		{
			name: "from-space target after gc",
			mode: verify.PostGC,
			setup: func(t *testing.T, h *testHeap, src region.Addr) {
				r := h.region(t, region.FlagYoung|region.FlagFromSpace)
				stale := h.alloc(r, 0)
				h.Lookup(src).InsertOldToNewRSet(h.store(src, 0, uint64(stale)))
			},
			want: verify.TypeFromSpace,
		},
		{
			name: "unremembered young cross-region",
			mode: verify.PreGC,
			setup: func(t *testing.T, h *testHeap, src region.Addr) {
				a := h.region(t, region.FlagYoung)
				b := h.region(t, region.FlagYoung)
				x := h.alloc(a, 1)
				y := h.alloc(b, 0)
				h.store(x, 0, uint64(y))
				h.Lookup(src).InsertOldToNewRSet(h.store(src, 0, uint64(x)))
			},
			want: verify.TypeCrossRegion,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHeap(t)
			src := h.alloc(h.region(t, region.FlagOld), 1)
			tt.setup(t, h, src)

			v := verify.New(h, tt.mode)
			n := v.VerifyHeap()
			require.Equal(t, 1, n)
			assert.Equal(t, tt.want, v.Failures()[0].Type)
			assert.Equal(t, 1, v.FailCount())
		})
	}
}

func TestVerifyRoot(t *testing.T) {
	h := newTestHeap(t)
	r := h.region(t, region.FlagOld)
	live := h.alloc(r, 0)
	dead := h.alloc(r, 0)
	object.WriteFiller(r, dead, 8)
	h.roots = []region.Addr{live, dead, 0xdead0}

	v := verify.New(h, verify.PostGC)
	assert.Equal(t, 2, v.VerifyRoot())
	types := []string{v.Failures()[0].Type, v.Failures()[1].Type}
	assert.ElementsMatch(t, []string{verify.TypeFiller, verify.TypeDangling}, types)
	assert.Contains(t, v.Failures()[0].Error(), "filler")
}
