package sweep

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuapare/regionheap/heap/object"
	"github.com/joshuapare/regionheap/heap/region"
	"github.com/joshuapare/regionheap/internal/native"
)

func newTestRegion(t *testing.T) (*region.Table, *region.Region) {
	t.Helper()
	tbl := region.NewTable(native.New(), 2)
	t.Cleanup(func() { require.NoError(t, tbl.Close()) })
	r, err := tbl.Allocate(region.FlagOld)
	require.NoError(t, err)
	return tbl, r
}

// layout writes objects of the given sizes back to back and returns their
// addresses.
func layout(r *region.Region, sizes ...int) []region.Addr {
	addrs := make([]region.Addr, len(sizes))
	a := r.Begin()
	for i, s := range sizes {
		object.Init(r, a, s, 1)
		addrs[i] = a
		a += region.Addr(s)
	}
	r.SetHighWaterMark(a)
	return addrs
}

func TestTracker_Coalesce(t *testing.T) {
	tr := NewTracker()
	tr.Add(200, 50)
	tr.Add(100, 100) // adjacent to 200
	tr.Add(400, 10)
	tr.Add(405, 20) // overlaps 400
	tr.Add(0, 0)    // ignored

	assert.Len(t, tr.Ranges(), 4)
	assert.Equal(t, []Range{{Off: 100, Len: 150}, {Off: 400, Len: 25}}, tr.Coalesce())
	assert.Equal(t, 175, tr.Total())

	tr.Reset()
	assert.Nil(t, tr.Coalesce())
	assert.Equal(t, 0, tr.Total())
}

func TestSweepRegion(t *testing.T) {
	tbl, r := newTestRegion(t)
	objs := layout(r, 32, 16, 24, 48, 16)
	// Live: 0 and 3. Dead run: 1..2, and trailing 4.
	r.AtomicMark(objs[0])
	r.AtomicMark(objs[3])
	r.InsertOldToNewRSet(object.FieldSlot(objs[1], 0))
	r.InsertOldToNewRSet(object.FieldSlot(objs[3], 0))
	r.InsertCrossRegionRSet(object.FieldSlot(objs[2], 0))

	tr := NewTracker()
	res := SweepRegion(tbl, r, tr)
	assert.Equal(t, Result{Freed: 16 + 24 + 16, Live: 32 + 48}, res)
	assert.Equal(t, []Range{{Off: objs[1], Len: 40}, {Off: objs[4], Len: 16}}, tr.Coalesce())

	var kinds []string
	object.IterateRegion(tbl, r, func(_ region.Addr, h object.Header) {
		kinds = append(kinds, h.String())
	})
	assert.Equal(t, []string{
		"object(size=32 fields=1)",
		"filler(40)",
		"object(size=48 fields=1)",
		"filler(16)",
	}, kinds)

	assert.Equal(t, 1, r.OldToNewRememberedSet().Count())
	assert.True(t, r.OldToNewRememberedSet().Contains(object.FieldSlot(objs[3], 0)))
	assert.Equal(t, 0, r.CrossRegionRememberedSet().Count())
}

func TestSweepRegion_MergesExistingFillers(t *testing.T) {
	tbl, r := newTestRegion(t)
	objs := layout(r, 16, 16, 16)
	object.WriteFiller(r, objs[1], 16)

	res := SweepRegion(tbl, r, nil)
	assert.True(t, res.Empty)
	assert.Equal(t, 32, res.Freed, "pre-existing filler not counted")

	var headers []object.Header
	object.IterateRegion(tbl, r, func(_ region.Addr, h object.Header) { headers = append(headers, h) })
	require.Len(t, headers, 1)
	assert.True(t, headers[0].IsFiller())
	assert.Equal(t, 48, headers[0].Size())
}

func TestCountUnmarked(t *testing.T) {
	tbl, r := newTestRegion(t)
	objs := layout(r, 16, 32, 8, 64)
	object.WriteFiller(r, objs[2], 8)
	r.AtomicMark(objs[1])

	assert.Equal(t, 16+8+64, CountUnmarked(tbl, r))
}
