package region

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuapare/regionheap/internal/format"
	"github.com/joshuapare/regionheap/internal/native"
)

func newTestTable(t *testing.T, maxRegions int) *Table {
	t.Helper()
	tbl := NewTable(native.New(), maxRegions)
	t.Cleanup(func() { require.NoError(t, tbl.Close()) })
	return tbl
}

func newTestRegion(t *testing.T, flags Flag) *Region {
	t.Helper()
	r, err := newTestTable(t, 4).Allocate(flags)
	require.NoError(t, err)
	return r
}

func TestCreateRememberedSet_Empty(t *testing.T) {
	for _, size := range []int{format.RegionSize, 64 * format.WordSize, 4096} {
		s := CreateRememberedSet(format.HeapBase, size)
		assert.Equal(t, 0, s.Count())
		assert.Equal(t, SizeOfGCBitset(size), s.Size())
	}
	assert.Equal(t, format.RegionSize/format.WordSize/8, SizeOfGCBitset(format.RegionSize))
}

func TestRememberedSet_InsertContainsClear(t *testing.T) {
	base := Addr(format.HeapBase)
	s := CreateRememberedSet(base, format.RegionSize)

	s.Insert(base)
	s.AtomicInsert(base + 8)
	s.Insert(base + format.RegionSize - 8)
	s.Insert(base + 8) // idempotent

	require.Equal(t, 3, s.Count())
	assert.True(t, s.Contains(base+8))
	assert.False(t, s.Contains(base+16))

	s.ClearRange(base, base+16)
	assert.Equal(t, 1, s.Count())
	assert.True(t, s.Contains(base+format.RegionSize-8))

	s.ClearAll()
	assert.Equal(t, 0, s.Count())
}

func TestRememberedSet_OutOfRangePanics(t *testing.T) {
	base := Addr(format.HeapBase)
	s := CreateRememberedSet(base, format.RegionSize)
	assert.Panics(t, func() { s.Insert(base + format.RegionSize) })
	assert.Panics(t, func() { s.Insert(base - 8) })
}

func TestRememberedSet_ClearRangeAcrossWords(t *testing.T) {
	base := Addr(format.HeapBase)
	s := CreateRememberedSet(base, format.RegionSize)
	for i := 0; i < 300; i++ {
		s.Insert(base + Addr(i*format.WordSize))
	}
	// Clear slots 10..250: spans a partial, several whole and a partial word.
	s.ClearRange(base+10*8, base+250*8)
	assert.Equal(t, 10+50, s.Count())
	assert.True(t, s.Contains(base+9*8))
	assert.False(t, s.Contains(base+10*8))
	assert.False(t, s.Contains(base+249*8))
	assert.True(t, s.Contains(base+250*8))
}

func TestRememberedSet_IterateDropsFalse(t *testing.T) {
	base := Addr(format.HeapBase)
	s := CreateRememberedSet(base, format.RegionSize)
	want := []Addr{base + 8, base + 512, base + 4096, base + format.RegionSize - 8}
	for _, a := range want {
		s.Insert(a)
	}

	var got []Addr
	s.IterateAllMarkedBits(func(slot Addr) bool {
		got = append(got, slot)
		return slot != base+512
	})
	assert.Equal(t, want, got)

	// Restartable: a second pass sees the survivors.
	got = got[:0]
	s.IterateAllMarkedBits(func(slot Addr) bool {
		got = append(got, slot)
		return true
	})
	assert.Equal(t, []Addr{base + 8, base + 4096, base + format.RegionSize - 8}, got)
}

func TestRegion_AtomicMarkIdempotent(t *testing.T) {
	r := newTestRegion(t, FlagYoung)
	addr := r.Begin() + 128

	assert.False(t, r.Test(addr))
	assert.True(t, r.AtomicMark(addr), "first mark reports unmarked")
	assert.True(t, r.Test(addr))
	assert.False(t, r.AtomicMark(addr), "second mark reports already marked")
	assert.True(t, r.Test(addr))

	r.ClearMark(addr)
	assert.False(t, r.Test(addr))
}

func TestRegion_AtomicMarkConcurrent(t *testing.T) {
	r := newTestRegion(t, FlagOld)
	const workers = 8
	const objects = 1000

	var wg sync.WaitGroup
	wins := make([]int, workers)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < objects; i++ {
				if r.AtomicMark(r.Begin() + Addr(i*16)) {
					wins[w]++
				}
			}
		}(w)
	}
	wg.Wait()

	total := 0
	for _, n := range wins {
		total += n
	}
	assert.Equal(t, objects, total, "each address has exactly one first marker")
	assert.Equal(t, objects, r.MarkedCount())
}

func TestRegion_MarkOutOfRangePanics(t *testing.T) {
	r := newTestRegion(t, FlagYoung)
	assert.Panics(t, func() { r.AtomicMark(r.End()) })
	assert.Panics(t, func() { r.Test(r.Begin() - 8) })
}

func TestRegion_IterateAllMarkedBits(t *testing.T) {
	r := newTestRegion(t, FlagYoung)
	r.AtomicMark(r.Begin() + 64)
	r.AtomicMark(r.Begin())
	r.AtomicMark(r.Begin() + 8192)

	var got []Addr
	r.IterateAllMarkedBits(func(a Addr) { got = append(got, a) })
	assert.Equal(t, []Addr{r.Begin(), r.Begin() + 64, r.Begin() + 8192}, got)

	r.ClearMarkBits()
	assert.Equal(t, 0, r.MarkedCount())
}

func TestRegion_RememberedSetsCreatedOnce(t *testing.T) {
	r := newTestRegion(t, FlagOld)
	require.Nil(t, r.OldToNewRememberedSet())
	require.Nil(t, r.CrossRegionRememberedSet())

	const goroutines = 16
	sets := make([]*RememberedSet, goroutines)
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			sets[i] = r.GetOrCreateOldToNewRememberedSet()
			r.AtomicInsertOldToNewRSet(r.Begin() + Addr(i*format.WordSize))
		}(i)
	}
	close(start)
	wg.Wait()

	for _, s := range sets {
		assert.Same(t, sets[0], s)
	}
	assert.Equal(t, goroutines, r.OldToNewRememberedSet().Count())
}

func TestRegion_RSetClearInRange(t *testing.T) {
	r := newTestRegion(t, FlagOld)
	r.InsertOldToNewRSet(r.Begin() + 8)
	r.InsertOldToNewRSet(r.Begin() + 1024)
	r.InsertCrossRegionRSet(r.Begin() + 16)

	r.ClearOldToNewRSetInRange(r.Begin(), r.Begin()+512)
	r.ClearCrossRegionRSetInRange(r.Begin(), r.Begin()+512)

	var slots []Addr
	r.IterateAllOldToNewBits(func(s Addr) bool { slots = append(slots, s); return true })
	assert.Equal(t, []Addr{r.Begin() + 1024}, slots)
	assert.Equal(t, 0, r.CrossRegionRememberedSet().Count())

	r.DeleteOldToNewRSet()
	assert.Nil(t, r.OldToNewRememberedSet())
	r.IterateAllOldToNewBits(func(Addr) bool { t.Fatal("deleted set visited"); return true })
}

func TestRegion_WordsAndBytes(t *testing.T) {
	r := newTestRegion(t, FlagYoung)
	a := r.Begin() + 40
	r.SetWord(a, 0xdeadbeef)
	assert.Equal(t, uint64(0xdeadbeef), r.Word(a))
	assert.True(t, r.CompareAndSwapWord(a, 0xdeadbeef, 7))
	assert.False(t, r.CompareAndSwapWord(a, 0xdeadbeef, 9))
	assert.Equal(t, uint64(7), r.Word(a))

	b := r.Bytes(a, 8)
	assert.Equal(t, byte(7), b[0])

	assert.Panics(t, func() { r.Word(a + 1) })
	assert.Panics(t, func() { r.Bytes(r.End()-4, 8) })
}

func TestRegion_AgeMark(t *testing.T) {
	r := newTestRegion(t, FlagYoung)
	assert.False(t, r.BelowAgeMark(r.Begin()))

	r.SetAgeMark(r.Begin() + 256)
	assert.True(t, r.BelowAgeMark(r.Begin()+128))
	assert.False(t, r.BelowAgeMark(r.Begin()+256))

	r.ClearAgeMark()
	r.SetFlag(FlagBelowAgeMark)
	assert.True(t, r.BelowAgeMark(r.End()-8))
	r.ClearAgeMark()
	assert.False(t, r.BelowAgeMark(r.Begin()))
}

func TestRegion_Flags(t *testing.T) {
	r := newTestRegion(t, FlagYoung|FlagFromSpace)
	assert.True(t, r.InYoungGeneration())
	assert.True(t, r.InFromSpace())
	assert.Equal(t, "young|from", r.Flags().String())

	r.ClearFlag(FlagFromSpace)
	r.SetFlag(FlagReadOnly)
	assert.False(t, r.InFromSpace())
	assert.True(t, r.IsReadOnly())
}

func TestAddr_BaseOffset(t *testing.T) {
	a := Addr(format.HeapBase + 3*format.RegionSize + 72)
	assert.Equal(t, Addr(format.HeapBase+3*format.RegionSize), a.Base())
	assert.Equal(t, 72, a.Offset())
}
