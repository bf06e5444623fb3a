package space

import (
	"math/bits"
	"slices"

	"github.com/joshuapare/regionheap/heap/region"
	"github.com/joshuapare/regionheap/heap/sweep"
	"github.com/joshuapare/regionheap/internal/format"
)

// numFreeClasses covers range lengths from one word up to a whole region.
const numFreeClasses = format.RegionSizeLog + 1

// FreeList holds the dead ranges of old regions that survived a sweep.
// Ranges are segregated by size class, the floor of log2 of their length,
// so a request only scans its own class; any range in a higher class fits.
//
// NOT thread-safe. OldSpace guards it with its mutex.
type FreeList struct {
	classes [numFreeClasses][]sweep.Range
	size    int
	count   int
}

func freeClass(n int) int {
	return min(bits.Len(uint(n))-1, numFreeClasses-1)
}

// Size returns the total free bytes.
func (l *FreeList) Size() int { return l.size }

// Len returns the number of free ranges.
func (l *FreeList) Len() int { return l.count }

// Reset drops every range.
func (l *FreeList) Reset() {
	for i := range l.classes {
		l.classes[i] = l.classes[i][:0]
	}
	l.size, l.count = 0, 0
}

func (l *FreeList) add(r sweep.Range) {
	if r.Len < format.WordSize {
		return
	}
	c := freeClass(r.Len)
	l.classes[c] = append(l.classes[c], r)
	l.size += r.Len
	l.count++
}

// take removes and returns a range of at least size bytes.
func (l *FreeList) take(size int) (sweep.Range, bool) {
	for c := freeClass(size); c < numFreeClasses; c++ {
		list := l.classes[c]
		for i := len(list) - 1; i >= 0; i-- {
			if list[i].Len < size {
				continue
			}
			r := list[i]
			l.classes[c] = slices.Delete(list, i, i+1)
			l.size -= r.Len
			l.count--
			return r, true
		}
	}
	return sweep.Range{}, false
}

// dropRegion forgets every range inside r.
func (l *FreeList) dropRegion(r *region.Region) {
	for c := range l.classes {
		l.classes[c] = slices.DeleteFunc(l.classes[c], func(rng sweep.Range) bool {
			if !r.Contains(rng.Off) {
				return false
			}
			l.size -= rng.Len
			l.count--
			return true
		})
	}
}
