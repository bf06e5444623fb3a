package region

import (
	"fmt"
	"math/bits"
	"sync/atomic"

	"github.com/joshuapare/regionheap/internal/format"
)

// GCBitset is a fixed-size bitset with one bit per word-sized slot of a
// region. Writers may use the plain or the atomic variants; readers always
// load atomically so a concurrent AtomicSet is never torn.
type GCBitset struct {
	words []uint64
	nbits int
}

// SizeOfGCBitset returns the byte footprint of a bitset covering a region of
// regionSize bytes.
func SizeOfGCBitset(regionSize int) int {
	nbits := regionSize >> format.WordLog
	nwords := (nbits + format.BitsPerWord - 1) >> format.BitsPerWordLog
	return nwords * format.WordSize
}

// NewGCBitset returns an empty bitset sized for regionSize bytes.
func NewGCBitset(regionSize int) *GCBitset {
	nbits := regionSize >> format.WordLog
	return &GCBitset{
		words: make([]uint64, SizeOfGCBitset(regionSize)/format.WordSize),
		nbits: nbits,
	}
}

// Size returns the byte footprint of the bitset.
func (b *GCBitset) Size() int {
	return len(b.words) * format.WordSize
}

// Len returns the number of addressable bits.
func (b *GCBitset) Len() int {
	return b.nbits
}

func (b *GCBitset) locate(idx int) (int, uint64) {
	if idx < 0 || idx >= b.nbits {
		panic(fmt.Sprintf("region: bitset index %d out of range [0,%d)", idx, b.nbits))
	}
	return idx >> format.BitsPerWordLog, uint64(1) << (uint(idx) & (format.BitsPerWord - 1))
}

// Set sets bit idx. Single-writer only.
func (b *GCBitset) Set(idx int) {
	w, m := b.locate(idx)
	b.words[w] |= m
}

// AtomicSet sets bit idx and reports whether this call changed it from 0 to 1.
func (b *GCBitset) AtomicSet(idx int) bool {
	w, m := b.locate(idx)
	old := atomic.OrUint64(&b.words[w], m)
	return old&m == 0
}

// Test reports whether bit idx is set.
func (b *GCBitset) Test(idx int) bool {
	w, m := b.locate(idx)
	return atomic.LoadUint64(&b.words[w])&m != 0
}

// Clear clears bit idx atomically.
func (b *GCBitset) Clear(idx int) {
	w, m := b.locate(idx)
	atomic.AndUint64(&b.words[w], ^m)
}

// ClearRange clears bits in [from, to).
func (b *GCBitset) ClearRange(from, to int) {
	if from >= to {
		return
	}
	if from < 0 || to > b.nbits {
		panic(fmt.Sprintf("region: bitset range [%d,%d) out of range [0,%d)", from, to, b.nbits))
	}
	for from < to {
		w := from >> format.BitsPerWordLog
		lo := uint(from) & (format.BitsPerWord - 1)
		hi := uint(format.BitsPerWord)
		if wordEnd := (w + 1) << format.BitsPerWordLog; wordEnd > to {
			hi = uint(to - w<<format.BitsPerWordLog)
		}
		if lo == 0 && hi == format.BitsPerWord {
			atomic.StoreUint64(&b.words[w], 0)
		} else {
			var m uint64
			if hi == format.BitsPerWord {
				m = ^uint64(0) << lo
			} else {
				m = (uint64(1)<<hi - 1) &^ (uint64(1)<<lo - 1)
			}
			atomic.AndUint64(&b.words[w], ^m)
		}
		from = (w + 1) << format.BitsPerWordLog
	}
}

// ClearAll clears every bit.
func (b *GCBitset) ClearAll() {
	for i := range b.words {
		atomic.StoreUint64(&b.words[i], 0)
	}
}

// Count returns the number of set bits.
func (b *GCBitset) Count() int {
	n := 0
	for i := range b.words {
		n += bits.OnesCount64(atomic.LoadUint64(&b.words[i]))
	}
	return n
}

// Iterate calls visitor for every set bit in ascending order. When visitor
// returns false the bit is cleared. Clearing is an atomic AND, so bits set
// concurrently in the same word are preserved.
func (b *GCBitset) Iterate(visitor func(idx int) bool) {
	for w := range b.words {
		word := atomic.LoadUint64(&b.words[w])
		for word != 0 {
			bit := bits.TrailingZeros64(word)
			word &= word - 1
			idx := w<<format.BitsPerWordLog + bit
			if !visitor(idx) {
				atomic.AndUint64(&b.words[w], ^(uint64(1) << uint(bit)))
			}
		}
	}
}
