// Package format holds the layout constants shared by every layer of the
// region heap: word and region geometry, the synthetic address space origin,
// and the alignment helpers derived from them. It has no dependencies so that
// region, space, and work code can agree on sizes without import cycles.
package format

const (
	// WordSize is the size of one pointer-sized slot in bytes.
	WordSize = 8

	// WordLog is log2(WordSize). Remembered-set and mark-bit indexes are
	// computed as (addr & RegionMask) >> WordLog.
	WordLog = 3

	// WordMask masks the sub-word bits of an address.
	WordMask = WordSize - 1

	// RegionSizeLog is log2(RegionSize).
	RegionSizeLog = 18

	// RegionSize is the fixed size of every heap region (256 KiB).
	RegionSize = 1 << RegionSizeLog

	// RegionMask masks the in-region offset of an address.
	RegionMask = RegionSize - 1

	// HeapBase is the first address handed out by the region table. Keeping it
	// far from zero means a zero slot is always the null reference.
	HeapBase = 1 << 32

	// BitsPerWord is the number of bits in one bitset word.
	BitsPerWord = 64

	// BitsPerWordLog is log2(BitsPerWord).
	BitsPerWordLog = 6
)

const (
	// KB and MB are byte-size helpers for capacities.
	KB = 1 << 10
	MB = 1 << 20
)

const (
	// DefaultSemiSpaceInitialCapacity is the starting capacity of each semi space.
	DefaultSemiSpaceInitialCapacity = 1 * MB

	// DefaultSemiSpaceMinimumCapacity is the floor AdjustCapacity never goes below.
	DefaultSemiSpaceMinimumCapacity = 1 * MB

	// DefaultSemiSpaceMaximumCapacity bounds the young generation.
	DefaultSemiSpaceMaximumCapacity = 4 * MB

	// DefaultOldSpaceMaximumCapacity bounds the old generation.
	DefaultOldSpaceMaximumCapacity = 64 * MB

	// DefaultSnapshotSpaceMaximumCapacity bounds snapshot deserialization.
	DefaultSnapshotSpaceMaximumCapacity = 8 * MB

	// DefaultReadOnlySpaceMaximumCapacity bounds immutable built-ins.
	DefaultReadOnlySpaceMaximumCapacity = 2 * MB

	// TLABSize is the chunk a promotion allocator carves from the old space.
	TLABSize = 32 * KB
)
