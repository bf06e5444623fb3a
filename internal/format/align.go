package format

// AlignWord returns n aligned up to the next word boundary.
//
// Example:
//
//	AlignWord(1)  = 8
//	AlignWord(8)  = 8
//	AlignWord(9)  = 16
func AlignWord(n int) int {
	return (n + WordMask) &^ WordMask
}

// AlignRegion returns n aligned up to the next region boundary.
//
// Example:
//
//	AlignRegion(1)          = RegionSize
//	AlignRegion(RegionSize) = RegionSize
func AlignRegion(n int) int {
	return (n + RegionMask) &^ RegionMask
}

// RegionBase returns the base address of the region containing addr.
func RegionBase(addr uint64) uint64 {
	return addr &^ uint64(RegionMask)
}

// IsWordAligned reports whether addr sits on a slot boundary.
func IsWordAligned(addr uint64) bool {
	return addr&WordMask == 0
}

// IsRegionAligned reports whether addr sits on a region boundary.
func IsRegionAligned(addr uint64) bool {
	return addr&RegionMask == 0
}
