// Package buf holds the size arithmetic shared by object sizing and the
// snapshot decoder. Helpers report overflow instead of wrapping, so a
// corrupt field count in a snapshot record can never pass as a small size.
package buf

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrOverflow indicates a size computation exceeded int.
	ErrOverflow = errors.New("buf: size overflow")

	// ErrOutOfBounds indicates a range does not fit its buffer.
	ErrOutOfBounds = errors.New("buf: out of bounds")
)

// AddOverflowSafe returns a+b, or false when the sum overflows int.
func AddOverflowSafe(a, b int) (int, bool) {
	switch {
	case b > 0 && a > math.MaxInt-b:
		return 0, false
	case b < 0 && a < math.MinInt-b:
		return 0, false
	default:
		return a + b, true
	}
}

// MulOverflowSafe returns a*b for sizes and counts. Negative operands are
// rejected along with products that overflow int.
func MulOverflowSafe(a, b int) (int, bool) {
	if a < 0 || b < 0 {
		return 0, false
	}
	if a == 0 || b == 0 {
		return 0, true
	}
	if a > math.MaxInt/b {
		return 0, false
	}
	return a * b, true
}

// CheckListBounds returns the end offset of count elements of elementSize
// bytes starting at offset in a buffer of bufLen bytes.
func CheckListBounds(bufLen, offset, count, elementSize int) (int, error) {
	if offset < 0 || count < 0 || elementSize < 0 {
		return 0, fmt.Errorf("%w: offset=%d count=%d size=%d", ErrOutOfBounds, offset, count, elementSize)
	}
	total, ok := MulOverflowSafe(count, elementSize)
	if !ok {
		return 0, fmt.Errorf("%w: %d elements of %d bytes", ErrOverflow, count, elementSize)
	}
	end, ok := AddOverflowSafe(offset, total)
	if !ok {
		return 0, fmt.Errorf("%w: offset %d + %d bytes", ErrOverflow, offset, total)
	}
	if end > bufLen {
		return 0, fmt.Errorf("%w: end %d beyond %d", ErrOutOfBounds, end, bufLen)
	}
	return end, nil
}

// Slice returns b[off:off+n] when it lies within b.
func Slice(b []byte, off, n int) ([]byte, bool) {
	if off < 0 || n < 0 || off > len(b) {
		return nil, false
	}
	end, ok := AddOverflowSafe(off, n)
	if !ok || end > len(b) {
		return nil, false
	}
	return b[off:end], true
}

// Has reports whether b[off:off+n] lies within b.
func Has(b []byte, off, n int) bool {
	_, ok := Slice(b, off, n)
	return ok
}
