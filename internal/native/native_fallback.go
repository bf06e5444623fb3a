//go:build !unix

package native

import "unsafe"

// mapArea allocates a word-backed slice so the byte view is 8-byte aligned.
func mapArea(size int) ([]byte, error) {
	words := make([]uint64, (size+7)/8)
	return unsafe.Slice((*byte)(unsafe.Pointer(&words[0])), size), nil
}

// unmapArea leaves the memory to the Go collector.
func unmapArea(area []byte) error {
	return nil
}
