//go:build unix

package native

import (
	"errors"

	"golang.org/x/sys/unix"
)

// mapArea maps an anonymous private area. The kernel hands back zeroed,
// page-aligned memory.
func mapArea(size int) ([]byte, error) {
	return unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
}

// unmapArea releases a mapping created by mapArea.
func unmapArea(area []byte) error {
	err := unix.Munmap(area)
	if errors.Is(err, unix.EINVAL) {
		// Treat double-unmap as no-op for callers.
		return nil
	}
	return err
}
