package heap

import "errors"

var (
	// ErrOutOfMemory indicates an allocation failed after collecting.
	ErrOutOfMemory = errors.New("heap: out of memory")

	// ErrClosed indicates use of a closed heap.
	ErrClosed = errors.New("heap: closed")

	// ErrInvalidAddress indicates an address outside every live region.
	ErrInvalidAddress = errors.New("heap: invalid address")

	// ErrFieldIndex indicates a field index outside the object.
	ErrFieldIndex = errors.New("heap: field index out of range")

	// ErrReadOnly indicates a store into a read-only region.
	ErrReadOnly = errors.New("heap: store into read-only object")

	// ErrInvalidRoot indicates a released or unknown root handle.
	ErrInvalidRoot = errors.New("heap: invalid root handle")

	// ErrMarking indicates an operation not allowed while incremental
	// marking is in progress.
	ErrMarking = errors.New("heap: incremental marking in progress")

	// ErrSnapshot indicates a malformed snapshot.
	ErrSnapshot = errors.New("heap: bad snapshot")
)
