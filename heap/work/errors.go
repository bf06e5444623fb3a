package work

import "errors"

var (
	// ErrArena indicates the native allocator refused a work-node arena.
	ErrArena = errors.New("work: allocate work node arena")

	// ErrInvalidOptions indicates a non-positive thread count or node size.
	ErrInvalidOptions = errors.New("work: invalid options")
)
