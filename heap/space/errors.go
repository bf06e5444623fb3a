package space

import "errors"

var (
	// ErrNoSpace indicates an allocation could not be satisfied. The caller
	// decides whether to collect and retry.
	ErrNoSpace = errors.New("space: no space")

	// ErrCapacityExhausted indicates Expand hit the space's capacity limit.
	ErrCapacityExhausted = errors.New("space: capacity exhausted")

	// ErrTooLarge indicates a request larger than a region.
	ErrTooLarge = errors.New("space: allocation larger than a region")
)
