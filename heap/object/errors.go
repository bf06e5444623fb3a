package object

import "errors"

var (
	// ErrObjectTooLarge indicates an object that cannot fit in one region.
	ErrObjectTooLarge = errors.New("object: too large for a region")

	// ErrTooManyFields indicates a field count the header cannot encode.
	ErrTooManyFields = errors.New("object: too many pointer fields")

	// ErrInvalidShape indicates a negative field or raw byte count.
	ErrInvalidShape = errors.New("object: invalid shape")
)
