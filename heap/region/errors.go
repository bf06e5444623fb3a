package region

import "errors"

var (
	// ErrTableFull indicates every region slot of the address space is in use.
	ErrTableFull = errors.New("region: address space exhausted")

	// ErrNotOwned indicates a region is not registered in this table.
	ErrNotOwned = errors.New("region: region not owned by table")
)
