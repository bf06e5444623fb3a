package space

import "github.com/joshuapare/regionheap/heap/region"

// ReadOnlySpace holds immutable built-ins. The read-only bit is logical: the
// heap's write barrier rejects stores into flagged regions.
type ReadOnlySpace struct {
	LinearSpace
	readOnly bool
}

// NewReadOnlySpace returns an empty, writable read-only space.
func NewReadOnlySpace(table *region.Table, maximum int) *ReadOnlySpace {
	return &ReadOnlySpace{
		LinearSpace: newLinearSpace(KindReadOnly, table, region.FlagOld, maximum, maximum),
	}
}

// Allocate bumps the top pointer. Regions acquired while the space is
// read-only are flagged too.
func (s *ReadOnlySpace) Allocate(size int, isPromoted bool) (region.Addr, error) {
	addr, err := s.LinearSpace.Allocate(size, isPromoted)
	if err == nil && s.readOnly {
		s.current.SetFlag(region.FlagReadOnly)
	}
	return addr, err
}

// SetReadOnly flags every region read-only.
func (s *ReadOnlySpace) SetReadOnly() {
	s.readOnly = true
	for _, r := range s.regions {
		r.SetFlag(region.FlagReadOnly)
	}
}

// ClearReadOnly makes every region writable again.
func (s *ReadOnlySpace) ClearReadOnly() {
	s.readOnly = false
	for _, r := range s.regions {
		r.ClearFlag(region.FlagReadOnly)
	}
}

// IsReadOnly reports the space-wide flag.
func (s *ReadOnlySpace) IsReadOnly() bool { return s.readOnly }
