// Package object defines the in-heap object layout the collector walks:
//
//	[header word][field 0 ... field N-1][raw bytes, padded to a word]
//
// Header bits:
//
//	0-31   total size in bytes, header included
//	32-47  pointer field count
//	62     filler (free space between live objects)
//	63     forwarded; bits 0-61 then hold the forwarding address
//
// A field value is a region.Addr; bit 0 set means a weak reference.
package object

import (
	"fmt"

	"github.com/joshuapare/regionheap/heap/region"
	"github.com/joshuapare/regionheap/internal/buf"
	"github.com/joshuapare/regionheap/internal/format"
)

const (
	// HeaderSize is the size of the object header.
	HeaderSize = format.WordSize

	// MaxFields is the largest pointer field count a header can carry.
	MaxFields = 1<<16 - 1

	// MaxSize is the largest object that fits in a single region.
	MaxSize = format.RegionSize

	// WeakTag marks a weak reference in a field value.
	WeakTag = 1

	sizeMask      = 1<<32 - 1
	fieldsShift   = 32
	fieldsMask    = 1<<16 - 1
	fillerBit     = 1 << 62
	forwardedBit  = 1 << 63
	forwardeeMask = 1<<62 - 1
)

// Header is a decoded object header word.
type Header uint64

// MakeHeader encodes an object header.
func MakeHeader(size, fields int) Header {
	return Header(uint64(size)&sizeMask | uint64(fields&fieldsMask)<<fieldsShift)
}

// FillerHeader encodes a filler spanning size bytes.
func FillerHeader(size int) Header {
	return Header(uint64(size)&sizeMask | fillerBit)
}

// ForwardingHeader encodes a forwarding pointer to to.
func ForwardingHeader(to region.Addr) Header {
	return Header(uint64(to)&forwardeeMask | forwardedBit)
}

// Size returns the object's size in bytes. Undefined for forwarded headers.
func (h Header) Size() int { return int(uint64(h) & sizeMask) }

// Fields returns the pointer field count.
func (h Header) Fields() int { return int(uint64(h)>>fieldsShift) & fieldsMask }

// IsFiller reports whether the header describes dead space.
func (h Header) IsFiller() bool { return uint64(h)&forwardedBit == 0 && uint64(h)&fillerBit != 0 }

// IsForwarded reports whether the object has been evacuated.
func (h Header) IsForwarded() bool { return uint64(h)&forwardedBit != 0 }

// Forwardee returns the forwarding address of a forwarded header.
func (h Header) Forwardee() region.Addr { return region.Addr(uint64(h) & forwardeeMask) }

func (h Header) String() string {
	switch {
	case h.IsForwarded():
		return fmt.Sprintf("forwarded(%#x)", uint64(h.Forwardee()))
	case h.IsFiller():
		return fmt.Sprintf("filler(%d)", h.Size())
	default:
		return fmt.Sprintf("object(size=%d fields=%d)", h.Size(), h.Fields())
	}
}

// SizeFor returns the allocation size of an object with the given number of
// pointer fields and raw bytes.
func SizeFor(fields, raw int) (int, error) {
	if fields < 0 || raw < 0 {
		return 0, fmt.Errorf("%w: fields=%d raw=%d", ErrInvalidShape, fields, raw)
	}
	if fields > MaxFields {
		return 0, fmt.Errorf("%w: %d", ErrTooManyFields, fields)
	}
	slots, ok := buf.MulOverflowSafe(fields, format.WordSize)
	if !ok {
		return 0, fmt.Errorf("%w: fields=%d", ErrObjectTooLarge, fields)
	}
	body, ok := buf.AddOverflowSafe(slots, raw)
	if !ok {
		return 0, fmt.Errorf("%w: raw=%d", ErrObjectTooLarge, raw)
	}
	size, ok := buf.AddOverflowSafe(HeaderSize, body)
	if !ok || size > MaxSize {
		return 0, fmt.Errorf("%w: %d bytes", ErrObjectTooLarge, size)
	}
	return format.AlignWord(size), nil
}

// Memory resolves addresses to regions. *region.Table implements it.
type Memory interface {
	Lookup(addr region.Addr) *region.Region
}

// Init writes a fresh header at addr and zeroes the body.
func Init(r *region.Region, addr region.Addr, size, fields int) {
	for a := addr + HeaderSize; a < addr+region.Addr(size); a += format.WordSize {
		r.SetWord(a, 0)
	}
	r.SetWord(addr, uint64(MakeHeader(size, fields)))
}

// HeaderAt loads the header at addr.
func HeaderAt(r *region.Region, addr region.Addr) Header {
	return Header(r.Word(addr))
}

// FieldSlot returns the address of pointer field i of the object at addr.
func FieldSlot(addr region.Addr, i int) region.Addr {
	return addr + HeaderSize + region.Addr(i)*format.WordSize
}

// RawStart returns the address of the first raw byte of an object.
func RawStart(addr region.Addr, fields int) region.Addr {
	return FieldSlot(addr, fields)
}

// WriteFiller turns [addr, addr+size) into a single filler object.
func WriteFiller(r *region.Region, addr region.Addr, size int) {
	if size <= 0 {
		return
	}
	r.SetWord(addr, uint64(FillerHeader(size)))
}

// Forward installs a forwarding pointer at addr.
func Forward(r *region.Region, addr, to region.Addr) {
	r.SetWord(addr, uint64(ForwardingHeader(to)))
}

// Copy copies size bytes word by word from src to dst. The header is copied
// last so a concurrent reader never sees a half-written object.
func Copy(dstRegion *region.Region, dst region.Addr, srcRegion *region.Region, src region.Addr, size int) {
	for off := region.Addr(HeaderSize); off < region.Addr(size); off += format.WordSize {
		dstRegion.SetWord(dst+off, srcRegion.Word(src+off))
	}
	dstRegion.SetWord(dst, srcRegion.Word(src))
}

// Resolve follows a forwarding pointer, returning addr unchanged when the
// object has not moved.
func Resolve(mem Memory, addr region.Addr) region.Addr {
	r := mem.Lookup(addr)
	if r == nil {
		return addr
	}
	if h := HeaderAt(r, addr); h.IsForwarded() {
		return h.Forwardee()
	}
	return addr
}

// SizeOf returns the size of the object at addr, following forwarding.
func SizeOf(mem Memory, addr region.Addr) int {
	r := mem.Lookup(addr)
	if r == nil {
		panic(fmt.Sprintf("object: %#x is not in the heap", uint64(addr)))
	}
	h := HeaderAt(r, addr)
	if h.IsForwarded() {
		to := h.Forwardee()
		return HeaderAt(mem.Lookup(to), to).Size()
	}
	return h.Size()
}

// IterateRegion walks every object and filler from r.Begin() to the high
// water mark. Forwarded objects are sized through mem.
func IterateRegion(mem Memory, r *region.Region, visitor func(addr region.Addr, h Header)) {
	top := r.HighWaterMark()
	for addr := r.Begin(); addr < top; {
		h := HeaderAt(r, addr)
		size := h.Size()
		if h.IsForwarded() {
			size = SizeOf(mem, addr)
		}
		if size <= 0 {
			panic(fmt.Sprintf("object: zero-sized header at %#x in %s", uint64(addr), r))
		}
		visitor(addr, h)
		addr += region.Addr(size)
	}
}

// IsWeak reports whether a field value is a weak reference.
func IsWeak(v uint64) bool { return v&WeakTag != 0 }

// Strip removes the weak tag from a field value.
func Strip(v uint64) region.Addr { return region.Addr(v &^ WeakTag) }

// Weak tags addr as a weak reference.
func Weak(addr region.Addr) uint64 { return uint64(addr) | WeakTag }
