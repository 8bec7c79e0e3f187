package stackframe

import "unsafe"

// The packed link occupies the low 3 bits for flags, leaving the
// address itself in the high bits. This demands a minimum 8-byte
// segment alignment; every segment this package creates comes from
// vmem.Alloc, which hands back page-aligned memory, and registered
// segments are checked explicitly.
const (
	flagExternallyManaged uintptr = 1 << 0
	linkFlagMask          uintptr = 0x7
)

// segmentDescriptor sits at the very start of a segment's backing
// memory. Every field is a uintptr so its alignment requirement is
// identical to frameDescriptor's, which is what lets pop_frame detect
// "this frame was the first allocation in its segment" by a plain
// address comparison with zero padding ambiguity.
type segmentDescriptor struct {
	packedLink    uintptr
	segmentSize   uintptr
	allocatedSize uintptr
}

const (
	segmentDescriptorSize  = unsafe.Sizeof(segmentDescriptor{})
	segmentDescriptorAlign = unsafe.Alignof(segmentDescriptor{})
)

func (d *segmentDescriptor) next() uintptr {
	return d.packedLink &^ linkFlagMask
}

func (d *segmentDescriptor) flags() uintptr {
	return d.packedLink & linkFlagMask
}

func (d *segmentDescriptor) setNext(addr uintptr) {
	d.packedLink = addr | d.flags()
}

func (d *segmentDescriptor) externallyManaged() bool {
	return d.flags()&flagExternallyManaged != 0
}

// segment is the address of a segmentDescriptor, with accessors for
// the usable region that follows it in memory.
type segment uintptr

func (s segment) desc() *segmentDescriptor {
	return (*segmentDescriptor)(unsafe.Pointer(uintptr(s)))
}

func (s segment) usableBase() uintptr {
	return uintptr(s) + segmentDescriptorSize
}

func (s segment) usableSize() uintptr {
	return s.desc().segmentSize - segmentDescriptorSize
}

// frameDescriptor is placed as the first allocation of a pushed
// frame. prevFrame is the address of the previously-topmost frame
// descriptor, or zero if this was the first frame pushed.
type frameDescriptor struct {
	prevFrame uintptr
}

const (
	frameDescriptorSize  = unsafe.Sizeof(frameDescriptor{})
	frameDescriptorAlign = unsafe.Alignof(frameDescriptor{})
)
