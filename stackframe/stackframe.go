// Package stackframe implements a segmented, frame-disciplined
// allocator: allocations are grouped into nestable frames, and popping
// a frame releases everything allocated after the matching push.
// Storage comes from a singly-linked list of variably-sized segments
// that grows greedily from virtual memory as frames demand more room.
package stackframe

import (
	"fmt"
	"unsafe"

	"allocgo/internal/allocerr"
	"allocgo/internal/arith"
	"allocgo/internal/frame"
	"allocgo/internal/vmem"
)

// Allocator is a multi-segment, frame-disciplined bump allocator. Not
// safe for concurrent use.
type Allocator struct {
	liveSegment          uintptr
	freeSegmentList      uintptr
	liveFrame            uintptr
	defaultSegmentSize   uintptr
	lastAllocationOffset uintptr
}

// New constructs an Allocator whose freshly-grown segments default to
// defaultSegmentSize bytes (a larger request still gets a segment big
// enough to hold it).
func New(defaultSegmentSize uintptr) (*Allocator, error) {
	a := &Allocator{}
	if err := a.Initialize(defaultSegmentSize); err != nil {
		return nil, err
	}
	return a, nil
}

// Initialize binds a zero-value Allocator to a default segment size.
func (a *Allocator) Initialize(defaultSegmentSize uintptr) error {
	if a.defaultSegmentSize != 0 {
		return allocerr.ErrAlreadyInitialized
	}
	if defaultSegmentSize == 0 {
		return fmt.Errorf("stackframe: %w: zero default segment size", allocerr.ErrInvalidArgument)
	}
	a.defaultSegmentSize = defaultSegmentSize
	return nil
}

// IsInitialized reports whether the allocator currently has a default
// segment size set.
func (a *Allocator) IsInitialized() bool {
	return a.defaultSegmentSize != 0
}

// FrameOverhead returns the number of bytes a pushed frame consumes
// before any of the caller's own allocations within it.
func (a *Allocator) FrameOverhead() uintptr {
	return frameDescriptorSize
}

// SegmentOverhead returns the number of bytes a segment's descriptor
// occupies before its usable region begins.
func (a *Allocator) SegmentOverhead() uintptr {
	return segmentDescriptorSize
}

func (a *Allocator) pushLiveStack(addr uintptr) {
	segment(addr).desc().setNext(a.liveSegment)
	a.liveSegment = addr
}

func (a *Allocator) pushFreeList(addr uintptr) {
	segment(addr).desc().setNext(a.freeSegmentList)
	a.freeSegmentList = addr
}

// findFreeSegment returns the address of a segment able to satisfy
// size/alignment: the current live segment if it already fits, else
// the first matching entry in the free list (spliced onto the live
// stack), else a freshly grown segment (also pushed onto the live
// stack). Returns 0 if a fresh segment could not be obtained.
func (a *Allocator) findFreeSegment(size, alignment uintptr) uintptr {
	if a.liveSegment != 0 {
		seg := segment(a.liveSegment)
		if arith.CanSatisfyAllocation(seg.usableBase(), seg.usableSize(), seg.desc().allocatedSize, size, alignment) {
			return a.liveSegment
		}
	}

	var prev uintptr
	for cur := a.freeSegmentList; cur != 0; {
		seg := segment(cur)
		next := seg.desc().next()
		if arith.CanSatisfyAllocation(seg.usableBase(), seg.usableSize(), 0, size, alignment) {
			if prev == 0 {
				a.freeSegmentList = next
			} else {
				segment(prev).desc().setNext(next)
			}
			a.pushLiveStack(cur)
			return cur
		}
		prev = cur
		cur = next
	}

	required := arith.AlignTo(size+alignment+segmentDescriptorSize, alignment)
	segSize := a.defaultSegmentSize
	if required > segSize {
		segSize = required
	}

	ptr, err := vmem.Alloc(segSize, vmem.AccessReadWrite, vmem.RegionPrivate|vmem.RegionAnonymous)
	if err != nil {
		return 0
	}
	desc := (*segmentDescriptor)(ptr)
	desc.packedLink = 0
	desc.segmentSize = segSize
	desc.allocatedSize = 0

	addr := uintptr(ptr)
	a.pushLiveStack(addr)
	return addr
}

// rawAllocate performs the bump step without the live-frame
// requirement Allocate enforces; PushFrame uses this directly so the
// very first frame can be pushed with no live frame yet.
func (a *Allocator) rawAllocate(size, alignment uintptr) unsafe.Pointer {
	segAddr := a.findFreeSegment(size, alignment)
	if segAddr == 0 {
		return nil
	}
	seg := segment(segAddr)
	start := arith.AllocateFromBuffer(seg.usableBase(), &seg.desc().allocatedSize, size, alignment, &a.lastAllocationOffset)
	return unsafe.Pointer(start)
}

// Allocate returns size bytes aligned to alignment from the current
// live frame's segment, growing or reusing a segment as needed.
// Requires a live frame; returns nil without one.
func (a *Allocator) Allocate(size, alignment uintptr) unsafe.Pointer {
	if !a.IsInitialized() || a.liveFrame == 0 || size == 0 || !arith.IsPowerOfTwo(alignment) {
		return nil
	}
	return a.rawAllocate(size, alignment)
}

// Deallocate is a no-op; this allocator family never frees individual
// allocations outside of frame pop.
func (a *Allocator) Deallocate(ptr unsafe.Pointer, size uintptr) {}

// Reallocate resizes ptr in place when it is the most recent
// allocation in the current live segment and the growth fits that
// segment, otherwise falls back to allocate-and-copy (which may land
// in a different segment).
func (a *Allocator) Reallocate(ptr unsafe.Pointer, oldSize, newSize, alignment uintptr) unsafe.Pointer {
	if !a.IsInitialized() || a.liveFrame == 0 || newSize == 0 || !arith.IsPowerOfTwo(alignment) {
		return nil
	}

	if ptr != nil && a.liveSegment != 0 {
		seg := segment(a.liveSegment)
		if seg.usableBase()+a.lastAllocationOffset == uintptr(ptr) {
			delta := newSize - oldSize
			newAllocatedSize := seg.desc().allocatedSize + delta
			if newAllocatedSize <= seg.usableSize() {
				seg.desc().allocatedSize = newAllocatedSize
				return ptr
			}
		}
	}

	newPtr := a.rawAllocate(newSize, alignment)
	if newPtr == nil {
		return nil
	}
	if ptr != nil {
		copySize := oldSize
		if newSize < copySize {
			copySize = newSize
		}
		copy(unsafe.Slice((*byte)(newPtr), copySize), unsafe.Slice((*byte)(ptr), copySize))
	}
	return newPtr
}

// AllocatedSize returns the sum of allocated bytes across every
// segment currently on the live stack.
func (a *Allocator) AllocatedSize() uintptr {
	total := uintptr(0)
	for cur := a.liveSegment; cur != 0; {
		seg := segment(cur)
		total += seg.desc().allocatedSize
		cur = seg.desc().next()
	}
	return total
}

// HasLiveFrame reports whether a frame is currently pushed.
func (a *Allocator) HasLiveFrame() bool {
	return a.liveFrame != 0
}

// IsOwnerOf reports whether ptr lies in the allocated prefix of any
// segment currently on the live stack.
func (a *Allocator) IsOwnerOf(ptr unsafe.Pointer) bool {
	addr := uintptr(ptr)
	for cur := a.liveSegment; cur != 0; {
		seg := segment(cur)
		if arith.IsPointerInBuffer(addr, seg.usableBase(), seg.desc().allocatedSize) {
			return true
		}
		cur = seg.desc().next()
	}
	return false
}

// PushFrame opens a new frame and returns a token that releases
// everything allocated since this call when popped. Pop the returned
// token exactly once, typically via defer.
func (a *Allocator) PushFrame() (frame.Token, bool) {
	if !a.IsInitialized() {
		return frame.Token{}, false
	}
	ptr := a.rawAllocate(frameDescriptorSize, frameDescriptorAlign)
	if ptr == nil {
		return frame.Token{}, false
	}

	fd := (*frameDescriptor)(ptr)
	fd.prevFrame = a.liveFrame
	a.liveFrame = uintptr(ptr)
	return frame.New(a, uintptr(ptr)), true
}

// PopFrame implements frame.Popper. It requires the token's frame to
// be the topmost live frame; a stale token (one whose frame has
// already been popped, or that belongs to a different allocator
// entirely) is a silent no-op that returns false rather than an
// error, matching the rest of this family's failure-is-a-no-op
// policy.
func (a *Allocator) PopFrame(t *frame.Token) bool {
	addr := t.Mark()
	if addr != a.liveFrame {
		return false
	}

	fd := (*frameDescriptor)(unsafe.Pointer(addr))
	a.liveFrame = fd.prevFrame

	for cur := a.liveSegment; cur != 0; {
		seg := segment(cur)
		base := seg.usableBase()
		next := seg.desc().next()

		if arith.IsPointerInBuffer(addr, base, seg.usableSize()) {
			newAllocated := addr - base
			if newAllocated == 0 {
				seg.desc().allocatedSize = 0
				a.liveSegment = next
				a.pushFreeList(cur)
			} else {
				seg.desc().allocatedSize = newAllocated
			}
			return true
		}

		// Walked past this segment without finding the frame: every
		// allocation in it postdates the popped frame, so release it
		// in full.
		seg.desc().allocatedSize = 0
		a.liveSegment = next
		a.pushFreeList(cur)
		cur = next
	}
	return true
}

// RegisterSegment inserts a pre-provided, suitably-aligned buffer into
// the free list for future allocations to draw from. The allocator
// marks it externally managed, so Release unlinks it without freeing
// it.
func (a *Allocator) RegisterSegment(buffer []byte) error {
	if !a.IsInitialized() {
		return fmt.Errorf("stackframe: %w", allocerr.ErrInvalidArgument)
	}
	if uintptr(len(buffer)) <= segmentDescriptorSize {
		return fmt.Errorf("stackframe: %w: segment too small for its descriptor", allocerr.ErrInvalidArgument)
	}

	addr := uintptr(unsafe.Pointer(&buffer[0]))
	if !arith.IsAlignedTo(addr, segmentDescriptorAlign) {
		return fmt.Errorf("stackframe: %w: segment buffer is not %d-byte aligned", allocerr.ErrInvalidArgument, segmentDescriptorAlign)
	}

	desc := (*segmentDescriptor)(unsafe.Pointer(addr))
	desc.packedLink = flagExternallyManaged
	desc.segmentSize = uintptr(len(buffer))
	desc.allocatedSize = 0

	a.pushFreeList(addr)
	return nil
}

// Release returns the allocator to its uninitialized state, freeing
// every segment it owns and unlinking (without freeing) every
// externally-registered one. It refuses — leaking rather than
// corrupting live state — if a frame is still pushed.
func (a *Allocator) Release() bool {
	if !a.IsInitialized() {
		return true
	}
	if a.liveFrame != 0 {
		return false
	}

	releaseList := func(head uintptr) {
		for cur := head; cur != 0; {
			seg := segment(cur)
			next := seg.desc().next()
			if !seg.desc().externallyManaged() {
				_ = vmem.Free(unsafe.Pointer(cur), seg.desc().segmentSize)
			}
			cur = next
		}
	}
	releaseList(a.liveSegment)
	releaseList(a.freeSegmentList)

	*a = Allocator{}
	return true
}
