// Package vmstackframe implements a frame-disciplined bump allocator
// over a single reserved virtual-memory range: the same push/pop
// semantics as the segmented stackframe package, but with on-demand
// page commit in place of segment growth, plus an explicit slack
// decommit operation since there is no free list to return memory to.
package vmstackframe

import (
	"fmt"
	"unsafe"

	"allocgo/internal/allocerr"
	"allocgo/internal/arith"
	"allocgo/internal/frame"
	"allocgo/internal/vmem"
)

type frameDescriptor struct {
	prevFrame uintptr
}

const (
	frameDescriptorSize  = unsafe.Sizeof(frameDescriptor{})
	frameDescriptorAlign = unsafe.Alignof(frameDescriptor{})
)

// Allocator is a frame-disciplined bump allocator over one reserved
// virtual-memory range. Not safe for concurrent use.
type Allocator struct {
	bufferBase           uintptr
	bufferSize           uintptr
	allocatedSize        uintptr
	committedSize        uintptr
	lastAllocationOffset uintptr
	liveFrame            uintptr
}

// New reserves size bytes of virtual memory for a frame-disciplined
// allocator. size must be a non-zero multiple of the page size.
func New(size uintptr) (*Allocator, error) {
	a := &Allocator{}
	if err := a.Initialize(size); err != nil {
		return nil, err
	}
	return a, nil
}

// Initialize reserves size bytes of virtual memory for a zero-value
// Allocator.
func (a *Allocator) Initialize(size uintptr) error {
	if a.bufferBase != 0 {
		return allocerr.ErrAlreadyInitialized
	}
	pageSize := vmem.PageSize()
	if size == 0 || size < pageSize {
		return fmt.Errorf("vmstackframe: %w: size %d smaller than one page (%d)", allocerr.ErrInvalidArgument, size, pageSize)
	}
	if !arith.IsAlignedTo(size, pageSize) {
		return fmt.Errorf("vmstackframe: %w: size %d is not a multiple of the page size (%d)", allocerr.ErrInvalidArgument, size, pageSize)
	}

	ptr, err := vmem.Reserve(size, vmem.AccessReadWrite, vmem.RegionPrivate|vmem.RegionAnonymous)
	if err != nil {
		return fmt.Errorf("vmstackframe: %w: %v", allocerr.ErrOutOfMemory, err)
	}

	a.bufferBase = uintptr(ptr)
	a.bufferSize = size
	a.allocatedSize = 0
	a.committedSize = 0
	a.lastAllocationOffset = size
	a.liveFrame = 0
	return nil
}

// IsInitialized reports whether the allocator currently holds a
// reserved virtual-memory range.
func (a *Allocator) IsInitialized() bool {
	return a.bufferBase != 0
}

// FrameOverhead returns the number of bytes a pushed frame consumes
// before any of the caller's own allocations within it.
func (a *Allocator) FrameOverhead() uintptr {
	return frameDescriptorSize
}

func (a *Allocator) ensureCommitted(newAllocatedSize uintptr) bool {
	pageSize := vmem.PageSize()
	neededCommitted := arith.AlignTo(newAllocatedSize, pageSize)
	if neededCommitted <= a.committedSize {
		return true
	}

	delta := neededCommitted - a.committedSize
	addr := unsafe.Pointer(a.bufferBase + a.committedSize)
	if err := vmem.Commit(addr, delta, vmem.AccessReadWrite, vmem.RegionPrivate|vmem.RegionAnonymous); err != nil {
		return false
	}
	a.committedSize = neededCommitted
	return true
}

// rawAllocate performs the bump step without the live-frame
// requirement Allocate enforces, so PushFrame can place the first
// frame descriptor before any frame exists.
func (a *Allocator) rawAllocate(size, alignment uintptr) unsafe.Pointer {
	if !arith.CanSatisfyAllocation(a.bufferBase, a.bufferSize, a.allocatedSize, size, alignment) {
		return nil
	}

	bufferHead := a.bufferBase + a.allocatedSize
	allocStart := arith.AlignTo(bufferHead, alignment)
	newAllocatedSize := a.allocatedSize + (allocStart + size - bufferHead)
	if !a.ensureCommitted(newAllocatedSize) {
		return nil
	}

	start := arith.AllocateFromBuffer(a.bufferBase, &a.allocatedSize, size, alignment, &a.lastAllocationOffset)
	return unsafe.Pointer(start)
}

// Allocate returns size bytes aligned to alignment from the reserved
// range, committing whatever additional pages are needed. Requires a
// live frame.
func (a *Allocator) Allocate(size, alignment uintptr) unsafe.Pointer {
	if !a.IsInitialized() || a.liveFrame == 0 || size == 0 || !arith.IsPowerOfTwo(alignment) {
		return nil
	}
	return a.rawAllocate(size, alignment)
}

// Deallocate is a no-op; this allocator family never frees individual
// allocations outside of frame pop.
func (a *Allocator) Deallocate(ptr unsafe.Pointer, size uintptr) {}

// Reallocate resizes ptr in place when it is the allocator's most
// recent allocation and the growth fits the reservation, otherwise
// falls back to allocate-and-copy.
func (a *Allocator) Reallocate(ptr unsafe.Pointer, oldSize, newSize, alignment uintptr) unsafe.Pointer {
	if !a.IsInitialized() || a.liveFrame == 0 || newSize == 0 || !arith.IsPowerOfTwo(alignment) {
		return nil
	}

	if ptr != nil && a.bufferBase+a.lastAllocationOffset == uintptr(ptr) {
		delta := newSize - oldSize
		newAllocatedSize := a.allocatedSize + delta
		if newAllocatedSize <= a.bufferSize && a.ensureCommitted(newAllocatedSize) {
			a.allocatedSize = newAllocatedSize
			return ptr
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

// AllocatedSize returns the number of bytes consumed so far.
func (a *Allocator) AllocatedSize() uintptr {
	return a.allocatedSize
}

// CommittedSize returns the number of bytes currently backed by real
// pages.
func (a *Allocator) CommittedSize() uintptr {
	return a.committedSize
}

// HasLiveFrame reports whether a frame is currently pushed.
func (a *Allocator) HasLiveFrame() bool {
	return a.liveFrame != 0
}

// IsOwnerOf reports whether ptr lies within the currently-allocated
// prefix of the reserved range.
func (a *Allocator) IsOwnerOf(ptr unsafe.Pointer) bool {
	if !a.IsInitialized() {
		return false
	}
	return arith.IsPointerInBuffer(uintptr(ptr), a.bufferBase, a.allocatedSize)
}

// PushFrame opens a new frame and returns a token that rewinds the
// allocator to this point when popped. Pop the returned token exactly
// once, typically via defer.
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

// PopFrame implements frame.Popper. Committed pages are retained for
// reuse by later allocations; call DecommitSlack to give idle pages
// back to the OS.
func (a *Allocator) PopFrame(t *frame.Token) bool {
	addr := t.Mark()
	if addr != a.liveFrame {
		return false
	}

	fd := (*frameDescriptor)(unsafe.Pointer(addr))
	a.liveFrame = fd.prevFrame
	a.allocatedSize = addr - a.bufferBase
	return true
}

// DecommitSlack gives pages beyond minSlack bytes of committed but
// unallocated tail back to the OS. minSlack must be page-aligned;
// otherwise the call is rejected and returns false without effect.
func (a *Allocator) DecommitSlack(minSlack uintptr) bool {
	if !a.IsInitialized() {
		return false
	}
	pageSize := vmem.PageSize()
	if !arith.IsAlignedTo(minSlack, pageSize) {
		return false
	}

	slack := a.committedSize - a.allocatedSize
	if slack <= minSlack {
		return true
	}

	target := arith.AlignTo(a.allocatedSize+minSlack, pageSize)
	if target >= a.committedSize {
		return true
	}

	delta := a.committedSize - target
	addr := unsafe.Pointer(a.bufferBase + target)
	if err := vmem.Decommit(addr, delta); err != nil {
		return false
	}
	a.committedSize = target
	return true
}

// Release refuses while a frame is live, leaking rather than
// corrupting state; otherwise it releases the reserved range in one
// call regardless of how much of it is currently committed.
func (a *Allocator) Release() bool {
	if !a.IsInitialized() {
		return true
	}
	if a.liveFrame != 0 {
		return false
	}
	_ = vmem.Release(unsafe.Pointer(a.bufferBase), a.bufferSize)
	*a = Allocator{}
	return true
}
