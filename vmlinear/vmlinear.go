// Package vmlinear implements a virtual-memory-backed bump allocator:
// it reserves a contiguous address range up front and commits pages on
// demand as allocations consume them, trading the caller-buffer
// dependency of the linear package for direct OS virtual memory.
package vmlinear

import (
	"fmt"
	"unsafe"

	"allocgo/internal/allocerr"
	"allocgo/internal/arith"
	"allocgo/internal/vmem"
)

// Allocator is a bump allocator over a reserved virtual-memory range,
// with pages committed lazily as the bump cursor advances. Not safe
// for concurrent use.
type Allocator struct {
	bufferBase           uintptr
	bufferSize           uintptr
	allocatedSize        uintptr
	committedSize        uintptr
	lastAllocationOffset uintptr
}

// New reserves size bytes of virtual memory and returns an Allocator
// bound to it. size must be at least one page.
func New(size uintptr) (*Allocator, error) {
	a := &Allocator{}
	if err := a.Initialize(size); err != nil {
		return nil, err
	}
	return a, nil
}

// Initialize reserves size bytes of virtual memory for a zero-value
// Allocator. Calling it twice without an intervening Release returns
// ErrAlreadyInitialized.
func (a *Allocator) Initialize(size uintptr) error {
	if a.bufferBase != 0 {
		return allocerr.ErrAlreadyInitialized
	}
	pageSize := vmem.PageSize()
	if size == 0 || size < pageSize {
		return fmt.Errorf("vmlinear: %w: size %d smaller than one page (%d)", allocerr.ErrInvalidArgument, size, pageSize)
	}

	ptr, err := vmem.Reserve(size, vmem.AccessReadWrite, vmem.RegionPrivate|vmem.RegionAnonymous)
	if err != nil {
		return fmt.Errorf("vmlinear: %w: %v", allocerr.ErrOutOfMemory, err)
	}

	a.bufferBase = uintptr(ptr)
	a.bufferSize = size
	a.allocatedSize = 0
	a.committedSize = 0
	a.lastAllocationOffset = size
	return nil
}

// IsInitialized reports whether the allocator currently holds a
// reserved virtual-memory range.
func (a *Allocator) IsInitialized() bool {
	return a.bufferBase != 0
}

// Reset rewinds the allocator to empty, decommitting every page it had
// committed — this allocator's policy is to give all slack back to the
// OS on reset rather than keep pages warm for reuse.
func (a *Allocator) Reset() {
	if !a.IsInitialized() {
		return
	}
	if a.committedSize > 0 {
		_ = vmem.Decommit(unsafe.Pointer(a.bufferBase), a.committedSize)
	}
	a.allocatedSize = 0
	a.committedSize = 0
	a.lastAllocationOffset = a.bufferSize
}

// Release releases the reserved range back to the OS. Committed state
// is irrelevant: releasing the reservation discards any committed
// pages within it in one call.
func (a *Allocator) Release() {
	if !a.IsInitialized() {
		return
	}
	_ = vmem.Release(unsafe.Pointer(a.bufferBase), a.bufferSize)
	*a = Allocator{}
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

// Allocate returns size bytes aligned to alignment, committing
// whatever additional pages the new bump cursor requires. Returns nil
// if size is zero, alignment is not a power of two, the allocator is
// uninitialized, the reservation has no room left, or the commit call
// fails.
func (a *Allocator) Allocate(size, alignment uintptr) unsafe.Pointer {
	if !a.IsInitialized() || size == 0 || !arith.IsPowerOfTwo(alignment) {
		return nil
	}
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

// Deallocate is a no-op; this allocator family never frees individual
// allocations.
func (a *Allocator) Deallocate(ptr unsafe.Pointer, size uintptr) {}

// Reallocate resizes ptr in place when it is the allocator's most
// recent allocation and the growth fits (committing more pages if
// needed), otherwise falls back to allocate-and-copy.
func (a *Allocator) Reallocate(ptr unsafe.Pointer, oldSize, newSize, alignment uintptr) unsafe.Pointer {
	if !a.IsInitialized() || newSize == 0 || !arith.IsPowerOfTwo(alignment) {
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

	newPtr := a.Allocate(newSize, alignment)
	if newPtr == nil {
		return nil
	}
	if ptr != nil {
		copySize := oldSize
		if newSize < copySize {
			copySize = newSize
		}
		src := unsafe.Slice((*byte)(ptr), copySize)
		dst := unsafe.Slice((*byte)(newPtr), copySize)
		copy(dst, src)
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

// BufferSize returns the size of the reserved range.
func (a *Allocator) BufferSize() uintptr {
	return a.bufferSize
}

// IsOwnerOf reports whether ptr lies within the currently-allocated
// prefix of the reserved range.
func (a *Allocator) IsOwnerOf(ptr unsafe.Pointer) bool {
	if !a.IsInitialized() {
		return false
	}
	return arith.IsPointerInBuffer(uintptr(ptr), a.bufferBase, a.allocatedSize)
}
