// Package linear implements a buffer-backed bump allocator: allocations
// are carved sequentially out of a caller-supplied region and never
// individually freed. It is the simplest allocator in allocgo and the
// base every other allocator's realloc fast path is patterned after.
package linear

import (
	"fmt"
	"unsafe"

	"allocgo/internal/allocerr"
	"allocgo/internal/arith"
)

// Allocator is a bump allocator over a fixed-size, caller-owned buffer.
// It is not safe for concurrent use; callers sharing one across
// goroutines must provide their own mutual exclusion.
type Allocator struct {
	bufferBase           uintptr
	bufferSize           uintptr
	allocatedSize        uintptr
	lastAllocationOffset uintptr
}

// New constructs an Allocator over buffer. buffer must be non-empty; its
// length is the allocator's fixed capacity.
func New(buffer []byte) (*Allocator, error) {
	a := &Allocator{}
	if err := a.Initialize(buffer); err != nil {
		return nil, err
	}
	return a, nil
}

// Initialize binds a zero-value Allocator to buffer. Calling it twice
// without an intervening Release returns ErrAlreadyInitialized.
func (a *Allocator) Initialize(buffer []byte) error {
	if a.bufferBase != 0 {
		return allocerr.ErrAlreadyInitialized
	}
	if len(buffer) == 0 {
		return fmt.Errorf("linear: %w: empty buffer", allocerr.ErrInvalidArgument)
	}

	a.bufferBase = uintptr(unsafe.Pointer(&buffer[0]))
	a.bufferSize = uintptr(len(buffer))
	a.allocatedSize = 0
	a.lastAllocationOffset = a.bufferSize
	return nil
}

// IsInitialized reports whether the allocator is currently bound to a
// buffer.
func (a *Allocator) IsInitialized() bool {
	return a.bufferBase != 0
}

// Reset rewinds the allocator to empty without releasing the buffer.
// Every previously returned pointer becomes invalid to use.
func (a *Allocator) Reset() {
	if !a.IsInitialized() {
		return
	}
	a.allocatedSize = 0
	a.lastAllocationOffset = a.bufferSize
}

// Release returns the allocator to its uninitialized state. The
// backing buffer itself is owned by the caller and is not touched.
func (a *Allocator) Release() {
	*a = Allocator{}
}

// Allocate returns size bytes aligned to alignment, or nil if size is
// zero, alignment is not a power of two, the allocator is
// uninitialized, or the buffer has no room left.
func (a *Allocator) Allocate(size, alignment uintptr) unsafe.Pointer {
	if !a.IsInitialized() || size == 0 || !arith.IsPowerOfTwo(alignment) {
		return nil
	}
	if !arith.CanSatisfyAllocation(a.bufferBase, a.bufferSize, a.allocatedSize, size, alignment) {
		return nil
	}

	start := arith.AllocateFromBuffer(a.bufferBase, &a.allocatedSize, size, alignment, &a.lastAllocationOffset)
	return unsafe.Pointer(start)
}

// Deallocate is a no-op; this allocator family never frees individual
// allocations.
func (a *Allocator) Deallocate(ptr unsafe.Pointer, size uintptr) {}

// Reallocate resizes ptr in place when it is the allocator's most
// recent allocation and the growth fits, otherwise falls back to
// allocate-and-copy.
func (a *Allocator) Reallocate(ptr unsafe.Pointer, oldSize, newSize, alignment uintptr) unsafe.Pointer {
	if !a.IsInitialized() || newSize == 0 || !arith.IsPowerOfTwo(alignment) {
		return nil
	}

	if ptr != nil && a.bufferBase+a.lastAllocationOffset == uintptr(ptr) {
		// Shrinking wraps delta into a large positive value; the bounds
		// check below is the single source of truth either way.
		delta := newSize - oldSize
		newAllocatedSize := a.allocatedSize + delta
		if newAllocatedSize <= a.bufferSize {
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

// BufferSize returns the allocator's fixed capacity.
func (a *Allocator) BufferSize() uintptr {
	return a.bufferSize
}

// IsOwnerOf reports whether ptr lies within the currently-allocated
// prefix of the buffer.
func (a *Allocator) IsOwnerOf(ptr unsafe.Pointer) bool {
	if !a.IsInitialized() {
		return false
	}
	return arith.IsPointerInBuffer(uintptr(ptr), a.bufferBase, a.allocatedSize)
}
