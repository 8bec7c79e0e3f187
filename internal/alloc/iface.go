// Package alloc defines the contract every concrete allocator in allocgo
// implements. It plays the same role the original library's abstract
// Allocator base class plays for its four concrete derivatives: a
// uniform surface that lets calling code swap one allocator for another
// without caring which memory strategy backs it.
package alloc

import "unsafe"

// Interface is the shape shared by every allocator in this module.
// Allocate, Deallocate, and IsOwnerOf never return an error: failure is
// communicated through a nil pointer, a no-op, or false respectively.
// error is reserved for the constructors, which fail only when a VM
// syscall or an argument check fails before the allocator exists.
type Interface interface {
	// Allocate returns size bytes aligned to alignment, or nil if the
	// request cannot be satisfied. alignment must be a power of two.
	Allocate(size, alignment uintptr) unsafe.Pointer

	// Deallocate returns memory previously obtained from Allocate. Every
	// implementation in this module treats this as a no-op, since these
	// are bump allocators, not general-purpose free-list allocators; a
	// Deallocate call never reclaims space.
	Deallocate(ptr unsafe.Pointer, size uintptr)

	// Reallocate returns an address with at least newSize usable bytes,
	// or nil if the request cannot be satisfied. When ptr is the most
	// recent allocation and there is room, it grows or shrinks in place
	// and returns ptr; otherwise (including a nil ptr) it allocates
	// fresh memory and copies min(oldSize, newSize) bytes into it.
	Reallocate(ptr unsafe.Pointer, oldSize, newSize, alignment uintptr) unsafe.Pointer

	// IsOwnerOf reports whether ptr was returned by this allocator and
	// has not been released back to the underlying buffer or VM range.
	IsOwnerOf(ptr unsafe.Pointer) bool
}
