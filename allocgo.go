// Package allocgo re-exports the four allocator constructors under one
// import, the way shm_master.Open hides internal/engine.Open behind
// the top-level package: a caller who only needs one allocator flavor
// never has to reach into an internal subpackage directly.
package allocgo

import (
	"unsafe"

	"allocgo/internal/allocerr"
	"allocgo/linear"
	"allocgo/stackframe"
	"allocgo/vmlinear"
	"allocgo/vmstackframe"
)

// Sentinel construction errors, re-exported so callers can errors.Is
// against them without importing internal/allocerr directly.
var (
	ErrAlreadyInitialized = allocerr.ErrAlreadyInitialized
	ErrInvalidArgument    = allocerr.ErrInvalidArgument
	ErrOutOfMemory        = allocerr.ErrOutOfMemory
)

// NewLinear constructs a buffer-backed bump allocator over buffer.
func NewLinear(buffer []byte) (*linear.Allocator, error) {
	return linear.New(buffer)
}

// NewVMLinear constructs a bump allocator over a freshly reserved
// virtual-memory range of size bytes.
func NewVMLinear(size uintptr) (*vmlinear.Allocator, error) {
	return vmlinear.New(size)
}

// NewStackFrame constructs a segmented, frame-disciplined allocator
// whose freshly-grown segments default to defaultSegmentSize bytes.
func NewStackFrame(defaultSegmentSize uintptr) (*stackframe.Allocator, error) {
	return stackframe.New(defaultSegmentSize)
}

// NewVMStackFrame constructs a frame-disciplined allocator over a
// freshly reserved virtual-memory range of size bytes.
func NewVMStackFrame(size uintptr) (*vmstackframe.Allocator, error) {
	return vmstackframe.New(size)
}

// Bytes turns an address returned by an allocator into a []byte view
// of size bytes, the same memcpy-semantics view the teacher's
// bytesViewOf gives a typed pointer.
func Bytes(ptr unsafe.Pointer, size uintptr) []byte {
	if ptr == nil || size == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(ptr), size)
}
