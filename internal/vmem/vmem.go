// Package vmem abstracts the OS virtual-memory primitives the VM-backed
// allocators build on: reserve, commit, decommit, release, and the
// one-shot alloc/free pair. It plays the same role for this library that
// internal/mmap plays for the teacher's segment files, generalized from
// file-backed mappings to anonymous reservation-style ones.
package vmem

import (
	"sync"
	"unsafe"
)

// AccessFlag controls the CPU access permitted on a virtual-memory
// range. Flags combine with bitwise OR, the same way the teacher
// combines unix.PROT_READ|unix.PROT_WRITE in internal/mmap/mmap_unix.go.
type AccessFlag uint8

const (
	AccessNone  AccessFlag = 0
	AccessRead  AccessFlag = 1 << 0
	AccessWrite AccessFlag = 1 << 1
	AccessExec  AccessFlag = 1 << 2

	AccessReadWrite = AccessRead | AccessWrite
)

// RegionFlag describes how a virtual-memory range is shared and backed.
type RegionFlag uint8

const (
	RegionPrivate   RegionFlag = 1 << 0
	RegionShared    RegionFlag = 1 << 1
	RegionAnonymous RegionFlag = 1 << 2
)

var pageSize = sync.OnceValue(queryPageSize)

// PageSize returns the host's virtual-memory page size. It is queried
// once per process and cached; the allocators assume it never changes
// for the lifetime of the program.
func PageSize() uintptr {
	return pageSize()
}

// Alloc reserves and commits size bytes in one call, a convenience for
// callers that don't need the reserve/commit split (the segmented
// stack-frame allocator's fresh-segment path uses this).
func Alloc(size uintptr, access AccessFlag, region RegionFlag) (unsafe.Pointer, error) {
	ptr, err := reserve(size, access, region)
	if err != nil {
		return nil, err
	}
	if err := commit(ptr, size, access, region); err != nil {
		_ = release(ptr, size)
		return nil, err
	}
	return ptr, nil
}

// Free releases a range obtained through Alloc.
func Free(ptr unsafe.Pointer, size uintptr) error {
	return release(ptr, size)
}

// Reserve obtains a page-aligned address range without backing store.
func Reserve(size uintptr, access AccessFlag, region RegionFlag) (unsafe.Pointer, error) {
	return reserve(size, access, region)
}

// Commit makes a previously-reserved page-aligned range accessible per
// access.
func Commit(ptr unsafe.Pointer, size uintptr, access AccessFlag, region RegionFlag) error {
	return commit(ptr, size, access, region)
}

// Decommit releases backing store for a range while keeping the
// reservation alive.
func Decommit(ptr unsafe.Pointer, size uintptr) error {
	return decommit(ptr, size)
}

// Release destroys a reservation entirely, along with any committed
// backing store it still holds.
func Release(ptr unsafe.Pointer, size uintptr) error {
	return release(ptr, size)
}
