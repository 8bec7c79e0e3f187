//go:build unix

package vmem

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

func queryPageSize() uintptr {
	return uintptr(unix.Getpagesize())
}

func toProt(access AccessFlag) int {
	prot := unix.PROT_NONE
	if access&AccessRead != 0 {
		prot |= unix.PROT_READ
	}
	if access&AccessWrite != 0 {
		prot |= unix.PROT_WRITE
	}
	if access&AccessExec != 0 {
		prot |= unix.PROT_EXEC
	}
	return prot
}

func toMapFlags(region RegionFlag) int {
	flags := 0
	if region&RegionShared != 0 {
		flags |= unix.MAP_SHARED
	} else {
		flags |= unix.MAP_PRIVATE
	}
	if region&RegionAnonymous != 0 {
		flags |= unix.MAP_ANON
	}
	return flags
}

// reserve maps size bytes with PROT_NONE: no access is granted and no
// physical page is actually charged against the process until commit
// flips the protection back to access. This mirrors the "safe mode" OS X
// backend in the original gin library, which maps PROT_NONE on reserve
// and mprotect's to read-write on commit.
func reserve(size uintptr, access AccessFlag, region RegionFlag) (unsafe.Pointer, error) {
	data, err := unix.Mmap(-1, 0, int(size), unix.PROT_NONE, toMapFlags(region)|unix.MAP_ANON)
	if err != nil {
		return nil, fmt.Errorf("vmem: reserve %d bytes: %w", size, err)
	}
	return unsafe.Pointer(&data[0]), nil
}

func commit(ptr unsafe.Pointer, size uintptr, access AccessFlag, region RegionFlag) error {
	data := unsafe.Slice((*byte)(ptr), size)
	if err := unix.Mprotect(data, toProt(access)); err != nil {
		return fmt.Errorf("vmem: commit %d bytes at %p: %w", size, ptr, err)
	}
	return nil
}

// decommit releases the backing store for the range via MADV_FREE, then
// drops access to PROT_NONE so an accidental access after decommit
// faults immediately instead of silently reading stale pages.
func decommit(ptr unsafe.Pointer, size uintptr) error {
	data := unsafe.Slice((*byte)(ptr), size)
	if err := unix.Madvise(data, unix.MADV_FREE); err != nil {
		return fmt.Errorf("vmem: decommit %d bytes at %p: %w", size, ptr, err)
	}
	if err := unix.Mprotect(data, unix.PROT_NONE); err != nil {
		return fmt.Errorf("vmem: decommit %d bytes at %p: %w", size, ptr, err)
	}
	return nil
}

func release(ptr unsafe.Pointer, size uintptr) error {
	data := unsafe.Slice((*byte)(ptr), size)
	if err := unix.Munmap(data); err != nil {
		return fmt.Errorf("vmem: release %d bytes at %p: %w", size, ptr, err)
	}
	return nil
}
