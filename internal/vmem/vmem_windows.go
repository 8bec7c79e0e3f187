//go:build windows

package vmem

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

func queryPageSize() uintptr {
	var info windows.SystemInfo
	windows.GetSystemInfo(&info)
	return uintptr(info.PageSize)
}

func toProtect(access AccessFlag) uint32 {
	switch {
	case access&AccessExec != 0 && access&AccessWrite != 0:
		return windows.PAGE_EXECUTE_READWRITE
	case access&AccessExec != 0:
		return windows.PAGE_EXECUTE_READ
	case access&AccessWrite != 0:
		return windows.PAGE_READWRITE
	case access&AccessRead != 0:
		return windows.PAGE_READONLY
	default:
		return windows.PAGE_NOACCESS
	}
}

// reserve maps to VirtualAlloc(MEM_RESERVE, PAGE_NOACCESS): an address
// range is set aside but no page is committed, matching the "safe mode"
// discipline used on the unix backend.
func reserve(size uintptr, access AccessFlag, region RegionFlag) (unsafe.Pointer, error) {
	addr, err := windows.VirtualAlloc(0, size, windows.MEM_RESERVE, windows.PAGE_NOACCESS)
	if err != nil {
		return nil, fmt.Errorf("vmem: reserve %d bytes: %w", size, err)
	}
	return unsafe.Pointer(addr), nil
}

func commit(ptr unsafe.Pointer, size uintptr, access AccessFlag, region RegionFlag) error {
	_, err := windows.VirtualAlloc(uintptr(ptr), size, windows.MEM_COMMIT, toProtect(access))
	if err != nil {
		return fmt.Errorf("vmem: commit %d bytes at %p: %w", size, ptr, err)
	}
	return nil
}

func decommit(ptr unsafe.Pointer, size uintptr) error {
	if err := windows.VirtualFree(uintptr(ptr), size, windows.MEM_DECOMMIT); err != nil {
		return fmt.Errorf("vmem: decommit %d bytes at %p: %w", size, ptr, err)
	}
	return nil
}

func release(ptr unsafe.Pointer, size uintptr) error {
	if err := windows.VirtualFree(uintptr(ptr), 0, windows.MEM_RELEASE); err != nil {
		return fmt.Errorf("vmem: release %d bytes at %p: %w", size, ptr, err)
	}
	return nil
}
