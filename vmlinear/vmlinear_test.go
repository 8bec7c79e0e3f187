package vmlinear

import (
	"testing"
	"unsafe"

	"allocgo/internal/vmem"
)

func TestInitializeRejectsSubPageSize(t *testing.T) {
	if _, err := New(1); err == nil {
		t.Fatal("a size smaller than one page should be rejected")
	}
}

func TestCommitGrowsInPageStrides(t *testing.T) {
	if vmem.PageSize() != 4096 {
		t.Skip("this scenario's literal numbers assume a 4096-byte page")
	}

	a, err := New(1 << 16)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Release()

	if a.Allocate(2, 1) == nil {
		t.Fatal("allocation failed")
	}
	if a.AllocatedSize() != 2 || a.CommittedSize() != 4096 {
		t.Fatalf("allocatedSize=%d committedSize=%d, want 2 and 4096", a.AllocatedSize(), a.CommittedSize())
	}

	if a.Allocate(65534, 1) == nil {
		t.Fatal("allocation filling the rest of the reservation failed")
	}
	if a.AllocatedSize() != 65536 || a.CommittedSize() != 65536 {
		t.Fatalf("allocatedSize=%d committedSize=%d, want 65536 and 65536", a.AllocatedSize(), a.CommittedSize())
	}

	before := a.AllocatedSize()
	if a.Allocate(1, 1) != nil {
		t.Fatal("allocation past an exhausted reservation should fail")
	}
	if a.AllocatedSize() != before {
		t.Fatal("a failed allocation must not change allocator state")
	}
}

func TestAllocateCommitsOnDemand(t *testing.T) {
	pageSize := vmem.PageSize()
	a, err := New(pageSize * 4)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Release()

	p := a.Allocate(pageSize+1, 1)
	if p == nil {
		t.Fatal("allocation spanning into a second page should succeed")
	}
	if a.committedSize < pageSize*2 {
		t.Fatalf("committedSize = %d, want at least %d", a.committedSize, pageSize*2)
	}

	data := unsafe.Slice((*byte)(p), pageSize+1)
	data[0] = 1
	data[pageSize] = 2
	if data[0] != 1 || data[pageSize] != 2 {
		t.Fatal("committed pages should retain writes")
	}
}

func TestAllocateExhaustsReservation(t *testing.T) {
	pageSize := vmem.PageSize()
	a, err := New(pageSize)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Release()

	if a.Allocate(pageSize, 1) == nil {
		t.Fatal("exact-fit allocation should succeed")
	}
	if a.Allocate(1, 1) != nil {
		t.Fatal("allocation past the reservation should fail")
	}
}

func TestReallocateGrowAcrossPageBoundary(t *testing.T) {
	pageSize := vmem.PageSize()
	a, err := New(pageSize * 4)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Release()

	p := a.Allocate(8, 1)
	grown := a.Reallocate(p, 8, pageSize+8, 1)
	if grown != p {
		t.Fatalf("growing the most recent allocation should stay in place: got %p want %p", grown, p)
	}
	if a.committedSize < pageSize*2 {
		t.Fatalf("growth across a page boundary should commit the new page, committedSize=%d", a.committedSize)
	}
}

func TestResetDecommitsEverything(t *testing.T) {
	pageSize := vmem.PageSize()
	a, err := New(pageSize * 4)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Release()

	a.Allocate(pageSize*2, 1)
	a.Reset()

	if a.committedSize != 0 {
		t.Fatalf("committedSize after reset = %d, want 0", a.committedSize)
	}
	if a.allocatedSize != 0 {
		t.Fatalf("allocatedSize after reset = %d, want 0", a.allocatedSize)
	}

	if a.Allocate(pageSize, 1) == nil {
		t.Fatal("allocation should succeed again after reset")
	}
}

func TestReleaseThenReinitialize(t *testing.T) {
	pageSize := vmem.PageSize()
	a, err := New(pageSize)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	a.Release()

	if err := a.Initialize(pageSize); err != nil {
		t.Fatalf("re-initializing after release should succeed: %v", err)
	}
	a.Release()
}
