package stackframe

import (
	"testing"
	"unsafe"
)

func TestAllocateWithoutFrameFails(t *testing.T) {
	a, err := New(1024)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Release()

	if a.Allocate(8, 1) != nil {
		t.Fatal("allocating with no live frame should fail")
	}
}

func TestPushPopReturnsToBaseline(t *testing.T) {
	a, err := New(1024)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Release()

	tok, ok := a.PushFrame()
	if !ok {
		t.Fatal("PushFrame failed")
	}
	if a.liveFrame == 0 {
		t.Fatal("live frame should be set after push")
	}
	if segment(a.liveSegment).desc().allocatedSize != frameDescriptorSize {
		t.Fatalf("allocatedSize = %d, want %d", segment(a.liveSegment).desc().allocatedSize, frameDescriptorSize)
	}

	// An allocation larger than the segment forces a new segment.
	p := a.Allocate(2048, 1)
	if p == nil {
		t.Fatal("large allocation should grow a new segment")
	}
	if !a.IsOwnerOf(p) {
		t.Fatal("the new allocation should be owned")
	}

	tok.Pop()
	if a.liveFrame != 0 {
		t.Fatal("live frame should be cleared after pop")
	}

	total := uintptr(0)
	for cur := a.liveSegment; cur != 0; cur = segment(cur).desc().next() {
		total += segment(cur).desc().allocatedSize
	}
	if total != 0 {
		t.Fatalf("allocated size across live segments = %d, want 0", total)
	}
}

func TestPopAcrossMultipleSegments(t *testing.T) {
	a, err := New(1024)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Release()

	tok, ok := a.PushFrame()
	if !ok {
		t.Fatal("PushFrame failed")
	}

	for i := 0; i < 3; i++ {
		if a.Allocate(900, 1) == nil {
			t.Fatalf("allocation %d of 900 bytes failed", i)
		}
	}

	segCount := 0
	for cur := a.liveSegment; cur != 0; cur = segment(cur).desc().next() {
		segCount++
	}
	if segCount < 2 {
		t.Fatalf("expected at least 2 live segments, got %d", segCount)
	}

	tok.Pop()
	if a.liveFrame != 0 {
		t.Fatal("live frame should be nil after pop")
	}

	for cur := a.liveSegment; cur != 0; cur = segment(cur).desc().next() {
		if segment(cur).desc().allocatedSize != 0 {
			t.Fatalf("segment %#x still has allocatedSize = %d, want 0", cur, segment(cur).desc().allocatedSize)
		}
	}
}

func TestNestedFramesPopInOrder(t *testing.T) {
	a, err := New(1024)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Release()

	f1, _ := a.PushFrame()
	p1 := a.Allocate(16, 1)
	f2, _ := a.PushFrame()
	p2 := a.Allocate(16, 1)

	if p1 == nil || p2 == nil {
		t.Fatal("allocations inside frames should succeed")
	}

	f2.Pop()
	if !a.IsOwnerOf(p1) {
		t.Fatal("popping the inner frame should not affect the outer frame's allocation")
	}

	f1.Pop()
	if a.liveFrame != 0 {
		t.Fatal("live frame should be nil after popping both frames")
	}
}

func TestPopperIgnoresStaleToken(t *testing.T) {
	a, err := New(1024)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Release()

	f1, _ := a.PushFrame()
	f2, _ := a.PushFrame()

	if f1.Pop() { // not the topmost frame: must be a no-op
		t.Fatal("popping a non-topmost frame should report false")
	}
	if a.liveFrame == 0 {
		t.Fatal("popping a non-topmost frame should not clear the live frame")
	}

	if !f2.Pop() {
		t.Fatal("popping the topmost frame should report true")
	}
	if f1.Pop() { // already implicitly invalidated; must still be a no-op
		t.Fatal("popping an already-invalidated token should report false")
	}
}

func TestPopIsIdempotent(t *testing.T) {
	a, err := New(1024)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Release()

	tok, _ := a.PushFrame()

	if !tok.Pop() {
		t.Fatal("first Pop of a live token should report true")
	}
	if tok.Pop() {
		t.Fatal("second Pop of an already-popped token should report false")
	}
}

func TestReallocateGrowsInPlaceWithinSegment(t *testing.T) {
	a, err := New(1024)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Release()

	tok, _ := a.PushFrame()
	defer tok.Pop()

	p := a.Allocate(8, 1)
	grown := a.Reallocate(p, 8, 32, 1)
	if grown != p {
		t.Fatalf("growing the most recent allocation should stay in place: got %p want %p", grown, p)
	}
}

func TestReallocateFallsThroughWhenSegmentFull(t *testing.T) {
	a, err := New(128)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Release()

	tok, _ := a.PushFrame()
	defer tok.Pop()

	p := a.Allocate(8, 1)
	data := unsafe.Slice((*byte)(p), 8)
	for i := range data {
		data[i] = byte(i + 10)
	}

	grown := a.Reallocate(p, 8, 512, 1)
	if grown == nil {
		t.Fatal("growth past segment capacity should fall back to allocate-and-copy")
	}
	if grown == p {
		t.Fatal("a growth requiring a new segment must move")
	}
	newData := unsafe.Slice((*byte)(grown), 8)
	for i := range newData {
		if newData[i] != byte(i+10) {
			t.Fatalf("copied byte %d = %d, want %d", i, newData[i], i+10)
		}
	}
}

func TestRegisterSegmentIsReusedAndNotFreed(t *testing.T) {
	a, err := New(1024)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Release()

	buf := make([]byte, 256)
	if err := a.RegisterSegment(buf); err != nil {
		t.Fatalf("RegisterSegment: %v", err)
	}

	tok, _ := a.PushFrame()
	p := a.Allocate(16, 1)
	if p == nil {
		t.Fatal("allocation after registering a segment should succeed")
	}

	registeredAddr := uintptr(unsafe.Pointer(&buf[0]))
	if a.liveSegment != registeredAddr {
		t.Fatalf("the registered segment should have been picked up from the free list, liveSegment=%#x want=%#x", a.liveSegment, registeredAddr)
	}

	tok.Pop()
	if ok := a.Release(); !ok {
		t.Fatal("Release should succeed once every frame is popped")
	}
	// buf must still be valid Go memory: Release should not have freed it.
	buf[0] = 0x99
}

func TestReleaseRefusesWithLiveFrame(t *testing.T) {
	a, err := New(1024)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	tok, _ := a.PushFrame()
	if a.Release() {
		t.Fatal("Release should refuse while a frame is still live")
	}

	tok.Pop()
	if !a.Release() {
		t.Fatal("Release should succeed once the frame is popped")
	}
}
