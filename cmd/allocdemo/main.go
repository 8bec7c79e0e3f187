package main

import (
	"fmt"

	"allocgo"
)

func main() {
	linearDemo()
	vmLinearDemo()
	stackFrameDemo()
	vmStackFrameDemo()
}

func linearDemo() {
	buf := make([]byte, 256)
	a, err := allocgo.NewLinear(buf)
	if err != nil {
		fmt.Println("linear: init failed:", err)
		return
	}

	fmt.Println("linear: before allocated =", a.AllocatedSize())
	p := a.Allocate(16, 8)
	p = a.Reallocate(p, 16, 48, 8)
	_ = allocgo.Bytes(p, 48)
	fmt.Println("linear: after allocated =", a.AllocatedSize())
}

func vmLinearDemo() {
	a, err := allocgo.NewVMLinear(1 << 16)
	if err != nil {
		fmt.Println("vmlinear: init failed:", err)
		return
	}
	defer a.Release()

	fmt.Println("vmlinear: before allocated =", a.AllocatedSize(), "committed =", a.CommittedSize())
	a.Allocate(2, 1)
	a.Allocate(65534, 1)
	fmt.Println("vmlinear: after allocated =", a.AllocatedSize(), "committed =", a.CommittedSize())
}

func stackFrameDemo() {
	a, err := allocgo.NewStackFrame(1024)
	if err != nil {
		fmt.Println("stackframe: init failed:", err)
		return
	}
	defer a.Release()

	tok, ok := a.PushFrame()
	if !ok {
		fmt.Println("stackframe: push frame failed")
		return
	}

	fmt.Println("stackframe: before allocated =", a.AllocatedSize())
	a.Allocate(900, 1)
	a.Allocate(900, 1)
	fmt.Println("stackframe: after allocated =", a.AllocatedSize())

	tok.Pop()
	fmt.Println("stackframe: after pop allocated =", a.AllocatedSize(), "live frame =", a.HasLiveFrame())
}

func vmStackFrameDemo() {
	a, err := allocgo.NewVMStackFrame(1 << 16)
	if err != nil {
		fmt.Println("vmstackframe: init failed:", err)
		return
	}
	defer a.Release()

	tok, ok := a.PushFrame()
	if !ok {
		fmt.Println("vmstackframe: push frame failed")
		return
	}

	a.Allocate(1<<14, 1)
	fmt.Println("vmstackframe: after allocate committed =", a.CommittedSize())

	tok.Pop()
	fmt.Println("vmstackframe: after pop allocated =", a.AllocatedSize(), "committed =", a.CommittedSize())

	a.DecommitSlack(1 << 12)
	fmt.Println("vmstackframe: after decommit committed =", a.CommittedSize())
}
