package gcpass_test

import (
	"context"
	"fmt"
	"strings"

	"github.com/kolkov/gclower/gcpass"
)

const decls = `declare ptr @gc.get_stack_top()
declare ptr @gc.new_frame(i32)
declare void @gc.push_frame(ptr, i32)
declare void @gc.pop_frame(ptr)
declare ptr @gc.get_frame_slot(ptr, i32)
declare ptr @gc.alloc_bytes(ptr, i64, ptr)
declare void @gc.safepoint(ptr)
`

// Example demonstrates lowering a function for the cursor collector.
func Example() {
	src := decls + `
define void @f(ptr %ctx) {
entry:
  %top = call ptr @gc.get_stack_top()
  %frame = call ptr @gc.new_frame(i32 3)
  call void @gc.push_frame(ptr %frame, i32 3)
  %obj = call ptr @gc.alloc_bytes(ptr %ctx, i64 100, ptr null)
  %s = call ptr @gc.get_frame_slot(ptr %frame, i32 0)
  store ptr %obj, ptr %s, align 8
  call void @gc.pop_frame(ptr %frame)
  ret void
}
`
	out, err := gcpass.Lower(context.Background(), "f.gcir", []byte(src), gcpass.Options{
		Collector: gcpass.CollectorCursor,
	})
	if err != nil {
		fmt.Println("Error:", err)
		return
	}

	fmt.Println("functions lowered:", out.Lowered)
	fmt.Println("intrinsic calls rewritten:", out.Stats.Total())
	fmt.Println("inline allocations:", out.Stats.InlineAllocs)
	fmt.Println("frame bytes:", out.Stats.FrameBytes)
	fmt.Println("has slow path:", strings.Contains(out.Text, "slowpath:"))

	// Output:
	// functions lowered: 1
	// intrinsic calls rewritten: 5
	// inline allocations: 1
	// frame bytes: 40
	// has slow path: true
}

// Example_run demonstrates executing a lowered program and observing its
// shadow stack at a safepoint.
func Example_run() {
	src := decls + `
define i64 @main(ptr %ctx, ptr %page) {
entry:
  %top = call ptr @gc.get_stack_top()
  %frame = call ptr @gc.new_frame(i32 1)
  call void @gc.push_frame(ptr %frame, i32 1)
  %obj = call ptr @gc.alloc_bytes(ptr %ctx, i64 24, ptr null)
  %s = call ptr @gc.get_frame_slot(ptr %frame, i32 0)
  store ptr %obj, ptr %s, align 8
  call void @gc.safepoint(ptr %page)
  call void @gc.pop_frame(ptr %frame)
  ret i64 42
}
`
	res, err := gcpass.Run(context.Background(), "main.gcir", []byte(src), gcpass.RunOptions{
		Safepoints: true,
	})
	if err != nil {
		fmt.Println("Error:", err)
		return
	}

	fmt.Println("result:", res.Value)
	fmt.Println("frames at safepoint:", res.MaxFrames)
	fmt.Println("roots at safepoint:", res.MaxRoots)
	fmt.Println("pool allocations:", res.Runtime.PoolAllocs)

	// Output:
	// result: 42
	// frames at safepoint: 1
	// roots at safepoint: 1
	// pool allocations: 1
}

// Example_pinLog demonstrates the pinning log of a run.
func Example_pinLog() {
	src := `declare ptr @gc.get_stack_top()
declare ptr @gc.alloc_bytes(ptr, i64, ptr)
declare void @gc_pin(ptr, i32)

define void @main(ptr %ctx) {
entry:
  %top = call ptr @gc.get_stack_top()
  %obj = call ptr @gc.alloc_bytes(ptr %ctx, i64 24, ptr null)
  call void @gc_pin(ptr %obj, i32 7)
  call void @gc_pin(ptr %obj, i32 7)
  call void @gc_pin(ptr %obj, i32 3)
  ret void
}
`
	res, err := gcpass.Run(context.Background(), "prog.gcir", []byte(src), gcpass.RunOptions{
		PinLog: true,
	})
	if err != nil {
		fmt.Println("Error:", err)
		return
	}

	for _, obj := range res.Pins.Objects() {
		fmt.Println(obj.Type)
		for _, s := range obj.Sites {
			fmt.Printf("%s x%d\n", s.Site, s.Count)
		}
	}

	// Output:
	// pooled object
	// prog.gcir:3 x1
	// prog.gcir:7 x2
}
