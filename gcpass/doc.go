// Package gcpass lowers platform-agnostic GC intrinsics into the code a
// shadow-stack runtime expects, and runs lowered programs on a simulated
// runtime.
//
// Front ends emit calls such as gc.new_frame, gc.push_frame and
// gc.alloc_bytes without knowing the target's pointer size, the runtime's
// thread-context layout or which collector is linked in. This package
// rewrites those calls into stack allocations, frame-link stores,
// safepoint polls and runtime calls, and for the cursor collector into an
// inline bump-pointer allocation with an out-of-line slow path.
//
// # Quick Start
//
// Lower a module from the command line:
//
//	$ gclower lower -gc cursor prog.gcir
//	$ gclower run -gc cursor -safepoints prog.gcir
//
// Or from Go:
//
//	out, err := gcpass.Lower(ctx, "prog.gcir", src, gcpass.Options{
//		Collector: gcpass.CollectorCursor,
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	fmt.Print(out.Text)
//
// # API Overview
//
// The package provides functions for:
//   - Lowering: [Lower], [LowerString], [Global]
//   - Execution on the simulated runtime: [Run]
//   - The pinning log: [EnablePinLog], [RecordPin], [RecordPinHere],
//     [SetPinCheckAlive], [SetPinTypeNamer], [CollectPins], [WritePinLog],
//     [PrintPinLog]
//   - Version information: [GetInfo], [Version], [ABI]
//
// # How It Works
//
// A function is lowered when it calls gc.get_stack_top. Each frame of N
// roots becomes N+2 zeroed pointer slots: a header encoding N, the link
// to the previous frame, then the roots. Pushing stores the header and
// link and publishes the frame in the thread's stack-top cell; popping
// restores the link.
//
//	; before
//	%frame = call ptr @gc.new_frame(i32 3)
//	call void @gc.push_frame(ptr %frame, i32 3)
//
//	; after
//	%frame = alloca ptr, i32 5, align 16
//	memset ptr %frame, i8 0, i64 40, align 16, !tbaa gcframe
//	store i64 12, ptr %frame, align 8, !tbaa gcframe
//	...
//
// Allocations of constant size are classified against the runtime's size
// classes. Small objects go to the class pool, oversize objects to the
// big-object allocator and dynamic sizes to gc_alloc_typed. Under the
// cursor collector small objects take a 16-byte aligned bump of the
// thread's cursor and call the pool allocator only when the region is
// exhausted.
//
// Intrinsics the selected collector does not lower stay in the output and
// are reported in [Output].Residual.
//
// # Pinning Log
//
// Programs run with [RunOptions].PinLog may call the external function
// gc_pin(ptr, i32 line). Pins are coalesced per object and source line and
// reported as JSON:
//
//	[
//	  {
//	    "pinned_object": "0x10040",
//	    "type": "pooled object",
//	    "pinning_sites": [
//	      {"filename": "prog.gcir", "lineno": 12, "count": 3}
//	    ]
//	  }
//	]
//
// # Examples
//
// See package-level examples in the documentation:
//   - [Example] - Lowering a function
//   - [Example_run] - Running a lowered program
//   - [Example_pinLog] - Recording pins
package gcpass
