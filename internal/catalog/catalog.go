// Package catalog is the fixed registry of GC intrinsics and the runtime
// entry points they lower to.
//
// The catalog itself is static. Bindings attach it to one module: they
// find which intrinsics the module declares and declare runtime entry
// points on demand. Declaring an entry point is idempotent, so concurrent
// lowering of several functions of one module shares one declaration per
// entry point.
package catalog

import (
	"fmt"

	"github.com/samber/lo"

	"github.com/kolkov/gclower/internal/ir"
	"github.com/kolkov/gclower/internal/layout"
)

// Kind identifies an intrinsic.
type Kind int

const (
	GetStackTop Kind = iota
	NewFrame
	PushFrame
	PopFrame
	GetFrameSlot
	AllocBytes
	QueueRoot
	Safepoint
	WriteBarrier1
	WriteBarrier2
	WriteBarrier1Slow
	WriteBarrier2Slow

	NumKinds
)

// Intrinsic describes one platform-agnostic GC intrinsic.
type Intrinsic struct {
	Kind  Kind
	Name  string
	Arity int
	Doc   string

	ret    func(*layout.Layout) ir.Type
	params func(*layout.Layout) []ir.Type
}

// Signature returns the intrinsic's return and parameter types under l.
func (i Intrinsic) Signature(l *layout.Layout) (ir.Type, []ir.Type) {
	return i.ret(l), i.params(l)
}

func fixed(t ir.Type) func(*layout.Layout) ir.Type { return func(*layout.Layout) ir.Type { return t } }

func params(ts ...ir.Type) func(*layout.Layout) []ir.Type {
	return func(*layout.Layout) []ir.Type { return ts }
}

var intrinsics = [NumKinds]Intrinsic{
	GetStackTop: {
		Name: "gc.get_stack_top", Arity: 0,
		Doc: "address of the thread's shadow-stack top cell; enables lowering",
		ret: fixed(ir.Ptr), params: params(),
	},
	NewFrame: {
		Name: "gc.new_frame", Arity: 1,
		Doc: "allocate a zeroed frame of N roots",
		ret: fixed(ir.Ptr), params: params(ir.I32),
	},
	PushFrame: {
		Name: "gc.push_frame", Arity: 2,
		Doc: "write the frame header and link the frame as the new top",
		ret: fixed(ir.Void), params: params(ir.Ptr, ir.I32),
	},
	PopFrame: {
		Name: "gc.pop_frame", Arity: 1,
		Doc: "restore the previous top",
		ret: fixed(ir.Void), params: params(ir.Ptr),
	},
	GetFrameSlot: {
		Name: "gc.get_frame_slot", Arity: 2,
		Doc: "address of root slot i",
		ret: fixed(ir.Ptr), params: params(ir.Ptr, ir.I32),
	},
	AllocBytes: {
		Name: "gc.alloc_bytes", Arity: 3,
		Doc: "allocate N bytes with a type tag",
		ret: fixed(ir.Ptr),
		params: func(l *layout.Layout) []ir.Type {
			return []ir.Type{ir.Ptr, l.SizeType(), ir.Ptr}
		},
	},
	QueueRoot: {
		Name: "gc.queue_root", Arity: 1,
		Doc: "queue an object for rescanning",
		ret: fixed(ir.Void), params: params(ir.Ptr),
	},
	Safepoint: {
		Name: "gc.safepoint", Arity: 1,
		Doc: "poll the signal page",
		ret: fixed(ir.Void), params: params(ir.Ptr),
	},
	WriteBarrier1: {
		Name: "gc.write_barrier_1", Arity: 1,
		Doc: "write barrier on one object",
		ret: fixed(ir.Void), params: params(ir.Ptr),
	},
	WriteBarrier2: {
		Name: "gc.write_barrier_2", Arity: 2,
		Doc: "write barrier on parent and child",
		ret: fixed(ir.Void), params: params(ir.Ptr, ir.Ptr),
	},
	WriteBarrier1Slow: {
		Name: "gc.write_barrier_1_slow", Arity: 1,
		Doc: "write barrier slow path, one object",
		ret: fixed(ir.Void), params: params(ir.Ptr),
	},
	WriteBarrier2Slow: {
		Name: "gc.write_barrier_2_slow", Arity: 2,
		Doc: "write barrier slow path, parent and child",
		ret: fixed(ir.Void), params: params(ir.Ptr, ir.Ptr),
	},
}

func init() {
	for k := range intrinsics {
		intrinsics[k].Kind = Kind(k)
	}
}

func (k Kind) String() string {
	if k >= 0 && k < NumKinds {
		return intrinsics[k].Name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Intrinsics returns every intrinsic in Kind order.
func Intrinsics() []Intrinsic {
	return append([]Intrinsic(nil), intrinsics[:]...)
}

// Get returns the intrinsic of kind k.
func Get(k Kind) Intrinsic {
	return intrinsics[k]
}

// Lookup finds an intrinsic by its IR name.
func Lookup(name string) (Intrinsic, bool) {
	return lo.Find(intrinsics[:], func(i Intrinsic) bool { return i.Name == name })
}
