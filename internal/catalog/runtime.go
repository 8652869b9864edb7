package catalog

import (
	"fmt"

	"github.com/samber/lo"

	"github.com/kolkov/gclower/internal/ir"
	"github.com/kolkov/gclower/internal/layout"
)

// Entry identifies a runtime entry point that lowered code calls.
type Entry int

const (
	PoolAlloc Entry = iota
	BigAlloc
	AllocTyped
	QueueRootFunc
	WB1
	WB2
	WB1Slow
	WB2Slow

	NumEntries
)

// RuntimeFunc describes a runtime entry point.
type RuntimeFunc struct {
	Entry Entry
	Name  string
	Attrs ir.Attrs

	ret    func(*layout.Layout) ir.Type
	params func(*layout.Layout) []ir.Type
}

// Signature returns the entry point's return and parameter types under l.
func (r RuntimeFunc) Signature(l *layout.Layout) (ir.Type, []ir.Type) {
	return r.ret(l), r.params(l)
}

// Allocators return fresh, never-null objects.
var allocAttrs = ir.Attrs{NoAlias: true, NonNull: true}

func sized(l *layout.Layout) []ir.Type { return []ir.Type{ir.Ptr, l.SizeType(), ir.Ptr} }

var runtimeFuncs = [NumEntries]RuntimeFunc{
	PoolAlloc: {
		Name: "gc_pool_alloc", Attrs: allocAttrs,
		ret: fixed(ir.Ptr), params: params(ir.Ptr, ir.I32, ir.I32, ir.Ptr),
	},
	BigAlloc:      {Name: "gc_big_alloc", Attrs: allocAttrs, ret: fixed(ir.Ptr), params: sized},
	AllocTyped:    {Name: "gc_alloc_typed", Attrs: allocAttrs, ret: fixed(ir.Ptr), params: sized},
	QueueRootFunc: {Name: "gc_queue_root", ret: fixed(ir.Void), params: params(ir.Ptr)},
	WB1:           {Name: "gc_wb_1", ret: fixed(ir.Void), params: params(ir.Ptr)},
	WB2:           {Name: "gc_wb_2", ret: fixed(ir.Void), params: params(ir.Ptr, ir.Ptr)},
	WB1Slow:       {Name: "gc_wb_1_slow", ret: fixed(ir.Void), params: params(ir.Ptr)},
	WB2Slow:       {Name: "gc_wb_2_slow", ret: fixed(ir.Void), params: params(ir.Ptr, ir.Ptr)},
}

func init() {
	for e := range runtimeFuncs {
		runtimeFuncs[e].Entry = Entry(e)
	}
}

func (e Entry) String() string {
	if e >= 0 && e < NumEntries {
		return runtimeFuncs[e].Name
	}
	return fmt.Sprintf("Entry(%d)", int(e))
}

// RuntimeFuncs returns every runtime entry point in Entry order.
func RuntimeFuncs() []RuntimeFunc {
	return append([]RuntimeFunc(nil), runtimeFuncs[:]...)
}

// Runtime returns the entry point e.
func Runtime(e Entry) RuntimeFunc {
	return runtimeFuncs[e]
}

// LookupRuntime finds a runtime entry point by symbol name.
func LookupRuntime(name string) (RuntimeFunc, bool) {
	return lo.Find(runtimeFuncs[:], func(r RuntimeFunc) bool { return r.Name == name })
}

// BarrierTarget maps a write-barrier intrinsic to its runtime entry point.
func BarrierTarget(k Kind) (Entry, bool) {
	switch k {
	case WriteBarrier1:
		return WB1, true
	case WriteBarrier2:
		return WB2, true
	case WriteBarrier1Slow:
		return WB1Slow, true
	case WriteBarrier2Slow:
		return WB2Slow, true
	}
	return 0, false
}
