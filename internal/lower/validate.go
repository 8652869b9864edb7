package lower

import (
	"fmt"
	"math"

	"github.com/kolkov/gclower/internal/catalog"
	"github.com/kolkov/gclower/internal/ir"
)

// maxRoots keeps an encoded frame header within 32 bits.
const maxRoots = math.MaxInt32 >> 2

// validate checks the contract of one intrinsic call.
func (fl *funcLowering) validate(in *ir.Instr, k catalog.Kind) error {
	intr := catalog.Get(k)
	if len(in.Args) != intr.Arity {
		return NewContractError(in, fmt.Sprintf("%s expects %d arguments, got %d", intr.Name, intr.Arity, len(in.Args)))
	}
	switch k {
	case catalog.NewFrame:
		_, err := rootCount(in, 0)
		return err
	case catalog.PushFrame:
		if err := framePointer(in); err != nil {
			return err
		}
		n, err := rootCount(in, 1)
		if err != nil {
			return err
		}
		if m, ok := fl.allocatedRoots(in.Args[0]); ok && m != n {
			return NewContractError(in, fmt.Sprintf("pushes %d roots onto a frame allocated for %d", n, m))
		}
	case catalog.PopFrame:
		return framePointer(in)
	case catalog.GetFrameSlot:
		if err := framePointer(in); err != nil {
			return err
		}
		idx, ok := ir.AsConst(in.Args[1])
		if !ok {
			return nil
		}
		if idx.Int < 0 {
			return NewContractError(in, fmt.Sprintf("frame slot index %d is negative", idx.Int))
		}
		if m, ok := fl.allocatedRoots(in.Args[0]); ok && idx.Int >= m {
			return NewContractError(in, fmt.Sprintf("frame slot index %d out of range for %d roots", idx.Int, m))
		}
	case catalog.AllocBytes:
		if !in.Args[0].Type().IsPtr() {
			return NewContractError(in, "allocation context must be a pointer")
		}
		if !in.Args[1].Type().IsInt() {
			return NewContractError(in, "allocation size must be an integer")
		}
		if in.Type() != ir.Ptr {
			return NewContractError(in, fmt.Sprintf("allocation result must be %s, got %s", ir.Ptr, in.Type()))
		}
	case catalog.Safepoint:
		if !in.Args[0].Type().IsPtr() {
			return NewContractError(in, "signal page operand must be a pointer")
		}
	}
	return nil
}

func framePointer(in *ir.Instr) error {
	if !in.Args[0].Type().IsPtr() {
		return NewContractError(in, "frame operand must be a pointer")
	}
	return nil
}

// rootCount returns operand k of in as a root count.
func rootCount(in *ir.Instr, k int) (int64, error) {
	c, ok := ir.AsConst(in.Args[k])
	if !ok {
		return 0, NewContractErrorWithSuggestion(in,
			"root count must be a constant",
			"Number roots before this pass so frame sizes are known at compile time")
	}
	if c.Int < 0 {
		return 0, NewContractError(in, fmt.Sprintf("root count %d is negative", c.Int))
	}
	if c.Int > maxRoots {
		return 0, NewContractError(in, fmt.Sprintf("root count %d exceeds %d", c.Int, maxRoots))
	}
	return c.Int, nil
}

// mustRootCount is rootCount for calls that already passed validation.
func mustRootCount(in *ir.Instr, k int) int64 {
	n, err := rootCount(in, k)
	if err != nil {
		panic(err)
	}
	return n
}

// allocatedRoots reports the root count of frame when it is still the
// result of a gc.new_frame call.
func (fl *funcLowering) allocatedRoots(frame ir.Value) (int64, bool) {
	call, ok := frame.(*ir.Instr)
	if !ok {
		return 0, false
	}
	if k, ok := fl.bind.Match(call); !ok || k != catalog.NewFrame || len(call.Args) != 1 {
		return 0, false
	}
	c, ok := ir.AsConst(call.Args[0])
	if !ok {
		return 0, false
	}
	return c.Int, true
}
