package interp

import (
	"errors"
	"fmt"

	"github.com/kolkov/gclower/internal/ir"
)

var (
	// ErrNullDeref is a memory access inside the null guard area.
	ErrNullDeref = errors.New("null dereference")

	// ErrBadAddress is a memory access outside reserved memory.
	ErrBadAddress = errors.New("access outside reserved memory")

	// ErrOutOfMemory means the simulated address space is exhausted.
	ErrOutOfMemory = errors.New("out of memory")

	// ErrUnlowered is a call to a GC intrinsic that was not lowered.
	ErrUnlowered = errors.New("intrinsic was not lowered")

	// ErrStepLimit means execution ran longer than Options.MaxSteps.
	ErrStepLimit = errors.New("step limit exceeded")

	// ErrUnreachable means control reached an unreachable instruction.
	ErrUnreachable = errors.New("reached unreachable")
)

// ExecError reports a failure while executing an instruction.
//
// Fields:
//   - Func: Name of the executing function
//   - Block: Label of the current block
//   - Instr: Text of the failing instruction
//   - Err: Underlying cause, usually one of the Err* sentinels
type ExecError struct {
	Func  string
	Block string
	Instr string
	Err   error
}

// Error implements the error interface.
//
// Format: @func: block: instruction: cause
func (e *ExecError) Error() string {
	return fmt.Sprintf("@%s: %s: %s: %v", e.Func, e.Block, e.Instr, e.Err)
}

// Unwrap returns the cause.
func (e *ExecError) Unwrap() error { return e.Err }

func execError(in *ir.Instr, err error) error {
	var ee *ExecError
	if errors.As(err, &ee) {
		return err
	}
	out := &ExecError{Instr: in.String(), Err: err}
	if b := in.Block; b != nil {
		out.Block = b.Name()
		if f := b.Func; f != nil {
			out.Func = f.Name()
		}
	}
	return out
}
