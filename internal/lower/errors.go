// Package lower - Error types for contract violations.
//
// A contract violation means the producer of the IR broke an assumption
// the pass relies on: an intrinsic with the wrong number of arguments, or a
// root count that is not a non-negative constant. Errors name the function,
// block and offending instruction.
//
// Example output:
//
//	@f: entry: %frame = call ptr @gc.new_frame(i32 %n): root count must be a constant
//
//	Suggestion: Number roots before this pass so frame sizes are known at compile time
package lower

import (
	"fmt"

	"github.com/kolkov/gclower/internal/ir"
)

// ContractError reports a violated intrinsic contract.
//
// Fields:
//   - Func: Name of the function being lowered
//   - Block: Label of the block holding the call
//   - Instr: Text of the offending instruction
//   - Message: Human-readable error description
//   - Suggestion: Optional hint for fixing the producer
//
// Thread Safety: Immutable after creation, safe for concurrent use.
type ContractError struct {
	Func       string
	Block      string
	Instr      string
	Message    string
	Suggestion string
}

// Error implements the error interface.
//
// Format: @func: block: instruction: message, or @func: block: message
// for errors about a whole block.
//
// If Suggestion is non-empty, it's appended on a new line with "Suggestion: " prefix.
func (e *ContractError) Error() string {
	result := fmt.Sprintf("@%s: %s: %s: %s", e.Func, e.Block, e.Instr, e.Message)
	if e.Instr == "" {
		result = fmt.Sprintf("@%s: %s: %s", e.Func, e.Block, e.Message)
	}
	if e.Suggestion != "" {
		result += fmt.Sprintf("\n\nSuggestion: %s", e.Suggestion)
	}
	return result
}

// NewContractError creates an error positioned at instruction in.
func NewContractError(in *ir.Instr, msg string) *ContractError {
	err := &ContractError{Instr: in.String(), Message: msg}
	if b := in.Block; b != nil {
		err.Block = b.Name()
		if f := b.Func; f != nil {
			err.Func = f.Name()
		}
	}
	return err
}

// NewBlockContractError creates an error positioned at block b.
func NewBlockContractError(b *ir.Block, msg string) *ContractError {
	err := &ContractError{Block: b.Name(), Message: msg}
	if f := b.Func; f != nil {
		err.Func = f.Name()
	}
	return err
}

// NewContractErrorWithSuggestion creates a positioned error with a hint.
//
// Example:
//
//	return NewContractErrorWithSuggestion(
//	    call,
//	    "root count must be a constant",
//	    "Number roots before this pass so frame sizes are known at compile time",
//	)
func NewContractErrorWithSuggestion(in *ir.Instr, msg, suggestion string) *ContractError {
	err := NewContractError(in, msg)
	err.Suggestion = suggestion
	return err
}
