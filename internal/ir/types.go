// Package ir implements the mutable function graph rewritten by the GC
// lowering pass.
//
// The representation is small: a Module holds declared and
// defined functions, a defined Func holds an ordered list of Blocks, and a
// Block holds an ordered list of Instrs. Blocks and instructions have stable
// identities (pointers), so a lowering routine can split a block, insert new
// blocks and replace values without invalidating references held elsewhere.
//
// Every rewrite goes through the same primitive: build the replacement with
// a Builder positioned at the target instruction, then call
// Instr.ReplaceWith (replace all uses, then erase).
//
// Thread Safety: a Func must be mutated by one goroutine at a time. Module
// level declaration lookups (Module.Lookup, Module.GetOrDeclare) are
// mutex-protected so that functions of one module can be lowered in
// parallel.
package ir

import "fmt"

// Kind classifies a Type.
type Kind uint8

const (
	// VoidKind is the type of instructions that produce no value.
	VoidKind Kind = iota
	// IntKind is a fixed-width integer.
	IntKind
	// PtrKind is an opaque pointer in some address space.
	PtrKind
)

// Type is a value type. Types are small comparable values.
type Type struct {
	Kind      Kind
	Bits      uint16 // integer width, zero for pointers and void
	AddrSpace uint16 // pointer address space
}

// Common types.
var (
	Void = Type{Kind: VoidKind}
	I1   = Type{Kind: IntKind, Bits: 1}
	I8   = Type{Kind: IntKind, Bits: 8}
	I32  = Type{Kind: IntKind, Bits: 32}
	I64  = Type{Kind: IntKind, Bits: 64}
	Ptr  = Type{Kind: PtrKind}
)

// IntType returns the integer type with the given width.
func IntType(bits int) Type {
	return Type{Kind: IntKind, Bits: uint16(bits)}
}

// PtrIn returns the pointer type in address space as.
func PtrIn(as int) Type {
	return Type{Kind: PtrKind, AddrSpace: uint16(as)}
}

// IsInt reports whether t is an integer type.
func (t Type) IsInt() bool { return t.Kind == IntKind }

// IsPtr reports whether t is a pointer type.
func (t Type) IsPtr() bool { return t.Kind == PtrKind }

// IsVoid reports whether t is void.
func (t Type) IsVoid() bool { return t.Kind == VoidKind }

// String returns the textual form used by the printer and parser.
func (t Type) String() string {
	switch t.Kind {
	case VoidKind:
		return "void"
	case IntKind:
		return fmt.Sprintf("i%d", t.Bits)
	case PtrKind:
		if t.AddrSpace != 0 {
			return fmt.Sprintf("ptr addrspace(%d)", t.AddrSpace)
		}
		return "ptr"
	default:
		return "<invalid>"
	}
}

// StoreSize returns the number of bytes a value of type t occupies in
// memory, given the target pointer size.
func (t Type) StoreSize(ptrSize int) int {
	switch t.Kind {
	case IntKind:
		return (int(t.Bits) + 7) / 8
	case PtrKind:
		return ptrSize
	default:
		return 0
	}
}
