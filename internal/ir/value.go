package ir

import "strconv"

// Value is anything an instruction can use as an operand.
type Value interface {
	Type() Type
	Name() string
}

// Const is an integer or null-pointer constant.
type Const struct {
	typ Type
	Int int64
}

// ConstInt returns an integer constant of type t.
func ConstInt(t Type, v int64) *Const {
	return &Const{typ: t, Int: truncate(t, v)}
}

// Null returns the null pointer constant of type t.
func Null(t Type) *Const {
	return &Const{typ: t}
}

// Type implements Value.
func (c *Const) Type() Type { return c.typ }

// Name implements Value. Constants are unnamed.
func (c *Const) Name() string { return "" }

// Uint returns the constant zero-extended to 64 bits.
func (c *Const) Uint() uint64 {
	if c.typ.IsInt() && c.typ.Bits < 64 {
		return uint64(c.Int) & (1<<c.typ.Bits - 1)
	}
	return uint64(c.Int)
}

func (c *Const) String() string {
	if c.typ.IsPtr() {
		if c.Int == 0 {
			return "null"
		}
		return strconv.FormatInt(c.Int, 10)
	}
	return strconv.FormatInt(c.Int, 10)
}

// truncate sign-extends v from the width of t, so that constants of the
// same width and value compare equal.
func truncate(t Type, v int64) int64 {
	if !t.IsInt() || t.Bits >= 64 || t.Bits == 0 {
		return v
	}
	shift := 64 - uint(t.Bits)
	if t.Bits == 1 {
		return v & 1
	}
	return v << shift >> shift
}

// AsConst returns v as an integer constant if it is one.
func AsConst(v Value) (*Const, bool) {
	c, ok := v.(*Const)
	if !ok || !c.typ.IsInt() {
		return nil, false
	}
	return c, true
}

// Param is a formal parameter of a function.
type Param struct {
	typ   Type
	name  string
	Index int
	Func  *Func
}

// Type implements Value.
func (p *Param) Type() Type { return p.typ }

// Name implements Value.
func (p *Param) Name() string { return p.name }
