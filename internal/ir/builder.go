package ir

// Builder creates instructions at an insertion point: either right before
// an existing instruction or at the end of a block.
//
// Arithmetic on two constants is folded, a zero-index getelementptr folds
// to its base and a cast to the operand's own type folds to the operand.
// Callers therefore get a Value back, which is an *Instr only when an
// instruction was actually emitted.
type Builder struct {
	block  *Block
	before *Instr
}

// NewBuilderBefore returns a builder inserting right before in.
func NewBuilderBefore(in *Instr) *Builder {
	return &Builder{block: in.Block, before: in}
}

// NewBuilderAtEnd returns a builder appending to b.
func NewBuilderAtEnd(b *Block) *Builder {
	return &Builder{block: b}
}

// SetInsertBefore moves the insertion point right before in.
func (bld *Builder) SetInsertBefore(in *Instr) {
	bld.block = in.Block
	bld.before = in
}

// SetInsertAtEnd moves the insertion point to the end of b.
func (bld *Builder) SetInsertAtEnd(b *Block) {
	bld.block = b
	bld.before = nil
}

// Block returns the block instructions are inserted into.
func (bld *Builder) Block() *Block { return bld.block }

func (bld *Builder) insert(in *Instr, name string) *Instr {
	if bld.before != nil {
		bld.block.InsertBefore(in, bld.before)
	} else {
		bld.block.Append(in)
	}
	in.SetName(name)
	return in
}

// Alloca reserves count elements of elem on the stack. The result has
// pointer type ptrTy, which selects the alloca address space.
func (bld *Builder) Alloca(ptrTy, elem Type, count Value, align int, name string) *Instr {
	return bld.insert(&Instr{Op: OpAlloca, typ: ptrTy, ElemType: elem, Args: []Value{count}, Align: align}, name)
}

// Load reads a value of type t from ptr.
func (bld *Builder) Load(t Type, ptr Value, align int, name string) *Instr {
	return bld.insert(&Instr{Op: OpLoad, typ: t, Args: []Value{ptr}, Align: align}, name)
}

// VolatileLoad reads a value of type t from ptr and may not be removed or
// reordered by later optimization.
func (bld *Builder) VolatileLoad(t Type, ptr Value, name string) *Instr {
	in := bld.Load(t, ptr, 0, name)
	in.Volatile = true
	return in
}

// Store writes v to ptr.
func (bld *Builder) Store(v, ptr Value, align int) *Instr {
	return bld.insert(&Instr{Op: OpStore, typ: Void, Args: []Value{v, ptr}, Align: align}, "")
}

// GEP computes base + idx*sizeof(elem).
func (bld *Builder) GEP(elem Type, base, idx Value, inBounds bool, name string) Value {
	if c, ok := AsConst(idx); ok && c.Int == 0 {
		return base
	}
	return bld.insert(&Instr{Op: OpGEP, typ: base.Type(), ElemType: elem, Args: []Value{base, idx}, InBounds: inBounds}, name)
}

func (bld *Builder) binary(op Op, x, y Value, nsw bool, name string) Value {
	if cx, ok := AsConst(x); ok {
		if cy, ok := AsConst(y); ok {
			return ConstInt(x.Type(), fold(op, cx.Int, cy.Int))
		}
	}
	return bld.insert(&Instr{Op: op, typ: x.Type(), Args: []Value{x, y}, NSW: nsw}, name)
}

func fold(op Op, x, y int64) int64 {
	switch op {
	case OpAdd:
		return x + y
	case OpSub:
		return x - y
	case OpAnd:
		return x & y
	}
	panic("ir: cannot fold " + op.String())
}

// Add returns x + y.
func (bld *Builder) Add(x, y Value, name string) Value { return bld.binary(OpAdd, x, y, false, name) }

// NSWAdd returns x + y with no signed wrap.
func (bld *Builder) NSWAdd(x, y Value, name string) Value { return bld.binary(OpAdd, x, y, true, name) }

// NSWSub returns x - y with no signed wrap.
func (bld *Builder) NSWSub(x, y Value, name string) Value { return bld.binary(OpSub, x, y, true, name) }

// And returns x & y.
func (bld *Builder) And(x, y Value, name string) Value { return bld.binary(OpAnd, x, y, false, name) }

// ICmp compares x and y.
func (bld *Builder) ICmp(p Pred, x, y Value, name string) Value {
	return bld.insert(&Instr{Op: OpICmp, typ: I1, Pred: p, Args: []Value{x, y}}, name)
}

// Call calls callee with args. The call starts with the callee's return
// attributes.
func (bld *Builder) Call(callee *Func, args []Value, name string) *Instr {
	if callee.Ret.IsVoid() {
		name = ""
	}
	return bld.insert(&Instr{Op: OpCall, typ: callee.Ret, Callee: callee, Args: args, Attrs: callee.Attrs}, name)
}

// Br branches unconditionally to dest.
func (bld *Builder) Br(dest *Block) *Instr {
	return bld.insert(&Instr{Op: OpBr, typ: Void, Succs: []*Block{dest}}, "")
}

// CondBr branches to t when cond is true and to f otherwise.
func (bld *Builder) CondBr(cond Value, t, f *Block) *Instr {
	return bld.insert(&Instr{Op: OpCondBr, typ: Void, Args: []Value{cond}, Succs: []*Block{t, f}}, "")
}

// Ret returns v, or nothing when v is nil.
func (bld *Builder) Ret(v Value) *Instr {
	in := &Instr{Op: OpRet, typ: Void}
	if v != nil {
		in.Args = []Value{v}
	}
	return bld.insert(in, "")
}

// Phi creates an empty phi of type t.
func (bld *Builder) Phi(t Type, name string) *Instr {
	return bld.insert(&Instr{Op: OpPhi, typ: t}, name)
}

// Cast converts v to type to with the given conversion opcode.
func (bld *Builder) Cast(op Op, v Value, to Type, name string) Value {
	if v.Type() == to {
		return v
	}
	if c, ok := v.(*Const); ok && op != OpAddrSpaceCast {
		return &Const{typ: to, Int: truncate(to, c.Int)}
	}
	return bld.insert(&Instr{Op: op, typ: to, Args: []Value{v}}, name)
}

// IntToPtr converts an integer to a pointer.
func (bld *Builder) IntToPtr(v Value, to Type, name string) Value {
	return bld.Cast(OpIntToPtr, v, to, name)
}

// AddrSpaceCast moves a pointer into another address space.
func (bld *Builder) AddrSpaceCast(v Value, to Type, name string) Value {
	return bld.Cast(OpAddrSpaceCast, v, to, name)
}

// ZExtOrTrunc widens or narrows an integer to type to.
func (bld *Builder) ZExtOrTrunc(v Value, to Type, name string) Value {
	from := v.Type()
	switch {
	case from == to:
		return v
	case from.Bits < to.Bits:
		if c, ok := v.(*Const); ok {
			return ConstInt(to, int64(c.Uint()))
		}
		return bld.Cast(OpZExt, v, to, name)
	default:
		return bld.Cast(OpTrunc, v, to, name)
	}
}

// MemSet fills length bytes at ptr with the byte value val.
func (bld *Builder) MemSet(ptr, val, length Value, align int, tbaa string) *Instr {
	return bld.insert(&Instr{Op: OpMemSet, typ: Void, Args: []Value{ptr, val, length}, Align: align, TBAA: tbaa}, "")
}

// Unreachable terminates the block.
func (bld *Builder) Unreachable() *Instr {
	return bld.insert(&Instr{Op: OpUnreachable, typ: Void}, "")
}
