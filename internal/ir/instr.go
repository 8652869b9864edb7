package ir

// Op is an instruction opcode.
type Op uint8

const (
	OpInvalid Op = iota
	OpAlloca
	OpLoad
	OpStore
	OpGEP
	OpAdd
	OpSub
	OpAnd
	OpICmp
	OpCall
	OpBr
	OpCondBr
	OpRet
	OpPhi
	OpIntToPtr
	OpPtrToInt
	OpAddrSpaceCast
	OpZExt
	OpTrunc
	OpMemSet
	OpUnreachable

	// opPlaceholder stands in for a forward reference while parsing.
	opPlaceholder
)

var opNames = [...]string{
	OpInvalid:       "invalid",
	OpAlloca:        "alloca",
	OpLoad:          "load",
	OpStore:         "store",
	OpGEP:           "getelementptr",
	OpAdd:           "add",
	OpSub:           "sub",
	OpAnd:           "and",
	OpICmp:          "icmp",
	OpCall:          "call",
	OpBr:            "br",
	OpCondBr:        "br",
	OpRet:           "ret",
	OpPhi:           "phi",
	OpIntToPtr:      "inttoptr",
	OpPtrToInt:      "ptrtoint",
	OpAddrSpaceCast: "addrspacecast",
	OpZExt:          "zext",
	OpTrunc:         "trunc",
	OpMemSet:        "memset",
	OpUnreachable:   "unreachable",
	opPlaceholder:   "placeholder",
}

func (o Op) String() string {
	if int(o) < len(opNames) {
		return opNames[o]
	}
	return "invalid"
}

// IsTerminator reports whether o ends a block.
func (o Op) IsTerminator() bool {
	switch o {
	case OpBr, OpCondBr, OpRet, OpUnreachable:
		return true
	}
	return false
}

// IsCast reports whether o is a single-operand conversion.
func (o Op) IsCast() bool {
	switch o {
	case OpIntToPtr, OpPtrToInt, OpAddrSpaceCast, OpZExt, OpTrunc:
		return true
	}
	return false
}

// IsBinary reports whether o is a two-operand integer operation.
func (o Op) IsBinary() bool {
	return o == OpAdd || o == OpSub || o == OpAnd
}

// Pred is an integer comparison predicate.
type Pred uint8

const (
	PredEQ Pred = iota
	PredNE
	PredSLT
	PredSLE
	PredSGT
	PredSGE
	PredULT
	PredUGT
)

var predNames = [...]string{"eq", "ne", "slt", "sle", "sgt", "sge", "ult", "ugt"}

func (p Pred) String() string {
	if int(p) < len(predNames) {
		return predNames[p]
	}
	return "invalid"
}

// Attrs are return-value attributes of a call or a function declaration.
type Attrs struct {
	Align   int    // known alignment of the returned pointer, 0 if unknown
	Deref   uint64 // bytes known to be dereferenceable, 0 if unknown
	NoAlias bool
	NonNull bool
}

// Merge returns a with every attribute set in b applied on top.
func (a Attrs) Merge(b Attrs) Attrs {
	if b.Align > a.Align {
		a.Align = b.Align
	}
	if b.Deref > a.Deref {
		a.Deref = b.Deref
	}
	a.NoAlias = a.NoAlias || b.NoAlias
	a.NonNull = a.NonNull || b.NonNull
	return a
}

// Instr is one instruction. Operand layout per opcode:
//
//	alloca   Args[0] = element count; ElemType = slot type
//	load     Args[0] = address
//	store    Args[0] = value, Args[1] = address
//	gep      Args[0] = base, Args[1] = index; ElemType = element type
//	add/sub/and/icmp  Args[0], Args[1]
//	call     Callee, Args = arguments
//	br       Succs[0]
//	condbr   Args[0] = condition, Succs[0] = true, Succs[1] = false
//	ret      Args = [] or [value]
//	phi      Args[i] flows in from Incoming[i]
//	casts    Args[0]
//	memset   Args[0] = address, Args[1] = byte, Args[2] = length
type Instr struct {
	Op    Op
	typ   Type
	name  string
	Args  []Value
	Block *Block

	Callee   *Func
	ElemType Type
	Align    int
	Volatile bool
	InBounds bool
	NSW      bool
	Pred     Pred
	TBAA     string
	Attrs    Attrs
	Succs    []*Block
	Incoming []*Block
}

// Type implements Value.
func (i *Instr) Type() Type { return i.typ }

// Name implements Value.
func (i *Instr) Name() string { return i.name }

// Func returns the function containing i, or nil once i is erased.
func (i *Instr) Func() *Func {
	if i.Block == nil {
		return nil
	}
	return i.Block.Func
}

// Erased reports whether i has been removed from its block.
func (i *Instr) Erased() bool { return i.Block == nil }

// SetName renames i, making the name unique in its function.
func (i *Instr) SetName(name string) {
	f := i.Func()
	if f == nil {
		i.name = name
		return
	}
	f.release(i.name)
	i.name = f.unique(name)
}

// TakeName moves the name of other onto i, leaving other unnamed.
func (i *Instr) TakeName(other *Instr) {
	name := other.name
	other.SetName("")
	i.SetName(name)
}

// Next returns the instruction following i in its block, or nil.
func (i *Instr) Next() *Instr {
	if i.Block == nil {
		return nil
	}
	idx := i.Block.index(i)
	if idx < 0 || idx+1 >= len(i.Block.Instrs) {
		return nil
	}
	return i.Block.Instrs[idx+1]
}

// IsCallTo reports whether i is a call to f.
func (i *Instr) IsCallTo(f *Func) bool {
	return f != nil && i.Op == OpCall && i.Callee == f
}

// SetCalledFunction retargets a call, keeping its arguments.
func (i *Instr) SetCalledFunction(f *Func) {
	i.Callee = f
}

// ReplaceAllUsesWith rewrites every operand in the function that refers to
// i so that it refers to v instead.
func (i *Instr) ReplaceAllUsesWith(v Value) {
	f := i.Func()
	if f == nil {
		return
	}
	f.replaceUses(i, v)
}

// EraseFromParent removes i from its block.
func (i *Instr) EraseFromParent() {
	b := i.Block
	if b == nil {
		return
	}
	idx := b.index(i)
	if idx >= 0 {
		b.Instrs = append(b.Instrs[:idx], b.Instrs[idx+1:]...)
	}
	b.Func.release(i.name)
	i.Block = nil
}

// ReplaceWith is the single rewrite primitive used by every lowering:
// replace all uses of i with v, then erase i.
func (i *Instr) ReplaceWith(v Value) {
	i.ReplaceAllUsesWith(v)
	i.EraseFromParent()
}

// AddIncoming appends a (value, predecessor) pair to a phi.
func (i *Instr) AddIncoming(v Value, from *Block) {
	i.Args = append(i.Args, v)
	i.Incoming = append(i.Incoming, from)
}

// Uses returns the instructions of the function that use i as an operand.
func (i *Instr) Uses() []*Instr {
	f := i.Func()
	if f == nil {
		return nil
	}
	var uses []*Instr
	for _, b := range f.Blocks {
		for _, in := range b.Instrs {
			for _, a := range in.Args {
				if a == Value(i) {
					uses = append(uses, in)
					break
				}
			}
		}
	}
	return uses
}
