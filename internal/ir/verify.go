package ir

import (
	"errors"
	"fmt"
)

// VerifyError reports a malformed function.
type VerifyError struct {
	Func  string
	Block string
	Instr string
	Msg   string
}

func (e *VerifyError) Error() string {
	switch {
	case e.Instr != "":
		return fmt.Sprintf("@%s: %s: %s: %s", e.Func, e.Block, e.Instr, e.Msg)
	case e.Block != "":
		return fmt.Sprintf("@%s: %s: %s", e.Func, e.Block, e.Msg)
	default:
		return fmt.Sprintf("@%s: %s", e.Func, e.Msg)
	}
}

// VerifyModule verifies every defined function of m and joins the errors.
func VerifyModule(m *Module) error {
	var errs []error
	for _, f := range m.Defined() {
		if err := Verify(f); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Verify checks the structural invariants of a defined function: blocks
// end in exactly one terminator, phis lead their block and name every
// predecessor once, operands are live values of the same function with
// the types their instruction expects, and every definition dominates its
// uses. It returns the first problem found.
func Verify(f *Func) error {
	v := &verifier{f: f, p: newPrinter(f)}
	if len(f.Blocks) == 0 {
		return &VerifyError{Func: f.name, Msg: "function has no blocks"}
	}
	v.index = make(map[*Block]int, len(f.Blocks))
	for i, b := range f.Blocks {
		v.index[b] = i
	}
	for _, b := range f.Blocks {
		if err := v.block(b); err != nil {
			return err
		}
	}
	v.computeDominators()
	for _, b := range f.Blocks {
		for _, in := range b.Instrs {
			if err := v.dominance(in); err != nil {
				return err
			}
		}
	}
	return nil
}

type verifier struct {
	f     *Func
	p     *printer
	index map[*Block]int
	dom   [][]bool // dom[b][d]: d dominates b; nil for unreachable b
}

func (v *verifier) errorf(b *Block, in *Instr, format string, args ...any) error {
	e := &VerifyError{Func: v.f.name, Msg: fmt.Sprintf(format, args...)}
	if b != nil {
		e.Block = v.p.label(b)
	}
	if in != nil {
		e.Instr = v.p.instr(in)
	}
	return e
}

func (v *verifier) block(b *Block) error {
	if b.Func != v.f {
		return v.errorf(b, nil, "block belongs to another function")
	}
	if len(b.Instrs) == 0 {
		return v.errorf(b, nil, "empty block")
	}
	if b.Terminator() == nil {
		return v.errorf(b, nil, "block does not end in a terminator")
	}
	leadingPhis := true
	for k, in := range b.Instrs {
		if in.Block != b {
			return v.errorf(b, in, "instruction has the wrong parent block")
		}
		if in.Op.IsTerminator() && k != len(b.Instrs)-1 {
			return v.errorf(b, in, "terminator in the middle of a block")
		}
		if in.Op == OpPhi {
			if !leadingPhis {
				return v.errorf(b, in, "phi after a non-phi instruction")
			}
		} else {
			leadingPhis = false
		}
		if err := v.instr(b, in); err != nil {
			return err
		}
	}
	return nil
}

func (v *verifier) operand(b *Block, in *Instr, a Value) error {
	switch a := a.(type) {
	case nil:
		return v.errorf(b, in, "missing operand")
	case *Instr:
		if a.Op == opPlaceholder {
			return v.errorf(b, in, "unresolved reference %%%s", a.name)
		}
		if a.Erased() {
			return v.errorf(b, in, "operand refers to an erased instruction")
		}
		if a.Func() != v.f {
			return v.errorf(b, in, "operand defined in another function")
		}
		if a.typ.IsVoid() {
			return v.errorf(b, in, "void value used as an operand")
		}
	case *Param:
		if a.Func != v.f {
			return v.errorf(b, in, "parameter of another function")
		}
	}
	return nil
}

var operandCount = map[Op]int{
	OpAlloca: 1, OpLoad: 1, OpStore: 2, OpGEP: 2, OpAdd: 2, OpSub: 2, OpAnd: 2,
	OpICmp: 2, OpBr: 0, OpCondBr: 1, OpIntToPtr: 1, OpPtrToInt: 1,
	OpAddrSpaceCast: 1, OpZExt: 1, OpTrunc: 1, OpMemSet: 3, OpUnreachable: 0,
}

func (v *verifier) instr(b *Block, in *Instr) error {
	for _, a := range in.Args {
		if err := v.operand(b, in, a); err != nil {
			return err
		}
	}
	for _, s := range in.Succs {
		if _, ok := v.index[s]; !ok {
			return v.errorf(b, in, "branch to a block outside the function")
		}
	}
	if n, ok := operandCount[in.Op]; ok && len(in.Args) != n {
		return v.errorf(b, in, "%s takes %d operands, has %d", in.Op, n, len(in.Args))
	}

	switch in.Op {
	case OpLoad:
		if !in.Args[0].Type().IsPtr() {
			return v.errorf(b, in, "load address is not a pointer")
		}
	case OpStore:
		if !in.Args[1].Type().IsPtr() {
			return v.errorf(b, in, "store address is not a pointer")
		}
	case OpGEP, OpMemSet:
		if !in.Args[0].Type().IsPtr() {
			return v.errorf(b, in, "%s base is not a pointer", in.Op)
		}
	case OpAdd, OpSub, OpAnd, OpICmp:
		x, y := in.Args[0].Type(), in.Args[1].Type()
		if x != y || !x.IsInt() {
			return v.errorf(b, in, "operands must be integers of one type, have %s and %s", x, y)
		}
		if in.Op != OpICmp && in.typ != x {
			return v.errorf(b, in, "result type %s differs from operand type %s", in.typ, x)
		}
	case OpCondBr:
		if in.Args[0].Type() != I1 || len(in.Succs) != 2 {
			return v.errorf(b, in, "conditional branch needs an i1 condition and two targets")
		}
	case OpBr:
		if len(in.Succs) != 1 {
			return v.errorf(b, in, "branch needs one target")
		}
	case OpRet:
		switch {
		case len(in.Args) == 0 && !v.f.Ret.IsVoid():
			return v.errorf(b, in, "missing return value of type %s", v.f.Ret)
		case len(in.Args) == 1 && in.Args[0].Type() != v.f.Ret:
			return v.errorf(b, in, "returns %s from a function returning %s", in.Args[0].Type(), v.f.Ret)
		case len(in.Args) > 1:
			return v.errorf(b, in, "ret takes at most one operand")
		}
	case OpCall:
		if in.Callee == nil {
			return v.errorf(b, in, "call without callee")
		}
		params := in.Callee.ParamTypes()
		if len(params) != len(in.Args) {
			return v.errorf(b, in, "@%s takes %d arguments, got %d", in.Callee.name, len(params), len(in.Args))
		}
		for k, t := range params {
			if in.Args[k].Type() != t {
				return v.errorf(b, in, "argument %d of @%s is %s, want %s", k, in.Callee.name, in.Args[k].Type(), t)
			}
		}
		if in.typ != in.Callee.Ret {
			return v.errorf(b, in, "call result %s differs from @%s return type %s", in.typ, in.Callee.name, in.Callee.Ret)
		}
	case OpPhi:
		if len(in.Incoming) != len(in.Args) {
			return v.errorf(b, in, "phi has %d values for %d blocks", len(in.Args), len(in.Incoming))
		}
		preds := b.Preds()
		if len(preds) != len(in.Incoming) {
			return v.errorf(b, in, "phi has %d incoming blocks, block has %d predecessors", len(in.Incoming), len(preds))
		}
		for k, from := range in.Incoming {
			if !containsBlock(preds, from) {
				return v.errorf(b, in, "phi names %%%s, which is not a predecessor", v.p.label(from))
			}
			if in.Args[k].Type() != in.typ {
				return v.errorf(b, in, "phi value of type %s in phi of type %s", in.Args[k].Type(), in.typ)
			}
		}
	case OpIntToPtr:
		if !in.Args[0].Type().IsInt() || !in.typ.IsPtr() {
			return v.errorf(b, in, "inttoptr converts an integer to a pointer")
		}
	case OpPtrToInt:
		if !in.Args[0].Type().IsPtr() || !in.typ.IsInt() {
			return v.errorf(b, in, "ptrtoint converts a pointer to an integer")
		}
	case OpAddrSpaceCast:
		if !in.Args[0].Type().IsPtr() || !in.typ.IsPtr() {
			return v.errorf(b, in, "addrspacecast converts between pointers")
		}
	case OpZExt, OpTrunc:
		from := in.Args[0].Type()
		if !from.IsInt() || !in.typ.IsInt() ||
			in.Op == OpZExt && from.Bits >= in.typ.Bits ||
			in.Op == OpTrunc && from.Bits <= in.typ.Bits {
			return v.errorf(b, in, "invalid %s from %s to %s", in.Op, from, in.typ)
		}
	case opPlaceholder, OpInvalid:
		return v.errorf(b, in, "invalid instruction")
	}
	return nil
}

func containsBlock(list []*Block, b *Block) bool {
	for _, x := range list {
		if x == b {
			return true
		}
	}
	return false
}

// computeDominators runs the iterative data-flow formulation over the
// blocks in layout order. Unreachable blocks get no dominator set.
func (v *verifier) computeDominators() {
	n := len(v.f.Blocks)
	preds := make([][]int, n)
	reach := make([]bool, n)
	work := []int{0}
	reach[0] = true
	for len(work) > 0 {
		i := work[len(work)-1]
		work = work[:len(work)-1]
		for _, s := range v.f.Blocks[i].Succs() {
			j := v.index[s]
			preds[j] = append(preds[j], i)
			if !reach[j] {
				reach[j] = true
				work = append(work, j)
			}
		}
	}

	v.dom = make([][]bool, n)
	for i := range v.dom {
		if !reach[i] {
			continue
		}
		v.dom[i] = make([]bool, n)
		for d := range v.dom[i] {
			v.dom[i][d] = i != 0 || d == 0
		}
	}
	for changed := true; changed; {
		changed = false
		for i := 1; i < n; i++ {
			if !reach[i] {
				continue
			}
			for d := 0; d < n; d++ {
				in := d == i
				if !in {
					in = len(preds[i]) > 0
					for _, p := range preds[i] {
						if !v.dom[p][d] {
							in = false
							break
						}
					}
				}
				if in != v.dom[i][d] {
					v.dom[i][d] = in
					changed = true
				}
			}
		}
	}
}

func (v *verifier) dominates(def, use *Block) bool {
	d := v.dom[v.index[use]]
	return d == nil || d[v.index[def]]
}

func (v *verifier) dominance(in *Instr) error {
	b := in.Block
	for k, a := range in.Args {
		def, ok := a.(*Instr)
		if !ok {
			continue
		}
		if in.Op == OpPhi {
			from := in.Incoming[k]
			if def.Block != from && !v.dominates(def.Block, from) {
				return v.errorf(b, in, "phi value %s does not dominate the end of %%%s", v.p.ref(def), v.p.label(from))
			}
			continue
		}
		if def.Block == b {
			if b.index(def) >= b.index(in) {
				return v.errorf(b, in, "%s is used before its definition", v.p.ref(def))
			}
			continue
		}
		if !v.dominates(def.Block, b) {
			return v.errorf(b, in, "%s does not dominate this use", v.p.ref(def))
		}
	}
	return nil
}
