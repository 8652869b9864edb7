package ir

import (
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Fprint writes the text form of m to w.
func Fprint(w io.Writer, m *Module) error {
	_, err := io.WriteString(w, m.String())
	return err
}

// String returns the text form of the module.
func (m *Module) String() string {
	var sb strings.Builder
	if m.ABI != "" {
		fmt.Fprintf(&sb, "target abi %q\n", m.ABI)
	}
	funcs := m.Funcs()
	for i, f := range funcs {
		// Declarations are grouped; definitions are set apart.
		switch {
		case i == 0:
			if m.ABI != "" {
				sb.WriteByte('\n')
			}
		case !f.IsDeclaration() || !funcs[i-1].IsDeclaration():
			sb.WriteByte('\n')
		}
		sb.WriteString(f.String())
	}
	return sb.String()
}

// String returns the text form of the function: a declare line or a full
// definition.
func (f *Func) String() string {
	var sb strings.Builder
	p := newPrinter(f)
	if f.IsDeclaration() {
		fmt.Fprintf(&sb, "declare %s @%s(", f.Ret, f.name)
		for i, param := range f.Params {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(param.typ.String())
		}
		sb.WriteByte(')')
		sb.WriteString(f.Attrs.String())
		sb.WriteByte('\n')
		return sb.String()
	}
	fmt.Fprintf(&sb, "define %s @%s(", f.Ret, f.name)
	for i, param := range f.Params {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%s %s", param.typ, p.ref(param))
	}
	sb.WriteByte(')')
	sb.WriteString(f.Attrs.String())
	sb.WriteString(" {\n")
	for i, b := range f.Blocks {
		if i > 0 {
			sb.WriteByte('\n')
		}
		fmt.Fprintf(&sb, "%s:\n", p.label(b))
		for _, in := range b.Instrs {
			sb.WriteString("  ")
			sb.WriteString(p.instr(in))
			sb.WriteByte('\n')
		}
	}
	sb.WriteString("}\n")
	return sb.String()
}

// String returns the text form of a single instruction. Unnamed values are
// numbered as in the printed function.
func (i *Instr) String() string {
	return newPrinter(i.Func()).instr(i)
}

// String returns the attributes in call-suffix form, each preceded by a
// space.
func (a Attrs) String() string {
	var sb strings.Builder
	if a.Align > 0 {
		fmt.Fprintf(&sb, " align %d", a.Align)
	}
	if a.Deref > 0 {
		fmt.Fprintf(&sb, " deref %d", a.Deref)
	}
	if a.NoAlias {
		sb.WriteString(" noalias")
	}
	if a.NonNull {
		sb.WriteString(" nonnull")
	}
	return sb.String()
}

type printer struct {
	slots map[any]int
}

// newPrinter numbers the unnamed parameters, blocks and values of f in
// program order. f may be nil for detached instructions.
func newPrinter(f *Func) *printer {
	p := &printer{slots: make(map[any]int)}
	if f == nil {
		return p
	}
	n := 0
	for _, param := range f.Params {
		if param.name == "" {
			p.slots[param] = n
			n++
		}
	}
	for _, b := range f.Blocks {
		if b.name == "" {
			p.slots[b] = n
			n++
		}
		for _, in := range b.Instrs {
			if in.name == "" && !in.typ.IsVoid() {
				p.slots[in] = n
				n++
			}
		}
	}
	return p
}

func (p *printer) label(b *Block) string {
	if b == nil {
		return "<nil>"
	}
	if b.name != "" {
		return b.name
	}
	if n, ok := p.slots[b]; ok {
		return strconv.Itoa(n)
	}
	return "<detached>"
}

func (p *printer) ref(v Value) string {
	switch v := v.(type) {
	case nil:
		return "<nil>"
	case *Const:
		return v.String()
	case *Func:
		return "@" + v.name
	case *Param:
		if v.name != "" {
			return "%" + v.name
		}
		if n, ok := p.slots[v]; ok {
			return "%" + strconv.Itoa(n)
		}
	case *Instr:
		if v.name != "" {
			return "%" + v.name
		}
		if n, ok := p.slots[v]; ok {
			return "%" + strconv.Itoa(n)
		}
	}
	return "<badref>"
}

func (p *printer) typed(v Value) string {
	if v == nil {
		return "<nil>"
	}
	return v.Type().String() + " " + p.ref(v)
}

func (p *printer) arg(in *Instr, k int) Value {
	if k < len(in.Args) {
		return in.Args[k]
	}
	return nil
}

func (p *printer) instr(in *Instr) string {
	var sb strings.Builder
	if !in.typ.IsVoid() {
		sb.WriteString(p.ref(in))
		sb.WriteString(" = ")
	}
	switch in.Op {
	case OpAlloca:
		fmt.Fprintf(&sb, "alloca %s, %s", in.ElemType, p.typed(p.arg(in, 0)))
		if in.Align > 0 {
			fmt.Fprintf(&sb, ", align %d", in.Align)
		}
		if in.typ.AddrSpace != 0 {
			fmt.Fprintf(&sb, ", addrspace(%d)", in.typ.AddrSpace)
		}
	case OpLoad:
		sb.WriteString("load ")
		if in.Volatile {
			sb.WriteString("volatile ")
		}
		fmt.Fprintf(&sb, "%s, %s", in.typ, p.typed(p.arg(in, 0)))
		p.memSuffix(&sb, in)
	case OpStore:
		sb.WriteString("store ")
		if in.Volatile {
			sb.WriteString("volatile ")
		}
		fmt.Fprintf(&sb, "%s, %s", p.typed(p.arg(in, 0)), p.typed(p.arg(in, 1)))
		p.memSuffix(&sb, in)
	case OpGEP:
		sb.WriteString("getelementptr ")
		if in.InBounds {
			sb.WriteString("inbounds ")
		}
		fmt.Fprintf(&sb, "%s, %s, %s", in.ElemType, p.typed(p.arg(in, 0)), p.typed(p.arg(in, 1)))
	case OpAdd, OpSub, OpAnd:
		sb.WriteString(in.Op.String())
		if in.NSW {
			sb.WriteString(" nsw")
		}
		fmt.Fprintf(&sb, " %s, %s", p.typed(p.arg(in, 0)), p.ref(p.arg(in, 1)))
	case OpICmp:
		fmt.Fprintf(&sb, "icmp %s %s, %s", in.Pred, p.typed(p.arg(in, 0)), p.ref(p.arg(in, 1)))
	case OpCall:
		callee := "<nil>"
		if in.Callee != nil {
			callee = in.Callee.name
		}
		fmt.Fprintf(&sb, "call %s @%s(", in.typ, callee)
		for k, a := range in.Args {
			if k > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(p.typed(a))
		}
		sb.WriteByte(')')
		sb.WriteString(in.Attrs.String())
	case OpBr:
		fmt.Fprintf(&sb, "br label %%%s", p.label(succ(in, 0)))
	case OpCondBr:
		fmt.Fprintf(&sb, "br %s, label %%%s, label %%%s",
			p.typed(p.arg(in, 0)), p.label(succ(in, 0)), p.label(succ(in, 1)))
	case OpRet:
		if len(in.Args) == 0 {
			sb.WriteString("ret void")
		} else {
			fmt.Fprintf(&sb, "ret %s", p.typed(in.Args[0]))
		}
	case OpPhi:
		fmt.Fprintf(&sb, "phi %s ", in.typ)
		for k, a := range in.Args {
			if k > 0 {
				sb.WriteString(", ")
			}
			var from *Block
			if k < len(in.Incoming) {
				from = in.Incoming[k]
			}
			fmt.Fprintf(&sb, "[ %s, %%%s ]", p.ref(a), p.label(from))
		}
	case OpIntToPtr, OpPtrToInt, OpAddrSpaceCast, OpZExt, OpTrunc:
		fmt.Fprintf(&sb, "%s %s to %s", in.Op, p.typed(p.arg(in, 0)), in.typ)
	case OpMemSet:
		fmt.Fprintf(&sb, "memset %s, %s, %s",
			p.typed(p.arg(in, 0)), p.typed(p.arg(in, 1)), p.typed(p.arg(in, 2)))
		p.memSuffix(&sb, in)
	case OpUnreachable:
		sb.WriteString("unreachable")
	default:
		sb.WriteString(in.Op.String())
	}
	return sb.String()
}

func (p *printer) memSuffix(sb *strings.Builder, in *Instr) {
	if in.Align > 0 {
		fmt.Fprintf(sb, ", align %d", in.Align)
	}
	if in.TBAA != "" {
		fmt.Fprintf(sb, ", !tbaa %s", in.TBAA)
	}
}

func succ(in *Instr, k int) *Block {
	if k < len(in.Succs) {
		return in.Succs[k]
	}
	return nil
}
