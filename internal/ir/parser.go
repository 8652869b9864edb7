package ir

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

// ParseString parses a module from text. Errors carry "<input>" as the
// file name.
func ParseString(src string) (*Module, error) {
	return Parse("", []byte(src))
}

// Parse parses a module in .gcir text form. file is used in error
// positions only.
//
// Values and blocks may be referenced before they are defined. Numeric
// names (%0, %1, 2:) denote unnamed values and blocks, so printing a parsed
// module renumbers them but otherwise reproduces the input.
func Parse(file string, src []byte) (*Module, error) {
	toks, err := tokenize(file, src)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSuffix(filepath.Base(file), ".gcir")
	if file == "" {
		name = ""
	}
	p := &parser{
		file:     file,
		toks:     toks,
		mod:      NewModule(name),
		implicit: make(map[string]token),
	}
	if err := p.parseModule(); err != nil {
		return nil, err
	}
	return p.mod, nil
}

type parser struct {
	file     string
	toks     []token
	pos      int
	mod      *Module
	implicit map[string]token // functions called before their declaration

	fn       *Func
	locals   map[string]Value
	pending  map[string]token
	blocks   map[string]*Block
	defined  map[*Block]bool
	blockRef map[*Block]token
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) peekAt(k int) token {
	if p.pos+k < len(p.toks) {
		return p.toks[p.pos+k]
	}
	return p.toks[len(p.toks)-1]
}

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) errorf(t token, format string, args ...any) error {
	return &SyntaxError{File: p.file, Line: t.line, Col: t.col, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) isPunct(s string) bool {
	t := p.peek()
	return t.kind == tokPunct && t.text == s
}

func (p *parser) isWord(s string) bool {
	t := p.peek()
	return t.kind == tokWord && t.text == s
}

func (p *parser) acceptPunct(s string) bool {
	if p.isPunct(s) {
		p.next()
		return true
	}
	return false
}

func (p *parser) acceptWord(s string) bool {
	if p.isWord(s) {
		p.next()
		return true
	}
	return false
}

func (p *parser) expectPunct(s string) error {
	if t := p.next(); t.kind != tokPunct || t.text != s {
		return p.errorf(t, "expected %q, found %s", s, t)
	}
	return nil
}

func (p *parser) expectWord(s string) error {
	if t := p.next(); t.kind != tokWord || t.text != s {
		return p.errorf(t, "expected %q, found %s", s, t)
	}
	return nil
}

func (p *parser) expectKind(k tokKind, what string) (token, error) {
	t := p.next()
	if t.kind != k {
		return t, p.errorf(t, "expected %s, found %s", what, t)
	}
	return t, nil
}

func (p *parser) expectInt() (int64, error) {
	t, err := p.expectKind(tokInt, "integer")
	if err != nil {
		return 0, err
	}
	return p.integer(t)
}

func (p *parser) integer(t token) (int64, error) {
	n, err := strconv.ParseInt(t.text, 10, 64)
	if err == nil {
		return n, nil
	}
	u, uerr := strconv.ParseUint(t.text, 10, 64)
	if uerr != nil {
		return 0, p.errorf(t, "integer %s out of range", t.text)
	}
	return int64(u), nil
}

func (p *parser) parseModule() error {
	for {
		t := p.peek()
		switch {
		case t.kind == tokEOF:
			if ref, ok := earliest(p.implicit); ok {
				return p.errorf(ref, "call to undefined function @%s", ref.text)
			}
			return nil
		case t.kind == tokWord && t.text == "target":
			p.next()
			if err := p.expectWord("abi"); err != nil {
				return err
			}
			s, err := p.expectKind(tokString, "ABI version string")
			if err != nil {
				return err
			}
			p.mod.ABI = s.text
		case t.kind == tokWord && t.text == "declare":
			if err := p.parseDeclare(); err != nil {
				return err
			}
		case t.kind == tokWord && t.text == "define":
			if err := p.parseDefine(); err != nil {
				return err
			}
		default:
			return p.errorf(t, "expected declare, define or target, found %s", t)
		}
	}
}

func (p *parser) parseType() (Type, error) {
	t := p.next()
	if t.kind != tokWord {
		return Type{}, p.errorf(t, "expected type, found %s", t)
	}
	switch t.text {
	case "void":
		return Void, nil
	case "ptr":
		if !p.acceptWord("addrspace") {
			return Ptr, nil
		}
		if err := p.expectPunct("("); err != nil {
			return Type{}, err
		}
		as, err := p.expectInt()
		if err != nil {
			return Type{}, err
		}
		if as < 0 || as > 0xffff {
			return Type{}, p.errorf(t, "invalid address space %d", as)
		}
		if err := p.expectPunct(")"); err != nil {
			return Type{}, err
		}
		return PtrIn(int(as)), nil
	}
	if strings.HasPrefix(t.text, "i") {
		if bits, err := strconv.Atoi(t.text[1:]); err == nil && bits >= 1 && bits <= 64 {
			return IntType(bits), nil
		}
	}
	return Type{}, p.errorf(t, "unknown type %s", t)
}

func (p *parser) parseAttrs() (Attrs, error) {
	var a Attrs
	for {
		switch {
		case p.acceptWord("align"):
			n, err := p.expectInt()
			if err != nil {
				return a, err
			}
			a.Align = int(n)
		case p.acceptWord("deref"):
			n, err := p.expectInt()
			if err != nil {
				return a, err
			}
			a.Deref = uint64(n)
		case p.acceptWord("noalias"):
			a.NoAlias = true
		case p.acceptWord("nonnull"):
			a.NonNull = true
		default:
			return a, nil
		}
	}
}

func (p *parser) parseDeclare() error {
	p.next()
	ret, err := p.parseType()
	if err != nil {
		return err
	}
	nameTok, err := p.expectKind(tokGlobal, "function name")
	if err != nil {
		return err
	}
	if err := p.expectPunct("("); err != nil {
		return err
	}
	var params []Type
	for !p.isPunct(")") {
		if len(params) > 0 {
			if err := p.expectPunct(","); err != nil {
				return err
			}
		}
		t, err := p.parseType()
		if err != nil {
			return err
		}
		params = append(params, t)
	}
	p.next()
	attrs, err := p.parseAttrs()
	if err != nil {
		return err
	}
	if _, ok := p.implicit[nameTok.text]; ok {
		f, err := p.adoptImplicit(nameTok, ret, params)
		if err != nil {
			return err
		}
		f.Attrs = attrs
		return nil
	}
	if _, err := p.mod.Declare(nameTok.text, ret, params, attrs); err != nil {
		return p.errorf(nameTok, "%v", err)
	}
	return nil
}

// adoptImplicit turns a function created by an earlier call into the one
// being declared or defined.
func (p *parser) adoptImplicit(nameTok token, ret Type, params []Type) (*Func, error) {
	f := p.mod.Lookup(nameTok.text)
	if f.Ret != ret || !sameTypes(f.ParamTypes(), params) {
		return nil, p.errorf(nameTok, "@%s does not match the signature of an earlier call", nameTok.text)
	}
	delete(p.implicit, nameTok.text)
	return f, nil
}

func (p *parser) parseDefine() error {
	p.next()
	ret, err := p.parseType()
	if err != nil {
		return err
	}
	nameTok, err := p.expectKind(tokGlobal, "function name")
	if err != nil {
		return err
	}
	if err := p.expectPunct("("); err != nil {
		return err
	}
	var (
		params []Type
		names  []token
	)
	for !p.isPunct(")") {
		if len(params) > 0 {
			if err := p.expectPunct(","); err != nil {
				return err
			}
		}
		t, err := p.parseType()
		if err != nil {
			return err
		}
		n, err := p.expectKind(tokLocal, "parameter name")
		if err != nil {
			return err
		}
		params = append(params, t)
		names = append(names, n)
	}
	p.next()
	attrs, err := p.parseAttrs()
	if err != nil {
		return err
	}
	if err := p.expectPunct("{"); err != nil {
		return err
	}

	var f *Func
	if _, ok := p.implicit[nameTok.text]; ok {
		if f, err = p.adoptImplicit(nameTok, ret, params); err != nil {
			return err
		}
	} else if f, err = p.mod.Declare(nameTok.text, ret, params, Attrs{}); err != nil {
		return p.errorf(nameTok, "%v", err)
	}
	f.Attrs = attrs

	p.fn = f
	p.locals = make(map[string]Value)
	p.pending = make(map[string]token)
	p.blocks = make(map[string]*Block)
	p.defined = make(map[*Block]bool)
	p.blockRef = make(map[*Block]token)
	for i, n := range names {
		if _, dup := p.locals[n.text]; dup {
			return p.errorf(n, "parameter %%%s redefined", n.text)
		}
		if !isInteger(n.text) {
			f.Params[i].name = f.unique(n.text)
		}
		p.locals[n.text] = f.Params[i]
	}
	return p.parseBody(nameTok)
}

func (p *parser) parseBody(nameTok token) error {
	f := p.fn
	var cur *Block
	for {
		t := p.peek()
		switch {
		case t.kind == tokEOF:
			return p.errorf(t, "unexpected end of file in body of @%s", f.name)
		case t.kind == tokPunct && t.text == "}":
			p.next()
			return p.finishBody(nameTok)
		case t.kind == tokLabel:
			p.next()
			b, err := p.defineBlock(t)
			if err != nil {
				return err
			}
			cur = b
		default:
			if cur == nil {
				cur = &Block{Func: f}
				f.Blocks = append(f.Blocks, cur)
				p.defined[cur] = true
			}
			if err := p.parseInstr(cur); err != nil {
				return err
			}
		}
	}
}

func (p *parser) finishBody(nameTok token) error {
	f := p.fn
	if len(f.Blocks) == 0 {
		return p.errorf(nameTok, "function @%s has an empty body", f.name)
	}
	if ref, ok := earliest(p.pending); ok {
		return p.errorf(ref, "use of undefined value %%%s", ref.text)
	}
	for b, ref := range p.blockRef {
		if !p.defined[b] {
			return p.errorf(ref, "use of undefined label %%%s", ref.text)
		}
	}
	return nil
}

func earliest(refs map[string]token) (token, bool) {
	var (
		best  token
		found bool
	)
	for _, t := range refs {
		if !found || t.line < best.line || t.line == best.line && t.col < best.col {
			best, found = t, true
		}
	}
	return best, found
}

func (p *parser) newBlock(key string) *Block {
	b := &Block{Func: p.fn}
	if !isInteger(key) {
		b.name = p.fn.unique(key)
	}
	p.blocks[key] = b
	return b
}

func (p *parser) defineBlock(t token) (*Block, error) {
	b, ok := p.blocks[t.text]
	if ok && p.defined[b] {
		return nil, p.errorf(t, "label %s redefined", t.text)
	}
	if !ok {
		b = p.newBlock(t.text)
	}
	p.fn.Blocks = append(p.fn.Blocks, b)
	p.defined[b] = true
	return b, nil
}

func (p *parser) blockOperand() (*Block, error) {
	if err := p.expectWord("label"); err != nil {
		return nil, err
	}
	t, err := p.expectKind(tokLocal, "block label")
	if err != nil {
		return nil, err
	}
	return p.blockByRef(t), nil
}

func (p *parser) blockByRef(t token) *Block {
	if b, ok := p.blocks[t.text]; ok {
		return b
	}
	b := p.newBlock(t.text)
	p.blockRef[b] = t
	return b
}

// value resolves the operand token t as a value of type typ.
func (p *parser) value(typ Type, t token) (Value, error) {
	switch t.kind {
	case tokInt:
		n, err := p.integer(t)
		if err != nil {
			return nil, err
		}
		if typ.IsVoid() {
			return nil, p.errorf(t, "constant of type void")
		}
		if typ.IsPtr() {
			return &Const{typ: typ, Int: n}, nil
		}
		return ConstInt(typ, n), nil
	case tokWord:
		switch t.text {
		case "null":
			if !typ.IsPtr() {
				return nil, p.errorf(t, "null constant of non-pointer type %s", typ)
			}
			return Null(typ), nil
		case "true", "false":
			if !typ.IsInt() {
				return nil, p.errorf(t, "boolean constant of type %s", typ)
			}
			if t.text == "true" {
				return ConstInt(typ, 1), nil
			}
			return ConstInt(typ, 0), nil
		}
	case tokLocal:
		if v, ok := p.locals[t.text]; ok {
			if v.Type() != typ {
				return nil, p.errorf(t, "%%%s has type %s, used as %s", t.text, v.Type(), typ)
			}
			return v, nil
		}
		ph := &Instr{Op: opPlaceholder, typ: typ, name: t.text}
		p.locals[t.text] = ph
		p.pending[t.text] = t
		return ph, nil
	case tokGlobal:
		f := p.mod.Lookup(t.text)
		if f == nil {
			return nil, p.errorf(t, "use of undefined function @%s", t.text)
		}
		if !typ.IsPtr() {
			return nil, p.errorf(t, "function @%s used as %s", t.text, typ)
		}
		return f, nil
	}
	return nil, p.errorf(t, "expected value, found %s", t)
}

func (p *parser) typedValue() (Value, error) {
	typ, err := p.parseType()
	if err != nil {
		return nil, err
	}
	return p.value(typ, p.next())
}

// define binds the name in t to in, resolving earlier forward references.
func (p *parser) define(t token, in *Instr) error {
	if v, ok := p.locals[t.text]; ok {
		ph, isPlaceholder := v.(*Instr)
		if !isPlaceholder || ph.Op != opPlaceholder {
			return p.errorf(t, "value %%%s redefined", t.text)
		}
		if ph.typ != in.typ {
			return p.errorf(t, "%%%s defined as %s but used as %s", t.text, in.typ, ph.typ)
		}
		p.fn.replaceUses(ph, in)
		delete(p.pending, t.text)
	}
	p.locals[t.text] = in
	if !isInteger(t.text) {
		in.SetName(t.text)
	}
	return nil
}

func (p *parser) parseInstr(b *Block) error {
	var (
		nameTok token
		named   bool
	)
	if p.peek().kind == tokLocal && p.peekAt(1).kind == tokPunct && p.peekAt(1).text == "=" {
		nameTok = p.next()
		p.next()
		named = true
	}
	opTok, err := p.expectKind(tokWord, "instruction")
	if err != nil {
		return err
	}
	in, err := p.parseOp(opTok)
	if err != nil {
		return err
	}
	if named && in.typ.IsVoid() {
		return p.errorf(nameTok, "cannot name %s instruction of type void", opTok.text)
	}
	b.Append(in)
	if named {
		return p.define(nameTok, in)
	}
	return nil
}

var castOps = map[string]Op{
	"inttoptr":      OpIntToPtr,
	"ptrtoint":      OpPtrToInt,
	"addrspacecast": OpAddrSpaceCast,
	"zext":          OpZExt,
	"trunc":         OpTrunc,
}

var binaryOps = map[string]Op{"add": OpAdd, "sub": OpSub, "and": OpAnd}

func (p *parser) parseOp(opTok token) (*Instr, error) {
	if op, ok := castOps[opTok.text]; ok {
		v, err := p.typedValue()
		if err != nil {
			return nil, err
		}
		if err := p.expectWord("to"); err != nil {
			return nil, err
		}
		to, err := p.parseType()
		if err != nil {
			return nil, err
		}
		return &Instr{Op: op, typ: to, Args: []Value{v}}, nil
	}
	if op, ok := binaryOps[opTok.text]; ok {
		nsw := p.acceptWord("nsw")
		typ, err := p.parseType()
		if err != nil {
			return nil, err
		}
		x, err := p.value(typ, p.next())
		if err != nil {
			return nil, err
		}
		if err := p.expectPunct(","); err != nil {
			return nil, err
		}
		y, err := p.value(typ, p.next())
		if err != nil {
			return nil, err
		}
		return &Instr{Op: op, typ: typ, Args: []Value{x, y}, NSW: nsw}, nil
	}

	switch opTok.text {
	case "alloca":
		return p.parseAlloca()
	case "load":
		in := &Instr{Op: OpLoad, Volatile: p.acceptWord("volatile")}
		typ, err := p.parseType()
		if err != nil {
			return nil, err
		}
		in.typ = typ
		if err := p.expectPunct(","); err != nil {
			return nil, err
		}
		ptr, err := p.typedValue()
		if err != nil {
			return nil, err
		}
		in.Args = []Value{ptr}
		return in, p.parseMemSuffix(in)
	case "store":
		in := &Instr{Op: OpStore, typ: Void, Volatile: p.acceptWord("volatile")}
		v, err := p.typedValue()
		if err != nil {
			return nil, err
		}
		if err := p.expectPunct(","); err != nil {
			return nil, err
		}
		ptr, err := p.typedValue()
		if err != nil {
			return nil, err
		}
		in.Args = []Value{v, ptr}
		return in, p.parseMemSuffix(in)
	case "getelementptr":
		in := &Instr{Op: OpGEP, InBounds: p.acceptWord("inbounds")}
		elem, err := p.parseType()
		if err != nil {
			return nil, err
		}
		in.ElemType = elem
		args, err := p.commaValues(2)
		if err != nil {
			return nil, err
		}
		in.Args = args
		in.typ = args[0].Type()
		return in, nil
	case "icmp":
		predTok, err := p.expectKind(tokWord, "comparison predicate")
		if err != nil {
			return nil, err
		}
		pred := -1
		for k, name := range predNames {
			if name == predTok.text {
				pred = k
			}
		}
		if pred < 0 {
			return nil, p.errorf(predTok, "unknown predicate %s", predTok)
		}
		typ, err := p.parseType()
		if err != nil {
			return nil, err
		}
		x, err := p.value(typ, p.next())
		if err != nil {
			return nil, err
		}
		if err := p.expectPunct(","); err != nil {
			return nil, err
		}
		y, err := p.value(typ, p.next())
		if err != nil {
			return nil, err
		}
		return &Instr{Op: OpICmp, typ: I1, Pred: Pred(pred), Args: []Value{x, y}}, nil
	case "call":
		return p.parseCall()
	case "br":
		if p.isWord("label") {
			dest, err := p.blockOperand()
			if err != nil {
				return nil, err
			}
			return &Instr{Op: OpBr, typ: Void, Succs: []*Block{dest}}, nil
		}
		cond, err := p.typedValue()
		if err != nil {
			return nil, err
		}
		if err := p.expectPunct(","); err != nil {
			return nil, err
		}
		t, err := p.blockOperand()
		if err != nil {
			return nil, err
		}
		if err := p.expectPunct(","); err != nil {
			return nil, err
		}
		f, err := p.blockOperand()
		if err != nil {
			return nil, err
		}
		return &Instr{Op: OpCondBr, typ: Void, Args: []Value{cond}, Succs: []*Block{t, f}}, nil
	case "ret":
		if p.acceptWord("void") {
			return &Instr{Op: OpRet, typ: Void}, nil
		}
		v, err := p.typedValue()
		if err != nil {
			return nil, err
		}
		return &Instr{Op: OpRet, typ: Void, Args: []Value{v}}, nil
	case "phi":
		return p.parsePhi()
	case "memset":
		args, err := p.commaValues(3)
		if err != nil {
			return nil, err
		}
		in := &Instr{Op: OpMemSet, typ: Void, Args: args}
		return in, p.parseMemSuffix(in)
	case "unreachable":
		return &Instr{Op: OpUnreachable, typ: Void}, nil
	}
	return nil, p.errorf(opTok, "unknown instruction %s", opTok.text)
}

// commaValues parses n typed values, each preceded by a comma when the
// list continues an instruction (getelementptr) or separated by commas
// (memset).
func (p *parser) commaValues(n int) ([]Value, error) {
	var vals []Value
	if p.isPunct(",") {
		p.next()
	}
	for k := 0; k < n; k++ {
		if k > 0 {
			if err := p.expectPunct(","); err != nil {
				return nil, err
			}
		}
		v, err := p.typedValue()
		if err != nil {
			return nil, err
		}
		vals = append(vals, v)
	}
	return vals, nil
}

func (p *parser) parseAlloca() (*Instr, error) {
	elem, err := p.parseType()
	if err != nil {
		return nil, err
	}
	in := &Instr{Op: OpAlloca, typ: Ptr, ElemType: elem, Args: []Value{ConstInt(I32, 1)}}
	for p.acceptPunct(",") {
		switch {
		case p.acceptWord("align"):
			n, err := p.expectInt()
			if err != nil {
				return nil, err
			}
			in.Align = int(n)
		case p.acceptWord("addrspace"):
			if err := p.expectPunct("("); err != nil {
				return nil, err
			}
			as, err := p.expectInt()
			if err != nil {
				return nil, err
			}
			if err := p.expectPunct(")"); err != nil {
				return nil, err
			}
			in.typ = PtrIn(int(as))
		default:
			count, err := p.typedValue()
			if err != nil {
				return nil, err
			}
			in.Args[0] = count
		}
	}
	return in, nil
}

func (p *parser) parseMemSuffix(in *Instr) error {
	for p.acceptPunct(",") {
		switch {
		case p.acceptWord("align"):
			n, err := p.expectInt()
			if err != nil {
				return err
			}
			in.Align = int(n)
		case p.acceptPunct("!"):
			if err := p.expectWord("tbaa"); err != nil {
				return err
			}
			t, err := p.expectKind(tokWord, "TBAA tag")
			if err != nil {
				return err
			}
			in.TBAA = t.text
		default:
			t := p.peek()
			return p.errorf(t, "expected align or !tbaa, found %s", t)
		}
	}
	return nil
}

func (p *parser) parseCall() (*Instr, error) {
	ret, err := p.parseType()
	if err != nil {
		return nil, err
	}
	calleeTok, err := p.expectKind(tokGlobal, "callee")
	if err != nil {
		return nil, err
	}
	if err := p.expectPunct("("); err != nil {
		return nil, err
	}
	var args []Value
	for !p.isPunct(")") {
		if len(args) > 0 {
			if err := p.expectPunct(","); err != nil {
				return nil, err
			}
		}
		v, err := p.typedValue()
		if err != nil {
			return nil, err
		}
		args = append(args, v)
	}
	p.next()
	attrs, err := p.parseAttrs()
	if err != nil {
		return nil, err
	}

	argTypes := make([]Type, len(args))
	for k, a := range args {
		argTypes[k] = a.Type()
	}
	callee := p.mod.Lookup(calleeTok.text)
	if callee == nil {
		if callee, err = p.mod.Declare(calleeTok.text, ret, argTypes, Attrs{}); err != nil {
			return nil, p.errorf(calleeTok, "%v", err)
		}
		p.implicit[calleeTok.text] = calleeTok
	}
	if callee.Ret != ret {
		return nil, p.errorf(calleeTok, "call to @%s returns %s, declared %s", calleeTok.text, ret, callee.Ret)
	}
	if !sameTypes(callee.ParamTypes(), argTypes) {
		return nil, p.errorf(calleeTok, "call to @%s does not match its declared parameters", calleeTok.text)
	}
	return &Instr{Op: OpCall, typ: ret, Callee: callee, Args: args, Attrs: attrs}, nil
}

func (p *parser) parsePhi() (*Instr, error) {
	typ, err := p.parseType()
	if err != nil {
		return nil, err
	}
	in := &Instr{Op: OpPhi, typ: typ}
	for {
		if err := p.expectPunct("["); err != nil {
			return nil, err
		}
		v, err := p.value(typ, p.next())
		if err != nil {
			return nil, err
		}
		if err := p.expectPunct(","); err != nil {
			return nil, err
		}
		t, err := p.expectKind(tokLocal, "incoming block")
		if err != nil {
			return nil, err
		}
		if err := p.expectPunct("]"); err != nil {
			return nil, err
		}
		in.AddIncoming(v, p.blockByRef(t))
		if !p.acceptPunct(",") {
			return in, nil
		}
	}
}
