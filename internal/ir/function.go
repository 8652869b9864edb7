package ir

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/samber/lo"
)

// Func is a declared or defined function. A function without blocks is a
// declaration.
type Func struct {
	name   string
	Ret    Type
	Params []*Param
	Attrs  Attrs
	Blocks []*Block
	Module *Module

	used   map[string]bool
	suffix map[string]int
}

// Name implements Value.
func (f *Func) Name() string { return f.name }

// Type implements Value. Functions are used as pointer-typed callees.
func (f *Func) Type() Type { return Ptr }

// IsDeclaration reports whether f has no body.
func (f *Func) IsDeclaration() bool { return len(f.Blocks) == 0 }

// ParamTypes returns the parameter types of f.
func (f *Func) ParamTypes() []Type {
	return lo.Map(f.Params, func(p *Param, _ int) Type { return p.typ })
}

// Entry returns the first block.
func (f *Func) Entry() *Block {
	if len(f.Blocks) == 0 {
		return nil
	}
	return f.Blocks[0]
}

// Param returns the named parameter, or nil.
func (f *Func) Param(name string) *Param {
	p, _ := lo.Find(f.Params, func(p *Param) bool { return p.name == name })
	return p
}

// Block returns the block with the given label, or nil.
func (f *Func) Block(name string) *Block {
	b, _ := lo.Find(f.Blocks, func(b *Block) bool { return b.name == name })
	return b
}

// NewBlock appends a new empty block to f.
func (f *Func) NewBlock(name string) *Block {
	b := &Block{Func: f, name: f.unique(name)}
	f.Blocks = append(f.Blocks, b)
	return b
}

// NewBlockBefore inserts a new empty block right before pos.
func (f *Func) NewBlockBefore(name string, pos *Block) *Block {
	b := &Block{Func: f, name: f.unique(name)}
	idx := f.blockIndex(pos)
	if idx < 0 {
		f.Blocks = append(f.Blocks, b)
		return b
	}
	f.Blocks = append(f.Blocks, nil)
	copy(f.Blocks[idx+1:], f.Blocks[idx:])
	f.Blocks[idx] = b
	return b
}

func (f *Func) insertBlockAfter(b, pos *Block) {
	idx := f.blockIndex(pos)
	if idx < 0 {
		f.Blocks = append(f.Blocks, b)
		return
	}
	f.Blocks = append(f.Blocks, nil)
	copy(f.Blocks[idx+2:], f.Blocks[idx+1:])
	f.Blocks[idx+1] = b
}

func (f *Func) blockIndex(b *Block) int {
	return lo.IndexOf(f.Blocks, b)
}

// Instrs returns a snapshot of every instruction in program order.
func (f *Func) Instrs() []*Instr {
	var out []*Instr
	for _, b := range f.Blocks {
		out = append(out, b.Instrs...)
	}
	return out
}

// Calls returns a snapshot of the calls to callee in program order.
func (f *Func) Calls(callee *Func) []*Instr {
	return lo.Filter(f.Instrs(), func(in *Instr, _ int) bool { return in.IsCallTo(callee) })
}

func (f *Func) replaceUses(old *Instr, v Value) {
	for _, b := range f.Blocks {
		for _, in := range b.Instrs {
			for k, a := range in.Args {
				if a == Value(old) {
					in.Args[k] = v
				}
			}
		}
	}
}

// unique reserves name in f's local namespace, appending a numeric suffix
// when it is taken. Value and block labels share one namespace.
func (f *Func) unique(name string) string {
	if name == "" {
		return ""
	}
	if f.used == nil {
		f.used = make(map[string]bool)
		f.suffix = make(map[string]int)
	}
	candidate := name
	for f.used[candidate] {
		f.suffix[name]++
		candidate = name + strconv.Itoa(f.suffix[name])
	}
	f.used[candidate] = true
	return candidate
}

func (f *Func) release(name string) {
	if name != "" {
		delete(f.used, name)
	}
}

// Module is a set of functions plus the runtime ABI version the code was
// generated for.
type Module struct {
	Name string
	ABI  string

	mu     sync.Mutex
	funcs  []*Func
	byName map[string]*Func
}

// NewModule returns an empty module.
func NewModule(name string) *Module {
	return &Module{Name: name, byName: make(map[string]*Func)}
}

// Funcs returns a snapshot of the module's functions in declaration order.
func (m *Module) Funcs() []*Func {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*Func(nil), m.funcs...)
}

// Defined returns the functions that have bodies.
func (m *Module) Defined() []*Func {
	return lo.Filter(m.Funcs(), func(f *Func, _ int) bool { return !f.IsDeclaration() })
}

// Lookup returns the function with the given name, or nil.
func (m *Module) Lookup(name string) *Func {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byName[name]
}

// GetOrDeclare returns the function named name, declaring it with the given
// signature when it does not exist. An existing function with a different
// signature is an error.
func (m *Module) GetOrDeclare(name string, ret Type, params []Type, attrs Attrs) (*Func, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if f, ok := m.byName[name]; ok {
		if f.Ret != ret || !sameTypes(f.ParamTypes(), params) {
			return nil, fmt.Errorf("function @%s already declared with a different signature", name)
		}
		return f, nil
	}
	return m.addLocked(name, ret, params, attrs), nil
}

// Declare adds a declaration. It fails if the name is already in use.
func (m *Module) Declare(name string, ret Type, params []Type, attrs Attrs) (*Func, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byName[name]; ok {
		return nil, fmt.Errorf("function @%s redeclared", name)
	}
	return m.addLocked(name, ret, params, attrs), nil
}

// Define adds a function with named parameters and no blocks yet.
func (m *Module) Define(name string, ret Type, params []Type, paramNames []string) (*Func, error) {
	f, err := m.Declare(name, ret, params, Attrs{})
	if err != nil {
		return nil, err
	}
	for i, p := range f.Params {
		if i < len(paramNames) {
			p.name = f.unique(paramNames[i])
		}
	}
	return f, nil
}

func (m *Module) addLocked(name string, ret Type, params []Type, attrs Attrs) *Func {
	f := &Func{name: name, Ret: ret, Attrs: attrs, Module: m}
	for i, t := range params {
		f.Params = append(f.Params, &Param{typ: t, Index: i, Func: f})
	}
	if m.byName == nil {
		m.byName = make(map[string]*Func)
	}
	m.funcs = append(m.funcs, f)
	m.byName[name] = f
	return f
}

func sameTypes(a, b []Type) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
