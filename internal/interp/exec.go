package interp

import (
	"context"
	"errors"
	"fmt"

	"github.com/kolkov/gclower/internal/catalog"
	"github.com/kolkov/gclower/internal/ir"
	"github.com/kolkov/gclower/internal/layout"
)

// ErrStackOverflow means a thread ran out of alloca stack or call depth.
var ErrStackOverflow = errors.New("stack overflow")

// Thread is a simulated thread of execution with its own context block.
type Thread struct {
	ID int

	m          *Machine
	ctx        uint64
	stackBase  uint64
	stackLimit uint64
	sp         uint64
	depth      int
	steps      int64
	goctx      context.Context
}

// Machine returns the machine the thread runs on.
func (t *Thread) Machine() *Machine { return t.m }

// Context returns the address of the thread's context block.
func (t *Thread) Context() uint64 { return t.ctx }

// StackTopCell returns the address of the cell holding the thread's
// shadow-stack top.
func (t *Thread) StackTopCell() uint64 {
	return t.ctx + uint64(t.m.layout.Thread.StackTopOffset)
}

// Cursor returns the thread's bump cursor and limit.
func (t *Thread) Cursor() (cursor, limit int64, err error) {
	l := t.m.layout
	if cursor, err = t.loadSigned(t.ctx+uint64(l.Thread.CursorOffset), l.PointerSize); err != nil {
		return 0, 0, err
	}
	limit, err = t.loadSigned(t.ctx+uint64(l.Thread.LimitOffset), l.PointerSize)
	return cursor, limit, err
}

// Allocd returns the thread's allocated-bytes counter.
func (t *Thread) Allocd() (int64, error) {
	l := t.m.layout
	return t.loadSigned(t.ctx+uint64(l.Thread.AllocdOffset), l.PointerSize)
}

// Call runs the defined function name with raw arguments and returns its
// raw result (zero for void functions).
//
// Returns:
//   - error wrapping *ExecError when an instruction fails
func (t *Thread) Call(ctx context.Context, name string, args ...uint64) (uint64, error) {
	f := t.m.mod.Lookup(name)
	if f == nil || f.IsDeclaration() {
		return 0, fmt.Errorf("no defined function @%s", name)
	}
	if len(args) != len(f.Params) {
		return 0, fmt.Errorf("@%s takes %d arguments, got %d", name, len(f.Params), len(args))
	}
	t.goctx = ctx
	t.steps = 0
	defer func() { t.goctx = nil }()
	v, err := t.run(f, args)
	t.m.count(func(s *Stats) { s.Steps += t.steps })
	return v, err
}

// activation is one executing call.
type activation struct {
	f    *ir.Func
	args []uint64
	vals map[*ir.Instr]uint64
}

func (t *Thread) run(f *ir.Func, args []uint64) (uint64, error) {
	if t.depth >= t.m.opts.MaxDepth {
		return 0, fmt.Errorf("%w: call depth %d", ErrStackOverflow, t.depth)
	}
	t.depth++
	savedSP := t.sp
	defer func() {
		t.depth--
		t.sp = savedSP
	}()

	a := &activation{f: f, args: args, vals: make(map[*ir.Instr]uint64)}
	var prev *ir.Block
	b := f.Entry()
	for {
		phis := b.Phis()
		if err := t.enter(a, b, prev, phis); err != nil {
			return 0, err
		}
		next, ret, done, err := t.block(a, b.Instrs[len(phis):])
		if err != nil {
			return 0, err
		}
		if done {
			return ret, nil
		}
		prev, b = b, next
	}
}

// enter evaluates the phis of b for an edge from prev, all at once.
func (t *Thread) enter(a *activation, b, prev *ir.Block, phis []*ir.Instr) error {
	if len(phis) == 0 {
		return nil
	}
	vals := make([]uint64, len(phis))
	for i, phi := range phis {
		k := -1
		for j, from := range phi.Incoming {
			if from == prev {
				k = j
				break
			}
		}
		if k < 0 {
			return execError(phi, fmt.Errorf("no incoming value for edge from %s", blockName(prev)))
		}
		v, err := t.value(a, phi.Args[k])
		if err != nil {
			return execError(phi, err)
		}
		vals[i] = v
	}
	for i, phi := range phis {
		a.vals[phi] = vals[i]
	}
	return nil
}

func blockName(b *ir.Block) string {
	if b == nil {
		return "function entry"
	}
	return b.Name()
}

// block executes instructions up to the terminator. It returns the next
// block, or the return value with done set.
func (t *Thread) block(a *activation, instrs []*ir.Instr) (next *ir.Block, ret uint64, done bool, err error) {
	for _, in := range instrs {
		t.steps++
		if t.steps > t.m.opts.MaxSteps {
			return nil, 0, false, execError(in, ErrStepLimit)
		}
		if t.steps&4095 == 0 && t.goctx != nil {
			if err := t.goctx.Err(); err != nil {
				return nil, 0, false, execError(in, err)
			}
		}

		switch in.Op {
		case ir.OpBr:
			return in.Succs[0], 0, false, nil
		case ir.OpCondBr:
			c, err := t.value(a, in.Args[0])
			if err != nil {
				return nil, 0, false, execError(in, err)
			}
			if c&1 != 0 {
				return in.Succs[0], 0, false, nil
			}
			return in.Succs[1], 0, false, nil
		case ir.OpRet:
			if len(in.Args) == 0 {
				return nil, 0, true, nil
			}
			v, err := t.value(a, in.Args[0])
			if err != nil {
				return nil, 0, false, execError(in, err)
			}
			return nil, v, true, nil
		case ir.OpUnreachable:
			return nil, 0, false, execError(in, ErrUnreachable)
		}

		v, err := t.exec(a, in)
		if err != nil {
			return nil, 0, false, execError(in, err)
		}
		if !in.Type().IsVoid() {
			a.vals[in] = v
		}
	}
	return nil, 0, false, fmt.Errorf("@%s: block without terminator", a.f.Name())
}

// exec runs one non-terminator instruction.
func (t *Thread) exec(a *activation, in *ir.Instr) (uint64, error) {
	m := t.m
	ps := m.layout.PointerSize
	args, err := t.values(a, in.Args)
	if err != nil {
		return 0, err
	}
	switch in.Op {
	case ir.OpAlloca:
		n := int64(args[0]) * int64(in.ElemType.StoreSize(ps))
		return t.alloca(n, in.Align)
	case ir.OpLoad:
		size := in.Type().StoreSize(ps)
		if err := t.poll(args[0], size); err != nil {
			return 0, err
		}
		return m.mem.Load(args[0], size)
	case ir.OpStore:
		return 0, m.mem.Store(args[1], args[0], in.Args[0].Type().StoreSize(ps))
	case ir.OpGEP:
		idx := signExtend(args[1], int(in.Args[1].Type().Bits))
		return t.mask(in.Type(), args[0]+uint64(idx*int64(in.ElemType.StoreSize(ps)))), nil
	case ir.OpAdd:
		return t.mask(in.Type(), args[0]+args[1]), nil
	case ir.OpSub:
		return t.mask(in.Type(), args[0]-args[1]), nil
	case ir.OpAnd:
		return args[0] & args[1], nil
	case ir.OpICmp:
		return t.icmp(in, args[0], args[1]), nil
	case ir.OpZExt, ir.OpTrunc, ir.OpIntToPtr, ir.OpPtrToInt, ir.OpAddrSpaceCast:
		return t.mask(in.Type(), args[0]), nil
	case ir.OpMemSet:
		return 0, m.mem.Fill(args[0], byte(args[1]), int64(args[2]))
	case ir.OpCall:
		return t.call(in, args)
	}
	return 0, fmt.Errorf("cannot execute %s", in.Op)
}

func (t *Thread) icmp(in *ir.Instr, x, y uint64) uint64 {
	bits := int(in.Args[0].Type().Bits)
	if in.Args[0].Type().IsPtr() {
		bits = t.m.layout.PointerSize * 8
	}
	sx, sy := signExtend(x, bits), signExtend(y, bits)
	var r bool
	switch in.Pred {
	case ir.PredEQ:
		r = x == y
	case ir.PredNE:
		r = x != y
	case ir.PredSLT:
		r = sx < sy
	case ir.PredSLE:
		r = sx <= sy
	case ir.PredSGT:
		r = sx > sy
	case ir.PredSGE:
		r = sx >= sy
	case ir.PredULT:
		r = x < y
	case ir.PredUGT:
		r = x > y
	}
	if r {
		return 1
	}
	return 0
}

// call dispatches to a defined function, the stack-top getter, a runtime
// entry point or a registered extern.
func (t *Thread) call(in *ir.Instr, args []uint64) (uint64, error) {
	callee := in.Callee
	if !callee.IsDeclaration() {
		return t.run(callee, args)
	}
	name := callee.Name()
	if intr, ok := catalog.Lookup(name); ok {
		if intr.Kind == catalog.GetStackTop {
			return t.StackTopCell(), nil
		}
		return 0, fmt.Errorf("%w: @%s", ErrUnlowered, name)
	}
	if rf, ok := catalog.LookupRuntime(name); ok {
		return t.callRuntime(rf.Entry, args)
	}
	t.m.mu.Lock()
	fn := t.m.externs[name]
	t.m.mu.Unlock()
	if fn == nil {
		return 0, fmt.Errorf("call to unregistered external function @%s", name)
	}
	v, err := fn(t, args)
	return t.mask(in.Type(), v), err
}

// poll runs the safepoint hook when a load touches the armed signal page.
func (t *Thread) poll(addr uint64, size int) error {
	m := t.m
	if addr+uint64(size) <= m.signalPage || addr >= m.signalPage+pageSize {
		return nil
	}
	m.count(func(s *Stats) { s.Polls++ })
	if !m.armed.Load() {
		return nil
	}
	m.mu.Lock()
	m.stats.Safepoints++
	hook := m.hook
	m.mu.Unlock()
	if hook == nil {
		return nil
	}
	return hook(t)
}

func (t *Thread) alloca(n int64, align int) (uint64, error) {
	if align < 1 {
		align = 1
	}
	addr := layout.AlignUp(t.sp, uint64(align))
	if n < 0 || addr+uint64(n) > t.stackLimit {
		return 0, fmt.Errorf("%w: alloca of %d bytes", ErrStackOverflow, n)
	}
	t.sp = addr + uint64(n)
	return addr, nil
}

func (t *Thread) values(a *activation, vs []ir.Value) ([]uint64, error) {
	out := make([]uint64, len(vs))
	for i, v := range vs {
		x, err := t.value(a, v)
		if err != nil {
			return nil, err
		}
		out[i] = x
	}
	return out, nil
}

func (t *Thread) value(a *activation, v ir.Value) (uint64, error) {
	switch v := v.(type) {
	case *ir.Const:
		return t.mask(v.Type(), uint64(v.Int)), nil
	case *ir.Param:
		return t.mask(v.Type(), a.args[v.Index]), nil
	case *ir.Instr:
		x, ok := a.vals[v]
		if !ok {
			return 0, fmt.Errorf("use of %s before definition", v.Name())
		}
		return x, nil
	}
	return 0, fmt.Errorf("unsupported operand %s", v.Name())
}

// mask truncates v to the width of type ty.
func (t *Thread) mask(ty ir.Type, v uint64) uint64 {
	bits := int(ty.Bits)
	if ty.IsPtr() {
		bits = t.m.layout.PointerSize * 8
	}
	if bits <= 0 || bits >= 64 {
		return v
	}
	return v & (1<<uint(bits) - 1)
}
