// Package lower rewrites GC intrinsics into shadow-stack frame management,
// safepoint polls, write-barrier calls and allocation sequences.
//
// The pass runs once per function. A function is lowered only when its
// module declares the stack-top getter (gc.get_stack_top) and the function
// calls it; otherwise it is left untouched. Lowering works in two passes
// over a snapshot of the original instructions:
//
//  1. Validate every intrinsic call and resolve the runtime entry points
//     it will need. Any contract violation is returned before the function
//     is modified.
//  2. Rewrite each intrinsic call in program order. Every rewrite builds
//     its replacement at the call and then replaces and erases the call.
//     Instructions created by a rewrite, and blocks created by splitting,
//     are never visited.
//
// The calls to gc.get_stack_top themselves are kept: they identify the
// thread's stack-top cell and are lowered by a later, target-specific pass.
package lower

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/kolkov/gclower/internal/catalog"
	"github.com/kolkov/gclower/internal/ir"
)

// TBAAFrame is the alias tag of every frame header and link access.
const TBAAFrame = "gcframe"

// Result is the outcome of lowering a function or module.
type Result struct {
	Changed bool // at least one function was rewritten
	Lowered int  // functions rewritten
	Skipped int  // defined functions left untouched
	Stats   Stats
}

// Pass lowers the functions of one module. A Pass may lower several
// functions of its module concurrently.
type Pass struct {
	cfg      Config
	strategy strategy
	bind     *catalog.Bindings
	log      *slog.Logger
}

// New prepares a pass over m.
//
// Returns:
//   - error if cfg is invalid or m was generated for an incompatible
//     runtime ABI
func New(m *ir.Module, cfg Config) (*Pass, error) {
	cfg, err := cfg.withDefaults()
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.Layout.CheckABI(m.ABI); err != nil {
		return nil, err
	}
	return &Pass{
		cfg:      cfg,
		strategy: cfg.strategy(),
		bind:     catalog.Bind(m, cfg.Layout),
		log:      cfg.Logger.With("module", m.Name, "gc", cfg.Collector.String()),
	}, nil
}

// Run lowers a single function with a fresh pass over its module.
func Run(f *ir.Func, cfg Config) (Result, error) {
	p, err := New(f.Module, cfg)
	if err != nil {
		return Result{}, err
	}
	return p.LowerFunction(f)
}

// LowerModule lowers every defined function of m, up to cfg.Parallelism at
// a time. The first error cancels the remaining work; functions already
// lowered stay lowered.
func LowerModule(ctx context.Context, m *ir.Module, cfg Config) (Result, error) {
	p, err := New(m, cfg)
	if err != nil {
		return Result{}, err
	}
	funcs := m.Defined()
	results := make([]Result, len(funcs))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Parallelism)
	for i, f := range funcs {
		i, f := i, f
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			r, err := p.LowerFunction(f)
			if err != nil {
				return fmt.Errorf("failed to lower @%s: %w", f.Name(), err)
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	var total Result
	for _, r := range results {
		total.Changed = total.Changed || r.Changed
		total.Lowered += r.Lowered
		total.Skipped += r.Skipped
		total.Stats.Add(r.Stats)
	}
	return total, nil
}

// site is one intrinsic call found by the validation pass.
type site struct {
	call *ir.Instr
	kind catalog.Kind
}

// funcLowering is the state of lowering one function.
type funcLowering struct {
	*Pass
	f        *ir.Func
	stackTop ir.Value // the thread's stack-top cell
	runtime  [catalog.NumEntries]*ir.Func
	stats    Stats
}

// LowerFunction lowers the GC intrinsics of f, which must belong to the
// pass's module.
func (p *Pass) LowerFunction(f *ir.Func) (Result, error) {
	if f.IsDeclaration() {
		return Result{}, nil
	}
	getter := p.bind.Declared(catalog.GetStackTop)
	if getter == nil {
		p.log.Debug("skipping function", "func", f.Name(), "reason", "module declares no stack-top getter")
		global.skipped.Add(1)
		return Result{Skipped: 1}, nil
	}
	tops := f.Calls(getter)
	if len(tops) == 0 {
		p.log.Debug("skipping function", "func", f.Name(), "reason", "no call to the stack-top getter")
		global.skipped.Add(1)
		return Result{Skipped: 1}, nil
	}

	p.log.Debug("processing function", "func", f.Name())
	fl := &funcLowering{Pass: p, f: f, stackTop: tops[0]}
	sites, err := fl.plan()
	if err != nil {
		return Result{}, err
	}
	for _, s := range sites {
		if s.call.Erased() {
			continue
		}
		fl.lower(s)
	}

	if p.cfg.Verify {
		if err := ir.Verify(f); err != nil {
			return Result{}, fmt.Errorf("lowering produced invalid IR: %w", err)
		}
	}
	recordGlobal(&fl.stats)
	p.log.Debug("lowered function", "func", f.Name(), "rewritten", fl.stats.Total(), "inline_allocs", fl.stats.InlineAllocs)
	return Result{Changed: fl.stats.Total() > 0, Lowered: 1, Stats: fl.stats}, nil
}

// handles reports whether the configured collector lowers intrinsic k.
func (fl *funcLowering) handles(k catalog.Kind) bool {
	switch k {
	case catalog.GetStackTop:
		return false
	case catalog.WriteBarrier1, catalog.WriteBarrier2, catalog.WriteBarrier1Slow, catalog.WriteBarrier2Slow:
		return fl.strategy.explicitBarriers
	}
	return true
}

// plan validates every intrinsic call of the function and declares the
// runtime entry points the rewrites will use. It does not modify f, and
// declares nothing unless every call is valid.
func (fl *funcLowering) plan() ([]site, error) {
	for _, b := range fl.f.Blocks {
		if b.Terminator() == nil {
			return nil, NewBlockContractError(b, "block does not end in a terminator")
		}
	}
	var sites []site
	var entries []catalog.Entry
	for _, in := range fl.f.Instrs() {
		k, ok := fl.bind.Match(in)
		if !ok || !fl.handles(k) {
			continue
		}
		if err := fl.validate(in, k); err != nil {
			return nil, err
		}
		entries = append(entries, fl.entriesFor(in, k)...)
		sites = append(sites, site{call: in, kind: k})
	}
	for _, e := range entries {
		if fl.runtime[e] != nil {
			continue
		}
		fn, err := fl.bind.Runtime(e)
		if err != nil {
			return nil, err
		}
		fl.runtime[e] = fn
	}
	return sites, nil
}

// entriesFor lists the runtime entry points the rewrite of in calls.
func (fl *funcLowering) entriesFor(in *ir.Instr, k catalog.Kind) []catalog.Entry {
	switch k {
	case catalog.AllocBytes:
		c, ok := ir.AsConst(in.Args[1])
		switch {
		case !ok:
			return []catalog.Entry{catalog.AllocTyped}
		case fl.cfg.Layout.Classify(c.Uint()).Big:
			return []catalog.Entry{catalog.BigAlloc}
		default:
			return []catalog.Entry{catalog.PoolAlloc}
		}
	case catalog.QueueRoot:
		return []catalog.Entry{catalog.QueueRootFunc}
	}
	if e, ok := catalog.BarrierTarget(k); ok {
		return []catalog.Entry{e}
	}
	return nil
}

// lower dispatches one validated call to its rewrite.
func (fl *funcLowering) lower(s site) {
	fl.log.Debug("lowering intrinsic", "func", fl.f.Name(), "intrinsic", s.kind.String())
	switch s.kind {
	case catalog.NewFrame:
		fl.lowerNewFrame(s.call)
	case catalog.PushFrame:
		fl.lowerPushFrame(s.call)
	case catalog.PopFrame:
		fl.lowerPopFrame(s.call)
	case catalog.GetFrameSlot:
		fl.lowerGetFrameSlot(s.call)
	case catalog.AllocBytes:
		fl.lowerAllocBytes(s.call)
	case catalog.QueueRoot:
		fl.lowerQueueRoot(s.call)
	case catalog.Safepoint:
		fl.lowerSafepoint(s.call)
	default:
		fl.lowerWriteBarrier(s.call, s.kind)
	}
}

// Residual lists the intrinsic calls of f that no lowering handled, other
// than calls to the stack-top getter. After a successful run these are
// the intrinsics the selected collector does not support.
func Residual(f *ir.Func) []*ir.Instr {
	var out []*ir.Instr
	for _, in := range f.Instrs() {
		if in.Op != ir.OpCall || in.Callee == nil {
			continue
		}
		if i, ok := catalog.Lookup(in.Callee.Name()); ok && i.Kind != catalog.GetStackTop {
			out = append(out, in)
		}
	}
	return out
}
