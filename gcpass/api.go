// Package gcpass provides the public API of the GC lowering pass.
//
// See doc.go for detailed documentation and examples.
package gcpass

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kolkov/gclower/internal/interp"
	"github.com/kolkov/gclower/internal/ir"
	"github.com/kolkov/gclower/internal/layout"
	"github.com/kolkov/gclower/internal/lower"
	"github.com/kolkov/gclower/internal/pinlog"
)

// Collector selects the garbage collector lowered code cooperates with.
type Collector = lower.Collector

const (
	// CollectorPool calls the runtime for every allocation.
	CollectorPool = lower.CollectorPool
	// CollectorCursor inlines a bump-pointer fast path and lowers write
	// barriers.
	CollectorCursor = lower.CollectorCursor
)

// ParseCollector parses "pool" or "cursor".
func ParseCollector(s string) (Collector, error) {
	return lower.ParseCollector(s)
}

// Stats counts what a lowering rewrote.
type Stats = lower.Stats

// RuntimeStats counts what the simulated runtime did during Run.
type RuntimeStats = interp.Stats

// Options configure Lower and Run. The zero value lowers for the pool
// collector on a 64-bit target with the fast path inlined and the result
// verified.
type Options struct {
	Collector Collector
	// NoInline turns off the allocation fast path; every allocation
	// becomes a runtime call.
	NoInline bool
	// PointerSize is 8 (default) or 4.
	PointerSize int
	// NoVerify skips the IR verifier after lowering.
	NoVerify bool
	// Parallelism bounds the functions lowered at once. Zero means
	// GOMAXPROCS.
	Parallelism int
	// Logger receives debug tracing. Nil discards.
	Logger *slog.Logger
}

func (o Options) layout() (*layout.Layout, error) {
	if o.PointerSize == 0 {
		return layout.Default64(), nil
	}
	return layout.ForPointerSize(o.PointerSize)
}

func (o Options) config() (lower.Config, error) {
	l, err := o.layout()
	if err != nil {
		return lower.Config{}, err
	}
	cfg := lower.DefaultConfig()
	cfg.Collector = o.Collector
	cfg.InlineFastPath = !o.NoInline
	cfg.Verify = !o.NoVerify
	cfg.Layout = l
	cfg.Parallelism = o.Parallelism
	cfg.Logger = o.Logger
	return cfg, nil
}

// Output is a lowered module.
type Output struct {
	Text     string // lowered module in .gcir form
	Lowered  int    // functions rewritten
	Skipped  int    // defined functions left untouched
	Stats    Stats
	Residual []string // intrinsic calls the collector does not lower, as "@func: instr"
}

// Lower parses a module in .gcir form, lowers every function and returns
// the rewritten text. file names the input in error positions and may be
// empty.
//
// Example:
//
//	out, err := gcpass.Lower(ctx, "prog.gcir", src, gcpass.Options{Collector: gcpass.CollectorCursor})
//	if err != nil {
//		return err
//	}
//	fmt.Print(out.Text)
func Lower(ctx context.Context, file string, src []byte, opts Options) (*Output, error) {
	m, res, err := lowerModule(ctx, file, src, opts)
	if err != nil {
		return nil, err
	}
	return &Output{
		Text:     m.String(),
		Lowered:  res.Lowered,
		Skipped:  res.Skipped,
		Stats:    res.Stats,
		Residual: residual(m),
	}, nil
}

// LowerString lowers src and returns the rewritten text.
func LowerString(src string, opts Options) (string, error) {
	out, err := Lower(context.Background(), "", []byte(src), opts)
	if err != nil {
		return "", err
	}
	return out.Text, nil
}

func lowerModule(ctx context.Context, file string, src []byte, opts Options) (*ir.Module, lower.Result, error) {
	cfg, err := opts.config()
	if err != nil {
		return nil, lower.Result{}, err
	}
	m, err := ir.Parse(file, src)
	if err != nil {
		return nil, lower.Result{}, err
	}
	res, err := lower.LowerModule(ctx, m, cfg)
	if err != nil {
		return nil, lower.Result{}, err
	}
	return m, res, nil
}

func residual(m *ir.Module) []string {
	var out []string
	for _, f := range m.Defined() {
		for _, in := range lower.Residual(f) {
			out = append(out, fmt.Sprintf("@%s: %s", f.Name(), in))
		}
	}
	return out
}

// Global returns the process-wide lowering counters.
func Global() lower.GlobalStats {
	return lower.Global()
}

// PinExtern is the external function lowered programs call to log a pin:
// declare void @gc_pin(ptr, i32) takes the object and a source line.
const PinExtern = "gc_pin"

// RunOptions configure Run.
type RunOptions struct {
	Options

	// Entry is the function to call. Default "main".
	Entry string
	// Args fill the entry's parameters other than %ctx and %page, in
	// order.
	Args []uint64
	// HeapSize, RegionSize and StackSize size the simulated runtime.
	// Zero picks the runtime defaults.
	HeapSize   int64
	RegionSize int64
	StackSize  int64
	// Safepoints arms the signal page so every lowered safepoint walks
	// the shadow stack.
	Safepoints bool
	// PinLog records gc_pin calls into RunResult.Pins.
	PinLog bool
}

// RunResult is the outcome of Run.
type RunResult struct {
	Value    uint64 // raw return value of the entry
	Lowering Stats
	Runtime  RuntimeStats
	// MaxFrames and MaxRoots are the deepest shadow stack seen at a
	// safepoint and the live roots it held.
	MaxFrames int
	MaxRoots  int
	// Pins is the coalesced pinning log when RunOptions.PinLog is set.
	Pins *PinLog
}

// Run lowers a module and executes its entry function on a simulated
// runtime thread.
//
// Entry parameters named %ctx receive the thread context and parameters
// named %page receive the safepoint signal page; the remaining parameters
// take RunOptions.Args in order.
//
// Returns:
//   - error if the module does not parse or lower, or if execution fails;
//     execution errors wrap the interpreter's sentinel errors
func Run(ctx context.Context, file string, src []byte, opts RunOptions) (*RunResult, error) {
	if opts.Entry == "" {
		opts.Entry = "main"
	}
	m, res, err := lowerModule(ctx, file, src, opts.Options)
	if err != nil {
		return nil, err
	}
	l, err := opts.layout()
	if err != nil {
		return nil, err
	}
	mach, err := interp.New(m, interp.Options{
		Layout:     l,
		HeapSize:   opts.HeapSize,
		RegionSize: opts.RegionSize,
		StackSize:  opts.StackSize,
		Logger:     opts.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start runtime: %w", err)
	}
	th, err := mach.NewThread()
	if err != nil {
		return nil, fmt.Errorf("failed to start runtime: %w", err)
	}
	args, err := entryArgs(m, opts.Entry, th, opts.Args)
	if err != nil {
		return nil, err
	}

	out := &RunResult{Lowering: res.Stats}
	if opts.Safepoints {
		mach.SetSafepointHook(func(th *interp.Thread) error {
			frames, err := th.Frames()
			if err != nil {
				return err
			}
			if len(frames) < out.MaxFrames {
				return nil
			}
			roots, err := th.Roots()
			if err != nil {
				return err
			}
			out.MaxFrames, out.MaxRoots = len(frames), len(roots)
			return nil
		})
		mach.Arm()
	}
	var pins *pinlog.Log
	if opts.PinLog {
		pins = newRunPinLog(mach, file)
		out.Pins = pins
	}
	mach.RegisterExtern(PinExtern, func(_ *interp.Thread, args []uint64) (uint64, error) {
		if len(args) != 2 {
			return 0, errors.New("gc_pin expects (ptr, i32)")
		}
		if pins != nil {
			pins.Record(args[0], file, int(int32(args[1])))
		}
		return 0, nil
	})

	v, err := th.Call(ctx, opts.Entry, args...)
	if err != nil {
		return nil, err
	}
	out.Value = v
	out.Runtime = mach.Stats()
	if pins != nil {
		pins.Collect()
	}
	return out, nil
}

// entryArgs binds the entry's parameters.
func entryArgs(m *ir.Module, entry string, th *interp.Thread, rest []uint64) ([]uint64, error) {
	f := m.Lookup(entry)
	if f == nil || f.IsDeclaration() {
		return nil, fmt.Errorf("entry function @%s is not defined", entry)
	}
	args := make([]uint64, 0, len(f.Params))
	next := 0
	for _, p := range f.Params {
		switch p.Name() {
		case "ctx":
			args = append(args, th.Context())
		case "page":
			args = append(args, th.Machine().SignalPage())
		default:
			if next >= len(rest) {
				return nil, fmt.Errorf("@%s needs an argument for %%%s", entry, p.Name())
			}
			args = append(args, rest[next])
			next++
		}
	}
	if next < len(rest) {
		return nil, fmt.Errorf("@%s takes %d arguments, got %d", entry, next, len(rest))
	}
	return args, nil
}
