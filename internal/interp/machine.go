// Package interp executes IR against a simulated garbage-collected runtime.
//
// A Machine owns a flat simulated address space, one context block per
// simulated thread (laid out by a layout.Layout), a safepoint signal page
// and the runtime entry points that lowered code calls: the pool, big and
// typed allocators, the root queue and the write barriers. Threads walk
// their own shadow stacks through Thread.Frames.
//
// The interpreter runs lowered and unlowered functions alike, but refuses
// to execute GC intrinsics other than the stack-top getter: those must be
// lowered first.
//
// Example:
//
//	m, _ := interp.New(mod, interp.Options{})
//	t, _ := m.NewThread()
//	v, err := t.Call(ctx, "main", t.Context())
package interp

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/docker/go-units"
	"github.com/google/btree"

	"github.com/kolkov/gclower/internal/ir"
	"github.com/kolkov/gclower/internal/layout"
)

// Default sizes used when Options leaves them zero.
const (
	DefaultHeapSize   = 64 * units.MiB
	DefaultRegionSize = 32 * units.KiB
	DefaultStackSize  = 256 * units.KiB
	DefaultMaxSteps   = 1 << 26
	DefaultMaxDepth   = 4096
)

// Options configure a Machine.
type Options struct {
	Layout     *layout.Layout // nil: layout.Default64()
	HeapSize   int64          // simulated address space capacity
	RegionSize int64          // bump region handed to a thread by the slow path
	StackSize  int64          // per-thread stack for allocas
	MaxSteps   int64          // instructions per Call before ErrStepLimit
	MaxDepth   int            // nested calls before ErrStackOverflow
	Logger     *slog.Logger   // nil: discard
}

func (o Options) withDefaults() Options {
	if o.Layout == nil {
		o.Layout = layout.Default64()
	}
	if o.HeapSize <= 0 {
		o.HeapSize = DefaultHeapSize
	}
	if o.RegionSize <= 0 {
		o.RegionSize = DefaultRegionSize
	}
	if o.StackSize <= 0 {
		o.StackSize = DefaultStackSize
	}
	if o.MaxSteps <= 0 {
		o.MaxSteps = DefaultMaxSteps
	}
	if o.MaxDepth <= 0 {
		o.MaxDepth = DefaultMaxDepth
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return o
}

// SafepointHook runs when a thread polls an armed signal page. A non-nil
// error aborts the polling thread's execution.
type SafepointHook func(t *Thread) error

// Extern implements an external function called from IR. Arguments and
// the result are raw values: integers zero-extended, pointers as
// addresses.
type Extern func(t *Thread, args []uint64) (uint64, error)

// Span is a range of memory handed out by the runtime allocators: a bump
// region for pooled objects or a single big object with its header.
type Span struct {
	Addr uint64
	Size int64
	Big  bool
}

// Barrier records one write-barrier call.
type Barrier struct {
	Entry string
	Args  []uint64
}

// Stats counts runtime activity.
type Stats struct {
	PoolAllocs  int64 // pooled allocations through the runtime
	BigAllocs   int64 // big objects
	TypedAllocs int64 // allocations of dynamic size
	Regions     int64 // bump regions handed out
	AllocBytes  int64 // bytes charged to the threads' allocd counters by the runtime
	Polls       int64 // loads from the signal page
	Safepoints  int64 // polls that reached an armed page
	QueuedRoots int64
	Barriers    int64
	Steps       int64 // instructions executed
}

// String returns a one-line summary.
func (s Stats) String() string {
	return fmt.Sprintf("%d pool, %d big, %d typed allocations (%s), %d regions, %d/%d safepoints, %d queued roots, %d barriers, %d steps",
		s.PoolAllocs, s.BigAllocs, s.TypedAllocs, units.BytesSize(float64(s.AllocBytes)),
		s.Regions, s.Safepoints, s.Polls, s.QueuedRoots, s.Barriers, s.Steps)
}

// Machine is a simulated runtime for one module.
//
// Thread Safety: A Machine may run several Threads concurrently, each on
// its own goroutine. A single Thread must not be used concurrently.
type Machine struct {
	mod    *ir.Module
	layout *layout.Layout
	opts   Options
	mem    *Memory
	log    *slog.Logger

	signalPage uint64
	armed      atomic.Bool

	mu       sync.Mutex
	hook     SafepointHook
	externs  map[string]Extern
	threads  []*Thread
	spans    *btree.BTreeG[Span]
	queued   []uint64
	barriers []Barrier
	stats    Stats
}

// New creates a machine for mod.
//
// Returns:
//   - error if the layout is invalid or the heap cannot hold the signal page
func New(mod *ir.Module, opts Options) (*Machine, error) {
	opts = opts.withDefaults()
	if err := opts.Layout.Validate(); err != nil {
		return nil, err
	}
	m := &Machine{
		mod:     mod,
		layout:  opts.Layout,
		opts:    opts,
		mem:     NewMemory(opts.HeapSize),
		log:     opts.Logger,
		externs: make(map[string]Extern),
		spans: btree.NewG[Span](8, func(a, b Span) bool {
			return a.Addr < b.Addr
		}),
	}
	page, err := m.mem.Reserve(pageSize, pageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to reserve signal page: %w", err)
	}
	m.signalPage = page
	return m, nil
}

// Module returns the executed module.
func (m *Machine) Module() *ir.Module { return m.mod }

// Layout returns the machine's data layout.
func (m *Machine) Layout() *layout.Layout { return m.layout }

// Memory returns the simulated address space.
func (m *Machine) Memory() *Memory { return m.mem }

// SignalPage returns the address of the safepoint signal page. Lowered
// safepoints poll it with a volatile load.
func (m *Machine) SignalPage() uint64 { return m.signalPage }

// Arm makes every subsequent poll of the signal page run the safepoint
// hook.
func (m *Machine) Arm() { m.armed.Store(true) }

// Disarm stops polls from running the safepoint hook.
func (m *Machine) Disarm() { m.armed.Store(false) }

// SetSafepointHook registers the function run at armed safepoints.
func (m *Machine) SetSafepointHook(h SafepointHook) {
	m.mu.Lock()
	m.hook = h
	m.mu.Unlock()
}

// RegisterExtern makes calls to the declared function name run fn.
func (m *Machine) RegisterExtern(name string, fn Extern) {
	m.mu.Lock()
	m.externs[name] = fn
	m.mu.Unlock()
}

// NewThread creates a thread with a zeroed context block and its own
// stack. Its shadow stack is empty and its bump region is exhausted, so
// the first pooled allocation takes the slow path.
func (m *Machine) NewThread() (*Thread, error) {
	ctxAddr, err := m.mem.Reserve(m.layout.ContextSize(), layout.FrameAlign)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate thread context: %w", err)
	}
	stack, err := m.mem.Reserve(m.opts.StackSize, layout.FrameAlign)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate thread stack: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	t := &Thread{
		ID:         len(m.threads),
		m:          m,
		ctx:        ctxAddr,
		stackBase:  stack,
		stackLimit: stack + uint64(m.opts.StackSize),
		sp:         stack,
	}
	m.threads = append(m.threads, t)
	m.log.Debug("thread created", "thread", t.ID, "context", fmt.Sprintf("%#x", ctxAddr))
	return t, nil
}

// Threads returns the machine's threads in creation order.
func (m *Machine) Threads() []*Thread {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*Thread(nil), m.threads...)
}

// Stats returns a snapshot of the runtime counters.
func (m *Machine) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

// QueuedRoots returns the objects passed to gc_queue_root, in call order.
func (m *Machine) QueuedRoots() []uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]uint64(nil), m.queued...)
}

// Barriers returns the recorded write-barrier calls, in call order.
func (m *Machine) Barriers() []Barrier {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Barrier(nil), m.barriers...)
}

// SpanOf returns the runtime span containing addr.
func (m *Machine) SpanOf(addr uint64) (Span, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var found Span
	var ok bool
	m.spans.DescendLessOrEqual(Span{Addr: addr}, func(s Span) bool {
		found, ok = s, addr < s.Addr+uint64(s.Size)
		return false
	})
	return found, ok
}

// Spans returns every runtime span in address order.
func (m *Machine) Spans() []Span {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Span, 0, m.spans.Len())
	m.spans.Ascend(func(s Span) bool {
		out = append(out, s)
		return true
	})
	return out
}

func (m *Machine) count(f func(s *Stats)) {
	m.mu.Lock()
	f(&m.stats)
	m.mu.Unlock()
}
