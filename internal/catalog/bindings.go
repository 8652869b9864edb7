package catalog

import (
	"fmt"
	"sync"

	"github.com/kolkov/gclower/internal/ir"
	"github.com/kolkov/gclower/internal/layout"
)

// Bindings attach the catalog to one module.
type Bindings struct {
	mod    *ir.Module
	layout *layout.Layout
	byFunc map[*ir.Func]Kind
	intr   [NumKinds]*ir.Func

	mu      sync.Mutex
	runtime [NumEntries]*ir.Func
}

// Bind looks up the intrinsics declared by m. Runtime entry points are
// declared lazily by Runtime.
func Bind(m *ir.Module, l *layout.Layout) *Bindings {
	b := &Bindings{mod: m, layout: l, byFunc: make(map[*ir.Func]Kind)}
	for k := range intrinsics {
		if f := m.Lookup(intrinsics[k].Name); f != nil {
			b.intr[k] = f
			b.byFunc[f] = Kind(k)
		}
	}
	return b
}

// Module returns the bound module.
func (b *Bindings) Module() *ir.Module { return b.mod }

// Layout returns the layout used to type runtime declarations.
func (b *Bindings) Layout() *layout.Layout { return b.layout }

// Declared returns the module's declaration of intrinsic k, or nil.
func (b *Bindings) Declared(k Kind) *ir.Func { return b.intr[k] }

// Match reports whether in is a call to a declared intrinsic and which.
func (b *Bindings) Match(in *ir.Instr) (Kind, bool) {
	if in.Op != ir.OpCall || in.Callee == nil {
		return 0, false
	}
	k, ok := b.byFunc[in.Callee]
	return k, ok
}

// Runtime returns the module's declaration of entry point e, declaring it
// on first use. Safe for concurrent use.
//
// Returns:
//   - the declared function
//   - error if the module already has a function of that name with a
//     different signature
func (b *Bindings) Runtime(e Entry) (*ir.Func, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if f := b.runtime[e]; f != nil {
		return f, nil
	}
	rf := runtimeFuncs[e]
	ret, ps := rf.Signature(b.layout)
	f, err := b.mod.GetOrDeclare(rf.Name, ret, ps, rf.Attrs)
	if err != nil {
		return nil, fmt.Errorf("failed to declare runtime entry %s: %w", rf.Name, err)
	}
	b.runtime[e] = f
	return f, nil
}
