// Package ir - Tests for graph mutation: builder, splitting, replacement.
package ir

import (
	"strings"
	"testing"
)

// newTestFunc returns a module with one function "f(ptr %p, i64 %n)" whose
// entry block holds a single "ret void".
func newTestFunc(t *testing.T) (*Func, *Instr) {
	t.Helper()
	m := NewModule("test")
	f, err := m.Define("f", Void, []Type{Ptr, I64}, []string{"p", "n"})
	if err != nil {
		t.Fatalf("Define() error = %v", err)
	}
	entry := f.NewBlock("entry")
	ret := NewBuilderAtEnd(entry).Ret(nil)
	return f, ret
}

// TestBuilderFolding tests constant folding in the builder.
func TestBuilderFolding(t *testing.T) {
	f, ret := newTestFunc(t)
	b := NewBuilderBefore(ret)
	n := f.Params[1]

	tests := []struct {
		name string
		got  Value
		want int64
	}{
		{"add", b.Add(ConstInt(I64, 3), ConstInt(I64, 4), "x"), 7},
		{"sub", b.NSWSub(ConstInt(I64, 3), ConstInt(I64, 4), "x"), -1},
		{"and", b.And(ConstInt(I64, -24), ConstInt(I64, 15), "x"), 8},
		{"i32 wraps", b.Add(ConstInt(I32, 0x7fffffff), ConstInt(I32, 1), "x"), -0x80000000},
		{"zext constant", b.ZExtOrTrunc(ConstInt(I32, -1), I64, "x"), 0xffffffff},
		{"trunc constant", b.ZExtOrTrunc(ConstInt(I64, 0x1_0000_0005), I32, "x"), 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, ok := AsConst(tt.got)
			if !ok {
				t.Fatalf("got %T, want *Const", tt.got)
			}
			if c.Int != tt.want {
				t.Errorf("value = %d, want %d", c.Int, tt.want)
			}
		})
	}

	if got := len(f.Entry().Instrs); got != 1 {
		t.Errorf("folding emitted instructions: block has %d, want 1", got)
	}
	if v := b.GEP(Ptr, f.Params[0], ConstInt(I32, 0), true, "slot"); v != Value(f.Params[0]) {
		t.Errorf("GEP with index 0 = %v, want base", v)
	}
	if v := b.ZExtOrTrunc(n, I64, "same"); v != Value(n) {
		t.Errorf("ZExtOrTrunc to own type = %v, want operand", v)
	}
	if v := b.Add(n, ConstInt(I64, 1), "inc"); v == nil || v.Name() != "inc" {
		t.Errorf("Add with a non-constant = %v, want instruction %%inc", v)
	}
}

// TestUniqueNames tests local name uniquing and release on erase.
func TestUniqueNames(t *testing.T) {
	f, ret := newTestFunc(t)
	b := NewBuilderBefore(ret)
	p := f.Params[0]

	x1 := b.Load(I64, p, 8, "x")
	x2 := b.Load(I64, p, 8, "x")
	x3 := b.Load(I64, p, 8, "x")
	if x1.Name() != "x" || x2.Name() != "x1" || x3.Name() != "x2" {
		t.Errorf("names = %s %s %s, want x x1 x2", x1.Name(), x2.Name(), x3.Name())
	}

	x1.EraseFromParent()
	if !x1.Erased() {
		t.Error("Erased() = false after EraseFromParent")
	}
	again := b.Load(I64, p, 8, "x")
	if again.Name() != "x" {
		t.Errorf("name after erase = %s, want x", again.Name())
	}

	x3.TakeName(x2)
	if x3.Name() != "x1" || x2.Name() != "" {
		t.Errorf("TakeName: x3 = %q, x2 = %q; want x1 and empty", x3.Name(), x2.Name())
	}
}

// TestReplaceWith tests replacing all uses and erasing.
func TestReplaceWith(t *testing.T) {
	f, ret := newTestFunc(t)
	b := NewBuilderBefore(ret)
	p := f.Params[0]

	old := b.Load(I64, p, 8, "old")
	use1 := b.Add(old, ConstInt(I64, 1), "u1").(*Instr)
	use2 := b.Store(old, p, 8)
	if got := len(old.Uses()); got != 2 {
		t.Fatalf("Uses() = %d, want 2", got)
	}

	repl := NewBuilderBefore(old).Load(I64, p, 8, "new")
	old.ReplaceWith(repl)

	if use1.Args[0] != Value(repl) || use2.Args[0] != Value(repl) {
		t.Error("uses still refer to the replaced instruction")
	}
	if !old.Erased() {
		t.Error("replaced instruction not erased")
	}
	if err := Verify(f); err != nil {
		t.Errorf("Verify() error = %v", err)
	}
}

// TestSplitAt tests block splitting and phi incoming updates.
func TestSplitAt(t *testing.T) {
	src := `define i64 @f(i1 %c, i64 %a) {
entry:
  %x = add i64 %a, 1
  %y = add i64 %x, 2
  br i1 %c, label %then, label %join

then:
  br label %join

join:
  %r = phi i64 [ %y, %entry ], [ %a, %then ]
  ret i64 %r
}
`
	m := mustParse(t, src)
	f := m.Lookup("f")
	entry := f.Entry()
	y := entry.Instrs[1]

	cont := entry.SplitAt(y, "cont")

	if f.Blocks[1] != cont {
		t.Fatalf("split block placed at %d, want 1", f.blockIndex(cont))
	}
	if len(entry.Instrs) != 2 || entry.Terminator().Op != OpBr || entry.Succs()[0] != cont {
		t.Errorf("entry = %v, want %%x then br to cont", entry.Instrs)
	}
	if y.Block != cont {
		t.Error("moved instruction keeps the old parent")
	}
	phi := f.Block("join").Phis()[0]
	if phi.Incoming[0] != cont {
		t.Errorf("phi incoming = %s, want cont", phi.Incoming[0].Name())
	}
	if err := Verify(f); err != nil {
		t.Errorf("Verify() after split error = %v", err)
	}

	want := "entry:\n  %x = add i64 %a, 1\n  br label %cont\n\ncont:\n  %y = add i64 %x, 2\n"
	if got := f.String(); !strings.Contains(got, want) {
		t.Errorf("printed function =\n%s\nwant it to contain\n%s", got, want)
	}
}

// TestNewBlockBefore tests block placement.
func TestNewBlockBefore(t *testing.T) {
	f, _ := newTestFunc(t)
	last := f.NewBlock("last")
	mid := f.NewBlockBefore("mid", last)
	names := []string{}
	for _, b := range f.Blocks {
		names = append(names, b.Name())
	}
	if got := strings.Join(names, ","); got != "entry,mid,last" {
		t.Errorf("block order = %s, want entry,mid,last", got)
	}
	if mid.Func != f {
		t.Error("new block has no parent function")
	}
}

// TestGetOrDeclare tests idempotent declaration and signature checks.
func TestGetOrDeclare(t *testing.T) {
	m := NewModule("test")
	a, err := m.GetOrDeclare("gc_queue_root", Void, []Type{Ptr}, Attrs{})
	if err != nil {
		t.Fatalf("GetOrDeclare() error = %v", err)
	}
	b, err := m.GetOrDeclare("gc_queue_root", Void, []Type{Ptr}, Attrs{})
	if err != nil || a != b {
		t.Errorf("second GetOrDeclare() = %p, %v; want %p, nil", b, err, a)
	}
	if _, err := m.GetOrDeclare("gc_queue_root", Ptr, nil, Attrs{}); err == nil {
		t.Error("GetOrDeclare() with another signature: error = nil, want error")
	}
	if got := len(m.Funcs()); got != 1 {
		t.Errorf("len(Funcs()) = %d, want 1", got)
	}
}
