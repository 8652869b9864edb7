// Package ir - Tests for the .gcir parser and printer.
package ir

import (
	"errors"
	"strings"
	"testing"
)

func mustParse(t *testing.T, src string) *Module {
	t.Helper()
	m, err := ParseString(src)
	if err != nil {
		t.Fatalf("ParseString() error = %v", err)
	}
	return m
}

const sampleModule = `target abi "v1.0.0"

declare ptr @gc.get_stack_top()
declare ptr @gc_pool_alloc(ptr, i32, i32, ptr) noalias nonnull

define ptr @f(ptr %ctx, i64 %n) {
entry:
  %pgcstack = call ptr @gc.get_stack_top()
  %frame = alloca ptr, i32 5, align 16
  memset ptr %frame, i8 0, i64 40, align 16, !tbaa gcframe
  %0 = getelementptr inbounds ptr, ptr %frame, i32 2
  store ptr null, ptr %0, align 8, !tbaa gcframe
  %c = icmp sgt i64 %n, 16
  br i1 %c, label %big, label %small

big:
  %1 = add nsw i64 %n, 8
  %p = inttoptr i64 %1 to ptr
  br label %done

small:
  %q = call ptr @gc_pool_alloc(ptr %ctx, i32 1432, i32 16, ptr null) align 8 deref 8 noalias nonnull
  br label %done

done:
  %r = phi ptr [ %p, %big ], [ %q, %small ]
  %s = load volatile i64, ptr %ctx
  ret ptr %r
}
`

const loopModule = `define i64 @loop(i64 %n) {
entry:
  br label %head

head:
  %i = phi i64 [ 0, %entry ], [ %next, %head ]
  %next = add i64 %i, 1
  %done = icmp eq i64 %next, %n
  br i1 %done, label %exit, label %head

exit:
  ret i64 %next
}
`

// TestRoundTrip tests that printing a parsed module reproduces the input.
func TestRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"frame and allocation", sampleModule},
		{"loop with forward reference", loopModule},
		{
			name: "address spaces and casts",
			src: `define void @g(ptr addrspace(5) %p, i64 %x) {
entry:
  %a = alloca ptr, i32 3, align 16, addrspace(5)
  %b = addrspacecast ptr addrspace(5) %a to ptr
  %t = trunc i64 %x to i32
  %z = zext i32 %t to i64
  %i = ptrtoint ptr %b to i64
  %m = and i64 %i, 15
  %d = sub nsw i64 %z, %m
  unreachable
}
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := mustParse(t, tt.src)
			if got := m.String(); got != tt.src {
				t.Errorf("String() mismatch\ngot:\n%s\nwant:\n%s", got, tt.src)
			}
			if err := VerifyModule(m); err != nil {
				t.Errorf("VerifyModule() error = %v", err)
			}
		})
	}
}

// TestParseStructure tests the graph built by the parser.
func TestParseStructure(t *testing.T) {
	m := mustParse(t, sampleModule)

	if m.ABI != "v1.0.0" {
		t.Errorf("ABI = %q, want %q", m.ABI, "v1.0.0")
	}
	f := m.Lookup("f")
	if f == nil {
		t.Fatal("Lookup(f) = nil")
	}
	if got := len(f.Blocks); got != 4 {
		t.Fatalf("len(Blocks) = %d, want 4", got)
	}

	alloc := m.Lookup("gc_pool_alloc")
	if !alloc.IsDeclaration() || !alloc.Attrs.NoAlias || !alloc.Attrs.NonNull {
		t.Errorf("gc_pool_alloc attrs = %+v, want noalias nonnull declaration", alloc.Attrs)
	}

	calls := f.Calls(alloc)
	if len(calls) != 1 {
		t.Fatalf("Calls(gc_pool_alloc) = %d, want 1", len(calls))
	}
	call := calls[0]
	if call.Attrs.Align != 8 || call.Attrs.Deref != 8 {
		t.Errorf("call attrs = %+v, want align 8 deref 8", call.Attrs)
	}
	if c, ok := AsConst(call.Args[1]); !ok || c.Int != 1432 {
		t.Errorf("call.Args[1] = %v, want i32 1432", call.Args[1])
	}

	done := f.Block("done")
	phi := done.Phis()
	if len(phi) != 1 || len(phi[0].Incoming) != 2 {
		t.Fatalf("done phis = %v, want one phi with two incoming", phi)
	}
	if phi[0].Incoming[0] != f.Block("big") || phi[0].Incoming[1] != f.Block("small") {
		t.Errorf("phi incoming blocks wrong")
	}
	if phi[0].Args[1] != Value(call) {
		t.Errorf("phi second value = %v, want the pool allocation call", phi[0].Args[1])
	}
}

// TestParseForwardReference tests that a use before definition resolves to
// the defining instruction.
func TestParseForwardReference(t *testing.T) {
	m := mustParse(t, loopModule)
	f := m.Lookup("loop")
	head := f.Block("head")
	phi := head.Phis()[0]
	next := head.Instrs[1]
	if next.Name() != "next" {
		t.Fatalf("head.Instrs[1] = %s, want %%next", next.Name())
	}
	if phi.Args[1] != Value(next) {
		t.Errorf("phi second value = %v, want %%next", phi.Args[1])
	}
}

// TestParseCallBeforeDefinition tests calls to functions defined later.
func TestParseCallBeforeDefinition(t *testing.T) {
	src := `define void @a() {
entry:
  call void @b(i64 7)
  ret void
}

define void @b(i64 %x) {
entry:
  ret void
}
`
	m := mustParse(t, src)
	b := m.Lookup("b")
	if b.IsDeclaration() {
		t.Fatal("@b is a declaration, want definition")
	}
	if got := m.String(); got != src {
		t.Errorf("String() mismatch\ngot:\n%s\nwant:\n%s", got, src)
	}
}

// TestParseErrors tests error positions and messages.
func TestParseErrors(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		line    int
		col     int
		message string
	}{
		{
			name:    "undefined value",
			src:     "define void @f() {\nentry:\n  %x = add i64 %y, 1\n  ret void\n}\n",
			line:    3,
			col:     16,
			message: "use of undefined value %y",
		},
		{
			name:    "unknown instruction",
			src:     "define void @f() {\nentry:\n  frobnicate\n}\n",
			line:    3,
			col:     3,
			message: "unknown instruction frobnicate",
		},
		{
			name:    "unterminated body",
			src:     "define void @f() {\nentry:\n  ret void\n",
			line:    4,
			col:     1,
			message: "unexpected end of file",
		},
		{
			name:    "type mismatch",
			src:     "define void @f(i64 %a) {\nentry:\n  %x = add i32 %a, 1\n  ret void\n}\n",
			line:    3,
			col:     16,
			message: "%a has type i64, used as i32",
		},
		{
			name:    "redefined value",
			src:     "define void @f(i64 %a) {\nentry:\n  %a = add i64 1, 1\n  ret void\n}\n",
			line:    3,
			col:     3,
			message: "value %a redefined",
		},
		{
			name:    "undefined function",
			src:     "define void @f() {\nentry:\n  call void @g()\n  ret void\n}\n",
			line:    3,
			col:     13,
			message: "call to undefined function @g",
		},
		{
			name:    "undefined label",
			src:     "define void @f() {\nentry:\n  br label %nowhere\n}\n",
			line:    3,
			col:     12,
			message: "use of undefined label %nowhere",
		},
		{
			name:    "bad character",
			src:     "declare void @f() #\n",
			line:    1,
			col:     19,
			message: "unexpected character",
		},
		{
			name:    "naming a void instruction",
			src:     "define void @f(ptr %p) {\nentry:\n  %s = store i64 1, ptr %p\n  ret void\n}\n",
			line:    3,
			col:     3,
			message: "cannot name store",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse("bad.gcir", []byte(tt.src))
			if err == nil {
				t.Fatal("Parse() error = nil, want error")
			}
			var se *SyntaxError
			if !errors.As(err, &se) {
				t.Fatalf("Parse() error type = %T, want *SyntaxError", err)
			}
			if se.File != "bad.gcir" || se.Line != tt.line || se.Col != tt.col {
				t.Errorf("position = %s:%d:%d, want bad.gcir:%d:%d", se.File, se.Line, se.Col, tt.line, tt.col)
			}
			if !strings.Contains(se.Msg, tt.message) {
				t.Errorf("Msg = %q, want it to contain %q", se.Msg, tt.message)
			}
		})
	}
}

// TestSyntaxError_Error tests error message formatting.
func TestSyntaxError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *SyntaxError
		expected string
	}{
		{"with file", &SyntaxError{File: "a.gcir", Line: 3, Col: 7, Msg: "boom"}, "a.gcir:3:7: boom"},
		{"without file", &SyntaxError{Line: 1, Col: 1, Msg: "boom"}, "<input>:1:1: boom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

// TestParseComments tests that comments and blank lines are ignored.
func TestParseComments(t *testing.T) {
	src := `; leading comment
declare void @g() ; trailing comment

; between
define void @f() {
entry: ; label comment
  call void @g()
  ret void
}
`
	m := mustParse(t, src)
	want := `declare void @g()

define void @f() {
entry:
  call void @g()
  ret void
}
`
	if got := m.String(); got != want {
		t.Errorf("String() = \n%s\nwant:\n%s", got, want)
	}
}
