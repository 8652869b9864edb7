// Package ir - Tests for the verifier.
package ir

import (
	"errors"
	"strings"
	"testing"
)

// TestVerify tests detection of malformed functions.
func TestVerify(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(f *Func)
		message string
	}{
		{
			name:    "well formed",
			mutate:  func(f *Func) {},
			message: "",
		},
		{
			name: "missing terminator",
			mutate: func(f *Func) {
				f.Block("join").Terminator().EraseFromParent()
			},
			message: "does not end in a terminator",
		},
		{
			name: "use before definition",
			mutate: func(f *Func) {
				entry := f.Entry()
				x, y := entry.Instrs[0], entry.Instrs[1]
				entry.Instrs[0], entry.Instrs[1] = y, x
			},
			message: "used before its definition",
		},
		{
			name: "use of erased value",
			mutate: func(f *Func) {
				f.Entry().Instrs[0].EraseFromParent()
			},
			message: "erased instruction",
		},
		{
			name: "phi missing a predecessor",
			mutate: func(f *Func) {
				phi := f.Block("join").Phis()[0]
				phi.Args = phi.Args[:1]
				phi.Incoming = phi.Incoming[:1]
			},
			message: "block has 2 predecessors",
		},
		{
			name: "definition does not dominate",
			mutate: func(f *Func) {
				then := f.Block("then")
				z := &Instr{Op: OpAdd, typ: I64, Args: []Value{f.Params[1], f.Params[1]}}
				then.InsertBefore(z, then.Terminator())
				z.SetName("z")
				f.Block("join").Instrs[1].Args[0] = z
			},
			message: "%z does not dominate",
		},
		{
			name: "call argument type",
			mutate: func(f *Func) {
				g, _ := f.Module.GetOrDeclare("g", Void, []Type{Ptr}, Attrs{})
				NewBuilderBefore(f.Entry().Terminator()).Call(g, []Value{f.Params[1]}, "")
			},
			message: "argument 0 of @g is i64, want ptr",
		},
	}

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
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := mustParse(t, src)
			f := m.Lookup("f")
			tt.mutate(f)
			err := Verify(f)
			if tt.message == "" {
				if err != nil {
					t.Fatalf("Verify() error = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Verify() error = nil, want %q", tt.message)
			}
			var ve *VerifyError
			if !errors.As(err, &ve) {
				t.Fatalf("Verify() error type = %T, want *VerifyError", err)
			}
			if !strings.Contains(err.Error(), tt.message) {
				t.Errorf("Verify() error = %q, want it to contain %q", err, tt.message)
			}
		})
	}
}
