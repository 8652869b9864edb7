// Package lower - Tests for allocation lowering.
package lower

import (
	"fmt"
	"strings"
	"testing"

	"github.com/kolkov/gclower/internal/ir"
	"github.com/kolkov/gclower/internal/layout"
)

func allocSrc(size string) string {
	return intrinsicDecls + fmt.Sprintf(`
define ptr @alloc(ptr %%ctx, ptr %%tag, i32 %%n) {
entry:
  %%pgcstack = call ptr @gc.get_stack_top()
  %%v = call ptr @gc.alloc_bytes(ptr %%ctx, %s, ptr %%tag)
  ret ptr %%v
}
`, size)
}

// TestScenarioBFastPath tests the inline bump-pointer allocation diamond.
func TestScenarioBFastPath(t *testing.T) {
	f, r := lowerOne(t, allocSrc("i64 16"), "alloc", cursorConfig(true))

	want := `define ptr @alloc(ptr %ctx, ptr %tag, i32 %n) {
entry:
  %pgcstack = call ptr @gc.get_stack_top()
  %cursor_ptr = getelementptr i8, ptr %ctx, i64 32
  %cursor = load i64, ptr %cursor_ptr, align 8
  %0 = sub nsw i64 0, %cursor
  %1 = add nsw i64 -8, %0
  %delta = and i64 %1, 15
  %result = add nsw i64 %cursor, %delta
  %new_cursor = add nsw i64 %result, 24
  %limit_ptr = getelementptr i8, ptr %ctx, i64 40
  %limit = load i64, ptr %limit_ptr, align 8
  %2 = icmp sgt i64 %new_cursor, %limit
  br i1 %2, label %slowpath, label %fastpath

fastpath:
  store i64 %new_cursor, ptr %cursor_ptr, align 8
  %pool_alloc = getelementptr i8, ptr %ctx, i64 16
  %3 = load i64, ptr %pool_alloc, align 8
  %4 = add i64 %3, 24
  store i64 %4, ptr %pool_alloc, align 8
  %5 = add nsw i64 %result, 8
  %6 = inttoptr i64 %5 to ptr
  br label %top_cont

top_cont:
  %v = phi ptr [ %7, %slowpath ], [ %6, %fastpath ]
  ret ptr %v

slowpath:
  %7 = call ptr @gc_pool_alloc(ptr %ctx, i32 112, i32 24, ptr %tag) noalias nonnull
  br label %top_cont
}
`
	if got := f.String(); got != want {
		t.Errorf("lowered function mismatch\ngot:\n%s\nwant:\n%s", got, want)
	}

	join := f.Block("top_cont")
	if join == nil {
		t.Fatal("no join block")
	}
	phis := join.Phis()
	if len(phis) != 1 || len(phis[0].Args) != 2 {
		t.Fatalf("join phis = %v, want one phi with two incoming values", phis)
	}
	preds := join.Preds()
	if len(preds) != 2 {
		t.Errorf("join has %d predecessors, want 2", len(preds))
	}
	for _, p := range preds {
		if got := p.Preds(); len(got) != 1 || got[0] != f.Entry() {
			t.Errorf("%s predecessors = %v, want entry", p.Name(), got)
		}
	}
	if r.Stats.InlineAllocs != 1 || r.Stats.StaticBytes != 16 {
		t.Errorf("Stats = %+v", r.Stats)
	}
	if res := Residual(f); len(res) != 0 {
		t.Errorf("Residual() = %v, want none", res)
	}
}

// TestFastPathUsesClassOffset tests that the slow path passes the pool
// selected for the request size.
func TestFastPathUsesClassOffset(t *testing.T) {
	l := layout.Default64()
	for _, sz := range []uint64{0, 1, 8, 100, 1000, uint64(l.MaxPoolSize())} {
		t.Run(fmt.Sprint(sz), func(t *testing.T) {
			f, _ := lowerOne(t, allocSrc(fmt.Sprintf("i64 %d", sz)), "alloc", cursorConfig(true))
			class := l.Classify(sz)
			want := fmt.Sprintf("@gc_pool_alloc(ptr %%ctx, i32 %d, i32 %d, ptr %%tag)", class.Offset, class.OSize)
			if got := f.String(); !strings.Contains(got, want) {
				t.Errorf("lowered function lacks %q:\n%s", want, got)
			}
			if !strings.Contains(f.String(), fmt.Sprintf("%%new_cursor = add nsw i64 %%result, %d", class.OSize)) {
				t.Errorf("cursor not advanced by %d", class.OSize)
			}
		})
	}
}

// TestAllocLowering tests the out-of-line allocation rewrites.
func TestAllocLowering(t *testing.T) {
	tests := []struct {
		name   string
		size   string
		cfg    Config
		want   string
		counts func(Stats) bool
	}{
		{
			name:   "pool collector small",
			size:   "i64 16",
			cfg:    DefaultConfig(),
			want:   "%v = call ptr @gc_pool_alloc(ptr %ctx, i32 112, i32 24, ptr %tag) align 8 deref 16 noalias nonnull",
			counts: func(s Stats) bool { return s.PoolAllocs == 1 },
		},
		{
			name:   "pool collector zero size",
			size:   "i64 0",
			cfg:    DefaultConfig(),
			want:   "%v = call ptr @gc_pool_alloc(ptr %ctx, i32 64, i32 8, ptr %tag) align 8 noalias nonnull",
			counts: func(s Stats) bool { return s.PoolAllocs == 1 },
		},
		{
			name:   "cursor collector without inlining",
			size:   "i64 16",
			cfg:    cursorConfig(false),
			want:   "%v = call ptr @gc_pool_alloc(ptr %ctx, i32 112, i32 24, ptr %tag) align 8 deref 24 noalias nonnull",
			counts: func(s Stats) bool { return s.PoolAllocs == 1 && s.InlineAllocs == 0 },
		},
		{
			name:   "big object",
			size:   "i64 4096",
			cfg:    DefaultConfig(),
			want:   "%v = call ptr @gc_big_alloc(ptr %ctx, i64 4104, ptr %tag) align 8 deref 4096 noalias nonnull",
			counts: func(s Stats) bool { return s.BigAllocs == 1 },
		},
		{
			name:   "big object under cursor collector",
			size:   "i64 2025",
			cfg:    cursorConfig(true),
			want:   "%v = call ptr @gc_big_alloc(ptr %ctx, i64 2033, ptr %tag) align 8 deref 2025 noalias nonnull",
			counts: func(s Stats) bool { return s.BigAllocs == 1 && s.InlineAllocs == 0 },
		},
		{
			name:   "narrow constant size",
			size:   "i32 40",
			cfg:    DefaultConfig(),
			want:   "%v = call ptr @gc_pool_alloc(ptr %ctx, i32 184, i32 48, ptr %tag) align 8 deref 40 noalias nonnull",
			counts: func(s Stats) bool { return s.PoolAllocs == 1 && s.StaticBytes == 40 },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := allocSrc(tt.size)
			if strings.HasPrefix(tt.size, "i32") {
				src = strings.Replace(src, "declare ptr @gc.alloc_bytes(ptr, i64, ptr)", "declare ptr @gc.alloc_bytes(ptr, i32, ptr)", 1)
			}
			f, r := lowerOne(t, src, "alloc", tt.cfg)
			if got := f.String(); !strings.Contains(got, tt.want) {
				t.Errorf("lowered function lacks\n%s\ngot:\n%s", tt.want, got)
			}
			if len(f.Blocks) != 1 {
				t.Errorf("got %d blocks, want 1", len(f.Blocks))
			}
			if !tt.counts(r.Stats) {
				t.Errorf("Stats = %+v", r.Stats)
			}
		})
	}
}

// TestScenarioCTypedAlloc tests that a non-constant size always calls the
// typed allocator, whatever the collector.
func TestScenarioCTypedAlloc(t *testing.T) {
	src := strings.Replace(allocSrc("i32 %n"), "declare ptr @gc.alloc_bytes(ptr, i64, ptr)", "declare ptr @gc.alloc_bytes(ptr, i32, ptr)", 1)
	want := "  %0 = zext i32 %n to i64\n  %v = call ptr @gc_alloc_typed(ptr %ctx, i64 %0, ptr %tag) align 8 deref 8 noalias nonnull\n"

	for _, cfg := range []Config{DefaultConfig(), cursorConfig(true), cursorConfig(false)} {
		t.Run(cfg.Collector.String(), func(t *testing.T) {
			f, r := lowerOne(t, src, "alloc", cfg)
			if got := f.String(); !strings.Contains(got, want) {
				t.Errorf("lowered function:\n%s\nwant it to contain\n%s", got, want)
			}
			if r.Stats.TypedAllocs != 1 || r.Stats.StaticBytes != 0 {
				t.Errorf("Stats = %+v", r.Stats)
			}
		})
	}

	f, _ := lowerOne(t, strings.Replace(allocSrc("i64 %m"), "i32 %n", "i64 %m", 1), "alloc", DefaultConfig())
	if got := f.String(); !strings.Contains(got, "@gc_alloc_typed(ptr %ctx, i64 %m, ptr %tag)") {
		t.Errorf("full-width size was converted:\n%s", got)
	}
}

// TestAllocAlignment tests that the result alignment is at least the
// pointer size and keeps a larger alignment from the original call.
func TestAllocAlignment(t *testing.T) {
	src := strings.Replace(allocSrc("i64 32"), "ptr %tag)\n", "ptr %tag) align 32\n", 1)
	f, _ := lowerOne(t, src, "alloc", DefaultConfig())
	if got := f.String(); !strings.Contains(got, "ptr %tag) align 32 deref 32 noalias nonnull") {
		t.Errorf("alignment not kept:\n%s", got)
	}

	cfg := DefaultConfig()
	cfg.Layout = layout.Default32()
	src = strings.Replace(allocSrc("i32 8"), "declare ptr @gc.alloc_bytes(ptr, i64, ptr)", "declare ptr @gc.alloc_bytes(ptr, i32, ptr)", 1)
	f, _ = lowerOne(t, src, "alloc", cfg)
	class := cfg.Layout.Classify(8)
	want := fmt.Sprintf("@gc_pool_alloc(ptr %%ctx, i32 %d, i32 %d, ptr %%tag) align 4 deref 8", class.Offset, class.OSize)
	if got := f.String(); !strings.Contains(got, want) {
		t.Errorf("32-bit lowering lacks %q:\n%s", want, got)
	}
}

// TestAllocInLoop tests the fast path inside a loop body, where the split
// block must keep the loop's back edge.
func TestAllocInLoop(t *testing.T) {
	src := intrinsicDecls + `
define void @loop(ptr %ctx, ptr %tag, i64 %n) {
entry:
  %pgcstack = call ptr @gc.get_stack_top()
  br label %head

head:
  %i = phi i64 [ 0, %entry ], [ %next, %body ]
  %done = icmp sge i64 %i, %n
  br i1 %done, label %exit, label %body

body:
  %obj = call ptr @gc.alloc_bytes(ptr %ctx, i64 48, ptr %tag)
  store i64 %i, ptr %obj, align 8
  %next = add i64 %i, 1
  br label %head

exit:
  ret void
}
`
	f, _ := lowerOne(t, src, "loop", cursorConfig(true))
	head := f.Block("head")
	if head == nil {
		t.Fatal("no head block")
	}
	phi := head.Phis()[0]
	var fromCont bool
	for _, b := range phi.Incoming {
		if b.Name() == "top_cont" {
			fromCont = true
		}
	}
	if !fromCont {
		t.Errorf("loop phi incoming = %v, want the split block", phi.Incoming)
	}
	if err := ir.Verify(f); err != nil {
		t.Errorf("Verify() error = %v", err)
	}
	if got := f.String(); !strings.Contains(got, "store i64 %i, ptr %obj, align 8") {
		t.Errorf("use of allocation not rewritten to the phi:\n%s", got)
	}
}
