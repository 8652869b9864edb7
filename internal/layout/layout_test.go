// Package layout - Tests for data layout, size classes and ABI checks.
package layout

import (
	"strings"
	"testing"
)

// TestDefaultLayoutsValid tests that the built-in layouts are consistent.
func TestDefaultLayoutsValid(t *testing.T) {
	for _, ps := range []int{4, 8} {
		l, err := ForPointerSize(ps)
		if err != nil {
			t.Fatalf("ForPointerSize(%d) error = %v", ps, err)
		}
		if err := l.Validate(); err != nil {
			t.Errorf("ForPointerSize(%d).Validate() error = %v", ps, err)
		}
		if got := l.SizeType().Bits; int(got) != ps*8 {
			t.Errorf("SizeType bits = %d, want %d", got, ps*8)
		}
	}
	if _, err := ForPointerSize(2); err == nil {
		t.Error("ForPointerSize(2) error = nil, want error")
	}
}

// TestValidateRejects tests detection of broken layouts.
func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(l *Layout)
		message string
	}{
		{"overlapping fields", func(l *Layout) { l.Thread.LimitOffset = l.Thread.CursorOffset }, "overlap"},
		{"misaligned cursor", func(l *Layout) { l.Thread.CursorOffset = 33 }, "not 8-byte aligned"},
		{"field inside pool table", func(l *Layout) { l.Thread.LimitOffset = 64 }, "overlaps the pool table"},
		{"unsorted classes", func(l *Layout) { l.SizeClasses = []int{16, 8} }, "not ascending"},
		{"header too large", func(l *Layout) { l.HeaderSize = 16 }, "header size"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := Default64()
			tt.mutate(l)
			err := l.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.message) {
				t.Errorf("Validate() error = %v, want it to contain %q", err, tt.message)
			}
		})
	}
}

// TestClassify tests allocation-size classification on 64-bit.
func TestClassify(t *testing.T) {
	l := Default64()
	tests := []struct {
		sz     uint64
		big    bool
		index  int
		osize  int
		offset int64
	}{
		{sz: 0, index: 0, osize: 8, offset: 64},
		{sz: 8, index: 1, osize: 16, offset: 64 + 24},
		{sz: 9, index: 2, osize: 24, offset: 64 + 2*24},
		{sz: 16, index: 2, osize: 24, offset: 64 + 2*24},
		{sz: 100, index: 13, osize: 112, offset: 64 + 13*24},
		{sz: 2024, index: 48, osize: 2032, offset: 64 + 48*24},
		{sz: 2025, big: true, index: -1},
		{sz: 1 << 20, big: true, index: -1},
	}
	for _, tt := range tests {
		got := l.Classify(tt.sz)
		if got.Big != tt.big || got.Index != tt.index || got.OSize != tt.osize || got.Offset != tt.offset {
			t.Errorf("Classify(%d) = %+v, want big=%v index=%d osize=%d offset=%d",
				tt.sz, got, tt.big, tt.index, tt.osize, tt.offset)
		}
	}
}

// TestClassifyProperties tests determinism and the class invariants for
// every poolable size.
func TestClassifyProperties(t *testing.T) {
	for _, l := range []*Layout{Default64(), Default32()} {
		max := uint64(l.MaxPoolSize())
		for sz := uint64(0); sz <= max+16; sz++ {
			a, b := l.Classify(sz), l.Classify(sz)
			if a != b {
				t.Fatalf("Classify(%d) not deterministic: %+v vs %+v", sz, a, b)
			}
			if sz > max {
				if !a.Big {
					t.Fatalf("Classify(%d) = %+v, want big (max %d)", sz, a, max)
				}
				continue
			}
			if a.OSize < int(sz)+l.HeaderSize {
				t.Fatalf("Classify(%d).OSize = %d, too small", sz, a.OSize)
			}
			if a.Index > 0 && l.SizeClasses[a.Index-1] >= int(sz)+l.HeaderSize {
				t.Fatalf("Classify(%d) = class %d, a smaller class fits", sz, a.Index)
			}
			if l.PoolIndex(a.Offset) != a.Index {
				t.Fatalf("PoolIndex(%d) = %d, want %d", a.Offset, l.PoolIndex(a.Offset), a.Index)
			}
		}
	}
}

// TestMaxPoolSize tests the pool/big threshold and big-object header size.
func TestMaxPoolSize(t *testing.T) {
	if got := Default64().MaxPoolSize(); got != 2024 {
		t.Errorf("Default64().MaxPoolSize() = %d, want 2024", got)
	}
	if got := Default32().MaxPoolSize(); got != 2028 {
		t.Errorf("Default32().MaxPoolSize() = %d, want 2028", got)
	}
	if got := Default64().BigHeaderSize(); got != 32 {
		t.Errorf("Default64().BigHeaderSize() = %d, want 32", got)
	}
	if got := Default32().BigHeaderSize(); got != 16 {
		t.Errorf("Default32().BigHeaderSize() = %d, want 16", got)
	}
}

// TestBumpResult tests the inline allocation alignment property.
func TestBumpResult(t *testing.T) {
	for _, l := range []*Layout{Default64(), Default32()} {
		for cursor := int64(4096); cursor < 4096+64; cursor++ {
			r := l.BumpResult(cursor)
			if r < cursor || r > cursor+FrameAlign-1 {
				t.Fatalf("BumpResult(%d) = %d, outside [cursor, cursor+15]", cursor, r)
			}
			if !IsAligned(r+int64(l.HeaderSize), FrameAlign) {
				t.Fatalf("BumpResult(%d) = %d, payload %d not 16-aligned", cursor, r, r+int64(l.HeaderSize))
			}
		}
	}
}

// TestAlignUp tests the generic alignment helpers.
func TestAlignUp(t *testing.T) {
	if got := AlignUp(17, 16); got != 32 {
		t.Errorf("AlignUp(17, 16) = %d, want 32", got)
	}
	if got := AlignUp(uint32(32), 16); got != 32 {
		t.Errorf("AlignUp(32, 16) = %d, want 32", got)
	}
	if !IsAligned(int64(48), 16) || IsAligned(int64(40), 16) {
		t.Error("IsAligned wrong for 48/40")
	}
}

// TestCheckABI tests semantic-version compatibility checks.
func TestCheckABI(t *testing.T) {
	l := Default64()
	l.ABI = "v1.2.0"
	tests := []struct {
		module  string
		wantErr string
	}{
		{"", ""},
		{"v1.0.0", ""},
		{"v1.2.0", ""},
		{"v1.1.7", ""},
		{"v1.3.0", "requires runtime ABI v1.3.0"},
		{"v2.0.0", "major version differs"},
		{"v0.9.0", "major version differs"},
		{"1.0.0", "invalid ABI version"},
	}
	for _, tt := range tests {
		t.Run(tt.module, func(t *testing.T) {
			err := l.CheckABI(tt.module)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("CheckABI(%q) error = %v, want nil", tt.module, err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("CheckABI(%q) error = %v, want %q", tt.module, err, tt.wantErr)
			}
		})
	}
}

// BenchmarkClassify measures classification cost.
func BenchmarkClassify(b *testing.B) {
	l := Default64()
	for i := 0; i < b.N; i++ {
		_ = l.Classify(uint64(i & 2047))
	}
}
