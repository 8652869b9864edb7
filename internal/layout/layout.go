// Package layout describes the target data layout and the runtime's
// per-thread context block as seen by generated code.
//
// Everything the lowering pass hard-codes into emitted instructions lives
// here: pointer size, the alloca address space, the object header size,
// the byte offsets of the thread-context fields (shadow-stack top cell,
// allocation cursor and limit, allocated-bytes counter, pool table) and the
// allocator size-class table. The runtime simulator reads the same Layout,
// so lowered code and simulated runtime always agree on these facts.
package layout

import (
	"fmt"

	"github.com/kolkov/gclower/internal/ir"
)

// CurrentABI is the runtime ABI version this layout describes.
const CurrentABI = "v1.2.0"

// FrameAlign is the alignment of shadow-stack frames and of allocated
// object payloads.
const FrameAlign = 16

// Thread holds byte offsets of the per-thread context fields touched by
// generated code. All offsets are relative to the context pointer passed
// to allocation intrinsics.
type Thread struct {
	StackTopOffset  int64 // shadow-stack top cell
	AllocdOffset    int64 // bytes allocated by the inline fast path
	CursorOffset    int64 // bump-pointer cursor
	LimitOffset     int64 // bump-pointer limit
	PoolTableOffset int64 // first size-class pool
	PoolStride      int64 // distance between consecutive pools
}

// Layout is the complete set of target facts used by the pass.
type Layout struct {
	PointerSize     int
	AllocaAddrSpace int
	HeaderSize      int // bytes of tagged header in front of every pooled object
	Thread          Thread
	SizeClasses     []int // ascending object sizes, header included
	ABI             string
}

// sizeClasses64 mirrors the runtime's pool table on 64-bit targets.
var sizeClasses64 = []int{
	8,
	16, 24, 32, 40, 48, 56, 64, 72, 80, 88, 96, 104, 112, 120, 128, 136,
	144, 160, 176, 192, 208, 224, 240, 256,
	272, 288, 304, 336, 368, 400, 448, 496,
	544, 576, 624, 672, 736, 816, 896, 1008,
	1088, 1168, 1248, 1360, 1488, 1632, 1808, 2032,
}

// sizeClasses32 is the 32-bit pool table; small sizes get 4-byte spacing.
var sizeClasses32 = []int{
	4, 8, 12,
	16, 24, 32, 40, 48, 56, 64, 72, 80, 88, 96, 104, 112, 120, 128, 136,
	144, 160, 176, 192, 208, 224, 240, 256,
	272, 288, 304, 336, 368, 400, 448, 496,
	544, 576, 624, 672, 736, 816, 896, 1008,
	1088, 1168, 1248, 1360, 1488, 1632, 1808, 2032,
}

// Default64 returns the layout of a 64-bit target.
func Default64() *Layout {
	return &Layout{
		PointerSize: 8,
		HeaderSize:  8,
		Thread: Thread{
			StackTopOffset:  0,
			AllocdOffset:    16,
			CursorOffset:    32,
			LimitOffset:     40,
			PoolTableOffset: 64,
			PoolStride:      24,
		},
		SizeClasses: sizeClasses64,
		ABI:         CurrentABI,
	}
}

// Default32 returns the layout of a 32-bit target.
func Default32() *Layout {
	return &Layout{
		PointerSize: 4,
		HeaderSize:  4,
		Thread: Thread{
			StackTopOffset:  0,
			AllocdOffset:    8,
			CursorOffset:    16,
			LimitOffset:     20,
			PoolTableOffset: 32,
			PoolStride:      12,
		},
		SizeClasses: sizeClasses32,
		ABI:         CurrentABI,
	}
}

// ForPointerSize returns the default layout for a pointer size in bytes.
//
// Returns:
//   - Default64() for 8, Default32() for 4
//   - error for any other size
func ForPointerSize(n int) (*Layout, error) {
	switch n {
	case 8:
		return Default64(), nil
	case 4:
		return Default32(), nil
	}
	return nil, fmt.Errorf("unsupported pointer size %d (want 4 or 8)", n)
}

// SizeType is the integer type as wide as a pointer.
func (l *Layout) SizeType() ir.Type {
	return ir.IntType(l.PointerSize * 8)
}

// AllocaPtrType is the pointer type produced by alloca.
func (l *Layout) AllocaPtrType() ir.Type {
	return ir.PtrIn(l.AllocaAddrSpace)
}

// ContextSize is the size of the per-thread context block, rounded up to
// the frame alignment.
func (l *Layout) ContextSize() int64 {
	end := l.Thread.PoolTableOffset + int64(len(l.SizeClasses))*l.Thread.PoolStride
	return AlignUp(end, FrameAlign)
}

// Validate checks that the layout is self-consistent: pointer-sized
// fields are aligned and disjoint, the pool table follows them and the
// size classes ascend.
func (l *Layout) Validate() error {
	if l.PointerSize != 4 && l.PointerSize != 8 {
		return fmt.Errorf("layout: pointer size %d, want 4 or 8", l.PointerSize)
	}
	if l.HeaderSize <= 0 || l.HeaderSize >= FrameAlign {
		return fmt.Errorf("layout: header size %d out of range (0, %d)", l.HeaderSize, FrameAlign)
	}
	ps := int64(l.PointerSize)
	fields := []struct {
		name string
		off  int64
	}{
		{"stack top", l.Thread.StackTopOffset},
		{"allocd", l.Thread.AllocdOffset},
		{"cursor", l.Thread.CursorOffset},
		{"limit", l.Thread.LimitOffset},
	}
	for i, f := range fields {
		if f.off < 0 || !IsAligned(f.off, ps) {
			return fmt.Errorf("layout: %s offset %d not %d-byte aligned", f.name, f.off, ps)
		}
		if f.off+ps > l.Thread.PoolTableOffset {
			return fmt.Errorf("layout: %s offset %d overlaps the pool table at %d", f.name, f.off, l.Thread.PoolTableOffset)
		}
		for _, g := range fields[:i] {
			if f.off < g.off+ps && g.off < f.off+ps {
				return fmt.Errorf("layout: %s and %s fields overlap", g.name, f.name)
			}
		}
	}
	if l.Thread.PoolStride < ps {
		return fmt.Errorf("layout: pool stride %d smaller than a pointer", l.Thread.PoolStride)
	}
	if len(l.SizeClasses) == 0 {
		return fmt.Errorf("layout: empty size-class table")
	}
	for i := 1; i < len(l.SizeClasses); i++ {
		if l.SizeClasses[i] <= l.SizeClasses[i-1] {
			return fmt.Errorf("layout: size classes not ascending at %d", i)
		}
	}
	if l.MaxPoolSize() <= 0 {
		return fmt.Errorf("layout: largest size class %d leaves no room after the header", l.SizeClasses[len(l.SizeClasses)-1])
	}
	return nil
}
