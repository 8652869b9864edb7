package interp

import (
	"fmt"

	"github.com/kolkov/gclower/internal/catalog"
	"github.com/kolkov/gclower/internal/layout"
)

// callRuntime runs runtime entry point e with raw arguments.
func (t *Thread) callRuntime(e catalog.Entry, args []uint64) (uint64, error) {
	m := t.m
	switch e {
	case catalog.PoolAlloc:
		return t.poolAlloc(args[0], int64(int32(args[1])), int64(int32(args[2])))
	case catalog.BigAlloc:
		return t.bigAlloc(args[0], t.signed(args[1]))
	case catalog.AllocTyped:
		return t.allocTyped(args[0], t.signed(args[1]))
	case catalog.QueueRootFunc:
		m.mu.Lock()
		m.queued = append(m.queued, args[0])
		m.stats.QueuedRoots++
		m.mu.Unlock()
		return 0, nil
	case catalog.WB1, catalog.WB2, catalog.WB1Slow, catalog.WB2Slow:
		m.mu.Lock()
		m.barriers = append(m.barriers, Barrier{Entry: e.String(), Args: append([]uint64(nil), args...)})
		m.stats.Barriers++
		m.mu.Unlock()
		return 0, nil
	}
	return 0, fmt.Errorf("unknown runtime entry %v", e)
}

// poolAlloc serves gc_pool_alloc(ctx, offset, osize, tag). offset names
// the pool in the context's pool table and must agree with osize.
func (t *Thread) poolAlloc(ctx uint64, offset, osize int64) (uint64, error) {
	l := t.m.layout
	k := l.PoolIndex(offset)
	if k < 0 {
		return 0, fmt.Errorf("gc_pool_alloc: offset %d names no pool", offset)
	}
	if int64(l.SizeClasses[k]) != osize {
		return 0, fmt.Errorf("gc_pool_alloc: pool %d holds %d-byte objects, not %d", k, l.SizeClasses[k], osize)
	}
	obj, err := t.bump(ctx, osize)
	if err != nil {
		return 0, err
	}
	t.m.count(func(s *Stats) {
		s.PoolAllocs++
		s.AllocBytes += osize
	})
	return obj, nil
}

// bump carves an object of osize bytes, header included, out of the
// context's bump region, exactly as the inline fast path does. When the
// region is exhausted a fresh one is installed first.
func (t *Thread) bump(ctx uint64, osize int64) (uint64, error) {
	m := t.m
	l := m.layout
	ps := l.PointerSize
	cursor, err := t.loadSigned(ctx+uint64(l.Thread.CursorOffset), ps)
	if err != nil {
		return 0, err
	}
	limit, err := t.loadSigned(ctx+uint64(l.Thread.LimitOffset), ps)
	if err != nil {
		return 0, err
	}
	result := l.BumpResult(cursor)
	if result+osize > limit {
		size := max(m.opts.RegionSize, osize+layout.FrameAlign)
		base, err := m.mem.Reserve(size, layout.FrameAlign)
		if err != nil {
			return 0, err
		}
		m.mu.Lock()
		m.spans.ReplaceOrInsert(Span{Addr: base, Size: size})
		m.stats.Regions++
		m.mu.Unlock()
		m.log.Debug("region installed", "thread", t.ID, "base", fmt.Sprintf("%#x", base), "size", size)

		cursor, limit = int64(base), int64(base)+size
		if err := m.mem.Store(ctx+uint64(l.Thread.LimitOffset), uint64(limit), ps); err != nil {
			return 0, err
		}
		result = l.BumpResult(cursor)
	}
	if err := m.mem.Store(ctx+uint64(l.Thread.CursorOffset), uint64(result+osize), ps); err != nil {
		return 0, err
	}
	if err := t.addAllocd(ctx, osize); err != nil {
		return 0, err
	}
	return uint64(result + int64(l.HeaderSize)), nil
}

// bigAlloc serves gc_big_alloc(ctx, size, tag). The object is preceded by
// the big-object header and is FrameAlign-aligned.
func (t *Thread) bigAlloc(ctx uint64, size int64) (uint64, error) {
	m := t.m
	hdr := int64(m.layout.BigHeaderSize())
	total := layout.AlignUp(hdr+size, layout.FrameAlign)
	base, err := m.mem.Reserve(total, layout.FrameAlign)
	if err != nil {
		return 0, err
	}
	if err := t.addAllocd(ctx, size); err != nil {
		return 0, err
	}
	m.mu.Lock()
	m.spans.ReplaceOrInsert(Span{Addr: base, Size: total, Big: true})
	m.stats.BigAllocs++
	m.stats.AllocBytes += size
	m.mu.Unlock()
	return base + uint64(hdr), nil
}

// allocTyped serves gc_alloc_typed(ctx, size, tag), classifying the size
// at run time.
func (t *Thread) allocTyped(ctx uint64, size int64) (uint64, error) {
	l := t.m.layout
	if size < 0 {
		return 0, fmt.Errorf("gc_alloc_typed: negative size %d", size)
	}
	t.m.count(func(s *Stats) { s.TypedAllocs++ })
	class := l.Classify(uint64(size))
	if class.Big {
		return t.bigAlloc(ctx, size+int64(l.PointerSize))
	}
	obj, err := t.bump(ctx, int64(class.OSize))
	if err != nil {
		return 0, err
	}
	t.m.count(func(s *Stats) { s.AllocBytes += int64(class.OSize) })
	return obj, nil
}

func (t *Thread) addAllocd(ctx uint64, n int64) error {
	l := t.m.layout
	addr := ctx + uint64(l.Thread.AllocdOffset)
	v, err := t.m.mem.Load(addr, l.PointerSize)
	if err != nil {
		return err
	}
	return t.m.mem.Store(addr, v+uint64(n), l.PointerSize)
}

// loadSigned reads a size-byte integer and sign-extends it.
func (t *Thread) loadSigned(addr uint64, size int) (int64, error) {
	v, err := t.m.mem.Load(addr, size)
	if err != nil {
		return 0, err
	}
	return signExtend(v, size*8), nil
}

// signed sign-extends a pointer-sized raw value.
func (t *Thread) signed(v uint64) int64 {
	return signExtend(v, t.m.layout.PointerSize*8)
}

func signExtend(v uint64, bits int) int64 {
	if bits >= 64 {
		return int64(v)
	}
	shift := 64 - uint(bits)
	return int64(v<<shift) >> shift
}
