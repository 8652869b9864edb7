package layout

import "sort"

// Class is the outcome of classifying an allocation size.
type Class struct {
	Big    bool  // served by the large-object allocator
	Index  int   // size-class index, -1 when Big
	OSize  int   // pooled object size including the header
	Offset int64 // offset of the pool within the thread context
}

// MaxPoolSize is the largest requested size served from a pool. Larger
// requests go to the large-object allocator.
func (l *Layout) MaxPoolSize() int {
	return l.SizeClasses[len(l.SizeClasses)-1] - l.HeaderSize
}

// BigHeaderSize is the size of the bookkeeping header the large-object
// allocator places in front of every big object: list links, the size
// word and the tagged header, rounded to the frame alignment.
func (l *Layout) BigHeaderSize() int {
	return AlignUp(4*l.PointerSize, FrameAlign)
}

// Classify maps a requested payload size to its pool, or reports that the
// request is a big object. The result is a pure function of sz and the
// size-class table.
func (l *Layout) Classify(sz uint64) Class {
	if sz > uint64(l.MaxPoolSize()) {
		return Class{Big: true, Index: -1}
	}
	need := int(sz) + l.HeaderSize
	k := sort.SearchInts(l.SizeClasses, need)
	return Class{
		Index:  k,
		OSize:  l.SizeClasses[k],
		Offset: l.Thread.PoolTableOffset + int64(k)*l.Thread.PoolStride,
	}
}

// PoolIndex inverts the pool offset computed by Classify. It returns -1
// when off does not name a pool.
func (l *Layout) PoolIndex(off int64) int {
	rel := off - l.Thread.PoolTableOffset
	if rel < 0 || rel%l.Thread.PoolStride != 0 {
		return -1
	}
	k := int(rel / l.Thread.PoolStride)
	if k >= len(l.SizeClasses) {
		return -1
	}
	return k
}

// BumpResult is the header address an inline allocation places at cursor:
// the smallest address >= cursor whose payload (result + HeaderSize) is
// FrameAlign-aligned. It matches the fast path emitted by the pass:
// cursor + ((0 - HeaderSize - cursor) & (FrameAlign - 1)).
func (l *Layout) BumpResult(cursor int64) int64 {
	return cursor + ((-int64(l.HeaderSize) - cursor) & (FrameAlign - 1))
}
