package lower

import (
	"github.com/kolkov/gclower/internal/catalog"
	"github.com/kolkov/gclower/internal/ir"
	"github.com/kolkov/gclower/internal/layout"
)

// lowerAllocBytes rewrites gc.alloc_bytes(ctx, size, tag).
//
// A constant size is classified at compile time: oversize requests call
// the big-object allocator, pooled ones call the pool allocator or, when
// the collector bump-allocates and inlining is on, get an inline fast path
// with a pool-allocator slow path. Any other size calls the typed
// allocator.
func (fl *funcLowering) lowerAllocBytes(call *ir.Instr) {
	ctx, size, tag := call.Args[0], call.Args[1], call.Args[2]
	l := fl.cfg.Layout
	st := l.SizeType()
	b := ir.NewBuilderBefore(call)
	fl.stats.AllocBytes++

	var (
		newCall *ir.Instr
		deref   uint64
	)
	if c, ok := ir.AsConst(size); ok {
		sz := c.Uint()
		fl.stats.StaticBytes += int64(sz)
		class := l.Classify(sz)
		switch {
		case class.Big:
			newCall = b.Call(fl.runtime[catalog.BigAlloc],
				[]ir.Value{ctx, ir.ConstInt(st, int64(sz)+int64(l.PointerSize)), tag}, "")
			if sz > 0 {
				deref = sz
			}
			fl.stats.BigAllocs++
		case fl.strategy.bumpAlloc && fl.cfg.InlineFastPath:
			fl.emitFastPath(call, class)
			fl.stats.InlineAllocs++
			return
		case fl.strategy.bumpAlloc:
			newCall = b.Call(fl.runtime[catalog.PoolAlloc], poolArgs(ctx, class, tag), "")
			deref = uint64(class.OSize)
			fl.stats.PoolAllocs++
		default:
			newCall = b.Call(fl.runtime[catalog.PoolAlloc], poolArgs(ctx, class, tag), "")
			if sz > 0 {
				deref = sz
			}
			fl.stats.PoolAllocs++
		}
	} else {
		n := b.ZExtOrTrunc(size, st, "")
		newCall = b.Call(fl.runtime[catalog.AllocTyped], []ir.Value{ctx, n, tag}, "")
		deref = uint64(l.PointerSize)
		fl.stats.TypedAllocs++
	}

	align := call.Attrs.Align
	if align < 1 {
		align = 1
	}
	newCall.Attrs.Align = max(align, l.PointerSize)
	if deref > 0 {
		newCall.Attrs.Deref = deref
	}
	newCall.TakeName(call)
	call.ReplaceWith(newCall)
}

func poolArgs(ctx ir.Value, class layout.Class, tag ir.Value) []ir.Value {
	return []ir.Value{ctx, ir.ConstInt(ir.I32, class.Offset), ir.ConstInt(ir.I32, int64(class.OSize)), tag}
}

// emitFastPath replaces a pooled allocation with an inline bump of the
// thread's cursor:
//
//	cursor     = *(ctx + CursorOffset)
//	result     = cursor + ((0 - H - cursor) & 15)
//	new_cursor = result + osize
//	if new_cursor > *(ctx + LimitOffset) goto slowpath else fastpath
//	fastpath:  store new_cursor; allocd += osize; obj = result + H
//	slowpath:  obj = pool_alloc(ctx, offset, osize, tag)
//	top_cont:  phi_fast_slow = phi [obj, fastpath], [obj, slowpath]
//
// H is the header size, so the object payload is 16-byte aligned.
func (fl *funcLowering) emitFastPath(call *ir.Instr, class layout.Class) {
	ctx, tag := call.Args[0], call.Args[2]
	l := fl.cfg.Layout
	st := l.SizeType()
	align := l.PointerSize
	osize := ir.ConstInt(st, int64(class.OSize))
	hdr := ir.ConstInt(st, int64(l.HeaderSize))
	b := ir.NewBuilderBefore(call)

	cursorPtr := b.GEP(ir.I8, ctx, ir.ConstInt(st, l.Thread.CursorOffset), false, "cursor_ptr")
	cursor := b.Load(st, cursorPtr, align, "cursor")
	deltaOffset := b.NSWSub(ir.ConstInt(st, 0), hdr, "")
	deltaCursor := b.NSWSub(ir.ConstInt(st, 0), cursor, "")
	deltaOp := b.NSWAdd(deltaOffset, deltaCursor, "")
	delta := b.And(deltaOp, ir.ConstInt(st, layout.FrameAlign-1), "delta")
	result := b.NSWAdd(cursor, delta, "result")
	newCursor := b.NSWAdd(result, osize, "new_cursor")
	limitPtr := b.GEP(ir.I8, ctx, ir.ConstInt(st, l.Thread.LimitOffset), false, "limit_ptr")
	limit := b.Load(st, limitPtr, align, "limit")
	overLimit := b.ICmp(ir.PredSGT, newCursor, limit, "")

	current := call.Block
	phi := ir.NewBuilderBefore(call.Next()).Phi(call.Type(), "phi_fast_slow")
	topCont := current.SplitAt(phi, "top_cont")
	slowpath := fl.f.NewBlock("slowpath")
	fastpath := fl.f.NewBlockBefore("fastpath", topCont)

	current.Terminator().EraseFromParent()
	ir.NewBuilderAtEnd(current).CondBr(overLimit, slowpath, fastpath)

	sb := ir.NewBuilderAtEnd(slowpath)
	slowCall := sb.Call(fl.runtime[catalog.PoolAlloc], poolArgs(ctx, class, tag), "")
	sb.Br(topCont)

	fb := ir.NewBuilderAtEnd(fastpath)
	fb.Store(newCursor, cursorPtr, align)
	allocdPtr := fb.GEP(ir.I8, ctx, ir.ConstInt(st, l.Thread.AllocdOffset), false, "pool_alloc")
	allocd := fb.Load(st, allocdPtr, align, "")
	fb.Store(fb.Add(allocd, osize, ""), allocdPtr, align)
	raw := fb.NSWAdd(result, hdr, "")
	obj := fb.IntToPtr(raw, call.Type(), "")
	fb.Br(topCont)

	phi.AddIncoming(slowCall, slowpath)
	phi.AddIncoming(obj, fastpath)
	phi.TakeName(call)
	call.ReplaceWith(phi)
}
