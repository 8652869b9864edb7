package lower

import (
	"github.com/kolkov/gclower/internal/ir"
	"github.com/kolkov/gclower/internal/layout"
)

// lowerNewFrame replaces gc.new_frame(N) with a zeroed stack array of N+2
// pointer slots. The array, or its cast into the generic address space,
// takes the call's name.
func (fl *funcLowering) lowerNewFrame(call *ir.Instr) {
	n := mustRootCount(call, 0)
	l := fl.cfg.Layout
	b := ir.NewBuilderBefore(call)

	slots := layout.FrameSlots(n)
	frame := b.Alloca(l.AllocaPtrType(), ir.Ptr, ir.ConstInt(ir.I32, slots), layout.FrameAlign, "")
	ptr := frame
	if l.AllocaAddrSpace != 0 {
		ptr = b.AddrSpaceCast(frame, ir.Ptr, "").(*ir.Instr)
	}
	ptr.TakeName(call)
	b.MemSet(ptr, ir.ConstInt(ir.I8, 0), ir.ConstInt(ir.I64, l.FrameBytes(n)), layout.FrameAlign, TBAAFrame)

	call.ReplaceWith(ptr)
	fl.stats.NewFrames++
	fl.stats.FrameBytes += l.FrameBytes(n)
}

// lowerPushFrame writes the frame header and the previous top into slots
// 0 and 1 and only then publishes the frame as the new top, so the chain
// is consistent at every point a collector could observe it.
func (fl *funcLowering) lowerPushFrame(call *ir.Instr) {
	frame := call.Args[0]
	n := mustRootCount(call, 1)
	l := fl.cfg.Layout
	align := l.PointerSize
	b := ir.NewBuilderBefore(call)

	header := ir.ConstInt(l.SizeType(), layout.EncodeFrameHeader(n, false))
	hdrSlot := fl.slotAddr(b, frame, layout.FrameHeaderSlot, "frame.nroots")
	b.Store(header, hdrSlot, align).TBAA = TBAAFrame

	prev := b.Load(ir.Ptr, fl.stackTop, align, "task.gcstack")
	prevSlot := fl.slotAddr(b, frame, layout.FramePrevSlot, "frame.prev")
	b.Store(prev, prevSlot, align).TBAA = TBAAFrame

	b.Store(frame, fl.stackTop, align)

	call.EraseFromParent()
	fl.stats.PushFrames++
}

// lowerPopFrame restores the top saved in slot 1.
func (fl *funcLowering) lowerPopFrame(call *ir.Instr) {
	frame := call.Args[0]
	align := fl.cfg.Layout.PointerSize
	b := ir.NewBuilderBefore(call)

	prevSlot := fl.slotAddr(b, frame, layout.FramePrevSlot, "frame.prev")
	prev := b.Load(ir.Ptr, prevSlot, align, "")
	prev.TBAA = TBAAFrame
	b.Store(prev, fl.stackTop, align).TBAA = TBAAFrame

	call.EraseFromParent()
	fl.stats.PopFrames++
}

// lowerGetFrameSlot replaces gc.get_frame_slot(frame, i) with the address
// of slot i+2.
func (fl *funcLowering) lowerGetFrameSlot(call *ir.Instr) {
	frame, index := call.Args[0], call.Args[1]
	b := ir.NewBuilderBefore(call)

	idx := b.Add(index, ir.ConstInt(index.Type(), layout.FrameRootBase), "")
	addr := b.GEP(ir.Ptr, frame, idx, true, "")
	if in, ok := addr.(*ir.Instr); ok {
		in.TakeName(call)
	}
	call.ReplaceWith(addr)
	fl.stats.FrameSlots++
}

func (fl *funcLowering) slotAddr(b *ir.Builder, frame ir.Value, slot int64, name string) ir.Value {
	return b.GEP(ir.Ptr, frame, ir.ConstInt(ir.I32, slot), true, name)
}
