package lower

import (
	"github.com/kolkov/gclower/internal/catalog"
	"github.com/kolkov/gclower/internal/ir"
)

// lowerSafepoint replaces gc.safepoint(page) with a volatile load from the
// signal page. The runtime protects the page to stop the thread; the load
// itself is never used.
func (fl *funcLowering) lowerSafepoint(call *ir.Instr) {
	b := ir.NewBuilderBefore(call)
	b.VolatileLoad(fl.cfg.Layout.SizeType(), call.Args[0], "safepoint_load")
	call.EraseFromParent()
	fl.stats.Safepoints++
}

// lowerQueueRoot points gc.queue_root at the runtime's root queue.
func (fl *funcLowering) lowerQueueRoot(call *ir.Instr) {
	call.SetCalledFunction(fl.runtime[catalog.QueueRootFunc])
	fl.stats.QueueRoots++
}
