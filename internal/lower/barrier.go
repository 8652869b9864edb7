package lower

import (
	"github.com/kolkov/gclower/internal/catalog"
	"github.com/kolkov/gclower/internal/ir"
)

// lowerWriteBarrier points a write-barrier intrinsic at the collector's
// barrier entry point. Arguments are unchanged.
func (fl *funcLowering) lowerWriteBarrier(call *ir.Instr, k catalog.Kind) {
	e, ok := catalog.BarrierTarget(k)
	if !ok {
		panic(NewContractError(call, "no lowering for "+k.String()))
	}
	call.SetCalledFunction(fl.runtime[e])
	fl.stats.WriteBarriers++
}
