package lower

import (
	"fmt"
	"io"
	"log/slog"
	"runtime"

	"github.com/kolkov/gclower/internal/layout"
)

// Collector selects the garbage collector the generated code cooperates
// with.
type Collector int

const (
	// CollectorPool is the barrier-based collector with size-class pools.
	// Every allocation calls into the runtime.
	CollectorPool Collector = iota
	// CollectorCursor is the moving collector with thread-local bump
	// regions and explicit write barriers. Small allocations are inlined.
	CollectorCursor
)

var collectorNames = [...]string{
	CollectorPool:   "pool",
	CollectorCursor: "cursor",
}

func (c Collector) String() string {
	if c >= 0 && int(c) < len(collectorNames) {
		return collectorNames[c]
	}
	return fmt.Sprintf("Collector(%d)", int(c))
}

// ParseCollector parses a collector name as printed by String.
func ParseCollector(s string) (Collector, error) {
	for c, name := range collectorNames {
		if name == s {
			return Collector(c), nil
		}
	}
	return 0, fmt.Errorf("unknown collector %q (want pool or cursor)", s)
}

// strategy is what a collector asks of the pass.
type strategy struct {
	bumpAlloc        bool // pooled allocations may be inlined as a bump
	explicitBarriers bool // write-barrier intrinsics are lowered
}

var strategies = [...]strategy{
	CollectorPool:   {},
	CollectorCursor: {bumpAlloc: true, explicitBarriers: true},
}

// Config controls one run of the pass.
type Config struct {
	Collector Collector
	// InlineFastPath emits the bump-pointer fast path for pooled
	// allocations when the collector supports it. Turning it off is a
	// debugging aid: every allocation becomes a runtime call.
	InlineFastPath bool
	Layout         *layout.Layout
	// Logger receives debug tracing. Nil discards.
	Logger *slog.Logger
	// Parallelism bounds the number of functions LowerModule lowers at
	// once. Zero means GOMAXPROCS.
	Parallelism int
	// Verify runs the IR verifier on every lowered function.
	Verify bool
}

// DefaultConfig returns the configuration for the pool collector on a
// 64-bit target with verification on.
func DefaultConfig() Config {
	return Config{
		Collector:      CollectorPool,
		InlineFastPath: true,
		Layout:         layout.Default64(),
		Verify:         true,
	}
}

func (c Config) withDefaults() (Config, error) {
	if c.Collector < 0 || int(c.Collector) >= len(strategies) {
		return c, fmt.Errorf("invalid collector %v", c.Collector)
	}
	if c.Layout == nil {
		c.Layout = layout.Default64()
	}
	if err := c.Layout.Validate(); err != nil {
		return c, err
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if c.Parallelism <= 0 {
		c.Parallelism = runtime.GOMAXPROCS(0)
	}
	return c, nil
}

func (c Config) strategy() strategy {
	return strategies[c.Collector]
}
