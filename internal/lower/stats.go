package lower

import "sync/atomic"

// Stats counts what one run of the pass rewrote.
type Stats struct {
	NewFrames     int // gc.new_frame lowered
	PushFrames    int // gc.push_frame lowered
	PopFrames     int // gc.pop_frame lowered
	FrameSlots    int // gc.get_frame_slot lowered
	AllocBytes    int // gc.alloc_bytes lowered
	QueueRoots    int // gc.queue_root retargeted
	Safepoints    int // gc.safepoint lowered
	WriteBarriers int // write barriers retargeted

	PoolAllocs   int // pooled allocations through the runtime
	BigAllocs    int // oversize allocations
	TypedAllocs  int // allocations of non-constant size
	InlineAllocs int // bump-pointer fast paths emitted

	FrameBytes  int64 // stack bytes reserved by lowered frames
	StaticBytes int64 // bytes requested by constant-size allocations
}

// Total returns the number of intrinsic calls rewritten.
func (s *Stats) Total() int {
	return s.NewFrames + s.PushFrames + s.PopFrames + s.FrameSlots +
		s.AllocBytes + s.QueueRoots + s.Safepoints + s.WriteBarriers
}

// Add accumulates o into s.
func (s *Stats) Add(o Stats) {
	s.NewFrames += o.NewFrames
	s.PushFrames += o.PushFrames
	s.PopFrames += o.PopFrames
	s.FrameSlots += o.FrameSlots
	s.AllocBytes += o.AllocBytes
	s.QueueRoots += o.QueueRoots
	s.Safepoints += o.Safepoints
	s.WriteBarriers += o.WriteBarriers
	s.PoolAllocs += o.PoolAllocs
	s.BigAllocs += o.BigAllocs
	s.TypedAllocs += o.TypedAllocs
	s.InlineAllocs += o.InlineAllocs
	s.FrameBytes += o.FrameBytes
	s.StaticBytes += o.StaticBytes
}

// Process-wide cumulative counters, updated once per lowered function.
var global struct {
	functions atomic.Int64
	skipped   atomic.Int64
	rewritten atomic.Int64
	inline    atomic.Int64
	frameSize atomic.Int64
}

// GlobalStats is a snapshot of the process-wide counters.
type GlobalStats struct {
	Functions    int64 // functions lowered
	Skipped      int64 // functions left untouched
	Rewritten    int64 // intrinsic calls rewritten
	InlineAllocs int64 // fast paths emitted
	FrameBytes   int64 // frame bytes reserved
}

// Global returns the cumulative counters of every run in this process.
func Global() GlobalStats {
	return GlobalStats{
		Functions:    global.functions.Load(),
		Skipped:      global.skipped.Load(),
		Rewritten:    global.rewritten.Load(),
		InlineAllocs: global.inline.Load(),
		FrameBytes:   global.frameSize.Load(),
	}
}

func recordGlobal(s *Stats) {
	global.functions.Add(1)
	global.rewritten.Add(int64(s.Total()))
	global.inline.Add(int64(s.InlineAllocs))
	global.frameSize.Add(s.FrameBytes)
}
