package interp

import (
	"fmt"

	"github.com/kolkov/gclower/internal/layout"
)

// maxFrames bounds a shadow-stack walk so that a corrupted chain cannot
// loop forever.
const maxFrames = 1 << 20

// Frame is one shadow-stack frame as seen by the collector.
type Frame struct {
	Addr     uint64   // address of slot 0
	NRoots   int64    // root count from the header
	Indirect bool     // roots hold addresses of the object pointers
	Roots    []uint64 // slot values, innermost frame first in Frames
	Prev     uint64   // next frame towards the bottom, 0 at the bottom
}

// Frames walks the thread's shadow stack from the top. The walk must end
// at a null link; a frame outside the thread's stack or a cycle is an
// error.
func (t *Thread) Frames() ([]Frame, error) {
	m := t.m
	l := m.layout
	ps := l.PointerSize
	top, err := m.mem.Load(t.StackTopCell(), ps)
	if err != nil {
		return nil, err
	}

	var frames []Frame
	seen := make(map[uint64]bool)
	for addr := top; addr != 0; {
		switch {
		case len(frames) >= maxFrames:
			return frames, fmt.Errorf("shadow stack deeper than %d frames", maxFrames)
		case seen[addr]:
			return frames, fmt.Errorf("shadow stack cycle at frame %#x", addr)
		case addr < t.stackBase || addr >= t.stackLimit:
			return frames, fmt.Errorf("frame %#x outside thread %d's stack", addr, t.ID)
		}
		seen[addr] = true

		hdr, err := m.mem.Load(addr+layout.FrameHeaderSlot*uint64(ps), ps)
		if err != nil {
			return frames, err
		}
		n, indirect := layout.DecodeFrameHeader(hdr)
		prev, err := m.mem.Load(addr+layout.FramePrevSlot*uint64(ps), ps)
		if err != nil {
			return frames, err
		}
		f := Frame{Addr: addr, NRoots: n, Indirect: indirect, Prev: prev, Roots: make([]uint64, n)}
		for i := range f.Roots {
			slot := addr + uint64(layout.FrameRootBase+int64(i))*uint64(ps)
			if f.Roots[i], err = m.mem.Load(slot, ps); err != nil {
				return frames, err
			}
		}
		frames = append(frames, f)
		addr = prev
	}
	return frames, nil
}

// Roots returns the object pointers held by the thread's shadow stack,
// innermost frame first. Indirect roots are dereferenced and null roots
// skipped.
func (t *Thread) Roots() ([]uint64, error) {
	frames, err := t.Frames()
	if err != nil {
		return nil, err
	}
	ps := t.m.layout.PointerSize
	var roots []uint64
	for _, f := range frames {
		for _, r := range f.Roots {
			if f.Indirect && r != 0 {
				if r, err = t.m.mem.Load(r, ps); err != nil {
					return nil, err
				}
			}
			if r != 0 {
				roots = append(roots, r)
			}
		}
	}
	return roots, nil
}
