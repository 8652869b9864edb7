package layout

// Shadow-stack frames are arrays of pointer-sized slots:
//
//	slot 0     header: nroots<<2 | tag
//	slot 1     previous top of the thread's shadow stack
//	slot 2..   roots
//
// Tag 0 marks direct roots (the slot holds the object pointer), tag 1
// indirect roots (the slot holds the address of a location holding it).
const (
	FrameHeaderSlot = 0
	FramePrevSlot   = 1
	FrameRootBase   = 2

	frameIndirectTag = 1
	frameTagMask     = 3
)

// EncodeFrameHeader returns the header word of a frame with n roots.
func EncodeFrameHeader(n int64, indirect bool) int64 {
	h := n << 2
	if indirect {
		h |= frameIndirectTag
	}
	return h
}

// DecodeFrameHeader splits a header word into root count and tag.
func DecodeFrameHeader(h uint64) (n int64, indirect bool) {
	return int64(h >> 2), h&frameTagMask == frameIndirectTag
}

// FrameSlots is the number of slots of a frame with n roots.
func FrameSlots(n int64) int64 {
	return n + FrameRootBase
}

// FrameBytes is the size in bytes of a frame with n roots.
func (l *Layout) FrameBytes(n int64) int64 {
	return FrameSlots(n) * int64(l.PointerSize)
}
