package layout

import "golang.org/x/exp/constraints"

// AlignUp rounds n up to a multiple of align, which must be a power of two.
func AlignUp[T constraints.Integer](n, align T) T {
	return (n + align - 1) &^ (align - 1)
}

// IsAligned reports whether n is a multiple of align, a power of two.
func IsAligned[T constraints.Integer](n, align T) bool {
	return n&(align-1) == 0
}
