//go:build ignore
// +build ignore

// This tool calculates the thread-context offsets generated code uses.
// Run with: go run tools/calc_tls_offsets.go
//
// The structs mirror the runtime's per-thread context up to the first
// size-class pool. Their field offsets must match layout.Default64 and
// layout.Default32.
package main

import (
	"fmt"
	"unsafe"
)

// tls64 is the 64-bit per-thread context prefix.
type tls64 struct {
	pgcstack  uint64    // offset 0: shadow-stack top cell
	worldAge  uint64    // offset 8
	allocd    int64     // offset 16: bytes allocated by the fast path
	freed     int64     // offset 24
	cursor    uint64    // offset 32: bump-pointer cursor
	limit     uint64    // offset 40: bump-pointer limit
	_         [2]uint64 // offset 48: large-object list and remembered set
	normPools [1]pool64 // offset 64
}

// pool64 is one size-class pool on 64-bit targets.
type pool64 struct {
	freelist uint64
	newpages uint64
	osize    uint64
}

// tls32 is the 32-bit per-thread context prefix.
type tls32 struct {
	pgcstack  uint32
	worldAge  uint32
	allocd    int32
	freed     int32
	cursor    uint32
	limit     uint32
	_         [2]uint32
	normPools [1]pool32
}

// pool32 is one size-class pool on 32-bit targets.
type pool32 struct {
	freelist uint32
	newpages uint32
	osize    uint32
}

func main() {
	var t64 tls64
	var t32 tls32

	fmt.Printf("64-bit context:\n")
	fmt.Printf("  StackTopOffset:  %d\n", unsafe.Offsetof(t64.pgcstack))
	fmt.Printf("  AllocdOffset:    %d\n", unsafe.Offsetof(t64.allocd))
	fmt.Printf("  CursorOffset:    %d\n", unsafe.Offsetof(t64.cursor))
	fmt.Printf("  LimitOffset:     %d\n", unsafe.Offsetof(t64.limit))
	fmt.Printf("  PoolTableOffset: %d\n", unsafe.Offsetof(t64.normPools))
	fmt.Printf("  PoolStride:      %d\n", unsafe.Sizeof(pool64{}))

	fmt.Printf("32-bit context:\n")
	fmt.Printf("  StackTopOffset:  %d\n", unsafe.Offsetof(t32.pgcstack))
	fmt.Printf("  AllocdOffset:    %d\n", unsafe.Offsetof(t32.allocd))
	fmt.Printf("  CursorOffset:    %d\n", unsafe.Offsetof(t32.cursor))
	fmt.Printf("  LimitOffset:     %d\n", unsafe.Offsetof(t32.limit))
	fmt.Printf("  PoolTableOffset: %d\n", unsafe.Offsetof(t32.normPools))
	fmt.Printf("  PoolStride:      %d\n", unsafe.Sizeof(pool32{}))

	fmt.Printf("\nUpdate internal/layout/layout.go if these differ.\n")
}
