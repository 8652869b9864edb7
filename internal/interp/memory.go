package interp

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/docker/go-units"

	"github.com/kolkov/gclower/internal/layout"
)

const (
	pageShift = 12
	pageSize  = 1 << pageShift

	// memBase is the first reservable address. Everything below it is the
	// null guard area.
	memBase = 0x10000
)

// Memory is a simulated little-endian address space.
//
// Memory is reserved with a bump pointer starting at memBase and is never
// returned. Pages are materialized on first write; reading a reserved but
// untouched byte yields zero.
//
// Thread Safety: All methods are safe for concurrent use. Individual loads
// and stores are atomic with respect to each other.
type Memory struct {
	mu    sync.RWMutex
	pages map[uint64]*[pageSize]byte
	top   uint64 // first unreserved address
	limit uint64 // reservation limit
}

// NewMemory creates an address space holding at most capacity bytes.
func NewMemory(capacity int64) *Memory {
	return &Memory{
		pages: make(map[uint64]*[pageSize]byte),
		top:   memBase,
		limit: memBase + uint64(capacity),
	}
}

// Reserve returns the address of n fresh zero bytes aligned to align.
//
// Returns:
//   - error wrapping ErrOutOfMemory if the address space is exhausted
func (m *Memory) Reserve(n int64, align int) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	addr := layout.AlignUp(m.top, uint64(align))
	if n < 0 || addr+uint64(n) > m.limit {
		return 0, fmt.Errorf("%w: reserving %s with %s in use", ErrOutOfMemory,
			units.BytesSize(float64(n)), units.BytesSize(float64(m.top-memBase)))
	}
	m.top = addr + uint64(n)
	return addr, nil
}

// InUse returns the number of reserved bytes.
func (m *Memory) InUse() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(m.top - memBase)
}

func (m *Memory) check(addr uint64, n int) error {
	switch {
	case addr < memBase:
		return fmt.Errorf("%w at %#x", ErrNullDeref, addr)
	case addr+uint64(n) > m.top || addr+uint64(n) < addr:
		return fmt.Errorf("%w: %d bytes at %#x", ErrBadAddress, n, addr)
	}
	return nil
}

// Read copies len(buf) bytes at addr into buf.
func (m *Memory) Read(addr uint64, buf []byte) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.check(addr, len(buf)); err != nil {
		return err
	}
	for len(buf) > 0 {
		off := addr & (pageSize - 1)
		chunk := min(uint64(len(buf)), pageSize-off)
		if p := m.pages[addr>>pageShift]; p != nil {
			copy(buf[:chunk], p[off:off+chunk])
		} else {
			clear(buf[:chunk])
		}
		buf = buf[chunk:]
		addr += chunk
	}
	return nil
}

// Write copies buf to addr.
func (m *Memory) Write(addr uint64, buf []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(addr, len(buf)); err != nil {
		return err
	}
	for len(buf) > 0 {
		off := addr & (pageSize - 1)
		chunk := min(uint64(len(buf)), pageSize-off)
		p := m.pages[addr>>pageShift]
		if p == nil {
			p = new([pageSize]byte)
			m.pages[addr>>pageShift] = p
		}
		copy(p[off:off+chunk], buf[:chunk])
		buf = buf[chunk:]
		addr += chunk
	}
	return nil
}

// Fill sets n bytes at addr to b.
func (m *Memory) Fill(addr uint64, b byte, n int64) error {
	buf := make([]byte, n)
	if b != 0 {
		for i := range buf {
			buf[i] = b
		}
	}
	return m.Write(addr, buf)
}

// Load reads a size-byte unsigned integer at addr. size is 1, 2, 4 or 8.
func (m *Memory) Load(addr uint64, size int) (uint64, error) {
	var buf [8]byte
	if err := m.Read(addr, buf[:size]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}

// Store writes the low size bytes of v at addr.
func (m *Memory) Store(addr uint64, v uint64, size int) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	return m.Write(addr, buf[:size])
}
