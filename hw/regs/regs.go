// Package regs models the video engine register window as a typed register file.
package regs

import (
	"errors"
	"fmt"
	"sync/atomic"
	"unsafe"
)

// File is a 32-bit register file addressed by byte offset from the VE base.
type File interface {
	Read32(off uint32) uint32
	Write32(off, v uint32)
}

// WriteSRAM loads words into on-chip SRAM starting at addr.
func WriteSRAM(f File, addr uint32, words ...uint32) {
	f.Write32(H264RAMWritePtr, addr)
	for _, w := range words {
		f.Write32(H264RAMWriteData, w)
	}
}

// ErrOutOfRange is returned when a mapped window is too small or misaligned.
var ErrOutOfRange = errors.New("regs: window out of range")

// MMIO is a File over a memory-mapped register window. Every access is a single
// 32-bit load or store.
type MMIO struct {
	mem []byte
}

// NewMMIO wraps a mapped register window.
func NewMMIO(mem []byte) (*MMIO, error) {
	if len(mem) < RegionSize || uintptr(unsafe.Pointer(unsafe.SliceData(mem)))%4 != 0 {
		return nil, fmt.Errorf("%w: %d bytes", ErrOutOfRange, len(mem))
	}
	return &MMIO{mem: mem}, nil
}

func (m *MMIO) word(off uint32) *uint32 {
	if off&3 != 0 || int(off)+4 > len(m.mem) {
		panic(fmt.Sprintf("regs: access at %#x outside the register window", off))
	}
	return (*uint32)(unsafe.Pointer(&m.mem[off]))
}

// Read32 loads the register at off.
func (m *MMIO) Read32(off uint32) uint32 {
	return atomic.LoadUint32(m.word(off))
}

// Write32 stores v to the register at off.
func (m *MMIO) Write32(off, v uint32) {
	atomic.StoreUint32(m.word(off), v)
}

// Set ORs bits into the register at off.
func Set(f File, off, bits uint32) {
	f.Write32(off, f.Read32(off)|bits)
}

// Clear clears bits of the register at off.
func Clear(f File, off, bits uint32) {
	f.Write32(off, f.Read32(off)&^bits)
}
