package regs

import (
	"sync"
)

// Write is one recorded register store.
type Write struct {
	Off uint32
	Val uint32
}

// Hook runs after a write to its register has been applied.
type Hook func(r *Recorder, v uint32)

// Recorder is an in-memory File that records every write. It emulates the SRAM
// port: writes to H264RAMWriteData land at the address last written to
// H264RAMWritePtr, which then advances by one word.
type Recorder struct {
	mu     sync.Mutex
	regs   map[uint32]uint32
	sram   map[uint32]uint32
	ptr    uint32
	writes []Write
	hooks  map[uint32]Hook
}

// NewRecorder returns an empty recorder. Every register reads zero until written.
func NewRecorder() *Recorder {
	return &Recorder{
		regs:  make(map[uint32]uint32),
		sram:  make(map[uint32]uint32),
		hooks: make(map[uint32]Hook),
	}
}

// Read32 returns the last value stored at off.
func (r *Recorder) Read32(off uint32) uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.regs[off]
}

// Write32 records and applies a store, then runs the hook registered for off.
func (r *Recorder) Write32(off, v uint32) {
	r.mu.Lock()
	r.writes = append(r.writes, Write{Off: off, Val: v})
	r.regs[off] = v
	switch off {
	case H264RAMWritePtr:
		r.ptr = v
	case H264RAMWriteData:
		r.sram[r.ptr] = v
		r.ptr += 4
	}
	hook := r.hooks[off]
	r.mu.Unlock()

	if hook != nil {
		hook(r, v)
	}
}

// Set stores v at off without recording it, as the engine itself would.
func (r *Recorder) Set(off, v uint32) {
	r.mu.Lock()
	r.regs[off] = v
	r.mu.Unlock()
}

// OnWrite registers the hook for off, replacing any previous one.
func (r *Recorder) OnWrite(off uint32, h Hook) {
	r.mu.Lock()
	r.hooks[off] = h
	r.mu.Unlock()
}

// Writes returns a copy of every recorded write in order.
func (r *Recorder) Writes() []Write {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Write(nil), r.writes...)
}

// WritesTo returns the values written to off in order.
func (r *Recorder) WritesTo(off uint32) []uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []uint32
	for _, w := range r.writes {
		if w.Off == off {
			out = append(out, w.Val)
		}
	}
	return out
}

// SRAM returns n words of emulated SRAM starting at addr.
func (r *Recorder) SRAM(addr uint32, n int) []uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]uint32, n)
	for i := range out {
		out[i] = r.sram[addr+uint32(i)*4] //nolint:gosec
	}
	return out
}

// ClearWrites drops the write log, keeping register and SRAM contents.
func (r *Recorder) ClearWrites() {
	r.mu.Lock()
	r.writes = nil
	r.mu.Unlock()
}
