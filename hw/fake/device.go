package fake

import (
	"fmt"
	"sync"
	"time"

	"github.com/ugparu/twig"
	"github.com/ugparu/twig/hw/regs"
)

// baseAddr is the bus address of the first allocation.
const baseAddr = 0x4000_0000

// Buffer is an in-memory DMA block.
type Buffer struct {
	dev      *Device
	data     []byte
	addr     uint32
	Flushes  int
	Released bool
}

var _ twig.Buffer = (*Buffer)(nil)

func (b *Buffer) Data() []byte      { return b.data }
func (b *Buffer) Size() int         { return len(b.data) }
func (b *Buffer) BusAddr() uint32   { return b.addr }
func (b *Buffer) IOMMUAddr() uint32 { return 0 }

func (b *Buffer) Flush() error {
	b.Flushes++
	return nil
}

func (b *Buffer) Release() {
	if b.Released {
		panic(fmt.Sprintf("fake: buffer %#x released twice", b.addr))
	}
	b.Released = true
	b.dev.release(b)
}

// Device is a twig.Device over a Recorder and an Engine.
type Device struct {
	*Engine

	mu       sync.Mutex
	next     uint32
	live     map[uint32]*Buffer
	allocs   int
	limit    int
	enabled  bool
	closed   bool
	waitErrs int
}

var _ twig.Device = (*Device)(nil)

// NewDevice returns a device with an unlimited allocator.
func NewDevice() *Device {
	d := &Device{next: baseAddr, live: make(map[uint32]*Buffer), limit: -1}
	d.Engine = NewEngine(regs.NewRecorder(), d)
	return d
}

// LimitAllocs makes every allocation after the first n fail.
func (d *Device) LimitAllocs(n int) {
	d.mu.Lock()
	d.limit = n
	d.mu.Unlock()
}

// Allocs returns the number of successful allocations.
func (d *Device) Allocs() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.allocs
}

// Live returns the number of allocated, unreleased buffers.
func (d *Device) Live() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.live)
}

// Enabled reports whether the engine is in decoding mode.
func (d *Device) Enabled() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.enabled
}

// Closed reports whether Close was called.
func (d *Device) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// Alloc hands out a zeroed block at the next 4 KiB aligned bus address.
func (d *Device) Alloc(size int) (twig.Buffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if size <= 0 || (d.limit >= 0 && d.allocs >= d.limit) {
		return nil, fmt.Errorf("%w: %d bytes", twig.ErrAllocationFailed, size)
	}
	b := &Buffer{dev: d, data: make([]byte, size), addr: d.next}
	d.next += (uint32(size) + 0xfff) &^ 0xfff //nolint:gosec,mnd
	d.live[b.addr] = b
	d.allocs++
	return b, nil
}

func (d *Device) release(b *Buffer) {
	d.mu.Lock()
	delete(d.live, b.addr)
	d.mu.Unlock()
}

// Bytes returns n bytes at device address addr, or nil outside every live buffer.
func (d *Device) Bytes(addr uint32, n int) []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	for base, b := range d.live {
		if addr >= base && addr < base+uint32(len(b.data)) { //nolint:gosec
			off := int(addr - base)
			return b.data[off:min(off+n, len(b.data))]
		}
	}
	return nil
}

func (d *Device) Registers() regs.File { return d.Regs }

func (d *Device) EnableDecoder() {
	d.mu.Lock()
	d.enabled = true
	d.mu.Unlock()
}

func (d *Device) DisableDecoder() {
	d.mu.Lock()
	d.enabled = false
	d.mu.Unlock()
}

// WaitDecode succeeds once the engine has raised a completion status.
func (d *Device) WaitDecode(timeout time.Duration) error {
	if !d.Done() {
		return fmt.Errorf("%w: no interrupt within %v", twig.ErrHardwareTimeout, timeout)
	}
	return nil
}

func (d *Device) Close() error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	return nil
}
