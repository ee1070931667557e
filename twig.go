package twig

import (
	"time"

	"github.com/ugparu/twig/hw/regs"
)

// Buffer is a DMA-capable memory block handed out by an Allocator.
// One allocation has exactly one Buffer value; the bus and IOMMU addresses are
// views of that allocation and are never released on their own.
type Buffer interface {
	Data() []byte       // CPU-visible mapping of the block.
	Size() int          // Size of the block in bytes.
	BusAddr() uint32    // Physical bus address of the block.
	IOMMUAddr() uint32  // IOMMU address of the block, zero when the engine sees bus addresses.
	Flush() error       // Synchronizes CPU caches with memory for the whole block.
	Release()           // Returns the block to its allocator. The buffer must not be used afterwards.
}

// DeviceAddr returns the address the engine must be programmed with for buf.
func DeviceAddr(buf Buffer) uint32 {
	if addr := buf.IOMMUAddr(); addr != 0 {
		return addr
	}
	return buf.BusAddr()
}

// Allocator hands out DMA buffers.
type Allocator interface {
	Alloc(size int) (Buffer, error) // Allocates a block of at least size bytes.
}

// Device is the video engine as seen by the decoder core: a register file,
// a DMA allocator and a blocking wait for the end of one decode operation.
// Reservation, clocks and reset belong to the Device implementation.
type Device interface {
	Allocator
	Registers() regs.File                  // Register file starting at the VE base.
	EnableDecoder()                        // Switches the engine into H.264 decoding mode.
	DisableDecoder()                       // Returns the engine to idle mode.
	WaitDecode(timeout time.Duration) error // Blocks until the engine signals completion or timeout elapses.
	Close() error                          // Releases the engine.
}
