package cedar

import (
	"sync"
	"unsafe"

	"github.com/ugparu/twig"
	"github.com/ugparu/twig/utils/buffer"
)

// dmaBuffer is one reserved pool allocation mapped into the process.
type dmaBuffer struct {
	dev    *Device
	region *buffer.MmapRegion
	phys   uint32
	size   int
	once   sync.Once
}

var _ twig.Buffer = (*dmaBuffer)(nil)

func (b *dmaBuffer) Data() []byte      { return b.region.Data()[:b.size] }
func (b *dmaBuffer) Size() int         { return b.size }
func (b *dmaBuffer) BusAddr() uint32   { return b.phys }
func (b *dmaBuffer) IOMMUAddr() uint32 { return 0 }

func (b *dmaBuffer) Flush() error {
	return b.dev.flush(b.region.Data())
}

func (b *dmaBuffer) Release() {
	b.once.Do(func() { b.dev.free(b) })
}

func unsafePointer(b []byte) unsafe.Pointer {
	return unsafe.Pointer(unsafe.SliceData(b))
}
