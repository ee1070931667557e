// Package buffer provides pooled byte buffers and device memory mappings.
package buffer

import (
	"sync"
)

const (
	defaultBufSize = 4 * 1024        // Initial capacity of pooled buffers.
	bigBufSize     = 256 * 1024      // Access units of a 1080p intra picture fit here.
	maxBufSize     = 4 * 1024 * 1024 // Larger buffers are left to the GC instead of the pool.
)

// PooledBuffer is a byte slice borrowed from a pool.
type PooledBuffer interface {
	Data() []byte
	Len() int
	Cap() int
	// Resize changes the length, keeping the contents that fit.
	Resize(int)
	// Release returns the buffer to its pool. The buffer must not be used afterwards.
	Release()
}

var (
	smallPool = sync.Pool{New: func() any { return &memBuffer{buf: make([]byte, 0, defaultBufSize)} }}
	bigPool   = sync.Pool{New: func() any { return &memBuffer{buf: make([]byte, 0, bigBufSize)} }}
)

func poolFor(capacity int) *sync.Pool {
	if capacity >= bigBufSize {
		return &bigPool
	}
	return &smallPool
}

// Get returns a pooled buffer of length size.
func Get(size int) PooledBuffer {
	b, _ := poolFor(size).Get().(*memBuffer)
	b.Resize(size)
	return b
}

type memBuffer struct {
	buf []byte
}

func (b *memBuffer) Data() []byte { return b.buf }
func (b *memBuffer) Len() int     { return len(b.buf) }
func (b *memBuffer) Cap() int     { return cap(b.buf) }

func (b *memBuffer) Resize(size int) {
	if size <= cap(b.buf) {
		b.buf = b.buf[:size]
		return
	}
	grown := make([]byte, size)
	copy(grown, b.buf)
	b.buf = grown
}

func (b *memBuffer) Release() {
	if cap(b.buf) > maxBufSize {
		return
	}
	b.buf = b.buf[:0]
	poolFor(cap(b.buf)).Put(b)
}
