package cedar

import (
	"fmt"

	"github.com/ugparu/twig"
)

// chunk is one contiguous piece of the reserved memory pool.
type chunk struct {
	phys uint32
	size int
	used bool
}

// chunkList is a best-fit allocator over the reserved pool. Chunks are kept in
// address order and adjacent free chunks are merged on free.
type chunkList struct {
	pageSize int
	chunks   []chunk
}

func newChunkList(phys uint32, size, pageSize int) *chunkList {
	return &chunkList{
		pageSize: pageSize,
		chunks:   []chunk{{phys: phys, size: size}},
	}
}

// alloc reserves size bytes rounded up to a page and returns the chunk address and rounded size.
func (l *chunkList) alloc(size int) (uint32, int, error) {
	if size <= 0 {
		return 0, 0, fmt.Errorf("%w: size %d", twig.ErrAllocationFailed, size)
	}
	size = (size + l.pageSize - 1) &^ (l.pageSize - 1)

	best := -1
	for i, c := range l.chunks {
		if c.used || c.size < size {
			continue
		}
		if best < 0 || c.size < l.chunks[best].size {
			best = i
		}
		if c.size == size {
			break
		}
	}
	if best < 0 {
		return 0, 0, fmt.Errorf("%w: no free chunk of %d bytes", twig.ErrAllocationFailed, size)
	}

	c := &l.chunks[best]
	if left := c.size - size; left > 0 {
		rest := chunk{phys: c.phys + uint32(size), size: left} //nolint:gosec
		c.size = size
		l.chunks = append(l.chunks, chunk{})
		copy(l.chunks[best+2:], l.chunks[best+1:])
		l.chunks[best+1] = rest
		c = &l.chunks[best]
	}
	c.used = true
	return c.phys, size, nil
}

// free returns the chunk at phys to the pool.
func (l *chunkList) free(phys uint32) bool {
	idx := -1
	for i, c := range l.chunks {
		if c.phys == phys && c.used {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false
	}
	l.chunks[idx].used = false

	merged := l.chunks[:0]
	for _, c := range l.chunks {
		if n := len(merged); n > 0 && !c.used && !merged[n-1].used {
			merged[n-1].size += c.size
			continue
		}
		merged = append(merged, c)
	}
	l.chunks = merged
	return true
}

// freeBytes returns the total size of free chunks.
func (l *chunkList) freeBytes() int {
	n := 0
	for _, c := range l.chunks {
		if !c.used {
			n += c.size
		}
	}
	return n
}
