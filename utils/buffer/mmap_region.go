package buffer

import (
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

// ErrUnaligned is returned for mapping offsets that are not page aligned.
var ErrUnaligned = errors.New("buffer: mmap offset not page aligned")

// MmapRegion is a shared read-write mapping of a device file range.
type MmapRegion struct {
	data   []byte
	offset int64
	once   sync.Once
}

// NewMmapRegion maps size bytes of fd starting at offset.
func NewMmapRegion(fd int, offset int64, size int) (*MmapRegion, error) {
	if offset%int64(unix.Getpagesize()) != 0 {
		return nil, fmt.Errorf("%w: %#x", ErrUnaligned, offset)
	}
	if size <= 0 {
		return nil, fmt.Errorf("buffer: mmap size %d", size)
	}
	data, err := unix.Mmap(fd, offset, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("buffer: mmap %d bytes at %#x: %w", size, offset, err)
	}
	return &MmapRegion{data: data, offset: offset}, nil
}

// Data returns the mapping, nil after Release.
func (r *MmapRegion) Data() []byte {
	return r.data
}

// Offset returns the file offset of the mapping.
func (r *MmapRegion) Offset() int64 {
	return r.offset
}

// Release unmaps the region. Later calls do nothing.
func (r *MmapRegion) Release() {
	r.once.Do(func() {
		_ = unix.Munmap(r.data)
		r.data = nil
	})
}
