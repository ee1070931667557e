// Package cedar opens the Allwinner video engine through the cedar_dev driver.
package cedar

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/ugparu/twig"
	"github.com/ugparu/twig/hw/regs"
	"github.com/ugparu/twig/utils/buffer"
	"github.com/ugparu/twig/utils/logger"
)

const (
	// DevicePath is the cedar_dev character device.
	DevicePath = "/dev/cedar_dev"

	veBase     = 0x01c0e000
	pageOffset = 0xc0000000 // Kernel linear map base the driver reports pool addresses in.

	defaultFreqMHz = 180
)

// ErrClosed is returned by operations on a closed device.
var ErrClosed = errors.New("cedar: device closed")

// Options configures Open.
type Options struct {
	Path    string // Defaults to DevicePath.
	FreqMHz int    // Engine clock, defaults to 180.
}

// Device is the video engine reserved through cedar_dev. It implements twig.Device.
type Device struct {
	fd     int
	window *buffer.MmapRegion
	regs   *regs.MMIO

	// modeMu serializes read-modify-write of the VE mode select word.
	modeMu sync.Mutex

	allocMu sync.Mutex
	pool    *chunkList
	live    int

	closed bool
}

var _ twig.Device = (*Device)(nil)

// Open reserves the engine, maps its registers and sets up the reserved memory pool.
func Open(opts Options) (dev *Device, err error) {
	if opts.Path == "" {
		opts.Path = DevicePath
	}
	if opts.FreqMHz == 0 {
		opts.FreqMHz = defaultFreqMHz
	}

	fd, err := unix.Open(opts.Path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("cedar: open %s: %w", opts.Path, err)
	}
	d := &Device{fd: fd}
	defer func() {
		if err != nil {
			_ = unix.Close(fd)
		}
	}()

	_, _ = ioctl(fd, ioctlSetRefCount, 0)
	if _, err = ioctl(fd, ioctlEngineReq, 0); err != nil {
		return nil, fmt.Errorf("cedar: engine request: %w", err)
	}
	defer func() {
		if err != nil {
			_, _ = ioctl(fd, ioctlEngineRel, 0)
		}
	}()
	_, _ = ioctl(fd, ioctlEnableVE, 0)
	_, _ = ioctl(fd, ioctlSetVEFreq, uintptr(opts.FreqMHz))
	_, _ = ioctl(fd, ioctlResetVE, 0)

	if d.window, err = buffer.NewMmapRegion(fd, veBase, regs.RegionSize); err != nil {
		return nil, fmt.Errorf("cedar: map registers: %w", err)
	}
	if d.regs, err = regs.NewMMIO(d.window.Data()); err != nil {
		d.window.Release()
		return nil, err
	}

	var info envInfo
	if err = ioctlPtr(fd, ioctlGetEnvInfo, &info); err != nil {
		d.window.Release()
		return nil, fmt.Errorf("cedar: env info: %w", err)
	}
	if info.PhymemTotalSize <= 0 {
		d.window.Release()
		return nil, fmt.Errorf("%w: driver reports no reserved memory", twig.ErrAllocationFailed)
	}
	d.pool = newChunkList(info.PhymemStart-pageOffset, int(info.PhymemTotalSize), unix.Getpagesize())

	d.prepare()
	logger.Infof(d, "Engine version %#x, reserved pool %d KiB at %#x",
		d.regs.Read32(regs.VEVersion)>>16, info.PhymemTotalSize>>10, info.PhymemStart-pageOffset) //nolint:mnd
	return d, nil
}

func (d *Device) String() string {
	return "CEDAR"
}

// prepare sets DDR mode and reconstruction write mode and idles the engine.
func (d *Device) prepare() {
	d.modeMu.Lock()
	defer d.modeMu.Unlock()
	v := d.regs.Read32(regs.VECtrl)
	v = v&^(regs.VEModeMask|regs.VEDDRMode) | regs.VEDDRMode | regs.VERecWrMode | regs.VEModeIdle
	d.regs.Write32(regs.VECtrl, v)
}

func (d *Device) setMode(mode uint32) {
	d.modeMu.Lock()
	defer d.modeMu.Unlock()
	v := d.regs.Read32(regs.VECtrl)
	d.regs.Write32(regs.VECtrl, v&^regs.VEModeMask|mode)
}

// Registers returns the mapped register window.
func (d *Device) Registers() regs.File {
	return d.regs
}

// EnableDecoder switches the engine into H.264 mode.
func (d *Device) EnableDecoder() {
	d.setMode(regs.VEModeH264)
}

// DisableDecoder idles the engine.
func (d *Device) DisableDecoder() {
	d.setMode(regs.VEModeIdle)
}

// WaitDecode blocks in the driver until the engine interrupt fires. The driver
// waits in whole seconds.
func (d *Device) WaitDecode(timeout time.Duration) error {
	secs := max(int((timeout+time.Second-1)/time.Second), 1)
	ret, err := ioctl(d.fd, ioctlWaitVEDE, uintptr(secs))
	if err != nil {
		return fmt.Errorf("cedar: wait: %w", err)
	}
	if ret == 0 {
		return fmt.Errorf("%w: no engine interrupt within %v", twig.ErrHardwareTimeout, timeout)
	}
	return nil
}

// Alloc carves a buffer out of the reserved pool and maps it.
func (d *Device) Alloc(size int) (twig.Buffer, error) {
	d.allocMu.Lock()
	defer d.allocMu.Unlock()
	if d.closed {
		return nil, ErrClosed
	}

	phys, rounded, err := d.pool.alloc(size)
	if err != nil {
		return nil, err
	}
	region, err := buffer.NewMmapRegion(d.fd, int64(phys)+pageOffset, rounded)
	if err != nil {
		d.pool.free(phys)
		return nil, fmt.Errorf("%w: map %d bytes at %#x: %v", twig.ErrAllocationFailed, rounded, phys, err)
	}
	d.live++
	return &dmaBuffer{dev: d, region: region, phys: phys, size: size}, nil
}

func (d *Device) free(b *dmaBuffer) {
	d.allocMu.Lock()
	defer d.allocMu.Unlock()
	b.region.Release()
	if d.pool.free(b.phys) {
		d.live--
	}
}

// flush writes back and invalidates the CPU cache lines covering data.
func (d *Device) flush(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	start := uintptr(unsafePointer(data))
	r := cacheRange{Start: start, End: start + uintptr(len(data))}
	if err := ioctlPtr(d.fd, ioctlFlushCache, &r); err != nil {
		return fmt.Errorf("cedar: flush cache: %w", err)
	}
	return nil
}

// FlushAll flushes the whole CPU data cache.
func (d *Device) FlushAll() error {
	_, err := ioctl(d.fd, ioctlFlushCacheAll, 0)
	return err
}

// Close idles and releases the engine. Buffers still allocated stay mapped until released.
func (d *Device) Close() error {
	d.allocMu.Lock()
	if d.closed {
		d.allocMu.Unlock()
		return ErrClosed
	}
	d.closed = true
	live := d.live
	d.allocMu.Unlock()

	if live > 0 {
		logger.Warningf(d, "Closing with %d buffers still allocated", live)
	}
	d.DisableDecoder()
	_, relErr := ioctl(d.fd, ioctlEngineRel, 0)
	d.window.Release()
	return errors.Join(relErr, unix.Close(d.fd))
}
