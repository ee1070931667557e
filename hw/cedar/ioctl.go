package cedar

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// Request codes of the cedar_dev driver.
const (
	ioctlGetEnvInfo    = 0x101
	ioctlWaitVEDE      = 0x102
	ioctlResetVE       = 0x104
	ioctlEnableVE      = 0x105
	ioctlSetVEFreq     = 0x107
	ioctlEngineReq     = 0x206
	ioctlEngineRel     = 0x207
	ioctlFlushCache    = 0x20b
	ioctlSetRefCount   = 0x20c
	ioctlFlushCacheAll = 0x20d
)

// envInfo is struct cedarv_env_infomation.
type envInfo struct {
	PhymemStart     uint32
	PhymemTotalSize int32
	AddressMacc     uintptr
}

// cacheRange is struct cedarv_cache_range; the driver declares both fields as long.
type cacheRange struct {
	Start uintptr
	End   uintptr
}

// ioctl issues a request with an integer or pointer argument and returns the driver's result.
func ioctl(fd int, req uint, arg uintptr) (int, error) {
	r, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), uintptr(req), arg)
	if errno != 0 {
		return -1, errno
	}
	return int(r), nil
}

func ioctlPtr[T any](fd int, req uint, v *T) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), uintptr(req), uintptr(unsafe.Pointer(v)))
	if errno != 0 {
		return errno
	}
	return nil
}
