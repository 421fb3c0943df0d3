//go:build windows

package writer

import (
	"syscall"
	"unsafe"

	"github.com/cockroachdb/errors"
)

var (
	kernel32                = syscall.NewLazyDLL("kernel32.dll")
	procGetDiskFreeSpaceExW = kernel32.NewProc("GetDiskFreeSpaceExW")
)

func diskUsage(path string) (DiskUsage, error) {
	var freeBytesAvailable, totalNumberOfBytes, totalNumberOfFreeBytes uint64

	pathPtr, err := syscall.UTF16PtrFromString(path)
	if err != nil {
		return DiskUsage{}, errors.Wrap(err, "failed to convert path to UTF16")
	}

	ret, _, err := procGetDiskFreeSpaceExW.Call(
		uintptr(unsafe.Pointer(pathPtr)),
		uintptr(unsafe.Pointer(&freeBytesAvailable)),
		uintptr(unsafe.Pointer(&totalNumberOfBytes)),
		uintptr(unsafe.Pointer(&totalNumberOfFreeBytes)),
	)
	if ret == 0 {
		return DiskUsage{}, errors.Wrapf(err, "GetDiskFreeSpaceExW failed for %s", path)
	}

	return DiskUsage{TotalBytes: totalNumberOfBytes, FreeBytes: freeBytesAvailable}, nil
}
