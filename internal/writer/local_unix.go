//go:build !windows

package writer

import (
	"syscall"

	"github.com/cockroachdb/errors"
)

func diskUsage(path string) (DiskUsage, error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return DiskUsage{}, errors.Wrapf(err, "failed to get filesystem stats for %s", path)
	}
	blockSize := uint64(stat.Bsize)
	return DiskUsage{
		TotalBytes: uint64(stat.Blocks) * blockSize,
		FreeBytes:  uint64(stat.Bavail) * blockSize,
	}, nil
}
