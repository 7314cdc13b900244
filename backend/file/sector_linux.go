//go:build linux

package file

import (
	"os"

	"golang.org/x/sys/unix"
)

const (
	blksszGet    = 0x1268
	blkgetsize64 = 0x80081272
)

// detectSectorSize asks the kernel for the logical sector size of block devices
func detectSectorSize(f *os.File) int {
	info, err := f.Stat()
	if err != nil || info.Mode()&os.ModeDevice == 0 {
		return defaultSectorSize
	}
	size, err := unix.IoctlGetInt(int(f.Fd()), blksszGet)
	if err != nil || size <= 0 {
		return defaultSectorSize
	}
	return size
}

func deviceSize(f *os.File) (int64, error) {
	size, err := unix.IoctlGetInt(int(f.Fd()), blkgetsize64)
	if err != nil {
		return 0, err
	}
	return int64(size), nil
}
