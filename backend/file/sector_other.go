//go:build !linux

package file

import (
	"errors"
	"os"
)

func detectSectorSize(_ *os.File) int {
	return defaultSectorSize
}

func deviceSize(_ *os.File) (int64, error) {
	return 0, errors.New("device size ioctl not supported on this platform")
}
