//go:build unix

package file

import (
	"os"

	"golang.org/x/sys/unix"
)

const exclusiveFlags = os.O_EXCL

func duplicate(f *os.File) (*os.File, error) {
	fd, err := unix.Dup(int(f.Fd()))
	if err != nil {
		return nil, err
	}
	unix.CloseOnExec(fd)
	return os.NewFile(uintptr(fd), f.Name()), nil
}
