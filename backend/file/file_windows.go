//go:build windows

package file

import (
	"os"

	"golang.org/x/sys/windows"
)

// exclusive access on Windows is requested through the share mode at CreateFile time
const exclusiveFlags = 0

func duplicate(f *os.File) (*os.File, error) {
	process := windows.CurrentProcess()
	var dup windows.Handle
	err := windows.DuplicateHandle(process, windows.Handle(f.Fd()), process, &dup, 0, false, windows.DUPLICATE_SAME_ACCESS)
	if err != nil {
		return nil, err
	}
	return os.NewFile(uintptr(dup), f.Name()), nil
}
