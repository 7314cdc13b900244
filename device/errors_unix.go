//go:build unix

package device

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

func translateWriteError(err error) error {
	if err == nil {
		return nil
	}
	var errno unix.Errno
	if !errors.As(err, &errno) {
		return err
	}
	code := int(errno)
	logger.WithError(err).WithField("errno", code).Error("disk write failed")
	switch errno {
	case unix.EACCES, unix.EPERM:
		return NewIOError("write", code, "permission denied when writing to disk", err,
			"Make sure you're running with appropriate permissions (sudo, root, etc.)",
			"The disk may be locked by another process or write-protected")
	case unix.EIO:
		return NewIOError("write", code, "I/O error when writing to disk", err,
			"The disk may be damaged or have hardware issues",
			"Try using a different USB port or disk")
	case unix.ENOSPC:
		return NewIOError("write", code, "no space left on disk", err,
			"Check that the disk is large enough for the image",
			"Try using a larger capacity disk")
	case unix.ENODEV, unix.ENXIO:
		return NewIOError("write", code, "device not available", err,
			"The disk was disconnected during the write operation",
			"Ensure the disk remains connected throughout the process")
	default:
		return NewIOError("write", code, fmt.Sprintf("failed to write image to disk (errno %d)", code), err,
			"Try checking dmesg or system logs for more information")
	}
}
