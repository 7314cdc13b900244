package device

import (
	"errors"
	"io/fs"
	"os"

	"github.com/golemfactory/golem-imager/backend"
	"github.com/golemfactory/golem-imager/backend/file"
)

// fileHandle is a Handle over an ordinary descriptor: disk image files on every
// platform, and block devices opened directly on Linux.
type fileHandle struct {
	backend.Storage
	path string
}

// OpenImage opens a regular disk image file as a Handle.
func OpenImage(path string, readOnly bool) (Handle, error) {
	s, err := file.OpenFromPath(path, readOnly)
	if err != nil {
		return nil, openErrorFromErr(path, err)
	}
	logger.WithField("path", path).Debug("opened disk image")
	return &fileHandle{Storage: s, path: path}, nil
}

func (h *fileHandle) Path() string {
	return h.path
}

func (h *fileHandle) Name() string {
	return h.path
}

func (h *fileHandle) PreWriteChecks() error {
	return probeWrite(h)
}

func (h *fileHandle) Unlock() error {
	return nil
}

func (h *fileHandle) RequiresAlignment() bool {
	return false
}

func (h *fileHandle) TranslateWriteError(err error) error {
	return translateWriteError(err)
}

// probeWrite issues a zero-byte write on a clone of s to find out early whether
// the device accepts writes.
func probeWrite(s backend.Storage) error {
	c, err := s.Clone()
	if err != nil {
		logger.WithError(err).Warn("could not clone handle for write test, continuing with caution")
		return nil
	}
	defer c.Close()
	if _, err := c.Write(nil); err != nil {
		if errors.Is(err, fs.ErrPermission) || errors.Is(err, backend.ErrIncorrectOpenMode) {
			return NewIOError("write test", 0, "the disk is write-protected and cannot be written to", err,
				"Make sure you're running with appropriate permissions (sudo, root, Administrator)",
				"Check if the disk has a hardware write-protect switch")
		}
		logger.WithError(err).Warn("write test failed, continuing with caution")
	}
	return nil
}

func openErrorFromErr(path string, err error) error {
	switch {
	case errors.Is(err, fs.ErrPermission):
		return NewOpenError(path, AccessDenied, 0, err)
	case errors.Is(err, fs.ErrNotExist):
		return NewOpenError(path, NotFound, 0, err)
	}
	return NewOpenError(path, OpenFailed, 0, err)
}

func isRegularFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
