//go:build !linux && !windows

package device

import (
	"context"
	"fmt"
	"runtime"

	"github.com/golemfactory/golem-imager/backend/file"
)

// otherManager opens devices as plain files. Nothing is unmounted or locked.
type otherManager struct{}

// Default returns the Manager for the running platform.
func Default() Manager {
	return &otherManager{}
}

func (m *otherManager) Open(ctx context.Context, path string, opts Options) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if isRegularFile(path) {
		return OpenImage(path, opts.ReadOnly)
	}
	logger.WithField("path", path).Warn("raw device access is not managed on this platform, unmount the disk first")
	s, err := file.OpenFromPath(path, opts.ReadOnly)
	if err != nil {
		return nil, openErrorFromErr(path, err)
	}
	return &fileHandle{Storage: s, path: path}, nil
}

func (m *otherManager) List(ctx context.Context) ([]Disk, error) {
	return nil, fmt.Errorf("listing disks is not supported on %s", runtime.GOOS)
}
