package device

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/golemfactory/golem-imager/backend/file"
	"golang.org/x/sys/unix"
	"gopkg.in/retry.v1"
)

const exclusiveOpenFlags = unix.O_EXCL | unix.O_SYNC | unix.O_CLOEXEC

type linuxManager struct{}

// Default returns the Manager for the running platform.
func Default() Manager {
	return &linuxManager{}
}

func (m *linuxManager) Open(ctx context.Context, path string, opts Options) (Handle, error) {
	opts = opts.withDefaults()
	log := logger.WithField("path", path)
	if isRegularFile(path) {
		return OpenImage(path, opts.ReadOnly)
	}
	if opts.ReadOnly {
		s, err := file.OpenFromPath(path, true)
		if err != nil {
			return nil, openErrorFromErr(path, err)
		}
		return &fileHandle{Storage: s, path: path}, nil
	}

	log.Info("locking disk")
	f, err := openWithUDisks(ctx, path)
	if err != nil {
		log.WithError(err).Warn("UDisks2 unavailable, opening device directly")
		f, err = openDirect(ctx, path, opts)
		if err != nil {
			return nil, err
		}
	}
	s := file.New(f, false)
	log.WithField("sector_size", s.SectorSize()).Info("disk opened for exclusive access")
	return &fileHandle{Storage: s, path: path}, nil
}

func openWithUDisks(ctx context.Context, path string) (*os.File, error) {
	u, err := connectUDisks()
	if err != nil {
		return nil, err
	}
	defer u.Close()
	obj, err := u.resolve(ctx, path)
	if err != nil {
		return nil, err
	}
	if err := u.unmountAll(ctx, obj); err != nil {
		return nil, fmt.Errorf("failed to unmount partitions: %w", err)
	}
	return u.openDevice(ctx, obj, path, "rw", exclusiveOpenFlags)
}

// openDirect unmounts everything mounted from path using the mount table and
// opens the device exclusively, retrying while it is still busy.
func openDirect(ctx context.Context, path string, opts Options) (*os.File, error) {
	if err := unmountAll(path); err != nil {
		logger.WithError(err).Warn("could not unmount every partition")
	}
	var lastErr error
	for a := retry.StartWithCancel(openStrategy(opts), nil, ctx.Done()); a.Next(); {
		f, err := os.OpenFile(path, os.O_RDWR|exclusiveOpenFlags, 0)
		if err == nil {
			return f, nil
		}
		lastErr = err
		logger.WithError(err).WithField("path", path).Debug("exclusive open failed")
		if !errors.Is(err, unix.EBUSY) {
			break
		}
	}
	if lastErr == nil {
		return nil, ctx.Err()
	}
	var errno unix.Errno
	kind := OpenFailed
	if errors.As(lastErr, &errno) {
		switch errno {
		case unix.EACCES, unix.EPERM:
			kind = AccessDenied
		case unix.EBUSY:
			kind = DeviceBusy
		case unix.ENOENT, unix.ENXIO, unix.ENODEV:
			kind = NotFound
		}
	}
	return nil, NewOpenError(path, kind, 0, lastErr)
}

func unmountAll(device string) error {
	f, err := os.Open("/proc/mounts")
	if err != nil {
		return err
	}
	entries, err := parseMounts(f)
	_ = f.Close()
	if err != nil {
		return err
	}
	// deepest mount points first
	matched := mountsOn(entries, device)
	for i := len(matched) - 1; i >= 0; i-- {
		e := matched[i]
		logger.WithField("mountpoint", e.MountPoint).Info("unmounting filesystem")
		if err := unix.Unmount(e.MountPoint, 0); err != nil {
			return fmt.Errorf("failed to unmount %s from %s: %w", e.Device, e.MountPoint, err)
		}
	}
	return nil
}
