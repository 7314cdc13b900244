package device

import (
	"context"
	"os"

	"github.com/golemfactory/golem-imager/backend"
	"github.com/golemfactory/golem-imager/backend/file"
	"golang.org/x/sys/windows"
	"gopkg.in/retry.v1"
)

type windowsManager struct{}

// Default returns the Manager for the running platform.
func Default() Manager {
	return &windowsManager{}
}

type openAttempt struct {
	desc   string
	access uint32
	share  uint32
	flags  uint32
}

// openLadder lists the access modes tried in order, from exclusive read/write
// down to read-only.
func openLadder(physical, readOnly bool) []openAttempt {
	flags := fileFlagsNone
	if physical {
		flags = directIOFlags
	}
	ladder := []openAttempt{
		{"exclusive read/write", windowsGenericReadWrite, 0, flags},
		{"shared read/write", windowsGenericReadWrite, windowsShareReadWrite, flags},
		{"shared read-only", windows.GENERIC_READ, windowsShareReadWrite, flags},
		{"unbuffered write-through read/write", windowsGenericReadWrite, windowsShareReadWrite, directIOFlags},
	}
	if readOnly {
		return ladder[2:3]
	}
	return ladder
}

func (m *windowsManager) Open(ctx context.Context, path string, opts Options) (Handle, error) {
	opts = opts.withDefaults()
	if isRegularFile(path) {
		return OpenImage(path, opts.ReadOnly)
	}
	wp, err := NormalizeWindowsPath(path)
	if err != nil {
		return nil, NewOpenError(path, InvalidPath, errInvalidName, err)
	}
	log := logger.WithField("path", wp.Device)
	log.WithField("edit_mode", opts.EditMode).Info("locking disk")
	log.Warn("direct disk access typically requires Administrator privileges")

	if !opts.ReadOnly {
		switch {
		case wp.Letter != "":
			if err := dismountVolume(wp.Device); err != nil {
				log.WithError(err).Warn("failed to dismount volume, continuing anyway")
			}
		case wp.Physical:
			letters, err := volumeLetters(wp.Number)
			if err != nil {
				log.WithError(err).Warn("could not list volumes of the drive")
			}
			for _, l := range letters {
				if err := dismountVolume(devicePrefix + l + ":"); err != nil {
					log.WithError(err).WithField("volume", l).Warn("failed to dismount volume")
				}
			}
		}
	}

	reported := sectorSizeOf(wp.Device)
	log.WithField("sector_size", reported).Debug("detected disk sector size")

	var (
		h       windows.Handle
		chosen  openAttempt
		lastErr error
	)
	opened := false
ladder:
	for _, attempt := range openLadder(wp.Physical, opts.ReadOnly) {
		for a := retry.StartWithCancel(openStrategy(opts), nil, ctx.Done()); a.Next(); {
			h, lastErr = createFile(wp.Device, attempt.access, attempt.share, attempt.flags)
			if lastErr == nil {
				chosen = attempt
				opened = true
				break ladder
			}
			code := errorCode(lastErr)
			log.WithError(lastErr).WithField("mode", attempt.desc).WithField("code", code).Warn("open attempt failed")
			if code == errFileNotFound || code == errInvalidName {
				break
			}
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
	if !opened {
		code := errorCode(lastErr)
		log.WithError(lastErr).WithField("code", code).Error("all open attempts failed")
		return nil, NewOpenError(wp.Device, openErrorKind(code), code, lastErr)
	}
	log.WithField("mode", chosen.desc).Info("opened disk device")

	readOnly := chosen.access&windows.GENERIC_WRITE == 0
	f := os.NewFile(uintptr(h), wp.Device)
	s := file.New(f, readOnly, file.WithSectorSize(windowsIOSectorSize), file.WithSizeFunc(diskLength))
	wh := &windowsHandle{
		Storage:  s,
		handle:   h,
		path:     path,
		device:   wp.Device,
		aligned:  chosen.flags&windows.FILE_FLAG_NO_BUFFERING != 0,
		reported: reported,
	}
	if !readOnly {
		if err := ioctl(h, fsctlLockVolume); err != nil {
			log.WithError(err).Debug("initial volume lock failed, will retry before writing")
		}
	}
	return wh, nil
}

type windowsHandle struct {
	backend.Storage
	handle   windows.Handle
	path     string
	device   string
	aligned  bool
	reported int
}

func (h *windowsHandle) Path() string {
	return h.path
}

func (h *windowsHandle) Name() string {
	return h.device
}

func (h *windowsHandle) RequiresAlignment() bool {
	return h.aligned
}

func (h *windowsHandle) TranslateWriteError(err error) error {
	return translateWriteError(err)
}

func (h *windowsHandle) PreWriteChecks() error {
	log := logger.WithField("path", h.device)
	log.Info("enabling extended DASD I/O access")
	if err := ioctl(h.handle, fsctlAllowExtendedDasdIO); err != nil {
		log.WithError(err).Debug("FSCTL_ALLOW_EXTENDED_DASD_IO failed")
	}
	if err := lockWithRetry(h.handle, lockStrategy); err != nil {
		code := errorCode(err)
		switch code {
		case errSharingViolation:
			return NewIOError("lock", int(code), "the disk is in use by another process and cannot be locked", err,
				"Close any programs that might be using this disk",
				"If it's a system disk, you cannot write to it while Windows is running")
		case errAccessDenied:
			return NewIOError("lock", int(code), "access denied when trying to lock the disk", err,
				"Make sure you're running with Administrator privileges",
				"The disk may be write-protected or reserved by the system")
		default:
			log.WithError(err).WithField("code", code).Warn("could not lock volume, continuing with caution")
		}
	}
	if err := ioctl(h.handle, fsctlDismountVolume); err != nil {
		log.WithError(err).Info("could not dismount directly from physical device, this is normal for physical drives")
	}
	if err := probeWrite(h); err != nil {
		return err
	}
	log.Info("disk is ready for writing")
	return nil
}

func (h *windowsHandle) Unlock() error {
	var err error
	for a := retry.Start(unlockStrategy, nil); a.Next(); {
		if err = ioctl(h.handle, fsctlUnlockVolume); err == nil {
			logger.WithField("path", h.device).Info("volume unlocked")
			return nil
		}
	}
	code := errorCode(err)
	return NewIOError("unlock", int(code), "failed to unlock disk volume", err,
		"Other applications may not see the disk until it is reconnected")
}
