package device

import (
	"errors"
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/windows"
	"gopkg.in/retry.v1"
)

const (
	fsctlLockVolume                  = 0x00090018
	fsctlUnlockVolume                = 0x0009001C
	fsctlDismountVolume              = 0x00090020
	fsctlAllowExtendedDasdIO         = 0x00090083
	ioctlDiskGetDriveGeometry        = 0x00070000
	ioctlDiskGetLengthInfo           = 0x0007405C
	ioctlVolumeOffline               = 0x0056C00C
	defaultWindowsSectorSize         = 512
	windowsIOSectorSize              = 4096
	directIOFlags                    = windows.FILE_FLAG_NO_BUFFERING | windows.FILE_FLAG_WRITE_THROUGH | windows.FILE_FLAG_SEQUENTIAL_SCAN
	windowsShareReadWrite            = windows.FILE_SHARE_READ | windows.FILE_SHARE_WRITE
	windowsGenericReadWrite          = windows.GENERIC_READ | windows.GENERIC_WRITE
	fileFlagsNone             uint32 = 0
)

type diskGeometry struct {
	Cylinders         int64
	MediaType         uint32
	TracksPerCylinder uint32
	SectorsPerTrack   uint32
	BytesPerSector    uint32
}

func ioctl(h windows.Handle, code uint32) error {
	var returned uint32
	return windows.DeviceIoControl(h, code, nil, 0, nil, 0, &returned, nil)
}

func errorCode(err error) uint32 {
	var errno windows.Errno
	if errors.As(err, &errno) {
		return uint32(errno)
	}
	if code, ok := codeFromMessage(err.Error()); ok {
		return code
	}
	return 0
}

func createFile(path string, access, share, flags uint32) (windows.Handle, error) {
	p, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return windows.InvalidHandle, fmt.Errorf("invalid device path %s: %w", path, err)
	}
	return windows.CreateFile(p, access, share, nil, windows.OPEN_EXISTING, flags, 0)
}

// sectorSizeOf queries the drive geometry, 512 when it cannot be determined.
func sectorSizeOf(device string) int {
	h, err := createFile(device, windows.GENERIC_READ, windowsShareReadWrite, fileFlagsNone)
	if err != nil {
		logger.WithError(err).Debug("could not open disk for sector size query, using default")
		return defaultWindowsSectorSize
	}
	defer windows.CloseHandle(h)
	var g diskGeometry
	var returned uint32
	err = windows.DeviceIoControl(h, ioctlDiskGetDriveGeometry, nil, 0,
		(*byte)(unsafe.Pointer(&g)), uint32(unsafe.Sizeof(g)), &returned, nil)
	if err != nil || returned == 0 || g.BytesPerSector == 0 {
		logger.WithError(err).Debug("drive geometry query failed, using default sector size")
		return defaultWindowsSectorSize
	}
	return int(g.BytesPerSector)
}

// diskLength returns the size of a raw disk; seeking to the end does not work
// on physical drives.
func diskLength(f *os.File) (int64, error) {
	var length int64
	var returned uint32
	err := windows.DeviceIoControl(windows.Handle(f.Fd()), ioctlDiskGetLengthInfo, nil, 0,
		(*byte)(unsafe.Pointer(&length)), uint32(unsafe.Sizeof(length)), &returned, nil)
	if err != nil {
		return 0, fmt.Errorf("IOCTL_DISK_GET_LENGTH_INFO failed: %w", err)
	}
	return length, nil
}

// lockWithRetry takes the volume lock, returning the last error if every
// attempt failed.
func lockWithRetry(h windows.Handle, strategy retry.Strategy) error {
	var err error
	for a := retry.Start(strategy, nil); a.Next(); {
		if err = ioctl(h, fsctlLockVolume); err == nil {
			return nil
		}
		logger.WithError(err).WithField("attempt", a.Count()).Debug("volume lock attempt failed")
	}
	return err
}

// dismountVolume locks, dismounts and takes offline the volume at device, e.g.
// \\.\E:, so that the physical drive can be opened for writing.
func dismountVolume(device string) error {
	log := logger.WithField("volume", device)
	log.Info("dismounting volume")
	h, err := createFile(device, windowsGenericReadWrite, 0, windows.FILE_FLAG_NO_BUFFERING|windows.FILE_FLAG_WRITE_THROUGH)
	if err != nil {
		log.WithError(err).Info("could not open volume exclusively, trying with shared access")
		h, err = createFile(device, windowsGenericReadWrite, windowsShareReadWrite, windows.FILE_FLAG_NO_BUFFERING|windows.FILE_FLAG_WRITE_THROUGH)
		if err != nil {
			code := errorCode(err)
			return fmt.Errorf("failed to open volume %s, error code %d (%s): %w", device, code, windowsErrorMessage(code), err)
		}
	}
	defer windows.CloseHandle(h)
	_ = ioctl(h, fsctlAllowExtendedDasdIO)

	if err := lockWithRetry(h, volumeLockStrategy); err != nil {
		code := errorCode(err)
		return fmt.Errorf("failed to lock volume %s after multiple attempts, error code %d (%s): %w", device, code, windowsErrorMessage(code), err)
	}
	for a := retry.Start(dismountStrategy, nil); a.Next(); {
		if err = ioctl(h, fsctlDismountVolume); err == nil {
			break
		}
		log.WithError(err).WithField("attempt", a.Count()).Debug("dismount attempt failed")
	}
	if err != nil {
		return fmt.Errorf("failed to dismount volume %s: %w", device, err)
	}
	if err := ioctl(h, ioctlVolumeOffline); err != nil {
		log.WithError(err).Debug("could not take volume offline")
	}
	log.Info("volume dismounted")
	return nil
}
