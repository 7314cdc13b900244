package device

import (
	"errors"

	"golang.org/x/sys/windows"
)

func translateWriteError(err error) error {
	if err == nil {
		return nil
	}
	var errno windows.Errno
	if errors.As(err, &errno) {
		logger.WithError(err).WithField("code", uint32(errno)).Error("disk write failed")
		return translateWindowsWrite(uint32(errno), err)
	}
	if code, ok := codeFromMessage(err.Error()); ok {
		logger.WithError(err).WithField("code", code).Error("disk write failed, code recognised from message")
		return translateWindowsWrite(code, err)
	}
	return err
}
