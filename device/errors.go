package device

import (
	"fmt"
	"strings"
)

// OpenErrorKind classifies why a device could not be opened.
type OpenErrorKind int

const (
	OpenFailed OpenErrorKind = iota
	AccessDenied
	DeviceBusy
	NotFound
	InvalidPath
)

func (k OpenErrorKind) String() string {
	switch k {
	case AccessDenied:
		return "access denied"
	case DeviceBusy:
		return "device busy"
	case NotFound:
		return "not found"
	case InvalidPath:
		return "invalid path"
	default:
		return "open failed"
	}
}

// OpenError is returned when every way of opening a device failed.
type OpenError struct {
	Path string
	Kind OpenErrorKind
	// Code is the OS error code of the last attempt, 0 if unknown
	Code uint32
	Err  error
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("%s: %s", e.Guidance(), e.Err)
}

func (e *OpenError) Unwrap() error {
	return e.Err
}

// Guidance is a human-readable description of the failure and what to do about it.
func (e *OpenError) Guidance() string {
	switch e.Kind {
	case AccessDenied:
		return fmt.Sprintf("access denied for device %s; run the program elevated (Administrator or root)", e.Path)
	case DeviceBusy:
		return fmt.Sprintf("the device %s is in use by another process; close any applications that may be using this disk", e.Path)
	case NotFound:
		return fmt.Sprintf("the device %s was not found; verify the disk exists and is connected properly", e.Path)
	case InvalidPath:
		return fmt.Sprintf("invalid device path syntax for %s", e.Path)
	default:
		if e.Code != 0 {
			return fmt.Sprintf("failed to open device %s, error code %d (%s); this might be a permissions issue or the device is in use", e.Path, e.Code, windowsErrorMessage(e.Code))
		}
		return fmt.Sprintf("failed to open device %s", e.Path)
	}
}

// NewOpenError creates an OpenError
func NewOpenError(path string, kind OpenErrorKind, code uint32, err error) *OpenError {
	return &OpenError{Path: path, Kind: kind, Code: code, Err: err}
}

// IOError is an OS read, write or flush failure with remediation hints.
type IOError struct {
	Op      string
	Code    int
	Message string
	Remedy  []string
	Err     error
}

func (e *IOError) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	for _, r := range e.Remedy {
		b.WriteString(". ")
		b.WriteString(r)
	}
	return b.String()
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// NewIOError creates an IOError
func NewIOError(op string, code int, message string, err error, remedy ...string) *IOError {
	return &IOError{Op: op, Code: code, Message: message, Remedy: remedy, Err: err}
}

// Windows error codes handled explicitly.
const (
	errFileNotFound       = 2
	errAccessDenied       = 5
	errNotReady           = 21
	errSharingViolation   = 32
	errInvalidParameter   = 87
	errDiskFull           = 112
	errInvalidName        = 123
	errDeviceNotConnected = 433
	errIODevice           = 1117
	errUserCancelled      = 1223
	errMediaRemoved       = 1224
)

func windowsErrorMessage(code uint32) string {
	switch code {
	case 0:
		return "Operation completed successfully"
	case 1:
		return "Incorrect function"
	case errFileNotFound:
		return "The system cannot find the file specified"
	case 3:
		return "The system cannot find the path specified"
	case 4:
		return "The system cannot open the file"
	case errAccessDenied:
		return "Access is denied"
	case 6:
		return "The handle is invalid"
	case 8:
		return "Not enough memory resources"
	case 13:
		return "The data is invalid"
	case 14:
		return "Not enough storage is available"
	case 19:
		return "Write fault"
	case errNotReady:
		return "The device is not ready"
	case 22:
		return "Data error (cyclic redundancy check)"
	case 23:
		return "The data area passed to a system call is too small"
	case errSharingViolation:
		return "The process cannot access the file because it is in use"
	case errInvalidParameter:
		return "The parameter is incorrect"
	case errDiskFull:
		return "There is not enough space on the disk"
	case errInvalidName:
		return "The filename, directory name, or volume label syntax is incorrect"
	case errDeviceNotConnected:
		return "A device which does not exist was specified"
	case errIODevice:
		return "The request could not be performed because of an I/O device error"
	case errUserCancelled:
		return "The operation was canceled by the user"
	case errMediaRemoved:
		return "The media was removed"
	case 1392:
		return "The file or directory is corrupted and unreadable"
	default:
		return "Unknown error code"
	}
}

func openErrorKind(code uint32) OpenErrorKind {
	switch code {
	case errAccessDenied:
		return AccessDenied
	case errSharingViolation:
		return DeviceBusy
	case errFileNotFound, 3:
		return NotFound
	case errInvalidName:
		return InvalidPath
	default:
		return OpenFailed
	}
}

// localizedCodes maps OS error strings of non-English Windows installations
// to the error code they render.
var localizedCodes = []struct {
	fragment string
	code     uint32
}{
	{"odmowa dostępu", errAccessDenied},
	{"jest używany", errSharingViolation},
	{"niepoprawny", errInvalidParameter},
	{"access is denied", errAccessDenied},
	{"being used by another process", errSharingViolation},
	{"parameter is incorrect", errInvalidParameter},
}

// codeFromMessage recognises an error code from its rendered message, for
// errors that reached us without a numeric code.
func codeFromMessage(msg string) (uint32, bool) {
	lower := strings.ToLower(msg)
	for _, l := range localizedCodes {
		if strings.Contains(lower, l.fragment) {
			return l.code, true
		}
	}
	return 0, false
}

// translateWindowsWrite builds the write error for a Windows error code.
func translateWindowsWrite(code uint32, err error) error {
	msg := windowsErrorMessage(code)
	c := int(code)
	switch code {
	case errAccessDenied:
		return NewIOError("write", c, fmt.Sprintf("access denied when writing to disk, error code 5 (%s)", msg), err,
			"Make sure you're running with Administrator privileges",
			"The disk may be locked by another process or write-protected")
	case errIODevice:
		return NewIOError("write", c, fmt.Sprintf("I/O device error, error code 1117 (%s)", msg), err,
			"The disk may be write-protected, damaged, or have hardware issues",
			"Try using a different USB port or disk")
	case errDiskFull:
		return NewIOError("write", c, fmt.Sprintf("there is not enough space on the disk, error code 112 (%s)", msg), err,
			"Check that the disk is large enough for the image",
			"Try using a larger capacity disk")
	case errMediaRemoved, errDeviceNotConnected:
		return NewIOError("write", c, fmt.Sprintf("the disk was removed during the write operation, error code %d (%s)", code, msg), err,
			"Ensure the disk remains connected throughout the process")
	case errNotReady:
		return NewIOError("write", c, fmt.Sprintf("the device is not ready, error code 21 (%s)", msg), err,
			"Reconnect the disk and try again")
	case errInvalidParameter:
		return NewIOError("write", c, fmt.Sprintf("the parameter is incorrect, error code 87 (%s)", msg), err,
			"This may be due to mismatched buffer alignment requirements",
			"Try restarting the application and using a different USB port")
	default:
		return NewIOError("write", c, fmt.Sprintf("failed to write image to disk, error code %d (%s)", code, msg), err,
			"Try restarting your computer and running the application as Administrator")
	}
}
