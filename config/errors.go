package config

import "fmt"

// FormatError is returned when the config partition cannot be mounted as FAT.
// NeedsFormat is set when the partition holds no FAT boot sector at all, which
// formatting fixes; otherwise the filesystem is present but corrupt.
type FormatError struct {
	NeedsFormat bool
	Err         error
}

func (e *FormatError) Error() string {
	if e.NeedsFormat {
		return fmt.Sprintf("config partition is not formatted: %v", e.Err)
	}
	return fmt.Sprintf("config partition filesystem is corrupt: %v", e.Err)
}

func (e *FormatError) Unwrap() error {
	return e.Err
}

func NewFormatError(needsFormat bool, err error) *FormatError {
	return &FormatError{NeedsFormat: needsFormat, Err: err}
}
