package backend

import (
	"errors"
	"fmt"
	"io"
)

// BoundaryError is returned when a partition-relative operation would leave the partition.
type BoundaryError struct {
	Op       string
	Position int64
	Size     int64
	reason   string
	kind     error
}

func (e *BoundaryError) Error() string {
	return fmt.Sprintf("partition %s at position %d (size %d): %s", e.Op, e.Position, e.Size, e.reason)
}

// Unwrap exposes ErrInvalidInput, errors.ErrUnsupported or io.ErrShortWrite.
func (e *BoundaryError) Unwrap() error {
	return e.kind
}

// NewBoundaryError creates an ErrInvalidInput boundary error.
func NewBoundaryError(op string, position, size int64, reason string) *BoundaryError {
	return &BoundaryError{
		Op:       op,
		Position: position,
		Size:     size,
		reason:   reason,
		kind:     ErrInvalidInput,
	}
}

// NewUnsupportedError creates a boundary error for operations that need a known partition size.
func NewUnsupportedError(op string, position int64, reason string) *BoundaryError {
	return &BoundaryError{
		Op:       op,
		Position: position,
		reason:   reason,
		kind:     errors.ErrUnsupported,
	}
}

// NewShortWriteError reports a write at the end of a partition, where no byte
// fits.
func NewShortWriteError(position, size int64) *BoundaryError {
	return &BoundaryError{
		Op:       "write",
		Position: position,
		Size:     size,
		reason:   "no space left in partition",
		kind:     io.ErrShortWrite,
	}
}
