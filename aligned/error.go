package aligned

import (
	"fmt"
	"io"
)

// AlignmentError reports a buffer, length or offset that violates the sector
// alignment required by direct device I/O.
type AlignmentError struct {
	Op         string
	Addr       uintptr
	Length     int
	Offset     int64
	SectorSize int
}

func (e *AlignmentError) Error() string {
	return fmt.Sprintf("%s: misaligned I/O (address 0x%x, length %d, offset %d, sector size %d)", e.Op, e.Addr, e.Length, e.Offset, e.SectorSize)
}

// NewAlignmentError creates an AlignmentError
func NewAlignmentError(op string, addr uintptr, length int, offset int64, sectorSize int) *AlignmentError {
	return &AlignmentError{
		Op:         op,
		Addr:       addr,
		Length:     length,
		Offset:     offset,
		SectorSize: sectorSize,
	}
}

func shortWriteError(written, expected int, offset int64) error {
	return fmt.Errorf("short write at offset %d: wrote %d bytes instead of %d: %w", offset, written, expected, io.ErrShortWrite)
}
