// Package aligned turns arbitrary reads and writes into sector-aligned device I/O,
// as required by unbuffered (direct) device handles.
package aligned

import (
	"unsafe"
)

const (
	// MinSectorSize is the smallest sector size used for aligned I/O. Devices
	// reporting 512-byte sectors are still driven in 4 KiB units.
	MinSectorSize = 4096
	// DefaultBufferSize is the size of the write accumulation buffer.
	DefaultBufferSize = 4 * 1024 * 1024
)

// SectorSize returns the sector size to use for aligned I/O on a device reporting reported.
func SectorSize(reported int) int {
	if reported < MinSectorSize {
		return MinSectorSize
	}
	return reported
}

// Buffer is a zeroed byte slice whose address and length are multiples of the
// sector size for its whole lifetime.
type Buffer struct {
	data       []byte
	sectorSize int
}

// NewBuffer allocates size bytes aligned to sectorSize. sectorSize must be a power
// of two and size a multiple of it.
func NewBuffer(size, sectorSize int) (*Buffer, error) {
	if sectorSize <= 0 || sectorSize&(sectorSize-1) != 0 {
		return nil, NewAlignmentError("allocate", 0, size, 0, sectorSize)
	}
	if size <= 0 || size%sectorSize != 0 {
		return nil, NewAlignmentError("allocate", 0, size, 0, sectorSize)
	}
	raw := make([]byte, size+sectorSize)
	offset := (sectorSize - int(addressOf(raw)%uintptr(sectorSize))) % sectorSize
	data := raw[offset : offset+size : offset+size]
	if !IsAligned(data, sectorSize) {
		return nil, NewAlignmentError("allocate", addressOf(data), len(data), 0, sectorSize)
	}
	return &Buffer{data: data, sectorSize: sectorSize}, nil
}

// Bytes returns the whole aligned slice.
func (b *Buffer) Bytes() []byte {
	return b.data
}

// Len is the buffer size in bytes.
func (b *Buffer) Len() int {
	return len(b.data)
}

func (b *Buffer) SectorSize() int {
	return b.sectorSize
}

// Zero clears the buffer.
func (b *Buffer) Zero() {
	clear(b.data)
}

// IsAligned reports whether both the address and the length of p are multiples
// of sectorSize.
func IsAligned(p []byte, sectorSize int) bool {
	if len(p)%sectorSize != 0 {
		return false
	}
	if len(p) == 0 {
		return true
	}
	return addressOf(p)%uintptr(sectorSize) == 0
}

// RoundUp rounds n up to the next multiple of sectorSize.
func RoundUp(n, sectorSize int) int {
	return (n + sectorSize - 1) / sectorSize * sectorSize
}

func addressOf(p []byte) uintptr {
	if cap(p) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(unsafe.SliceData(p)))
}
