// Package header reads, repairs and relocates GPT headers in place, without
// going through a full partition table rewrite.
package header

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const (
	// Signature opens every GPT header.
	Signature = "EFI PART"
	// SectorSize is the logical sector size LBAs are counted in.
	SectorSize = 512
	// PrimaryLBA holds the primary header.
	PrimaryLBA = 1
	// DefaultEntriesLBA is where the partition entry array normally starts.
	DefaultEntriesLBA = 2
	// EntriesSectors is the size of a standard 128 entry array.
	EntriesSectors = 32

	minHeaderSize = 92
)

// byte ranges of the header fields
const (
	offRevision    = 8
	offHeaderSize  = 12
	offCRC         = 16
	offCurrentLBA  = 24
	offBackupLBA   = 32
	offFirstUsable = 40
	offLastUsable  = 48
	offDiskGUID    = 56
	offEntriesLBA  = 72
	offEntryCount  = 80
	offEntrySize   = 84
	offEntriesCRC  = 88
)

var (
	ErrNoSignature = errors.New("no EFI PART signature, the device does not hold a GPT header here")
	logger         = log.WithField("component", "gpt-header")
)

// Header is a decoded GPT header. Fields are read-only views of the sector;
// changes go through the Set methods, which patch only the bytes of the field
// and reseal the CRC.
type Header struct {
	Revision       uint32
	Size           uint32
	CRC            uint32
	CurrentLBA     uint64
	BackupLBA      uint64
	FirstUsableLBA uint64
	LastUsableLBA  uint64
	DiskGUID       uuid.UUID
	EntriesLBA     uint64
	EntryCount     uint32
	EntrySize      uint32
	EntriesCRC     uint32

	raw [SectorSize]byte
}

// Decode parses the header sector b.
func Decode(b []byte) (*Header, error) {
	if len(b) < SectorSize {
		return nil, fmt.Errorf("header sector has %d bytes instead of %d", len(b), SectorSize)
	}
	if string(b[:8]) != Signature {
		return nil, ErrNoSignature
	}
	h := &Header{}
	copy(h.raw[:], b[:SectorSize])
	h.decode()
	if h.Size < minHeaderSize || h.Size > SectorSize {
		return nil, fmt.Errorf("invalid header size %d, must be between %d and %d", h.Size, minHeaderSize, SectorSize)
	}
	return h, nil
}

func (h *Header) decode() {
	le := binary.LittleEndian
	h.Revision = le.Uint32(h.raw[offRevision:])
	h.Size = le.Uint32(h.raw[offHeaderSize:])
	h.CRC = le.Uint32(h.raw[offCRC:])
	h.CurrentLBA = le.Uint64(h.raw[offCurrentLBA:])
	h.BackupLBA = le.Uint64(h.raw[offBackupLBA:])
	h.FirstUsableLBA = le.Uint64(h.raw[offFirstUsable:])
	h.LastUsableLBA = le.Uint64(h.raw[offLastUsable:])
	h.DiskGUID = guidFromDisk(h.raw[offDiskGUID : offDiskGUID+16])
	h.EntriesLBA = le.Uint64(h.raw[offEntriesLBA:])
	h.EntryCount = le.Uint32(h.raw[offEntryCount:])
	h.EntrySize = le.Uint32(h.raw[offEntrySize:])
	h.EntriesCRC = le.Uint32(h.raw[offEntriesCRC:])
}

// guidFromDisk converts the mixed-endian on-disk GUID layout.
func guidFromDisk(b []byte) uuid.UUID {
	var u uuid.UUID
	copy(u[:], b)
	u[0], u[1], u[2], u[3] = b[3], b[2], b[1], b[0]
	u[4], u[5] = b[5], b[4]
	u[6], u[7] = b[7], b[6]
	return u
}

// ComputeCRC returns the CRC32 of the first Size bytes with the CRC field
// taken as zero.
func (h *Header) ComputeCRC() uint32 {
	b := h.raw
	binary.LittleEndian.PutUint32(b[offCRC:], 0)
	return crc32.ChecksumIEEE(b[:h.Size])
}

// Valid reports whether the stored CRC matches the header contents.
func (h *Header) Valid() bool {
	return h.CRC == h.ComputeCRC()
}

func (h *Header) setUint64(off int, v uint64) {
	binary.LittleEndian.PutUint64(h.raw[off:], v)
	h.seal()
}

// seal zeroes the CRC field, recomputes it and refreshes the decoded fields.
func (h *Header) seal() {
	binary.LittleEndian.PutUint32(h.raw[offCRC:], 0)
	binary.LittleEndian.PutUint32(h.raw[offCRC:], crc32.ChecksumIEEE(h.raw[:h.Size]))
	h.decode()
}

func (h *Header) SetEntriesLBA(lba uint64) {
	h.setUint64(offEntriesLBA, lba)
}

func (h *Header) SetCurrentLBA(lba uint64) {
	h.setUint64(offCurrentLBA, lba)
}

func (h *Header) SetBackupLBA(lba uint64) {
	h.setUint64(offBackupLBA, lba)
}

// EntriesSectorCount is the number of sectors of the partition entry array.
func (h *Header) EntriesSectorCount() uint64 {
	n := (uint64(h.EntryCount)*uint64(h.EntrySize) + SectorSize - 1) / SectorSize
	if n == 0 {
		return EntriesSectors
	}
	return n
}

// Bytes returns a copy of the header sector.
func (h *Header) Bytes() []byte {
	b := make([]byte, SectorSize)
	copy(b, h.raw[:])
	return b
}

// Clone returns an independent copy of h.
func (h *Header) Clone() *Header {
	c := *h
	return &c
}
