package aligned

import (
	"errors"
	"fmt"
	"io"

	"github.com/golemfactory/golem-imager/backend"
	log "github.com/sirupsen/logrus"
)

// IO adapts a storage that only accepts sector-aligned I/O to arbitrary reads,
// writes and seeks. Writes accumulate in one aligned buffer; every call that
// reaches the underlying storage uses an aligned address, length and offset.
type IO struct {
	inner      backend.Storage
	sectorSize int
	buf        *Buffer
	scratch    *Buffer
	// base is the device offset of the first pending byte, or the current
	// position when nothing is pending
	base    int64
	pending int
}

// New wraps inner. The effective sector size is max(sectorSize, MinSectorSize).
func New(inner backend.Storage, sectorSize int) (*IO, error) {
	return NewWithBufferSize(inner, sectorSize, DefaultBufferSize)
}

// NewWithBufferSize is New with an explicit accumulation buffer size, rounded up
// to the sector size.
func NewWithBufferSize(inner backend.Storage, sectorSize, bufferSize int) (*IO, error) {
	ss := SectorSize(sectorSize)
	buf, err := NewBuffer(RoundUp(bufferSize, ss), ss)
	if err != nil {
		return nil, err
	}
	scratch, err := NewBuffer(ss, ss)
	if err != nil {
		return nil, err
	}
	pos, err := inner.Seek(0, io.SeekCurrent)
	if err != nil {
		pos = 0
	}
	log.WithFields(log.Fields{
		"sector_size": ss,
		"buffer_size": buf.Len(),
		"position":    pos,
	}).Debug("created aligned I/O adapter")
	return &IO{
		inner:      inner,
		sectorSize: ss,
		buf:        buf,
		scratch:    scratch,
		base:       pos,
	}, nil
}

// backend.Storage interface guard
var _ backend.Storage = (*IO)(nil)

// Position is the logical position, including bytes not yet flushed.
func (a *IO) Position() int64 {
	return a.base + int64(a.pending)
}

func (a *IO) Name() string {
	return backend.Name(a.inner)
}

func (a *IO) Write(p []byte) (int, error) {
	total := 0
	for len(p) > 0 {
		if a.pending == 0 && a.base%int64(a.sectorSize) == 0 && len(p) >= a.buf.Len() {
			direct := len(p) - len(p)%a.sectorSize
			if IsAligned(p[:direct], a.sectorSize) {
				if err := a.writeDirect(p[:direct]); err != nil {
					return total, err
				}
				total += direct
				p = p[direct:]
				continue
			}
		}
		lead := int(a.base % int64(a.sectorSize))
		used := lead + a.pending
		room := a.buf.Len() - used
		if room <= 0 {
			if err := a.Flush(); err != nil {
				return total, err
			}
			continue
		}
		n := copy(a.buf.Bytes()[used:used+min(room, len(p))], p)
		a.pending += n
		total += n
		p = p[n:]
		if used+n == a.buf.Len() {
			if err := a.Flush(); err != nil {
				return total, err
			}
		}
	}
	return total, nil
}

func (a *IO) writeDirect(p []byte) error {
	if _, err := a.inner.Seek(a.base, io.SeekStart); err != nil {
		return fmt.Errorf("seek to %d failed: %w", a.base, err)
	}
	n, err := a.inner.Write(p)
	if err != nil {
		return err
	}
	if n != len(p) {
		return shortWriteError(n, len(p), a.base)
	}
	a.base += int64(n)
	return nil
}

// readSector fills the scratch sector from off, zero-filling anything past the
// end of the device.
func (a *IO) readSector(off int64) error {
	if _, err := a.inner.Seek(off, io.SeekStart); err != nil {
		return fmt.Errorf("seek to %d failed: %w", off, err)
	}
	s := a.scratch.Bytes()
	n, err := io.ReadFull(a.inner, s)
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		clear(s[n:])
		return nil
	}
	return err
}

// Flush writes pending data. Partial leading and trailing sectors are read back
// first so the surrounding bytes survive; the position advances by the pending
// data only.
func (a *IO) Flush() error {
	if a.pending == 0 {
		return nil
	}
	ss := a.sectorSize
	lead := int(a.base % int64(ss))
	start := a.base - int64(lead)
	end := lead + a.pending
	total := RoundUp(end, ss)
	data := a.buf.Bytes()

	if lead > 0 {
		if err := a.readSector(start); err != nil {
			return fmt.Errorf("reading leading sector at %d: %w", start, err)
		}
		copy(data[:lead], a.scratch.Bytes()[:lead])
	}
	if total > end {
		tail := start + int64(total-ss)
		if lead == 0 || tail != start {
			if err := a.readSector(tail); err != nil {
				return fmt.Errorf("reading trailing sector at %d: %w", tail, err)
			}
		}
		copy(data[end:total], a.scratch.Bytes()[end-(total-ss):])
	}

	if _, err := a.inner.Seek(start, io.SeekStart); err != nil {
		return fmt.Errorf("seek to %d failed: %w", start, err)
	}
	n, err := a.inner.Write(data[:total])
	if err != nil {
		return err
	}
	if n != total {
		return shortWriteError(n, total, start)
	}
	log.WithFields(log.Fields{
		"offset":  start,
		"length":  total,
		"pending": a.pending,
	}).Trace("flushed aligned buffer")
	a.base += int64(a.pending)
	a.pending = 0
	return nil
}

func (a *IO) Read(p []byte) (int, error) {
	if err := a.Flush(); err != nil {
		return 0, err
	}
	if len(p) == 0 {
		return 0, nil
	}
	ss := a.sectorSize
	lead := int(a.base % int64(ss))
	start := a.base - int64(lead)
	window := min(RoundUp(lead+len(p), ss), a.buf.Len())
	data := a.buf.Bytes()[:window]

	if _, err := a.inner.Seek(start, io.SeekStart); err != nil {
		return 0, fmt.Errorf("seek to %d failed: %w", start, err)
	}
	n, err := io.ReadFull(a.inner, data)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return 0, err
	}
	if n <= lead {
		return 0, io.EOF
	}
	c := copy(p, data[lead:n])
	a.base += int64(c)
	return c, nil
}

func (a *IO) Seek(offset int64, whence int) (int64, error) {
	if err := a.Flush(); err != nil {
		return 0, err
	}
	var pos int64
	switch whence {
	case io.SeekStart:
		pos = offset
	case io.SeekCurrent:
		pos = a.base + offset
	case io.SeekEnd:
		size, err := a.inner.Size()
		if err != nil {
			return 0, err
		}
		if size == 0 {
			return 0, errors.ErrUnsupported
		}
		pos = size + offset
	default:
		return 0, backend.ErrNotSuitable
	}
	if pos < 0 {
		return 0, backend.ErrInvalidInput
	}
	a.base = pos
	return pos, nil
}

// Sync flushes pending data and syncs the underlying storage.
func (a *IO) Sync() error {
	if err := a.Flush(); err != nil {
		return err
	}
	return a.inner.Sync()
}

func (a *IO) Close() error {
	flushErr := a.Flush()
	if err := a.inner.Close(); err != nil {
		return err
	}
	return flushErr
}

func (a *IO) SectorSize() int {
	return a.sectorSize
}

func (a *IO) Size() (int64, error) {
	return a.inner.Size()
}

// Clone flushes, then wraps a clone of the underlying storage at the same position.
func (a *IO) Clone() (backend.Storage, error) {
	if err := a.Flush(); err != nil {
		return nil, err
	}
	inner, err := a.inner.Clone()
	if err != nil {
		return nil, err
	}
	c, err := NewWithBufferSize(inner, a.sectorSize, a.buf.Len())
	if err != nil {
		_ = inner.Close()
		return nil, err
	}
	c.base = a.base
	return c, nil
}
