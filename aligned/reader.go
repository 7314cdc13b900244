package aligned

import (
	"errors"
	"fmt"
	"io"

	"github.com/golemfactory/golem-imager/backend"
)

// Reader serves arbitrary reads from a storage that only accepts aligned reads.
// It keeps the last aligned window it read, so sequential small reads (headers,
// partition entries) cost one device read per window.
type Reader struct {
	inner      backend.Storage
	sectorSize int
	buf        *Buffer
	// device range currently held in buf
	winStart int64
	winLen   int
	pos      int64
}

// NewReader creates a Reader with a window of windowSize bytes, rounded up to the
// sector size.
func NewReader(inner backend.Storage, sectorSize, windowSize int) (*Reader, error) {
	ss := SectorSize(sectorSize)
	buf, err := NewBuffer(RoundUp(max(windowSize, ss), ss), ss)
	if err != nil {
		return nil, err
	}
	return &Reader{inner: inner, sectorSize: ss, buf: buf, winStart: -1}, nil
}

// fill loads the aligned window containing off.
func (r *Reader) fill(off int64) error {
	start := off - off%int64(r.sectorSize)
	if _, err := r.inner.Seek(start, io.SeekStart); err != nil {
		return fmt.Errorf("seek to %d failed: %w", start, err)
	}
	n, err := io.ReadFull(r.inner, r.buf.Bytes())
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		r.winStart = -1
		return err
	}
	r.winStart = start
	r.winLen = n
	return nil
}

func (r *Reader) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, backend.ErrInvalidInput
	}
	read := 0
	for read < len(p) {
		cur := off + int64(read)
		if r.winStart < 0 || cur < r.winStart || cur >= r.winStart+int64(r.winLen) {
			if err := r.fill(cur); err != nil {
				return read, err
			}
			if cur >= r.winStart+int64(r.winLen) {
				return read, io.EOF
			}
		}
		read += copy(p[read:], r.buf.Bytes()[cur-r.winStart:r.winLen])
	}
	return read, nil
}

func (r *Reader) Read(p []byte) (int, error) {
	n, err := r.ReadAt(p, r.pos)
	r.pos += int64(n)
	if n > 0 && errors.Is(err, io.EOF) {
		err = nil
	}
	return n, err
}

func (r *Reader) Seek(offset int64, whence int) (int64, error) {
	var pos int64
	switch whence {
	case io.SeekStart:
		pos = offset
	case io.SeekCurrent:
		pos = r.pos + offset
	case io.SeekEnd:
		size, err := r.inner.Size()
		if err != nil {
			return 0, err
		}
		pos = size + offset
	default:
		return 0, backend.ErrNotSuitable
	}
	if pos < 0 {
		return 0, backend.ErrInvalidInput
	}
	r.pos = pos
	return pos, nil
}

// Close drops the cached window; the underlying storage stays open.
func (r *Reader) Close() error {
	r.winStart = -1
	return nil
}

func (r *Reader) SectorSize() int {
	return r.sectorSize
}
