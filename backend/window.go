package backend

import (
	"io"
	"math"
)

// Window exposes a byte range of an underlying storage as if it were a storage
// of its own. Offsets passed to Read, Write and Seek are partition-relative.
//
// The underlying cursor is shared with any other user of the same handle, so every
// call re-positions it to offset+cursor before doing I/O.
type Window struct {
	underlying Storage
	offset     int64
	size       int64
	cursor     int64
	owned      bool
}

// NewWindow creates a window of size bytes starting at offset. A size of 0 means
// the partition size is unknown and no bounds are enforced.
func NewWindow(u Storage, offset, size int64) *Window {
	return &Window{
		underlying: u,
		offset:     offset,
		size:       size,
	}
}

// backend.Storage interface guard
var _ Storage = (*Window)(nil)

func (w *Window) checkPosition(op string) error {
	if w.cursor < 0 || (w.size > 0 && w.cursor > w.size) {
		return NewBoundaryError(op, w.cursor, w.size, "cursor outside partition")
	}
	return nil
}

// Offset of the window inside the underlying storage.
func (w *Window) Offset() int64 {
	return w.offset
}

// Position is the current partition-relative cursor.
func (w *Window) Position() int64 {
	return w.cursor
}

func (w *Window) remaining(n int) int {
	if w.size == 0 {
		return n
	}
	left := w.size - w.cursor
	if int64(n) > left {
		return int(left)
	}
	return n
}

func (w *Window) Read(p []byte) (int, error) {
	if err := w.checkPosition("read"); err != nil {
		return 0, err
	}
	if len(p) == 0 {
		return 0, nil
	}
	if w.size > 0 && w.cursor == w.size {
		return 0, io.EOF
	}
	n := w.remaining(len(p))
	if _, err := w.underlying.Seek(w.offset+w.cursor, io.SeekStart); err != nil {
		return 0, err
	}
	read, err := w.underlying.Read(p[:n])
	w.cursor += int64(read)
	return read, err
}

// Write never grows the partition: writes are truncated to the remaining space
// and report io.ErrShortWrite when truncated. A write at the end of the
// partition returns a BoundaryError wrapping io.ErrShortWrite.
func (w *Window) Write(p []byte) (int, error) {
	if err := w.checkPosition("write"); err != nil {
		return 0, err
	}
	if len(p) == 0 {
		return 0, nil
	}
	n := w.remaining(len(p))
	if n == 0 {
		return 0, NewShortWriteError(w.cursor, w.size)
	}
	if _, err := w.underlying.Seek(w.offset+w.cursor, io.SeekStart); err != nil {
		return 0, err
	}
	written, err := w.underlying.Write(p[:n])
	w.cursor += int64(written)
	if err != nil {
		return written, err
	}
	if written < len(p) {
		return written, io.ErrShortWrite
	}
	return written, nil
}

func (w *Window) Seek(offset int64, whence int) (int64, error) {
	if err := w.checkPosition("seek"); err != nil {
		return 0, err
	}
	var pos int64
	switch whence {
	case io.SeekStart:
		pos = offset
	case io.SeekCurrent:
		if (offset > 0 && w.cursor > math.MaxInt64-offset) || w.cursor+offset < 0 {
			return 0, NewBoundaryError("seek", w.cursor, w.size, "relative seek overflows partition")
		}
		pos = w.cursor + offset
	case io.SeekEnd:
		if w.size == 0 {
			return 0, NewUnsupportedError("seek", w.cursor, "seek from end requires a known partition size")
		}
		if offset > 0 {
			return 0, NewBoundaryError("seek", w.cursor, w.size, "seek past end of partition")
		}
		pos = w.size + offset
	default:
		return 0, ErrNotSuitable
	}
	if pos < 0 {
		return 0, NewBoundaryError("seek", pos, w.size, "negative position")
	}
	if w.size > 0 && pos > w.size {
		return 0, NewBoundaryError("seek", pos, w.size, "position beyond end of partition")
	}
	w.cursor = pos
	return pos, nil
}

// Close only closes the underlying storage when the window owns it, i.e. it was
// produced by Clone.
func (w *Window) Close() error {
	if w.owned {
		return w.underlying.Close()
	}
	return nil
}

func (w *Window) Sync() error {
	return w.underlying.Sync()
}

func (w *Window) SectorSize() int {
	return w.underlying.SectorSize()
}

func (w *Window) Size() (int64, error) {
	return w.size, nil
}

// Clone duplicates the underlying handle; the new window starts at the same cursor.
func (w *Window) Clone() (Storage, error) {
	u, err := w.underlying.Clone()
	if err != nil {
		return nil, err
	}
	return &Window{
		underlying: u,
		offset:     w.offset,
		size:       w.size,
		cursor:     w.cursor,
		owned:      true,
	}, nil
}
