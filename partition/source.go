package partition

import (
	"errors"
	"io"
	"io/fs"
	"time"

	"github.com/golemfactory/golem-imager/backend"
)

// source presents a storage as the read-only file go-diskfs parses tables from.
// Reads are positioned, the underlying cursor is moved on every call.
type source struct {
	r    io.ReaderAt
	name string
	size int64
	pos  int64
}

func newSource(r io.ReaderAt, name string, size int64) *source {
	return &source{r: r, name: name, size: size}
}

func (s *source) Stat() (fs.FileInfo, error) {
	return sourceInfo{name: s.name, size: s.size}, nil
}

func (s *source) Read(p []byte) (int, error) {
	n, err := s.r.ReadAt(p, s.pos)
	s.pos += int64(n)
	if n > 0 && errors.Is(err, io.EOF) {
		err = nil
	}
	return n, err
}

func (s *source) ReadAt(p []byte, off int64) (int, error) {
	return s.r.ReadAt(p, off)
}

func (s *source) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		offset += s.pos
	case io.SeekEnd:
		offset += s.size
	default:
		return 0, backend.ErrInvalidInput
	}
	if offset < 0 {
		return 0, backend.ErrInvalidInput
	}
	s.pos = offset
	return offset, nil
}

// Close leaves the storage open, it belongs to the caller.
func (s *source) Close() error {
	return nil
}

// storageReader reads from a storage by seeking before every read.
type storageReader struct {
	s backend.Storage
}

func (r storageReader) ReadAt(p []byte, off int64) (int, error) {
	n, err := backend.ReadFullAt(r.s, p, off)
	if errors.Is(err, io.ErrUnexpectedEOF) {
		err = io.EOF
	}
	return n, err
}

type sourceInfo struct {
	name string
	size int64
}

func (i sourceInfo) Name() string       { return i.name }
func (i sourceInfo) Size() int64        { return i.size }
func (i sourceInfo) Mode() fs.FileMode  { return 0o400 }
func (i sourceInfo) ModTime() time.Time { return time.Time{} }
func (i sourceInfo) IsDir() bool        { return false }
func (i sourceInfo) Sys() any           { return nil }
