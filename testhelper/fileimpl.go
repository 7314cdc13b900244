package testhelper

import (
	"errors"
	"io"

	"github.com/golemfactory/golem-imager/backend"
)

type reader func(b []byte, offset int64) (int, error)
type writer func(b []byte, offset int64) (int, error)

// FileImpl implements backend.Storage with stubbed reads and writes, used for
// testing to inject failures or record every call that reaches the device.
type FileImpl struct {
	Reader reader
	Writer writer
	// Sector is the reported sector size, 512 if zero
	Sector int
	// Length is the reported size
	Length int64
	// Synced counts Sync calls
	Synced int
	pos    int64
}

// backend.Storage interface guard
var _ backend.Storage = (*FileImpl)(nil)

func (f *FileImpl) Read(b []byte) (int, error) {
	if f.Reader == nil {
		return 0, io.EOF
	}
	n, err := f.Reader(b, f.pos)
	f.pos += int64(n)
	return n, err
}

func (f *FileImpl) Write(b []byte) (int, error) {
	if f.Writer == nil {
		return 0, errors.New("FileImpl has no writer")
	}
	n, err := f.Writer(b, f.pos)
	f.pos += int64(n)
	return n, err
}

// ReadAt read at a particular offset
func (f *FileImpl) ReadAt(b []byte, offset int64) (int, error) {
	return f.Reader(b, offset)
}

// WriteAt write at a particular offset
func (f *FileImpl) WriteAt(b []byte, offset int64) (int, error) {
	return f.Writer(b, offset)
}

func (f *FileImpl) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		offset += f.pos
	case io.SeekEnd:
		offset += f.Length
	default:
		return 0, backend.ErrNotSuitable
	}
	if offset < 0 {
		return 0, backend.ErrInvalidInput
	}
	f.pos = offset
	return offset, nil
}

func (f *FileImpl) Close() error {
	return nil
}

func (f *FileImpl) Sync() error {
	f.Synced++
	return nil
}

func (f *FileImpl) SectorSize() int {
	if f.Sector == 0 {
		return 512
	}
	return f.Sector
}

func (f *FileImpl) Size() (int64, error) {
	return f.Length, nil
}

// Clone returns a stub sharing the same reader and writer with its own cursor.
func (f *FileImpl) Clone() (backend.Storage, error) {
	return &FileImpl{
		Reader: f.Reader,
		Writer: f.Writer,
		Sector: f.Sector,
		Length: f.Length,
		pos:    f.pos,
	}, nil
}
