// Package backend defines the storage abstraction every disk operation runs against,
// together with the partition window and in-memory implementations.
package backend

import (
	"errors"
	"fmt"
	"io"
)

var (
	ErrIncorrectOpenMode = errors.New("disk file or device not open for write")
	ErrNotSuitable       = errors.New("backing file is not suitable")
	ErrInvalidInput      = errors.New("invalid input")
)

// File is the minimal positioned I/O surface of a device or image.
type File interface {
	io.Reader
	io.Writer
	io.Seeker
	io.Closer
}

// Storage is an open device or image. A handle has a single cursor; code that
// needs its own position works on a Clone and seeks before every I/O, because OS
// level duplicates may still share one file position.
type Storage interface {
	File
	// Sync flushes written data to stable storage
	Sync() error
	// SectorSize is the logical sector size I/O on this storage is expected to honour
	SectorSize() int
	// Size in bytes; 0 when it cannot be determined
	Size() (int64, error)
	// Clone returns a duplicate handle on the same storage with the same access rights
	Clone() (Storage, error)
}

// Named is implemented by storages that know the path they were opened from.
type Named interface {
	Name() string
}

// Name returns the path of s, or a placeholder for anonymous storage.
func Name(s Storage) string {
	if n, ok := s.(Named); ok {
		return n.Name()
	}
	return "<storage>"
}

// ReadFullAt reads len(p) bytes from s at off, moving its cursor.
func ReadFullAt(s Storage, p []byte, off int64) (int, error) {
	if _, err := s.Seek(off, io.SeekStart); err != nil {
		return 0, err
	}
	return io.ReadFull(s, p)
}

// WriteFullAt writes p to s at off, failing on short writes.
func WriteFullAt(s Storage, p []byte, off int64) error {
	if _, err := s.Seek(off, io.SeekStart); err != nil {
		return err
	}
	n, err := s.Write(p)
	if err != nil {
		return err
	}
	if n != len(p) {
		return fmt.Errorf("wrote %d bytes instead of %d at offset %d: %w", n, len(p), off, io.ErrShortWrite)
	}
	return nil
}
