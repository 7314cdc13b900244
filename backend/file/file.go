// Package file provides a backend.Storage on top of an *os.File, used for raw block
// devices, image files and handles obtained from the platform device services.
package file

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/golemfactory/golem-imager/backend"
)

const defaultSectorSize = 512

type rawBackend struct {
	storage    *os.File
	readOnly   bool
	sectorSize int
	sizeFunc   func(*os.File) (int64, error)
	onClose    func() error
}

// Option customises a storage created by New.
type Option func(*rawBackend)

// WithSectorSize overrides the detected logical sector size.
func WithSectorSize(size int) Option {
	return func(r *rawBackend) {
		r.sectorSize = size
	}
}

// WithSizeFunc overrides how the storage size is determined, for devices where
// seeking to the end is not possible.
func WithSizeFunc(fn func(*os.File) (int64, error)) Option {
	return func(r *rawBackend) {
		r.sizeFunc = fn
	}
}

// WithCloseHook runs fn after the file is closed.
func WithCloseHook(fn func() error) Option {
	return func(r *rawBackend) {
		r.onClose = fn
	}
}

// New creates a backend.Storage from an open file
func New(f *os.File, readOnly bool, opts ...Option) backend.Storage {
	r := &rawBackend{
		storage:  f,
		readOnly: readOnly,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.sectorSize <= 0 {
		r.sectorSize = detectSectorSize(f)
	}
	return r
}

// OpenFromPath creates a backend.Storage from a path to a device or image file.
// Should pass a path to a block device e.g. /dev/sda or a path to a file /tmp/foo.img
// The provided device/file must exist at the time you call OpenFromPath()
func OpenFromPath(pathName string, readOnly bool, opts ...Option) (backend.Storage, error) {
	if pathName == "" {
		return nil, errors.New("must pass device or file name")
	}

	if _, err := os.Stat(pathName); os.IsNotExist(err) {
		return nil, fmt.Errorf("provided device/file %s does not exist: %w", pathName, fs.ErrNotExist)
	}

	openMode := os.O_RDONLY

	if !readOnly {
		openMode |= os.O_RDWR | exclusiveFlags
	}

	f, err := os.OpenFile(pathName, openMode, 0o600)
	if err != nil {
		return nil, fmt.Errorf("could not open device %s with mode %v: %w", pathName, openMode, err)
	}

	return New(f, readOnly, opts...), nil
}

// CreateFromPath creates a new image file of the given size.
// The provided file must not exist at the time you call CreateFromPath()
func CreateFromPath(pathName string, size int64) (backend.Storage, error) {
	if pathName == "" {
		return nil, errors.New("must pass file name")
	}
	if size <= 0 {
		return nil, errors.New("must pass valid image size to create")
	}
	f, err := os.OpenFile(pathName, os.O_RDWR|os.O_EXCL|os.O_CREATE, 0o666)
	if err != nil {
		return nil, fmt.Errorf("could not create image %s: %w", pathName, err)
	}
	if err := f.Truncate(size); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("could not expand image %s to size %d: %w", pathName, size, err)
	}
	return New(f, false), nil
}

// backend.Storage interface guard
var _ backend.Storage = (*rawBackend)(nil)

// Sys returns the underlying file for ioctl calls.
func (f *rawBackend) Sys() *os.File {
	return f.storage
}

func (f *rawBackend) Name() string {
	return f.storage.Name()
}

func (f *rawBackend) Read(b []byte) (int, error) {
	return f.storage.Read(b)
}

func (f *rawBackend) Write(b []byte) (int, error) {
	if f.readOnly {
		return 0, backend.ErrIncorrectOpenMode
	}
	return f.storage.Write(b)
}

func (f *rawBackend) Seek(offset int64, whence int) (int64, error) {
	return f.storage.Seek(offset, whence)
}

func (f *rawBackend) Close() error {
	err := f.storage.Close()
	if f.onClose != nil {
		if hookErr := f.onClose(); err == nil {
			err = hookErr
		}
	}
	return err
}

func (f *rawBackend) Sync() error {
	if f.readOnly {
		return nil
	}
	return f.storage.Sync()
}

func (f *rawBackend) SectorSize() int {
	return f.sectorSize
}

func (f *rawBackend) Size() (int64, error) {
	if f.sizeFunc != nil {
		return f.sizeFunc(f.storage)
	}
	info, err := f.storage.Stat()
	if err != nil {
		return 0, err
	}
	if info.Mode().IsRegular() {
		return info.Size(), nil
	}
	if size, err := deviceSize(f.storage); err == nil && size > 0 {
		return size, nil
	}
	// block devices report their size when seeking to the end
	cur, err := f.storage.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, err
	}
	end, err := f.storage.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, err
	}
	if _, err := f.storage.Seek(cur, io.SeekStart); err != nil {
		return 0, err
	}
	return end, nil
}

// Clone duplicates the OS handle. Duplicated descriptors share the kernel file
// position, so every user of a clone seeks before doing I/O. Close hooks stay with
// the original.
func (f *rawBackend) Clone() (backend.Storage, error) {
	dup, err := duplicate(f.storage)
	if err != nil {
		return nil, fmt.Errorf("could not duplicate handle for %s: %w", f.storage.Name(), err)
	}
	return &rawBackend{
		storage:    dup,
		readOnly:   f.readOnly,
		sectorSize: f.sectorSize,
		sizeFunc:   f.sizeFunc,
	}, nil
}
