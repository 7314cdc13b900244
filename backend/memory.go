package backend

import (
	"io"
	"io/fs"
	"sync"
	"time"
)

type memoryData struct {
	mu sync.RWMutex
	b  []byte
}

// Memory is a fixed-size storage held in a byte slice. Clones share the bytes
// but keep their own cursor. It satisfies both Storage and the fs.File /
// io.ReaderAt / io.WriterAt surface expected by the go-diskfs drivers.
type Memory struct {
	data       *memoryData
	name       string
	sectorSize int
	pos        int64
	closed     bool
}

// NewMemory wraps b without copying it. A sectorSize of 0 defaults to 512.
func NewMemory(b []byte, sectorSize int) *Memory {
	if sectorSize <= 0 {
		sectorSize = 512
	}
	return &Memory{
		data:       &memoryData{b: b},
		name:       "memory",
		sectorSize: sectorSize,
	}
}

// NewNamedMemory is NewMemory reporting name as its path.
func NewNamedMemory(name string, b []byte, sectorSize int) *Memory {
	m := NewMemory(b, sectorSize)
	m.name = name
	return m
}

// backend.Storage interface guard
var _ Storage = (*Memory)(nil)

// Bytes returns the backing slice.
func (m *Memory) Bytes() []byte {
	return m.data.b
}

func (m *Memory) Name() string {
	return m.name
}

func (m *Memory) Read(p []byte) (int, error) {
	n, err := m.ReadAt(p, m.pos)
	m.pos += int64(n)
	return n, err
}

func (m *Memory) ReadAt(p []byte, off int64) (int, error) {
	if m.closed {
		return 0, fs.ErrClosed
	}
	m.data.mu.RLock()
	defer m.data.mu.RUnlock()
	if off < 0 {
		return 0, ErrInvalidInput
	}
	if off >= int64(len(m.data.b)) {
		return 0, io.EOF
	}
	n := copy(p, m.data.b[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (m *Memory) Write(p []byte) (int, error) {
	n, err := m.WriteAt(p, m.pos)
	m.pos += int64(n)
	return n, err
}

// WriteAt never grows the storage; writes past the end are truncated.
func (m *Memory) WriteAt(p []byte, off int64) (int, error) {
	if m.closed {
		return 0, fs.ErrClosed
	}
	m.data.mu.Lock()
	defer m.data.mu.Unlock()
	if off < 0 {
		return 0, ErrInvalidInput
	}
	if off >= int64(len(m.data.b)) {
		if len(p) == 0 {
			return 0, nil
		}
		return 0, io.ErrShortWrite
	}
	n := copy(m.data.b[off:], p)
	if n < len(p) {
		return n, io.ErrShortWrite
	}
	return n, nil
}

func (m *Memory) Seek(offset int64, whence int) (int64, error) {
	var pos int64
	switch whence {
	case io.SeekStart:
		pos = offset
	case io.SeekCurrent:
		pos = m.pos + offset
	case io.SeekEnd:
		pos = int64(len(m.data.b)) + offset
	default:
		return -1, ErrNotSuitable
	}
	if pos < 0 {
		return -1, ErrInvalidInput
	}
	m.pos = pos
	return pos, nil
}

func (m *Memory) Close() error {
	m.closed = true
	return nil
}

func (m *Memory) Sync() error {
	return nil
}

func (m *Memory) SectorSize() int {
	return m.sectorSize
}

func (m *Memory) Size() (int64, error) {
	return int64(len(m.data.b)), nil
}

func (m *Memory) Clone() (Storage, error) {
	return &Memory{
		data:       m.data,
		name:       m.name,
		sectorSize: m.sectorSize,
	}, nil
}

func (m *Memory) Stat() (fs.FileInfo, error) {
	return memoryInfo{name: m.name, size: int64(len(m.data.b))}, nil
}

type memoryInfo struct {
	name string
	size int64
}

func (i memoryInfo) Name() string       { return i.name }
func (i memoryInfo) Size() int64        { return i.size }
func (i memoryInfo) Mode() fs.FileMode  { return 0o600 }
func (i memoryInfo) ModTime() time.Time { return time.Time{} }
func (i memoryInfo) IsDir() bool        { return false }
func (i memoryInfo) Sys() any           { return nil }
