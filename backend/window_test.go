package backend_test

import (
	"bytes"
	"errors"
	"io"
	"math"
	"testing"

	"github.com/golemfactory/golem-imager/backend"
)

const (
	diskSize        = 64 * 1024
	partitionOffset = 4096
	partitionSize   = 8192
)

func patternDisk() *backend.Memory {
	b := make([]byte, diskSize)
	for i := range b {
		b[i] = byte(i % 251)
	}
	return backend.NewMemory(b, 512)
}

func TestWindowRead(t *testing.T) {
	t.Run("stays inside partition", func(t *testing.T) {
		disk := patternDisk()
		w := backend.NewWindow(disk, partitionOffset, partitionSize)
		for _, start := range []int64{0, 1, 511, 4096, partitionSize - 1, partitionSize} {
			if _, err := w.Seek(start, io.SeekStart); err != nil {
				t.Fatalf("seek(%d) returned error: %v", start, err)
			}
			buf := make([]byte, partitionSize*2)
			n, err := w.Read(buf)
			if err != nil && err != io.EOF {
				t.Fatalf("read at %d returned error: %v", start, err)
			}
			if int64(n) != partitionSize-start {
				t.Errorf("read at %d returned %d bytes instead of %d", start, n, partitionSize-start)
			}
			expected := disk.Bytes()[partitionOffset+start : partitionOffset+partitionSize]
			if !bytes.Equal(buf[:n], expected) {
				t.Errorf("read at %d returned bytes from outside the partition", start)
			}
		}
	})
	t.Run("eof at boundary", func(t *testing.T) {
		w := backend.NewWindow(patternDisk(), partitionOffset, partitionSize)
		if _, err := w.Seek(0, io.SeekEnd); err != nil {
			t.Fatalf("seek to end returned error: %v", err)
		}
		n, err := w.Read(make([]byte, 10))
		if n != 0 || err != io.EOF {
			t.Errorf("read at end returned %d, %v instead of 0, EOF", n, err)
		}
	})
	t.Run("re-seeks shared handle", func(t *testing.T) {
		disk := patternDisk()
		w := backend.NewWindow(disk, partitionOffset, partitionSize)
		first := make([]byte, 16)
		if _, err := io.ReadFull(w, first); err != nil {
			t.Fatalf("first read failed: %v", err)
		}
		// someone else moves the shared cursor
		if _, err := disk.Seek(0, io.SeekStart); err != nil {
			t.Fatal(err)
		}
		second := make([]byte, 16)
		if _, err := io.ReadFull(w, second); err != nil {
			t.Fatalf("second read failed: %v", err)
		}
		expected := disk.Bytes()[partitionOffset+16 : partitionOffset+32]
		if !bytes.Equal(second, expected) {
			t.Errorf("second read did not continue at partition cursor")
		}
	})
	t.Run("idempotent", func(t *testing.T) {
		w := backend.NewWindow(patternDisk(), partitionOffset, partitionSize)
		a, err := io.ReadAll(w)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Seek(0, io.SeekStart); err != nil {
			t.Fatal(err)
		}
		b, err := io.ReadAll(w)
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(a, b) {
			t.Errorf("two reads of the same partition differ")
		}
	})
}

func TestWindowWrite(t *testing.T) {
	t.Run("exact size", func(t *testing.T) {
		disk := backend.NewMemory(make([]byte, diskSize), 512)
		w := backend.NewWindow(disk, partitionOffset, partitionSize)
		data := bytes.Repeat([]byte{0xaa}, partitionSize)
		n, err := w.Write(data)
		if err != nil {
			t.Fatalf("write returned error: %v", err)
		}
		if n != partitionSize {
			t.Errorf("wrote %d bytes instead of %d", n, partitionSize)
		}
		if disk.Bytes()[partitionOffset-1] != 0 || disk.Bytes()[partitionOffset+partitionSize] != 0 {
			t.Errorf("write leaked outside the partition")
		}
	})
	t.Run("one byte past", func(t *testing.T) {
		disk := backend.NewMemory(make([]byte, diskSize), 512)
		w := backend.NewWindow(disk, partitionOffset, partitionSize)
		data := bytes.Repeat([]byte{0xbb}, partitionSize+1)
		n, err := w.Write(data)
		if !errors.Is(err, io.ErrShortWrite) {
			t.Errorf("error was %v instead of short write", err)
		}
		if n != partitionSize {
			t.Errorf("wrote %d bytes instead of %d", n, partitionSize)
		}
		if disk.Bytes()[partitionOffset+partitionSize] != 0 {
			t.Errorf("write leaked past the partition end")
		}
		n, err = w.Write([]byte{1})
		if n != 0 || !errors.Is(err, io.ErrShortWrite) {
			t.Errorf("write at boundary returned %d, %v instead of 0, short write", n, err)
		}
		var be *backend.BoundaryError
		if !errors.As(err, &be) || be.Position != partitionSize || be.Size != partitionSize {
			t.Errorf("write at boundary returned %v instead of a BoundaryError at the end", err)
		}
	})
	t.Run("unknown size is unbounded", func(t *testing.T) {
		disk := backend.NewMemory(make([]byte, diskSize), 512)
		w := backend.NewWindow(disk, partitionOffset, 0)
		data := bytes.Repeat([]byte{0xcc}, partitionSize*2)
		n, err := w.Write(data)
		if err != nil || n != len(data) {
			t.Errorf("write returned %d, %v instead of %d, nil", n, err, len(data))
		}
	})
}

func TestWindowSeek(t *testing.T) {
	tests := []struct {
		name     string
		size     int64
		start    int64
		offset   int64
		whence   int
		expected int64
		err      error
	}{
		{"start", partitionSize, 0, 100, io.SeekStart, 100, nil},
		{"start at end", partitionSize, 0, partitionSize, io.SeekStart, partitionSize, nil},
		{"start past end", partitionSize, 0, partitionSize + 1, io.SeekStart, 0, backend.ErrInvalidInput},
		{"current forward", partitionSize, 100, 50, io.SeekCurrent, 150, nil},
		{"current backward", partitionSize, 100, -100, io.SeekCurrent, 0, nil},
		{"current underflow", partitionSize, 100, -101, io.SeekCurrent, 0, backend.ErrInvalidInput},
		{"current overflow", 0, 100, math.MaxInt64, io.SeekCurrent, 0, backend.ErrInvalidInput},
		{"end", partitionSize, 0, -10, io.SeekEnd, partitionSize - 10, nil},
		{"end positive", partitionSize, 0, 1, io.SeekEnd, 0, backend.ErrInvalidInput},
		{"end unknown size", 0, 0, 0, io.SeekEnd, 0, errors.ErrUnsupported},
		{"end before start", partitionSize, 0, -partitionSize - 1, io.SeekEnd, 0, backend.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := backend.NewWindow(patternDisk(), partitionOffset, tt.size)
			if _, err := w.Seek(tt.start, io.SeekStart); err != nil {
				t.Fatalf("initial seek failed: %v", err)
			}
			pos, err := w.Seek(tt.offset, tt.whence)
			switch {
			case tt.err == nil && err != nil:
				t.Errorf("unexpected error: %v", err)
			case tt.err != nil && !errors.Is(err, tt.err):
				t.Errorf("error was %v instead of %v", err, tt.err)
			case tt.err == nil && pos != tt.expected:
				t.Errorf("position was %d instead of %d", pos, tt.expected)
			}
			if tt.err != nil {
				var be *backend.BoundaryError
				if !errors.As(err, &be) {
					t.Errorf("error %v is not a BoundaryError", err)
				}
				if w.Position() != tt.start {
					t.Errorf("failed seek moved cursor to %d", w.Position())
				}
			}
		})
	}
}

func TestWindowClone(t *testing.T) {
	disk := patternDisk()
	w := backend.NewWindow(disk, partitionOffset, partitionSize)
	if _, err := w.Seek(100, io.SeekStart); err != nil {
		t.Fatal(err)
	}
	c, err := w.Clone()
	if err != nil {
		t.Fatalf("clone failed: %v", err)
	}
	defer c.Close()
	if _, err := w.Seek(0, io.SeekStart); err != nil {
		t.Fatal(err)
	}
	b := make([]byte, 1)
	if _, err := c.Read(b); err != nil {
		t.Fatal(err)
	}
	if b[0] != disk.Bytes()[partitionOffset+100] {
		t.Errorf("clone did not keep its own cursor")
	}
}
