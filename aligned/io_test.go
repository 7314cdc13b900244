package aligned_test

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/golemfactory/golem-imager/aligned"
	"github.com/golemfactory/golem-imager/testhelper"
)

const sectorSize = 4096

// alignedDisk returns a stub over disk that fails the test on any I/O call whose
// buffer address, length or offset is not sector aligned.
func alignedDisk(t *testing.T, disk []byte, calls *int) *testhelper.FileImpl {
	t.Helper()
	check := func(op string, b []byte, offset int64) error {
		*calls++
		if !aligned.IsAligned(b, sectorSize) || offset%sectorSize != 0 {
			t.Errorf("misaligned %s: length %d offset %d", op, len(b), offset)
			return fmt.Errorf("misaligned %s", op)
		}
		return nil
	}
	return &testhelper.FileImpl{
		Sector: 512,
		Length: int64(len(disk)),
		Reader: func(b []byte, offset int64) (int, error) {
			if err := check("read", b, offset); err != nil {
				return 0, err
			}
			if offset >= int64(len(disk)) {
				return 0, io.EOF
			}
			n := copy(b, disk[offset:])
			if n < len(b) {
				return n, io.EOF
			}
			return n, nil
		},
		Writer: func(b []byte, offset int64) (int, error) {
			if err := check("write", b, offset); err != nil {
				return 0, err
			}
			if offset+int64(len(b)) > int64(len(disk)) {
				return 0, errors.New("write past end of device")
			}
			return copy(disk[offset:], b), nil
		},
	}
}

func pattern(size int) []byte {
	b := make([]byte, size)
	for i := range b {
		b[i] = byte(i % 253)
	}
	return b
}

func TestSectorSize(t *testing.T) {
	tests := []struct {
		reported int
		expected int
	}{
		{0, 4096},
		{512, 4096},
		{4096, 4096},
		{8192, 8192},
	}
	for _, tt := range tests {
		if actual := aligned.SectorSize(tt.reported); actual != tt.expected {
			t.Errorf("SectorSize(%d) = %d instead of %d", tt.reported, actual, tt.expected)
		}
	}
}

func TestNewBuffer(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		for _, size := range []int{4096, 8192, aligned.DefaultBufferSize} {
			b, err := aligned.NewBuffer(size, sectorSize)
			if err != nil {
				t.Fatalf("NewBuffer(%d) returned error: %v", size, err)
			}
			if b.Len() != size {
				t.Errorf("buffer length %d instead of %d", b.Len(), size)
			}
			if !aligned.IsAligned(b.Bytes(), sectorSize) {
				t.Errorf("buffer of %d bytes is not aligned", size)
			}
			for i, c := range b.Bytes() {
				if c != 0 {
					t.Fatalf("byte %d of new buffer is %d", i, c)
				}
			}
		}
	})
	t.Run("invalid", func(t *testing.T) {
		for _, tt := range []struct{ size, sector int }{
			{0, 4096},
			{100, 4096},
			{4096, 3000},
			{4096, 0},
		} {
			_, err := aligned.NewBuffer(tt.size, tt.sector)
			var ae *aligned.AlignmentError
			if !errors.As(err, &ae) {
				t.Errorf("NewBuffer(%d, %d) returned %v instead of AlignmentError", tt.size, tt.sector, err)
			}
		}
	})
}

func TestIOWrite(t *testing.T) {
	tests := []struct {
		name   string
		offset int64
		length int
	}{
		{"aligned sector", 4096, 4096},
		{"inside one sector", 5000, 100},
		{"across sectors", 4000, 300},
		{"start of device", 0, 10},
		{"spanning many sectors", 1234, 3*sectorSize + 77},
		{"last bytes of device", 64*1024 - 10, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			disk := pattern(64 * 1024)
			expected := bytes.Clone(disk)
			data := bytes.Repeat([]byte{0xee}, tt.length)
			copy(expected[tt.offset:], data)

			calls := 0
			a, err := aligned.NewWithBufferSize(alignedDisk(t, disk, &calls), 512, 16*1024)
			if err != nil {
				t.Fatal(err)
			}
			if _, err := a.Seek(tt.offset, io.SeekStart); err != nil {
				t.Fatal(err)
			}
			n, err := a.Write(data)
			if err != nil || n != len(data) {
				t.Fatalf("write returned %d, %v", n, err)
			}
			if err := a.Flush(); err != nil {
				t.Fatalf("flush failed: %v", err)
			}
			if pos := a.Position(); pos != tt.offset+int64(tt.length) {
				t.Errorf("position %d instead of %d", pos, tt.offset+int64(tt.length))
			}
			if !bytes.Equal(disk, expected) {
				t.Errorf("device content differs from expected after write")
			}
			if calls == 0 {
				t.Errorf("no I/O reached the device")
			}
		})
	}
}

func TestIOWriteSequential(t *testing.T) {
	disk := make([]byte, 256*1024)
	calls := 0
	a, err := aligned.NewWithBufferSize(alignedDisk(t, disk, &calls), 512, 16*1024)
	if err != nil {
		t.Fatal(err)
	}
	src := pattern(100*1024 + 13)
	for chunk := src; len(chunk) > 0; {
		n := min(len(chunk), 999)
		if _, err := a.Write(chunk[:n]); err != nil {
			t.Fatal(err)
		}
		chunk = chunk[n:]
	}
	if err := a.Sync(); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(disk[:len(src)], src) {
		t.Errorf("sequential writes were not reproduced on the device")
	}
	for i, c := range disk[len(src):] {
		if c != 0 {
			t.Fatalf("padding overwrote byte %d after the data", i)
		}
	}
}

func TestIOWriteDirect(t *testing.T) {
	disk := make([]byte, 64*1024)
	calls := 0
	a, err := aligned.NewWithBufferSize(alignedDisk(t, disk, &calls), 512, 8192)
	if err != nil {
		t.Fatal(err)
	}
	buf, err := aligned.NewBuffer(32*1024, sectorSize)
	if err != nil {
		t.Fatal(err)
	}
	copy(buf.Bytes(), pattern(buf.Len()))
	if _, err := a.Write(buf.Bytes()); err != nil {
		t.Fatal(err)
	}
	if calls != 1 {
		t.Errorf("aligned large write used %d device calls instead of 1", calls)
	}
	if !bytes.Equal(disk[:buf.Len()], buf.Bytes()) {
		t.Errorf("direct write content differs")
	}
}

func TestIORead(t *testing.T) {
	disk := pattern(64 * 1024)
	calls := 0
	a, err := aligned.New(alignedDisk(t, disk, &calls), 512)
	if err != nil {
		t.Fatal(err)
	}
	t.Run("sub range", func(t *testing.T) {
		if _, err := a.Seek(4100, io.SeekStart); err != nil {
			t.Fatal(err)
		}
		b := make([]byte, 33)
		if _, err := io.ReadFull(a, b); err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(b, disk[4100:4133]) {
			t.Errorf("read returned wrong bytes")
		}
	})
	t.Run("reads pending writes", func(t *testing.T) {
		if _, err := a.Seek(10, io.SeekStart); err != nil {
			t.Fatal(err)
		}
		if _, err := a.Write([]byte("golem")); err != nil {
			t.Fatal(err)
		}
		if _, err := a.Seek(10, io.SeekStart); err != nil {
			t.Fatal(err)
		}
		b := make([]byte, 5)
		if _, err := io.ReadFull(a, b); err != nil {
			t.Fatal(err)
		}
		if string(b) != "golem" {
			t.Errorf("read %q instead of the pending write", b)
		}
	})
	t.Run("end of device", func(t *testing.T) {
		if _, err := a.Seek(-4, io.SeekEnd); err != nil {
			t.Fatal(err)
		}
		b, err := io.ReadAll(a)
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(b, disk[len(disk)-4:]) {
			t.Errorf("tail read returned %v", b)
		}
	})
}

func TestIOSeek(t *testing.T) {
	a, err := aligned.New(&testhelper.FileImpl{Length: 8192}, 512)
	if err != nil {
		t.Fatal(err)
	}
	if pos, err := a.Seek(-1, io.SeekEnd); err != nil || pos != 8191 {
		t.Errorf("seek from end returned %d, %v", pos, err)
	}
	if pos, err := a.Seek(-8191, io.SeekCurrent); err != nil || pos != 0 {
		t.Errorf("seek back returned %d, %v", pos, err)
	}
	if _, err := a.Seek(-1, io.SeekCurrent); err == nil {
		t.Errorf("negative position was accepted")
	}
	empty, err := aligned.New(&testhelper.FileImpl{}, 512)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := empty.Seek(0, io.SeekEnd); !errors.Is(err, errors.ErrUnsupported) {
		t.Errorf("seek to end of unknown size returned %v", err)
	}
}

func TestIOShortWrite(t *testing.T) {
	stub := &testhelper.FileImpl{
		Length: 1 << 20,
		Reader: func(b []byte, _ int64) (int, error) { return len(b), nil },
		Writer: func(b []byte, _ int64) (int, error) { return len(b) / 2, nil },
	}
	a, err := aligned.New(stub, 512)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := a.Write([]byte{1, 2, 3}); err != nil {
		t.Fatal(err)
	}
	if err := a.Flush(); !errors.Is(err, io.ErrShortWrite) {
		t.Errorf("flush returned %v instead of short write", err)
	}
}

func TestReader(t *testing.T) {
	disk := pattern(40 * 1024)
	calls := 0
	r, err := aligned.NewReader(alignedDisk(t, disk, &calls), 512, 8192)
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		offset int64
		length int
	}{
		{512, 92},
		{1024, 128 * 4},
		{8000, 500},
		{0, 40 * 1024},
	}
	for _, tt := range tests {
		b := make([]byte, tt.length)
		n, err := r.ReadAt(b, tt.offset)
		if err != nil || n != tt.length {
			t.Fatalf("ReadAt(%d, %d) returned %d, %v", tt.offset, tt.length, n, err)
		}
		if !bytes.Equal(b, disk[tt.offset:tt.offset+int64(tt.length)]) {
			t.Errorf("ReadAt(%d, %d) returned wrong bytes", tt.offset, tt.length)
		}
	}
	b := make([]byte, 16)
	if _, err := r.ReadAt(b, 0); err != nil {
		t.Fatal(err)
	}
	before := calls
	if _, err := r.ReadAt(b, 40*1024-100); err != nil {
		t.Fatal(err)
	}
	if _, err := r.ReadAt(b, 40*1024-50); err != nil {
		t.Fatal(err)
	}
	if calls != before+1 {
		t.Errorf("reads within one window used %d device calls", calls-before)
	}
	if _, err := r.ReadAt(b, 40*1024); !errors.Is(err, io.EOF) {
		t.Errorf("read at device end returned %v", err)
	}
}
