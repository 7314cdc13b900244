package imaging

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/pierrec/lz4/v4"
	"github.com/ulikunitz/xz"
)

// Format is the compression of an image stream.
type Format int

const (
	Raw Format = iota
	XZ
	LZ4
)

func (f Format) String() string {
	switch f {
	case XZ:
		return "xz"
	case LZ4:
		return "lz4"
	default:
		return "raw"
	}
}

var (
	xzMagic  = []byte{0xFD, '7', 'z', 'X', 'Z', 0x00}
	lz4Magic = []byte{0x04, 0x22, 0x4D, 0x18}
)

// readBufferSize is the read-ahead in front of the decompressor.
const readBufferSize = 4 * 1024 * 1024

// Decompress sniffs the stream's magic and returns a reader of the
// uncompressed bytes. Streams without a known magic are passed through.
func Decompress(r io.Reader) (io.Reader, Format, error) {
	br := bufio.NewReaderSize(r, readBufferSize)
	head, err := br.Peek(len(xzMagic))
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return nil, Raw, fmt.Errorf("could not read image header: %w", err)
	}
	switch {
	case bytes.HasPrefix(head, xzMagic):
		xr, err := xz.NewReader(br)
		if err != nil {
			return nil, XZ, fmt.Errorf("invalid xz stream: %w", err)
		}
		return xr, XZ, nil
	case bytes.HasPrefix(head, lz4Magic):
		return lz4.NewReader(br), LZ4, nil
	default:
		return br, Raw, nil
	}
}
