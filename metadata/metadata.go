// Package metadata computes the size and hash of the uncompressed contents of
// a downloaded image, without writing the decompressed data anywhere, and
// caches the result next to other images.
package metadata

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/golemfactory/golem-imager/cancel"
	"github.com/golemfactory/golem-imager/imaging"
	log "github.com/sirupsen/logrus"
)

const (
	// DefaultBufferSize matches the image writer's chunk size.
	DefaultBufferSize = imaging.DefaultChunkSize
	// DefaultReportEvery uncompressed bytes a progress event is sent
	DefaultReportEvery = 100 * 1024 * 1024
	// OS images usually compress 3-5x
	estimateRatio = 4
	// maxEstimate caps the fraction until the stream ends
	maxEstimate = 0.95
)

var logger = log.WithField("component", "metadata")

// ImageMetadata describes the uncompressed contents of a compressed image.
type ImageMetadata struct {
	CompressedHash   string `json:"compressed_hash"`
	UncompressedHash string `json:"uncompressed_hash"`
	UncompressedSize uint64 `json:"uncompressed_size"`
	CreatedAt        string `json:"created_at"`
}

// Options for Calculate.
type Options struct {
	// CompressedHash is copied into the result as is
	CompressedHash string
	// BufferSize of each read from the decompressor, DefaultBufferSize if zero
	BufferSize int
	// ReportEvery uncompressed bytes progress is reported, DefaultReportEvery
	// if zero
	ReportEvery uint64
	// Now is used for CreatedAt, time.Now if nil
	Now func() time.Time
}

func (o Options) withDefaults() Options {
	if o.BufferSize <= 0 {
		o.BufferSize = DefaultBufferSize
	}
	if o.ReportEvery == 0 {
		o.ReportEvery = DefaultReportEvery
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Calculate decompresses the image at path and returns its metadata. progress,
// if not nil, receives PhaseMetadata events while the stream is read.
func Calculate(path string, token *cancel.Token, opts Options, progress func(Progress)) (ImageMetadata, error) {
	opts = opts.withDefaults()
	if progress == nil {
		progress = func(Progress) {}
	}
	l := logger.WithField("image", path)
	f, err := os.Open(path)
	if err != nil {
		return ImageMetadata{}, fmt.Errorf("could not open image %s: %w", path, err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return ImageMetadata{}, fmt.Errorf("could not stat image %s: %w", path, err)
	}
	compressed := uint64(info.Size())
	estimated := compressed * estimateRatio
	l.WithField("compressed_size", compressed).Info("calculating image metadata")

	dec, format, err := imaging.Decompress(f)
	if err != nil {
		return ImageMetadata{}, err
	}
	if format == imaging.Raw {
		estimated = compressed
	}

	hasher := sha256.New()
	buf := make([]byte, opts.BufferSize)
	var total, reported uint64
	progress(Progress{Phase: PhaseMetadata, Estimated: estimated})
	for {
		if err := token.Check(); err != nil {
			l.Info("metadata calculation cancelled")
			return ImageMetadata{}, err
		}
		n, rerr := readFull(dec, buf)
		if rerr != nil && !errors.Is(rerr, io.EOF) {
			return ImageMetadata{}, fmt.Errorf("failed to read from %s stream: %w", format, rerr)
		}
		if n > 0 {
			_, _ = hasher.Write(buf[:n])
			total += uint64(n)
		}
		if total-reported >= opts.ReportEvery || n < len(buf) {
			reported = total
			progress(Progress{
				Phase:     PhaseMetadata,
				Bytes:     total,
				Estimated: estimated,
				Fraction:  estimate(total, estimated),
			})
		}
		if rerr != nil || n < len(buf) {
			break
		}
	}

	md := ImageMetadata{
		CompressedHash:   opts.CompressedHash,
		UncompressedHash: hex.EncodeToString(hasher.Sum(nil)),
		UncompressedSize: total,
		CreatedAt:        opts.Now().UTC().Format(time.RFC3339),
	}
	l.WithFields(log.Fields{
		"uncompressed_size": total,
		"hash":              md.UncompressedHash[:16],
	}).Info("metadata calculation complete")
	return md, nil
}

func estimate(n, total uint64) float64 {
	if total == 0 {
		return maxEstimate
	}
	return min(float64(n)/float64(total), maxEstimate)
}

// readFull fills b unless r ends first.
func readFull(r io.Reader, b []byte) (int, error) {
	n := 0
	for n < len(b) {
		m, err := r.Read(b[n:])
		n += m
		if err != nil {
			return n, err
		}
	}
	return n, nil
}
