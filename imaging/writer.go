// Package imaging writes compressed OS images to devices. The image stream is
// decompressed, copied in large sector-aligned chunks, optionally verified by
// reading it back, and the device is then finalised: the backup GPT header is
// moved to the end of the device and the configuration partition written.
package imaging

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"

	"github.com/golemfactory/golem-imager/aligned"
	"github.com/golemfactory/golem-imager/backend"
	"github.com/golemfactory/golem-imager/cancel"
	"github.com/golemfactory/golem-imager/config"
	"github.com/golemfactory/golem-imager/device"
	"github.com/golemfactory/golem-imager/partition/header"
	log "github.com/sirupsen/logrus"
)

const (
	// DefaultChunkSize is the amount of image data per device write.
	DefaultChunkSize = 4 * 1024 * 1024
	// wipeSize is zeroed at both ends of the device before writing.
	wipeSize = 4 * 1024 * 1024
)

var logger = log.WithField("component", "imaging")

// Options controls a write.
type Options struct {
	// ChunkSize of device writes, DefaultChunkSize if zero
	ChunkSize int
	// ExpectedSize of the uncompressed image; when set the stream must hold
	// exactly that many bytes
	ExpectedSize uint64
	// ExpectedHash is the hex SHA-256 of the uncompressed image
	ExpectedHash string
	// Verify reads the written bytes back and compares their hash to
	// ExpectedHash, or to the hash of the bytes written when it is empty
	Verify bool
	// SkipWipe leaves the first and last 4MiB of the device alone
	SkipWipe bool
	// Config is written to the config partition after the image, if set
	Config *config.Config
	// ConfigUUID of the config partition, config.DefaultPartitionUUID if empty
	ConfigUUID string
}

func (o Options) withDefaults() Options {
	if o.ChunkSize <= 0 {
		o.ChunkSize = DefaultChunkSize
	}
	if o.ConfigUUID == "" {
		o.ConfigUUID = config.DefaultPartitionUUID
	}
	return o
}

// Result of a completed write.
type Result struct {
	Format       Format
	BytesWritten uint64
	// Hash is the hex SHA-256 of the bytes written
	Hash            string
	Verified        bool
	BackupRelocated bool
	ConfigWritten   bool
}

// writer is the state of one write.
type writer struct {
	h        device.Handle
	s        backend.Storage
	token    *cancel.Token
	opts     Options
	progress func(Progress)
	log      *log.Entry
	hash     hash.Hash
}

// Write copies the compressed image src to h and finalises the device. It runs
// on the calling goroutine; progress, if not nil, is called in order for every
// event. The handle is neither closed nor unlocked on failure.
func Write(h device.Handle, src io.Reader, token *cancel.Token, opts Options, progress func(Progress)) (Result, error) {
	if progress == nil {
		progress = func(Progress) {}
	}
	w := &writer{
		h:        h,
		token:    token,
		opts:     opts.withDefaults(),
		progress: progress,
		log:      logger.WithField("device", h.Path()),
		hash:     sha256.New(),
	}
	return w.run(src)
}

func (w *writer) run(src io.Reader) (Result, error) {
	var res Result
	w.progress(newProgress(PhasePrepare, 0, w.opts.ExpectedSize))
	if err := w.token.Check(); err != nil {
		return res, err
	}
	if err := w.h.PreWriteChecks(); err != nil {
		return res, err
	}
	s, err := device.Storage(w.h)
	if err != nil {
		return res, err
	}
	w.s = s

	size, err := s.Size()
	if err != nil {
		return res, fmt.Errorf("could not get size of %s: %w", w.h.Path(), err)
	}
	if size > 0 && w.opts.ExpectedSize > uint64(size) {
		return res, &SizeError{Image: w.opts.ExpectedSize, Device: size, Reason: "image does not fit on the device"}
	}
	if !w.opts.SkipWipe {
		if err := w.wipe(size); err != nil {
			return res, err
		}
	}

	dec, format, err := Decompress(src)
	if err != nil {
		return res, err
	}
	res.Format = format
	w.log.WithField("format", format).Info("writing image")

	n, err := w.copy(dec)
	res.BytesWritten = n
	if err != nil {
		return res, err
	}
	res.Hash = hex.EncodeToString(w.hash.Sum(nil))
	if w.opts.ExpectedSize > 0 && n != w.opts.ExpectedSize {
		return res, &SizeError{Image: n, Device: size, Reason: fmt.Sprintf("stream ended after %d of %d expected bytes", n, w.opts.ExpectedSize)}
	}

	if w.opts.Verify {
		want := w.opts.ExpectedHash
		if want == "" {
			want = res.Hash
		}
		if err := w.verify(n, want); err != nil {
			return res, err
		}
		res.Verified = true
	}

	w.progress(newProgress(PhaseFinalize, n, n))
	moved, err := header.RelocateBackup(s)
	if err != nil {
		w.log.WithError(err).Warn("failed to fix GPT backup header, continuing")
	}
	res.BackupRelocated = moved

	if w.opts.Config != nil {
		if err := config.Write(s, w.opts.ConfigUUID, w.opts.Config); err != nil {
			return res, fmt.Errorf("failed to write configuration: %w", err)
		}
		res.ConfigWritten = true
	}

	if err := device.Finish(w.h, s); err != nil {
		return res, err
	}
	w.progress(newProgress(PhaseDone, n, n))
	w.log.WithFields(log.Fields{
		"bytes":    n,
		"verified": res.Verified,
	}).Info("image written")
	return res, nil
}

// wipe zeroes both ends of the device so stale partition tables and
// filesystem signatures past the image do not survive.
func (w *writer) wipe(size int64) error {
	zero := make([]byte, wipeSize)
	if err := backend.WriteFullAt(w.s, zero, 0); err != nil {
		return w.h.TranslateWriteError(err)
	}
	if size > 2*wipeSize {
		if err := backend.WriteFullAt(w.s, zero, size-wipeSize); err != nil {
			return w.h.TranslateWriteError(err)
		}
	}
	if _, err := w.s.Seek(0, io.SeekStart); err != nil {
		return err
	}
	w.log.WithField("size", size).Debug("wiped start and end of device")
	return nil
}

// copy streams dec to the device in chunks. The last chunk is padded with
// zeroes to the sector size; the padding is not counted.
func (w *writer) copy(dec io.Reader) (uint64, error) {
	ss := w.s.SectorSize()
	buf, err := aligned.NewBuffer(aligned.RoundUp(w.opts.ChunkSize, ss), ss)
	if err != nil {
		return 0, err
	}
	var copied uint64
	for {
		if err := w.token.Check(); err != nil {
			return copied, err
		}
		b := buf.Bytes()
		n, rerr := fill(dec, b)
		if rerr != nil && !errors.Is(rerr, io.EOF) {
			return copied, fmt.Errorf("failed to read image at %d bytes: %w", copied, rerr)
		}
		if n == 0 {
			break
		}
		size := n
		if n%ss != 0 {
			size = aligned.RoundUp(n, ss)
			clear(b[n:size])
		}
		if err := w.token.Check(); err != nil {
			return copied, err
		}
		written, werr := w.s.Write(b[:size])
		if werr == nil && written != size {
			werr = fmt.Errorf("wrote %d of %d bytes at offset %d: %w", written, size, copied, io.ErrShortWrite)
		}
		if werr != nil {
			return copied, w.h.TranslateWriteError(werr)
		}
		_, _ = w.hash.Write(b[:n])
		copied += uint64(n)
		w.progress(newProgress(PhaseWrite, copied, w.opts.ExpectedSize))
		if rerr != nil {
			break
		}
	}
	w.log.WithField("bytes", copied).Debug("copy finished")
	return copied, nil
}

// fill reads into b until it is full or r ends. Unlike io.ReadFull, a
// decoder's io.ErrUnexpectedEOF is passed through as an error.
func fill(r io.Reader, b []byte) (int, error) {
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
