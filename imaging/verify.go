package imaging

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/golemfactory/golem-imager/aligned"
	"github.com/golemfactory/golem-imager/backend"
	log "github.com/sirupsen/logrus"
)

// LimitedWriter writes to W but limits the total amount of data written to N bytes.
// Each call to Write updates N to reflect the new amount remaining. Bytes past
// the limit are discarded without error.
type LimitedWriter struct {
	W io.Writer // underlying writer
	N int64     // max bytes remaining
}

func (l *LimitedWriter) Write(p []byte) (int, error) {
	if l.N <= 0 {
		return len(p), nil
	}
	in := len(p)
	if int64(len(p)) > l.N {
		p = p[:l.N]
	}
	n, err := l.W.Write(p)
	l.N -= int64(n)
	if err != nil {
		return n, err
	}
	return in, nil
}

// NewLimitWriter creates a new LimitedWriter.
func NewLimitWriter(w io.Writer, n int64) io.Writer {
	return &LimitedWriter{W: w, N: n}
}

// verify hashes the first n bytes of the device and compares them with want.
// Reads are whole sectors; the tail past n goes through the limited writer.
func (w *writer) verify(n uint64, want string) error {
	ss := w.s.SectorSize()
	buf, err := aligned.NewBuffer(aligned.RoundUp(w.opts.ChunkSize, ss), ss)
	if err != nil {
		return err
	}
	hasher := sha256.New()
	limited := NewLimitWriter(hasher, int64(n))
	var done uint64
	w.progress(newProgress(PhaseVerify, 0, n))
	for done < n {
		if err := w.token.Check(); err != nil {
			return err
		}
		rem := n - done
		size := min(uint64(buf.Len()), (rem+uint64(ss)-1)/uint64(ss)*uint64(ss))
		b := buf.Bytes()[:size]
		read, err := backend.ReadFullAt(w.s, b, int64(done))
		if err != nil && uint64(read) < min(size, rem) {
			return fmt.Errorf("verification read failed at %d bytes, the image was written but could not be read back: %w",
				done, w.h.TranslateWriteError(err))
		}
		_, _ = limited.Write(b[:read])
		done += min(uint64(read), rem)
		w.progress(newProgress(PhaseVerify, done, n))
	}
	got := hex.EncodeToString(hasher.Sum(nil))
	if got != want {
		w.log.WithFields(log.Fields{
			"expected": want,
			"actual":   got,
		}).Error("hash verification failed")
		return &VerifyError{Expected: want, Actual: got, Bytes: n}
	}
	w.log.WithField("bytes", n).Info("verification passed")
	return nil
}
