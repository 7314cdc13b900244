package metadata

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/xattr"
)

// hashAttr caches the SHA-256 of a file on the file itself, as
// "<size>:<mtime ns>:<hex digest>".
const hashAttr = "user.golem-imager.sha256"

// Hasher hashes compressed bytes as they are downloaded. It is an io.Writer,
// so it can sit behind an io.TeeReader.
type Hasher struct {
	h hash.Hash
	n uint64
}

// NewHasher returns an empty SHA-256 hasher.
func NewHasher() *Hasher {
	return &Hasher{h: sha256.New()}
}

func (h *Hasher) Write(p []byte) (int, error) {
	n, err := h.h.Write(p)
	h.n += uint64(n)
	return n, err
}

// Size of the data hashed so far.
func (h *Hasher) Size() uint64 {
	return h.n
}

// Sum returns the hex digest.
func (h *Hasher) Sum() string {
	return hex.EncodeToString(h.h.Sum(nil))
}

// HashFile returns the hex SHA-256 of the file at path.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("could not open %s: %w", path, err)
	}
	defer f.Close()
	h := NewHasher()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("could not hash %s: %w", path, err)
	}
	return h.Sum(), nil
}

// FileHash is HashFile with the result cached in an extended attribute of the
// file. The cached value is used only while size and modification time are
// unchanged. Filesystems without user attributes just hash every time.
func FileHash(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("could not stat %s: %w", path, err)
	}
	stamp := strconv.FormatInt(info.Size(), 10) + ":" + strconv.FormatInt(info.ModTime().UnixNano(), 10) + ":"
	l := logger.WithField("path", path)
	if v, err := xattr.Get(path, hashAttr); err == nil {
		if h, ok := strings.CutPrefix(string(v), stamp); ok && len(h) == sha256.Size*2 {
			l.Debug("using cached file hash")
			return h, nil
		}
	}
	h, err := HashFile(path)
	if err != nil {
		return "", err
	}
	if err := xattr.Set(path, hashAttr, []byte(stamp+h)); err != nil {
		l.WithError(err).Debug("could not cache file hash")
	}
	return h, nil
}
