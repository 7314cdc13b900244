package metadata

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/djherbis/times"
)

const cacheSuffix = ".metadata.json"

// Cache stores ImageMetadata as <compressed hash>.metadata.json files in a
// directory.
type Cache struct {
	dir string
}

// DefaultCacheDir is the per-user directory used when none is given.
func DefaultCacheDir() (string, error) {
	base, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "golem-imager", "metadata"), nil
}

// NewCache creates dir if needed.
func NewCache(dir string) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("could not create metadata directory %s: %w", dir, err)
	}
	return &Cache{dir: dir}, nil
}

func (c *Cache) path(hash string) (string, error) {
	if hash == "" || strings.ContainsAny(hash, `/\`) || hash == "." || hash == ".." {
		return "", fmt.Errorf("invalid image hash %q", hash)
	}
	return filepath.Join(c.dir, hash+cacheSuffix), nil
}

// Store writes md under hash, replacing any previous entry.
func (c *Cache) Store(hash string, md ImageMetadata) error {
	p, err := c.path(hash)
	if err != nil {
		return err
	}
	b, err := json.MarshalIndent(md, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(p, b, 0o644); err != nil {
		return fmt.Errorf("could not store metadata for %s: %w", hash, err)
	}
	logger.WithField("hash", hash).Info("stored image metadata")
	return nil
}

// Load returns the entry for hash; ok is false when there is none.
func (c *Cache) Load(hash string) (md ImageMetadata, ok bool, err error) {
	p, err := c.path(hash)
	if err != nil {
		return md, false, err
	}
	b, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		logger.WithField("hash", hash).Debug("no metadata stored")
		return md, false, nil
	}
	if err != nil {
		return md, false, err
	}
	if err := json.Unmarshal(b, &md); err != nil {
		return md, false, fmt.Errorf("corrupt metadata file %s: %w", p, err)
	}
	// mounts with noatime never update it on read
	now := time.Now()
	if err := os.Chtimes(p, now, time.Time{}); err != nil {
		logger.WithError(err).WithField("hash", hash).Debug("could not mark metadata as used")
	}
	return md, true, nil
}

// Has reports whether an entry exists for hash.
func (c *Cache) Has(hash string) bool {
	p, err := c.path(hash)
	if err != nil {
		return false
	}
	_, err = os.Stat(p)
	return err == nil
}

// Delete removes the entry for hash. A missing entry is not an error.
func (c *Cache) Delete(hash string) error {
	p, err := c.path(hash)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// List returns the hashes with stored metadata, sorted.
func (c *Cache) List() ([]string, error) {
	entries, err := os.ReadDir(c.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var hashes []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if h, ok := strings.CutSuffix(e.Name(), cacheSuffix); ok && h != "" {
			hashes = append(hashes, h)
		}
	}
	sort.Strings(hashes)
	return hashes, nil
}

// Cleanup deletes entries whose image no longer exists and returns how many
// were removed. Failures to delete single entries are logged and skipped.
func (c *Cache) Cleanup(exists func(hash string) bool) (int, error) {
	hashes, err := c.List()
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, h := range hashes {
		if exists(h) {
			continue
		}
		if err := c.Delete(h); err != nil {
			logger.WithError(err).WithField("hash", h).Error("failed to delete orphaned metadata")
			continue
		}
		removed++
	}
	if removed > 0 {
		logger.WithField("count", removed).Info("cleaned up orphaned metadata")
	}
	return removed, nil
}

// Prune deletes entries neither stored nor loaded within maxAge of now.
func (c *Cache) Prune(maxAge time.Duration, now time.Time) (int, error) {
	hashes, err := c.List()
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, h := range hashes {
		p, _ := c.path(h)
		ts, err := times.Stat(p)
		if err != nil {
			continue
		}
		used := ts.ModTime()
		if ts.AccessTime().After(used) {
			used = ts.AccessTime()
		}
		if now.Sub(used) <= maxAge {
			continue
		}
		if err := c.Delete(h); err != nil {
			logger.WithError(err).WithField("hash", h).Error("failed to delete stale metadata")
			continue
		}
		removed++
	}
	return removed, nil
}
