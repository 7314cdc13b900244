// Package device opens raw block devices for imaging. A Manager hides the platform:
// on Linux devices are resolved, unmounted and opened through UDisks2, on Windows
// volumes are locked and dismounted and the physical drive is opened with a
// ladder of access modes. NewFake provides an in-memory variant for tests.
package device

import (
	"context"
	"time"

	"github.com/golemfactory/golem-imager/aligned"
	"github.com/golemfactory/golem-imager/backend"
	log "github.com/sirupsen/logrus"
)

var logger = log.WithField("component", "device")

// Handle is an open, exclusively owned device.
type Handle interface {
	backend.Storage
	// Path is the identifier the handle was opened from
	Path() string
	// PreWriteChecks prepares the device for writing and probes write access
	PreWriteChecks() error
	// Unlock releases volume locks taken for writing. Failures are soft.
	Unlock() error
	// RequiresAlignment reports whether all I/O must be sector aligned
	RequiresAlignment() bool
	// TranslateWriteError maps an OS write failure to an error with remediation
	TranslateWriteError(err error) error
}

// Manager opens and enumerates devices.
type Manager interface {
	Open(ctx context.Context, path string, opts Options) (Handle, error)
	List(ctx context.Context) ([]Disk, error)
}

// Options controls how a device is opened.
type Options struct {
	// ReadOnly opens without write access and skips unmounting
	ReadOnly bool
	// EditMode opens an already imaged device to change its configuration
	// partition; destructive preparation is skipped.
	EditMode bool
	// Attempts per access mode, 3 if zero
	Attempts int
	// Delay between attempts, 100ms if zero
	Delay time.Duration
}

func (o Options) withDefaults() Options {
	if o.Attempts <= 0 {
		o.Attempts = 3
	}
	if o.Delay <= 0 {
		o.Delay = 100 * time.Millisecond
	}
	return o
}

// Disk describes an enumerated device.
type Disk struct {
	Path      string `json:"path"`
	Name      string `json:"name"`
	Model     string `json:"model"`
	Vendor    string `json:"vendor"`
	SizeBytes uint64 `json:"size_bytes"`
	Removable bool   `json:"removable"`
	ReadOnly  bool   `json:"read_only"`
	// System marks the disk holding the running system
	System bool `json:"system"`
}

// Storage returns the I/O surface to use for h: h itself, or an aligned adapter
// over it when the device only accepts sector-aligned I/O.
func Storage(h Handle) (backend.Storage, error) {
	if !h.RequiresAlignment() {
		return h, nil
	}
	return aligned.New(h, h.SectorSize())
}

// Finish runs the post-write sequence: sync, then unlock. Unlock failures are
// logged only.
func Finish(h Handle, s backend.Storage) error {
	if err := s.Sync(); err != nil {
		return h.TranslateWriteError(err)
	}
	if err := h.Unlock(); err != nil {
		logger.WithError(err).Warn("failed to unlock volume, continuing")
	}
	return nil
}
