// Package partition locates partitions of a GPT partitioned device by their
// unique GUID.
package partition

import (
	"errors"
	"fmt"
	"strings"

	"github.com/diskfs/go-diskfs/partition/gpt"
	"github.com/golemfactory/golem-imager/aligned"
	"github.com/golemfactory/golem-imager/backend"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const (
	// LogicalSectorSize is the sector size LBAs are expressed in.
	LogicalSectorSize = 512
	// fallbackSectorSize is tried on devices with 4Kn logical sectors.
	fallbackSectorSize = 4096
	// readAhead is the window of aligned reads while parsing, enough for the
	// header and 128 partition entries.
	readAhead = 64 * 1024
)

var logger = log.WithField("component", "partition")

// Descriptor is the location of one partition, recomputed on every lookup.
//
// Offset and Size are LBAs multiplied by the table's logical sector size, not
// by a fixed 512 bytes, so on 4Kn disks they are eight times the 512-byte
// figures. Size covers LastLBA-FirstLBA sectors, which leaves out the last
// sector of the inclusive range.
type Descriptor struct {
	UUID     string `json:"uuid"`
	Name     string `json:"name,omitempty"`
	Type     string `json:"type,omitempty"`
	FirstLBA uint64 `json:"first_lba"`
	LastLBA  uint64 `json:"last_lba"`
	// Offset in bytes from the start of the device
	Offset int64 `json:"offset"`
	// Size in bytes, 0 when the table holds an inverted range
	Size int64 `json:"size"`
}

// Open returns a window over the partition on its own clone of dev; closing the
// window closes the clone.
func (d Descriptor) Open(dev backend.Storage) (backend.Storage, error) {
	return backend.NewWindow(dev, d.Offset, d.Size).Clone()
}

// Table is a parsed GPT partition table.
type Table struct {
	DiskGUID          string       `json:"disk_guid"`
	LogicalSectorSize int          `json:"logical_sector_size"`
	Partitions        []Descriptor `json:"partitions"`
}

func describe(p *gpt.Partition, sectorSize int) Descriptor {
	d := Descriptor{
		UUID:     strings.ToLower(p.GUID),
		Name:     p.Name,
		Type:     string(p.Type),
		FirstLBA: p.Start,
		LastLBA:  p.End,
		Offset:   int64(p.Start) * int64(sectorSize),
	}
	if p.End >= p.Start {
		d.Size = int64(p.End-p.Start) * int64(sectorSize)
	} else {
		logger.WithFields(log.Fields{
			"uuid":      d.UUID,
			"first_lba": p.Start,
			"last_lba":  p.End,
		}).Warn("partition ends before it starts, size unknown")
	}
	return d
}

// alignedDevice is implemented by device handles that only accept sector
// aligned I/O.
type alignedDevice interface {
	RequiresAlignment() bool
}

// parse reads the table from a fresh clone of dev. A device that needs aligned
// I/O is retried through aligned reads of its own sector size, any other device
// is retried with 4096 byte logical sectors.
func parse(dev backend.Storage) (*gpt.Table, error) {
	name := backend.Name(dev)
	c, err := dev.Clone()
	if err != nil {
		return nil, fmt.Errorf("could not duplicate handle of %s: %w", name, err)
	}
	defer c.Close()
	size, err := c.Size()
	if err != nil {
		logger.WithError(err).WithField("device", name).Debug("device size unknown")
		size = 0
	}

	table, err := gpt.Read(newSource(storageReader{c}, name, size), LogicalSectorSize, LogicalSectorSize)
	if err == nil {
		return table, nil
	}
	logger.WithError(err).WithField("device", name).Warn("GPT read failed, retrying with aligned reads")

	var (
		sectorSize = fallbackSectorSize
		logical    = fallbackSectorSize
	)
	if a, ok := dev.(alignedDevice); ok && a.RequiresAlignment() {
		sectorSize = c.SectorSize()
		logical = LogicalSectorSize
	}
	r, ferr := aligned.NewReader(c, sectorSize, readAhead)
	if ferr == nil {
		table, ferr = gpt.Read(newSource(r, name, size), logical, sectorSize)
		_ = r.Close()
	}
	if ferr == nil {
		logger.WithFields(log.Fields{
			"device":       name,
			"logical_size": logical,
		}).Info("GPT read through aligned fallback")
		return table, nil
	}
	return nil, NewGPTParseError(name, err, ferr)
}

// Read parses the GPT of dev.
func Read(dev backend.Storage) (*Table, error) {
	gt, err := parse(dev)
	if err != nil {
		return nil, err
	}
	t := &Table{
		DiskGUID:          strings.ToLower(gt.GUID),
		LogicalSectorSize: gt.LogicalSectorSize,
	}
	if t.LogicalSectorSize == 0 {
		t.LogicalSectorSize = LogicalSectorSize
	}
	for _, p := range gt.Partitions {
		if p == nil || p.Type == gpt.Unused {
			continue
		}
		t.Partitions = append(t.Partitions, describe(p, t.LogicalSectorSize))
	}
	return t, nil
}

// List returns the descriptors of every partition of dev in table order.
func List(dev backend.Storage) ([]Descriptor, error) {
	t, err := Read(dev)
	if err != nil {
		return nil, err
	}
	return t.Partitions, nil
}

// Locate finds the partition whose unique GUID is id. The comparison ignores
// case and the first matching entry wins.
func Locate(dev backend.Storage, id string) (Descriptor, error) {
	u, err := uuid.Parse(id)
	if err != nil {
		return Descriptor{}, fmt.Errorf("invalid partition UUID %q: %w", id, errors.Join(backend.ErrInvalidInput, err))
	}
	want := u.String()
	t, err := Read(dev)
	if err != nil {
		return Descriptor{}, err
	}
	found := make([]string, 0, len(t.Partitions))
	for _, d := range t.Partitions {
		if strings.EqualFold(d.UUID, want) {
			logger.WithFields(log.Fields{
				"uuid":   want,
				"offset": d.Offset,
				"size":   d.Size,
			}).Debug("located partition")
			return d, nil
		}
		found = append(found, d.UUID)
	}
	return Descriptor{}, NewNotFoundError(want, found)
}
