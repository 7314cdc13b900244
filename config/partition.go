package config

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math/bits"
	"os"
	"sort"
	"strings"

	dfsfile "github.com/diskfs/go-diskfs/backend/file"
	"github.com/diskfs/go-diskfs/filesystem/fat32"
	"github.com/golemfactory/golem-imager/backend"
	"github.com/golemfactory/golem-imager/partition"
	log "github.com/sirupsen/logrus"
)

const (
	TOMLFile    = "golemwz.toml"
	EnvFile     = "golem.env"
	VolumeLabel = "GOLEMCONF"

	fatBlockSize = 512
)

var logger = log.WithField("component", "config")

// ReadOptions tune Read.
type ReadOptions struct {
	// FormatIfNeeded formats an unformatted partition once, writes it back and
	// reads the defaults from it
	FormatIfNeeded bool
}

// image is a config partition loaded into memory.
type image struct {
	desc partition.Descriptor
	mem  *backend.Memory
}

func load(dev backend.Storage, uuid string) (*image, error) {
	d, err := partition.Locate(dev, uuid)
	if err != nil {
		return nil, err
	}
	if d.Size <= 0 {
		return nil, fmt.Errorf("config partition %s has no usable size: %w", d.UUID, backend.ErrInvalidInput)
	}
	b := make([]byte, d.Size)
	if _, err := backend.ReadFullAt(dev, b, d.Offset); err != nil {
		return nil, fmt.Errorf("could not read config partition %s: %w", d.UUID, err)
	}
	logger.WithFields(log.Fields{
		"uuid":   d.UUID,
		"offset": d.Offset,
		"size":   d.Size,
	}).Debug("loaded config partition")
	return &image{desc: d, mem: backend.NewNamedMemory(d.UUID, b, fatBlockSize)}, nil
}

// store writes the whole partition back in one operation.
func (img *image) store(dev backend.Storage) error {
	if err := backend.WriteFullAt(dev, img.mem.Bytes(), img.desc.Offset); err != nil {
		return fmt.Errorf("could not write config partition %s: %w", img.desc.UUID, err)
	}
	if err := dev.Sync(); err != nil {
		return fmt.Errorf("could not sync config partition %s: %w", img.desc.UUID, err)
	}
	return nil
}

// checkBootSector tells an unformatted partition apart from a damaged FAT.
func checkBootSector(b []byte) error {
	if len(b) < fatBlockSize {
		return NewFormatError(true, errors.New("partition smaller than one sector"))
	}
	if b[510] != 0x55 || b[511] != 0xAA {
		return NewFormatError(true, errors.New("missing boot sector signature"))
	}
	bytesPerSector := binary.LittleEndian.Uint16(b[11:13])
	sectorsPerCluster := b[13]
	reserved := binary.LittleEndian.Uint16(b[14:16])
	fats := b[16]
	switch {
	case bytesPerSector < 512 || bytesPerSector > 4096 || bits.OnesCount16(bytesPerSector) != 1:
		return NewFormatError(true, fmt.Errorf("invalid bytes per sector %d", bytesPerSector))
	case sectorsPerCluster == 0 || bits.OnesCount8(sectorsPerCluster) != 1:
		return NewFormatError(true, fmt.Errorf("invalid sectors per cluster %d", sectorsPerCluster))
	case reserved == 0 || fats == 0:
		return NewFormatError(true, errors.New("invalid BIOS parameter block"))
	}
	return nil
}

func (img *image) mount(writable bool) (*fat32.FileSystem, error) {
	if err := checkBootSector(img.mem.Bytes()); err != nil {
		return nil, err
	}
	fs, err := fat32.Read(dfsfile.New(img.mem, !writable), img.desc.Size, 0, fatBlockSize)
	if err != nil {
		return nil, NewFormatError(false, err)
	}
	return fs, nil
}

func (img *image) format() (*fat32.FileSystem, error) {
	clear(img.mem.Bytes())
	fs, err := fat32.Create(dfsfile.New(img.mem, false), img.desc.Size, 0, fatBlockSize, VolumeLabel, false)
	if err != nil {
		return nil, fmt.Errorf("could not format config partition %s: %w", img.desc.UUID, err)
	}
	logger.WithField("uuid", img.desc.UUID).Info("formatted config partition")
	return fs, nil
}

// files returns the contents of every regular file in the root directory.
func files(fs *fat32.FileSystem) (map[string][]byte, error) {
	entries, err := fs.ReadDir(".")
	if err != nil {
		return nil, NewFormatError(false, fmt.Errorf("could not list root directory: %w", err))
	}
	out := make(map[string][]byte, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		f, err := fs.OpenFile("/"+e.Name(), os.O_RDONLY)
		if err != nil {
			return nil, fmt.Errorf("could not open %s: %w", e.Name(), err)
		}
		b, err := io.ReadAll(f)
		_ = f.Close()
		if err != nil {
			return nil, fmt.Errorf("could not read %s: %w", e.Name(), err)
		}
		out[e.Name()] = b
	}
	return out, nil
}

// lookup finds name ignoring case, FAT names are case-insensitive.
func lookup(m map[string][]byte, name string) []byte {
	for k, v := range m {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return nil
}

// Read returns the configuration stored on partition uuid of dev.
func Read(dev backend.Storage, uuid string) (*Config, error) {
	return ReadWithOptions(dev, uuid, ReadOptions{})
}

func ReadWithOptions(dev backend.Storage, uuid string, opts ReadOptions) (*Config, error) {
	m, err := Files(dev, uuid)
	var fe *FormatError
	if errors.As(err, &fe) && fe.NeedsFormat && opts.FormatIfNeeded {
		logger.WithError(err).Warn("config partition not formatted, formatting")
		img, lerr := load(dev, uuid)
		if lerr != nil {
			return nil, lerr
		}
		if _, ferr := img.format(); ferr != nil {
			return nil, ferr
		}
		if serr := img.store(dev); serr != nil {
			return nil, serr
		}
		m, err = Files(dev, uuid)
	}
	if err != nil {
		return nil, err
	}
	tomlContent := lookup(m, TOMLFile)
	envContent := lookup(m, EnvFile)
	logger.WithFields(log.Fields{
		"toml": tomlContent != nil,
		"env":  envContent != nil,
	}).Debug("read config files")
	return Parse(tomlContent, envContent), nil
}

// Files returns the raw contents of every file on the config partition, keyed
// by name.
func Files(dev backend.Storage, uuid string) (map[string][]byte, error) {
	img, err := load(dev, uuid)
	if err != nil {
		return nil, err
	}
	fs, err := img.mount(false)
	if err != nil {
		return nil, err
	}
	return files(fs)
}

// Names returns the sorted file names of m.
func Names(m map[string][]byte) []string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Write replaces the contents of the config partition with a freshly formatted
// filesystem holding both files of c. The partition is rebuilt in memory and
// written back in one operation.
func Write(dev backend.Storage, uuid string, c *Config) error {
	if err := c.Validate(); err != nil {
		return err
	}
	img, err := load(dev, uuid)
	if err != nil {
		return err
	}
	fs, err := img.format()
	if err != nil {
		return err
	}
	contents := []struct {
		name string
		b    []byte
	}{
		{TOMLFile, c.TOML()},
		{EnvFile, c.Env()},
	}
	for _, f := range contents {
		if err := writeFile(fs, f.name, f.b); err != nil {
			return err
		}
	}
	if err := img.store(dev); err != nil {
		return err
	}
	logger.WithFields(log.Fields{
		"uuid":            img.desc.UUID,
		"payment_network": c.PaymentNetwork,
		"network_type":    c.NetworkType,
		"subnet":          c.Subnet,
	}).Info("wrote configuration")
	return nil
}

func writeFile(fs *fat32.FileSystem, name string, b []byte) error {
	f, err := fs.OpenFile("/"+name, os.O_CREATE|os.O_RDWR)
	if err != nil {
		return fmt.Errorf("could not create %s: %w", name, err)
	}
	n, err := f.Write(b)
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("could not write %s: %w", name, err)
	}
	if n != len(b) {
		_ = f.Close()
		return fmt.Errorf("wrote %d bytes of %s instead of %d: %w", n, name, len(b), io.ErrShortWrite)
	}
	return f.Close()
}
