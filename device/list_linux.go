package device

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/jaypipes/ghw"
	"github.com/jaypipes/ghw/pkg/block"
)

func (m *linuxManager) List(ctx context.Context) ([]Disk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	info, err := block.New(ghw.WithDisableTools())
	if err != nil {
		return nil, fmt.Errorf("error detecting block devices: %w", err)
	}
	disks := make([]Disk, 0, len(info.Disks))
	for _, d := range info.Disks {
		if d.Name == "" || strings.HasPrefix(d.Name, "loop") || strings.HasPrefix(d.Name, "ram") {
			continue
		}
		disk := Disk{
			Path:      filepath.Join("/dev", d.Name),
			Model:     d.Model,
			Vendor:    d.Vendor,
			SizeBytes: d.SizeBytes,
			Removable: d.IsRemovable || strings.Contains(d.BusPath, "usb"),
		}
		var mountpoint string
		for _, p := range d.Partitions {
			if p.MountPoint == "/" || p.MountPoint == "/boot" || p.MountPoint == "/boot/efi" {
				disk.System = true
			}
			if mountpoint == "" && p.MountPoint != "" {
				mountpoint = p.MountPoint
			}
			disk.ReadOnly = disk.ReadOnly || p.IsReadOnly
		}
		disk.Name = describe(disk, mountpoint)
		disks = append(disks, disk)
	}
	logger.WithField("count", len(disks)).Debug("listed block devices")
	return disks, nil
}

func describe(d Disk, mountpoint string) string {
	name := strings.TrimSpace(d.Vendor + " " + d.Model)
	if name == "" || strings.EqualFold(name, "unknown") {
		name = "Disk " + d.Path
	}
	if mountpoint != "" {
		name += " (" + mountpoint + ")"
	}
	return name
}
