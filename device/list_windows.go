package device

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/bi-zone/wmi"
)

type win32DiskDrive struct {
	DeviceID      string
	Index         uint32
	Model         string
	Manufacturer  string
	InterfaceType string
	MediaType     string
	Size          uint64
}

type win32DiskPartition struct {
	DeviceID  string
	DiskIndex uint32
}

type win32LogicalDiskToPartition struct {
	Antecedent string
	Dependent  string
}

func (m *windowsManager) List(ctx context.Context) ([]Disk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var drives []win32DiskDrive
	err := wmi.Query("SELECT DeviceID, Index, Model, Manufacturer, InterfaceType, MediaType, Size FROM Win32_DiskDrive", &drives)
	if err != nil {
		return nil, fmt.Errorf("error querying WMI: %w", err)
	}
	systemDrive := strings.TrimSuffix(strings.ToUpper(os.Getenv("SystemDrive")), ":")
	disks := make([]Disk, 0, len(drives))
	for _, d := range drives {
		letters, err := volumeLetters(int(d.Index))
		if err != nil {
			logger.WithError(err).WithField("disk", d.Index).Debug("could not list volumes")
		}
		disk := Disk{
			Path:      fmt.Sprintf(`%sPhysicalDrive%d`, devicePrefix, d.Index),
			Model:     d.Model,
			Vendor:    d.Manufacturer,
			SizeBytes: d.Size,
			Removable: d.InterfaceType == "USB" ||
				strings.Contains(strings.ToLower(d.MediaType), "external") ||
				d.MediaType == "Removable Media",
		}
		name := d.Model
		for _, l := range letters {
			if l == systemDrive {
				disk.System = true
			}
		}
		if len(letters) > 0 {
			name += " (" + strings.Join(letters, ":, ") + ":)"
		}
		disk.Name = name
		disks = append(disks, disk)
	}
	logger.WithField("count", len(disks)).Debug("listed physical drives")
	return disks, nil
}

// volumeLetters returns the drive letters of volumes on physical drive n.
func volumeLetters(n int) ([]string, error) {
	var partitions []win32DiskPartition
	query := fmt.Sprintf("SELECT DeviceID, DiskIndex FROM Win32_DiskPartition WHERE DiskIndex = %d", n)
	if err := wmi.Query(query, &partitions); err != nil {
		return nil, err
	}
	if len(partitions) == 0 {
		return nil, nil
	}
	var assocs []win32LogicalDiskToPartition
	if err := wmi.Query("SELECT Antecedent, Dependent FROM Win32_LogicalDiskToPartition", &assocs); err != nil {
		return nil, err
	}
	var letters []string
	for _, part := range partitions {
		for _, assoc := range assocs {
			if !strings.Contains(assoc.Antecedent, part.DeviceID) {
				continue
			}
			idx := strings.Index(assoc.Dependent, `DeviceID="`)
			if idx == -1 {
				continue
			}
			rest := assoc.Dependent[idx+len(`DeviceID="`):]
			end := strings.Index(rest, `"`)
			if end <= 0 {
				continue
			}
			letter := strings.TrimSuffix(rest[:end], ":")
			if len(letter) == 1 {
				letters = append(letters, strings.ToUpper(letter))
			}
		}
	}
	return letters, nil
}
