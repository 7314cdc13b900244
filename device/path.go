package device

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

const devicePrefix = `\\.\`

var physicalDriveRE = regexp.MustCompile(`(?i)^(?:\\\\\.\\)?PHYSICALDRIVE(\d+)$`)

// WindowsPath is a normalised Windows device identifier.
type WindowsPath struct {
	// Device is the path passed to CreateFile, e.g. \\.\PhysicalDrive1 or \\.\E:
	Device string
	// Physical is true for whole physical drives
	Physical bool
	// Number is the physical drive number, -1 for volumes
	Number int
	// Letter is the drive letter with its colon, for volumes
	Letter string
}

// NormalizeWindowsPath turns PhysicalDriveN, \\.\PhysicalDriveN, a bare drive
// number or a drive letter into the canonical device path.
func NormalizeWindowsPath(id string) (WindowsPath, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return WindowsPath{}, fmt.Errorf("empty device identifier")
	}
	if n, err := DiskNumber(id); err == nil {
		return WindowsPath{
			Device:   fmt.Sprintf(`%sPhysicalDrive%d`, devicePrefix, n),
			Physical: true,
			Number:   n,
		}, nil
	}
	trimmed := strings.TrimSuffix(strings.TrimPrefix(id, devicePrefix), `\`)
	if len(trimmed) == 2 && trimmed[1] == ':' && isLetter(trimmed[0]) {
		letter := strings.ToUpper(trimmed)
		return WindowsPath{Device: devicePrefix + letter, Number: -1, Letter: letter}, nil
	}
	return WindowsPath{Device: devicePrefix + trimmed, Number: -1}, nil
}

// DiskNumber extracts N from \\.\PhysicalDriveN, PhysicalDriveN or a bare number.
func DiskNumber(id string) (int, error) {
	if m := physicalDriveRE.FindStringSubmatch(id); m != nil {
		return strconv.Atoi(m[1])
	}
	if n, err := strconv.Atoi(id); err == nil && n >= 0 {
		return n, nil
	}
	return 0, fmt.Errorf("could not extract disk number from path %q", id)
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
