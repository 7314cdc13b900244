package device

import (
	"bufio"
	"io"
	"strconv"
	"strings"
)

type mountEntry struct {
	Device     string
	MountPoint string
}

// parseMounts reads a /proc/mounts style table.
func parseMounts(r io.Reader) ([]mountEntry, error) {
	var entries []mountEntry
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}
		entries = append(entries, mountEntry{
			Device:     unescapeMount(fields[0]),
			MountPoint: unescapeMount(fields[1]),
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// mountsOn returns the entries whose device path starts with device, the
// device itself included.
func mountsOn(entries []mountEntry, device string) []mountEntry {
	var matched []mountEntry
	for _, e := range entries {
		if strings.HasPrefix(e.Device, device) {
			matched = append(matched, e)
		}
	}
	return matched
}

// unescapeMount decodes the octal escapes (\040 for space) used in mount tables.
func unescapeMount(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+4 <= len(s) {
			if v, err := strconv.ParseUint(s[i+1:i+4], 8, 8); err == nil {
				b.WriteByte(byte(v))
				i += 3
				continue
			}
		}
		b.WriteByte(s[i])
	}
	return b.String()
}
