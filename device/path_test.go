package device

import "testing"

func TestNormalizeWindowsPath(t *testing.T) {
	tests := []struct {
		id       string
		device   string
		physical bool
		number   int
		letter   string
	}{
		{`\\.\PhysicalDrive1`, `\\.\PhysicalDrive1`, true, 1, ""},
		{`\\.\PHYSICALDRIVE12`, `\\.\PhysicalDrive12`, true, 12, ""},
		{"PhysicalDrive3", `\\.\PhysicalDrive3`, true, 3, ""},
		{"2", `\\.\PhysicalDrive2`, true, 2, ""},
		{"e:", `\\.\E:`, false, -1, "E:"},
		{`E:\`, `\\.\E:`, false, -1, "E:"},
		{`\\.\F:`, `\\.\F:`, false, -1, "F:"},
		{"CdRom0", `\\.\CdRom0`, false, -1, ""},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			wp, err := NormalizeWindowsPath(tt.id)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if wp.Device != tt.device {
				t.Errorf("device %q instead of %q", wp.Device, tt.device)
			}
			if wp.Physical != tt.physical || wp.Number != tt.number || wp.Letter != tt.letter {
				t.Errorf("got %+v", wp)
			}
		})
	}
	if _, err := NormalizeWindowsPath("  "); err == nil {
		t.Errorf("empty identifier was accepted")
	}
}

func TestDiskNumber(t *testing.T) {
	for _, bad := range []string{"", "PhysicalDrive", "PhysicalDriveX", "-1", "/dev/sda"} {
		if n, err := DiskNumber(bad); err == nil {
			t.Errorf("DiskNumber(%q) returned %d instead of an error", bad, n)
		}
	}
	if n, err := DiskNumber(`\\.\physicaldrive7`); err != nil || n != 7 {
		t.Errorf("DiskNumber returned %d, %v", n, err)
	}
}
