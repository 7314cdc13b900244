package cli

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/golemfactory/golem-imager/device"
)

func TestConfirm(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"y\n", true},
		{"YES\n", true},
		{" Y \n", true},
		{"n\n", false},
		{"\n", false},
		{"", false},
		{"yep\n", false},
	}
	for _, tt := range tests {
		var out bytes.Buffer
		if got := Confirm(strings.NewReader(tt.in), &out, "Continue?"); got != tt.want {
			t.Errorf("answer %q gave %v instead of %v", tt.in, got, tt.want)
		}
		if out.String() != "Continue? (y/N): " {
			t.Errorf("prompt was %q", out.String())
		}
	}
}

func TestSize(t *testing.T) {
	tests := map[uint64]string{
		0:              "0 B",
		1023:           "1023 B",
		1024:           "1.0 KiB",
		16 * 1 << 20:   "16.0 MiB",
		3 << 30:        "3.0 GiB",
		1536 * 1 << 30: "1.5 TiB",
	}
	for n, want := range tests {
		if got := Size(n); got != want {
			t.Errorf("Size(%d) = %s instead of %s", n, got, want)
		}
	}
}

func TestPrintError(t *testing.T) {
	var out bytes.Buffer
	err := device.NewIOError("lock", 5, "access denied", errors.New("denied"), "Run as Administrator")
	PrintError(&out, err)
	want := "Error: access denied: denied. Run as Administrator\nTroubleshooting tips:\n  - Run as Administrator\n"
	if out.String() != want {
		t.Errorf("printed %q instead of %q", out.String(), want)
	}

	out.Reset()
	PrintError(&out, errors.New("plain"))
	if out.String() != "Error: plain\n" {
		t.Errorf("printed %q for an error without hints", out.String())
	}

	if r := Remedies(device.NewOpenError("/dev/x", device.NotFound, 2, errors.New("missing"))); len(r) != 2 {
		t.Errorf("not found error had hints %v", r)
	}
}
