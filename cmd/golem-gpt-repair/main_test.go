package main

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/golemfactory/golem-imager/backend"
	"github.com/golemfactory/golem-imager/device"
	"github.com/golemfactory/golem-imager/partition/header"
	"github.com/golemfactory/golem-imager/testhelper"
)

// brokenDisk returns a fake device whose primary header claims the entries
// start at LBA 3.
func brokenDisk(t *testing.T) (*device.Fake, *backend.Memory) {
	img := testhelper.GPTImage(t, 4<<20, 512, testhelper.Partition{
		GUID: "8e01dc62-9fb2-4c9d-811d-77b96b9dbde4", Name: "root", Start: 2048, End: 4095,
	})
	h, err := header.Decode(img[512:1024])
	if err != nil {
		t.Fatal(err)
	}
	h.SetEntriesLBA(3)
	copy(img[512:], h.Bytes())
	fake := device.NewFake()
	mem := fake.AddDisk(device.Disk{Path: "/dev/sdx"}, img)
	return fake, mem
}

func entriesLBA(t *testing.T, mem *backend.Memory) uint64 {
	t.Helper()
	h, err := header.Decode(mem.Bytes()[512:1024])
	if err != nil {
		t.Fatal(err)
	}
	if !h.Valid() {
		t.Errorf("header CRC is invalid")
	}
	return h.EntriesLBA
}

func execute(fake *device.Fake, in string, args ...string) (string, error) {
	var out bytes.Buffer
	cmd := newRootCmd(&app{in: strings.NewReader(in), out: &out, manager: fake})
	cmd.SetArgs(args)
	cmd.SetErr(&bytes.Buffer{})
	err := cmd.Execute()
	return out.String(), err
}

func TestRepair(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		args    []string
		err     error
		entries uint64
		output  string
	}{
		{"confirmed", "y\n", nil, nil, 2, "GPT header successfully repaired"},
		{"yes flag", "", []string{"--yes"}, nil, 2, "Partition entries LBA updated from 3 to 2"},
		{"declined", "n\n", nil, errAborted, 3, "Operation cancelled."},
		{"dry run", "", []string{"--dry-run", "-v"}, nil, 3, "No changes made (dry-run mode)."},
		{"other target", "", []string{"--yes", "--target-lba", "3"}, nil, 3, "already has the correct partition entries LBA value (3)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake, mem := brokenDisk(t)
			out, err := execute(fake, tt.in, append([]string{"--device", "/dev/sdx"}, tt.args...)...)
			if !errors.Is(err, tt.err) {
				t.Fatalf("error was %v instead of %v", err, tt.err)
			}
			if got := entriesLBA(t, mem); got != tt.entries {
				t.Errorf("entries LBA is %d instead of %d", got, tt.entries)
			}
			if !strings.Contains(out, tt.output) {
				t.Errorf("output does not contain %q:\n%s", tt.output, out)
			}
		})
	}
}

func TestRepairErrors(t *testing.T) {
	fake := device.NewFake()
	fake.Add("/dev/empty", 1<<20)
	if _, err := execute(fake, "", "--device", "/dev/empty", "--yes"); !errors.Is(err, header.ErrNoSignature) {
		t.Errorf("disk without GPT returned %v", err)
	}
	var oe *device.OpenError
	if _, err := execute(fake, "", "--device", "/dev/none"); !errors.As(err, &oe) {
		t.Errorf("missing disk returned %v", err)
	}
	if _, err := execute(fake, ""); err == nil {
		t.Errorf("missing --device flag accepted")
	}
	fake2, _ := brokenDisk(t)
	if _, err := execute(fake2, "", "--device", "/dev/sdx", "--yes", "--target-lba", "1"); !errors.Is(err, backend.ErrInvalidInput) {
		t.Errorf("target LBA 1 returned %v", err)
	}
}
