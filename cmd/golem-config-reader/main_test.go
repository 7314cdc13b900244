package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/golemfactory/golem-imager/backend"
	"github.com/golemfactory/golem-imager/config"
	"github.com/golemfactory/golem-imager/device"
	"github.com/golemfactory/golem-imager/partition"
	"github.com/golemfactory/golem-imager/testhelper"
)

func provisioned(t *testing.T) *device.Fake {
	img := testhelper.GPTImage(t, 24<<20, 512,
		testhelper.Partition{GUID: "8e01dc62-9fb2-4c9d-811d-77b96b9dbde4", Name: "root", Start: 2048, End: 4095},
		testhelper.Partition{GUID: config.DefaultPartitionUUID, Name: "config", Start: 4096, End: 4096 + 32768},
	)
	mem := backend.NewNamedMemory("disk.img", img, 512)
	c := config.Default()
	c.WalletAddress = "0xabc"
	c.NodeName = "rig-7"
	if err := config.Write(mem, config.DefaultPartitionUUID, c); err != nil {
		t.Fatal(err)
	}
	fake := device.NewFake()
	fake.AddDisk(device.Disk{Path: "/dev/sdx"}, mem.Bytes())
	return fake
}

func execute(fake *device.Fake, args ...string) (string, error) {
	var out bytes.Buffer
	cmd := newRootCmd(&app{out: &out, manager: fake})
	cmd.SetArgs(args)
	cmd.SetErr(&bytes.Buffer{})
	err := cmd.Execute()
	return out.String(), err
}

func TestReader(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	out, err := execute(provisioned(t), "--disk", "/dev/sdx", "--output-dir", dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		"Looking for partition UUID: " + config.DefaultPartitionUUID,
		"Files found in config partition:",
		"Payment Network: testnet",
		"Wallet Address:  0xabc",
		"Node Name:       rig-7",
		"Operation completed",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output does not contain %q:\n%s", want, out)
		}
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Errorf("saved %d files instead of 2", len(entries))
	}
	for _, e := range entries {
		b, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			t.Fatal(err)
		}
		if strings.EqualFold(e.Name(), config.TOMLFile) && !bytes.Contains(b, []byte("0xabc")) {
			t.Errorf("saved %s holds %q", e.Name(), b)
		}
	}
}

func TestReaderErrors(t *testing.T) {
	fake := provisioned(t)
	_, err := execute(fake, "--disk", "/dev/sdx", "--uuid", "0d4b6f3c-1111-2222-3333-444455556666")
	var nf *partition.NotFoundError
	if !errors.As(err, &nf) {
		t.Errorf("unknown partition returned %v", err)
	}
	var oe *device.OpenError
	if _, err := execute(fake, "--disk", "/dev/none"); !errors.As(err, &oe) {
		t.Errorf("missing disk returned %v", err)
	}
}
