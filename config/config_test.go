package config_test

import (
	"bytes"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/golemfactory/golem-imager/backend"
	"github.com/golemfactory/golem-imager/config"
	"github.com/golemfactory/golem-imager/testhelper"
)

const (
	diskSize   = 40 * 1024 * 1024
	partStart  = 4096
	partEnd    = partStart + 32768
	configUUID = config.DefaultPartitionUUID
)

// configDisk has a 16MiB unformatted config partition.
func configDisk(t *testing.T) *backend.Memory {
	b := testhelper.GPTImage(t, diskSize, 512,
		testhelper.Partition{GUID: "8e01dc62-9fb2-4c9d-811d-77b96b9dbde4", Name: "root", Start: 2048, End: partStart - 1},
		testhelper.Partition{GUID: configUUID, Name: "config", Start: partStart, End: partEnd},
	)
	return backend.NewNamedMemory("disk.img", b, 512)
}

func TestWriteRead(t *testing.T) {
	dev := configDisk(t)
	before := append([]byte(nil), dev.Bytes()...)
	want := &config.Config{
		PaymentNetwork:      config.Mainnet,
		NetworkType:         config.Hybrid,
		Subnet:              "golem-test",
		WalletAddress:       "0x1234567890abcdef1234567890abcdef12345678",
		GLMPerHour:          "1.5",
		AcceptedTerms:       true,
		NodeName:            "node-1",
		NonInteractive:      true,
		SSHKeys:             []string{"ssh-ed25519 AAAA one", "ssh-rsa BBBB two"},
		ConfigurationServer: "https://config.example.com",
		CentralNetHost:      "relay.example.com:7464",
		MetricsURL:          "https://metrics.example.com/",
		MetricsJobName:      "job",
		MetricsGroup:        "group",
	}
	if err := config.Write(dev, configUUID, want); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	got, err := config.Read(dev, configUUID)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("read %+v instead of %+v", got, want)
	}

	offset := partStart * 512
	size := (partEnd - partStart) * 512
	if !bytes.Equal(before[:offset], dev.Bytes()[:offset]) {
		t.Errorf("bytes before the config partition changed")
	}
	if !bytes.Equal(before[offset+size:], dev.Bytes()[offset+size:]) {
		t.Errorf("bytes after the config partition changed")
	}

	files, err := config.Files(dev, configUUID)
	if err != nil {
		t.Fatal(err)
	}
	if names := config.Names(files); !reflect.DeepEqual(names, []string{config.EnvFile, config.TOMLFile}) {
		t.Errorf("partition holds %v", names)
	}
	if !bytes.Equal(files[config.EnvFile], want.Env()) {
		t.Errorf("golem.env holds %q instead of %q", files[config.EnvFile], want.Env())
	}
}

func TestReadAfterWrite(t *testing.T) {
	dev := configDisk(t)
	c := config.Default()
	c.PaymentNetwork = config.Mainnet
	c.NetworkType = config.Hybrid
	c.Subnet = "devnet"
	c.WalletAddress = "0xabc"
	if err := config.Write(dev, configUUID, c); err != nil {
		t.Fatal(err)
	}
	got, err := config.Read(dev, configUUID)
	var fe *config.FormatError
	if errors.As(err, &fe) {
		t.Fatalf("freshly written partition reported as unformatted or corrupt: %v", err)
	}
	if err != nil {
		t.Fatal(err)
	}
	if got.PaymentNetwork != config.Mainnet || got.NetworkType != config.Hybrid || got.Subnet != "devnet" || got.WalletAddress != "0xabc" {
		t.Errorf("read %+v after writing %+v", got, c)
	}
	files, err := config.Files(dev, configUUID)
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 2 {
		t.Errorf("root directory listed %v", config.Names(files))
	}
}

func TestWriteReformats(t *testing.T) {
	dev := configDisk(t)
	first := config.Default()
	first.WalletAddress = "0xfirst"
	first.NodeName = "first"
	if err := config.Write(dev, configUUID, first); err != nil {
		t.Fatal(err)
	}
	second := config.Default()
	second.WalletAddress = "0xsecond"
	if err := config.Write(dev, configUUID, second); err != nil {
		t.Fatal(err)
	}
	got, err := config.Read(dev, configUUID)
	if err != nil {
		t.Fatal(err)
	}
	if got.WalletAddress != "0xsecond" || got.NodeName != "" {
		t.Errorf("second write left wallet %q node %q", got.WalletAddress, got.NodeName)
	}
}

func TestReadUnformatted(t *testing.T) {
	t.Run("no format", func(t *testing.T) {
		_, err := config.Read(configDisk(t), configUUID)
		var fe *config.FormatError
		if !errors.As(err, &fe) || !fe.NeedsFormat {
			t.Errorf("error was %v instead of a needs-format FormatError", err)
		}
	})
	t.Run("format if needed", func(t *testing.T) {
		dev := configDisk(t)
		c, err := config.ReadWithOptions(dev, configUUID, config.ReadOptions{FormatIfNeeded: true})
		if err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(c, config.Default()) {
			t.Errorf("formatted partition read as %+v instead of defaults", c)
		}
		sig := dev.Bytes()[partStart*512+510 : partStart*512+512]
		if sig[0] != 0x55 || sig[1] != 0xAA {
			t.Errorf("formatted partition was not written back")
		}
		if _, err := config.Read(dev, configUUID); err != nil {
			t.Errorf("read after format failed: %v", err)
		}
	})
	t.Run("missing partition", func(t *testing.T) {
		_, err := config.Read(configDisk(t), "00000000-0000-0000-0000-000000000001")
		if err == nil || !strings.Contains(err.Error(), "not found") {
			t.Errorf("error was %v instead of not found", err)
		}
	})
}

func TestWriteInvalid(t *testing.T) {
	c := config.Default()
	c.Subnet = "bad\nsubnet"
	if err := config.Write(configDisk(t), configUUID, c); !errors.Is(err, backend.ErrInvalidInput) {
		t.Errorf("error was %v instead of invalid input", err)
	}
}
