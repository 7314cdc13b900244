package header_test

import (
	"bytes"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"testing"

	"github.com/golemfactory/golem-imager/backend"
	"github.com/golemfactory/golem-imager/partition"
	"github.com/golemfactory/golem-imager/partition/header"
	"github.com/golemfactory/golem-imager/testhelper"
)

const (
	tenMB    = 10 * 1024 * 1024
	diskUUID = "33b921b8-edc5-46a0-8baa-d0b7ad84fc71"
)

func gptDisk(t *testing.T, extra int) *backend.Memory {
	b := testhelper.GPTImage(t, tenMB, 512,
		testhelper.Partition{GUID: diskUUID, Name: "config", Start: 2048, End: 4095},
	)
	return backend.NewNamedMemory("disk.img", append(b, make([]byte, extra)...), 512)
}

// crcOf computes the header CRC independently of the header package.
func crcOf(sector []byte) uint32 {
	size := binary.LittleEndian.Uint32(sector[12:16])
	b := append([]byte(nil), sector[:size]...)
	copy(b[16:20], []byte{0, 0, 0, 0})
	return crc32.ChecksumIEEE(b)
}

func sectorAt(m *backend.Memory, lba uint64) []byte {
	return m.Bytes()[lba*512 : (lba+1)*512]
}

func TestDecode(t *testing.T) {
	dev := gptDisk(t, 0)
	h, err := header.ReadPrimary(dev)
	if err != nil {
		t.Fatal(err)
	}
	if h.CurrentLBA != 1 {
		t.Errorf("current LBA %d instead of 1", h.CurrentLBA)
	}
	if h.BackupLBA != tenMB/512-1 {
		t.Errorf("backup LBA %d instead of %d", h.BackupLBA, tenMB/512-1)
	}
	if h.EntriesLBA != 2 {
		t.Errorf("entries LBA %d instead of 2", h.EntriesLBA)
	}
	if h.Size != 92 || h.EntryCount != 128 || h.EntrySize != 128 {
		t.Errorf("size %d, %d entries of %d bytes", h.Size, h.EntryCount, h.EntrySize)
	}
	if !h.Valid() {
		t.Errorf("CRC %08X does not match computed %08X", h.CRC, h.ComputeCRC())
	}
	if h.CRC != crcOf(sectorAt(dev, 1)) {
		t.Errorf("decoded CRC %08X differs from the sector's", h.CRC)
	}
	if h.EntriesSectorCount() != 32 {
		t.Errorf("entries span %d sectors instead of 32", h.EntriesSectorCount())
	}

	t.Run("no signature", func(t *testing.T) {
		_, err := header.Decode(make([]byte, 512))
		if !errors.Is(err, header.ErrNoSignature) {
			t.Errorf("error was %v instead of ErrNoSignature", err)
		}
	})
	t.Run("short sector", func(t *testing.T) {
		if _, err := header.Decode([]byte(header.Signature)); err == nil {
			t.Errorf("decoded a truncated sector")
		}
	})
	t.Run("bad header size", func(t *testing.T) {
		b := append([]byte(nil), sectorAt(dev, 1)...)
		binary.LittleEndian.PutUint32(b[12:16], 1024)
		if _, err := header.Decode(b); err == nil {
			t.Errorf("accepted header size 1024")
		}
	})
}

// breakEntriesLBA points the primary header at lba with a valid CRC.
func breakEntriesLBA(t *testing.T, dev *backend.Memory, lba uint64) {
	s := sectorAt(dev, 1)
	binary.LittleEndian.PutUint64(s[72:80], lba)
	binary.LittleEndian.PutUint32(s[16:20], crcOf(s))
}

func TestRepair(t *testing.T) {
	t.Run("entries at 3", func(t *testing.T) {
		dev := gptDisk(t, 0)
		breakEntriesLBA(t, dev, 3)
		before := append([]byte(nil), sectorAt(dev, 1)...)

		r, err := header.Repair(dev, 2, false)
		if err != nil {
			t.Fatal(err)
		}
		if !r.NeedsRepair || !r.Repaired {
			t.Errorf("report %+v instead of repaired", r)
		}
		after := sectorAt(dev, 1)
		if got := binary.LittleEndian.Uint64(after[72:80]); got != 2 {
			t.Errorf("entries LBA %d instead of 2", got)
		}
		if got, want := binary.LittleEndian.Uint32(after[16:20]), crcOf(after); got != want {
			t.Errorf("stored CRC %08X instead of %08X", got, want)
		}
		for i := range before {
			if (i >= 16 && i < 20) || (i >= 72 && i < 80) {
				continue
			}
			if before[i] != after[i] {
				t.Errorf("byte %d changed from %x to %x", i, before[i], after[i])
			}
		}
		if _, err := partition.Locate(dev, diskUUID); err != nil {
			t.Errorf("repaired table could not be read: %v", err)
		}
	})
	t.Run("dry run", func(t *testing.T) {
		dev := gptDisk(t, 0)
		breakEntriesLBA(t, dev, 3)
		before := append([]byte(nil), dev.Bytes()...)
		r, err := header.Repair(dev, 2, true)
		if err != nil {
			t.Fatal(err)
		}
		if !r.NeedsRepair || r.Repaired || r.After.EntriesLBA != 2 {
			t.Errorf("dry run report %+v", r)
		}
		if !bytes.Equal(before, dev.Bytes()) {
			t.Errorf("dry run modified the device")
		}
	})
	t.Run("already correct", func(t *testing.T) {
		dev := gptDisk(t, 0)
		r, err := header.Repair(dev, 2, false)
		if err != nil {
			t.Fatal(err)
		}
		if r.NeedsRepair || r.After != nil {
			t.Errorf("report %+v for a correct header", r)
		}
	})
	t.Run("not gpt", func(t *testing.T) {
		_, err := header.Repair(backend.NewMemory(make([]byte, 1<<20), 512), 2, false)
		if !errors.Is(err, header.ErrNoSignature) {
			t.Errorf("error was %v instead of ErrNoSignature", err)
		}
	})
	t.Run("invalid target", func(t *testing.T) {
		_, err := header.Repair(gptDisk(t, 0), 1, false)
		if !errors.Is(err, backend.ErrInvalidInput) {
			t.Errorf("error was %v instead of invalid input", err)
		}
	})
}

func TestRelocateBackup(t *testing.T) {
	const extra = 2 * 1024 * 1024
	dev := gptDisk(t, extra)
	last := uint64(tenMB+extra)/512 - 1
	oldEntries := append([]byte(nil), dev.Bytes()[2*512:34*512]...)

	moved, err := header.RelocateBackup(dev)
	if err != nil {
		t.Fatal(err)
	}
	if !moved {
		t.Fatalf("backup header was not moved")
	}

	primary := sectorAt(dev, 1)
	if got := binary.LittleEndian.Uint64(primary[32:40]); got != last {
		t.Errorf("primary points at backup LBA %d instead of %d", got, last)
	}
	if got, want := binary.LittleEndian.Uint32(primary[16:20]), crcOf(primary); got != want {
		t.Errorf("primary CRC %08X instead of %08X", got, want)
	}

	backup := sectorAt(dev, last)
	if string(backup[:8]) != header.Signature {
		t.Fatalf("no header at the last LBA")
	}
	if got := binary.LittleEndian.Uint64(backup[24:32]); got != last {
		t.Errorf("backup current LBA %d instead of %d", got, last)
	}
	if got := binary.LittleEndian.Uint64(backup[72:80]); got != last-32 {
		t.Errorf("backup entries LBA %d instead of %d", got, last-32)
	}
	if got, want := binary.LittleEndian.Uint32(backup[16:20]), crcOf(backup); got != want {
		t.Errorf("backup CRC %08X instead of %08X", got, want)
	}
	entries := dev.Bytes()[(last-32)*512 : last*512]
	if !bytes.Equal(entries, oldEntries) {
		t.Errorf("backup partition entries differ from the primary ones")
	}

	moved, err = header.RelocateBackup(dev)
	if err != nil || moved {
		t.Errorf("second relocation returned %v, %v instead of false, nil", moved, err)
	}

	t.Run("no gpt", func(t *testing.T) {
		moved, err := header.RelocateBackup(backend.NewMemory(make([]byte, 1<<20), 512))
		if err != nil || moved {
			t.Errorf("relocation on a blank device returned %v, %v", moved, err)
		}
	})
}
