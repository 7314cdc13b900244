package testhelper

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/diskfs/go-diskfs/partition/gpt"
)

// Partition describes one entry of a test partition table, in LBAs.
type Partition struct {
	GUID  string
	Name  string
	Start uint64
	End   uint64
}

// GPTImage writes a protective MBR and GPT holding parts to a new image file of
// size bytes and returns its contents.
func GPTImage(t testing.TB, size int64, sectorSize int, parts ...Partition) []byte {
	t.Helper()
	p := filepath.Join(t.TempDir(), "gpt.img")
	f, err := os.Create(p)
	if err != nil {
		t.Fatalf("could not create image %s: %v", p, err)
	}
	defer f.Close()
	if err := f.Truncate(size); err != nil {
		t.Fatalf("could not size image %s: %v", p, err)
	}
	table := &gpt.Table{
		LogicalSectorSize:  sectorSize,
		PhysicalSectorSize: sectorSize,
		ProtectiveMBR:      true,
	}
	for i, part := range parts {
		table.Partitions = append(table.Partitions, &gpt.Partition{
			Index: i + 1,
			Start: part.Start,
			End:   part.End,
			Type:  gpt.LinuxFilesystem,
			Name:  part.Name,
			GUID:  part.GUID,
		})
	}
	if err := table.Write(f, size); err != nil {
		t.Fatalf("error writing partition table: %v", err)
	}
	b, err := os.ReadFile(p)
	if err != nil {
		t.Fatalf("could not read back image %s: %v", p, err)
	}
	return b
}
