// Command golem-partition-lister lists the GPT partitions of a disk, or dumps
// and decodes its first sectors when the table cannot be parsed.
package main

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/golemfactory/golem-imager/backend"
	"github.com/golemfactory/golem-imager/device"
	"github.com/golemfactory/golem-imager/internal/cli"
	"github.com/golemfactory/golem-imager/partition"
	"github.com/golemfactory/golem-imager/partition/header"
	"github.com/golemfactory/golem-imager/util"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

const (
	// scanSectors covers the protective MBR, the header and 128 entries.
	scanSectors  = 34
	dumpSectors  = 3
	entrySize    = 128
	mbrSignature = 0xAA55
	gptProtType  = 0xEE
)

var typeNames = map[string]string{
	"c12a7328-f81f-11d2-ba4b-00a0c93ec93b": "EFI System",
	"0fc63daf-8483-4772-8e79-3d69d8477de4": "Linux Filesystem",
	"0657fd6d-a4ab-43c4-84e5-0933c84b4f4f": "Linux Swap",
	"ebd0a0a2-b9e5-4433-87c0-68b6b72699c7": "Windows Data",
	"48465300-0000-11aa-aa11-00306543ecac": "Apple HFS+",
	"7c3457ef-0000-11aa-aa11-00306543ecac": "APFS",
}

func typeName(t string) string {
	if n, ok := typeNames[strings.ToLower(t)]; ok {
		return n
	}
	return "Unknown"
}

type app struct {
	out     io.Writer
	manager device.Manager

	device  string
	raw     bool
	verbose bool
	json    bool
}

func newRootCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "golem-partition-lister --device <device>",
		Short:         "List partitions on a disk",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cli.SetupLogging(cmd.ErrOrStderr(), a.verbose)
			d, err := cli.Open(cmd.Context(), a.manager, a.device, device.Options{ReadOnly: true})
			if err != nil {
				return err
			}
			defer d.Close()
			s, err := device.Storage(d)
			if err != nil {
				return err
			}
			if a.raw {
				return a.dump(s)
			}
			return a.list(s)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&a.device, "device", "d", "", `path to the disk device (e.g. /dev/sda, \\.\PhysicalDrive0)`)
	f.BoolVar(&a.raw, "raw", false, "dump and decode the first sectors instead of parsing the table")
	f.BoolVarP(&a.verbose, "verbose", "v", false, "show detailed partition information")
	f.BoolVar(&a.json, "json", false, "print the partition table as JSON")
	_ = cmd.MarkFlagRequired("device")
	return cmd
}

func (a *app) list(s backend.Storage) error {
	t, err := partition.Read(s)
	if err != nil {
		return err
	}
	if a.json {
		enc := json.NewEncoder(a.out)
		enc.SetIndent("", "  ")
		return enc.Encode(t)
	}
	if a.verbose {
		fmt.Fprintf(a.out, "Device: %s\n", a.device)
		fmt.Fprintf(a.out, "Disk GUID: %s\n", t.DiskGUID)
		fmt.Fprintf(a.out, "Logical sector size: %d\n", t.LogicalSectorSize)
	}
	if len(t.Partitions) == 0 {
		fmt.Fprintf(a.out, "No partitions found on device: %s\n", a.device)
		return nil
	}
	fmt.Fprintf(a.out, "Found %d partitions on device: %s\n", len(t.Partitions), a.device)
	for i, p := range t.Partitions {
		fmt.Fprintf(a.out, "%d. Partition %d - %s: %s (%.2f MB)\n", i+1, i+1, p.Name, p.UUID, float64(p.Size)/(1<<20))
		if a.verbose {
			fmt.Fprintf(a.out, "   Type: %s (%s)\n", typeName(p.Type), strings.ToLower(p.Type))
			fmt.Fprintf(a.out, "   Range: LBA %d - %d, offset %d\n", p.FirstLBA, p.LastLBA, p.Offset)
		}
	}
	return nil
}

// dump decodes the protective MBR, the primary header and the entries without
// relying on the table parser, then prints the first sectors in hex.
func (a *app) dump(s backend.Storage) error {
	fmt.Fprintf(a.out, "Dumping raw sectors from device: %s\n", a.device)
	buf := make([]byte, scanSectors*header.SectorSize)
	n, err := backend.ReadFullAt(s, buf, 0)
	if err != nil && n < 2*header.SectorSize {
		return fmt.Errorf("could not read the first sectors of %s: %w", a.device, err)
	}
	buf = buf[:n-n%header.SectorSize]
	fmt.Fprintf(a.out, "Read %d bytes from device (%d sectors)\n", len(buf), len(buf)/header.SectorSize)

	a.dumpMBR(buf[:header.SectorSize])
	h := a.dumpHeader(buf[header.SectorSize : 2*header.SectorSize])
	if h != nil {
		a.dumpEntries(h, buf)
	}

	fmt.Fprintln(a.out, "\n=== RAW SECTOR DATA ===")
	count := min(dumpSectors, len(buf)/header.SectorSize)
	fmt.Fprintf(a.out, "Displaying first %d sectors:\n", count)
	for i := 0; i < count; i++ {
		fmt.Fprintf(a.out, "\nSector %d:\n", i)
		sector := buf[i*header.SectorSize : (i+1)*header.SectorSize]
		fmt.Fprint(a.out, util.DumpSector(sector, util.DumpOptions{Base: int64(i * header.SectorSize), ASCII: true}))
	}
	return nil
}

func (a *app) dumpMBR(b []byte) {
	fmt.Fprintln(a.out, "\n=== MBR SECTOR (LBA 0) ANALYSIS ===")
	if binary.LittleEndian.Uint16(b[510:]) != mbrSignature {
		fmt.Fprintln(a.out, "✗ Invalid MBR boot signature - not a standard MBR")
		return
	}
	fmt.Fprintln(a.out, "✓ Valid MBR boot signature (55 AA) found")
	if b[446+4] == gptProtType {
		fmt.Fprintln(a.out, "✓ Protective MBR for GPT detected (partition type EE)")
	} else {
		fmt.Fprintf(a.out, "✗ No protective MBR for GPT (partition type: %02X)\n", b[446+4])
		fmt.Fprintln(a.out, "  This might be a standard MBR disk, not GPT")
	}
	fmt.Fprintln(a.out, "\nMBR Partition Table:")
	for i := 0; i < 4; i++ {
		e := b[446+i*16 : 446+(i+1)*16]
		if e[4] == 0 {
			continue
		}
		start := binary.LittleEndian.Uint32(e[8:])
		sectors := binary.LittleEndian.Uint32(e[12:])
		fmt.Fprintf(a.out, "  Partition %d: Type %02X, Start Sector: %d, Sectors: %d (%dMB)\n",
			i+1, e[4], start, sectors, uint64(sectors)*header.SectorSize/(1<<20))
	}
}

func (a *app) dumpHeader(b []byte) *header.Header {
	fmt.Fprintln(a.out, "\n=== PRIMARY GPT HEADER (LBA 1) ANALYSIS ===")
	h, err := header.Decode(b)
	if errors.Is(err, header.ErrNoSignature) {
		fmt.Fprintln(a.out, "✗ Invalid GPT signature - not a GPT disk or damaged header")
		return nil
	}
	if err != nil {
		fmt.Fprintf(a.out, "✗ Damaged GPT header: %v\n", err)
		return nil
	}
	fmt.Fprintln(a.out, "✓ Valid GPT signature ('EFI PART') found")
	fmt.Fprintf(a.out, "  GPT Revision: %X.%02X\n", (h.Revision>>16)&0xFFFF, h.Revision&0xFFFF)
	fmt.Fprintf(a.out, "  Header Size: %d bytes\n", h.Size)
	fmt.Fprintf(a.out, "  Current LBA: %d\n", h.CurrentLBA)
	fmt.Fprintf(a.out, "  Backup LBA: %d\n", h.BackupLBA)
	fmt.Fprintf(a.out, "  First Usable LBA: %d\n", h.FirstUsableLBA)
	fmt.Fprintf(a.out, "  Last Usable LBA: %d\n", h.LastUsableLBA)
	fmt.Fprintf(a.out, "  Partition Entries LBA: %d\n", h.EntriesLBA)
	fmt.Fprintf(a.out, "  Number of Partition Entries: %d\n", h.EntryCount)
	fmt.Fprintf(a.out, "  Size of Partition Entry: %d bytes\n", h.EntrySize)
	if h.Valid() {
		fmt.Fprintln(a.out, "✓ Header CRC32 matches")
	} else {
		fmt.Fprintf(a.out, "✗ Header CRC32 %08X does not match contents (%08X)\n", h.CRC, h.ComputeCRC())
	}
	if h.EntriesLBA == header.DefaultEntriesLBA {
		fmt.Fprintln(a.out, "✓ Partition entries start at expected location (LBA 2)")
	} else {
		fmt.Fprintf(a.out, "! Partition entries start at non-standard location: LBA %d\n", h.EntriesLBA)
	}
	return h
}

// dumpEntries lists the used entries found in buf, which starts at LBA 0.
func (a *app) dumpEntries(h *header.Header, buf []byte) {
	fmt.Fprintln(a.out, "\n=== GPT PARTITION ENTRIES ANALYSIS ===")
	size := int(h.EntrySize)
	if size < entrySize {
		size = entrySize
	}
	start := int(h.EntriesLBA) * header.SectorSize
	count := 0
	for i := 0; i < int(h.EntryCount); i++ {
		off := start + i*size
		if off+entrySize > len(buf) {
			break
		}
		e := buf[off : off+entrySize]
		typ := mixedGUID(e[0:16])
		if typ == uuid.Nil {
			continue
		}
		count++
		first := binary.LittleEndian.Uint64(e[32:])
		last := binary.LittleEndian.Uint64(e[40:])
		var mb float64
		if last >= first {
			mb = float64((last-first+1)*header.SectorSize) / (1 << 20)
		}
		fmt.Fprintf(a.out, "  Partition %d: %s - %s\n", i+1, entryName(e[56:128]), typeName(typ.String()))
		fmt.Fprintf(a.out, "    Type GUID: %s\n", typ)
		fmt.Fprintf(a.out, "    Part GUID: %s\n", mixedGUID(e[16:32]))
		fmt.Fprintf(a.out, "    Range: LBA %d - %d (%.2f MB)\n", first, last, mb)
	}
	if count == 0 {
		fmt.Fprintln(a.out, "No valid partition entries found in the examined sectors.")
		fmt.Fprintln(a.out, "This could indicate a non-GPT disk or the data structure is damaged.")
		return
	}
	fmt.Fprintf(a.out, "Total partitions found: %d\n", count)
}

// mixedGUID decodes a GUID stored with its first three fields little endian.
func mixedGUID(b []byte) uuid.UUID {
	var u uuid.UUID
	copy(u[:], b)
	u[0], u[1], u[2], u[3] = b[3], b[2], b[1], b[0]
	u[4], u[5] = b[5], b[4]
	u[6], u[7] = b[7], b[6]
	return u
}

// entryName decodes the UTF-16LE partition name.
func entryName(b []byte) string {
	var sb strings.Builder
	for i := 0; i+1 < len(b); i += 2 {
		c := binary.LittleEndian.Uint16(b[i:])
		if c == 0 {
			break
		}
		sb.WriteRune(rune(c))
	}
	return sb.String()
}

func main() {
	a := &app{out: os.Stdout}
	if err := newRootCmd(a).Execute(); err != nil {
		cli.PrintError(os.Stderr, err)
		os.Exit(1)
	}
}
