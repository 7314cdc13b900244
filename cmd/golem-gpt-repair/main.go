// Command golem-gpt-repair fixes primary GPT headers whose partition entries
// LBA points somewhere other than where the entries are.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/golemfactory/golem-imager/device"
	"github.com/golemfactory/golem-imager/internal/cli"
	"github.com/golemfactory/golem-imager/partition/header"
	"github.com/golemfactory/golem-imager/util"
	"github.com/spf13/cobra"
)

var errAborted = errors.New("operation cancelled")

type app struct {
	in      io.Reader
	out     io.Writer
	manager device.Manager

	device  string
	target  uint64
	dryRun  bool
	yes     bool
	verbose bool
}

func newRootCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "golem-gpt-repair --device <device>",
		Short:         "Repair GPT headers with incorrect partition entry LBA values",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cli.SetupLogging(cmd.ErrOrStderr(), a.verbose)
			return a.run(cmd.Context())
		},
	}
	f := cmd.Flags()
	f.StringVarP(&a.device, "device", "d", "", `path to the disk device (e.g. /dev/sda, \\.\PhysicalDrive0)`)
	f.Uint64VarP(&a.target, "target-lba", "t", header.DefaultEntriesLBA, "target partition entries LBA value")
	f.BoolVarP(&a.dryRun, "dry-run", "n", false, "only diagnose the issue without making changes")
	f.BoolVarP(&a.yes, "yes", "y", false, "skip confirmation prompt (use with caution!)")
	f.BoolVarP(&a.verbose, "verbose", "v", false, "show verbose output")
	_ = cmd.MarkFlagRequired("device")
	return cmd
}

func (a *app) run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	h, err := a.analyze(ctx)
	if err != nil {
		return err
	}
	if h.EntriesLBA == a.target {
		fmt.Fprintf(a.out, "✓ GPT header already has the correct partition entries LBA value (%d)\n", a.target)
		return nil
	}
	if a.dryRun {
		fmt.Fprintln(a.out, "Issues found:")
		fmt.Fprintf(a.out, "  ✗ Partition entries LBA is incorrect: %d (should be %d)\n", h.EntriesLBA, a.target)
		if a.verbose {
			after := h.Clone()
			after.SetEntriesLBA(a.target)
			fmt.Fprint(a.out, util.DumpChanges(h.Bytes(), after.Bytes(), header.PrimaryLBA*header.SectorSize))
		}
		fmt.Fprintln(a.out, "\nNo changes made (dry-run mode).")
		return nil
	}
	if !a.yes {
		fmt.Fprintf(a.out, "\n⚠ WARNING: This operation will modify the GPT header on %s\n", a.device)
		fmt.Fprintf(a.out, "Current partition entries LBA: %d\n", h.EntriesLBA)
		fmt.Fprintf(a.out, "Target partition entries LBA: %d\n", a.target)
		fmt.Fprintln(a.out, "This may render your disk unbootable if done incorrectly.")
		fmt.Fprintln(a.out, "Make sure you have backups before proceeding.")
		fmt.Fprintln(a.out)
		if !cli.Confirm(a.in, a.out, "Do you want to continue?") {
			fmt.Fprintln(a.out, "Operation cancelled.")
			return errAborted
		}
	}
	return a.repair(ctx)
}

// analyze reads the primary header without write access and describes it.
func (a *app) analyze(ctx context.Context) (*header.Header, error) {
	fmt.Fprintf(a.out, "Analyzing GPT header on device: %s\n", a.device)
	d, err := cli.Open(ctx, a.manager, a.device, device.Options{ReadOnly: true})
	if err != nil {
		return nil, err
	}
	defer d.Close()
	s, err := device.Storage(d)
	if err != nil {
		return nil, err
	}
	h, err := header.ReadPrimary(s)
	if errors.Is(err, header.ErrNoSignature) {
		return nil, fmt.Errorf("invalid GPT signature, not a GPT disk or damaged header: %w", err)
	}
	if err != nil {
		return nil, err
	}
	if a.verbose {
		fmt.Fprintf(a.out, "  GPT Revision: %X.%02X\n", (h.Revision>>16)&0xFFFF, h.Revision&0xFFFF)
		fmt.Fprintf(a.out, "  Header Size: %d bytes\n", h.Size)
		fmt.Fprintf(a.out, "  Header CRC32: %08X\n", h.CRC)
		fmt.Fprintf(a.out, "  Current LBA: %d\n", h.CurrentLBA)
		fmt.Fprintf(a.out, "  Backup LBA: %d\n", h.BackupLBA)
		fmt.Fprintf(a.out, "  First Usable LBA: %d\n", h.FirstUsableLBA)
		fmt.Fprintf(a.out, "  Last Usable LBA: %d\n", h.LastUsableLBA)
		fmt.Fprintf(a.out, "  Disk GUID: %s\n", h.DiskGUID)
		fmt.Fprintf(a.out, "  Partition Entries LBA: %d\n", h.EntriesLBA)
		fmt.Fprintf(a.out, "  Number of Partition Entries: %d\n", h.EntryCount)
		fmt.Fprintf(a.out, "  Size of Partition Entry: %d bytes\n", h.EntrySize)
		fmt.Fprintf(a.out, "  Partition Entry Array CRC32: %08X\n", h.EntriesCRC)
	}
	if !h.Valid() {
		fmt.Fprintln(a.out, "⚠ Warning: header CRC32 does not match its contents")
	}
	if h.CurrentLBA != header.PrimaryLBA {
		fmt.Fprintf(a.out, "⚠ Warning: Current LBA (%d) is not the expected value for primary GPT header (%d)\n", h.CurrentLBA, header.PrimaryLBA)
	}
	if h.EntriesLBA == header.DefaultEntriesLBA {
		fmt.Fprintln(a.out, "✓ Partition entries start at expected location (LBA 2)")
	} else {
		fmt.Fprintf(a.out, "⚠ Partition entries start at non-standard location: LBA %d\n", h.EntriesLBA)
		fmt.Fprintln(a.out, "  This may cause compatibility issues with some tools and operating systems")
	}
	return h, nil
}

func (a *app) repair(ctx context.Context) error {
	fmt.Fprintf(a.out, "Repairing GPT header on device: %s\n", a.device)
	d, err := cli.Open(ctx, a.manager, a.device, device.Options{EditMode: true})
	if err != nil {
		return err
	}
	defer d.Close()
	if err := d.PreWriteChecks(); err != nil {
		return err
	}
	s, err := device.Storage(d)
	if err != nil {
		return err
	}
	r, err := header.Repair(s, a.target, false)
	if err != nil {
		return err
	}
	if err := device.Finish(d, s); err != nil {
		return err
	}
	if !r.NeedsRepair {
		fmt.Fprintf(a.out, "✓ GPT header already has the correct partition entries LBA value (%d)\n", a.target)
		return nil
	}
	if a.verbose {
		fmt.Fprintf(a.out, "  Original CRC32: %08X\n", r.Before.CRC)
		fmt.Fprintf(a.out, "  New CRC32: %08X\n", r.After.CRC)
		fmt.Fprint(a.out, util.DumpChanges(r.Before.Bytes(), r.After.Bytes(), header.PrimaryLBA*header.SectorSize))
	}
	fmt.Fprintf(a.out, "  Updated partition entries LBA from %d to %d\n", r.Before.EntriesLBA, a.target)
	fmt.Fprintf(a.out, "  Updated header CRC32 from %08X to %08X\n", r.Before.CRC, r.After.CRC)
	fmt.Fprintln(a.out, "\n✓ GPT header successfully repaired")
	fmt.Fprintf(a.out, "  Partition entries LBA updated from %d to %d\n", r.Before.EntriesLBA, a.target)
	return nil
}

func main() {
	a := &app{in: os.Stdin, out: os.Stdout}
	if err := newRootCmd(a).Execute(); err != nil {
		if !errors.Is(err, errAborted) {
			cli.PrintError(os.Stderr, err)
		}
		os.Exit(1)
	}
}
