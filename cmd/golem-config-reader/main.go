// Command golem-config-reader prints the node configuration stored on a
// provisioned disk and optionally copies the partition's files out.
package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/golemfactory/golem-imager/config"
	"github.com/golemfactory/golem-imager/device"
	"github.com/golemfactory/golem-imager/internal/cli"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type app struct {
	out     io.Writer
	manager device.Manager

	disk      string
	uuid      string
	outputDir string
	verbose   bool
}

func newRootCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "golem-config-reader --disk <disk>",
		Short:         "Read the Golem configuration partition of a disk",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cli.SetupLogging(cmd.ErrOrStderr(), a.verbose)
			return a.run(cmd)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&a.disk, "disk", "d", "", "disk device or image to read")
	f.StringVarP(&a.uuid, "uuid", "u", config.DefaultPartitionUUID, "unique GUID of the configuration partition")
	f.StringVarP(&a.outputDir, "output-dir", "o", "", "copy the partition's files to this directory")
	f.BoolVarP(&a.verbose, "verbose", "v", false, "show debug logging")
	_ = cmd.MarkFlagRequired("disk")
	return cmd
}

func (a *app) run(cmd *cobra.Command) error {
	fmt.Fprintln(a.out, "Golem Config Reader")
	fmt.Fprintln(a.out, "===================")
	fmt.Fprintln(a.out)
	fmt.Fprintf(a.out, "Reading Golem configuration from disk: %s\n", a.disk)
	fmt.Fprintf(a.out, "Looking for partition UUID: %s\n", a.uuid)

	d, err := cli.Open(cmd.Context(), a.manager, a.disk, device.Options{ReadOnly: true})
	if err != nil {
		return err
	}
	defer d.Close()
	fmt.Fprintf(a.out, "Successfully opened disk: %s\n", a.disk)
	s, err := device.Storage(d)
	if err != nil {
		return err
	}

	files, err := config.Files(s, a.uuid)
	if err != nil {
		return err
	}
	names := config.Names(files)
	if len(names) == 0 {
		fmt.Fprintln(a.out, "No files found in the partition")
	} else {
		width := len("Filename")
		for _, n := range names {
			width = max(width, len(n))
		}
		fmt.Fprintln(a.out, "\nFiles found in config partition:")
		fmt.Fprintln(a.out, "--------------------------------")
		fmt.Fprintf(a.out, "%-*s %10s\n", width, "Filename", "Size")
		fmt.Fprintf(a.out, "%s %s\n", strings.Repeat("-", width), strings.Repeat("-", 10))
		for _, n := range names {
			fmt.Fprintf(a.out, "%-*s %10d\n", width, n, len(files[n]))
		}
		if a.outputDir != "" {
			if err := save(a.outputDir, files); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "\nFiles saved to: %s\n", a.outputDir)
		}
	}

	c, err := config.Read(s, a.uuid)
	if err != nil {
		fmt.Fprintf(a.out, "Failed to read configuration: %v\n", err)
		return err
	}
	fmt.Fprintln(a.out, "\nGolem Configuration:")
	fmt.Fprintln(a.out, "-------------------")
	fmt.Fprintf(a.out, "Payment Network: %s\n", c.PaymentNetwork)
	fmt.Fprintf(a.out, "Network Type:    %s\n", c.NetworkType)
	fmt.Fprintf(a.out, "Subnet:          %s\n", c.Subnet)
	fmt.Fprintf(a.out, "Wallet Address:  %s\n", c.WalletAddress)
	fmt.Fprintf(a.out, "GLM per Hour:    %s\n", c.GLMPerHour)
	if c.NodeName != "" {
		fmt.Fprintf(a.out, "Node Name:       %s\n", c.NodeName)
	}
	if len(c.SSHKeys) > 0 {
		fmt.Fprintf(a.out, "SSH Keys:        %d\n", len(c.SSHKeys))
	}
	fmt.Fprintln(a.out, "\nOperation completed")
	return nil
}

// save writes every file to dir. Names come from a FAT directory and never
// contain separators; anything that does is skipped.
func save(dir string, files map[string][]byte) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	for name, b := range files {
		if name != filepath.Base(name) || name == ".." {
			log.WithField("name", name).Warn("skipping file with unexpected name")
			continue
		}
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, b, 0o644); err != nil {
			return fmt.Errorf("failed to save file %s: %w", name, err)
		}
		log.WithField("path", p).Info("saved file")
	}
	return nil
}

func main() {
	a := &app{out: os.Stdout}
	if err := newRootCmd(a).Execute(); err != nil {
		cli.PrintError(os.Stderr, err)
		os.Exit(1)
	}
}
