package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/golemfactory/golem-imager/config"
	"github.com/golemfactory/golem-imager/device"
	"github.com/golemfactory/golem-imager/imaging"
	"github.com/golemfactory/golem-imager/internal/cli"
	"github.com/spf13/cobra"
)

var errAborted = errors.New("operation cancelled")

type writeOptions struct {
	device   string
	image    string
	hash     string
	size     uint64
	verify   bool
	yes      bool
	noConfig bool
	uuid     string
	settings settings
}

func newWriteCmd(a *app) *cobra.Command {
	var o writeOptions
	cmd := &cobra.Command{
		Use:   "write --device <device> --image <image>",
		Short: "Write a compressed image to a disk and configure it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.write(cmd, o)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&o.device, "device", "d", "", "target disk")
	f.StringVarP(&o.image, "image", "i", "", "xz, lz4 or raw image file")
	f.StringVar(&o.hash, "hash", "", "expected SHA-256 of the uncompressed image")
	f.Uint64Var(&o.size, "size", 0, "expected size of the uncompressed image in bytes")
	f.BoolVar(&o.verify, "verify", true, "read the image back after writing")
	f.BoolVarP(&o.yes, "yes", "y", false, "do not ask for confirmation")
	f.BoolVar(&o.noConfig, "no-config", false, "leave the configuration partition alone")
	f.StringVar(&o.uuid, "uuid", config.DefaultPartitionUUID, "unique GUID of the configuration partition")
	o.settings.register(f)
	_ = cmd.MarkFlagRequired("device")
	_ = cmd.MarkFlagRequired("image")
	return cmd
}

func (a *app) write(cmd *cobra.Command, o writeOptions) error {
	var cfg *config.Config
	if !o.noConfig {
		cfg = config.Default()
		o.settings.apply(cmd.Flags(), cfg)
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	src, err := os.Open(o.image)
	if err != nil {
		return fmt.Errorf("could not open image: %w", err)
	}
	defer src.Close()

	if !o.yes {
		fmt.Fprintf(a.out, "All data on %s will be destroyed.\n", o.device)
		if !cli.Confirm(a.in, a.out, "Do you want to continue?") {
			return errAborted
		}
	}
	h, err := cli.Open(cmd.Context(), a.devices(), o.device, device.Options{})
	if err != nil {
		return err
	}
	defer h.Close()

	job := imaging.Start(h, src, nil, imaging.Options{
		ExpectedSize: o.size,
		ExpectedHash: o.hash,
		Verify:       o.verify,
		Config:       cfg,
		ConfigUUID:   o.uuid,
	})
	done := watch(cmd.Context(), job.Cancel)
	defer done()
	r := &reporter{out: a.out}
	for p := range job.Progress() {
		r.report(p.Phase.String(), p.Fraction, p.Bytes)
	}
	res, err := job.Wait()
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Wrote %s (%s image), SHA-256 %s\n", cli.Size(res.BytesWritten), res.Format, res.Hash)
	if res.Verified {
		fmt.Fprintln(a.out, "Verification passed")
	}
	if res.ConfigWritten {
		fmt.Fprintln(a.out, "Configuration written")
	}
	return nil
}
