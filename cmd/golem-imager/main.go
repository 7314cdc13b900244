// Command golem-imager writes Golem provider images to removable disks and
// manages the node configuration stored on them.
package main

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"

	"github.com/golemfactory/golem-imager/cancel"
	"github.com/golemfactory/golem-imager/device"
	"github.com/golemfactory/golem-imager/internal/cli"
	"github.com/spf13/cobra"
)

type app struct {
	in      io.Reader
	out     io.Writer
	manager device.Manager
	verbose bool
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "golem-imager",
		Short:         "Write Golem provider images and configure provisioned disks",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			cli.SetupLogging(cmd.ErrOrStderr(), a.verbose)
		},
	}
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "show debug logging")
	root.AddCommand(
		newWriteCmd(a),
		newMetadataCmd(a),
		newConfigCmd(a),
		newListCmd(a),
	)
	return root
}

func (a *app) devices() device.Manager {
	if a.manager == nil {
		a.manager = device.Default()
	}
	return a.manager
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	a := &app{in: os.Stdin, out: os.Stdout}
	err := newRootCmd(a).ExecuteContext(ctx)
	stop()
	if err != nil {
		if cancel.IsCancelled(err) || errors.Is(err, errAborted) {
			os.Exit(130)
		}
		cli.PrintError(os.Stderr, err)
		os.Exit(1)
	}
}
