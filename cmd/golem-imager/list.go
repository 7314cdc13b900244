package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/golemfactory/golem-imager/internal/cli"
	"github.com/spf13/cobra"
)

func newListCmd(a *app) *cobra.Command {
	var (
		asJSON bool
		all    bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List disks that can be written",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			disks, err := a.devices().List(cmd.Context())
			if err != nil {
				return err
			}
			if !all {
				n := 0
				for _, d := range disks {
					if !d.System {
						disks[n] = d
						n++
					}
				}
				disks = disks[:n]
			}
			if asJSON {
				enc := json.NewEncoder(a.out)
				enc.SetIndent("", "  ")
				return enc.Encode(disks)
			}
			if len(disks) == 0 {
				fmt.Fprintln(a.out, "No disks found")
				return nil
			}
			w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "PATH\tSIZE\tREMOVABLE\tNAME")
			for _, d := range disks {
				fmt.Fprintf(w, "%s\t%s\t%v\t%s\n", d.Path, cli.Size(d.SizeBytes), d.Removable, d.Name)
			}
			return w.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	cmd.Flags().BoolVar(&all, "all", false, "include the system disk")
	return cmd
}
