package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/weiihann/sweepbench/preset"
)

func newPresetsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "presets [name]",
		Short: "List built-in flag presets, or the flags of one preset",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			if len(args) == 1 {
				p, err := preset.Lookup(args[0])
				if err != nil {
					return err
				}

				for _, f := range p.Flags {
					fmt.Fprintln(a.stdout, f)
				}

				return nil
			}

			tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tFLAGS\tCOMBINED\tDESCRIPTION")

			for _, name := range preset.Names() {
				p, err := preset.Lookup(name)
				if err != nil {
					return err
				}

				fmt.Fprintf(tw, "%s\t%d\t%t\t%s\n", p.Name, len(p.Flags), p.Combined, p.Description)
			}

			return tw.Flush()
		},
	}
}
