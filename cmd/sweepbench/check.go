package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/weiihann/sweepbench/harness"
)

func newCheckCmd(a *app) *cobra.Command {
	var compilers []string

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Verify that the compilers can be found and invoked",
		RunE: func(cmd *cobra.Command, _ []string) error {
			for _, c := range compilers {
				tc, err := harness.CheckToolchain(cmd.Context(), a.exec, c)
				if err != nil {
					return err
				}

				a.logger.InfoContext(cmd.Context(), "toolchain available",
					slog.String("compiler", tc.Name),
					slog.String("path", tc.Path),
				)

				fmt.Fprintf(a.stdout, "%s\t%s\t%s\n", tc.Name, tc.Path, tc.Version)
			}

			return nil
		},
	}

	cmd.Flags().StringSliceVarP(&compilers, "compiler", "c", []string{"gcc"},
		"Compilers to check")

	return cmd
}
