package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pandasAtHome/TimeTask/internal/version"
)

func newVersionCommand(a *app) *cobra.Command {
	var (
		full   bool
		latest string
	)

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info := version.Get()
			if full {
				fmt.Fprintln(cmd.OutOrStdout(), info.FullString())
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), info.String())
			}

			if latest == "" {
				return nil
			}
			outdated, err := info.Outdated(latest)
			if err != nil {
				return err
			}
			if outdated {
				a.printer.Warning("A newer version is available: %s (current: %s)", latest, info.Version)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&full, "full", false, "Show build details")
	cmd.Flags().StringVar(&latest, "latest", "", "Compare against this released version")

	return cmd
}
