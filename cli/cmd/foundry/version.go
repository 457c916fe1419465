package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"go.eggybyte.com/foundry/cli/internal/ui"
	"go.eggybyte.com/foundry/cli/internal/version"
)

func newVersionCmd(*app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show foundry version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if ui.IsJSON() {
				ui.Result(version.Get(), "%s", version.String())
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), version.Full())
			return nil
		},
	}
}

func versionLine() string {
	return version.String()
}
