package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/KirshWasHere/DowngradeRoblox/internal/app"
	"github.com/KirshWasHere/DowngradeRoblox/internal/domain/release"
)

var (
	// historyLimit is the number of versions to print.
	historyLimit int

	// historyCmd prints the most recent published builds.
	historyCmd = &cobra.Command{
		Use:       "history [player|studio]",
		Short:     "List recently published builds",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"player", "studio"},
		RunE: func(cmd *cobra.Command, args []string) error {
			variant, err := release.ParseVariant(args[0])
			if err != nil {
				return err
			}

			return runWithApp(func(ctx context.Context, a *app.App) error {
				entries, err := a.History(ctx, variant, historyLimit)
				if err != nil {
					return err
				}

				for i, e := range entries {
					_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%3d  %-26s  %s\n", i+1, e.Hash, e.DateString())
				}

				return nil
			})
		},
	}
)

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 0, "number of versions (default history_limit)")

	rootCmd.AddCommand(historyCmd)
}
