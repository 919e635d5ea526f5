package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/KirshWasHere/DowngradeRoblox/internal/app"
	"github.com/KirshWasHere/DowngradeRoblox/internal/domain/release"
)

// cleanCmd deletes every installed version without installing a new one.
var cleanCmd = &cobra.Command{
	Use:       "clean [player|studio|both]",
	Short:     "Stop running instances and delete every installed version",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"player", "studio", "both"},
	RunE: func(cmd *cobra.Command, args []string) error {
		variants, err := release.ParseVariants(args[0])
		if err != nil {
			return err
		}

		return runWithApp(func(ctx context.Context, a *app.App) error {
			reports, err := a.Clean(ctx, variants)

			for _, v := range variants {
				r, ok := reports[v]
				if !ok {
					continue
				}

				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s: removed %d, skipped %d locked\n",
					v.Title(), len(r.Removed), len(r.Skipped))

				for _, path := range r.Skipped {
					_, _ = fmt.Fprintf(cmd.OutOrStdout(), "  still in use: %s\n", path)
				}
			}

			return err
		})
	},
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	rootCmd.AddCommand(cleanCmd)
}
