package cmd

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/KirshWasHere/DowngradeRoblox/internal/app"
	"github.com/KirshWasHere/DowngradeRoblox/internal/domain/release"
)

// versionsCmd lists installed version directories.
var versionsCmd = &cobra.Command{
	Use:       "versions [player|studio]",
	Short:     "List installed versions",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"player", "studio"},
	RunE: func(cmd *cobra.Command, args []string) error {
		variant, err := release.ParseVariant(args[0])
		if err != nil {
			return err
		}

		return runWithApp(func(ctx context.Context, a *app.App) error {
			list, err := a.Versions(ctx, variant)
			if err != nil {
				return err
			}

			if len(list) == 0 {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "No %s versions under %s\n",
					variant.Title(), a.Config().Root(variant))

				return nil
			}

			for _, v := range list {
				marker := " "
				if v.Recorded {
					marker = "*"
				}

				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s %-26s  %s  %6d files  %10s\n",
					marker, v.Hash, v.ModTime.Format("2006-01-02 15:04"), v.Files, humanize.IBytes(v.Size))
			}

			return nil
		})
	},
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	rootCmd.AddCommand(versionsCmd)
}
