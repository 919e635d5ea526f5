package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/KirshWasHere/DowngradeRoblox/internal/app"
)

var (
	// cacheCmd groups cache maintenance commands.
	cacheCmd = &cobra.Command{
		Use:   "cache",
		Short: "Manage the local cache of deploy history and manifests",
	}

	// cachePurgeCmd drops every cached document.
	cachePurgeCmd = &cobra.Command{
		Use:   "purge",
		Short: "Delete every cached document",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runWithApp(func(_ context.Context, a *app.App) error {
				return a.PurgeCache()
			})
		},
	}
)

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	cacheCmd.AddCommand(cachePurgeCmd)
	rootCmd.AddCommand(cacheCmd)
}
