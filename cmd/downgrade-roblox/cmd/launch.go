package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/KirshWasHere/DowngradeRoblox/internal/app"
)

var (
	// launchCmd starts the newest installed player.
	launchCmd = &cobra.Command{
		Use:   "launch",
		Short: "Start the newest installed Roblox Player",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runWithApp(func(ctx context.Context, a *app.App) error {
				return a.Launch(ctx)
			})
		},
	}

	// registerCmd points the roblox URL schemes at the newest installed player.
	registerCmd = &cobra.Command{
		Use:   "register",
		Short: "Register the newest installed player as the roblox:// handler",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runWithApp(func(ctx context.Context, a *app.App) error {
				return a.Register(ctx)
			})
		},
	}

	// unregisterCmd removes the roblox URL scheme registrations.
	unregisterCmd = &cobra.Command{
		Use:   "unregister",
		Short: "Remove the roblox:// handler registration",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runWithApp(func(ctx context.Context, a *app.App) error {
				return a.Unregister(ctx)
			})
		},
	}
)

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	rootCmd.AddCommand(launchCmd, registerCmd, unregisterCmd)
}
