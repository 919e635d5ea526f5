package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/KirshWasHere/DowngradeRoblox/internal/app"
	"github.com/KirshWasHere/DowngradeRoblox/internal/config"
	"github.com/KirshWasHere/DowngradeRoblox/internal/logger"
	"github.com/KirshWasHere/DowngradeRoblox/internal/version"
)

var (
	// configPath to the configuration YAML file.
	configPath string

	// rootCmd represents the base command when called without any subcommands.
	rootCmd = &cobra.Command{
		Use:           "downgrade-roblox",
		Short:         "Download and install historical Roblox Player and Studio builds",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

// Execute runs the downgrade-roblox CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		logger.Error(context.Background(), err)
		logger.Sync()
		os.Exit(1)
	}
}

// runWithApp builds the application for the duration of one command.
func runWithApp(fn func(ctx context.Context, a *app.App) error) error {
	// Setup graceful shutdown handling.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	a, err := app.New(ctx, app.Options{ConfigPath: configPath})
	if err != nil {
		return err
	}

	defer a.Close(ctx)

	return fn(ctx, a)
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"path to configuration file (default "+config.DefaultConfigFilename+" when present)")
}
