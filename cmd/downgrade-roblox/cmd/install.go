package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/KirshWasHere/DowngradeRoblox/internal/app"
	"github.com/KirshWasHere/DowngradeRoblox/internal/domain/release"
	"github.com/KirshWasHere/DowngradeRoblox/internal/service/pipeline"
)

// errInstallFailed is returned when at least one variant did not install.
var errInstallFailed = errors.New("install failed")

var (
	// installMode is the version selection strategy.
	installMode string
	// installHash is the version hash used by the custom mode.
	installHash string

	// installCmd downloads, assembles and installs one or both variants.
	installCmd = &cobra.Command{
		Use:       "install [player|studio|both]",
		Short:     "Install the latest, a downgraded or a specific build",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"player", "studio", "both"},
		RunE: func(cmd *cobra.Command, args []string) error {
			variants, err := release.ParseVariants(args[0])
			if err != nil {
				return err
			}

			sel, err := selectionFromFlags()
			if err != nil {
				return err
			}

			return runWithApp(func(ctx context.Context, a *app.App) error {
				var failed int

				for _, r := range a.Install(ctx, variants, sel) {
					if !r.OK() {
						failed++

						_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s: %v\n", r.Variant.Title(), r.Err)

						continue
					}

					_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s: installed %s into %s (%d files, %s) in %s\n",
						r.Variant.Title(), r.Hash, r.Directory,
						r.Install.Extract.Files, humanize.IBytes(uint64(r.Install.Extract.Bytes)),
						r.Duration.Round(time.Millisecond))

					if r.Install.RegisterErr != nil {
						_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s: launch handler was not registered: %v\n",
							r.Variant.Title(), r.Install.RegisterErr)
					}
				}

				if failed > 0 {
					return fmt.Errorf("%d of %d variants: %w", failed, len(variants), errInstallFailed)
				}

				return nil
			})
		},
	}
)

func selectionFromFlags() (pipeline.Selection, error) {
	mode, err := pipeline.ParseMode(installMode)
	if err != nil {
		return pipeline.Selection{}, err
	}

	var sel pipeline.Selection

	switch mode {
	case pipeline.ModeLatest:
		sel = pipeline.Latest()
	case pipeline.ModeDowngrade:
		sel = pipeline.Downgrade()
	case pipeline.ModeCustom:
		sel = pipeline.Custom(installHash)
	}

	return sel, sel.Validate()
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	installCmd.Flags().StringVarP(&installMode, "mode", "m", string(pipeline.ModeLatest),
		"version selection: latest, downgrade or custom")
	installCmd.Flags().StringVar(&installHash, "hash", "", "version hash for --mode custom")

	rootCmd.AddCommand(installCmd)
}
