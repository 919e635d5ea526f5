package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"

	"github.com/KirshWasHere/DowngradeRoblox/internal/cdn"
	"github.com/KirshWasHere/DowngradeRoblox/internal/config"
	"github.com/KirshWasHere/DowngradeRoblox/internal/domain/release"
	"github.com/KirshWasHere/DowngradeRoblox/internal/logger"
	"github.com/KirshWasHere/DowngradeRoblox/internal/metrics"
	"github.com/KirshWasHere/DowngradeRoblox/internal/platform"
	"github.com/KirshWasHere/DowngradeRoblox/internal/repository/cache"
	"github.com/KirshWasHere/DowngradeRoblox/internal/repository/installs"
	"github.com/KirshWasHere/DowngradeRoblox/internal/service/assembler"
	"github.com/KirshWasHere/DowngradeRoblox/internal/service/history"
	"github.com/KirshWasHere/DowngradeRoblox/internal/service/installer"
	"github.com/KirshWasHere/DowngradeRoblox/internal/service/manifest"
	"github.com/KirshWasHere/DowngradeRoblox/internal/service/pipeline"
)

// Options configures New.
type Options struct {
	// ConfigPath is the settings file; empty uses the default file when present.
	ConfigPath string
	// Config overrides ConfigPath, used by tests.
	Config *config.Config
	// Integration overrides the OS collaborator, used by tests.
	Integration installer.Integration
}

// App holds every long-lived dependency of a command invocation.
type App struct {
	cfg       *config.Config
	cache     *cache.Store
	prom      *metrics.Prom
	system    *platform.System
	history   *history.Client
	manifests *manifest.Resolver
	installer *installer.Manager
	records   installs.Repository
	pipeline  *pipeline.Pipeline
}

// New loads the configuration and builds the services.
func New(ctx context.Context, opts Options) (*App, error) {
	cfg := opts.Config
	if cfg == nil {
		var err error

		cfg, err = config.Load(opts.ConfigPath)
		if err != nil {
			return nil, err
		}
	} else if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	// Validate rejected unknown levels.
	level, _ := logger.ParseLogLevel(cfg.LogLevel)
	logger.SetLevel(level)

	a := &App{
		cfg:     cfg,
		system:  platform.New(),
		records: installs.NewFileRepository(cfg.StateFile),
	}

	var m metrics.Metrics = metrics.Noop{}

	if cfg.MetricsFile != "" {
		a.prom = metrics.NewProm()
		m = a.prom
	}

	cdnOptions := cdn.Options{
		DeployHistoryURL: cfg.DeployHistoryURL,
		BaseURL:          cfg.CDNBaseURL,
		Timeout:          cfg.Timeout,
		HistoryTTL:       cfg.Cache.HistoryTTL,
	}

	if cfg.Cache.Enabled {
		store, err := cache.Open(cfg.Cache.Dir)
		if err != nil {
			// The cache only saves round trips, run without it.
			logger.WarnKV(ctx, "Cache is unavailable", "dir", cfg.Cache.Dir, "error", err)
		} else {
			a.cache = store
			cdnOptions.Cache = store
		}
	}

	client, err := cdn.New(cdnOptions)
	if err != nil {
		a.Close(ctx)

		return nil, err
	}

	var integration installer.Integration = a.system
	if opts.Integration != nil {
		integration = opts.Integration
	}

	a.installer, err = installer.New(installer.Options{
		Integration: integration,
		SettleDelay: cfg.SettleDelay,
		Removal:     cfg.Removal,
		Metrics:     m,
	})
	if err != nil {
		a.Close(ctx)

		return nil, err
	}

	a.history = history.NewClient(client)
	a.manifests = manifest.NewResolver(client)

	a.pipeline, err = pipeline.New(pipeline.Options{
		History:   a.history,
		Manifests: a.manifests,
		Assembler: assembler.New(client, assembler.Options{
			Mappings: release.DefaultMappings(),
			Workers:  cfg.DownloadWorkers,
			Metrics:  m,
		}),
		Installer: a.installer,
		Records:   a.records,
		Metrics:   m,
		Roots: map[release.Variant]string{
			release.Player: cfg.PlayerRoot,
			release.Studio: cfg.StudioRoot,
		},
		DownloadsDir: cfg.DownloadsDir,
		KeepArchive:  cfg.KeepArchive,
		HistoryLimit: cfg.HistoryLimit,
		Progress:     logProgress(ctx),
	})
	if err != nil {
		a.Close(ctx)

		return nil, err
	}

	return a, nil
}

// Config returns the effective configuration.
func (a *App) Config() *config.Config {
	return a.cfg
}

// Close releases the cache and writes the metrics file.
func (a *App) Close(ctx context.Context) {
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			logger.WarnKV(ctx, "Could not close cache", "error", err)
		}

		a.cache = nil
	}

	if a.prom != nil {
		if err := a.prom.WriteTextfile(a.cfg.MetricsFile); err != nil {
			logger.WarnKV(ctx, "Could not write metrics", "path", a.cfg.MetricsFile, "error", err)
		}

		a.prom = nil
	}

	logger.Sync()
}

// Install runs the pipeline for every variant and returns one result per variant.
func (a *App) Install(ctx context.Context, variants []release.Variant, sel pipeline.Selection) []pipeline.Result {
	return a.pipeline.RunAll(ctx, variants, sel)
}

// History returns up to limit published builds of variant, newest first.
func (a *App) History(ctx context.Context, variant release.Variant, limit int) ([]release.DeployHistoryEntry, error) {
	if limit <= 0 {
		limit = a.cfg.HistoryLimit
	}

	return a.history.FetchVersions(ctx, variant, limit)
}

// InstalledVersion is an installed directory with its disk usage.
type InstalledVersion struct {
	release.InstalledVersion

	Files    int
	Size     uint64
	Recorded bool
}

// Versions lists the installed versions of variant, newest first.
func (a *App) Versions(ctx context.Context, variant release.Variant) ([]InstalledVersion, error) {
	list, err := installer.ListInstalled(a.cfg.Root(variant))
	if err != nil {
		return nil, err
	}

	var recorded string

	record, err := a.records.Get(ctx, variant)

	switch {
	case err == nil:
		recorded = record.Hash
	case !errors.Is(err, installs.ErrNotFound):
		logger.WarnKV(ctx, "Could not read install records", "error", err)
	}

	result := make([]InstalledVersion, 0, len(list))

	for _, v := range list {
		files, size, err := installer.DirectoryUsage(ctx, v.Directory)
		if err != nil {
			return nil, err
		}

		result = append(result, InstalledVersion{
			InstalledVersion: v,
			Files:            files,
			Size:             uint64(size),
			Recorded:         v.Hash == recorded,
		})
	}

	return result, nil
}

// Clean removes every installed version of the variants.
func (a *App) Clean(ctx context.Context, variants []release.Variant) (map[release.Variant]installer.RemovalReport, error) {
	reports := make(map[release.Variant]installer.RemovalReport, len(variants))

	for _, v := range variants {
		if err := a.installer.StopProcesses(ctx, v); err != nil {
			return reports, err
		}

		report, err := a.installer.RemoveOldVersions(ctx, a.cfg.Root(v))
		reports[v] = report

		if err != nil {
			return reports, fmt.Errorf("clean %s: %w", v, err)
		}

		if len(report.Skipped) == 0 {
			if err = a.records.Delete(ctx, v); err != nil {
				logger.WarnKV(ctx, "Could not update install records", "error", err)
			}
		}
	}

	return reports, nil
}

// Launch starts the newest installed player.
func (a *App) Launch(ctx context.Context) error {
	exe, err := installer.NewestExecutable(a.cfg.PlayerRoot, release.Player)
	if err != nil {
		return err
	}

	return platform.Launch(ctx, exe)
}

// Register points the URL schemes at the newest installed player.
func (a *App) Register(ctx context.Context) error {
	exe, err := installer.NewestExecutable(a.cfg.PlayerRoot, release.Player)
	if err != nil {
		return err
	}

	return a.system.RegisterLaunchHandler(ctx, exe)
}

// Unregister removes the URL scheme registrations.
func (a *App) Unregister(ctx context.Context) error {
	return a.system.UnregisterLaunchHandler(ctx)
}

// logProgress reports package downloads and every hundredth extracted entry.
func logProgress(ctx context.Context) pipeline.Progress {
	const extractLogEvery = 100

	return pipeline.Progress{
		OnPackage: func(v release.Variant, done, total int, name string, size int64) {
			logger.InfoKV(ctx, "Package ready",
				"variant", v,
				"package", name,
				"progress", fmt.Sprintf("%d/%d", done, total),
				"size", humanize.IBytes(uint64(size)),
			)
		},
		OnExtract: func(v release.Variant, done, total int, _ string) {
			if done%extractLogEvery == 0 || done == total {
				logger.DebugKV(ctx, "Extracting", "variant", v, "progress", fmt.Sprintf("%d/%d", done, total))
			}
		},
	}
}

// errCacheDisabled is returned by PurgeCache when no cache is open.
var errCacheDisabled = errors.New("cache is disabled")

// PurgeCache drops every cached CDN document.
func (a *App) PurgeCache() error {
	if a.cache == nil {
		return errCacheDisabled
	}

	return a.cache.Purge()
}
