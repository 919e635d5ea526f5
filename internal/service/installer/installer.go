package installer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/KirshWasHere/DowngradeRoblox/internal/domain/release"
	"github.com/KirshWasHere/DowngradeRoblox/internal/logger"
	"github.com/KirshWasHere/DowngradeRoblox/internal/metrics"
	"github.com/KirshWasHere/DowngradeRoblox/internal/platform"
	"github.com/KirshWasHere/DowngradeRoblox/internal/retry"
)

// Integration is the operating system collaborator.
type Integration interface {
	StopKnownProcesses(ctx context.Context, names []string) error
	RegisterLaunchHandler(ctx context.Context, exePath string) error
}

// Options configures a Manager.
type Options struct {
	// Integration performs process and shell-integration calls.
	Integration Integration
	// SettleDelay is waited after stopping processes.
	SettleDelay time.Duration
	// Removal is the retry policy for locked directories.
	Removal retry.Policy
	// IsLocked classifies removal errors; defaults to platform.IsLocked.
	IsLocked func(error) bool
	// Remove deletes a directory tree; defaults to os.RemoveAll.
	Remove func(path string) error
	// Metrics is optional.
	Metrics metrics.Metrics
}

// Manager drives the install state machine of one or more variants.
type Manager struct {
	integration Integration
	settleDelay time.Duration
	removal     retry.Policy
	isLocked    func(error) bool
	remove      func(string) error
	metrics     metrics.Metrics
}

// Report is the outcome of Install.
type Report struct {
	// Stage is the last stage reached.
	Stage Stage
	// Directory is the installed version directory.
	Directory string
	// Removal lists deleted and skipped old versions.
	Removal RemovalReport
	// Extract summarizes the extracted files.
	Extract ExtractStats
	// RegisterErr is the launch handler failure, if any. It does not fail the install.
	RegisterErr error
}

// errNoIntegration is returned when a Manager is built without an OS collaborator.
var errNoIntegration = errors.New("integration is not set")

// New creates a Manager.
func New(opts Options) (*Manager, error) {
	if opts.Integration == nil {
		return nil, errNoIntegration
	}

	m := &Manager{
		integration: opts.Integration,
		settleDelay: opts.SettleDelay,
		removal:     opts.Removal,
		isLocked:    opts.IsLocked,
		remove:      opts.Remove,
		metrics:     opts.Metrics,
	}

	if m.isLocked == nil {
		m.isLocked = platform.IsLocked
	}

	if m.remove == nil {
		m.remove = os.RemoveAll
	}

	if m.metrics == nil {
		m.metrics = metrics.Noop{}
	}

	return m, nil
}

// StopProcesses terminates running instances of variant and waits for their
// file handles to be released. Termination failures are only logged.
func (m *Manager) StopProcesses(ctx context.Context, variant release.Variant) error {
	if err := m.integration.StopKnownProcesses(ctx, variant.KnownProcesses()); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		logger.WarnKV(ctx, "Could not stop every running instance", "variant", variant, "error", err)
	}

	if m.settleDelay <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(m.settleDelay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RegisterLaunchHandler points the URL schemes at the player installed in target.
// Studio installs are not registered.
func (m *Manager) RegisterLaunchHandler(ctx context.Context, variant release.Variant, target string) error {
	if variant != release.Player {
		return nil
	}

	return m.integration.RegisterLaunchHandler(ctx, filepath.Join(target, variant.PrimaryExecutable()))
}

// Install runs every stage for one version of variant under root.
// The returned report is filled up to the stage that was reached.
func (m *Manager) Install(
	ctx context.Context,
	variant release.Variant,
	root, hash, archive string,
	progress EntryProgress,
) (Report, error) {
	report := Report{Stage: StageIdle}

	step := func(next Stage, fn func() error) error {
		started := time.Now()

		if err := fn(); err != nil {
			return fmt.Errorf("%s: %w", next, err)
		}

		m.metrics.ObserveStageDuration(next.String(), time.Since(started).Seconds())
		report.Stage = next

		return nil
	}

	err := step(StageProcessesStopped, func() error {
		return m.StopProcesses(ctx, variant)
	})
	if err != nil {
		return report, err
	}

	err = step(StageOldVersionsRemoved, func() error {
		var removeErr error

		report.Removal, removeErr = m.RemoveOldVersions(ctx, root)

		return removeErr
	})
	if err != nil {
		return report, err
	}

	err = step(StageDirectoryPrepared, func() error {
		var prepareErr error

		report.Directory, prepareErr = m.PrepareDirectory(root, hash)

		return prepareErr
	})
	if err != nil {
		return report, err
	}

	err = step(StageExtracted, func() error {
		var extractErr error

		report.Extract, extractErr = m.Extract(ctx, archive, report.Directory, progress)

		return extractErr
	})
	if err != nil {
		return report, err
	}

	if variant == release.Player {
		_ = step(StageRegistered, func() error {
			report.RegisterErr = m.RegisterLaunchHandler(ctx, variant, report.Directory)
			if report.RegisterErr != nil {
				logger.WarnKV(ctx, "Could not register launch handler", "error", report.RegisterErr)
			}

			return nil
		})
	}

	report.Stage = StageComplete

	logger.InfoKV(ctx, "Installed version",
		"directory", report.Directory,
		"files", report.Extract.Files,
		"size", humanize.IBytes(uint64(report.Extract.Bytes)),
		"removed", len(report.Removal.Removed),
		"skipped", len(report.Removal.Skipped),
	)

	return report, nil
}

// ListInstalled returns the version directories under root, newest first.
func ListInstalled(root string) ([]release.InstalledVersion, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}

		return nil, fmt.Errorf("list %s: %w", root, err)
	}

	var versions []release.InstalledVersion

	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), release.VersionPrefix) {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		versions = append(versions, release.InstalledVersion{
			Hash:      entry.Name(),
			Directory: filepath.Join(root, entry.Name()),
			ModTime:   info.ModTime(),
		})
	}

	sort.SliceStable(versions, func(i, j int) bool {
		return versions[i].ModTime.After(versions[j].ModTime)
	})

	return versions, nil
}

// NewestExecutable returns the primary executable of the most recently modified
// version of variant under root.
func NewestExecutable(root string, variant release.Variant) (string, error) {
	versions, err := ListInstalled(root)
	if err != nil {
		return "", err
	}

	for _, v := range versions {
		exe := filepath.Join(v.Directory, variant.PrimaryExecutable())
		if _, err = os.Stat(exe); err == nil {
			return exe, nil
		}
	}

	return "", fmt.Errorf("no installed %s version with %s under %s: %w",
		variant, variant.PrimaryExecutable(), root, os.ErrNotExist)
}
