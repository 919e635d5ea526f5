package installer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/KirshWasHere/DowngradeRoblox/internal/domain/release"
	"github.com/KirshWasHere/DowngradeRoblox/internal/logger"
)

// stagingPrefix names extraction directories that were never promoted.
const stagingPrefix = ".staging-"

// RemovalReport lists the outcome of RemoveOldVersions.
type RemovalReport struct {
	// Removed are the deleted directories.
	Removed []string
	// Skipped are directories that stayed locked through every attempt.
	Skipped []string
}

// RemoveOldVersions deletes every version directory and stale staging
// directory under root. A directory that stays locked is logged once and
// skipped; the remaining directories are still processed.
func (m *Manager) RemoveOldVersions(ctx context.Context, root string) (RemovalReport, error) {
	var report RemovalReport

	entries, err := os.ReadDir(root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return report, nil
		}

		return report, fmt.Errorf("list %s: %w", root, err)
	}

	names := make([]string, 0, len(entries))

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() && (strings.HasPrefix(name, release.VersionPrefix) || strings.HasPrefix(name, stagingPrefix)) {
			names = append(names, name)
		}
	}

	sort.Strings(names)

	for _, name := range names {
		path := filepath.Join(root, name)

		attempts, err := m.removal.Do(ctx, func(attempt int) error {
			if attempt > 1 {
				m.metrics.IncRemovalRetries()
				logger.DebugKV(ctx, "Retrying removal", "path", path, "attempt", attempt)
			}

			return m.remove(path)
		}, m.isLocked)

		switch {
		case err == nil:
			report.Removed = append(report.Removed, path)

			logger.InfoKV(ctx, "Removed old version", "path", path)
		case ctx.Err() != nil:
			return report, ctx.Err()
		case m.isLocked(err):
			report.Skipped = append(report.Skipped, path)

			logger.WarnKV(ctx, "Could not remove locked version directory, skipping",
				"path", path,
				"attempts", attempts,
				"error", fmt.Errorf("%w: %w", release.ErrFilesystemLock, err),
			)
		default:
			return report, fmt.Errorf("remove %s: %w", path, err)
		}
	}

	return report, nil
}
