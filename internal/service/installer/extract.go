package installer

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/charlievieth/fastwalk"
	"github.com/google/uuid"

	"github.com/KirshWasHere/DowngradeRoblox/internal/domain/release"
	"github.com/KirshWasHere/DowngradeRoblox/internal/logger"
)

const (
	dirPermission  = 0o755
	filePermission = 0o644
)

// ExtractStats summarizes an extraction.
type ExtractStats struct {
	// Files is the number of files in the installed tree. Later entries
	// overwrite earlier ones that resolve to the same file.
	Files int
	// Bytes is the total uncompressed size written.
	Bytes int64
}

// EntryProgress is called after each archive entry; done counts from 1.
type EntryProgress func(done, total int, name string)

// PrepareDirectory creates root/hash if needed and returns its path.
func (m *Manager) PrepareDirectory(root, hash string) (string, error) {
	if !strings.HasPrefix(hash, release.VersionPrefix) || filepath.Base(hash) != hash {
		return "", fmt.Errorf("version hash %q: %w", hash, release.ErrFormat)
	}

	target := filepath.Join(root, hash)
	if err := os.MkdirAll(target, dirPermission); err != nil {
		return "", fmt.Errorf("prepare %s: %w", target, err)
	}

	return target, nil
}

// Extract unpacks archive into target. Files are written to a sibling staging
// directory first; target only receives the complete tree. On failure the
// staging directory is deleted and an empty target is removed.
func (m *Manager) Extract(ctx context.Context, archive, target string, progress EntryProgress) (ExtractStats, error) {
	var stats ExtractStats

	staging := filepath.Join(filepath.Dir(target), stagingPrefix+filepath.Base(target)+"-"+uuid.NewString())

	if err := os.MkdirAll(staging, dirPermission); err != nil {
		return stats, fmt.Errorf("create staging directory: %w: %w", release.ErrPartialWrite, err)
	}

	promoted := false

	defer func() {
		if promoted {
			return
		}

		_ = os.RemoveAll(staging)
		// Only succeeds while the prepared directory is still empty.
		_ = os.Remove(target)
	}()

	reader, err := zip.OpenReader(archive)
	if err != nil && !errors.Is(err, zip.ErrInsecurePath) {
		return stats, fmt.Errorf("open %s: %w: %w", archive, release.ErrFormat, err)
	}

	defer func() {
		_ = reader.Close()
	}()

	written := make(map[string]struct{}, len(reader.File))

	for i, entry := range reader.File {
		if err = ctx.Err(); err != nil {
			return stats, err
		}

		dest, err := stagedPath(staging, entry.Name)
		if err != nil {
			return stats, err
		}

		if strings.HasSuffix(strings.ReplaceAll(entry.Name, `\`, "/"), "/") {
			if err = os.MkdirAll(dest, dirPermission); err != nil {
				return stats, fmt.Errorf("%s: %w: %w", entry.Name, release.ErrPartialWrite, err)
			}

			continue
		}

		n, err := writeEntry(entry, dest)
		if err != nil {
			return stats, fmt.Errorf("%s: %w: %w", entry.Name, release.ErrPartialWrite, err)
		}

		written[dest] = struct{}{}
		stats.Bytes += n

		if progress != nil {
			progress(i+1, len(reader.File), entry.Name)
		}
	}

	// Names differing only by case share one file on NTFS and APFS.
	for dest := range written {
		if _, err = os.Stat(dest); err != nil {
			return stats, fmt.Errorf("verify extraction: %w: %w", release.ErrPartialWrite, err)
		}
	}

	stats.Files, _, err = DirectoryUsage(ctx, staging)
	if err != nil {
		return stats, fmt.Errorf("verify extraction: %w", err)
	}

	if err = m.promote(ctx, staging, target); err != nil {
		return stats, err
	}

	promoted = true

	logger.InfoKV(ctx, "Extracted archive", "path", target, "files", stats.Files)

	return stats, nil
}

// promote replaces target with the staging directory.
func (m *Manager) promote(ctx context.Context, staging, target string) error {
	_, err := m.removal.Do(ctx, func(int) error {
		return m.remove(target)
	}, m.isLocked)
	if err != nil {
		if m.isLocked(err) {
			return fmt.Errorf("clear %s: %w: %w", target, release.ErrFilesystemLock, err)
		}

		return fmt.Errorf("clear %s: %w", target, err)
	}

	if err = os.Rename(staging, target); err != nil {
		return fmt.Errorf("promote %s: %w: %w", target, release.ErrPartialWrite, err)
	}

	return nil
}

// stagedPath maps an entry name inside staging and rejects names that escape it.
func stagedPath(staging, name string) (string, error) {
	clean := strings.TrimSuffix(strings.ReplaceAll(name, `\`, "/"), "/")

	local := filepath.FromSlash(clean)
	if clean == "" || !filepath.IsLocal(local) {
		return "", fmt.Errorf("entry %q escapes the install directory: %w", name, release.ErrFormat)
	}

	return filepath.Join(staging, local), nil
}

func writeEntry(entry *zip.File, dest string) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(dest), dirPermission); err != nil {
		return 0, err
	}

	src, err := entry.Open()
	if err != nil {
		return 0, err
	}

	defer func() {
		_ = src.Close()
	}()

	mode := entry.Mode().Perm() | 0o600
	if entry.Mode().Perm() == 0 {
		mode = filePermission
	}

	out, err := os.OpenFile(filepath.Clean(dest), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return 0, err
	}

	n, err := io.Copy(out, src)
	closeErr := out.Close()

	if err != nil {
		return n, err
	}

	return n, closeErr
}

// DirectoryUsage counts the regular files under dir and their total size.
func DirectoryUsage(ctx context.Context, dir string) (int, int64, error) {
	var (
		files atomic.Int64
		bytes atomic.Int64
	)

	conf := fastwalk.Config{
		Follow: false,
	}

	err := fastwalk.Walk(&conf, dir, func(_ string, d fs.DirEntry, walkErr error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if walkErr != nil {
			return walkErr
		}

		if !d.Type().IsRegular() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}

		files.Add(1)
		bytes.Add(info.Size())

		return nil
	})
	if err != nil {
		return 0, 0, err
	}

	return int(files.Load()), bytes.Load(), nil
}
