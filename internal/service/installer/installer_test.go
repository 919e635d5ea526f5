package installer

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/KirshWasHere/DowngradeRoblox/internal/domain/release"
	"github.com/KirshWasHere/DowngradeRoblox/internal/logger"
	"github.com/KirshWasHere/DowngradeRoblox/internal/retry"
)

type fakeIntegration struct {
	mu          sync.Mutex
	stopErr     error
	registerErr error
	stopped     [][]string
	registered  []string
}

func (f *fakeIntegration) StopKnownProcesses(_ context.Context, names []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.stopped = append(f.stopped, names)

	return f.stopErr
}

func (f *fakeIntegration) RegisterLaunchHandler(_ context.Context, exePath string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.registered = append(f.registered, exePath)

	return f.registerErr
}

// lockingRemover fails with a permission error for the first locks[path] calls.
type lockingRemover struct {
	mu    sync.Mutex
	locks map[string]int
	calls map[string]int
}

func newLockingRemover(locks map[string]int) *lockingRemover {
	return &lockingRemover{locks: locks, calls: make(map[string]int)}
}

func (r *lockingRemover) Remove(path string) error {
	r.mu.Lock()
	name := filepath.Base(path)
	r.calls[name]++
	locked := r.calls[name] <= r.locks[name]
	r.mu.Unlock()

	if locked {
		return &fs.PathError{Op: "unlinkat", Path: path, Err: fs.ErrPermission}
	}

	return os.RemoveAll(path)
}

func observedContext() (context.Context, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)

	return logger.ToContext(context.Background(), zap.New(core).Sugar()), logs
}

func newTestManager(t *testing.T, integration Integration, remove func(string) error) *Manager {
	t.Helper()

	m, err := New(Options{
		Integration: integration,
		Removal:     retry.Policy{Attempts: 3},
		Remove:      remove,
	})
	require.NoError(t, err)

	return m
}

func mkdirs(t *testing.T, root string, names ...string) {
	t.Helper()

	for _, name := range names {
		require.NoError(t, os.MkdirAll(filepath.Join(root, name, "content"), 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(root, name, "content", "file.bin"), []byte(name), 0o600))
	}
}

func buildArchive(t *testing.T, entries map[string]string, order ...string) string {
	t.Helper()

	var buf bytes.Buffer

	zw := zip.NewWriter(&buf)

	for _, name := range order {
		w, err := zw.Create(name)
		require.NoError(t, err)

		_, err = w.Write([]byte(entries[name]))
		require.NoError(t, err)
	}

	require.NoError(t, zw.Close())

	path := filepath.Join(t.TempDir(), "archive.zip")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))

	return path
}

func stagingLeftovers(t *testing.T, root string) []string {
	t.Helper()

	matches, err := filepath.Glob(filepath.Join(root, stagingPrefix+"*"))
	require.NoError(t, err)

	return matches
}

// TestNew_RequiresIntegration verifies that the OS collaborator is mandatory.
func TestNew_RequiresIntegration(t *testing.T) {
	t.Parallel()

	_, err := New(Options{})
	require.Error(t, err)
}

// TestStage_String verifies stage names.
func TestStage_String(t *testing.T) {
	t.Parallel()

	require.Equal(t, "idle", StageIdle.String())
	require.Equal(t, "registered", StageRegistered.String())
	require.Equal(t, "complete", StageComplete.String())
	require.Equal(t, "unknown", Stage(42).String())
}

// TestRemoveOldVersions_RetriesLockedDirectory verifies that a directory locked twice is removed without warnings.
func TestRemoveOldVersions_RetriesLockedDirectory(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	mkdirs(t, root, "version-a")

	remover := newLockingRemover(map[string]int{"version-a": 2})
	m := newTestManager(t, &fakeIntegration{}, remover.Remove)
	ctx, logs := observedContext()

	report, err := m.RemoveOldVersions(ctx, root)
	require.NoError(t, err)
	require.Equal(t, []string{filepath.Join(root, "version-a")}, report.Removed)
	require.Empty(t, report.Skipped)
	require.Equal(t, 3, remover.calls["version-a"])
	require.Zero(t, logs.FilterLevelExact(zapcore.WarnLevel).Len())

	_, err = os.Stat(filepath.Join(root, "version-a"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

// TestRemoveOldVersions_SkipsPermanentlyLocked verifies one warning per locked directory and that the loop continues.
func TestRemoveOldVersions_SkipsPermanentlyLocked(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	mkdirs(t, root, "version-a", "version-b", "version-c", ".staging-version-z-1", "LocalStorage")
	require.NoError(t, os.WriteFile(filepath.Join(root, "version-file"), []byte("x"), 0o600))

	remover := newLockingRemover(map[string]int{"version-b": 100})
	m := newTestManager(t, &fakeIntegration{}, remover.Remove)
	ctx, logs := observedContext()

	report, err := m.RemoveOldVersions(ctx, root)
	require.NoError(t, err)
	require.Equal(t, []string{
		filepath.Join(root, ".staging-version-z-1"),
		filepath.Join(root, "version-a"),
		filepath.Join(root, "version-c"),
	}, report.Removed)
	require.Equal(t, []string{filepath.Join(root, "version-b")}, report.Skipped)
	require.Equal(t, 3, remover.calls["version-b"])

	warnings := logs.FilterLevelExact(zapcore.WarnLevel).All()
	require.Len(t, warnings, 1)
	require.Equal(t, filepath.Join(root, "version-b"), warnings[0].ContextMap()["path"])

	// Unrelated entries are kept.
	_, err = os.Stat(filepath.Join(root, "LocalStorage"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(root, "version-file"))
	require.NoError(t, err)
}

// TestRemoveOldVersions_OtherErrorsSurface verifies that non-lock failures are returned.
func TestRemoveOldVersions_OtherErrorsSurface(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	mkdirs(t, root, "version-a")

	calls := 0
	m := newTestManager(t, &fakeIntegration{}, func(string) error {
		calls++

		return errors.New("disk on fire")
	})

	_, err := m.RemoveOldVersions(context.Background(), root)
	require.ErrorContains(t, err, "disk on fire")
	require.Equal(t, 1, calls)
}

// TestRemoveOldVersions_MissingRoot verifies that a fresh machine has nothing to remove.
func TestRemoveOldVersions_MissingRoot(t *testing.T) {
	t.Parallel()

	m := newTestManager(t, &fakeIntegration{}, nil)

	report, err := m.RemoveOldVersions(context.Background(), filepath.Join(t.TempDir(), "missing"))
	require.NoError(t, err)
	require.Empty(t, report.Removed)
	require.Empty(t, report.Skipped)
}

// TestStopProcesses_BestEffort verifies that kill failures are logged and the settle delay honours cancellation.
func TestStopProcesses_BestEffort(t *testing.T) {
	t.Parallel()

	integration := &fakeIntegration{stopErr: errors.New("access denied")}
	m := newTestManager(t, integration, nil)
	ctx, logs := observedContext()

	require.NoError(t, m.StopProcesses(ctx, release.Player))
	require.Equal(t, [][]string{release.Player.KnownProcesses()}, integration.stopped)
	require.Equal(t, 1, logs.FilterLevelExact(zapcore.WarnLevel).Len())

	slow, err := New(Options{Integration: &fakeIntegration{}, SettleDelay: time.Hour})
	require.NoError(t, err)

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	require.ErrorIs(t, slow.StopProcesses(cancelled, release.Studio), context.Canceled)
}

// TestPrepareDirectory verifies idempotent creation and hash validation.
func TestPrepareDirectory(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	m := newTestManager(t, &fakeIntegration{}, nil)

	first, err := m.PrepareDirectory(root, "version-abc")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(root, "version-abc"), first)

	second, err := m.PrepareDirectory(root, "version-abc")
	require.NoError(t, err)
	require.Equal(t, first, second)

	_, err = m.PrepareDirectory(root, "../version-abc")
	require.ErrorIs(t, err, release.ErrFormat)

	_, err = m.PrepareDirectory(root, "abc")
	require.ErrorIs(t, err, release.ErrFormat)
}

// TestExtract_WritesTree verifies that every file lands at its path and staging is cleaned up.
func TestExtract_WritesTree(t *testing.T) {
	t.Parallel()

	entries := map[string]string{
		"AppSettings.xml":             "<Settings/>",
		"content/fonts/arial.ttf":     "font",
		`content\sounds\ouch.ogg`:     "sound",
		"PlatformContent/pc/terrain/": "",
		"RobloxPlayerBeta.exe":        "MZ",
	}
	archive := buildArchive(t, entries,
		"AppSettings.xml", "content/fonts/arial.ttf", `content\sounds\ouch.ogg`, "PlatformContent/pc/terrain/", "RobloxPlayerBeta.exe")

	root := t.TempDir()
	m := newTestManager(t, &fakeIntegration{}, nil)

	target, err := m.PrepareDirectory(root, "version-abc")
	require.NoError(t, err)

	var seen []string

	stats, err := m.Extract(context.Background(), archive, target, func(done, total int, name string) {
		require.Equal(t, 5, total)
		seen = append(seen, name)
	})
	require.NoError(t, err)
	require.Equal(t, 4, stats.Files)
	require.EqualValues(t, 22, stats.Bytes)
	require.Len(t, seen, 4)

	for name, body := range map[string]string{
		"AppSettings.xml":         "<Settings/>",
		"content/fonts/arial.ttf": "font",
		"content/sounds/ouch.ogg": "sound",
		"RobloxPlayerBeta.exe":    "MZ",
	} {
		data, err := os.ReadFile(filepath.Join(target, filepath.FromSlash(name)))
		require.NoError(t, err, name)
		require.Equal(t, body, string(data), name)
	}

	info, err := os.Stat(filepath.Join(target, "PlatformContent", "pc", "terrain"))
	require.NoError(t, err)
	require.True(t, info.IsDir())

	require.Empty(t, stagingLeftovers(t, root))

	files, size, err := DirectoryUsage(context.Background(), target)
	require.NoError(t, err)
	require.Equal(t, 4, files)
	require.Equal(t, stats.Bytes, size)
}

// TestExtract_RejectsEscapingEntries verifies zip-slip protection.
func TestExtract_RejectsEscapingEntries(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"../evil.txt", `..\evil.txt`, "/abs/evil.txt", "content/../../evil.txt"} {
		archive := buildArchive(t, map[string]string{"ok.txt": "ok", name: "evil"}, "ok.txt", name)

		root := t.TempDir()
		m := newTestManager(t, &fakeIntegration{}, nil)

		target, err := m.PrepareDirectory(root, "version-abc")
		require.NoError(t, err)

		_, err = m.Extract(context.Background(), archive, target, nil)
		require.ErrorIs(t, err, release.ErrFormat, name)

		_, err = os.Stat(target)
		require.ErrorIs(t, err, os.ErrNotExist, name)
		require.Empty(t, stagingLeftovers(t, root), name)

		_, err = os.Stat(filepath.Join(root, "evil.txt"))
		require.ErrorIs(t, err, os.ErrNotExist, name)
	}
}

// TestExtract_WriteFailureIsPartialWrite verifies that a failed write leaves no directory behind.
func TestExtract_WriteFailureIsPartialWrite(t *testing.T) {
	t.Parallel()

	// "a" is a file, so "a/b" cannot be created.
	archive := buildArchive(t, map[string]string{"a": "file", "a/b": "nested"}, "a", "a/b")

	root := t.TempDir()
	m := newTestManager(t, &fakeIntegration{}, nil)

	target, err := m.PrepareDirectory(root, "version-abc")
	require.NoError(t, err)

	_, err = m.Extract(context.Background(), archive, target, nil)
	require.ErrorIs(t, err, release.ErrPartialWrite)

	_, err = os.Stat(target)
	require.ErrorIs(t, err, os.ErrNotExist)
	require.Empty(t, stagingLeftovers(t, root))
}

// TestExtract_Cancelled verifies that cancellation never promotes a partial tree.
func TestExtract_Cancelled(t *testing.T) {
	t.Parallel()

	archive := buildArchive(t, map[string]string{"a.txt": "a", "b.txt": "b"}, "a.txt", "b.txt")

	root := t.TempDir()
	m := newTestManager(t, &fakeIntegration{}, nil)

	target, err := m.PrepareDirectory(root, "version-abc")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())

	_, err = m.Extract(ctx, archive, target, func(int, int, string) { cancel() })
	require.ErrorIs(t, err, context.Canceled)

	_, err = os.Stat(target)
	require.ErrorIs(t, err, os.ErrNotExist)
	require.Empty(t, stagingLeftovers(t, root))
}

// TestInstall_Player verifies every stage of a player install including registration.
func TestInstall_Player(t *testing.T) {
	t.Parallel()

	archive := buildArchive(t, map[string]string{"RobloxPlayerBeta.exe": "MZ"}, "RobloxPlayerBeta.exe")

	root := t.TempDir()
	mkdirs(t, root, "version-old")

	integration := &fakeIntegration{}
	m := newTestManager(t, integration, nil)

	report, err := m.Install(context.Background(), release.Player, root, "version-new", archive, nil)
	require.NoError(t, err)
	require.Equal(t, StageComplete, report.Stage)
	require.Equal(t, filepath.Join(root, "version-new"), report.Directory)
	require.Equal(t, []string{filepath.Join(root, "version-old")}, report.Removal.Removed)
	require.Equal(t, 1, report.Extract.Files)
	require.NoError(t, report.RegisterErr)
	require.Equal(t, []string{filepath.Join(root, "version-new", "RobloxPlayerBeta.exe")}, integration.registered)

	versions, err := ListInstalled(root)
	require.NoError(t, err)
	require.Len(t, versions, 1)
	require.Equal(t, "version-new", versions[0].Hash)
}

// TestInstall_RegisterFailureIsReported verifies that a failed registration keeps the install.
func TestInstall_RegisterFailureIsReported(t *testing.T) {
	t.Parallel()

	archive := buildArchive(t, map[string]string{"RobloxPlayerBeta.exe": "MZ"}, "RobloxPlayerBeta.exe")
	root := t.TempDir()

	integration := &fakeIntegration{registerErr: errors.New("registry denied")}
	m := newTestManager(t, integration, nil)

	report, err := m.Install(context.Background(), release.Player, root, "version-new", archive, nil)
	require.NoError(t, err)
	require.Equal(t, StageComplete, report.Stage)
	require.ErrorContains(t, report.RegisterErr, "registry denied")

	_, err = os.Stat(filepath.Join(root, "version-new", "RobloxPlayerBeta.exe"))
	require.NoError(t, err)
}

// TestInstall_StudioSkipsRegistration verifies that studio installs never touch URL schemes.
func TestInstall_StudioSkipsRegistration(t *testing.T) {
	t.Parallel()

	archive := buildArchive(t, map[string]string{"RobloxStudioBeta.exe": "MZ"}, "RobloxStudioBeta.exe")

	integration := &fakeIntegration{}
	m := newTestManager(t, integration, nil)

	report, err := m.Install(context.Background(), release.Studio, t.TempDir(), "version-s", archive, nil)
	require.NoError(t, err)
	require.Equal(t, StageComplete, report.Stage)
	require.Empty(t, integration.registered)
	require.Equal(t, [][]string{release.Studio.KnownProcesses()}, integration.stopped)
}

// TestInstall_StopsAtFailedStage verifies that the report carries the last completed stage.
func TestInstall_StopsAtFailedStage(t *testing.T) {
	t.Parallel()

	m := newTestManager(t, &fakeIntegration{}, nil)

	report, err := m.Install(context.Background(), release.Studio, t.TempDir(), "version-s",
		filepath.Join(t.TempDir(), "missing.zip"), nil)
	require.ErrorIs(t, err, release.ErrFormat)
	require.Equal(t, StageDirectoryPrepared, report.Stage)
}

// TestNewestExecutable verifies that the most recently modified version wins.
func TestNewestExecutable(t *testing.T) {
	t.Parallel()

	root := t.TempDir()

	for i, name := range []string{"version-old", "version-new", "version-empty"} {
		dir := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(dir, 0o755))

		if name != "version-empty" {
			require.NoError(t, os.WriteFile(filepath.Join(dir, "RobloxPlayerBeta.exe"), []byte("MZ"), 0o600))
		}

		stamp := time.Now().Add(time.Duration(i-3) * time.Hour)
		require.NoError(t, os.Chtimes(dir, stamp, stamp))
	}

	exe, err := NewestExecutable(root, release.Player)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(root, "version-new", "RobloxPlayerBeta.exe"), exe)

	_, err = NewestExecutable(t.TempDir(), release.Player)
	require.ErrorIs(t, err, os.ErrNotExist)
}

// caseInsensitive reports whether dir treats names differing only by case as one file.
func caseInsensitive(t *testing.T, dir string) bool {
	t.Helper()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "CaseCheck"), nil, 0o600))

	_, err := os.Stat(filepath.Join(dir, "casecheck"))

	return err == nil
}

// TestExtract_DuplicateEntriesOverwrite verifies that a repeated entry name keeps the last body.
func TestExtract_DuplicateEntriesOverwrite(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	zw := zip.NewWriter(&buf)

	for _, body := range []string{"first", "second"} {
		w, err := zw.Create("content/shared.dll")
		require.NoError(t, err)

		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}

	require.NoError(t, zw.Close())

	archive := filepath.Join(t.TempDir(), "archive.zip")
	require.NoError(t, os.WriteFile(archive, buf.Bytes(), 0o600))

	root := t.TempDir()
	m := newTestManager(t, &fakeIntegration{}, nil)

	target, err := m.PrepareDirectory(root, "version-dup")
	require.NoError(t, err)

	stats, err := m.Extract(context.Background(), archive, target, nil)
	require.NoError(t, err)
	require.Equal(t, 1, stats.Files)

	data, err := os.ReadFile(filepath.Join(target, "content", "shared.dll"))
	require.NoError(t, err)
	require.Equal(t, "second", string(data))
}

// TestExtract_CaseCollidingEntries verifies that entries differing only by case
// install as one file where the filesystem folds case.
func TestExtract_CaseCollidingEntries(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	if !caseInsensitive(t, t.TempDir()) {
		t.Skip("filesystem is case-sensitive")
	}

	archive := buildArchive(t, map[string]string{
		"Foo.dll": "upper",
		"foo.dll": "lower",
	}, "Foo.dll", "foo.dll")

	m := newTestManager(t, &fakeIntegration{}, nil)

	target, err := m.PrepareDirectory(root, "version-case")
	require.NoError(t, err)

	stats, err := m.Extract(context.Background(), archive, target, nil)
	require.NoError(t, err)
	require.Equal(t, 1, stats.Files)
	require.DirExists(t, target)
	require.Empty(t, stagingLeftovers(t, root))

	data, err := os.ReadFile(filepath.Join(target, "foo.dll"))
	require.NoError(t, err)
	require.Equal(t, "lower", string(data))
}
