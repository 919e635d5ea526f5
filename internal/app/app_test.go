package app

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/KirshWasHere/DowngradeRoblox/internal/cdn/cdntest"
	"github.com/KirshWasHere/DowngradeRoblox/internal/config"
	"github.com/KirshWasHere/DowngradeRoblox/internal/domain/release"
	"github.com/KirshWasHere/DowngradeRoblox/internal/service/pipeline"
)

const (
	olderHash  = "version-0000000000000001"
	latestHash = "version-0000000000000002"
)

type recordingIntegration struct {
	mu         sync.Mutex
	stopped    [][]string
	registered []string
}

func (r *recordingIntegration) StopKnownProcesses(_ context.Context, names []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.stopped = append(r.stopped, names)

	return nil
}

func (r *recordingIntegration) RegisterLaunchHandler(_ context.Context, exePath string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.registered = append(r.registered, exePath)

	return nil
}

func newCDN(t *testing.T) *cdntest.Server {
	t.Helper()

	srv := cdntest.NewServer(t)
	srv.SetHistory(
		cdntest.HistoryLine(release.Player, olderHash, "10/1/2025 9:00:00 AM") +
			cdntest.HistoryLine(release.Player, latestHash, "10/2/2025 9:00:00 AM"),
	)

	pkg := cdntest.Zip(t, cdntest.File{Name: "RobloxPlayerBeta.exe", Body: "player binary"})
	srv.AddVersion(latestHash, []string{"RobloxApp.zip"}, map[string][]byte{"RobloxApp.zip": pkg})

	return srv
}

func testConfig(t *testing.T, srv *cdntest.Server) *config.Config {
	t.Helper()

	dir := t.TempDir()

	return &config.Config{
		DeployHistoryURL: srv.HistoryURL(),
		CDNBaseURL:       srv.URL,
		PlayerRoot:       filepath.Join(dir, "player"),
		StudioRoot:       filepath.Join(dir, "studio"),
		DownloadsDir:     filepath.Join(dir, "downloads"),
		DownloadWorkers:  2,
		StateFile:        filepath.Join(dir, "state", "installs.json"),
		MetricsFile:      filepath.Join(dir, "metrics.prom"),
		Cache:            config.CacheConfig{Dir: filepath.Join(dir, "cache")},
		LogLevel:         "error",
	}
}

func newTestApp(t *testing.T, cfg *config.Config, integration *recordingIntegration) *App {
	t.Helper()

	a, err := New(context.Background(), Options{Config: cfg, Integration: integration})
	require.NoError(t, err)

	return a
}

// TestApp_InstallListClean verifies the full lifecycle: install, listing with the
// recorded marker, cleaning and the metrics file written on close.
func TestApp_InstallListClean(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	cfg := testConfig(t, newCDN(t))
	integration := &recordingIntegration{}
	a := newTestApp(t, cfg, integration)

	results := a.Install(ctx, []release.Variant{release.Player}, pipeline.Latest())
	require.Len(t, results, 1)
	require.NoError(t, results[0].Err)
	require.Equal(t, latestHash, results[0].Hash)

	exe := filepath.Join(cfg.PlayerRoot, latestHash, "RobloxPlayerBeta.exe")
	require.FileExists(t, exe)
	require.Equal(t, []string{exe}, integration.registered)

	// The archive is removed after a successful install.
	require.NoFileExists(t, results[0].ArchivePath)

	versions, err := a.Versions(ctx, release.Player)
	require.NoError(t, err)
	require.Len(t, versions, 1)
	require.Equal(t, latestHash, versions[0].Hash)
	require.True(t, versions[0].Recorded)
	require.Equal(t, 2, versions[0].Files)

	reports, err := a.Clean(ctx, []release.Variant{release.Player})
	require.NoError(t, err)
	require.Len(t, reports[release.Player].Removed, 1)
	require.Empty(t, reports[release.Player].Skipped)
	require.NoDirExists(t, filepath.Join(cfg.PlayerRoot, latestHash))

	versions, err = a.Versions(ctx, release.Player)
	require.NoError(t, err)
	require.Empty(t, versions)

	a.Close(ctx)

	data, err := os.ReadFile(cfg.MetricsFile)
	require.NoError(t, err)
	require.Contains(t, string(data), "downgrade_roblox_pipeline_runs_total")
}

// TestApp_History verifies that the history is returned newest first and limited.
func TestApp_History(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	a := newTestApp(t, testConfig(t, newCDN(t)), &recordingIntegration{})
	t.Cleanup(func() { a.Close(ctx) })

	entries, err := a.History(ctx, release.Player, 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, latestHash, entries[0].Hash)

	entries, err = a.History(ctx, release.Player, 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, olderHash, entries[1].Hash)
}

// TestApp_CachedHistory verifies that an enabled cache serves the deploy history
// without a second request.
func TestApp_CachedHistory(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	srv := newCDN(t)
	cfg := testConfig(t, srv)
	cfg.Cache.Enabled = true

	a := newTestApp(t, cfg, &recordingIntegration{})
	t.Cleanup(func() { a.Close(ctx) })

	for i := 0; i < 2; i++ {
		_, err := a.History(ctx, release.Player, 0)
		require.NoError(t, err)
	}

	require.Equal(t, 1, srv.Requests("DeployHistory.txt"))

	require.NoError(t, a.PurgeCache())

	_, err := a.History(ctx, release.Player, 0)
	require.NoError(t, err)
	require.Equal(t, 2, srv.Requests("DeployHistory.txt"))
}

// TestApp_LaunchWithoutInstall verifies that launching fails when nothing is installed.
func TestApp_LaunchWithoutInstall(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	a := newTestApp(t, testConfig(t, newCDN(t)), &recordingIntegration{})
	t.Cleanup(func() { a.Close(ctx) })

	require.ErrorIs(t, a.Launch(ctx), os.ErrNotExist)
	require.ErrorIs(t, a.Register(ctx), os.ErrNotExist)
	require.ErrorIs(t, a.PurgeCache(), errCacheDisabled)
}

// TestNew_InvalidConfig verifies that configuration errors stop construction.
func TestNew_InvalidConfig(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t, newCDN(t))
	cfg.CDNBaseURL = "ftp://example.com"

	_, err := New(context.Background(), Options{Config: cfg, Integration: &recordingIntegration{}})
	require.Error(t, err)
}
