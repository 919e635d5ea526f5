package integration

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/KirshWasHere/DowngradeRoblox/internal/app"
	"github.com/KirshWasHere/DowngradeRoblox/internal/cdn/cdntest"
	"github.com/KirshWasHere/DowngradeRoblox/internal/config"
)

// fakeIntegration stands in for the operating system.
type fakeIntegration struct {
	mu         sync.Mutex
	stopped    int
	registered []string
}

func (f *fakeIntegration) StopKnownProcesses(context.Context, []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.stopped++

	return nil
}

func (f *fakeIntegration) RegisterLaunchHandler(_ context.Context, exePath string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.registered = append(f.registered, exePath)

	return nil
}

// environment is a CDN plus a settings file pointing at it.
type environment struct {
	cdn         *cdntest.Server
	cfg         *config.Config
	integration *fakeIntegration
}

// newEnvironment starts a CDN and lets mutate adjust the settings before they are saved.
func newEnvironment(t *testing.T, mutate func(cfg *config.Config)) *environment {
	t.Helper()

	srv := cdntest.NewServer(t)
	dir := t.TempDir()

	cfg := &config.Config{
		DeployHistoryURL: srv.HistoryURL(),
		CDNBaseURL:       srv.URL,
		PlayerRoot:       filepath.Join(dir, "Roblox", "Versions"),
		StudioRoot:       filepath.Join(dir, "Roblox Studio", "Versions"),
		DownloadsDir:     filepath.Join(dir, "downloads"),
		DownloadWorkers:  4,
		StateFile:        filepath.Join(dir, "installs.json"),
		Cache:            config.CacheConfig{Dir: filepath.Join(dir, "cache")},
		LogLevel:         "error",
	}

	if mutate != nil {
		mutate(cfg)
	}

	return &environment{cdn: srv, cfg: cfg, integration: &fakeIntegration{}}
}

// open saves the settings file and builds the application from it.
func (e *environment) open(t *testing.T) *app.App {
	t.Helper()

	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, config.Save(path, e.cfg))

	a, err := app.New(context.Background(), app.Options{ConfigPath: path, Integration: e.integration})
	require.NoError(t, err)

	t.Cleanup(func() { a.Close(context.Background()) })

	return a
}
