package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/KirshWasHere/DowngradeRoblox/internal/domain/release"
)

// TestValidate checks default filling and format validations for Config.
func TestValidate(t *testing.T) {
	t.Parallel()

	require.Error(t, Validate(nil))

	cfg := new(Config)
	require.NoError(t, Validate(cfg))
	require.Equal(t, DefaultDeployHistoryURL, cfg.DeployHistoryURL)
	require.Equal(t, DefaultHistoryLimit, cfg.HistoryLimit)
	require.Equal(t, DefaultRemovalAttempts, cfg.Removal.Attempts)
	require.Equal(t, DefaultLogLevel, cfg.LogLevel)
	require.NotEqual(t, cfg.PlayerRoot, cfg.StudioRoot)

	// Bad URL.
	cfg = &Config{CDNBaseURL: "setup-aws.rbxcdn.com"}
	require.Error(t, Validate(cfg))

	// Unsupported scheme.
	cfg = &Config{DeployHistoryURL: "ftp://example.com/DeployHistory.txt"}
	require.Error(t, Validate(cfg))

	// Shared roots.
	cfg = &Config{PlayerRoot: "/tmp/versions", StudioRoot: "/tmp/versions/"}
	require.Error(t, Validate(cfg))

	// Too many workers.
	cfg = &Config{DownloadWorkers: MaxDownloadWorkers + 1}
	require.Error(t, Validate(cfg))

	// Unknown level.
	cfg = &Config{LogLevel: "chatty"}
	require.Error(t, Validate(cfg))

	// Trailing slash is dropped from the CDN base.
	cfg = &Config{CDNBaseURL: "https://cdn.example.com/"}
	require.NoError(t, Validate(cfg))
	require.Equal(t, "https://cdn.example.com", cfg.CDNBaseURL)
}

// TestRoot verifies that each variant resolves to its own versions directory.
func TestRoot(t *testing.T) {
	t.Parallel()

	cfg := &Config{PlayerRoot: "p", StudioRoot: "s"}
	require.Equal(t, "p", cfg.Root(release.Player))
	require.Equal(t, "s", cfg.Root(release.Studio))
}

// TestSaveLoadRoundtrip ensures settings are persisted and loaded back correctly.
func TestSaveLoadRoundtrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "settings.yaml")

	cfg := &Config{
		CDNBaseURL:      "https://mirror.local",
		HistoryLimit:    7,
		PlayerRoot:      filepath.Join(dir, "player"),
		StudioRoot:      filepath.Join(dir, "studio"),
		KeepArchive:     true,
		DownloadWorkers: 4,
		SettleDelay:     500 * time.Millisecond,
	}
	cfg.Removal.Attempts = 5
	cfg.Removal.Delay = 250 * time.Millisecond

	require.NoError(t, Save(path, cfg))

	// File exists.
	_, err := os.Stat(path)
	require.NoError(t, err)

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg.CDNBaseURL, loaded.CDNBaseURL)
	require.Equal(t, 7, loaded.HistoryLimit)
	require.Equal(t, cfg.PlayerRoot, loaded.PlayerRoot)
	require.Equal(t, cfg.StudioRoot, loaded.StudioRoot)
	require.True(t, loaded.KeepArchive)
	require.Equal(t, 4, loaded.DownloadWorkers)
	require.Equal(t, 500*time.Millisecond, loaded.SettleDelay)
	require.Equal(t, 5, loaded.Removal.Attempts)
	require.Equal(t, 250*time.Millisecond, loaded.Removal.Delay)
}

// TestLoad_PartialFile verifies that keys missing from the file keep their defaults.
func TestLoad_PartialFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte("history_limit: 3\nremoval:\n  delay: 10ms\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 3, cfg.HistoryLimit)
	require.Equal(t, 10*time.Millisecond, cfg.Removal.Delay)
	require.Equal(t, DefaultRemovalAttempts, cfg.Removal.Attempts)
	require.Equal(t, DefaultSettleDelay, cfg.SettleDelay)
	require.True(t, cfg.Cache.Enabled)
}

// TestLoad_MissingFile verifies that only the default settings file is optional.
func TestLoad_MissingFile(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, DefaultCDNBaseURL, cfg.CDNBaseURL)
	require.Equal(t, Default(), cfg)
	require.Equal(t, DefaultSettleDelay, cfg.SettleDelay)
	require.Equal(t, DefaultRemovalDelay, cfg.Removal.Delay)

	_, err = Load("does-not-exist.yaml")
	require.Error(t, err)
}

// TestLoad_EnvOverride verifies that environment variables win over the file.
func TestLoad_EnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte("history_limit: 3\n"), 0o600))

	t.Setenv("DOWNGRADE_ROBLOX_HISTORY_LIMIT", "9")
	t.Setenv("DOWNGRADE_ROBLOX_REMOVAL_ATTEMPTS", "6")
	t.Setenv("DOWNGRADE_ROBLOX_KEEP_ARCHIVE", "true")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 9, cfg.HistoryLimit)
	require.Equal(t, 6, cfg.Removal.Attempts)
	require.True(t, cfg.KeepArchive)
}
