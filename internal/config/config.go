package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/KirshWasHere/DowngradeRoblox/internal/domain/release"
	"github.com/KirshWasHere/DowngradeRoblox/internal/logger"
	"github.com/KirshWasHere/DowngradeRoblox/internal/retry"
)

// CacheConfig controls the local cache of CDN documents.
type CacheConfig struct {
	// Enabled turns the cache on.
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
	// Dir is the badger directory.
	Dir string `yaml:"dir" mapstructure:"dir"`
	// HistoryTTL is how long a fetched deploy history is reused.
	HistoryTTL time.Duration `yaml:"history_ttl" mapstructure:"history_ttl"`
}

// Config holds every setting of the install pipeline.
type Config struct {
	// DeployHistoryURL is the location of the deploy history change log.
	DeployHistoryURL string `yaml:"deploy_history_url" mapstructure:"deploy_history_url"`
	// CDNBaseURL is the root that version manifests and packages are fetched from.
	CDNBaseURL string `yaml:"cdn_base_url" mapstructure:"cdn_base_url"`
	// Timeout bounds connecting and waiting for response headers of a CDN request.
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
	// HistoryLimit is how many distinct versions are read from the deploy history.
	HistoryLimit int `yaml:"history_limit" mapstructure:"history_limit"`
	// PlayerRoot is the directory holding installed player versions.
	PlayerRoot string `yaml:"player_root" mapstructure:"player_root"`
	// StudioRoot is the directory holding installed studio versions.
	StudioRoot string `yaml:"studio_root" mapstructure:"studio_root"`
	// DownloadsDir is where assembled archives are written.
	DownloadsDir string `yaml:"downloads_dir" mapstructure:"downloads_dir"`
	// KeepArchive keeps the assembled archive after a successful install.
	KeepArchive bool `yaml:"keep_archive" mapstructure:"keep_archive"`
	// DownloadWorkers is the number of packages downloaded in parallel.
	DownloadWorkers int `yaml:"download_workers" mapstructure:"download_workers"`
	// SettleDelay is the pause after stopping processes so file locks are released.
	SettleDelay time.Duration `yaml:"settle_delay" mapstructure:"settle_delay"`
	// Removal is the retry policy for deleting locked version directories.
	Removal retry.Policy `yaml:"removal" mapstructure:"removal"`
	// Cache configures the CDN document cache.
	Cache CacheConfig `yaml:"cache" mapstructure:"cache"`
	// StateFile records the installed versions.
	StateFile string `yaml:"state_file" mapstructure:"state_file"`
	// MetricsFile, when set, receives Prometheus metrics in text format at exit.
	MetricsFile string `yaml:"metrics_file" mapstructure:"metrics_file"`
	// LogLevel is the minimum level of log messages.
	LogLevel string `yaml:"log_level" mapstructure:"log_level"`
}

const (
	// DefaultConfigFilename is the settings file looked up in the working directory.
	DefaultConfigFilename = "downgrade-roblox-settings.yaml"

	// EnvPrefix prefixes environment overrides.
	EnvPrefix = "DOWNGRADE_ROBLOX"

	// DefaultDeployHistoryURL is the public deploy history.
	DefaultDeployHistoryURL = "https://setup.rbxcdn.com/DeployHistory.txt"

	// DefaultCDNBaseURL serves manifests and packages of every retained version.
	DefaultCDNBaseURL = "https://setup-aws.rbxcdn.com"

	// DefaultTimeout bounds connecting to the CDN and waiting for headers.
	DefaultTimeout = 30 * time.Second

	// DefaultHistoryLimit is the number of versions offered for browsing.
	DefaultHistoryLimit = 15

	// DefaultDownloadWorkers keeps package downloads sequential.
	DefaultDownloadWorkers = 1

	// MaxDownloadWorkers caps parallel package downloads.
	MaxDownloadWorkers = 16

	// DefaultSettleDelay gives terminated processes time to release file locks.
	DefaultSettleDelay = 2 * time.Second

	// DefaultRemovalAttempts is the number of tries to delete a locked directory.
	DefaultRemovalAttempts = 3

	// DefaultRemovalDelay is the pause between two deletion tries.
	DefaultRemovalDelay = time.Second

	// DefaultHistoryTTL is how long a cached deploy history stays fresh.
	DefaultHistoryTTL = 5 * time.Minute

	// DefaultLogLevel is used when no level is configured.
	DefaultLogLevel = "info"

	// DefaultFilePermissions is the default file permission for config files.
	DefaultFilePermissions = 0o600

	// appName names the application directories under the XDG base directories.
	appName = "downgrade-roblox"
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errInvalidSetting is returned when a setting is out of range.
	errInvalidSetting = errors.New("invalid setting")
)

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	cfg := &Config{
		SettleDelay: DefaultSettleDelay,
		Removal:     retry.Policy{Attempts: DefaultRemovalAttempts, Delay: DefaultRemovalDelay},
		Cache:       CacheConfig{Enabled: true},
	}

	fillDefaults(cfg)

	return cfg
}

// Load builds the configuration from defaults, the YAML file at path and the environment.
// An empty path looks for DefaultConfigFilename and tolerates its absence;
// an explicit path must exist.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	required := path != ""
	if !required {
		path = DefaultConfigFilename
	}

	path = filepath.Clean(path)

	switch _, err := os.Stat(path); {
	case err == nil:
		v.SetConfigFile(path)

		if err = v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read settings: %w", err)
		}
	case errors.Is(err, fs.ErrNotExist) && !required:
	default:
		return nil, fmt.Errorf("read settings: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes the configuration to the provided path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate fills unset fields with defaults and checks the rest.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	fillDefaults(cfg)

	for name, raw := range map[string]string{
		"deploy_history_url": cfg.DeployHistoryURL,
		"cdn_base_url":       cfg.CDNBaseURL,
	} {
		u, err := url.ParseRequestURI(raw)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}

		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("%s must be an http(s) URL: %w", name, errInvalidSetting)
		}
	}

	if cfg.DownloadWorkers > MaxDownloadWorkers {
		return fmt.Errorf("download_workers must not exceed %d: %w", MaxDownloadWorkers, errInvalidSetting)
	}

	if filepath.Clean(cfg.PlayerRoot) == filepath.Clean(cfg.StudioRoot) {
		return fmt.Errorf("player_root and studio_root must differ: %w", errInvalidSetting)
	}

	if _, ok := logger.ParseLogLevel(cfg.LogLevel); !ok {
		return fmt.Errorf("log_level %q: %w", cfg.LogLevel, errInvalidSetting)
	}

	return nil
}

// Root returns the versions directory of a variant.
func (c *Config) Root(v release.Variant) string {
	if v == release.Player {
		return c.PlayerRoot
	}

	return c.StudioRoot
}

func fillDefaults(cfg *Config) {
	if cfg.DeployHistoryURL == "" {
		cfg.DeployHistoryURL = DefaultDeployHistoryURL
	}

	if cfg.CDNBaseURL == "" {
		cfg.CDNBaseURL = DefaultCDNBaseURL
	}

	cfg.CDNBaseURL = strings.TrimRight(cfg.CDNBaseURL, "/")

	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = DefaultHistoryLimit
	}

	if cfg.PlayerRoot == "" {
		cfg.PlayerRoot = defaultPlayerRoot()
	}

	if cfg.StudioRoot == "" {
		cfg.StudioRoot = defaultStudioRoot()
	}

	if cfg.DownloadsDir == "" {
		cfg.DownloadsDir = filepath.Join(xdg.CacheHome, appName, "downloads")
	}

	if cfg.DownloadWorkers <= 0 {
		cfg.DownloadWorkers = DefaultDownloadWorkers
	}

	if cfg.SettleDelay < 0 {
		cfg.SettleDelay = 0
	}

	if cfg.Removal.Attempts <= 0 {
		cfg.Removal.Attempts = DefaultRemovalAttempts
	}

	if cfg.Removal.Delay < 0 {
		cfg.Removal.Delay = 0
	}

	if cfg.Cache.Dir == "" {
		cfg.Cache.Dir = filepath.Join(xdg.CacheHome, appName, "cdn")
	}

	if cfg.Cache.HistoryTTL <= 0 {
		cfg.Cache.HistoryTTL = DefaultHistoryTTL
	}

	if cfg.StateFile == "" {
		cfg.StateFile = filepath.Join(xdg.StateHome, appName, "installs.json")
	}

	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	}
}

// setDefaults registers every key with viper so environment overrides are picked up.
func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("deploy_history_url", d.DeployHistoryURL)
	v.SetDefault("cdn_base_url", d.CDNBaseURL)
	v.SetDefault("timeout", d.Timeout)
	v.SetDefault("history_limit", d.HistoryLimit)
	v.SetDefault("player_root", d.PlayerRoot)
	v.SetDefault("studio_root", d.StudioRoot)
	v.SetDefault("downloads_dir", d.DownloadsDir)
	v.SetDefault("keep_archive", d.KeepArchive)
	v.SetDefault("download_workers", d.DownloadWorkers)
	v.SetDefault("settle_delay", d.SettleDelay)
	v.SetDefault("removal.attempts", d.Removal.Attempts)
	v.SetDefault("removal.delay", d.Removal.Delay)
	v.SetDefault("cache.enabled", d.Cache.Enabled)
	v.SetDefault("cache.dir", d.Cache.Dir)
	v.SetDefault("cache.history_ttl", d.Cache.HistoryTTL)
	v.SetDefault("state_file", d.StateFile)
	v.SetDefault("metrics_file", d.MetricsFile)
	v.SetDefault("log_level", d.LogLevel)
}

// defaultPlayerRoot mirrors the official bootstrapper, which installs under %LOCALAPPDATA%.
// On Windows xdg.DataHome resolves to %LOCALAPPDATA%.
func defaultPlayerRoot() string {
	return filepath.Join(xdg.DataHome, "Roblox", "Versions")
}

func defaultStudioRoot() string {
	return filepath.Join(xdg.DataHome, "Roblox Studio", "Versions")
}
