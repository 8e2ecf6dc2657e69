package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const appName = "fetchq"

// Config holds the application configuration. It is constructed once at
// startup and passed into every component; there is no ambient global.
type Config struct {
	TargetDir           string `toml:"target_dir"`
	DatabasePath        string `toml:"database_path"`
	PollIntervalSeconds int    `toml:"poll_interval_seconds"`
	MaxRetries          int    `toml:"max_retries"`
	LogLevel            string `toml:"log_level"`
	LogFormat           string `toml:"log_format"`

	API   APIConfig   `toml:"api"`
	YtDlp YtDlpConfig `toml:"ytdlp"`
}

// APIConfig configures the daemon's optional HTTP enqueue API.
type APIConfig struct {
	Enabled bool   `toml:"enabled"`
	Addr    string `toml:"addr"`
}

// YtDlpConfig configures the external downloader invocation.
type YtDlpConfig struct {
	Binary    string   `toml:"binary"`
	Format    string   `toml:"format"`
	ExtraArgs []string `toml:"extra_args"`
}

// PollInterval returns the daemon poll interval.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// DefaultConfigPath returns the config file location under XDG_CONFIG_HOME.
func DefaultConfigPath() string {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		home, _ := os.UserHomeDir()
		configDir = filepath.Join(home, ".config")
	}
	return filepath.Join(configDir, appName, "config.toml")
}

func defaultDatabasePath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		home, _ := os.UserHomeDir()
		dataDir = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataDir, appName, appName+".db")
}

func defaultTargetDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, "Downloads", appName)
}

// Default returns the configuration written by `fetchq init`.
func Default() *Config {
	return &Config{
		TargetDir:           defaultTargetDir(),
		DatabasePath:        defaultDatabasePath(),
		PollIntervalSeconds: 10,
		MaxRetries:          3,
		LogLevel:            "info",
		LogFormat:           "",
		API: APIConfig{
			Enabled: false,
			Addr:    "127.0.0.1:8090",
		},
		YtDlp: YtDlpConfig{
			Binary: "yt-dlp",
			Format: "bestvideo+bestaudio/best",
		},
	}
}

// ExpandPath resolves a leading ~ to the user's home directory.
func ExpandPath(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}

// Load reads the config file at path (the default location when empty),
// filling unset fields with defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigPath()
	}

	cfg := &Config{}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file %s: %w (run 'fetchq init' to create one)", path, os.ErrNotExist)
		}
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	applyDefaults(cfg)
	cfg.TargetDir = ExpandPath(cfg.TargetDir)
	cfg.DatabasePath = ExpandPath(cfg.DatabasePath)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	def := Default()
	if cfg.TargetDir == "" {
		cfg.TargetDir = def.TargetDir
	}
	if cfg.DatabasePath == "" {
		cfg.DatabasePath = def.DatabasePath
	}
	if cfg.PollIntervalSeconds == 0 {
		cfg.PollIntervalSeconds = def.PollIntervalSeconds
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = def.LogLevel
	}
	if cfg.API.Addr == "" {
		cfg.API.Addr = def.API.Addr
	}
	if cfg.YtDlp.Binary == "" {
		cfg.YtDlp.Binary = def.YtDlp.Binary
	}
	if cfg.YtDlp.Format == "" {
		cfg.YtDlp.Format = def.YtDlp.Format
	}
}

func (c *Config) validate() error {
	if c.PollIntervalSeconds < 1 {
		return fmt.Errorf("poll_interval_seconds must be positive, got %d", c.PollIntervalSeconds)
	}
	if c.MaxRetries < 1 {
		return fmt.Errorf("max_retries must be positive, got %d", c.MaxRetries)
	}
	return nil
}

// WriteDefault creates a default config file at path (the default location
// when empty). Refuses to overwrite unless force is set.
func WriteDefault(path string, force bool) (string, error) {
	if path == "" {
		path = DefaultConfigPath()
	}

	if _, err := os.Stat(path); err == nil && !force {
		return path, fmt.Errorf("config file already exists at %s (use --force to overwrite)", path)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return path, fmt.Errorf("create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return path, fmt.Errorf("create config file: %w", err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(Default()); err != nil {
		return path, fmt.Errorf("write config: %w", err)
	}
	return path, nil
}
