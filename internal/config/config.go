package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/dyluth/songgrid/pkg/grid"
)

// Defaults applied by Validate
const (
	DefaultPort            = 5000
	DefaultCooldownMinutes = 30
	DefaultMinUsername     = 3
	DefaultMaxUsername     = 15
	DefaultBatchSize       = 50
	DefaultTable           = "grid_tiles"
	DefaultStoreTimeout    = 5 * time.Second
	DefaultProviderTimeout = 10 * time.Second
	DefaultShutdownTimeout = 10 * time.Second
	DefaultMaxBodyBytes    = 1 << 20

	maxBatchSize = 50
)

// Config represents the songgrid.yml configuration
type Config struct {
	Version  string         `yaml:"version"`
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Spotify  SpotifyConfig  `yaml:"spotify"`
	Edit     EditConfig     `yaml:"edit"`
	Grid     grid.Extent    `yaml:"grid"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig specifies the HTTP listener
type ServerConfig struct {
	Port            int           `yaml:"port"`
	StaticDir       string        `yaml:"static_dir,omitempty"` // Built frontend, served with index.html fallback
	MaxBodyBytes    int64         `yaml:"max_body_bytes,omitempty"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout,omitempty"`
}

// DatabaseConfig specifies the cell store
type DatabaseConfig struct {
	URL     string        `yaml:"url"` // postgres://... or memory://
	Table   string        `yaml:"table,omitempty"`
	Timeout time.Duration `yaml:"timeout,omitempty"`
}

// RedisConfig specifies the rate-limit store
type RedisConfig struct {
	URL       string        `yaml:"url"`
	Namespace string        `yaml:"namespace,omitempty"` // Optional key prefix
	Timeout   time.Duration `yaml:"timeout,omitempty"`   // Bound on each gate command, default 5s
}

// SpotifyConfig specifies the metadata provider
type SpotifyConfig struct {
	ClientID        string        `yaml:"client_id"`
	ClientSecret    string        `yaml:"client_secret"`
	APIBaseURL      string        `yaml:"api_base_url,omitempty"`
	AccountsBaseURL string        `yaml:"accounts_base_url,omitempty"`
	Timeout         time.Duration `yaml:"timeout,omitempty"`
	BatchSize       int           `yaml:"batch_size,omitempty"`
	MaxConcurrency  int           `yaml:"max_concurrency,omitempty"`
}

// EditConfig specifies edit admission rules
type EditConfig struct {
	CooldownMinutes int `yaml:"cooldown_minutes,omitempty"` // 0 or unset = 30
	MinUsername     int  `yaml:"min_username,omitempty"`
	MaxUsername     int  `yaml:"max_username,omitempty"`
}

// LoggingConfig specifies the zap logger
type LoggingConfig struct {
	Level string `yaml:"level,omitempty"` // debug, info, warn, error
}

// Cooldown returns the edit cooldown window.
func (e EditConfig) Cooldown() time.Duration {
	if e.CooldownMinutes <= 0 {
		return DefaultCooldownMinutes * time.Minute
	}
	return time.Duration(e.CooldownMinutes) * time.Minute
}

// Addr returns the listen address for the HTTP server.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf(":%d", s.Port)
}

// Validate applies defaults and checks invariants
func (c *Config) Validate() error {
	if c.Version != "" && c.Version != "1.0" {
		return fmt.Errorf("unsupported version: %s (expected: 1.0)", c.Version)
	}

	if c.Server.Port == 0 {
		c.Server.Port = DefaultPort
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.MaxBodyBytes == 0 {
		c.Server.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = DefaultShutdownTimeout
	}

	if c.Database.Table == "" {
		c.Database.Table = DefaultTable
	}
	if c.Database.Timeout == 0 {
		c.Database.Timeout = DefaultStoreTimeout
	}
	if c.Redis.Timeout == 0 {
		c.Redis.Timeout = DefaultStoreTimeout
	}

	if c.Spotify.Timeout == 0 {
		c.Spotify.Timeout = DefaultProviderTimeout
	}
	if c.Spotify.BatchSize == 0 {
		c.Spotify.BatchSize = DefaultBatchSize
	}
	if c.Spotify.BatchSize < 1 || c.Spotify.BatchSize > maxBatchSize {
		return fmt.Errorf("spotify.batch_size must be between 1 and %d, got %d", maxBatchSize, c.Spotify.BatchSize)
	}
	if c.Spotify.MaxConcurrency < 0 {
		return fmt.Errorf("spotify.max_concurrency must be >= 0, got %d", c.Spotify.MaxConcurrency)
	}

	if c.Edit.CooldownMinutes < 0 {
		return fmt.Errorf("edit.cooldown_minutes must be >= 0 (0 = default), got %d", c.Edit.CooldownMinutes)
	}
	if c.Edit.CooldownMinutes == 0 {
		c.Edit.CooldownMinutes = DefaultCooldownMinutes
	}
	if c.Edit.MinUsername == 0 {
		c.Edit.MinUsername = DefaultMinUsername
	}
	if c.Edit.MaxUsername == 0 {
		c.Edit.MaxUsername = DefaultMaxUsername
	}
	if c.Edit.MinUsername < 1 || c.Edit.MinUsername > c.Edit.MaxUsername {
		return fmt.Errorf("edit.min_username (%d) must be >= 1 and <= edit.max_username (%d)", c.Edit.MinUsername, c.Edit.MaxUsername)
	}

	if c.Grid == (grid.Extent{}) {
		c.Grid = grid.DefaultExtent()
	}
	if err := c.Grid.Validate(); err != nil {
		return err
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if _, err := zap.ParseAtomicLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}

	return nil
}

// RequireServe checks the settings only the server needs.
func (c *Config) RequireServe() error {
	if c.Database.URL == "" {
		return fmt.Errorf("database url is required (set DATABASE_URL or database.url)")
	}
	if c.Redis.URL == "" {
		return fmt.Errorf("redis url is required (set REDIS_URL or redis.url)")
	}
	return nil
}

// HasCredentials reports whether provider credentials are configured.
func (c *Config) HasCredentials() bool {
	return c.Spotify.ClientID != "" && c.Spotify.ClientSecret != ""
}

// ApplyEnv overrides file settings with environment variables.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	str("DATABASE_URL", &c.Database.URL)
	str("REDIS_URL", &c.Redis.URL)
	str("CLIENT_ID", &c.Spotify.ClientID)
	str("CLIENT_SECRET", &c.Spotify.ClientSecret)
	str("STATIC_DIR", &c.Server.StaticDir)
	str("LOG_LEVEL", &c.Logging.Level)

	if v, ok := lookup("PORT"); ok && strings.TrimSpace(v) != "" {
		port, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("invalid PORT %q: %w", v, err)
		}
		c.Server.Port = port
	}
	if v, ok := lookup("EDIT_COOLDOWN_MINUTES"); ok && strings.TrimSpace(v) != "" {
		minutes, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("invalid EDIT_COOLDOWN_MINUTES %q: %w", v, err)
		}
		c.Edit.CooldownMinutes = minutes
	}
	return nil
}

// LoadDotEnv loads KEY=value pairs from files into the process environment
// without overriding variables already set. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	for _, path := range paths {
		if err := godotenv.Load(path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", path, err)
		}
	}
	return nil
}

// Load reads songgrid.yml from path (optional when empty), applies the
// environment and validates.
func Load(path string) (*Config, error) {
	var config Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
	}

	if err := config.ApplyEnv(os.LookupEnv); err != nil {
		return nil, fmt.Errorf("invalid environment: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}
