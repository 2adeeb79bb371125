// Package config handles application configuration
package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

//go:embed config.sample.yaml
var sampleConfig string

// GetSampleConfig returns the embedded sample configuration content
func GetSampleConfig() string {
	return sampleConfig
}

// Storage drivers
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config represents the application configuration
type Config struct {
	Server       ServerConfig    `yaml:"server"`
	Storage      StorageConfig   `yaml:"storage"`
	Embedding    EmbeddingConfig `yaml:"embedding"`
	Client       ClientConfig    `yaml:"client"`
	NoPrompt     bool            `yaml:"no_prompt"`
	OutputFormat string          `yaml:"output_format"`
	Logging      LoggingConfig   `yaml:"logging"`
}

// ServerConfig holds API server settings
type ServerConfig struct {
	Addr            string `yaml:"addr"`
	AuthToken       string `yaml:"auth_token"`
	ShutdownTimeout string `yaml:"shutdown_timeout"`
}

// StorageConfig selects the task repository
type StorageConfig struct {
	Driver   string         `yaml:"driver"`
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Postgres PostgresConfig `yaml:"postgres"`
}

// SQLiteConfig holds SQLite backend configuration
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// PostgresConfig holds PostgreSQL backend configuration
type PostgresConfig struct {
	URL string `yaml:"url"`
}

// EmbeddingConfig selects the embedding provider
type EmbeddingConfig struct {
	Provider   string   `yaml:"provider"`
	Command    string   `yaml:"command"`
	Args       []string `yaml:"args"`
	URL        string   `yaml:"url"`
	Model      string   `yaml:"model"`
	Dimensions int      `yaml:"dimensions"`
	Timeout    string   `yaml:"timeout"`
}

// ClientConfig holds settings for commands that talk to the API
type ClientConfig struct {
	APIURL    string `yaml:"api_url"`
	CacheTTL  string `yaml:"cache_ttl"` // e.g., "5m", "30s"
	CachePath string `yaml:"cache_path"`
	Timeout   string `yaml:"timeout"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.ShutdownTimeout == "" {
		c.Server.ShutdownTimeout = "10s"
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = DriverSQLite
	}
	if c.Storage.SQLite.Path == "" {
		c.Storage.SQLite.Path = filepath.Join(GetDataDir(), "tasks.db")
	}
	if c.Embedding.Provider == "" {
		c.Embedding.Provider = "subprocess"
	}
	if c.Embedding.Dimensions == 0 {
		c.Embedding.Dimensions = 384
	}
	if c.Client.APIURL == "" {
		c.Client.APIURL = "http://localhost:8080"
	}
	if c.Client.CacheTTL == "" {
		c.Client.CacheTTL = "5m"
	}
	if c.Client.CachePath == "" {
		c.Client.CachePath = filepath.Join(GetCacheDir(), "cache.json")
	}
	if c.OutputFormat == "" {
		c.OutputFormat = "text"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// Load loads configuration from the specified path, or the default XDG path if empty.
// If the config file doesn't exist, it creates one from the sample.
// Environment overrides are applied last.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = filepath.Join(GetConfigDir(), "config.yaml")
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := writeSample(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid YAML in config file: %w", err)
	}

	cfg.ApplyEnv()
	cfg.applyDefaults()
	cfg.Storage.SQLite.Path = ExpandPath(cfg.Storage.SQLite.Path)
	cfg.Client.CachePath = ExpandPath(cfg.Client.CachePath)
	cfg.Logging.File = ExpandPath(cfg.Logging.File)

	return cfg, nil
}

// LoadDotEnv loads KEY=value pairs from path into the process environment
// without overriding variables that are already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides settings from TASKFLOW_* environment variables.
func (c *Config) ApplyEnv() {
	setString := func(dst *string, keys ...string) {
		for _, k := range keys {
			if v := os.Getenv(k); v != "" {
				*dst = v
				return
			}
		}
	}

	setString(&c.Server.Addr, "TASKFLOW_SERVER_ADDR")
	if port := os.Getenv("PORT"); port != "" && os.Getenv("TASKFLOW_SERVER_ADDR") == "" {
		c.Server.Addr = ":" + port
	}
	setString(&c.Server.AuthToken, "TASKFLOW_AUTH_TOKEN")
	setString(&c.Storage.Driver, "TASKFLOW_STORAGE_DRIVER")
	setString(&c.Storage.SQLite.Path, "TASKFLOW_SQLITE_PATH")
	setString(&c.Storage.Postgres.URL, "TASKFLOW_DATABASE_URL", "DATABASE_URL")
	setString(&c.Embedding.Provider, "TASKFLOW_EMBEDDING_PROVIDER")
	setString(&c.Embedding.URL, "TASKFLOW_EMBEDDING_URL")
	setString(&c.Embedding.Model, "TASKFLOW_EMBEDDING_MODEL")
	if v := os.Getenv("TASKFLOW_EMBEDDING_DIMENSIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Embedding.Dimensions = n
		}
	}
	setString(&c.Client.APIURL, "TASKFLOW_API_URL")
	setString(&c.Client.CacheTTL, "TASKFLOW_CACHE_TTL")
	setString(&c.Client.CachePath, "TASKFLOW_CACHE_PATH")
	setString(&c.Logging.Level, "TASKFLOW_LOG_LEVEL")
	setString(&c.Logging.File, "TASKFLOW_LOG_FILE")
}

// ApplyFlags applies CLI flag overrides to the configuration
func (c *Config) ApplyFlags(noPrompt bool, outputFormat, apiURL string) {
	if noPrompt {
		c.NoPrompt = true
	}
	if outputFormat != "" {
		c.OutputFormat = outputFormat
	}
	if apiURL != "" {
		c.Client.APIURL = apiURL
	}
}

// writeSample writes the embedded sample config to path
func writeSample(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Save writes the configuration as YAML. Comments from the sample are not preserved.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// GetCacheTTLDuration returns the cache TTL as a time.Duration.
// Returns 5 minutes as default if not configured or if parsing fails.
func (c *Config) GetCacheTTLDuration() time.Duration {
	return parseDurationOr(c.Client.CacheTTL, 5*time.Minute)
}

// GetClientTimeout returns the HTTP timeout for API calls (default 15s).
func (c *Config) GetClientTimeout() time.Duration {
	return parseDurationOr(c.Client.Timeout, 15*time.Second)
}

// GetShutdownTimeout returns the graceful shutdown window (default 10s).
func (c *Config) GetShutdownTimeout() time.Duration {
	return parseDurationOr(c.Server.ShutdownTimeout, 10*time.Second)
}

// GetEmbeddingTimeout returns the per-call embedding timeout (default 60s).
func (c *Config) GetEmbeddingTimeout() time.Duration {
	return parseDurationOr(c.Embedding.Timeout, 60*time.Second)
}

func parseDurationOr(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// getXDGDir returns a directory path following XDG spec.
// envVar is the XDG environment variable (e.g., "XDG_CONFIG_HOME").
// fallbackPath is the relative path from home (e.g., ".config").
func getXDGDir(envVar, fallbackPath string) string {
	if xdgDir := os.Getenv(envVar); xdgDir != "" {
		return filepath.Join(xdgDir, "taskflow")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", fallbackPath, "taskflow")
	}
	return filepath.Join(home, fallbackPath, "taskflow")
}

// GetConfigDir returns the configuration directory following XDG spec
func GetConfigDir() string {
	return getXDGDir("XDG_CONFIG_HOME", ".config")
}

// GetDataDir returns the data directory following XDG spec
func GetDataDir() string {
	return getXDGDir("XDG_DATA_HOME", filepath.Join(".local", "share"))
}

// GetCacheDir returns the cache directory following XDG spec
func GetCacheDir() string {
	return getXDGDir("XDG_CACHE_HOME", ".cache")
}

// ExpandPath expands ~ and environment variables in a path
func ExpandPath(path string) string {
	if path == "" {
		return path
	}
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, path[2:])
		}
	}
	return os.ExpandEnv(path)
}
