// Package config holds the TOML configuration for filesdb.
package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the main configuration for filesdb.
type Config struct {
	BaseDir  string         `toml:"base_dir"`
	LogDir   string         `toml:"log_dir"`
	Database DatabaseConfig `toml:"database"`
	Index    IndexConfig    `toml:"index"`
	Crawler  CrawlerConfig  `toml:"crawler"`
	Vault    VaultConfig    `toml:"vault"`
}

// DatabaseConfig represents configuration for the metadata database.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type DatabaseConfig struct {
	Type string `toml:"type"`           // "sqlite" or "memory"
	Path string `toml:"path,omitempty"` // only used for type=sqlite
}

// IndexConfig holds the package index endpoint settings.
type IndexConfig struct {
	BaseURL        string `toml:"base_url"`        // defaults to https://pypi.org/pypi
	UserAgent      string `toml:"user_agent"`      // defaults to "filesdb"
	TimeoutSeconds int    `toml:"timeout_seconds"` // total request timeout
}

// Timeout returns the configured request timeout as a duration.
func (c IndexConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// CrawlerConfig holds the sweep tuning knobs. Zero values select the
// crawler's built-in defaults.
type CrawlerConfig struct {
	Concurrency       int `toml:"concurrency"`
	PageSize          int `toml:"page_size"`
	RetryAttempts     int `toml:"retry_attempts"`
	RetryDelaySeconds int `toml:"retry_delay_seconds"`
	ProgressEvery     int `toml:"progress_every"`
}

// RetryDelay returns the configured base retry delay as a duration.
func (c CrawlerConfig) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelaySeconds) * time.Second
}

// VaultConfig represents configuration for the artifact vault backend.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type VaultConfig struct {
	Type string `toml:"type"` // "none", "memory", "filesystem", or "s3"
	Name string `toml:"name"`

	// FileSystem-specific fields (only used when Type == "filesystem")
	Root string `toml:"root,omitempty"`

	// S3-specific fields (only used when Type == "s3")
	S3Bucket    string `toml:"s3_bucket,omitempty"`
	S3Prefix    string `toml:"s3_prefix,omitempty"`
	S3Region    string `toml:"s3_region,omitempty"`
	S3Endpoint  string `toml:"s3_endpoint,omitempty"`
	S3AccessKey string `toml:"s3_access_key,omitempty"`
	S3SecretKey string `toml:"s3_secret_key,omitempty"`
}

// NewConfig creates a new Config with sensible defaults rooted at baseDir.
func NewConfig(baseDir string) *Config {
	return &Config{
		BaseDir: baseDir,
		LogDir:  filepath.Join(baseDir, "log"),
		Database: DatabaseConfig{
			Type: "sqlite",
			Path: filepath.Join(baseDir, "filesdb.db"),
		},
		Index: IndexConfig{
			BaseURL:   "https://pypi.org/pypi",
			UserAgent: "filesdb",
		},
		Vault: VaultConfig{
			Type: "none",
		},
	}
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

// writeToFile writes a Config to the specified file path.
// This is an internal helper and should not be exported.
func writeToFile(path string, cfg *Config) error {
	// Ensure the directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path with the provided Config.
func Init(path string, cfg *Config) error {
	// Check if config already exists
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
