package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestManager_ReadWrite_RoundTrip(t *testing.T) {
	original := &Config{
		BaseDir:  "/home/user/.local/share/filesdb",
		LogDir:   "/home/user/.local/share/filesdb/log",
		Database: DatabaseConfig{Type: "sqlite", Path: "/home/user/.local/share/filesdb/filesdb.db"},
		Index: IndexConfig{
			BaseURL:        "https://pypi.org/pypi",
			UserAgent:      "filesdb",
			TimeoutSeconds: 120,
		},
		Crawler: CrawlerConfig{
			Concurrency:       5,
			PageSize:          500,
			RetryAttempts:     3,
			RetryDelaySeconds: 5,
			ProgressEvery:     100,
		},
		Vault: VaultConfig{Type: "filesystem", Name: "local", Root: "/data/vault"},
	}

	var buf bytes.Buffer
	m := &Manager{}

	if err := m.Write(&buf, original); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	got, err := m.Read(&buf)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	if got.BaseDir != original.BaseDir {
		t.Errorf("BaseDir = %q, want %q", got.BaseDir, original.BaseDir)
	}
	if got.LogDir != original.LogDir {
		t.Errorf("LogDir = %q, want %q", got.LogDir, original.LogDir)
	}
	if got.Database.Type != "sqlite" {
		t.Errorf("Database.Type = %q, want %q", got.Database.Type, "sqlite")
	}
	if got.Database.Path != original.Database.Path {
		t.Errorf("Database.Path = %q, want %q", got.Database.Path, original.Database.Path)
	}
	if got.Index.BaseURL != "https://pypi.org/pypi" {
		t.Errorf("Index.BaseURL = %q, want pypi default", got.Index.BaseURL)
	}
	if got.Index.Timeout() != 120*time.Second {
		t.Errorf("Index.Timeout() = %v, want 120s", got.Index.Timeout())
	}
	if got.Crawler.Concurrency != 5 {
		t.Errorf("Crawler.Concurrency = %d, want 5", got.Crawler.Concurrency)
	}
	if got.Crawler.RetryDelay() != 5*time.Second {
		t.Errorf("Crawler.RetryDelay() = %v, want 5s", got.Crawler.RetryDelay())
	}
	if got.Vault.Type != "filesystem" {
		t.Errorf("Vault.Type = %q, want %q", got.Vault.Type, "filesystem")
	}
	if got.Vault.Root != "/data/vault" {
		t.Errorf("Vault.Root = %q, want %q", got.Vault.Root, "/data/vault")
	}
}

func TestNewConfig(t *testing.T) {
	cfg := NewConfig("/data/filesdb")

	if cfg.BaseDir != "/data/filesdb" {
		t.Errorf("BaseDir = %q, want %q", cfg.BaseDir, "/data/filesdb")
	}
	if cfg.LogDir != "/data/filesdb/log" {
		t.Errorf("LogDir = %q, want %q", cfg.LogDir, "/data/filesdb/log")
	}
	if cfg.Database.Type != "sqlite" {
		t.Errorf("Database.Type = %q, want sqlite", cfg.Database.Type)
	}
	if cfg.Database.Path != "/data/filesdb/filesdb.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/data/filesdb/filesdb.db")
	}
	if cfg.Index.BaseURL != "https://pypi.org/pypi" {
		t.Errorf("Index.BaseURL = %q, want pypi default", cfg.Index.BaseURL)
	}
	if cfg.Vault.Type != "none" {
		t.Errorf("Vault.Type = %q, want none", cfg.Vault.Type)
	}
}

func TestInit(t *testing.T) {
	t.Run("creates config file", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "filesdb.toml")
		cfg := NewConfig(dir)

		if err := Init(path, cfg); err != nil {
			t.Fatalf("Init() error = %v", err)
		}

		if _, err := os.Stat(path); err != nil {
			t.Fatalf("config file not created: %v", err)
		}
	})

	t.Run("fails if file already exists", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "filesdb.toml")
		cfg := NewConfig(dir)

		if err := Init(path, cfg); err != nil {
			t.Fatalf("first Init() error = %v", err)
		}

		err := Init(path, cfg)
		if err == nil {
			t.Fatal("second Init() expected error")
		}
	})
}

func TestReadFromFile(t *testing.T) {
	t.Run("reads valid config", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "filesdb.toml")
		cfg := NewConfig(dir)
		cfg.Database = DatabaseConfig{Type: "memory"}

		if err := Init(path, cfg); err != nil {
			t.Fatalf("Init() error = %v", err)
		}

		got, err := ReadFromFile(path)
		if err != nil {
			t.Fatalf("ReadFromFile() error = %v", err)
		}
		if got.Database.Type != "memory" {
			t.Errorf("Database.Type = %q, want memory", got.Database.Type)
		}
	})

	t.Run("returns error for missing file", func(t *testing.T) {
		_, err := ReadFromFile("/nonexistent/path/filesdb.toml")
		if err == nil {
			t.Fatal("ReadFromFile() expected error for missing file")
		}
	})
}
