package app

import (
	"fmt"
	"os"
	"path/filepath"
)

// GetDefaults returns application default paths, checking environment variables first.
// Environment variables:
//   - FILESDB_CONFIG_PATH: config file location (default: ~/.config/filesdb.toml)
//   - FILESDB_HOME: base directory for filesdb data (default: ~/.local/share/filesdb)
func GetDefaults() (map[string]string, error) {
	configPath, err := getConfigPath()
	if err != nil {
		return nil, err
	}

	baseDir, err := getBaseDir()
	if err != nil {
		return nil, err
	}

	return map[string]string{
		"config_path": configPath,
		"base_dir":    baseDir,
		"log_dir":     filepath.Join(baseDir, "log"),
	}, nil
}

// getConfigPath returns the config file path, checking FILESDB_CONFIG_PATH env
// var first, then falling back to the default ~/.config/filesdb.toml.
func getConfigPath() (string, error) {
	if path := os.Getenv("FILESDB_CONFIG_PATH"); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "filesdb.toml"), nil
}

// getBaseDir returns the base directory for filesdb data, checking FILESDB_HOME
// env var first, then falling back to the XDG default ~/.local/share/filesdb.
func getBaseDir() (string, error) {
	if path := os.Getenv("FILESDB_HOME"); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "filesdb"), nil
}
