package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// AppConfig is read from a YAML file under the user's home directory.
// All fields are optional; defaults are applied by the accessor methods.
//
// Example (~/.alterecho/config.yaml):
//
// backend:
//   url: http://127.0.0.1:5000
// data:
//   dir: /home/me/.alterecho/data
//
// Notes:
// - If the config file does not exist, Load returns defaults without error.
// - If the config file exists but cannot be parsed, Load returns an error.

type AppConfig struct {
	Backend BackendConfig `yaml:"backend"`
	Data    DataConfig    `yaml:"data"`
}

type BackendConfig struct {
	URL *string `yaml:"url"`
}

type DataConfig struct {
	Dir *string `yaml:"dir"`
}

const DefaultBackendURL = "http://127.0.0.1:5000"

// DefaultPaths returns the config dir and config file path.
func DefaultPaths() (configDir string, configFile string, err error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", "", fmt.Errorf("get user home dir: %w", err)
	}
	configDir = filepath.Join(home, ".alterecho")
	configFile = filepath.Join(configDir, "config.yaml")
	return configDir, configFile, nil
}

// Load reads ~/.alterecho/config.yaml.
// If the file doesn't exist, it returns a default config and nil error.
func Load() (*AppConfig, string, error) {
	_, configFile, err := DefaultPaths()
	if err != nil {
		return nil, "", err
	}

	cfg := &AppConfig{}

	b, err := os.ReadFile(configFile)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, configFile, nil
		}
		return nil, "", fmt.Errorf("read config file %s: %w", configFile, err)
	}

	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, "", fmt.Errorf("parse yaml config %s: %w", configFile, err)
	}

	// Validate
	url := cfg.BackendURL()
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return nil, "", fmt.Errorf("invalid backend.url %q in %s", url, configFile)
	}

	return cfg, configFile, nil
}

// EnsureDefaultConfig writes a default config file if it doesn't already exist.
// It is safe to call on startup.
func EnsureDefaultConfig() (string, error) {
	configDir, configFile, err := DefaultPaths()
	if err != nil {
		return "", err
	}

	if _, err := os.Stat(configFile); err == nil {
		return configFile, nil
	}

	if err := os.MkdirAll(configDir, 0o700); err != nil {
		return "", fmt.Errorf("create config dir %s: %w", configDir, err)
	}

	defaultCfg := AppConfig{Backend: BackendConfig{URL: ptr(DefaultBackendURL)}}
	b, err := yaml.Marshal(&defaultCfg)
	if err != nil {
		return "", fmt.Errorf("marshal default config: %w", err)
	}

	// Write with restrictive permissions.
	if err := os.WriteFile(configFile, b, 0o600); err != nil {
		return "", fmt.Errorf("write default config file %s: %w", configFile, err)
	}

	return configFile, nil
}

func (c *AppConfig) BackendURL() string {
	if c == nil || c.Backend.URL == nil {
		return DefaultBackendURL
	}
	v := strings.TrimSpace(*c.Backend.URL)
	if v == "" {
		return DefaultBackendURL
	}
	return strings.TrimRight(v, "/")
}

// DataDir returns the directory holding the local cache database.
func (c *AppConfig) DataDir() string {
	if c != nil && c.Data.Dir != nil {
		if v := strings.TrimSpace(*c.Data.Dir); v != "" {
			return v
		}
	}
	configDir, _, err := DefaultPaths()
	if err != nil {
		return "data"
	}
	return filepath.Join(configDir, "data")
}

func ptr[T any](v T) *T { return &v }
