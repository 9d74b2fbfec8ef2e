// Package config provides centralized configuration for the phasmadbd
// server: listen address, data directory, the registered-user public key
// directory, and logging.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the phasmadbd server's persisted configuration.
type Config struct {
	Listen  ListenConfig  `yaml:"listen"`
	Storage StorageConfig `yaml:"storage"`
	Auth    AuthConfig    `yaml:"auth"`
	Logging LoggingConfig `yaml:"logging"`
}

// ListenConfig holds the session endpoint's bind address.
type ListenConfig struct {
	Addr string `yaml:"addr"`
}

// StorageConfig holds the backing SQLite data directory.
type StorageConfig struct {
	DataDir string `yaml:"data_dir"`
}

// AuthConfig holds the registered-user public key directory.
type AuthConfig struct {
	PublicKeyDir string `yaml:"public_key_dir"`
}

// LoggingConfig controls the server's structured logger.
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// DefaultConfig returns the configuration phasmadbd starts with on a fresh
// data directory.
func DefaultConfig() *Config {
	return &Config{
		Listen: ListenConfig{
			Addr: "127.0.0.1:4404",
		},
		Storage: StorageConfig{
			DataDir: "~/.phasmadb",
		},
		Auth: AuthConfig{
			PublicKeyDir: "~/.phasmadb/public_keys",
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  "",
		},
	}
}

// ConfigFileName is the default config file name within a data directory.
const ConfigFileName = "config.yaml"

// LoadConfig loads configuration from dataDir/config.yaml, creating one
// with default values if it does not already exist.
func LoadConfig(dataDir string) (*Config, error) {
	expandedDir := expandPath(dataDir)
	configPath := filepath.Join(expandedDir, ConfigFileName)

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := DefaultConfig()
		cfg.Storage.DataDir = dataDir
		cfg.Auth.PublicKeyDir = filepath.Join(dataDir, "public_keys")

		if err := cfg.Save(configPath); err != nil {
			return nil, fmt.Errorf("config: create default config: %w", err)
		}
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("config: read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse config file: %w", err)
	}
	return cfg, nil
}

// Save writes the configuration to path as YAML.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("config: create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("config: marshal config: %w", err)
	}

	header := []byte("# PhasmaDB server configuration\n# Generated automatically on first run\n\n")
	data = append(header, data...)

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("config: write config file: %w", err)
	}
	return nil
}

// ConfigPath returns the full path to the config file for dataDir.
func ConfigPath(dataDir string) string {
	return filepath.Join(expandPath(dataDir), ConfigFileName)
}

// expandPath expands a leading ~ to the user's home directory.
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[1:])
	}
	return path
}
