// Package config provides configuration loading and structs for the chikai server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Index     IndexConfig     `yaml:"index"`
	Refresh   RefreshConfig   `yaml:"refresh"`
	Watch     WatchConfig     `yaml:"watch"`
}

// WatchConfig holds feed directory watch settings.
type WatchConfig struct {
	Directories []string `yaml:"directories"`
	Extensions  []string `yaml:"extensions"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig holds paths for the event database and the catalog index.
type StorageConfig struct {
	DatabasePath     string `yaml:"database_path"`
	CatalogIndexPath string `yaml:"catalog_index_path"`
}

// EmbeddingConfig holds ONNX embedder settings.
type EmbeddingConfig struct {
	ModelPath  string `yaml:"model_path"`
	Dimensions int    `yaml:"dimensions"`
	MaxTokens  int    `yaml:"max_tokens"`
	CacheSize  int    `yaml:"cache_size"`
}

// IndexConfig holds nearest-neighbor index settings.
type IndexConfig struct {
	// Type is "forest" or "memory".
	Type      string `yaml:"type"`
	TreeCount int    `yaml:"tree_count"`
	// MaxDepth of 0 uses TreeCount as the depth limit.
	MaxDepth int `yaml:"max_depth"`
	// Seed of 0 seeds from the clock.
	Seed     int64 `yaml:"seed"`
	Workers  int   `yaml:"workers"`
	DefaultK int   `yaml:"default_k"`
	MaxK     int   `yaml:"max_k"`
}

// RefreshConfig controls periodic index rebuilds.
type RefreshConfig struct {
	Enabled      bool   `yaml:"enabled"`
	CronSpec     string `yaml:"cron_spec"`
	BuildOnStart *bool  `yaml:"build_on_start"`

	// ManualInterval is the minimum gap between builds requested over the API.
	// Negative disables the limit.
	ManualInterval time.Duration `yaml:"manual_interval"`
}

// BuildOnStartOrDefault returns whether to build the index at startup; defaults to true when unset.
func (r *RefreshConfig) BuildOnStartOrDefault() bool {
	if r.BuildOnStart != nil {
		return *r.BuildOnStart
	}
	return true
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.CatalogIndexPath = expandPath(cfg.Storage.CatalogIndexPath, configDir)
	cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	for i := range cfg.Watch.Directories {
		cfg.Watch.Directories[i] = expandPath(cfg.Watch.Directories[i], configDir)
	}

	return &cfg, nil
}

// Validate reports settings that defaults cannot repair.
func (c *Config) Validate() error {
	switch c.Index.Type {
	case "forest", "memory":
	default:
		return fmt.Errorf("invalid index type %q (supported: forest, memory)", c.Index.Type)
	}
	if c.Index.TreeCount < 0 || c.Index.MaxDepth < 0 || c.Index.Workers < 0 {
		return fmt.Errorf("index tree_count, max_depth and workers must not be negative")
	}
	if c.Index.DefaultK > c.Index.MaxK {
		return fmt.Errorf("index default_k (%d) exceeds max_k (%d)", c.Index.DefaultK, c.Index.MaxK)
	}
	if c.Embedding.Dimensions < 0 {
		return fmt.Errorf("embedding dimensions must be positive")
	}
	return nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
