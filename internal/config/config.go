// Package config loads and validates Strand configuration.
//
// Configuration is layered, later layers win:
//  1. Built-in defaults
//  2. Config file (strand.yaml in the data directory)
//  3. Environment variables (STRAND_*)
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	strerrors "github.com/strand-search/strand/internal/errors"
)

// ConfigFileName is the name of the config file inside the data directory.
const ConfigFileName = "strand.yaml"

// Config represents the complete Strand configuration.
type Config struct {
	Server ServerConfig `yaml:"server" json:"server"`
	Search SearchConfig `yaml:"search" json:"search"`
	Log    LogConfig    `yaml:"log" json:"log"`

	// DataDir is where the catalog and indexes live. Not serialized; set
	// from the --data-dir flag or STRAND_DATA_DIR.
	DataDir string `yaml:"-" json:"-"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	// Addr is the listen address (default: 127.0.0.1:7700).
	Addr string `yaml:"addr" json:"addr"`

	// QueryTimeout bounds a single search request (default: 10s).
	QueryTimeout time.Duration `yaml:"query_timeout" json:"query_timeout"`
}

// SearchConfig configures the retrieval core.
type SearchConfig struct {
	// DefaultLimit is the page size when the query does not set one (default: 20).
	DefaultLimit int `yaml:"default_limit" json:"default_limit"`

	// MaxLimit caps the page size a query may request (default: 1000).
	MaxLimit int `yaml:"max_limit" json:"max_limit"`

	// ConditionCacheSize is the number of entries in each index's
	// condition cache (default: 4096). The cache is keyed on
	// (condition, universe fingerprint); see internal/search.
	ConditionCacheSize int `yaml:"condition_cache_size" json:"condition_cache_size"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string `yaml:"level" json:"level"`

	// File is the log file path. Empty logs to stderr only.
	File string `yaml:"file" json:"file"`
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:         "127.0.0.1:7700",
			QueryTimeout: 10 * time.Second,
		},
		Search: SearchConfig{
			DefaultLimit:       20,
			MaxLimit:           1000,
			ConditionCacheSize: 4096,
		},
		Log: LogConfig{
			Level: "info",
		},
		DataDir: defaultDataDir(),
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".strand")
	}
	return filepath.Join(home, ".strand")
}

// Load reads configuration for the given data directory.
// A missing config file is not an error; defaults apply.
func Load(dataDir string) (*Config, error) {
	cfg := Default()
	if dataDir != "" {
		cfg.DataDir = dataDir
	}

	path := filepath.Join(cfg.DataDir, ConfigFileName)
	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// fine, defaults
	case err != nil:
		return nil, strerrors.Wrap(strerrors.ErrCodeConfigNotFound, err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, strerrors.New(strerrors.ErrCodeConfigInvalid,
				fmt.Sprintf("cannot parse %s: %v", path, err), err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides applies STRAND_* environment variable overrides.
// Environment variables have the highest priority.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("STRAND_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("STRAND_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("STRAND_QUERY_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Server.QueryTimeout = d
		}
	}
	if v := os.Getenv("STRAND_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("STRAND_MAX_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Search.MaxLimit = n
		}
	}
}

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	if c.Search.DefaultLimit < 1 {
		return strerrors.Newf(strerrors.ErrCodeConfigInvalid,
			"search.default_limit must be >= 1, got %d", c.Search.DefaultLimit)
	}
	if c.Search.MaxLimit < c.Search.DefaultLimit {
		return strerrors.Newf(strerrors.ErrCodeConfigInvalid,
			"search.max_limit (%d) must be >= search.default_limit (%d)",
			c.Search.MaxLimit, c.Search.DefaultLimit)
	}
	if c.Search.ConditionCacheSize < 0 {
		return strerrors.Newf(strerrors.ErrCodeConfigInvalid,
			"search.condition_cache_size must be >= 0, got %d", c.Search.ConditionCacheSize)
	}
	if c.Server.QueryTimeout <= 0 {
		return strerrors.Newf(strerrors.ErrCodeConfigInvalid,
			"server.query_timeout must be positive, got %s", c.Server.QueryTimeout)
	}
	return nil
}

// Save writes the config file into the data directory.
func (c *Config) Save() error {
	if err := os.MkdirAll(c.DataDir, 0o755); err != nil {
		return strerrors.StoreIo(err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return strerrors.Wrap(strerrors.ErrCodeConfigInvalid, err)
	}
	path := filepath.Join(c.DataDir, ConfigFileName)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return strerrors.StoreIo(err)
	}
	return nil
}
