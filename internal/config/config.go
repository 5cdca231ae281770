package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration.
type Config struct {
	// Database configuration
	Database DatabaseConfig `toml:"database"`

	// Semantic index configuration
	Index IndexConfig `toml:"index"`

	// Embedding backend configuration
	Embedding EmbeddingConfig `toml:"embedding"`

	// DAZ library configuration
	DAZ DAZConfig `toml:"daz"`

	// HTTP server configuration
	Server ServerConfig `toml:"server"`

	// Application configuration
	App AppConfig `toml:"app"`
}

// DatabaseConfig contains asset store settings.
type DatabaseConfig struct {
	Path string `toml:"path"` // Path to the SQLite database (empty = default location)
}

// IndexConfig contains semantic index settings.
type IndexConfig struct {
	Path      string `toml:"path"`       // Path to the index snapshot (empty = default location)
	BatchSize int    `toml:"batch_size"` // Embeddings per inference call
}

// EmbeddingConfig contains Ollama backend settings.
type EmbeddingConfig struct {
	BaseURL          string `toml:"base_url"`          // Ollama base URL
	Model            string `toml:"model"`             // Embedding model name
	RequestTimeout   string `toml:"request_timeout"`   // Timeout for control requests (e.g., "10s")
	InferenceTimeout string `toml:"inference_timeout"` // Timeout for embedding calls (e.g., "2m")
	AutoPullModel    bool   `toml:"auto_pull_model"`   // Pull the model if missing
}

// DAZConfig contains DAZ library integration settings.
type DAZConfig struct {
	ExportPath    string `toml:"export_path"`    // Path to the products.json library export
	StudioExe     string `toml:"studio_exe"`     // Path to the DAZ Studio executable
	SlabBaseURL   string `toml:"slab_base_url"`  // Product metadata API base URL
	SlabRate      int    `toml:"slab_rate"`      // Metadata requests per second
	WatchExport   bool   `toml:"watch_export"`   // Reingest when the export file changes
	WatchDebounce string `toml:"watch_debounce"` // Settle time after a change (e.g., "2s")
}

// ServerConfig contains HTTP API settings.
type ServerConfig struct {
	Host string `toml:"host"` // Bind address
	Port int    `toml:"port"` // Listen port
}

// AppConfig contains general application settings.
type AppConfig struct {
	DebugMode bool `toml:"debug_mode"` // Enable debug logging
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path: "",
		},
		Index: IndexConfig{
			Path:      "",
			BatchSize: 32,
		},
		Embedding: EmbeddingConfig{
			BaseURL:          "http://localhost:11434",
			Model:            "mxbai-embed-large",
			RequestTimeout:   "10s",
			InferenceTimeout: "2m",
			AutoPullModel:    false,
		},
		DAZ: DAZConfig{
			ExportPath:    "",
			StudioExe:     "",
			SlabBaseURL:   "https://www.daz3d.com/dazApi/slab",
			SlabRate:      2,
			WatchExport:   false,
			WatchDebounce: "2s",
		},
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8321,
		},
		App: AppConfig{
			DebugMode: false,
		},
	}
}

// DataDir returns the application data directory, creating it if needed.
func DataDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home directory: %w", err)
	}

	dir := filepath.Join(homeDir, ".vab-companion")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create data directory: %w", err)
	}

	return dir, nil
}

// DatabasePath returns the configured database path, falling back to the
// default location under the data directory.
func (c *Config) DatabasePath() (string, error) {
	if c.Database.Path != "" {
		return c.Database.Path, nil
	}
	dir, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "library.db"), nil
}

// IndexPath returns the configured index snapshot path, falling back to the
// default location under the data directory.
func (c *Config) IndexPath() (string, error) {
	if c.Index.Path != "" {
		return c.Index.Path, nil
	}
	dir, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "index.json"), nil
}

// configPath returns the path to the configuration file.
func configPath() (string, error) {
	dir, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// Load loads the configuration from disk. Returns default config if file doesn't exist.
func Load() (*Config, error) {
	path, err := configPath()
	if err != nil {
		return nil, err
	}

	// If file doesn't exist, return default config
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var config Config
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	return &config, nil
}

// Save saves the configuration to disk.
func (c *Config) Save() error {
	path, err := configPath()
	if err != nil {
		return err
	}

	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}

	return nil
}

// Validate validates the configuration values.
func (c *Config) Validate() error {
	if c.Index.BatchSize < 0 {
		return fmt.Errorf("index batch size cannot be negative: %d", c.Index.BatchSize)
	}

	if _, err := time.ParseDuration(c.Embedding.RequestTimeout); err != nil {
		return fmt.Errorf("invalid request timeout %q: %w", c.Embedding.RequestTimeout, err)
	}

	if _, err := time.ParseDuration(c.Embedding.InferenceTimeout); err != nil {
		return fmt.Errorf("invalid inference timeout %q: %w", c.Embedding.InferenceTimeout, err)
	}

	if c.DAZ.SlabRate < 0 {
		return fmt.Errorf("slab rate cannot be negative: %d", c.DAZ.SlabRate)
	}

	if _, err := time.ParseDuration(c.DAZ.WatchDebounce); err != nil {
		return fmt.Errorf("invalid watch debounce %q: %w", c.DAZ.WatchDebounce, err)
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	return nil
}

// GetRequestTimeout returns the Ollama request timeout as a duration.
func (c *Config) GetRequestTimeout() (time.Duration, error) {
	return time.ParseDuration(c.Embedding.RequestTimeout)
}

// GetInferenceTimeout returns the Ollama inference timeout as a duration.
func (c *Config) GetInferenceTimeout() (time.Duration, error) {
	return time.ParseDuration(c.Embedding.InferenceTimeout)
}

// GetWatchDebounce returns the export watcher settle time as a duration.
func (c *Config) GetWatchDebounce() (time.Duration, error) {
	return time.ParseDuration(c.DAZ.WatchDebounce)
}
