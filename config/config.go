// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is the configuration file looked up when none is given.
const DefaultPath = "amodule.yaml"

// DefaultMaxImagePixels is 40 megapixels.
const DefaultMaxImagePixels = 40_000_000

// Config is the root configuration structure.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Module   ModuleConfig   `yaml:"module"`
	Auth     AuthConfig     `yaml:"auth"`
	Runs     RunsConfig     `yaml:"runs"`
	Database DatabaseConfig `yaml:"database"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	OpenAPI  OpenAPIConfig  `yaml:"openapi"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	MaxBodyBytes int64         `yaml:"max_body_bytes"` // Limit for POST /api/methods bodies

	// MaxImagePixels bounds width*height of uploaded images. PNG compresses
	// well, so the body limit alone does not bound decoded size.
	MaxImagePixels int `yaml:"max_image_pixels"`
}

// ModuleConfig selects the specification and test data.
type ModuleConfig struct {
	// SpecPath is a YAML specification file. Empty uses the bundled one.
	SpecPath string `yaml:"spec_path"`

	// ResourcesDir holds the test case images.
	ResourcesDir string `yaml:"resources_dir"`
}

// AuthConfig configures API key authentication of /api routes.
// Authentication is off when APIKeyHash is empty.
type AuthConfig struct {
	APIKeyHash string `yaml:"api_key_hash"` // bcrypt hash, see `amodule hash-key`
	Header     string `yaml:"header"`       // Header name for API key (default: X-API-Key)
}

// Enabled reports whether API keys are required.
func (a AuthConfig) Enabled() bool {
	return a.APIKeyHash != ""
}

// RunsConfig configures the invocation history.
type RunsConfig struct {
	Store     string        `yaml:"store"`     // "sqlite", "memory" or "none"
	Capacity  int           `yaml:"capacity"`  // memory store only
	Retention time.Duration `yaml:"retention"` // sqlite store only, 0 keeps everything
}

// DatabaseConfig configures the database.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json" or "console"
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"` // Enable /metrics endpoint
	Path    string `yaml:"path"`    // Custom path (default: /metrics)
}

// OpenAPIConfig configures OpenAPI/Swagger documentation.
type OpenAPIConfig struct {
	Enabled bool `yaml:"enabled"` // Enable OpenAPI endpoints
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	return Parse(data)
}

// Parse reads configuration from YAML bytes. ${VAR} references are
// expanded from the environment before parsing. References to unset
// variables are left as written so bcrypt hashes survive.
func Parse(data []byte) (*Config, error) {
	data = []byte(expandEnv(string(data)))

	cfg := Config{
		Metrics: MetricsConfig{Enabled: true},
		OpenAPI: OpenAPIConfig{Enabled: true},
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return finish(&cfg)
}

// LoadFromEnv creates configuration entirely from environment variables.
//
// Environment variables:
//
//	AMODULE_SERVER_HOST       - Server host (default: 0.0.0.0)
//	AMODULE_SERVER_PORT       - Server port (default: 5000)
//	AMODULE_SPEC_PATH         - Specification file (default: bundled)
//	AMODULE_RESOURCES_DIR     - Test data directory (default: resources/testdata)
//	AMODULE_API_KEY_HASH      - bcrypt hash of the API key (default: no auth)
//	AMODULE_RUNS_STORE        - sqlite, memory or none (default: sqlite)
//	AMODULE_DATABASE_DSN      - Database path (default: amodule.db)
//	AMODULE_LOG_LEVEL         - Log level: debug, info, warn, error (default: info)
//	AMODULE_LOG_FORMAT        - Log format: json or console (default: json)
//	AMODULE_METRICS_ENABLED   - Enable /metrics endpoint (default: true)
//	AMODULE_OPENAPI_ENABLED   - Enable OpenAPI/Swagger (default: true)
func LoadFromEnv() (*Config, error) {
	cfg := Config{
		Metrics: MetricsConfig{Enabled: true},
		OpenAPI: OpenAPIConfig{Enabled: true},
	}
	return finish(&cfg)
}

// LoadWithFallback loads path when it exists and falls back to the
// environment otherwise. Every setting has a default, so the fallback
// always yields a usable configuration.
func LoadWithFallback(path string) (*Config, error) {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}
	return LoadFromEnv()
}

func finish(cfg *Config) (*Config, error) {
	applyEnvOverrides(cfg)
	setDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func expandEnv(s string) string {
	return os.Expand(s, func(name string) string {
		if v, ok := os.LookupEnv(name); ok {
			return v
		}
		return "$" + name
	})
}

// applyEnvOverrides applies AMODULE_* environment variables to the config.
// Environment variables always override file-based configuration.
func applyEnvOverrides(cfg *Config) {
	// Server configuration
	if v := os.Getenv("AMODULE_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("AMODULE_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("AMODULE_SERVER_READ_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.ReadTimeout = d
		}
	}
	if v := os.Getenv("AMODULE_SERVER_WRITE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.WriteTimeout = d
		}
	}

	if v := os.Getenv("AMODULE_SERVER_MAX_IMAGE_PIXELS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Server.MaxImagePixels = n
		}
	}

	// Module configuration
	if v := os.Getenv("AMODULE_SPEC_PATH"); v != "" {
		cfg.Module.SpecPath = v
	}
	if v := os.Getenv("AMODULE_RESOURCES_DIR"); v != "" {
		cfg.Module.ResourcesDir = v
	}

	// Auth configuration
	if v := os.Getenv("AMODULE_API_KEY_HASH"); v != "" {
		cfg.Auth.APIKeyHash = v
	}
	if v := os.Getenv("AMODULE_AUTH_HEADER"); v != "" {
		cfg.Auth.Header = v
	}

	// Runs configuration
	if v := os.Getenv("AMODULE_RUNS_STORE"); v != "" {
		cfg.Runs.Store = v
	}
	if v := os.Getenv("AMODULE_RUNS_RETENTION"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Runs.Retention = d
		}
	}

	// Database configuration
	if v := os.Getenv("AMODULE_DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}

	// Logging configuration
	if v := os.Getenv("AMODULE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("AMODULE_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}

	// Metrics configuration
	if v := os.Getenv("AMODULE_METRICS_ENABLED"); v != "" {
		cfg.Metrics.Enabled = parseBool(v)
	}
	if v := os.Getenv("AMODULE_METRICS_PATH"); v != "" {
		cfg.Metrics.Path = v
	}

	// OpenAPI configuration
	if v := os.Getenv("AMODULE_OPENAPI_ENABLED"); v != "" {
		cfg.OpenAPI.Enabled = parseBool(v)
	}
}

// parseBool parses a boolean from common string values.
func parseBool(v string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	return v == "true" || v == "1" || v == "yes" || v == "on"
}

func setDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 5000
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 60 * time.Second
	}
	if cfg.Server.MaxBodyBytes == 0 {
		cfg.Server.MaxBodyBytes = 32 << 20
	}
	if cfg.Server.MaxImagePixels == 0 {
		cfg.Server.MaxImagePixels = DefaultMaxImagePixels
	}

	if cfg.Module.ResourcesDir == "" {
		cfg.Module.ResourcesDir = "resources/testdata"
	}

	if cfg.Auth.Header == "" {
		cfg.Auth.Header = "X-API-Key"
	}

	if cfg.Runs.Store == "" {
		cfg.Runs.Store = "sqlite"
	}
	if cfg.Runs.Capacity == 0 {
		cfg.Runs.Capacity = 1000
	}

	if cfg.Database.DSN == "" {
		cfg.Database.DSN = "amodule.db"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
}

func validate(cfg *Config) error {
	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 0 and 65535, got %d", cfg.Server.Port)
	}

	if cfg.Server.MaxImagePixels < 0 {
		return fmt.Errorf("server.max_image_pixels must not be negative")
	}

	validStores := map[string]bool{"sqlite": true, "memory": true, "none": true}
	if !validStores[cfg.Runs.Store] {
		return fmt.Errorf("runs.store must be 'sqlite', 'memory' or 'none', got %q", cfg.Runs.Store)
	}
	if cfg.Runs.Capacity < 0 {
		return fmt.Errorf("runs.capacity must not be negative")
	}
	if cfg.Runs.Retention < 0 {
		return fmt.Errorf("runs.retention must not be negative")
	}

	if cfg.Auth.APIKeyHash != "" && !strings.HasPrefix(cfg.Auth.APIKeyHash, "$2") {
		return fmt.Errorf("auth.api_key_hash must be a bcrypt hash")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[cfg.Logging.Format] {
		return fmt.Errorf("logging.format must be 'json' or 'console', got %q", cfg.Logging.Format)
	}

	if !strings.HasPrefix(cfg.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with '/'")
	}

	return nil
}
