// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultPath is the configuration file looked up when none is given.
const DefaultPath = "modreg.yaml"

// Config is the root configuration structure.
type Config struct {
	Repository RepositoryConfig `yaml:"repository"`
	Registry   RegistryConfig   `yaml:"registry"`
	Lock       LockConfig       `yaml:"lock"`
	Replay     ReplayConfig     `yaml:"replay"`
	Logging    LoggingConfig    `yaml:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// RepositoryConfig locates the repository directories. Relative
// directories are resolved against Path.
type RepositoryConfig struct {
	Path       string `yaml:"path"`
	SchemasDir string `yaml:"schemas_dir"`
	DataDir    string `yaml:"data_dir"`
}

// RegistryConfig locates the registry document.
type RegistryConfig struct {
	File string `yaml:"file"`
}

// LockConfig locates the registry lock file.
type LockConfig struct {
	File string `yaml:"file"`
}

// ReplayConfig configures the notification history index.
type ReplayConfig struct {
	DSN string `yaml:"dsn"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json" or "console"
}

// MetricsConfig configures the Prometheus textfile export.
type MetricsConfig struct {
	Textfile string `yaml:"textfile"` // empty disables the export
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Expand environment variables
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

// LoadFromEnv creates configuration from environment variables alone.
//
// Environment variables:
//
//	MODREG_REPOSITORY_PATH  - Repository root (default: current directory)
//	MODREG_SCHEMAS_DIR      - Schema directory (default: <root>/yang)
//	MODREG_DATA_DIR         - Data directory (default: <root>/data)
//	MODREG_REGISTRY_FILE    - Registry document (default: <root>/registry.mpk)
//	MODREG_LOCK_FILE        - Registry lock file (default: <root>/registry.lock)
//	MODREG_REPLAY_DSN       - Notification index database (default: <root>/notif.db)
//	MODREG_LOG_LEVEL        - Log level: debug, info, warn, error (default: info)
//	MODREG_LOG_FORMAT       - Log format: json or console (default: console)
//	MODREG_METRICS_TEXTFILE - Prometheus textfile written after each run
func LoadFromEnv() (*Config, error) {
	var cfg Config

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

// LoadWithFallback loads path when it exists and falls back to the
// environment otherwise.
func LoadWithFallback(path string) (*Config, error) {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}
	return LoadFromEnv()
}

func applyEnvOverrides(cfg *Config) {
	overrides := []struct {
		env string
		dst *string
	}{
		{"MODREG_REPOSITORY_PATH", &cfg.Repository.Path},
		{"MODREG_SCHEMAS_DIR", &cfg.Repository.SchemasDir},
		{"MODREG_DATA_DIR", &cfg.Repository.DataDir},
		{"MODREG_REGISTRY_FILE", &cfg.Registry.File},
		{"MODREG_LOCK_FILE", &cfg.Lock.File},
		{"MODREG_REPLAY_DSN", &cfg.Replay.DSN},
		{"MODREG_LOG_LEVEL", &cfg.Logging.Level},
		{"MODREG_LOG_FORMAT", &cfg.Logging.Format},
		{"MODREG_METRICS_TEXTFILE", &cfg.Metrics.Textfile},
	}
	for _, o := range overrides {
		if v := os.Getenv(o.env); v != "" {
			*o.dst = v
		}
	}
}

func setDefaults(cfg *Config) {
	if cfg.Repository.Path == "" {
		cfg.Repository.Path = "."
	}
	root := cfg.Repository.Path

	if cfg.Repository.SchemasDir == "" {
		cfg.Repository.SchemasDir = "yang"
	}
	if cfg.Repository.DataDir == "" {
		cfg.Repository.DataDir = "data"
	}
	if cfg.Registry.File == "" {
		cfg.Registry.File = "registry.mpk"
	}
	if cfg.Lock.File == "" {
		cfg.Lock.File = "registry.lock"
	}
	if cfg.Replay.DSN == "" {
		cfg.Replay.DSN = "notif.db"
	}

	cfg.Repository.SchemasDir = resolve(root, cfg.Repository.SchemasDir)
	cfg.Repository.DataDir = resolve(root, cfg.Repository.DataDir)
	cfg.Registry.File = resolve(root, cfg.Registry.File)
	cfg.Lock.File = resolve(root, cfg.Lock.File)
	if cfg.Replay.DSN != ":memory:" {
		cfg.Replay.DSN = resolve(root, cfg.Replay.DSN)
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "console"
	}
}

func resolve(root, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(root, p)
}

func validate(cfg *Config) error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(cfg.Logging.Level)] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error, got %q", cfg.Logging.Level)
	}

	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[cfg.Logging.Format] {
		return fmt.Errorf("logging.format must be 'json' or 'console', got %q", cfg.Logging.Format)
	}

	if cfg.Registry.File == cfg.Lock.File {
		return fmt.Errorf("lock.file must differ from registry.file")
	}
	return nil
}
