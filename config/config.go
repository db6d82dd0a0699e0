// Package config loads prefsctl and server settings from defaults, an
// optional YAML file and PREFS_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/CreativeUnicorns/prefs"
)

// ErrMissingAppName is returned by Load when no application name is configured.
var ErrMissingAppName = fmt.Errorf("%w: missing application name; set app in the config file or %s",
	prefs.ErrConfiguration, prefs.EnvAppName)

type Config struct {
	App        string           `yaml:"app"`
	User       string           `yaml:"user"`
	Log        LogConfig        `yaml:"log"`
	Storage    StorageConfig    `yaml:"storage"`
	Cache      CacheConfig      `yaml:"cache"`
	Server     ServerConfig     `yaml:"server"`
	Encryption EncryptionConfig `yaml:"encryption"`
	// Keys are preference keys defined up front, so that the server can
	// serve them and the CLI can read them without --type and --default.
	Keys []KeyConfig `yaml:"keys"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// StorageConfig selects and configures the backend.
type StorageConfig struct {
	// Backend is one of xml, memory, sqlite or postgres.
	Backend string `yaml:"backend"`
	// Dir is the XML store's base directory and the SQLite file's directory.
	Dir string `yaml:"dir"`
	// DSN is the Postgres connection string, or an explicit SQLite path.
	DSN string `yaml:"dsn"`
	// SQLiteDriver is sqlite3 (cgo) or sqlite (pure Go).
	SQLiteDriver string        `yaml:"sqlite_driver"`
	SyncInterval time.Duration `yaml:"sync_interval"`
}

type CacheConfig struct {
	// Backend is none, memory or redis.
	Backend       string        `yaml:"backend"`
	TTL           time.Duration `yaml:"ttl"`
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type EncryptionConfig struct {
	Enabled bool `yaml:"enabled"`
}

// KeyConfig declares one preference key. Default is parsed according to
// Type; object defaults are JSON.
type KeyConfig struct {
	Scope       string `yaml:"scope"`
	Namespace   string `yaml:"namespace"`
	Name        string `yaml:"name"`
	Type        string `yaml:"type"`
	Default     string `yaml:"default"`
	Sensitive   bool   `yaml:"sensitive"`
	Description string `yaml:"description"`
}

func defaults() Config {
	return Config{
		Log: LogConfig{Level: "info"},
		Storage: StorageConfig{
			Backend:      "xml",
			Dir:          defaultDataDir(),
			SQLiteDriver: "sqlite3",
			SyncInterval: 30 * time.Second,
		},
		Cache: CacheConfig{
			Backend:   "none",
			TTL:       5 * time.Minute,
			RedisAddr: "localhost:6379",
		},
		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: 10 * time.Second,
		},
	}
}

func defaultDataDir() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".local", "share")
		} else {
			return "prefs-data"
		}
	}
	return filepath.Join(dir, "prefs")
}

// DefaultPath is the config file consulted when Load is given no path:
// $XDG_CONFIG_HOME/prefs/config.yaml.
func DefaultPath() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".config")
		} else {
			dir = "."
		}
	}
	return filepath.Join(dir, "prefs", "config.yaml")
}

// Load builds the configuration. An explicit path must exist; when path is
// empty, DefaultPath is read if present.
func Load(path string) (Config, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}

	cfg := defaults()
	if err := applyFile(&cfg, path); err != nil {
		if explicit || !errors.Is(err, os.ErrNotExist) {
			return Config{}, err
		}
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.UnmarshalStrict(data, cfg); err != nil {
		return fmt.Errorf("parsing config %s: %w", path, err)
	}
	return nil
}

// Validate checks required settings and enumerated values.
func (c Config) Validate() error {
	if c.App == "" {
		return ErrMissingAppName
	}
	if _, err := prefs.ParseLogLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	switch c.Storage.Backend {
	case "xml", "memory", "sqlite", "postgres":
	default:
		return fmt.Errorf("%w: unknown storage backend %q", prefs.ErrConfiguration, c.Storage.Backend)
	}
	if c.Storage.Backend == "postgres" && c.Storage.DSN == "" {
		return fmt.Errorf("%w: storage.dsn is required for postgres", prefs.ErrConfiguration)
	}
	switch c.Storage.SQLiteDriver {
	case "sqlite3", "sqlite":
	default:
		return fmt.Errorf("%w: unknown sqlite driver %q", prefs.ErrConfiguration, c.Storage.SQLiteDriver)
	}
	switch c.Cache.Backend {
	case "none", "", "memory", "redis":
	default:
		return fmt.Errorf("%w: unknown cache backend %q", prefs.ErrConfiguration, c.Cache.Backend)
	}
	for i, k := range c.Keys {
		if k.Name == "" {
			return fmt.Errorf("%w: keys[%d]: name is required", prefs.ErrConfiguration, i)
		}
		if _, err := prefs.ParseScope(k.Scope); err != nil {
			return fmt.Errorf("keys[%d]: %w", i, err)
		}
		if _, err := prefs.ParseKind(k.Type); err != nil {
			return fmt.Errorf("keys[%d]: %w", i, err)
		}
	}
	return nil
}
