package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/CreativeUnicorns/prefs"
	"github.com/CreativeUnicorns/prefs/encryption"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
	kDuration
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "app", typ: kString, env: prefs.EnvAppName,
		apply:   func(cfg *Config, v any) { cfg.App = v.(string) },
		extract: func(cfg Config) any { return cfg.App },
	},
	{
		key: "user", typ: kString, env: "PREFS_USER",
		apply:   func(cfg *Config, v any) { cfg.User = v.(string) },
		extract: func(cfg Config) any { return cfg.User },
	},
	{
		key: "log.level", typ: kString, env: "PREFS_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "storage.backend", typ: kString, env: "PREFS_STORAGE_BACKEND",
		apply:   func(cfg *Config, v any) { cfg.Storage.Backend = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.Backend },
	},
	{
		key: "storage.dir", typ: kString, env: "PREFS_STORAGE_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.Dir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.Dir },
	},
	{
		key: "storage.dsn", typ: kString, env: "PREFS_STORAGE_DSN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Storage.DSN = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DSN },
	},
	{
		key: "storage.sqlite_driver", typ: kString, env: "PREFS_STORAGE_SQLITE_DRIVER",
		apply:   func(cfg *Config, v any) { cfg.Storage.SQLiteDriver = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.SQLiteDriver },
	},
	{
		key: "storage.sync_interval", typ: kDuration, env: "PREFS_STORAGE_SYNC_INTERVAL",
		apply:   func(cfg *Config, v any) { cfg.Storage.SyncInterval = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Storage.SyncInterval },
	},
	{
		key: "cache.backend", typ: kString, env: "PREFS_CACHE_BACKEND",
		apply:   func(cfg *Config, v any) { cfg.Cache.Backend = v.(string) },
		extract: func(cfg Config) any { return cfg.Cache.Backend },
	},
	{
		key: "cache.ttl", typ: kDuration, env: "PREFS_CACHE_TTL",
		apply:   func(cfg *Config, v any) { cfg.Cache.TTL = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Cache.TTL },
	},
	{
		key: "cache.redis_addr", typ: kString, env: "PREFS_CACHE_REDIS_ADDR",
		apply:   func(cfg *Config, v any) { cfg.Cache.RedisAddr = v.(string) },
		extract: func(cfg Config) any { return cfg.Cache.RedisAddr },
	},
	{
		key: "cache.redis_password", typ: kString, env: "PREFS_CACHE_REDIS_PASSWORD",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Cache.RedisPassword = v.(string) },
		extract: func(cfg Config) any { return cfg.Cache.RedisPassword },
	},
	{
		key: "cache.redis_db", typ: kInt, env: "PREFS_CACHE_REDIS_DB",
		apply:   func(cfg *Config, v any) { cfg.Cache.RedisDB = v.(int) },
		extract: func(cfg Config) any { return cfg.Cache.RedisDB },
	},
	{
		key: "server.addr", typ: kString, env: "PREFS_SERVER_ADDR",
		apply:   func(cfg *Config, v any) { cfg.Server.Addr = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.Addr },
	},
	{
		key: "server.shutdown_timeout", typ: kDuration, env: "PREFS_SERVER_SHUTDOWN_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Server.ShutdownTimeout = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Server.ShutdownTimeout },
	},
	{
		key: "encryption.enabled", typ: kBool, env: "PREFS_ENCRYPTION_ENABLED",
		apply:   func(cfg *Config, v any) { cfg.Encryption.Enabled = v.(bool) },
		extract: func(cfg Config) any { return cfg.Encryption.Enabled },
	},
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using configured value.\n", s.env, raw, err)
			}
		case kBool:
			if b, err := strconv.ParseBool(raw); err == nil {
				s.apply(cfg, b)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from env var %s=%q: %v. Using configured value.\n", s.env, raw, err)
			}
		case kDuration:
			if d, err := time.ParseDuration(raw); err == nil {
				s.apply(cfg, d)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse duration from env var %s=%q: %v. Using configured value.\n", s.env, raw, err)
			}
		}
	}
}

// KeyInfo describes a config key for display purposes.
type KeyInfo struct {
	Key    string
	EnvVar string
	Value  string
}

// ShowAll returns every config key with its current value. Secrets are masked.
func ShowAll(cfg Config) []KeyInfo {
	result := make([]KeyInfo, 0, len(specs)+1)
	for _, s := range specs {
		value := fmt.Sprintf("%v", s.extract(cfg))
		if s.secret && value != "" {
			value = "********"
		}
		result = append(result, KeyInfo{Key: s.key, EnvVar: s.env, Value: value})
	}
	keySet := "unset"
	if os.Getenv(encryption.EnvKeyName) != "" {
		keySet = "set"
	}
	result = append(result, KeyInfo{Key: "encryption.key", EnvVar: encryption.EnvKeyName, Value: keySet})
	return result
}

// ValidKeys returns the config key names.
func ValidKeys() []string {
	keys := make([]string, 0, len(specs))
	for _, s := range specs {
		keys = append(keys, s.key)
	}
	return keys
}
