package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config represents the top-level application config.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Database   DatabaseConfig   `koanf:"database"`
	Cache      CacheConfig      `koanf:"cache"`
	Reconciler ReconcilerConfig `koanf:"reconciler"`
}

type ServerConfig struct {
	Port          int    `koanf:"port"`
	Host          string `koanf:"host"`
	MaxBodySizeMB int    `koanf:"max_body_size_mb"`
	Mode          string `koanf:"mode"` // debug | release
}

type DatabaseConfig struct {
	Type         string `koanf:"type"` // postgres | memory
	DSN          string `koanf:"dsn"`
	MaxOpenConns int    `koanf:"max_open_conns"`
	MaxIdleConns int    `koanf:"max_idle_conns"`
	AutoMigrate  bool   `koanf:"auto_migrate"`
}

type CacheConfig struct {
	Enabled         bool   `koanf:"enabled"`
	TTL             string `koanf:"ttl"` // parsed and validated on startup
	SWR             string `koanf:"swr"`
	JanitorInterval string `koanf:"janitor_interval"`
}

type ReconcilerConfig struct {
	Enabled     bool   `koanf:"enabled"`
	Interval    string `koanf:"interval"`
	BatchSize   int    `koanf:"batch_size"`
	WorkerCount int    `koanf:"worker_count"`
}

func (c CacheConfig) ParsedTTL() (time.Duration, error) {
	return time.ParseDuration(c.TTL)
}

func (c CacheConfig) ParsedSWR() (time.Duration, error) {
	return time.ParseDuration(c.SWR)
}

func (c CacheConfig) ParsedJanitorInterval() (time.Duration, error) {
	return time.ParseDuration(c.JanitorInterval)
}

func (c ReconcilerConfig) ParsedInterval() (time.Duration, error) {
	return time.ParseDuration(c.Interval)
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d (must be 1-65535)", c.Server.Port)
	}
	if strings.TrimSpace(c.Server.Host) == "" {
		return fmt.Errorf("server.host is required")
	}
	if c.Server.MaxBodySizeMB <= 0 {
		return fmt.Errorf("server.max_body_size_mb must be > 0")
	}
	if c.Server.Mode != "debug" && c.Server.Mode != "release" {
		return fmt.Errorf("invalid server.mode %q (must be debug or release)", c.Server.Mode)
	}

	switch c.Database.Type {
	case "postgres":
		if strings.TrimSpace(c.Database.DSN) == "" {
			return fmt.Errorf("database.dsn is required for database.type=postgres")
		}
		if c.Database.MaxOpenConns <= 0 {
			return fmt.Errorf("database.max_open_conns must be > 0")
		}
		if c.Database.MaxIdleConns <= 0 {
			return fmt.Errorf("database.max_idle_conns must be > 0")
		}
	case "memory":
		// No further settings; in-process store for development and tests.
	default:
		return fmt.Errorf("unsupported database.type %q (must be postgres or memory)", c.Database.Type)
	}

	if c.Cache.Enabled {
		for key, parse := range map[string]func() (time.Duration, error){
			"cache.ttl":              c.Cache.ParsedTTL,
			"cache.swr":              c.Cache.ParsedSWR,
			"cache.janitor_interval": c.Cache.ParsedJanitorInterval,
		} {
			d, err := parse()
			if err != nil {
				return fmt.Errorf("invalid %s: %w", key, err)
			}
			if key != "cache.swr" && d <= 0 {
				return fmt.Errorf("%s must be > 0", key)
			}
			if key == "cache.swr" && d < 0 {
				return fmt.Errorf("%s must be >= 0", key)
			}
		}
	}

	if c.Reconciler.Enabled {
		interval, err := c.Reconciler.ParsedInterval()
		if err != nil {
			return fmt.Errorf("invalid reconciler.interval: %w", err)
		}
		if interval <= 0 {
			return fmt.Errorf("reconciler.interval must be > 0")
		}
		if c.Reconciler.BatchSize <= 0 {
			return fmt.Errorf("reconciler.batch_size must be > 0")
		}
		if c.Reconciler.WorkerCount <= 0 {
			return fmt.Errorf("reconciler.worker_count must be > 0")
		}
	}

	return nil
}

// Load parses config from file + env and validates it.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	defaults := map[string]interface{}{
		"server.port":             8080,
		"server.host":             "0.0.0.0",
		"server.max_body_size_mb": 1,
		"server.mode":             "release",
		"database.type":           "postgres",
		"database.dsn":            "",
		"database.max_open_conns": 25,
		"database.max_idle_conns": 25,
		"database.auto_migrate":   true,
		"cache.enabled":           true,
		"cache.ttl":               "30s",
		"cache.swr":               "60s",
		"cache.janitor_interval":  "1m",
		"reconciler.enabled":      true,
		"reconciler.interval":     "1h",
		"reconciler.batch_size":   500,
		"reconciler.worker_count": 4,
	}
	for key, value := range defaults {
		k.Set(key, value)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := k.Load(env.Provider("KINDLING_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "KINDLING_")), "__", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}
