// Package config loads the tfomics server and CLI configuration from a
// TOML file, with defaults suitable for local use.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the full application configuration.
type Config struct {
	Server ServerConfig `toml:"server"`
	Genome GenomeConfig `toml:"genome"`
	Cache  CacheConfig  `toml:"cache"`
	Store  StoreConfig  `toml:"store"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Listen       string   `toml:"listen"`
	ReadTimeout  duration `toml:"read_timeout"`
	WriteTimeout duration `toml:"write_timeout"`
}

// GenomeConfig points at the reference genome.
type GenomeConfig struct {
	Path string `toml:"path"`
	Name string `toml:"name"`
}

// CacheConfig selects and configures the cache backend.
type CacheConfig struct {
	// Backend is "file", "redis", or "none".
	Backend string `toml:"backend"`

	// Dir is the cache directory for the file backend.
	Dir string `toml:"dir"`

	// Redis settings, used when Backend is "redis".
	RedisAddr     string `toml:"redis_addr"`
	RedisPassword string `toml:"redis_password"`
	RedisDB       int    `toml:"redis_db"`
}

// StoreConfig configures run persistence.
type StoreConfig struct {
	// Backend is "memory" or "mongo".
	Backend string `toml:"backend"`

	// Mongo settings, used when Backend is "mongo".
	MongoURI        string `toml:"mongo_uri"`
	MongoDatabase   string `toml:"mongo_database"`
	MongoCollection string `toml:"mongo_collection"`
}

// duration wraps time.Duration for TOML strings like "30s".
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// Default returns the configuration used when no file is present.
func Default() Config {
	cacheDir, err := os.UserCacheDir()
	if err != nil {
		cacheDir = os.TempDir()
	}

	return Config{
		Server: ServerConfig{
			Listen:       ":8080",
			ReadTimeout:  duration{30 * time.Second},
			WriteTimeout: duration{60 * time.Second},
		},
		Genome: GenomeConfig{},
		Cache: CacheConfig{
			Backend: "file",
			Dir:     filepath.Join(cacheDir, "tfomics"),
		},
		Store: StoreConfig{
			Backend: "memory",
		},
	}
}

// Load reads a TOML config file on top of the defaults. An empty path
// falls back to the TFOMICS_CONFIG environment variable; if that is
// unset too, the defaults are returned unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		path = os.Getenv("TFOMICS_CONFIG")
	}
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks backend names and required settings.
func (c Config) Validate() error {
	switch c.Cache.Backend {
	case "file", "none":
	case "redis":
		if c.Cache.RedisAddr == "" {
			return fmt.Errorf("cache backend redis requires redis_addr")
		}
	default:
		return fmt.Errorf("unknown cache backend %q (must be file, redis, or none)", c.Cache.Backend)
	}

	switch c.Store.Backend {
	case "memory":
	case "mongo":
		if c.Store.MongoURI == "" {
			return fmt.Errorf("store backend mongo requires mongo_uri")
		}
	default:
		return fmt.Errorf("unknown store backend %q (must be memory or mongo)", c.Store.Backend)
	}

	return nil
}
