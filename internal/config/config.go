// Package config loads the cache layer configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
)

// Config is the process-wide configuration. It is parsed once at startup and
// passed explicitly to the components that need it.
type Config struct {
	// Listen is the address the interception proxy listens on.
	Listen string `env:"SWCACHE_LISTEN" envDefault:"127.0.0.1:8787"`
	// Upstream is the origin serving the application shell.
	Upstream string `env:"SWCACHE_UPSTREAM" envDefault:"http://localhost:5173"`
	// BackendOrigin is the host[:port] of the API backend.
	BackendOrigin string `env:"SWCACHE_BACKEND_ORIGIN" envDefault:"localhost:3000"`
	APIPrefix     string `env:"SWCACHE_API_PREFIX" envDefault:"/api/"`

	StaticGeneration  string   `env:"SWCACHE_STATIC_GENERATION" envDefault:"crowdsense-static-v1"`
	DynamicGeneration string   `env:"SWCACHE_DYNAMIC_GENERATION" envDefault:"crowdsense-dynamic-v1"`
	Manifest          []string `env:"SWCACHE_MANIFEST" envSeparator:"," envDefault:"/,/index.html,/manifest.json"`
	Discover          bool     `env:"SWCACHE_DISCOVER" envDefault:"false"`
	FallbackOn5xx     bool     `env:"SWCACHE_FALLBACK_ON_5XX" envDefault:"false"`

	// Backend selects the Cache Store: daemon, bolt, redis or memory.
	Backend   string `env:"SWCACHE_BACKEND" envDefault:"daemon"`
	Codec     string `env:"SWCACHE_CODEC" envDefault:"cbor"`
	Socket    string `env:"SWCACHE_SOCK"`
	DBPath    string `env:"SWCACHE_DB"`
	RedisAddr string `env:"SWCACHE_REDIS_ADDR" envDefault:"localhost:6379"`
	RedisDB   int    `env:"SWCACHE_REDIS_DB" envDefault:"0"`

	// MCP serves the admin tools on stdio in addition to the proxy.
	MCP bool `env:"SWCACHE_MCP" envDefault:"false"`
}

// Load parses the environment into a Config and fills path defaults.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.Socket == "" {
		cfg.Socket = DefaultSocketPath()
	}
	if cfg.DBPath == "" {
		cfg.DBPath = DefaultDBPath()
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations the cache layer cannot run with.
func (c Config) Validate() error {
	if c.StaticGeneration == "" || c.DynamicGeneration == "" {
		return fmt.Errorf("config: generation names must not be empty")
	}
	if c.StaticGeneration == c.DynamicGeneration {
		return fmt.Errorf("config: static and dynamic generations must differ (%q)", c.StaticGeneration)
	}
	switch c.Backend {
	case "daemon", "bolt", "redis", "memory":
	default:
		return fmt.Errorf("config: unknown backend %q", c.Backend)
	}
	switch c.Codec {
	case "cbor", "msgpack":
	default:
		return fmt.Errorf("config: unknown codec %q", c.Codec)
	}
	return nil
}

// DefaultSocketPath is where the cache daemon listens unless SWCACHE_SOCK is set.
func DefaultSocketPath() string { return filepath.Join(cacheDir(), "cache.sock") }

// DefaultDBPath is the bolt file owned by the cache daemon unless SWCACHE_DB is set.
func DefaultDBPath() string { return filepath.Join(cacheDir(), "cache.bbolt") }

func cacheDir() string {
	home, _ := os.UserHomeDir()
	if home == "" {
		home = "."
	}
	return filepath.Join(home, ".cache", "swcache")
}
