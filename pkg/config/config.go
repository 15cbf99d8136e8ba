package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	BackendMemory = "memory"
	BackendPebble = "pebble"
	BackendRedis  = "redis"
)

// Defaults
const (
	defaultAddress      = "0.0.0.0"
	defaultPort         = 8080
	defaultDBPath       = "./.database"
	defaultRedisURL     = "redis://localhost:6379/0"
	defaultPath         = "communityChat/messages"
	defaultRateRPS      = 50
	defaultRateBurst    = 100
	defaultMaxBodySize  = 64 * 1024
	defaultMaxWatchWait = 30 * time.Second
	// Retention defaults
	defaultRetentionCron   = "0 3 * * *" // daily at 03:00
	defaultRetentionPeriod = 30 * 24 * time.Hour
)

// Addr returns the HTTP server address as host:port.
func (c *Config) Addr() string {
	addr := c.Server.Address
	if addr == "" {
		addr = defaultAddress
	}
	port := c.Server.Port
	if port == 0 {
		port = defaultPort
	}
	return fmt.Sprintf("%s:%d", addr, port)
}

// LoadConfigFile reads and parses a config file.
func LoadConfigFile(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &cfg, nil
}

// LoadDotEnv loads .env files into the process environment without
// overriding variables that are already set. Missing files are ignored.
func LoadDotEnv(files ...string) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		_ = godotenv.Load(f)
	}
}

// ResolveConfigPath returns the config file path, preferring flag, then env.
func ResolveConfigPath(flagPath string, flagSet bool) string {
	if flagSet {
		return flagPath
	}
	if p := os.Getenv("CHAT_CONFIG"); p != "" {
		return p
	}
	return flagPath
}

// Summary lists the effective settings for the startup banner. Secrets
// are counted, never printed.
func (c *Config) Summary() []string {
	items := []string{
		"listen: " + c.Addr(),
		"backend: " + c.Storage.Backend,
		"path: " + c.Storage.Path,
	}
	switch c.Storage.Backend {
	case BackendPebble:
		items = append(items, "db_path: "+c.Storage.DBPath)
	case BackendRedis:
		items = append(items, "redis: "+redactURL(c.Storage.RedisURL))
	}
	items = append(items,
		fmt.Sprintf("rate_limit: %.0f rps, burst %d", c.Server.RateLimit.RPS, c.Server.RateLimit.Burst),
		"max_body_size: "+c.Server.MaxBodySize.String(),
		fmt.Sprintf("api_keys: frontend=%d admin=%d", len(c.Server.APIKeys.Frontend), len(c.Server.APIKeys.Admin)),
	)
	if c.Retention.Enabled {
		items = append(items, fmt.Sprintf("retention: %q keep %s dry_run=%t", c.Retention.Cron, c.Retention.Period, c.Retention.DryRun))
	} else {
		items = append(items, "retention: disabled")
	}
	return items
}

func redactURL(u string) string {
	at := strings.LastIndex(u, "@")
	scheme := strings.Index(u, "://")
	if at < 0 || scheme < 0 || at < scheme {
		return u
	}
	return u[:scheme+3] + "***" + u[at:]
}
