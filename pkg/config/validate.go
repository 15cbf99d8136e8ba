package config

import (
	"fmt"
	"strings"

	"github.com/adhocore/gronx"
)

// ValidateConfig applies defaults and fails fast on values the service
// cannot run with. It mutates the effective config.
func ValidateConfig(eff EffectiveConfigResult) error {
	cfg := eff.Config
	if cfg == nil {
		return fmt.Errorf("effective config is nil")
	}

	if cfg.Server.RateLimit.RPS <= 0 {
		cfg.Server.RateLimit.RPS = defaultRateRPS
	}
	if cfg.Server.RateLimit.Burst <= 0 {
		cfg.Server.RateLimit.Burst = defaultRateBurst
	}
	if cfg.Server.MaxBodySize <= 0 {
		cfg.Server.MaxBodySize = SizeBytes(defaultMaxBodySize)
	}
	if cfg.Server.MaxWatchWait <= 0 {
		cfg.Server.MaxWatchWait = Duration(defaultMaxWatchWait)
	}

	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = BackendPebble
	}
	if cfg.Storage.Path == "" {
		cfg.Storage.Path = defaultPath
	}
	cfg.Storage.Path = strings.Trim(cfg.Storage.Path, "/")
	switch cfg.Storage.Backend {
	case BackendMemory:
	case BackendPebble:
		if cfg.Storage.DBPath == "" {
			cfg.Storage.DBPath = defaultDBPath
		}
	case BackendRedis:
		if cfg.Storage.RedisURL == "" {
			cfg.Storage.RedisURL = defaultRedisURL
		}
	default:
		return fmt.Errorf("unknown storage.backend %q: want memory, pebble or redis", cfg.Storage.Backend)
	}

	if cfg.Retention.Cron == "" {
		cfg.Retention.Cron = defaultRetentionCron
	}
	if cfg.Retention.Period <= 0 {
		cfg.Retention.Period = Duration(defaultRetentionPeriod)
	}
	if cfg.Retention.Enabled {
		gron := gronx.New()
		if !gron.IsValid(cfg.Retention.Cron) {
			return fmt.Errorf("invalid retention.cron: not a valid cron expression: %q", cfg.Retention.Cron)
		}
	}
	return nil
}
