package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Environment variable conventions.
const (
	envPrefix     = "HARVEST_"
	envConfigPath = "HARVEST_CONFIG"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New(ctx))
//  2. file (YAML) if HARVEST_CONFIG is set
//  3. env (prefix HARVEST_)
//
// Sizing defaults for the selected environment are applied afterwards, then
// the result is validated.
func Load(ctx context.Context) (*Config, error) {
	base := New(ctx)

	k := koanf.New(".")

	if path := os.Getenv(envConfigPath); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrLoadConfig, path, err)
		}
	}

	// HARVEST_WORKER_COUNT -> worker_count (flat keys, underscores preserved).
	envProvider := env.Provider(envPrefix, ".", func(s string) string {
		s = strings.ToLower(s)
		return strings.TrimPrefix(s, strings.ToLower(envPrefix))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %w", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	cfg.ApplyEnvironmentDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports the first configuration problem found, wrapped in ErrInvalidConfig.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Addr) == "":
		return invalid("addr must not be empty")
	case strings.TrimSpace(c.APIKey) == "":
		return invalid("api_key must be set")
	case c.PlatformBaseURL == "" || c.RegionalBaseURL == "":
		return invalid("platform_base_url and regional_base_url must be set")
	case c.Queue == "":
		return invalid("queue must not be empty")
	case c.WorkerCount < 1:
		return invalid("worker_count must be positive")
	case c.MaxAttempts < 1:
		return invalid("max_attempts must be positive")
	case c.RequestTimeoutMS <= 0:
		return invalid("request_timeout_ms must be positive")
	case c.GovernorMinDelayMS <= 0:
		return invalid("governor_min_delay_ms must be positive")
	case c.GovernorMinDelayMS > c.GovernorMaxDelayMS:
		return invalid("governor_min_delay_ms exceeds governor_max_delay_ms")
	case c.GovernorInitialDelayMS < c.GovernorMinDelayMS || c.GovernorInitialDelayMS > c.GovernorMaxDelayMS:
		return invalid("governor_initial_delay_ms outside [min, max]")
	case c.PlayerDelayMS < 0 || c.RunIntervalMS < 0:
		return invalid("delays must not be negative")
	}

	switch strings.ToLower(c.LeagueTier) {
	case "challenger", "grandmaster", "master":
	default:
		return invalid("unknown league_tier " + c.LeagueTier)
	}

	switch c.StorageDriver {
	case StorageMemory:
	case StoragePostgres:
		if c.PostgresDSN == "" {
			return invalid("postgres_dsn required for postgres storage")
		}
	default:
		return invalid("unknown storage_driver " + c.StorageDriver)
	}
	return nil
}

func invalid(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, msg)
}
