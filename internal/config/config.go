// Package config defines harvest configuration structures and loading hooks.
//
// Conventions:
//   - One Config value is built at startup and passed by reference into each
//     component constructor; nothing reads configuration from globals.
//   - Durations are expressed in milliseconds and converted via accessors.
//   - Sizing knobs left at zero are filled from the environment profile.
package config

import (
	"context"
	"strings"
	"time"
)

// Environment profiles.
const (
	EnvProduction  = "production"
	EnvDevelopment = "development"
)

// Storage drivers.
const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

// Sizing defaults per environment profile.
const (
	prodLeaderboardSize  = 300
	prodMatchesPerPlayer = 20
	devLeaderboardSize   = 50
	devMatchesPerPlayer  = 5
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the log handler: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// Environment selects sizing defaults: production or development.
	Environment string `koanf:"environment"`

	// APIKey is sent as the X-Riot-Token header on every upstream call.
	APIKey string `koanf:"api_key"`

	// PlatformBaseURL serves league endpoints; RegionalBaseURL serves match endpoints.
	PlatformBaseURL string `koanf:"platform_base_url"`
	RegionalBaseURL string `koanf:"regional_base_url"`

	// Queue is the ranked queue identifier, e.g. RANKED_SOLO_5x5.
	Queue string `koanf:"queue"`

	// LeagueTier selects the apex league: challenger, grandmaster or master.
	LeagueTier string `koanf:"league_tier"`

	// LeaderboardSize bounds how many top players are walked per run.
	LeaderboardSize int `koanf:"leaderboard_size"`

	// MatchesPerPlayer is the per-player match-id target.
	MatchesPerPlayer int `koanf:"matches_per_player"`

	// MinLeaderboardCount triggers a data-quality warning when undershot.
	MinLeaderboardCount int `koanf:"min_leaderboard_count"`

	// RequestTimeoutMS bounds each upstream HTTP request.
	RequestTimeoutMS int `koanf:"request_timeout_ms"`

	// MaxAttempts caps retries per upstream call.
	MaxAttempts int `koanf:"max_attempts"`

	// Governor delay bounds.
	GovernorInitialDelayMS int `koanf:"governor_initial_delay_ms"`
	GovernorMinDelayMS     int `koanf:"governor_min_delay_ms"`
	GovernorMaxDelayMS     int `koanf:"governor_max_delay_ms"`

	// PlayerDelayMS pauses a worker between two players.
	PlayerDelayMS int `koanf:"player_delay_ms"`

	// WorkerCount sets the number of walker workers.
	WorkerCount int `koanf:"worker_count"`

	// RunIntervalMS schedules periodic runs; zero leaves only the HTTP trigger.
	RunIntervalMS int `koanf:"run_interval_ms"`

	// RunTimeoutMS bounds one scheduled run.
	RunTimeoutMS int `koanf:"run_timeout_ms"`

	// StorageDriver selects the sink: postgres or memory.
	StorageDriver string `koanf:"storage_driver"`

	PostgresDSN      string `koanf:"postgres_dsn"`
	PostgresMaxConns int    `koanf:"postgres_max_conns"`

	// KafkaBrokers is a comma separated broker list; empty disables the run publisher.
	KafkaBrokers string `koanf:"kafka_brokers"`
	KafkaTopic   string `koanf:"kafka_topic"`
}

// New returns a Config populated with defaults. Sizing fields stay zero
// until ApplyEnvironmentDefaults runs.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:               "info",
		LogFormat:              "text",
		Addr:                   ":9080",
		Environment:            EnvDevelopment,
		PlatformBaseURL:        "https://kr.api.riotgames.com",
		RegionalBaseURL:        "https://asia.api.riotgames.com",
		Queue:                  "RANKED_SOLO_5x5",
		LeagueTier:             "challenger",
		MinLeaderboardCount:    250,
		RequestTimeoutMS:       10_000,
		MaxAttempts:            4,
		GovernorInitialDelayMS: 500,
		GovernorMinDelayMS:     100,
		GovernorMaxDelayMS:     10_000,
		PlayerDelayMS:          1_000,
		WorkerCount:            4,
		RunTimeoutMS:           3_600_000,
		StorageDriver:          StorageMemory,
		PostgresMaxConns:       8,
		KafkaTopic:             "harvest.runs",
	}
}

// IsProduction reports whether the production profile is active.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), EnvProduction)
}

// ApplyEnvironmentDefaults fills unset sizing knobs from the active profile.
func (c *Config) ApplyEnvironmentDefaults() {
	size, perPlayer := devLeaderboardSize, devMatchesPerPlayer
	if c.IsProduction() {
		size, perPlayer = prodLeaderboardSize, prodMatchesPerPlayer
	}
	if c.LeaderboardSize <= 0 {
		c.LeaderboardSize = size
	}
	if c.MatchesPerPlayer <= 0 {
		c.MatchesPerPlayer = perPlayer
	}
}

func (c *Config) RequestTimeout() time.Duration { return ms(c.RequestTimeoutMS) }
func (c *Config) GovernorInitialDelay() time.Duration {
	return ms(c.GovernorInitialDelayMS)
}
func (c *Config) GovernorMinDelay() time.Duration { return ms(c.GovernorMinDelayMS) }
func (c *Config) GovernorMaxDelay() time.Duration { return ms(c.GovernorMaxDelayMS) }
func (c *Config) PlayerDelay() time.Duration      { return ms(c.PlayerDelayMS) }
func (c *Config) RunInterval() time.Duration      { return ms(c.RunIntervalMS) }
func (c *Config) RunTimeout() time.Duration       { return ms(c.RunTimeoutMS) }

// KafkaBrokerList splits KafkaBrokers on commas, dropping blanks.
func (c *Config) KafkaBrokerList() []string {
	var out []string
	for _, b := range strings.Split(c.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }
