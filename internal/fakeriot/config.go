package fakeriot

import (
	"time"

	"github.com/okian/harvest/pkg/logger"
)

// Default fixture sizes.
const (
	DefaultPlayers          = 10
	DefaultMatchesPerPlayer = 5
	DefaultPlatform         = "KR"
	DefaultQueue            = "RANKED_SOLO_5x5"

	participantsPerMatch = 10
	maxIDsCount          = 100
	defaultIDsCount      = 20
	firstMatchNumber     = 7000000000
)

// Config shapes the simulated upstream.
type Config struct {
	// APIKey, when set, must arrive in X-Riot-Token; anything else gets 403.
	APIKey string
	// Players is the ladder size.
	Players int
	// MatchesPerPlayer is each player's history length.
	MatchesPerPlayer int
	// Overlap is how many match ids adjacent players share.
	Overlap int
	// Missing lists match ids that are listed but answer 404 on detail.
	Missing []string
	// ThrottleEvery answers every Nth request with 429. Zero disables.
	ThrottleEvery int
	// RetryAfter is sent with throttled responses when positive.
	RetryAfter time.Duration
	Platform   string
	Queue      string
	// Epoch anchors generated game creation times.
	Epoch  time.Time
	Logger logger.Logger
}

func (c *Config) setDefaults() {
	if c.Players <= 0 {
		c.Players = DefaultPlayers
	}
	if c.MatchesPerPlayer <= 0 {
		c.MatchesPerPlayer = DefaultMatchesPerPlayer
	}
	if c.Overlap < 0 {
		c.Overlap = 0
	}
	if c.Overlap >= c.MatchesPerPlayer {
		c.Overlap = c.MatchesPerPlayer - 1
	}
	if c.Platform == "" {
		c.Platform = DefaultPlatform
	}
	if c.Queue == "" {
		c.Queue = DefaultQueue
	}
	if c.Epoch.IsZero() {
		c.Epoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	if c.Logger == nil {
		c.Logger = logger.NewNop()
	}
}
