package governor

import (
	"time"

	"github.com/coder/quartz"
)

// Option applies a configuration option to the Governor.
type Option func(*Governor)

// WithInitialDelay sets the starting delay.
func WithInitialDelay(d time.Duration) Option {
	return func(g *Governor) {
		if d > 0 {
			g.delay = d
		}
	}
}

// WithMinDelay sets the delay floor.
func WithMinDelay(d time.Duration) Option {
	return func(g *Governor) {
		if d > 0 {
			g.minDelay = d
		}
	}
}

// WithMaxDelay sets the delay ceiling.
func WithMaxDelay(d time.Duration) Option {
	return func(g *Governor) {
		if d > 0 {
			g.maxDelay = d
		}
	}
}

// WithClock swaps the time source, mainly for tests.
func WithClock(c quartz.Clock) Option {
	return func(g *Governor) {
		if c != nil {
			g.clock = c
		}
	}
}
