package worker

import (
	"time"

	"github.com/coder/quartz"

	"github.com/okian/harvest/pkg/logger"
)

// Option applies a configuration option to the InMemoryWorker.
type Option func(*InMemoryWorker)

// WithName sets the worker name for identification and logging.
func WithName(name string) Option {
	return func(w *InMemoryWorker) {
		if name != "" {
			w.name = name
		}
	}
}

// WithLogger sets a custom logger for the worker.
func WithLogger(l logger.Logger) Option {
	return func(w *InMemoryWorker) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithPause sets the idle time between two consecutive jobs.
func WithPause(d time.Duration) Option {
	return func(w *InMemoryWorker) {
		if d >= 0 {
			w.pause = d
		}
	}
}

// WithClock replaces the clock used for pauses.
func WithClock(c quartz.Clock) Option {
	return func(w *InMemoryWorker) {
		if c != nil {
			w.clock = c
		}
	}
}
