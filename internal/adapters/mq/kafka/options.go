package kafka

import (
	"time"

	"github.com/okian/harvest/pkg/logger"
)

// Option applies a configuration option to the Publisher.
type Option func(*Publisher)

// WithLogger sets a custom logger for the publisher.
func WithLogger(l logger.Logger) Option {
	return func(p *Publisher) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithTimeout bounds each publish.
func WithTimeout(d time.Duration) Option {
	return func(p *Publisher) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithWriter replaces the underlying writer.
func WithWriter(w MessageWriter) Option {
	return func(p *Publisher) {
		if w != nil {
			p.writer = w
		}
	}
}
