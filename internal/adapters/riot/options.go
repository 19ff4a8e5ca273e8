package riot

import (
	"net/http"
	"strings"
	"time"

	"github.com/okian/harvest/pkg/logger"
)

// Option applies a configuration option to the Client.
type Option func(*Client)

// WithPlatformURL sets the base URL for league endpoints.
func WithPlatformURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.platformURL = strings.TrimRight(u, "/")
		}
	}
}

// WithRegionalURL sets the base URL for match endpoints.
func WithRegionalURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.regionalURL = strings.TrimRight(u, "/")
		}
	}
}

// WithQueue sets the ranked queue identifier.
func WithQueue(q string) Option {
	return func(c *Client) {
		if q != "" {
			c.queue = q
		}
	}
}

// WithTier sets the apex league tier: challenger, grandmaster or master.
func WithTier(tier string) Option {
	return func(c *Client) {
		if tier != "" {
			c.tier = strings.ToLower(tier)
		}
	}
}

// WithMaxAttempts caps attempts per call, retries included.
func WithMaxAttempts(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

// WithTimeout bounds each HTTP request.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithHTTPClient swaps the transport client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

// WithLogger sets a custom logger for the client.
func WithLogger(l logger.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}
