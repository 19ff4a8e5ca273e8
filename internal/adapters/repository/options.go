package repository

import "github.com/okian/harvest/pkg/logger"

// Option applies a configuration option to the PostgresSink.
type Option func(*PostgresSink)

// WithMaxConns caps the connection pool.
func WithMaxConns(n int) Option {
	return func(s *PostgresSink) {
		if n > 0 {
			s.maxConns = int32(n)
		}
	}
}

// WithChunkSize sets how many statements go into one pgx.Batch round trip.
func WithChunkSize(n int) Option {
	return func(s *PostgresSink) {
		if n > 0 {
			s.chunkSize = n
		}
	}
}

// WithLogger sets a custom logger for the sink.
func WithLogger(l logger.Logger) Option {
	return func(s *PostgresSink) {
		if l != nil {
			s.logger = l
		}
	}
}
