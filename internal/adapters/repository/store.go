// Package repository persists harvested entities through keyed upserts.
package repository

import (
	"context"
	"fmt"

	"github.com/okian/harvest/internal/domain/model"
)

// Entity names a persisted collection.
type Entity string

const (
	EntityLeaderboard  Entity = "leaderboard"
	EntityMatches      Entity = "matches"
	EntityParticipants Entity = "participants"
)

// Sink upserts batches keyed on natural keys. Each call is one transaction:
// rows whose key exists are fully overwritten, others inserted. An empty
// batch returns (0, nil) without touching storage.
type Sink interface {
	UpsertLeaderboard(ctx context.Context, batch []model.LeaderboardEntry) (int64, error)
	UpsertMatches(ctx context.Context, batch []model.MatchSummary) (int64, error)
	UpsertParticipants(ctx context.Context, batch []model.ParticipantRecord) (int64, error)
}

// Bootstrapper creates missing tables and indexes.
type Bootstrapper interface {
	Bootstrap(ctx context.Context) error
}

// Verifier counts stored rows for a set of keys. Participants are counted by
// match id.
type Verifier interface {
	CountByKeys(ctx context.Context, entity Entity, keys []string) (int64, error)
}

type keyed[K comparable] interface {
	Key() K
	Validate() error
}

// validateBatch rejects empty and within-batch duplicate keys.
func validateBatch[T keyed[K], K comparable](batch []T) error {
	seen := make(map[K]struct{}, len(batch))
	for i, r := range batch {
		if err := r.Validate(); err != nil {
			return fmt.Errorf("%w: row %d: %w", ErrInvalidBatch, i, err)
		}
		k := r.Key()
		if _, dup := seen[k]; dup {
			return fmt.Errorf("%w: duplicate key %v", ErrInvalidBatch, k)
		}
		seen[k] = struct{}{}
	}
	return nil
}
