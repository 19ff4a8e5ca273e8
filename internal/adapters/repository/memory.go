package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/okian/harvest/internal/domain/model"
	"github.com/okian/harvest/pkg/metrics"
)

// MemorySink is a map-backed Sink. A batch is validated in full before any
// row is applied, so a rejected call leaves the maps untouched.
type MemorySink struct {
	mu           sync.RWMutex
	leaderboard  map[string]model.LeaderboardEntry
	matches      map[string]model.MatchSummary
	participants map[model.ParticipantKey]model.ParticipantRecord

	calls    map[Entity]int
	failures map[Entity]error
}

var (
	_ Sink         = (*MemorySink)(nil)
	_ Bootstrapper = (*MemorySink)(nil)
	_ Verifier     = (*MemorySink)(nil)
)

// NewMemorySink creates an empty sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{
		leaderboard:  make(map[string]model.LeaderboardEntry),
		matches:      make(map[string]model.MatchSummary),
		participants: make(map[model.ParticipantKey]model.ParticipantRecord),
		calls:        make(map[Entity]int),
		failures:     make(map[Entity]error),
	}
}

// Bootstrap implements Bootstrapper.
func (s *MemorySink) Bootstrap(context.Context) error { return nil }

// SetFailure makes every later upsert of entity fail with err wrapped in
// ErrPersistence. A nil err clears it.
func (s *MemorySink) SetFailure(entity Entity, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, entity)
		return
	}
	s.failures[entity] = err
}

// UpsertLeaderboard implements Sink.
func (s *MemorySink) UpsertLeaderboard(ctx context.Context, batch []model.LeaderboardEntry) (int64, error) {
	if len(batch) == 0 {
		return 0, nil
	}
	if err := validateBatch[model.LeaderboardEntry, string](batch); err != nil {
		return 0, err
	}
	return s.apply(ctx, EntityLeaderboard, func() error {
		for _, e := range batch {
			s.leaderboard[e.PUUID] = e
		}
		return nil
	}, len(batch))
}

// UpsertMatches implements Sink.
func (s *MemorySink) UpsertMatches(ctx context.Context, batch []model.MatchSummary) (int64, error) {
	if len(batch) == 0 {
		return 0, nil
	}
	if err := validateBatch[model.MatchSummary, string](batch); err != nil {
		return 0, err
	}
	return s.apply(ctx, EntityMatches, func() error {
		for _, m := range batch {
			s.matches[m.MatchID] = m
		}
		return nil
	}, len(batch))
}

// UpsertParticipants implements Sink. Every record must reference a stored
// match, as the foreign key does in Postgres.
func (s *MemorySink) UpsertParticipants(ctx context.Context, batch []model.ParticipantRecord) (int64, error) {
	if len(batch) == 0 {
		return 0, nil
	}
	if err := validateBatch[model.ParticipantRecord, model.ParticipantKey](batch); err != nil {
		return 0, err
	}
	return s.apply(ctx, EntityParticipants, func() error {
		for _, p := range batch {
			if _, ok := s.matches[p.MatchID]; !ok {
				return fmt.Errorf("participant %s references unknown match %s", p.PUUID, p.MatchID)
			}
		}
		for _, p := range batch {
			s.participants[p.Key()] = p
		}
		return nil
	}, len(batch))
}

func (s *MemorySink) apply(ctx context.Context, entity Entity, write func() error, n int) (int64, error) {
	start := time.Now()
	s.mu.Lock()
	s.calls[entity]++
	err := ctx.Err()
	if err == nil {
		err = s.failures[entity]
	}
	if err == nil {
		err = write()
	}
	s.mu.Unlock()

	if err != nil {
		err = fmt.Errorf("%w: upsert %s: %w", ErrPersistence, entity, err)
		metrics.RecordSinkUpsert(string(entity), 0, time.Since(start), err)
		return 0, err
	}
	metrics.RecordSinkUpsert(string(entity), int64(n), time.Since(start), nil)
	return int64(n), nil
}

// CountByKeys implements Verifier.
func (s *MemorySink) CountByKeys(_ context.Context, entity Entity, keys []string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	switch entity {
	case EntityLeaderboard:
		for _, k := range keys {
			if _, ok := s.leaderboard[k]; ok {
				n++
			}
		}
	case EntityMatches:
		for _, k := range keys {
			if _, ok := s.matches[k]; ok {
				n++
			}
		}
	case EntityParticipants:
		want := make(map[string]struct{}, len(keys))
		for _, k := range keys {
			want[k] = struct{}{}
		}
		for key := range s.participants {
			if _, ok := want[key.MatchID]; ok {
				n++
			}
		}
	default:
		return 0, fmt.Errorf("%w: unknown entity %q", ErrPersistence, entity)
	}
	return n, nil
}

// Calls returns how many upserts of entity reached storage.
func (s *MemorySink) Calls(entity Entity) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.calls[entity]
}

// Leaderboard returns stored entries ordered by league points, highest first.
func (s *MemorySink) Leaderboard() []model.LeaderboardEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.LeaderboardEntry, 0, len(s.leaderboard))
	for _, e := range s.leaderboard {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LeaguePoints != out[j].LeaguePoints {
			return out[i].LeaguePoints > out[j].LeaguePoints
		}
		return out[i].PUUID < out[j].PUUID
	})
	return out
}

// Match returns the stored summary for id.
func (s *MemorySink) Match(id string) (model.MatchSummary, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.matches[id]
	return m, ok
}

// MatchIDs returns every stored match id in sorted order.
func (s *MemorySink) MatchIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.matches))
	for id := range s.matches {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Participants returns the stored records of one match ordered by
// participant id.
func (s *MemorySink) Participants(matchID string) []model.ParticipantRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.ParticipantRecord
	for k, p := range s.participants {
		if k.MatchID == matchID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ParticipantID < out[j].ParticipantID })
	return out
}

// Len returns the number of stored rows of entity.
func (s *MemorySink) Len(entity Entity) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	switch entity {
	case EntityLeaderboard:
		return len(s.leaderboard)
	case EntityMatches:
		return len(s.matches)
	case EntityParticipants:
		return len(s.participants)
	}
	return 0
}

// Close implements io.Closer.
func (s *MemorySink) Close() error { return nil }
