package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/coder/quartz"

	"github.com/okian/harvest/internal/adapters/mq/queue"
	"github.com/okian/harvest/internal/adapters/mq/worker"
	"github.com/okian/harvest/internal/adapters/riot"
	"github.com/okian/harvest/internal/domain/dedupe"
	"github.com/okian/harvest/internal/domain/extract"
	"github.com/okian/harvest/internal/domain/model"
	"github.com/okian/harvest/internal/domain/types"
	"github.com/okian/harvest/pkg/logger"
	"github.com/okian/harvest/pkg/metrics"
)

// Source is the upstream API the pipeline reads from.
type Source interface {
	FetchLeaderboard(ctx context.Context) ([]model.LeaderboardEntry, error)
	ListMatchIDs(ctx context.Context, puuid string, count int) ([]string, error)
	FetchMatchDetail(ctx context.Context, matchID string) (*extract.Payload, error)
}

// WalkResult is everything one walk collected.
type WalkResult struct {
	Matches      []model.MatchSummary
	Participants []model.ParticipantRecord
	// Seen holds every match id claimed during the walk.
	Seen   dedupe.Deduper
	Counts types.Counts
}

// Walker fans out from leaderboard players to their recent matches.
type Walker struct {
	source           Source
	matchesPerPlayer int
	workers          int
	playerDelay      time.Duration
	clock            quartz.Clock
	logger           logger.Logger
}

// Walk lists, deduplicates, fetches and extracts the recent matches of every
// player. On cancellation it returns what was collected so far together with
// the context error.
func (w *Walker) Walk(ctx context.Context, players []model.LeaderboardEntry) (WalkResult, error) {
	q := queue.NewInMemoryQueue(queue.WithCapacity(len(players) + 1))
	for i, p := range players {
		if err := q.Enqueue(ctx, queue.Job{Rank: i + 1, PUUID: p.PUUID}); err != nil {
			return WalkResult{Seen: dedupe.NewSet()}, fmt.Errorf("enqueue player %s: %w", p.PUUID, err)
		}
	}
	_ = q.Close()

	wk := &walk{
		source: w.source,
		target: w.matchesPerPlayer,
		clock:  w.clock,
		logger: w.logger,
		seen:   dedupe.NewSet(),
	}
	pool := worker.NewPool(w.workers, q, wk,
		worker.WithPause(w.playerDelay),
		worker.WithClock(w.clock),
		worker.WithLogger(w.logger))

	err := pool.Run(ctx)
	return wk.result(), err
}

// walk is the per-run state shared by the pool's workers.
type walk struct {
	source Source
	target int
	clock  quartz.Clock
	logger logger.Logger
	seen   *dedupe.Set

	mu           sync.Mutex
	matches      []model.MatchSummary
	participants []model.ParticipantRecord
	counts       types.Counts
}

// Process implements worker.Processor for one player.
func (wk *walk) Process(ctx context.Context, job queue.Job) error {
	ids, err := wk.source.ListMatchIDs(ctx, job.PUUID, wk.target)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		wk.count(func(c *types.Counts) { c.PlayersFailed++ })
		metrics.RecordPlayerProcessed("failed")
		return fmt.Errorf("list matches for %s: %w", job.PUUID, err)
	}
	if len(ids) > wk.target {
		ids = ids[:wk.target]
	}
	wk.count(func(c *types.Counts) { c.MatchIDsListed += len(ids) })

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}
		if wk.seen.SeenAndRecord(ctx, id) {
			wk.count(func(c *types.Counts) { c.DuplicateMatches++ })
			metrics.RecordMatchDuplicate()
			continue
		}
		if err := wk.fetch(ctx, id); err != nil {
			return err
		}
	}

	wk.count(func(c *types.Counts) { c.PlayersWalked++ })
	metrics.RecordPlayerProcessed("ok")
	return nil
}

// fetch retrieves and extracts one claimed match. Only context errors are
// returned; every other failure skips the match.
func (wk *walk) fetch(ctx context.Context, id string) error {
	payload, err := wk.source.FetchMatchDetail(ctx, id)
	switch {
	case err == nil:
	case ctx.Err() != nil:
		return ctx.Err()
	case errors.Is(err, riot.ErrNotFound):
		wk.count(func(c *types.Counts) { c.MatchesNotFound++ })
		metrics.RecordMatchSkipped("not_found")
		return nil
	default:
		wk.count(func(c *types.Counts) { c.MatchesFailed++ })
		metrics.RecordMatchSkipped("fetch_failed")
		wk.logger.Warn(ctx, "match skipped", logger.String("match_id", id), logger.Error(err))
		return nil
	}

	res, err := extract.Match(id, payload, wk.clock.Now().UTC())
	if err != nil {
		wk.count(func(c *types.Counts) { c.MatchesFailed++ })
		metrics.RecordMatchSkipped("extract_failed")
		wk.logger.Warn(ctx, "match not extracted", logger.String("match_id", id), logger.Error(err))
		return nil
	}
	// The payload may name the match differently from the listing.
	if res.Match.MatchID != id && wk.seen.SeenAndRecord(ctx, res.Match.MatchID) {
		wk.count(func(c *types.Counts) { c.DuplicateMatches++ })
		metrics.RecordMatchDuplicate()
		return nil
	}
	if res.Dropped > 0 {
		wk.logger.Warn(ctx, "participants dropped",
			logger.String("match_id", res.Match.MatchID),
			logger.Int("dropped", res.Dropped))
	}

	wk.mu.Lock()
	wk.matches = append(wk.matches, res.Match)
	wk.participants = append(wk.participants, res.Participants...)
	wk.counts.MatchesFetched++
	wk.counts.ParticipantsExtracted += len(res.Participants)
	wk.counts.ParticipantsDropped += res.Dropped
	wk.mu.Unlock()
	metrics.RecordMatchFetched()
	return nil
}

func (wk *walk) count(fn func(*types.Counts)) {
	wk.mu.Lock()
	fn(&wk.counts)
	wk.mu.Unlock()
}

func (wk *walk) result() WalkResult {
	wk.mu.Lock()
	defer wk.mu.Unlock()

	matches := append([]model.MatchSummary(nil), wk.matches...)
	sort.Slice(matches, func(i, j int) bool { return matches[i].MatchID < matches[j].MatchID })

	participants := append([]model.ParticipantRecord(nil), wk.participants...)
	sort.Slice(participants, func(i, j int) bool {
		if participants[i].MatchID != participants[j].MatchID {
			return participants[i].MatchID < participants[j].MatchID
		}
		return participants[i].ParticipantID < participants[j].ParticipantID
	})

	return WalkResult{
		Matches:      matches,
		Participants: participants,
		Seen:         wk.seen,
		Counts:       wk.counts,
	}
}
