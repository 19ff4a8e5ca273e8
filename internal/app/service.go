// Package service runs the harvest pipeline: leaderboard collection, the
// match walk, persistence and verification, one run at a time.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/coder/quartz"
	"github.com/google/uuid"

	"github.com/okian/harvest/internal/adapters/repository"
	"github.com/okian/harvest/internal/domain/governor"
	"github.com/okian/harvest/internal/domain/model"
	"github.com/okian/harvest/internal/domain/types"
	"github.com/okian/harvest/pkg/logger"
	"github.com/okian/harvest/pkg/metrics"
)

// Sentinel kinds for run errors.
var (
	ErrRunInProgress = errors.New("pipeline run already in progress")
	ErrStageFailed   = errors.New("pipeline stage failed")
)

// Default run configuration constants.
const (
	defaultLeaderboardSize     = 50
	defaultMatchesPerPlayer    = 5
	defaultMinLeaderboardCount = 250
	defaultWorkerCount         = 4
)

// StatsSource exposes live pacing counters; *governor.Governor satisfies it.
type StatsSource interface {
	Stats() governor.Stats
}

// Service sequences pipeline runs. Only one run executes at a time.
type Service struct {
	running sync.Mutex

	mu   sync.RWMutex
	last *types.Report

	source   Source
	sink     repository.Sink
	governor StatsSource
	monitor  Monitor

	leaderboardSize     int
	matchesPerPlayer    int
	minLeaderboardCount int
	workerCount         int
	playerDelay         time.Duration

	clock  quartz.Clock
	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLeaderboardSize bounds how many top players are walked.
func WithLeaderboardSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.leaderboardSize = n
		}
	}
}

// WithMatchesPerPlayer sets the per-player match-id target.
func WithMatchesPerPlayer(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.matchesPerPlayer = n
		}
	}
}

// WithMinLeaderboardCount sets the size below which a run warns.
func WithMinLeaderboardCount(n int) Option {
	return func(s *Service) {
		if n >= 0 {
			s.minLeaderboardCount = n
		}
	}
}

// WithWorkerCount sets the number of walk workers.
func WithWorkerCount(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.workerCount = n
		}
	}
}

// WithPlayerDelay sets each worker's pause between players.
func WithPlayerDelay(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.playerDelay = d
		}
	}
}

// WithGovernor attaches live pacing stats to reports.
func WithGovernor(g StatsSource) Option {
	return func(s *Service) {
		s.governor = g
	}
}

// WithMonitor sets the run lifecycle observer.
func WithMonitor(m Monitor) Option {
	return func(s *Service) {
		if m != nil {
			s.monitor = m
		}
	}
}

// WithClock replaces the clock used for timestamps and pauses.
func WithClock(c quartz.Clock) Option {
	return func(s *Service) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a Service reading from source and writing to sink.
func New(source Source, sink repository.Sink, opts ...Option) *Service {
	s := &Service{
		source:              source,
		sink:                sink,
		monitor:             nopMonitor{},
		leaderboardSize:     defaultLeaderboardSize,
		matchesPerPlayer:    defaultMatchesPerPlayer,
		minLeaderboardCount: defaultMinLeaderboardCount,
		workerCount:         defaultWorkerCount,
		clock:               quartz.NewReal(),
		logger:              logger.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run executes one full pipeline pass. The report is returned in every case;
// the error is ErrRunInProgress or wraps ErrStageFailed when the run aborted.
func (s *Service) Run(ctx context.Context) (types.Report, error) {
	if !s.running.TryLock() {
		return types.Report{}, ErrRunInProgress
	}
	defer s.running.Unlock()
	metrics.SetRunInProgress(true)
	defer metrics.SetRunInProgress(false)

	r := &run{
		svc: s,
		report: types.Report{
			RunID:     uuid.NewString(),
			State:     types.StateInit,
			StartedAt: s.clock.Now().UTC(),
		},
	}
	r.log = s.logger.With(logger.String("run_id", r.report.RunID))
	if g, ok := s.GovernorStats(); ok {
		r.pacing = g
	}

	r.log.Info(ctx, "pipeline started",
		logger.Int("leaderboard_size", s.leaderboardSize),
		logger.Int("matches_per_player", s.matchesPerPlayer))
	s.monitor.RunStarted(ctx, r.report.RunID)

	err := r.execute(ctx)
	report := r.finish(ctx)

	s.mu.Lock()
	s.last = &report
	s.mu.Unlock()

	s.monitor.RunFinished(ctx, report)
	return report, err
}

// LastReport returns the report of the most recent finished run.
func (s *Service) LastReport() (types.Report, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last == nil {
		return types.Report{}, false
	}
	return *s.last, true
}

// GovernorStats returns live pacing counters when a governor is attached.
func (s *Service) GovernorStats() (governor.Stats, bool) {
	if s.governor == nil {
		return governor.Stats{}, false
	}
	return s.governor.Stats(), true
}

// Running reports whether a run is executing.
func (s *Service) Running() bool {
	if s.running.TryLock() {
		s.running.Unlock()
		return false
	}
	return true
}

// run carries the state of one pipeline pass between stages.
type run struct {
	svc    *Service
	log    logger.Logger
	report types.Report
	// pacing is the governor snapshot taken when the run started.
	pacing governor.Stats

	leaderboard  []model.LeaderboardEntry
	matches      []model.MatchSummary
	participants []model.ParticipantRecord
}

type stage struct {
	state types.State
	fn    func(context.Context) error
}

func (r *run) execute(ctx context.Context) error {
	stages := []stage{
		{types.StateBootstrapStorage, r.bootstrap},
		{types.StateCollectLeaderboard, r.collectLeaderboard},
		{types.StatePersistLeaderboard, r.persistLeaderboard},
		{types.StateWalkMatches, r.walkMatches},
		{types.StatePersistMatches, r.persistMatches},
		{types.StateVerify, r.verify},
	}

	for _, st := range stages {
		r.transition(st.state)
		start := r.svc.clock.Now()

		err := ctx.Err()
		if err == nil {
			err = st.fn(ctx)
		}
		metrics.RecordStageDuration(string(st.state), r.svc.clock.Since(start))
		if err != nil {
			return r.abort(ctx, st.state, err)
		}
	}
	r.transition(types.StateDone)
	return nil
}

func (r *run) transition(to types.State) {
	if !types.CanTransition(r.report.State, to) {
		panic(fmt.Sprintf("illegal run transition %s -> %s", r.report.State, to))
	}
	r.report.State = to
}

func (r *run) abort(ctx context.Context, at types.State, cause error) error {
	r.transition(types.StateAborted)
	r.report.FailedStage = at
	r.report.Error = cause.Error()
	metrics.RecordErrorByComponent("pipeline", string(at))
	r.log.Error(ctx, "pipeline stage failed",
		logger.String("stage", string(at)),
		logger.Error(cause))
	return fmt.Errorf("%w: %s: %w", ErrStageFailed, at, cause)
}

func (r *run) finish(ctx context.Context) types.Report {
	rep := &r.report
	rep.FinishedAt = r.svc.clock.Now().UTC()
	rep.Duration = rep.FinishedAt.Sub(rep.StartedAt)
	rep.Complete = rep.State == types.StateDone && rep.Counts.Skipped() == 0
	if g, ok := r.svc.GovernorStats(); ok {
		rep.Governor = g.Since(r.pacing)
	}
	metrics.RecordRun(string(rep.State), rep.Duration, rep.FinishedAt)

	fields := []logger.Field{
		logger.String("state", string(rep.State)),
		logger.Bool("complete", rep.Complete),
		logger.Duration("duration", rep.Duration),
		logger.Int("leaderboard_entries", rep.Counts.LeaderboardEntries),
		logger.Int("matches_fetched", rep.Counts.MatchesFetched),
		logger.Int("skipped", rep.Counts.Skipped()),
	}
	if rep.Succeeded() {
		r.log.Info(ctx, "pipeline finished", fields...)
	} else {
		r.log.Error(ctx, "pipeline aborted", append(fields, logger.String("failed_stage", string(rep.FailedStage)))...)
	}
	return *rep
}

func (r *run) bootstrap(ctx context.Context) error {
	b, ok := r.svc.sink.(repository.Bootstrapper)
	if !ok {
		return nil
	}
	return b.Bootstrap(ctx)
}

func (r *run) collectLeaderboard(ctx context.Context) error {
	entries, err := r.svc.source.FetchLeaderboard(ctx)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return errors.New("leaderboard is empty")
	}
	if len(entries) > r.svc.leaderboardSize {
		entries = entries[:r.svc.leaderboardSize]
	}
	now := r.svc.clock.Now().UTC()
	for i := range entries {
		entries[i].CollectedAt = now
	}
	r.leaderboard = entries
	r.report.Counts.LeaderboardEntries = len(entries)
	r.log.Info(ctx, "leaderboard collected", logger.Int("entries", len(entries)))
	return nil
}

func (r *run) persistLeaderboard(ctx context.Context) error {
	n, err := r.svc.sink.UpsertLeaderboard(ctx, r.leaderboard)
	r.report.Counts.LeaderboardRows = n
	return err
}

func (r *run) walkMatches(ctx context.Context) error {
	w := &Walker{
		source:           r.svc.source,
		matchesPerPlayer: r.svc.matchesPerPlayer,
		workers:          r.svc.workerCount,
		playerDelay:      r.svc.playerDelay,
		clock:            r.svc.clock,
		logger:           r.svc.logger.Named("walker"),
	}
	res, err := w.Walk(ctx, r.leaderboard)

	c := &r.report.Counts
	c.PlayersWalked = res.Counts.PlayersWalked
	c.PlayersFailed = res.Counts.PlayersFailed
	c.MatchIDsListed = res.Counts.MatchIDsListed
	c.DuplicateMatches = res.Counts.DuplicateMatches
	c.MatchesFetched = res.Counts.MatchesFetched
	c.MatchesNotFound = res.Counts.MatchesNotFound
	c.MatchesFailed = res.Counts.MatchesFailed
	c.ParticipantsExtracted = res.Counts.ParticipantsExtracted
	c.ParticipantsDropped = res.Counts.ParticipantsDropped

	if err != nil {
		return err
	}
	r.matches = res.Matches
	r.participants = res.Participants
	r.log.Info(ctx, "match walk finished",
		logger.Int("matches", len(res.Matches)),
		logger.Int("participants", len(res.Participants)),
		logger.Int("duplicates", res.Counts.DuplicateMatches),
		logger.Int("skipped", res.Counts.Skipped()))
	return nil
}

// persistMatches writes summaries before participants so every participant
// row references a stored match.
func (r *run) persistMatches(ctx context.Context) error {
	n, err := r.svc.sink.UpsertMatches(ctx, r.matches)
	r.report.Counts.MatchRows = n
	if err != nil {
		return err
	}
	n, err = r.svc.sink.UpsertParticipants(ctx, r.participants)
	r.report.Counts.ParticipantRows = n
	return err
}

func (r *run) verify(ctx context.Context) error {
	if n, floor := len(r.leaderboard), r.svc.minLeaderboardCount; n < floor {
		msg := fmt.Sprintf("leaderboard has %d entries, expected at least %d", n, floor)
		r.report.Warnings = append(r.report.Warnings, msg)
		r.log.Warn(ctx, "leaderboard below minimum", logger.Int("entries", n), logger.Int("minimum", floor))
	}

	v, ok := r.svc.sink.(repository.Verifier)
	if !ok {
		return nil
	}

	playerKeys := make([]string, len(r.leaderboard))
	for i, e := range r.leaderboard {
		playerKeys[i] = e.PUUID
	}
	matchKeys := make([]string, len(r.matches))
	for i, m := range r.matches {
		matchKeys[i] = m.MatchID
	}

	checks := []struct {
		entity repository.Entity
		keys   []string
		want   int
	}{
		{repository.EntityLeaderboard, playerKeys, len(r.leaderboard)},
		{repository.EntityMatches, matchKeys, len(r.matches)},
		{repository.EntityParticipants, matchKeys, len(r.participants)},
	}
	for _, c := range checks {
		if c.want == 0 {
			continue
		}
		got, err := v.CountByKeys(ctx, c.entity, c.keys)
		if err != nil {
			return err
		}
		if got < int64(c.want) {
			return fmt.Errorf("%s: stored %d of %d rows", c.entity, got, c.want)
		}
	}
	return nil
}
