package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/okian/harvest/internal/domain/model"
	"github.com/okian/harvest/pkg/logger"
	"github.com/okian/harvest/pkg/metrics"
)

const (
	defaultMaxConns  = 8
	defaultChunkSize = 500
)

// PostgresSink is a Sink backed by a pgx connection pool.
type PostgresSink struct {
	pool      *pgxpool.Pool
	maxConns  int32
	chunkSize int
	logger    logger.Logger
}

var (
	_ Sink         = (*PostgresSink)(nil)
	_ Bootstrapper = (*PostgresSink)(nil)
	_ Verifier     = (*PostgresSink)(nil)
)

// NewPostgresSink opens a pool for dsn and checks connectivity.
func NewPostgresSink(ctx context.Context, dsn string, opts ...Option) (*PostgresSink, error) {
	s := &PostgresSink{
		maxConns:  defaultMaxConns,
		chunkSize: defaultChunkSize,
		logger:    logger.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: parse dsn: %w", ErrPersistence, err)
	}
	cfg.MaxConns = s.maxConns

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: open pool: %w", ErrPersistence, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: ping: %w", ErrPersistence, err)
	}
	s.pool = pool
	return s, nil
}

// Bootstrap creates tables and indexes that do not exist yet.
func (s *PostgresSink) Bootstrap(ctx context.Context) error {
	err := s.runInTx(ctx, func(tx pgx.Tx) error {
		for _, stmt := range bootstrapDDL {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return s.wrap(ctx, "bootstrap", err)
	}
	s.logger.Info(ctx, "storage bootstrapped", logger.Int("statements", len(bootstrapDDL)))
	return nil
}

// UpsertLeaderboard implements Sink.
func (s *PostgresSink) UpsertLeaderboard(ctx context.Context, batch []model.LeaderboardEntry) (int64, error) {
	if len(batch) == 0 {
		return 0, nil
	}
	if err := validateBatch[model.LeaderboardEntry, string](batch); err != nil {
		return 0, err
	}
	return upsert(ctx, s, EntityLeaderboard, leaderboardTable, batch, leaderboardArgs)
}

// UpsertMatches implements Sink.
func (s *PostgresSink) UpsertMatches(ctx context.Context, batch []model.MatchSummary) (int64, error) {
	if len(batch) == 0 {
		return 0, nil
	}
	if err := validateBatch[model.MatchSummary, string](batch); err != nil {
		return 0, err
	}
	return upsert(ctx, s, EntityMatches, matchesTable, batch, matchArgs)
}

// UpsertParticipants implements Sink.
func (s *PostgresSink) UpsertParticipants(ctx context.Context, batch []model.ParticipantRecord) (int64, error) {
	if len(batch) == 0 {
		return 0, nil
	}
	if err := validateBatch[model.ParticipantRecord, model.ParticipantKey](batch); err != nil {
		return 0, err
	}
	return upsert(ctx, s, EntityParticipants, participantsTable, batch, participantArgs)
}

// CountByKeys implements Verifier.
func (s *PostgresSink) CountByKeys(ctx context.Context, entity Entity, keys []string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	q, ok := countSQL[entity]
	if !ok {
		return 0, fmt.Errorf("%w: unknown entity %q", ErrPersistence, entity)
	}
	var n int64
	if err := s.pool.QueryRow(ctx, q, keys).Scan(&n); err != nil {
		return 0, s.wrap(ctx, "count "+string(entity), err)
	}
	return n, nil
}

// Close releases the pool.
func (s *PostgresSink) Close() error {
	s.pool.Close()
	return nil
}

func upsert[T any](ctx context.Context, s *PostgresSink, entity Entity, t table, batch []T, args func(T) []any) (int64, error) {
	start := time.Now()
	sql := t.upsertSQL()

	var total int64
	err := s.runInTx(ctx, func(tx pgx.Tx) error {
		for _, c := range chunkBounds(len(batch), s.chunkSize) {
			b := &pgx.Batch{}
			for _, r := range batch[c[0]:c[1]] {
				b.Queue(sql, args(r)...)
			}
			br := tx.SendBatch(ctx, b)
			for range c[1] - c[0] {
				tag, err := br.Exec()
				if err != nil {
					_ = br.Close()
					return err
				}
				total += tag.RowsAffected()
			}
			if err := br.Close(); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		total = 0
		err = s.wrap(ctx, "upsert "+string(entity), err)
	}

	metrics.RecordSinkUpsert(string(entity), total, time.Since(start), err)
	if err == nil {
		s.logger.Debug(ctx, "upserted",
			logger.String("entity", string(entity)),
			logger.Int64("rows", total),
			logger.Duration("took", time.Since(start)))
	}
	return total, err
}

func (s *PostgresSink) runInTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *PostgresSink) wrap(ctx context.Context, op string, err error) error {
	fields := []logger.Field{logger.String("op", op), logger.Error(err)}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		fields = append(fields, logger.String("sqlstate", pgErr.Code), logger.String("constraint", pgErr.ConstraintName))
	}
	s.logger.Error(ctx, "storage operation failed", fields...)
	return fmt.Errorf("%w: %s: %w", ErrPersistence, op, err)
}

// chunkBounds splits n items into [start, end) ranges of at most size.
func chunkBounds(n, size int) [][2]int {
	if size <= 0 {
		size = n
	}
	var out [][2]int
	for i := 0; i < n; i += size {
		out = append(out, [2]int{i, min(i+size, n)})
	}
	return out
}

func leaderboardArgs(e model.LeaderboardEntry) []any {
	return []any{
		e.PUUID, e.LeaguePoints, e.Wins, e.Losses,
		e.Veteran, e.HotStreak, e.CollectedAt,
	}
}

func matchArgs(m model.MatchSummary) []any {
	return []any{
		m.MatchID, m.DataVersion, m.GameCreation, m.GameDuration,
		m.GameMode, m.GameType, m.GameVersion, m.QueueID, m.MapID,
		m.PlatformID, m.GameEndTimestamp, m.ParticipantsCount,
		jsonArg(m.Teams, "[]"), m.CollectedAt,
	}
}

func participantArgs(p model.ParticipantRecord) []any {
	return []any{
		p.MatchID, p.PUUID, p.ParticipantID, p.SummonerName,
		p.RiotIDGameName, p.RiotIDTagline, p.SummonerLevel,
		p.ChampionID, p.ChampionName, p.ChampionLevel, p.Win, p.TeamID,
		p.TeamPosition, p.IndividualPosition, p.Kills, p.Deaths, p.Assists,
		p.TotalMinionsKilled, p.NeutralMinionsKilled, p.GoldEarned,
		p.TotalDamageDealtToChampions, p.VisionScore,
		p.Items[0], p.Items[1], p.Items[2], p.Items[3], p.Items[4], p.Items[5], p.Items[6],
		p.Summoner1ID, p.Summoner2ID, p.Placement, p.SubteamPlacement,
		jsonArg(p.DetailedStats, "{}"), p.GameCreation, p.CollectedAt,
	}
}

// jsonArg passes a JSON blob as raw bytes, substituting empty for missing.
func jsonArg(raw []byte, empty string) []byte {
	if len(raw) == 0 {
		return []byte(empty)
	}
	return raw
}
