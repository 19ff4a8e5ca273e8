// Package riot is the rate-governed client for the upstream ladder and match API.
package riot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/okian/harvest/internal/domain/extract"
	"github.com/okian/harvest/internal/domain/governor"
	"github.com/okian/harvest/internal/domain/model"
	"github.com/okian/harvest/pkg/logger"
	"github.com/okian/harvest/pkg/metrics"
)

// Defaults.
const (
	DefaultPlatformURL = "https://kr.api.riotgames.com"
	DefaultRegionalURL = "https://asia.api.riotgames.com"
	DefaultQueue       = "RANKED_SOLO_5x5"

	tokenHeader        = "X-Riot-Token"
	defaultMaxAttempts = 4
	defaultTimeout     = 10 * time.Second
	maxBodyBytes       = 16 << 20
)

// Call names used in logs and metrics.
const (
	callLeaderboard = "leaderboard"
	callMatchIDs    = "match_ids"
	callMatchDetail = "match_detail"
)

// Pacer gates outbound calls; *governor.Governor satisfies it.
type Pacer interface {
	Wait(ctx context.Context) (time.Duration, error)
	Record(class governor.StatusClass, latency time.Duration)
	Defer(d time.Duration)
}

// Client performs the three upstream calls, each behind the Pacer and a
// bounded retry loop.
type Client struct {
	http        *http.Client
	pacer       Pacer
	apiKey      string
	platformURL string
	regionalURL string
	queue       string
	tier        string
	maxAttempts int
	timeout     time.Duration
	logger      logger.Logger
}

// New creates a Client. The key is sent on every request.
func New(apiKey string, pacer Pacer, opts ...Option) *Client {
	c := &Client{
		http:        &http.Client{},
		pacer:       pacer,
		apiKey:      apiKey,
		platformURL: DefaultPlatformURL,
		regionalURL: DefaultRegionalURL,
		queue:       DefaultQueue,
		tier:        "challenger",
		maxAttempts: defaultMaxAttempts,
		timeout:     defaultTimeout,
		logger:      logger.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type leagueList struct {
	Entries []struct {
		PUUID        string `json:"puuid"`
		LeaguePoints int    `json:"leaguePoints"`
		Wins         int    `json:"wins"`
		Losses       int    `json:"losses"`
		Veteran      bool   `json:"veteran"`
		HotStreak    bool   `json:"hotStreak"`
	} `json:"entries"`
}

// FetchLeaderboard returns the ladder ordered by league points, highest
// first, one entry per player. CollectedAt is left for the caller to stamp.
func (c *Client) FetchLeaderboard(ctx context.Context) ([]model.LeaderboardEntry, error) {
	u := fmt.Sprintf("%s/lol/league/v4/%sleagues/by-queue/%s", c.platformURL, c.tier, url.PathEscape(c.queue))

	body, err := c.do(ctx, callLeaderboard, u)
	if err != nil {
		c.logger.Warn(ctx, "leaderboard unavailable", logger.String("queue", c.queue), logger.Error(err))
		return nil, err
	}

	var list leagueList
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, fmt.Errorf("%w: decode leaderboard: %w", ErrUnavailable, err)
	}

	byPlayer := make(map[string]int, len(list.Entries))
	out := make([]model.LeaderboardEntry, 0, len(list.Entries))
	for _, e := range list.Entries {
		if e.PUUID == "" {
			continue
		}
		entry := model.LeaderboardEntry{
			PUUID:        e.PUUID,
			LeaguePoints: e.LeaguePoints,
			Wins:         e.Wins,
			Losses:       e.Losses,
			Veteran:      e.Veteran,
			HotStreak:    e.HotStreak,
		}
		if i, dup := byPlayer[e.PUUID]; dup {
			out[i] = entry
			continue
		}
		byPlayer[e.PUUID] = len(out)
		out = append(out, entry)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].LeaguePoints > out[j].LeaguePoints })
	return out, nil
}

// ListMatchIDs returns up to count recent match ids for a player, most
// recent first. A player with no history yields an empty list and nil error.
func (c *Client) ListMatchIDs(ctx context.Context, puuid string, count int) ([]string, error) {
	if count <= 0 {
		return []string{}, nil
	}
	u := fmt.Sprintf("%s/lol/match/v5/matches/by-puuid/%s/ids?count=%d", c.regionalURL, url.PathEscape(puuid), count)

	body, err := c.do(ctx, callMatchIDs, u)
	if errors.Is(err, ErrNotFound) {
		return []string{}, nil
	}
	if err != nil {
		c.logger.Warn(ctx, "match id listing failed", logger.String("puuid", puuid), logger.Error(err))
		return nil, err
	}

	var ids []string
	if err := json.Unmarshal(body, &ids); err != nil {
		return nil, fmt.Errorf("%w: decode match ids: %w", ErrUnavailable, err)
	}
	if len(ids) > count {
		ids = ids[:count]
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}

// FetchMatchDetail returns the raw match document; ErrNotFound when the
// upstream has no such match.
func (c *Client) FetchMatchDetail(ctx context.Context, matchID string) (*extract.Payload, error) {
	u := fmt.Sprintf("%s/lol/match/v5/matches/%s", c.regionalURL, url.PathEscape(matchID))

	body, err := c.do(ctx, callMatchDetail, u)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			c.logger.Debug(ctx, "match not found", logger.String("match_id", matchID))
		} else {
			c.logger.Warn(ctx, "match detail failed", logger.String("match_id", matchID), logger.Error(err))
		}
		return nil, err
	}

	var p extract.Payload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("%w: decode match %s: %w", ErrUnavailable, matchID, err)
	}
	return &p, nil
}

// do runs the bounded retry loop for one logical call.
func (c *Client) do(ctx context.Context, call, u string) ([]byte, error) {
	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if attempt > 1 {
			metrics.RecordAPIRetry(call)
		}
		if _, err := c.pacer.Wait(ctx); err != nil {
			return nil, err
		}

		start := time.Now()
		resp, body, err := c.get(ctx, u)
		latency := time.Since(start)

		if err != nil {
			c.pacer.Record(governor.ServerError, latency)
			metrics.RecordAPICall(call, "unavailable", latency)
			lastErr = fmt.Errorf("%w: %w", ErrUnavailable, err)
			continue
		}

		class := governor.Classify(resp.StatusCode)
		c.pacer.Record(class, latency)

		switch {
		case class == governor.Success:
			metrics.RecordAPICall(call, "success", latency)
			return body, nil
		case class == governor.Throttled:
			metrics.RecordAPICall(call, "throttled", latency)
			c.pacer.Defer(retryAfter(resp.Header))
			lastErr = ErrThrottled
			c.logger.Debug(ctx, "throttled; backing off",
				logger.String("call", call),
				logger.Int("attempt", attempt))
		case class == governor.ServerError:
			metrics.RecordAPICall(call, "server_error", latency)
			lastErr = fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
		case resp.StatusCode == http.StatusNotFound:
			metrics.RecordAPICall(call, "not_found", latency)
			return nil, ErrNotFound
		default:
			metrics.RecordAPICall(call, "rejected", latency)
			return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
		}
	}
	return nil, fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, c.maxAttempts, lastErr)
}

// get issues one request. The request is detached from ctx cancellation so a
// call in flight always completes or times out on its own.
func (c *Client) get(ctx context.Context, u string) (*http.Response, []byte, error) {
	reqCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, u, nil)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set(tokenHeader, c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, nil, err
	}
	return resp, body, nil
}

func retryAfter(h http.Header) time.Duration {
	v := h.Get("Retry-After")
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
