// Package fakeriot simulates the upstream ladder and match API for local
// runs and tests: a deterministic fixture behind the real routes, with
// throttling, missing matches and failures injectable.
package fakeriot

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/okian/harvest/pkg/logger"
)

// Route names reported by Hits.
const (
	RouteLeaderboard = "leaderboard"
	RouteMatchIDs    = "match_ids"
	RouteMatchDetail = "match_detail"
)

// Server serves the fixture. It is safe for concurrent use.
type Server struct {
	cfg     Config
	fix     fixture
	missing map[string]struct{}
	logger  logger.Logger

	requests  atomic.Int64
	throttled atomic.Int64

	mu       sync.Mutex
	hits     map[string]int64
	failures map[string]int
}

// New builds a Server from cfg; zero fields take defaults.
func New(cfg Config) *Server {
	cfg.setDefaults()
	s := &Server{
		cfg:      cfg,
		fix:      buildFixture(cfg),
		missing:  make(map[string]struct{}, len(cfg.Missing)),
		logger:   cfg.Logger.Named("fakeriot"),
		hits:     make(map[string]int64),
		failures: make(map[string]int),
	}
	for _, id := range cfg.Missing {
		s.missing[id] = struct{}{}
	}
	return s
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /lol/league/v4/{league}/by-queue/{queue}", s.handleLeaderboard)
	mux.HandleFunc("GET /lol/match/v5/matches/by-puuid/{puuid}/ids", s.handleMatchIDs)
	mux.HandleFunc("GET /lol/match/v5/matches/{id}", s.handleMatchDetail)
	return s.gate(mux)
}

// Players returns the ladder in served order.
func (s *Server) Players() []Player {
	return append([]Player(nil), s.fix.players...)
}

// MatchIDs returns a player's full history, most recent first.
func (s *Server) MatchIDs(puuid string) []string {
	return append([]string(nil), s.fix.history[puuid]...)
}

// UniqueMatches returns every distinct match id in the fixture.
func (s *Server) UniqueMatches() []string {
	return append([]string(nil), s.fix.unique...)
}

// Fail makes detail requests for matchID answer status until cleared with 0.
func (s *Server) Fail(matchID string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if status == 0 {
		delete(s.failures, matchID)
		return
	}
	s.failures[matchID] = status
}

// Hits returns how many requests reached route, throttled ones included.
func (s *Server) Hits(route string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[route]
}

// Requests returns the total request count.
func (s *Server) Requests() int64 { return s.requests.Load() }

// Throttled returns how many requests were answered 429.
func (s *Server) Throttled() int64 { return s.throttled.Load() }

// gate applies key checks and throttling ahead of routing.
func (s *Server) gate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := s.requests.Add(1)
		s.hit(routeOf(r.URL.Path))

		if s.cfg.APIKey != "" && r.Header.Get("X-Riot-Token") != s.cfg.APIKey {
			writeStatus(w, http.StatusForbidden, "Forbidden")
			return
		}
		if every := int64(s.cfg.ThrottleEvery); every > 0 && n%every == 0 {
			s.throttled.Add(1)
			if s.cfg.RetryAfter > 0 {
				secs := int(s.cfg.RetryAfter.Seconds())
				if secs < 1 {
					secs = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(secs))
			}
			s.logger.Debug(r.Context(), "throttling request", logger.String("path", r.URL.Path))
			writeStatus(w, http.StatusTooManyRequests, "Rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) hit(route string) {
	s.mu.Lock()
	s.hits[route]++
	s.mu.Unlock()
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	tier, ok := strings.CutSuffix(r.PathValue("league"), "leagues")
	if !ok || r.PathValue("queue") != s.cfg.Queue {
		writeStatus(w, http.StatusNotFound, "Data not found")
		return
	}

	entries := []Player{}
	switch tier {
	case "challenger":
		entries = s.fix.players
	case "grandmaster", "master":
	default:
		writeStatus(w, http.StatusNotFound, "Data not found")
		return
	}
	writeJSON(w, map[string]any{
		"tier":    strings.ToUpper(tier),
		"queue":   s.cfg.Queue,
		"name":    "Harvest's Simulated League",
		"entries": entries,
	})
}

func (s *Server) handleMatchIDs(w http.ResponseWriter, r *http.Request) {
	ids, ok := s.fix.history[r.PathValue("puuid")]
	if !ok {
		writeStatus(w, http.StatusNotFound, "Data not found")
		return
	}

	count := defaultIDsCount
	if v := r.URL.Query().Get("count"); v != "" {
		c, err := strconv.Atoi(v)
		if err != nil || c < 0 || c > maxIDsCount {
			writeStatus(w, http.StatusBadRequest, "Bad request - count out of range")
			return
		}
		count = c
	}
	if count < len(ids) {
		ids = ids[:count]
	}
	writeJSON(w, ids)
}

func (s *Server) handleMatchDetail(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	s.mu.Lock()
	status, failing := s.failures[id]
	s.mu.Unlock()
	if failing {
		writeStatus(w, status, http.StatusText(status))
		return
	}

	_, known := s.fix.order[id]
	if _, gone := s.missing[id]; gone || !known {
		writeStatus(w, http.StatusNotFound, "Data not found - match file not found")
		return
	}
	writeJSON(w, s.fix.match(s.cfg, id))
}

func routeOf(path string) string {
	switch {
	case strings.HasPrefix(path, "/lol/league/"):
		return RouteLeaderboard
	case strings.HasSuffix(path, "/ids"):
		return RouteMatchIDs
	default:
		return RouteMatchDetail
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json;charset=utf-8")
	_ = json.NewEncoder(w).Encode(v)
}

func writeStatus(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json;charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status": map[string]any{"message": msg, "status_code": code},
	})
}
