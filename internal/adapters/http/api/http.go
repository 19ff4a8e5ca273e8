// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/okian/harvest/internal/domain/governor"
	"github.com/okian/harvest/internal/domain/types"
	"github.com/okian/harvest/pkg/logger"
	"github.com/okian/harvest/pkg/metrics"
)

// Runner is the pipeline as seen by the HTTP layer; *service.Service
// satisfies it.
type Runner interface {
	Run(ctx context.Context) (types.Report, error)
	LastReport() (types.Report, bool)
	GovernorStats() (governor.Stats, bool)
	Running() bool
}

// Server wires HTTP routes for the trigger API.
type Server struct {
	healthHandler *HealthHandler
	statsHandler  *StatsHandler
	runHandler    *RunHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(runner Runner, opts ...Option) *Server {
	o := options{base: context.Background(), logger: logger.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	return &Server{
		healthHandler: NewHealthHandler(),
		statsHandler:  NewStatsHandler(runner),
		runHandler:    NewRunHandler(o.base, runner, o.runTimeout, o.logger.Named("api")),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("POST /run-pipeline", MetricsMiddleware(s.runHandler.HandleRun, "run_pipeline"))
	mux.Handle("GET /metrics", promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{}))
}

// Handler returns a fresh mux with every route registered.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.Register(mux)
	return mux
}

type options struct {
	base       context.Context
	runTimeout time.Duration
	logger     logger.Logger
}

// Option applies a configuration option to the Server.
type Option func(*options)

// WithRunTimeout bounds a triggered run. Zero leaves it unbounded.
func WithRunTimeout(d time.Duration) Option {
	return func(o *options) {
		if d >= 0 {
			o.runTimeout = d
		}
	}
}

// WithBaseContext ties triggered runs to ctx, typically the process
// lifetime. A run still in flight when ctx ends aborts.
func WithBaseContext(ctx context.Context) Option {
	return func(o *options) {
		if ctx != nil {
			o.base = ctx
		}
	}
}

// WithLogger sets a custom logger for the handlers.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

type errorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
