package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/coder/quartz"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/okian/harvest/internal/adapters/http/api"
	"github.com/okian/harvest/internal/adapters/mq/kafka"
	"github.com/okian/harvest/internal/adapters/repository"
	"github.com/okian/harvest/internal/adapters/riot"
	service "github.com/okian/harvest/internal/app"
	"github.com/okian/harvest/internal/config"
	"github.com/okian/harvest/internal/domain/governor"
	"github.com/okian/harvest/internal/domain/types"
	"github.com/okian/harvest/pkg/logger"
	"github.com/okian/harvest/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout               = 10 * time.Second
	idleTimeout               = 60 * time.Second
	readHeaderTimeout         = 5 * time.Second
	shutdownTimeout           = 30 * time.Second
	writeTimeoutMargin        = 30 * time.Second
	nanosecondsPerMillisecond = 1e6
)

// version is stamped at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// The custom registry carries our own system metrics.
	prometheus.Unregister(collectors.NewGoCollector())
	prometheus.Unregister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		_, _ = os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	log, err := logger.New(
		logger.WithLevel(cfg.LogLevel),
		logger.WithFormat(cfg.LogFormat),
		logger.WithService("harvest", version))
	if err != nil {
		_, _ = os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	if err := run(ctx, cfg, log); err != nil {
		log.Error(ctx, "harvest stopped", logger.Error(err))
		os.Exit(1)
	}
}

// run wires every component from cfg and serves until ctx is done.
func run(ctx context.Context, cfg *config.Config, log logger.Logger) error {
	sink, err := openSink(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeQuietly(ctx, log, "sink", sink)

	svc, closers, err := buildService(cfg, sink, log)
	if err != nil {
		return err
	}
	defer func() {
		for _, c := range closers {
			closeQuietly(ctx, log, "monitor", c)
		}
	}()

	log.Info(ctx, "harvest starting",
		logger.String("addr", cfg.Addr),
		logger.String("environment", cfg.Environment),
		logger.String("storage", cfg.StorageDriver),
		logger.Int("leaderboard_size", cfg.LeaderboardSize),
		logger.Int("matches_per_player", cfg.MatchesPerPlayer),
		logger.Duration("run_interval", cfg.RunInterval()))

	g, gctx := errgroup.WithContext(ctx)
	srv := &http.Server{
		Addr: cfg.Addr,
		Handler: api.NewServer(svc,
			api.WithBaseContext(gctx),
			api.WithRunTimeout(cfg.RunTimeout()),
			api.WithLogger(log)).Handler(),
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout(cfg.RunTimeout()),
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("%w: %w", api.ErrServe, err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info(ctx, "shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		startSystemMetricsUpdater(gctx)
		return nil
	})
	if interval := cfg.RunInterval(); interval > 0 {
		g.Go(func() error {
			schedule(gctx, quartz.NewReal(), svc, interval, cfg.RunTimeout(), log)
			return nil
		})
	}

	err = g.Wait()
	log.Info(context.Background(), "server stopped")
	return err
}

// openSink returns the configured storage, bootstrapped and ready.
func openSink(ctx context.Context, cfg *config.Config, log logger.Logger) (repository.Sink, error) {
	switch cfg.StorageDriver {
	case config.StoragePostgres:
		pg, err := repository.NewPostgresSink(ctx, cfg.PostgresDSN,
			repository.WithMaxConns(cfg.PostgresMaxConns),
			repository.WithLogger(log.Named("postgres")))
		if err != nil {
			return nil, err
		}
		if err := pg.Bootstrap(ctx); err != nil {
			_ = pg.Close()
			return nil, err
		}
		return pg, nil
	case config.StorageMemory:
		log.Warn(ctx, "memory storage selected; harvested rows are lost on exit")
		return repository.NewMemorySink(), nil
	default:
		return nil, fmt.Errorf("%w: unknown storage_driver %s", config.ErrInvalidConfig, cfg.StorageDriver)
	}
}

// buildService assembles the governor, client, monitors and orchestrator.
// The returned closers must be closed on shutdown.
func buildService(cfg *config.Config, sink repository.Sink, log logger.Logger) (*service.Service, []io.Closer, error) {
	g := governor.New(
		governor.WithInitialDelay(cfg.GovernorInitialDelay()),
		governor.WithMinDelay(cfg.GovernorMinDelay()),
		governor.WithMaxDelay(cfg.GovernorMaxDelay()))

	client := riot.New(cfg.APIKey, g,
		riot.WithPlatformURL(cfg.PlatformBaseURL),
		riot.WithRegionalURL(cfg.RegionalBaseURL),
		riot.WithQueue(cfg.Queue),
		riot.WithTier(cfg.LeagueTier),
		riot.WithMaxAttempts(cfg.MaxAttempts),
		riot.WithTimeout(cfg.RequestTimeout()),
		riot.WithLogger(log.Named("riot")))

	monitors := service.Monitors{service.NewLogMonitor(log)}
	var closers []io.Closer
	if brokers := cfg.KafkaBrokerList(); len(brokers) > 0 {
		pub, err := kafka.NewPublisher(brokers, cfg.KafkaTopic, kafka.WithLogger(log.Named("kafka")))
		if err != nil {
			return nil, nil, err
		}
		monitors = append(monitors, pub)
		closers = append(closers, pub)
	}

	svc := service.New(client, sink,
		service.WithLeaderboardSize(cfg.LeaderboardSize),
		service.WithMatchesPerPlayer(cfg.MatchesPerPlayer),
		service.WithMinLeaderboardCount(cfg.MinLeaderboardCount),
		service.WithWorkerCount(cfg.WorkerCount),
		service.WithPlayerDelay(cfg.PlayerDelay()),
		service.WithGovernor(g),
		service.WithMonitor(monitors),
		service.WithLogger(log.Named("pipeline")))
	return svc, closers, nil
}

type pipelineRunner interface {
	Run(ctx context.Context) (types.Report, error)
}

// schedule starts a run every interval until ctx is done. A tick that finds
// a run in progress is skipped.
func schedule(ctx context.Context, clock quartz.Clock, svc pipelineRunner, interval, timeout time.Duration, log logger.Logger) {
	ticker := clock.NewTicker(interval, "scheduler")
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runCtx, cancel := ctx, context.CancelFunc(func() {})
			if timeout > 0 {
				runCtx, cancel = context.WithTimeout(ctx, timeout)
			}
			report, err := svc.Run(runCtx)
			cancel()
			switch {
			case errors.Is(err, service.ErrRunInProgress):
				log.Info(ctx, "scheduled run skipped; previous run still in progress")
			case err != nil:
				log.Warn(ctx, "scheduled run aborted",
					logger.String("run_id", report.RunID),
					logger.Error(err))
			}
		}
	}
}

// writeTimeout leaves room for a synchronous triggered run to answer.
func writeTimeout(runTimeout time.Duration) time.Duration {
	if runTimeout <= 0 {
		return 0
	}
	return runTimeout + writeTimeoutMargin
}

func closeQuietly(ctx context.Context, log logger.Logger, what string, v any) {
	c, ok := v.(io.Closer)
	if !ok {
		return
	}
	if err := c.Close(); err != nil {
		log.Warn(ctx, "close failed", logger.String("component", what), logger.Error(err))
	}
}

// startSystemMetricsUpdater refreshes system metrics until ctx is done.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(metrics.Global().RefreshInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

// updateSystemMetrics updates system-level metrics.
func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())

	if m.NumGC > 0 {
		avgPauseMs := float64(m.PauseTotalNs) / float64(m.NumGC) / nanosecondsPerMillisecond
		metrics.RecordSystemGCPauseTime(avgPauseMs)
	}
}
