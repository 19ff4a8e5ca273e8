package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/okian/harvest/internal/fakeriot"
	"github.com/okian/harvest/pkg/logger"
)

const (
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 5 * time.Second
)

type options struct {
	addr     string
	logLevel string
	cfg      fakeriot.Config
}

func main() {
	opts, err := parseFlags(os.Args[1:], os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		_, _ = os.Stderr.WriteString("fakeriot: " + err.Error() + "\n")
		os.Exit(2)
	}

	log, err := logger.New(logger.WithLevel(opts.logLevel), logger.WithService("fakeriot", "dev"))
	if err != nil {
		_, _ = os.Stderr.WriteString("fakeriot: " + err.Error() + "\n")
		os.Exit(1)
	}
	opts.cfg.Logger = log

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := serve(ctx, opts, log); err != nil {
		log.Error(ctx, "fakeriot stopped", logger.Error(err))
		os.Exit(1)
	}
}

func parseFlags(args []string, out io.Writer) (options, error) {
	var (
		o       options
		missing string
	)
	fs := flag.NewFlagSet("fakeriot", flag.ContinueOnError)
	fs.SetOutput(out)
	fs.StringVar(&o.addr, "addr", ":9090", "Listen address")
	fs.StringVar(&o.logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	fs.StringVar(&o.cfg.APIKey, "key", "", "Required X-Riot-Token value (empty accepts any)")
	fs.IntVar(&o.cfg.Players, "players", fakeriot.DefaultPlayers, "Ladder size")
	fs.IntVar(&o.cfg.MatchesPerPlayer, "matches", fakeriot.DefaultMatchesPerPlayer, "Match history length per player")
	fs.IntVar(&o.cfg.Overlap, "overlap", 1, "Match ids shared by adjacent players")
	fs.IntVar(&o.cfg.ThrottleEvery, "throttle-every", 0, "Answer every Nth request with 429 (0 disables)")
	fs.DurationVar(&o.cfg.RetryAfter, "retry-after", 0, "Retry-After sent with 429 responses")
	fs.StringVar(&missing, "missing", "", "Comma-separated match ids that answer 404")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if o.cfg.Players < 0 || o.cfg.MatchesPerPlayer < 0 || o.cfg.ThrottleEvery < 0 {
		return options{}, fmt.Errorf("players, matches and throttle-every must not be negative")
	}
	for _, id := range strings.Split(missing, ",") {
		if id = strings.TrimSpace(id); id != "" {
			o.cfg.Missing = append(o.cfg.Missing, id)
		}
	}
	return o, nil
}

func serve(ctx context.Context, o options, log logger.Logger) error {
	fake := fakeriot.New(o.cfg)
	srv := &http.Server{
		Addr:              o.addr,
		Handler:           fake.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info(ctx, "fakeriot listening",
			logger.String("addr", o.addr),
			logger.Int("players", len(fake.Players())),
			logger.Int("unique_matches", len(fake.UniqueMatches())),
			logger.Int("throttle_every", o.cfg.ThrottleEvery))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info(context.Background(), "fakeriot stopped",
		logger.Int64("requests", fake.Requests()),
		logger.Int64("throttled", fake.Throttled()))
	return nil
}
