package service

import (
	"context"

	"github.com/okian/harvest/internal/domain/types"
	"github.com/okian/harvest/pkg/logger"
	"github.com/okian/harvest/pkg/metrics"
)

// throttleWarnPct is the throttled share of calls above which a run warns.
const throttleWarnPct = 20.0

// Monitor observes run lifecycle events. Implementations must not block the
// run for long and never fail it.
type Monitor interface {
	RunStarted(ctx context.Context, runID string)
	RunFinished(ctx context.Context, report types.Report)
}

type nopMonitor struct{}

func (nopMonitor) RunStarted(context.Context, string)       {}
func (nopMonitor) RunFinished(context.Context, types.Report) {}

// Monitors fans events out to every member in order.
type Monitors []Monitor

func (ms Monitors) RunStarted(ctx context.Context, runID string) {
	for _, m := range ms {
		m.RunStarted(ctx, runID)
	}
}

func (ms Monitors) RunFinished(ctx context.Context, report types.Report) {
	for _, m := range ms {
		m.RunFinished(ctx, report)
	}
}

// LogMonitor writes run events and an API performance summary to the log.
type LogMonitor struct {
	logger logger.Logger
}

// NewLogMonitor creates a LogMonitor.
func NewLogMonitor(l logger.Logger) *LogMonitor {
	if l == nil {
		l = logger.NewNop()
	}
	return &LogMonitor{logger: l.Named("monitor")}
}

func (m *LogMonitor) RunStarted(ctx context.Context, runID string) {
	m.logger.Info(ctx, "run event", logger.String("event", "started"), logger.String("run_id", runID))
}

func (m *LogMonitor) RunFinished(ctx context.Context, report types.Report) {
	fields := []logger.Field{
		logger.String("run_id", report.RunID),
		logger.String("state", string(report.State)),
		logger.Bool("complete", report.Complete),
		logger.Duration("duration", report.Duration),
		logger.Any("counts", report.Counts),
	}
	if report.Succeeded() {
		m.logger.Info(ctx, "run event", append(fields, logger.String("event", "succeeded"))...)
	} else {
		m.logger.Error(ctx, "run event", append(fields,
			logger.String("event", "failed"),
			logger.String("failed_stage", string(report.FailedStage)),
			logger.String("error", report.Error))...)
	}

	g := report.Governor
	metrics.UpdateAPIRateLimitedRatio(g.ThrottlePct / 100)
	m.logger.Info(ctx, "api performance",
		logger.String("run_id", report.RunID),
		logger.Int64("total_requests", g.TotalRequests),
		logger.Int64("throttled", g.Throttled),
		logger.Int64("server_errors", g.ServerErrors),
		logger.Float64("throttle_pct", g.ThrottlePct),
		logger.Duration("total_wait", g.TotalWait),
		logger.Duration("average_wait", g.AverageWait),
		logger.Duration("current_delay", g.CurrentDelay))
	if g.ThrottlePct > throttleWarnPct {
		m.logger.Warn(ctx, "high throttle rate",
			logger.String("run_id", report.RunID),
			logger.Float64("throttle_pct", g.ThrottlePct))
	}
}
