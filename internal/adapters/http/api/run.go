package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	service "github.com/okian/harvest/internal/app"
	"github.com/okian/harvest/internal/domain/types"
	"github.com/okian/harvest/pkg/logger"
)

type runResponse struct {
	Status   string       `json:"status"`
	Complete bool         `json:"complete"`
	Message  string       `json:"message"`
	Report   types.Report `json:"report"`
}

// RunHandler triggers a synchronous pipeline run.
type RunHandler struct {
	runner  Runner
	base    context.Context
	timeout time.Duration
	logger  logger.Logger
}

// NewRunHandler creates a new run handler. Runs are cancelled when base is.
func NewRunHandler(base context.Context, runner Runner, timeout time.Duration, l logger.Logger) *RunHandler {
	if base == nil {
		base = context.Background()
	}
	return &RunHandler{runner: runner, base: base, timeout: timeout, logger: l}
}

// HandleRun handles POST /run-pipeline. The run is detached from the
// request so a dropped client does not abort it, but it still ends with
// the base context.
func (h *RunHandler) HandleRun(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()
	stop := context.AfterFunc(h.base, cancel)
	defer stop()
	if h.timeout > 0 {
		var cancelTimeout context.CancelFunc
		ctx, cancelTimeout = context.WithTimeout(ctx, h.timeout)
		defer cancelTimeout()
	}

	report, err := h.runner.Run(ctx)
	switch {
	case errors.Is(err, service.ErrRunInProgress):
		writeJSON(w, http.StatusConflict, errorResponse{Status: "error", Message: err.Error()})
	case err != nil:
		h.logger.Warn(r.Context(), "triggered run aborted",
			logger.String("run_id", report.RunID),
			logger.String("failed_stage", string(report.FailedStage)))
		writeJSON(w, http.StatusInternalServerError, runResponse{
			Status:  "error",
			Message: err.Error(),
			Report:  report,
		})
	default:
		msg := "pipeline completed"
		if !report.Complete {
			msg = "pipeline completed with skipped items"
		}
		writeJSON(w, http.StatusOK, runResponse{
			Status:   "success",
			Complete: report.Complete,
			Message:  msg,
			Report:   report,
		})
	}
}
