package api

import (
	"net/http"

	"github.com/okian/harvest/internal/domain/governor"
	"github.com/okian/harvest/internal/domain/types"
)

type statsResponse struct {
	Running    bool            `json:"running"`
	LastReport *types.Report   `json:"last_report,omitempty"`
	Governor   *governor.Stats `json:"governor,omitempty"`
}

// StatsHandler reports the last run and live pacing counters.
type StatsHandler struct {
	runner Runner
}

// NewStatsHandler creates a new stats handler.
func NewStatsHandler(runner Runner) *StatsHandler {
	return &StatsHandler{runner: runner}
}

// HandleStats handles GET /stats requests.
func (h *StatsHandler) HandleStats(w http.ResponseWriter, _ *http.Request) {
	resp := statsResponse{Running: h.runner.Running()}
	if r, ok := h.runner.LastReport(); ok {
		resp.LastReport = &r
	}
	if g, ok := h.runner.GovernorStats(); ok {
		resp.Governor = &g
	}
	writeJSON(w, http.StatusOK, resp)
}
