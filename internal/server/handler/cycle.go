package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/pairbot/internal/domain"
	"github.com/alanyoungcy/pairbot/internal/service"
)

// CycleRunner runs one signal cycle.
type CycleRunner interface {
	Run(ctx context.Context) (domain.CycleReport, error)
}

// CycleHandler triggers cycles on demand.
type CycleHandler struct {
	cycles CycleRunner
	logger *slog.Logger
}

// NewCycleHandler creates a CycleHandler.
func NewCycleHandler(cycles CycleRunner, logger *slog.Logger) *CycleHandler {
	return &CycleHandler{cycles: cycles, logger: logger}
}

// TriggerCycle runs one cycle now and returns its report.
// POST /api/cycle/trigger
func (h *CycleHandler) TriggerCycle(w http.ResponseWriter, r *http.Request) {
	h.logger.InfoContext(r.Context(), "cycle triggered via api")

	report, err := h.cycles.Run(r.Context())
	switch {
	case errors.Is(err, service.ErrCycleInProgress):
		writeError(w, http.StatusConflict, "a cycle is already running")
		return
	case errors.Is(err, domain.ErrRiskGateUnavailable):
		writeError(w, http.StatusServiceUnavailable, "risk gate unavailable")
		return
	case err != nil:
		h.logger.ErrorContext(r.Context(), "triggered cycle failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "cycle failed")
		return
	}
	writeJSON(w, http.StatusOK, service.NewCycleReportMessage(report))
}
