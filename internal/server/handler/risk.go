package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/pairbot/internal/domain"
)

// RiskProvider reads and records sentiment readings.
type RiskProvider interface {
	Current(ctx context.Context) (domain.RiskReading, error)
	Submit(ctx context.Context, r domain.RiskReading) (domain.RiskReading, error)
	History(ctx context.Context, opts domain.ListOpts) ([]domain.RiskReading, error)
}

// RiskHandler serves the risk gate endpoints.
type RiskHandler struct {
	risk         RiskProvider
	maxRiskScore int
	logger       *slog.Logger
}

// NewRiskHandler creates a RiskHandler. maxRiskScore is the cycle ceiling
// reported alongside the reading.
func NewRiskHandler(risk RiskProvider, maxRiskScore int, logger *slog.Logger) *RiskHandler {
	return &RiskHandler{risk: risk, maxRiskScore: maxRiskScore, logger: logger}
}

type riskResponse struct {
	ID        int64  `json:"id"`
	Score     int    `json:"risk_score"`
	Sentiment string `json:"sentiment"`
	Summary   string `json:"summary"`
	Timestamp string `json:"timestamp"`
	Ceiling   int    `json:"ceiling"`
	Halted    bool   `json:"halted"`
}

func (h *RiskHandler) toResponse(r domain.RiskReading) riskResponse {
	return riskResponse{
		ID:        r.ID,
		Score:     r.Score,
		Sentiment: string(r.Sentiment),
		Summary:   r.Summary,
		Timestamp: r.Timestamp.UTC().Format(time.RFC3339),
		Ceiling:   h.maxRiskScore,
		Halted:    r.Score > h.maxRiskScore,
	}
}

// GetRisk returns the latest sentiment reading.
// GET /api/risk
func (h *RiskHandler) GetRisk(w http.ResponseWriter, r *http.Request) {
	reading, err := h.risk.Current(r.Context())
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no sentiment recorded")
			return
		}
		h.logger.ErrorContext(r.Context(), "failed to read risk",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusServiceUnavailable, "risk gate unavailable")
		return
	}
	writeJSON(w, http.StatusOK, h.toResponse(reading))
}

type sentimentRequest struct {
	Score     *int   `json:"risk_score"`
	Sentiment string `json:"sentiment"`
	Summary   string `json:"summary"`
}

// SubmitSentiment records a reading from the news agent.
// POST /api/sentiment
func (h *RiskHandler) SubmitSentiment(w http.ResponseWriter, r *http.Request) {
	var req sentimentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Score == nil {
		writeError(w, http.StatusBadRequest, "risk_score is required")
		return
	}
	if *req.Score < 0 || *req.Score > 100 {
		writeError(w, http.StatusBadRequest, "risk_score must be between 0 and 100")
		return
	}

	stored, err := h.risk.Submit(r.Context(), domain.RiskReading{
		Score:     *req.Score,
		Sentiment: domain.RiskLevel(req.Sentiment),
		Summary:   req.Summary,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to record sentiment",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to record sentiment")
		return
	}
	writeJSON(w, http.StatusCreated, h.toResponse(stored))
}

// History lists past readings, newest first, each judged against the
// current ceiling.
// GET /api/risk/history?since=&until=&limit=&offset=
func (h *RiskHandler) History(w http.ResponseWriter, r *http.Request) {
	opts, err := parseListOpts(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	readings, err := h.risk.History(r.Context(), opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to list sentiment history",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list sentiment history")
		return
	}
	out := make([]riskResponse, 0, len(readings))
	for _, reading := range readings {
		out = append(out, h.toResponse(reading))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"readings": out,
		"count":    len(out),
		"limit":    opts.Limit,
		"offset":   opts.Offset,
	})
}
