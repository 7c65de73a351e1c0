package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/pairbot/internal/domain"
)

// PairLister exposes the configured pairs.
type PairLister interface {
	Pairs() []domain.Pair
}

// StateLister exposes persisted position state.
type StateLister interface {
	List(ctx context.Context) ([]domain.PositionState, error)
}

// PairHandler serves the configured pairs joined with their position state.
type PairHandler struct {
	pairs  PairLister
	states StateLister
	logger *slog.Logger
}

// NewPairHandler creates a PairHandler.
func NewPairHandler(pairs PairLister, states StateLister, logger *slog.Logger) *PairHandler {
	return &PairHandler{pairs: pairs, states: states, logger: logger}
}

type pairResponse struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	AssetA      []string `json:"asset_a"`
	AssetB      []string `json:"asset_b"`
	Allocation  float64  `json:"allocation"`
	IsActive    bool     `json:"is_active"`
	Position    string   `json:"position_type"`
	EntryZScore *float64 `json:"entry_zscore"`
	EntryRatio  *float64 `json:"entry_ratio"`
	UpdatedAt   string   `json:"last_updated,omitempty"`
}

// ListPairs returns every configured pair. Pairs with no persisted row are
// reported flat.
// GET /api/pairs
func (h *PairHandler) ListPairs(w http.ResponseWriter, r *http.Request) {
	states, err := h.states.List(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to list position state",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list pairs")
		return
	}
	byID := make(map[string]domain.PositionState, len(states))
	for _, s := range states {
		byID[s.PairID] = s
	}

	pairs := h.pairs.Pairs()
	out := make([]pairResponse, 0, len(pairs))
	for _, p := range pairs {
		st, ok := byID[p.ID]
		if !ok {
			st = domain.FlatState(p.ID)
		}
		resp := pairResponse{
			ID:          p.ID,
			Name:        p.Name,
			AssetA:      p.AssetA,
			AssetB:      p.AssetB,
			Allocation:  p.Allocation,
			IsActive:    st.IsActive,
			Position:    string(st.Type),
			EntryZScore: st.EntryZScore,
			EntryRatio:  st.EntryRatio,
		}
		if resp.Position == "" {
			resp.Position = string(domain.PositionFlat)
		}
		if !st.UpdatedAt.IsZero() {
			resp.UpdatedAt = st.UpdatedAt.UTC().Format(time.RFC3339)
		}
		out = append(out, resp)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"pairs": out,
		"count": len(out),
	})
}
