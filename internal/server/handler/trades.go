package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/pairbot/internal/domain"
	"github.com/alanyoungcy/pairbot/internal/service"
)

// TradeReader reads the trade log and the durable trade stream.
type TradeReader interface {
	List(ctx context.Context, pairID string, opts domain.ListOpts) ([]domain.TradeEvent, error)
	Replay(ctx context.Context, lastID string, count int) ([]service.StreamEntry, error)
}

// TradeHandler serves the simulated trade log.
type TradeHandler struct {
	trades TradeReader
	logger *slog.Logger
}

// NewTradeHandler creates a TradeHandler.
func NewTradeHandler(trades TradeReader, logger *slog.Logger) *TradeHandler {
	return &TradeHandler{trades: trades, logger: logger}
}

// ListTrades returns trade events, newest first, optionally filtered by pair.
// GET /api/trades?pair=&limit=&offset=
func (h *TradeHandler) ListTrades(w http.ResponseWriter, r *http.Request) {
	pair := r.URL.Query().Get("pair")
	opts, err := parseListOpts(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	events, err := h.trades.List(r.Context(), pair, opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to list trades",
			slog.String("pair", pair),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list trades")
		return
	}

	out := make([]service.TradeEventMessage, 0, len(events))
	for _, ev := range events {
		out = append(out, service.NewTradeEventMessage(ev))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"trades": out,
		"count":  len(out),
		"limit":  opts.Limit,
		"offset": opts.Offset,
	})
}

// ReplayTrades returns trade events from the stream after the given stream
// ID, oldest first. Clients use it to catch up before following /ws.
// GET /api/trades/stream?after=&limit=
func (h *TradeHandler) ReplayTrades(w http.ResponseWriter, r *http.Request) {
	after := r.URL.Query().Get("after")
	opts, _ := parseListOpts(r) // only limit applies

	entries, err := h.trades.Replay(r.Context(), after, opts.Limit)
	if err != nil {
		if errors.Is(err, service.ErrStreamUnavailable) {
			writeError(w, http.StatusServiceUnavailable, "trade stream unavailable")
			return
		}
		h.logger.ErrorContext(r.Context(), "failed to replay trade stream",
			slog.String("after", after),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to replay trades")
		return
	}

	last := after
	if len(entries) > 0 {
		last = entries[len(entries)-1].StreamID
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"count":   len(entries),
		"last_id": last,
	})
}
