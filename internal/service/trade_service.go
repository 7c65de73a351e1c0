package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/pairbot/internal/domain"
	"github.com/alanyoungcy/pairbot/internal/metrics"
)

// TradeNotifier sends operator alerts for trade events.
type TradeNotifier interface {
	NotifyTrade(ctx context.Context, ev domain.TradeEvent) error
}

// TradeEventMessage is the JSON shape of a trade event on the signal bus,
// the WebSocket feed and the HTTP API.
type TradeEventMessage struct {
	ID         string  `json:"id"`
	Pair       string  `json:"pair"`
	Type       string  `json:"type"`
	Side       string  `json:"side"`
	Ratio      float64 `json:"price"`
	ZScore     float64 `json:"z_score"`
	PnLPercent float64 `json:"pnl_percent"`
	Comment    string  `json:"comment"`
	ExitReason string  `json:"exit_reason,omitempty"`
	Timestamp  string  `json:"timestamp"`
}

// NewTradeEventMessage converts a domain event to its wire form.
func NewTradeEventMessage(ev domain.TradeEvent) TradeEventMessage {
	return TradeEventMessage{
		ID:         ev.ID,
		Pair:       ev.PairID,
		Type:       string(ev.Type),
		Side:       string(ev.Side),
		Ratio:      ev.Ratio,
		ZScore:     ev.ZScore,
		PnLPercent: ev.PnLPercent,
		Comment:    ev.Comment,
		ExitReason: string(ev.ExitReason),
		Timestamp:  ev.Timestamp.UTC().Format(time.RFC3339),
	}
}

// TradeService is the trade event sink: it appends events to the trade log,
// fans them out on the signal bus and alerts operators. Recording never
// fails the caller.
type TradeService struct {
	trades   domain.TradeEventStore
	bus      domain.SignalBus
	notifier TradeNotifier
	logger   *slog.Logger
}

// NewTradeService creates a TradeService. bus and notifier may be nil.
func NewTradeService(
	trades domain.TradeEventStore,
	bus domain.SignalBus,
	notifier TradeNotifier,
	logger *slog.Logger,
) *TradeService {
	return &TradeService{
		trades:   trades,
		bus:      bus,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "trade_service")),
	}
}

// RecordTradeEvent persists and publishes ev. Failures are logged and
// counted only.
func (s *TradeService) RecordTradeEvent(ctx context.Context, ev domain.TradeEvent) {
	s.logger.InfoContext(ctx, ev.Comment,
		slog.String("event_type", string(ev.Type)),
		slog.String("pair", ev.PairID),
		slog.String("side", string(ev.Side)),
		slog.Float64("z_score", ev.ZScore),
		slog.Float64("ratio", ev.Ratio),
		slog.Float64("pnl_percent", ev.PnLPercent),
	)

	metrics.TradeEvents.WithLabelValues(ev.PairID, string(ev.Type), string(ev.Side)).Inc()
	if ev.ExitReason != "" {
		metrics.ExitReasons.WithLabelValues(ev.PairID, string(ev.ExitReason)).Inc()
	}

	if err := s.trades.Insert(ctx, ev); err != nil {
		metrics.SinkFailures.WithLabelValues("store").Inc()
		s.logger.ErrorContext(ctx, "trade event insert failed",
			slog.String("event_id", ev.ID),
			slog.String("pair", ev.PairID),
			slog.String("error", err.Error()),
		)
	}

	if s.bus != nil {
		payload, err := json.Marshal(NewTradeEventMessage(ev))
		if err == nil {
			if pubErr := s.bus.Publish(ctx, domain.ChannelTrade, payload); pubErr != nil {
				metrics.SinkFailures.WithLabelValues("publish").Inc()
				s.logger.WarnContext(ctx, "trade event publish failed", slog.String("error", pubErr.Error()))
			}
			if appErr := s.bus.StreamAppend(ctx, domain.StreamTrades, payload); appErr != nil {
				metrics.SinkFailures.WithLabelValues("stream").Inc()
				s.logger.WarnContext(ctx, "trade event stream append failed", slog.String("error", appErr.Error()))
			}
		}
	}

	if s.notifier != nil {
		if err := s.notifier.NotifyTrade(ctx, ev); err != nil {
			metrics.SinkFailures.WithLabelValues("notify").Inc()
			s.logger.WarnContext(ctx, "trade event notify failed", slog.String("error", err.Error()))
		}
	}
}

// ErrStreamUnavailable is returned by Replay when no signal bus is wired.
var ErrStreamUnavailable = errors.New("service: trade stream unavailable")

// StreamEntry is one trade event read back from the durable trade stream.
type StreamEntry struct {
	StreamID string            `json:"stream_id"`
	Event    TradeEventMessage `json:"event"`
}

// Replay reads up to count trade events appended to the trade stream after
// lastID ("0" reads from the beginning). Undecodable entries are skipped.
func (s *TradeService) Replay(ctx context.Context, lastID string, count int) ([]StreamEntry, error) {
	if s.bus == nil {
		return nil, ErrStreamUnavailable
	}
	if lastID == "" {
		lastID = "0"
	}
	msgs, err := s.bus.StreamRead(ctx, domain.StreamTrades, lastID, count)
	if err != nil {
		return nil, fmt.Errorf("trade_service: replay after %s: %w", lastID, err)
	}
	out := make([]StreamEntry, 0, len(msgs))
	for _, m := range msgs {
		var ev TradeEventMessage
		if err := json.Unmarshal(m.Payload, &ev); err != nil {
			s.logger.WarnContext(ctx, "skipping undecodable stream entry",
				slog.String("stream_id", m.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		out = append(out, StreamEntry{StreamID: m.ID, Event: ev})
	}
	return out, nil
}

// List returns trade events, newest first. An empty pairID lists all pairs.
func (s *TradeService) List(ctx context.Context, pairID string, opts domain.ListOpts) ([]domain.TradeEvent, error) {
	out, err := s.trades.List(ctx, pairID, opts)
	if err != nil {
		return nil, fmt.Errorf("trade_service: list %q: %w", pairID, err)
	}
	return out, nil
}
