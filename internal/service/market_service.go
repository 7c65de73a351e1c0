package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alanyoungcy/pairbot/internal/domain"
	"github.com/alanyoungcy/pairbot/internal/metrics"
)

// CandleSource fetches candles from an exchange. Unknown symbols return
// domain.ErrNotFound.
type CandleSource interface {
	GetCandles(ctx context.Context, symbol, interval string, count int) ([]domain.Candle, error)
}

// MarketConfig holds the tunables of MarketService.
type MarketConfig struct {
	// QuoteFallbacks are alternate quote currencies appended after each
	// configured candidate, e.g. ATOM/USDT -> ATOM/USDC -> ATOM/BUSD.
	QuoteFallbacks []string
	CacheTTL       time.Duration
}

// MarketService resolves a pair leg to a candle series. It tries each
// candidate symbol in order, serving from the Redis candle cache when it
// holds a full series whose latest bar is still the current one.
type MarketService struct {
	source CandleSource
	cache  domain.CandleCache
	cfg    MarketConfig
	logger *slog.Logger
	now    func() time.Time
}

// NewMarketService creates a MarketService. cache may be nil.
func NewMarketService(source CandleSource, cache domain.CandleCache, cfg MarketConfig, logger *slog.Logger) *MarketService {
	return &MarketService{
		source: source,
		cache:  cache,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "market_service")),
		now:    time.Now,
	}
}

// Candidates expands the configured symbols with the quote fallbacks,
// preserving order and dropping duplicates.
func (s *MarketService) Candidates(symbols []string) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(sym string) {
		if sym != "" && !seen[sym] {
			seen[sym] = true
			out = append(out, sym)
		}
	}
	for _, sym := range symbols {
		add(sym)
	}
	for _, sym := range symbols {
		base, _, ok := strings.Cut(sym, "/")
		if !ok {
			continue
		}
		for _, q := range s.cfg.QuoteFallbacks {
			add(base + "/" + strings.ToUpper(strings.TrimSpace(q)))
		}
	}
	return out
}

// FetchSeries returns the candles of the first candidate that resolves,
// together with the symbol used. When every candidate fails the error wraps
// domain.ErrDataUnavailable.
func (s *MarketService) FetchSeries(ctx context.Context, symbols []string, timeframe string, count int) ([]domain.Candle, string, error) {
	candidates := s.Candidates(symbols)
	if len(candidates) == 0 {
		return nil, "", fmt.Errorf("market_service: no symbols configured: %w", domain.ErrDataUnavailable)
	}

	var lastErr error
	for _, sym := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, "", fmt.Errorf("market_service: %s: %w: %w", sym, domain.ErrDataUnavailable, err)
		}

		if candles, ok := s.fromCache(ctx, sym, timeframe, count); ok {
			return candles, sym, nil
		}

		candles, err := s.source.GetCandles(ctx, sym, timeframe, count)
		if err != nil {
			lastErr = err
			level := slog.LevelWarn
			if errors.Is(err, domain.ErrNotFound) {
				level = slog.LevelDebug
			}
			s.logger.Log(ctx, level, "candidate failed",
				slog.String("symbol", sym),
				slog.String("error", err.Error()),
			)
			continue
		}
		if len(candles) == 0 {
			lastErr = fmt.Errorf("%s returned no candles", sym)
			continue
		}
		if err := domain.CheckOrdered(candles); err != nil {
			return nil, sym, fmt.Errorf("market_service: %s: %w", sym, err)
		}

		metrics.CandleFetches.WithLabelValues("exchange").Inc()
		s.toCache(ctx, sym, timeframe, candles, count)
		return candles, sym, nil
	}

	metrics.CandleFetches.WithLabelValues("miss").Inc()
	return nil, "", fmt.Errorf("market_service: %s: %w: %w",
		strings.Join(candidates, ","), domain.ErrDataUnavailable, lastErr)
}

func (s *MarketService) fromCache(ctx context.Context, sym, timeframe string, count int) ([]domain.Candle, bool) {
	if s.cache == nil {
		return nil, false
	}
	candles, err := s.cache.GetCandles(ctx, sym, timeframe, count)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			s.logger.WarnContext(ctx, "candle cache read failed",
				slog.String("symbol", sym),
				slog.String("error", err.Error()),
			)
		}
		return nil, false
	}
	if next, ok := domain.NextBarOpen(candles, timeframe); ok && !s.now().Before(next) {
		s.logger.DebugContext(ctx, "cached candles behind current bar",
			slog.String("symbol", sym),
			slog.Time("next_open", next),
		)
		return nil, false
	}
	metrics.CandleFetches.WithLabelValues("cache").Inc()
	return candles, true
}

// toCache stores only complete series so a short answer is never served as
// a full one later. Entries expire no later than the next bar open, so both
// legs of a pair always end on the same bar.
func (s *MarketService) toCache(ctx context.Context, sym, timeframe string, candles []domain.Candle, count int) {
	if s.cache == nil || s.cfg.CacheTTL <= 0 || len(candles) < count {
		return
	}
	ttl := s.cfg.CacheTTL
	if next, ok := domain.NextBarOpen(candles, timeframe); ok {
		ttl = min(ttl, next.Sub(s.now()))
	}
	if ttl <= 0 {
		return
	}
	if err := s.cache.SetCandles(ctx, sym, timeframe, candles, ttl); err != nil {
		s.logger.WarnContext(ctx, "candle cache write failed",
			slog.String("symbol", sym),
			slog.String("error", err.Error()),
		)
	}
}
