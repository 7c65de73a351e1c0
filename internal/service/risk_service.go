package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/pairbot/internal/domain"
)

// RiskService reads and records the market-sentiment risk score that gates
// each cycle.
type RiskService struct {
	sentiment domain.SentimentStore
	logger    *slog.Logger
}

// NewRiskService creates a RiskService.
func NewRiskService(sentiment domain.SentimentStore, logger *slog.Logger) *RiskService {
	return &RiskService{
		sentiment: sentiment,
		logger:    logger.With(slog.String("component", "risk_service")),
	}
}

// CurrentRiskScore returns the score of the most recent reading. A missing
// row or a read failure wraps domain.ErrRiskGateUnavailable.
func (s *RiskService) CurrentRiskScore(ctx context.Context) (int, error) {
	r, err := s.Current(ctx)
	if err != nil {
		return 0, err
	}
	return r.Score, nil
}

// Current returns the most recent reading with its level recomputed from the
// score.
func (s *RiskService) Current(ctx context.Context) (domain.RiskReading, error) {
	r, err := s.sentiment.Latest(ctx)
	if err != nil {
		return domain.RiskReading{}, fmt.Errorf("risk_service: latest: %w: %w", domain.ErrRiskGateUnavailable, err)
	}
	r.Sentiment = domain.ClassifyRisk(r.Score)
	return r, nil
}

// Submit validates and stores a reading from the news agent. An empty or
// unknown sentiment is replaced by the level derived from the score.
func (s *RiskService) Submit(ctx context.Context, r domain.RiskReading) (domain.RiskReading, error) {
	if r.Score < 0 || r.Score > 100 {
		return domain.RiskReading{}, fmt.Errorf("risk_service: risk score %d out of range 0-100", r.Score)
	}
	level := domain.RiskLevel(strings.ToUpper(strings.TrimSpace(string(r.Sentiment))))
	switch level {
	case domain.RiskSafe, domain.RiskCaution, domain.RiskCritical:
		r.Sentiment = level
	default:
		r.Sentiment = domain.ClassifyRisk(r.Score)
	}

	stored, err := s.sentiment.Insert(ctx, r)
	if err != nil {
		return domain.RiskReading{}, fmt.Errorf("risk_service: insert: %w", err)
	}
	s.logger.InfoContext(ctx, "sentiment recorded",
		slog.Int("risk_score", stored.Score),
		slog.String("sentiment", string(stored.Sentiment)),
	)
	return stored, nil
}

// History lists past readings, newest first.
func (s *RiskService) History(ctx context.Context, opts domain.ListOpts) ([]domain.RiskReading, error) {
	out, err := s.sentiment.List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("risk_service: list: %w", err)
	}
	return out, nil
}
