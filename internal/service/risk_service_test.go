package service

import (
	"context"
	"errors"
	"testing"

	"github.com/alanyoungcy/pairbot/internal/domain"
)

type memSentiment struct {
	rows []domain.RiskReading
	err  error
}

func (m *memSentiment) Latest(context.Context) (domain.RiskReading, error) {
	if m.err != nil {
		return domain.RiskReading{}, m.err
	}
	if len(m.rows) == 0 {
		return domain.RiskReading{}, domain.ErrNotFound
	}
	return m.rows[len(m.rows)-1], nil
}

func (m *memSentiment) Insert(_ context.Context, r domain.RiskReading) (domain.RiskReading, error) {
	r.ID = int64(len(m.rows) + 1)
	m.rows = append(m.rows, r)
	return r, nil
}

func (m *memSentiment) List(context.Context, domain.ListOpts) ([]domain.RiskReading, error) {
	return m.rows, nil
}

func TestCurrentRiskScoreUnavailable(t *testing.T) {
	tests := []struct {
		name  string
		store *memSentiment
	}{
		{"no rows", &memSentiment{}},
		{"read error", &memSentiment{err: errors.New("timeout")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRiskService(tt.store, discardLogger()).CurrentRiskScore(context.Background())
			if !errors.Is(err, domain.ErrRiskGateUnavailable) {
				t.Fatalf("expected ErrRiskGateUnavailable, got %v", err)
			}
		})
	}
}

func TestCurrentReclassifiesLevel(t *testing.T) {
	store := &memSentiment{rows: []domain.RiskReading{{Score: 80, Sentiment: "SAFE"}}}
	r, err := NewRiskService(store, discardLogger()).Current(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if r.Sentiment != domain.RiskCritical {
		t.Fatalf("sentiment = %s", r.Sentiment)
	}
}

func TestSubmit(t *testing.T) {
	store := &memSentiment{}
	svc := NewRiskService(store, discardLogger())
	ctx := context.Background()

	if _, err := svc.Submit(ctx, domain.RiskReading{Score: 101}); err == nil {
		t.Fatal("score above 100 accepted")
	}
	if _, err := svc.Submit(ctx, domain.RiskReading{Score: -1}); err == nil {
		t.Fatal("negative score accepted")
	}

	r, err := svc.Submit(ctx, domain.RiskReading{Score: 60, Summary: "regulatory noise"})
	if err != nil {
		t.Fatal(err)
	}
	if r.Sentiment != domain.RiskCaution || r.ID != 1 {
		t.Fatalf("stored = %+v", r)
	}

	r, _ = svc.Submit(ctx, domain.RiskReading{Score: 20, Sentiment: "critical"})
	if r.Sentiment != domain.RiskCritical {
		t.Fatalf("explicit sentiment overridden: %s", r.Sentiment)
	}

	score, err := svc.CurrentRiskScore(ctx)
	if err != nil || score != 20 {
		t.Fatalf("score = %d err = %v", score, err)
	}
}
