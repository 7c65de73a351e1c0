package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alanyoungcy/pairbot/internal/domain"
	"github.com/alanyoungcy/pairbot/internal/server/handler"
	"github.com/alanyoungcy/pairbot/internal/service"
)

type noStates struct{}

func (noStates) List(context.Context) ([]domain.PositionState, error) { return nil, nil }

type noPairs struct{}

func (noPairs) Pairs() []domain.Pair { return []domain.Pair{{ID: "ATOM/DOT"}} }

type noTrades struct{}

func (noTrades) List(context.Context, string, domain.ListOpts) ([]domain.TradeEvent, error) {
	return nil, nil
}

func (noTrades) Replay(context.Context, string, int) ([]service.StreamEntry, error) {
	return nil, nil
}

type fixedRisk struct{}

func (fixedRisk) Current(context.Context) (domain.RiskReading, error) {
	return domain.RiskReading{Score: 20, Sentiment: domain.RiskSafe}, nil
}

func (fixedRisk) Submit(_ context.Context, r domain.RiskReading) (domain.RiskReading, error) {
	return r, nil
}

func (fixedRisk) History(context.Context, domain.ListOpts) ([]domain.RiskReading, error) {
	return nil, nil
}

type noAudit struct{}

func (noAudit) List(context.Context, string, domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

type fixedCycle struct{}

func (fixedCycle) Run(context.Context) (domain.CycleReport, error) {
	return domain.CycleReport{ID: "c1"}, nil
}

func newTestRouter(apiKey string) http.Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handlers := Handlers{
		Health: handler.NewHealthHandler(nil, logger),
		Pairs:  handler.NewPairHandler(noPairs{}, noStates{}, logger),
		Trades: handler.NewTradeHandler(noTrades{}, logger),
		Risk:   handler.NewRiskHandler(fixedRisk{}, 75, logger),
		Cycle:  handler.NewCycleHandler(fixedCycle{}, logger),
		Audit:  handler.NewAuditHandler(noAudit{}, logger),
	}
	return NewRouter(Config{APIKey: apiKey}, handlers, nil, nil, logger)
}

func TestRouterRoutes(t *testing.T) {
	h := newTestRouter("secret")
	tests := []struct {
		method, path, body string
		auth               bool
		want               int
	}{
		{http.MethodGet, "/api/health", "", false, http.StatusOK},
		{http.MethodGet, "/metrics", "", false, http.StatusOK},
		{http.MethodGet, "/api/pairs", "", false, http.StatusUnauthorized},
		{http.MethodGet, "/api/pairs", "", true, http.StatusOK},
		{http.MethodGet, "/api/trades?pair=ATOM/DOT", "", true, http.StatusOK},
		{http.MethodGet, "/api/trades/stream?after=0", "", true, http.StatusOK},
		{http.MethodGet, "/api/risk", "", true, http.StatusOK},
		{http.MethodGet, "/api/risk/history?since=2026-01-01T00:00:00Z", "", true, http.StatusOK},
		{http.MethodGet, "/api/audit?event=archive.trade_logs", "", true, http.StatusOK},
		{http.MethodGet, "/api/audit?until=yesterday", "", true, http.StatusBadRequest},
		{http.MethodPost, "/api/sentiment", `{"risk_score":10}`, true, http.StatusCreated},
		{http.MethodPost, "/api/cycle/trigger", "", true, http.StatusOK},
		{http.MethodGet, "/api/cycle/trigger", "", true, http.StatusMethodNotAllowed},
		{http.MethodGet, "/ws", "", true, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			if tt.auth {
				req.Header.Set("Authorization", "Bearer secret")
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}
