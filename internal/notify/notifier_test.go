package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alanyoungcy/pairbot/internal/domain"
)

type recordingSender struct {
	name   string
	err    error
	titles []string
	bodies []string
}

func (r *recordingSender) Send(_ context.Context, title, message string) error {
	r.titles = append(r.titles, title)
	r.bodies = append(r.bodies, message)
	return r.err
}

func (r *recordingSender) Name() string { return r.name }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotifyTradeFiltersByKind(t *testing.T) {
	s := &recordingSender{name: "rec"}
	n := NewNotifier([]Sender{s}, []string{"exit"}, discardLogger())

	entry := domain.TradeEvent{PairID: "ATOM/DOT", Type: domain.TradeEventEntry, Side: domain.PositionShortALongB}
	if err := n.NotifyTrade(context.Background(), entry); err != nil {
		t.Fatal(err)
	}
	if len(s.titles) != 0 {
		t.Fatalf("entry should be filtered, got %v", s.titles)
	}

	exit := domain.TradeEvent{
		PairID: "ATOM/DOT", Type: domain.TradeEventExit, Side: domain.PositionShortALongB,
		PnLPercent: 9.09, ExitReason: domain.ExitMeanReversion,
	}
	if err := n.NotifyTrade(context.Background(), exit); err != nil {
		t.Fatal(err)
	}
	if len(s.titles) != 1 || s.titles[0] != "EXIT ATOM/DOT" {
		t.Fatalf("titles = %v", s.titles)
	}
	if !strings.Contains(s.bodies[0], "pnl: 9.09%") || !strings.Contains(s.bodies[0], "mean_reversion") {
		t.Fatalf("body = %q", s.bodies[0])
	}
}

func TestNotifyCycle(t *testing.T) {
	s := &recordingSender{name: "rec"}
	n := NewNotifier([]Sender{s}, nil, discardLogger())
	ctx := context.Background()

	if err := n.NotifyCycle(ctx, domain.CycleReport{Results: []domain.CycleResult{{Outcome: domain.OutcomeUnchanged}}}); err != nil {
		t.Fatal(err)
	}
	if len(s.titles) != 0 {
		t.Fatal("quiet cycle should not notify")
	}

	_ = n.NotifyCycle(ctx, domain.CycleReport{Halted: true, RiskScore: 80, RiskLevel: domain.RiskCritical})
	_ = n.NotifyCycle(ctx, domain.CycleReport{Results: []domain.CycleResult{
		{PairID: "CRV/CVX", Outcome: domain.OutcomeSkipped, Reason: domain.SkipInternal},
	}})
	if len(s.titles) != 2 || s.titles[0] != "cycle halted" || s.titles[1] != "cycle errors" {
		t.Fatalf("titles = %v", s.titles)
	}
}

func TestDispatchContinuesAfterFailure(t *testing.T) {
	bad := &recordingSender{name: "bad", err: errors.New("boom")}
	good := &recordingSender{name: "good"}
	n := NewNotifier([]Sender{bad, good}, nil, discardLogger())

	err := n.Notify(context.Background(), EventError, "t", "m")
	if err == nil || !strings.Contains(err.Error(), "bad: boom") {
		t.Fatalf("err = %v", err)
	}
	if len(good.titles) != 1 {
		t.Fatal("second sender not reached")
	}
}

func TestTelegramSender(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/botTOKEN/sendMessage" {
			t.Errorf("path = %s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewTelegramSender("TOKEN", "42")
	s.apiBase = srv.URL
	if err := s.Send(context.Background(), "title", "body"); err != nil {
		t.Fatal(err)
	}
	if got["chat_id"] != "42" || got["text"] != "*title*\nbody" {
		t.Fatalf("payload = %v", got)
	}
}

func TestDiscordSenderStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadRequest)
	}))
	defer srv.Close()

	err := NewDiscordSender(srv.URL).Send(context.Background(), "t", "m")
	if err == nil || !strings.Contains(err.Error(), "unexpected status 400") {
		t.Fatalf("err = %v", err)
	}
}
