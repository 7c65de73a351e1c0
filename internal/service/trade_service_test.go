package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alanyoungcy/pairbot/internal/domain"
)

type memTradeLog struct {
	events []domain.TradeEvent
	err    error
}

func (m *memTradeLog) Insert(_ context.Context, ev domain.TradeEvent) error {
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, ev)
	return nil
}

func (m *memTradeLog) List(_ context.Context, pairID string, _ domain.ListOpts) ([]domain.TradeEvent, error) {
	var out []domain.TradeEvent
	for _, ev := range m.events {
		if pairID == "" || ev.PairID == pairID {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (m *memTradeLog) ListBefore(context.Context, time.Time, int) ([]domain.TradeEvent, error) {
	return nil, nil
}

func (m *memTradeLog) DeleteBefore(context.Context, time.Time, []string) (int64, error) {
	return 0, nil
}

type countingNotifier struct {
	trades []domain.TradeEvent
}

func (c *countingNotifier) NotifyTrade(_ context.Context, ev domain.TradeEvent) error {
	c.trades = append(c.trades, ev)
	return nil
}

func sampleExit() domain.TradeEvent {
	return domain.TradeEvent{
		ID:         "6f1c",
		PairID:     "ATOM/DOT",
		Type:       domain.TradeEventExit,
		Side:       domain.PositionShortALongB,
		Ratio:      1.0,
		ZScore:     -0.1,
		PnLPercent: 9.09,
		Comment:    "SIMULATED EXIT: Mean reversion: Z=-0.10 crossed below 0",
		ExitReason: domain.ExitMeanReversion,
		Timestamp:  time.Date(2026, 3, 1, 13, 0, 0, 0, time.UTC),
	}
}

func TestRecordTradeEventFansOut(t *testing.T) {
	store := &memTradeLog{}
	bus := newFakeBus()
	n := &countingNotifier{}
	svc := NewTradeService(store, bus, n, discardLogger())

	svc.RecordTradeEvent(context.Background(), sampleExit())

	if len(store.events) != 1 || len(n.trades) != 1 {
		t.Fatalf("store=%d notify=%d", len(store.events), len(n.trades))
	}
	if len(bus.published[domain.ChannelTrade]) != 1 || len(bus.streamed[domain.StreamTrades]) != 1 {
		t.Fatalf("bus = %+v", bus)
	}
	var msg TradeEventMessage
	if err := json.Unmarshal(bus.published[domain.ChannelTrade][0], &msg); err != nil {
		t.Fatal(err)
	}
	if msg.Pair != "ATOM/DOT" || msg.Type != "EXIT" || msg.ExitReason != "mean_reversion" || msg.Timestamp != "2026-03-01T13:00:00Z" {
		t.Fatalf("message = %+v", msg)
	}
}

func TestRecordTradeEventSwallowsFailures(t *testing.T) {
	store := &memTradeLog{err: errors.New("insert failed")}
	bus := newFakeBus()
	bus.err = errors.New("redis gone")
	n := &countingNotifier{}
	svc := NewTradeService(store, bus, n, discardLogger())

	svc.RecordTradeEvent(context.Background(), sampleExit())

	if len(n.trades) != 1 {
		t.Fatal("notification skipped after store failure")
	}
}

func TestRecordTradeEventWithoutOptionalDeps(t *testing.T) {
	store := &memTradeLog{}
	svc := NewTradeService(store, nil, nil, discardLogger())
	svc.RecordTradeEvent(context.Background(), sampleExit())

	got, err := svc.List(context.Background(), "ATOM/DOT", domain.ListOpts{})
	if err != nil || len(got) != 1 {
		t.Fatalf("list = %v err = %v", got, err)
	}
}

func TestReplayReadsStreamAfterID(t *testing.T) {
	bus := newFakeBus()
	svc := NewTradeService(&memTradeLog{}, bus, nil, discardLogger())
	ctx := context.Background()

	first := sampleExit()
	second := sampleExit()
	second.ID, second.PairID = "7a2d", "SAND/MANA"
	svc.RecordTradeEvent(ctx, first)
	svc.RecordTradeEvent(ctx, second)
	bus.streamed[domain.StreamTrades] = append(bus.streamed[domain.StreamTrades], []byte("garbage"))

	all, err := svc.Replay(ctx, "", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 || all[0].StreamID != "1-0" || all[1].Event.Pair != "SAND/MANA" {
		t.Fatalf("replay = %+v", all)
	}

	rest, err := svc.Replay(ctx, "1-0", 10)
	if err != nil || len(rest) != 1 || rest[0].Event.ID != "7a2d" {
		t.Fatalf("replay after 1-0 = %+v, %v", rest, err)
	}

	if _, err := NewTradeService(&memTradeLog{}, nil, nil, discardLogger()).Replay(ctx, "0", 10); !errors.Is(err, ErrStreamUnavailable) {
		t.Fatalf("expected ErrStreamUnavailable, got %v", err)
	}
}
