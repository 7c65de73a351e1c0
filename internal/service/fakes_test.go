package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/alanyoungcy/pairbot/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var seriesStart = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// legs builds two hourly candle series whose log ratio is spread: B closes
// at 10 and A at 10*exp(spread).
func legs(spread []float64) (a, b []domain.Candle) {
	a = make([]domain.Candle, len(spread))
	b = make([]domain.Candle, len(spread))
	for i, s := range spread {
		t := seriesStart.Add(time.Duration(i) * time.Hour)
		a[i] = domain.Candle{OpenTime: t, Close: 10 * math.Exp(s)}
		b[i] = domain.Candle{OpenTime: t, Close: 10}
	}
	return a, b
}

// revertingSpread is a small sine wave whose last point jumps by spike.
func revertingSpread(n int, spike float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 0.1 * math.Sin(2*math.Pi*float64(i)/20)
	}
	out[n-1] = spike
	return out
}

func trendingSpread(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 0.001 * float64(i*i)
	}
	return out
}

type fakePrices struct {
	mu     sync.Mutex
	series map[string][]domain.Candle
	errs   map[string]error
	panics map[string]bool
	calls  int
}

func newFakePrices() *fakePrices {
	return &fakePrices{
		series: map[string][]domain.Candle{},
		errs:   map[string]error{},
		panics: map[string]bool{},
	}
}

func (f *fakePrices) set(pair domain.Pair, spread []float64) {
	a, b := legs(spread)
	f.series[pair.AssetA[0]] = a
	f.series[pair.AssetB[0]] = b
}

func (f *fakePrices) FetchSeries(_ context.Context, symbols []string, _ string, _ int) ([]domain.Candle, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	sym := symbols[0]
	if f.panics[sym] {
		panic("feed exploded for " + sym)
	}
	if err := f.errs[sym]; err != nil {
		return nil, "", err
	}
	c, ok := f.series[sym]
	if !ok {
		return nil, "", domain.ErrDataUnavailable
	}
	return c, sym, nil
}

type fakeRisk struct {
	score int
	err   error
}

func (f *fakeRisk) CurrentRiskScore(context.Context) (int, error) { return f.score, f.err }

type fakeStates struct {
	mu      sync.Mutex
	states  map[string]domain.PositionState
	saveErr error
	saves   int
	loads   int
}

func newFakeStates() *fakeStates {
	return &fakeStates{states: map[string]domain.PositionState{}}
}

func (f *fakeStates) Load(_ context.Context, pairID string) (domain.PositionState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loads++
	st, ok := f.states[pairID]
	if !ok {
		return domain.PositionState{}, domain.ErrNotFound
	}
	return st, nil
}

func (f *fakeStates) Save(_ context.Context, st domain.PositionState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saves++
	f.states[st.PairID] = st
	return nil
}

func (f *fakeStates) Seed(context.Context, []domain.Pair) error { return nil }

func (f *fakeStates) List(context.Context) ([]domain.PositionState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.PositionState
	for _, st := range f.states {
		out = append(out, st)
	}
	return out, nil
}

type fakeSink struct {
	mu     sync.Mutex
	events []domain.TradeEvent
}

func (f *fakeSink) RecordTradeEvent(_ context.Context, ev domain.TradeEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
}

type fakeLocks struct {
	held map[string]bool
	err  error
}

func (f *fakeLocks) Acquire(_ context.Context, key string, _ time.Duration) (func(), error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.held[key] {
		return nil, domain.ErrLockHeld
	}
	return func() {}, nil
}

type fakeAudit struct {
	mu     sync.Mutex
	events []string
}

func (f *fakeAudit) Log(_ context.Context, event string, _ map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

func (f *fakeAudit) List(context.Context, string, domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

type fakeBus struct {
	mu        sync.Mutex
	published map[string][][]byte
	streamed  map[string][][]byte
	err       error
}

func newFakeBus() *fakeBus {
	return &fakeBus{published: map[string][][]byte{}, streamed: map[string][][]byte{}}
}

func (f *fakeBus) Publish(_ context.Context, channel string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published[channel] = append(f.published[channel], payload)
	return f.err
}

func (f *fakeBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	return nil, errors.New("not supported")
}

func (f *fakeBus) StreamAppend(_ context.Context, stream string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.streamed[stream] = append(f.streamed[stream], payload)
	return f.err
}

// StreamRead numbers entries "1-0", "2-0", ... in append order.
func (f *fakeBus) StreamRead(_ context.Context, stream, lastID string, count int) ([]domain.StreamMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var after int
	fmt.Sscanf(lastID, "%d-", &after)
	var out []domain.StreamMessage
	for i, p := range f.streamed[stream] {
		if i+1 <= after {
			continue
		}
		if len(out) == count {
			break
		}
		out = append(out, domain.StreamMessage{ID: fmt.Sprintf("%d-0", i+1), Payload: p})
	}
	return out, f.err
}
