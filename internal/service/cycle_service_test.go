package service

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/alanyoungcy/pairbot/internal/domain"
	"github.com/alanyoungcy/pairbot/internal/strategy"
)

var (
	pairAtom = domain.Pair{ID: "ATOM/DOT", Name: "The Shield", AssetA: []string{"ATOM/USDT"}, AssetB: []string{"DOT/USDT"}}
	pairSand = domain.Pair{ID: "SAND/MANA", Name: "The Stability", AssetA: []string{"SAND/USDT"}, AssetB: []string{"MANA/USDT"}}
	pairCrv  = domain.Pair{ID: "CRV/CVX", Name: "The Rocket", AssetA: []string{"CRV/USDT"}, AssetB: []string{"CVX/USDT"}}
)

func testCycleConfig() CycleConfig {
	return CycleConfig{
		Timeframe:    "1h",
		Lookback:     100,
		Window:       50,
		Thresholds:   strategy.DefaultThresholds(),
		MaxRiskScore: 75,
		MaxParallel:  4,
		FetchTimeout: time.Second,
		LockTTL:      time.Minute,
	}
}

type cycleFixture struct {
	prices *fakePrices
	risk   *fakeRisk
	states *fakeStates
	sink   *fakeSink
	audit  *fakeAudit
	bus    *fakeBus
}

func newCycleFixture() *cycleFixture {
	return &cycleFixture{
		prices: newFakePrices(),
		risk:   &fakeRisk{score: 40},
		states: newFakeStates(),
		sink:   &fakeSink{},
		audit:  &fakeAudit{},
		bus:    newFakeBus(),
	}
}

func (f *cycleFixture) service(pairs []domain.Pair, cfg CycleConfig) *CycleService {
	svc := NewCycleService(pairs, CycleDeps{
		Prices: f.prices,
		Risk:   f.risk,
		States: f.states,
		Sink:   f.sink,
		Bus:    f.bus,
		Audit:  f.audit,
	}, cfg, discardLogger())
	n := 0
	svc.newID = func() string {
		n++
		return "id-" + string(rune('0'+n))
	}
	return svc
}

func openPosition(pair domain.Pair, side domain.PositionType, entryZ, entryRatio float64) domain.PositionState {
	return domain.PositionState{
		PairID:      pair.ID,
		Name:        pair.Name,
		IsActive:    true,
		Type:        side,
		EntryZScore: &entryZ,
		EntryRatio:  &entryRatio,
	}
}

func TestRunRiskAboveCeilingHalts(t *testing.T) {
	f := newCycleFixture()
	f.risk.score = 76
	f.prices.set(pairAtom, revertingSpread(100, 0.3))
	f.states.states[pairSand.ID] = openPosition(pairSand, domain.PositionShortALongB, 2.4, 0.1)

	report, err := f.service([]domain.Pair{pairAtom, pairSand}, testCycleConfig()).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !report.Halted || report.RiskLevel != domain.RiskCritical {
		t.Fatalf("report = %+v", report)
	}
	if f.prices.calls != 0 || f.states.saves != 0 || f.states.loads != 0 || len(f.sink.events) != 0 {
		t.Fatalf("halted cycle touched pairs: fetches=%d saves=%d loads=%d events=%d",
			f.prices.calls, f.states.saves, f.states.loads, len(f.sink.events))
	}
	for _, r := range report.Results {
		if r.Outcome != domain.OutcomeSkipped || r.Reason != domain.SkipRiskHalted {
			t.Errorf("%s: %s/%s", r.PairID, r.Outcome, r.Reason)
		}
	}
	if len(f.audit.events) != 1 || f.audit.events[0] != "cycle.halted" {
		t.Fatalf("audit = %v", f.audit.events)
	}
	if !f.states.states[pairSand.ID].IsActive {
		t.Fatal("open position must survive a halted cycle")
	}
}

func TestRunAtCeilingProceeds(t *testing.T) {
	f := newCycleFixture()
	f.risk.score = 75
	f.prices.set(pairAtom, revertingSpread(100, 0.3))

	report, err := f.service([]domain.Pair{pairAtom}, testCycleConfig()).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if report.Halted || report.Results[0].Outcome != domain.OutcomeTransitioned {
		t.Fatalf("report = %+v", report)
	}
}

func TestRunRiskUnavailable(t *testing.T) {
	f := newCycleFixture()
	f.risk.err = errors.New("connection refused")

	_, err := f.service([]domain.Pair{pairAtom}, testCycleConfig()).Run(context.Background())
	if !errors.Is(err, domain.ErrRiskGateUnavailable) {
		t.Fatalf("expected ErrRiskGateUnavailable, got %v", err)
	}
	if f.prices.calls != 0 {
		t.Fatal("pairs evaluated without a risk reading")
	}
}

func TestRunRejectsOverlap(t *testing.T) {
	f := newCycleFixture()
	svc := f.service([]domain.Pair{pairAtom}, testCycleConfig())
	svc.running.Lock()
	defer svc.running.Unlock()
	if _, err := svc.Run(context.Background()); !errors.Is(err, ErrCycleInProgress) {
		t.Fatalf("expected ErrCycleInProgress, got %v", err)
	}
}

func TestRunPublishesReport(t *testing.T) {
	f := newCycleFixture()
	f.prices.set(pairAtom, revertingSpread(100, 0.3))

	if _, err := f.service([]domain.Pair{pairAtom}, testCycleConfig()).Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	msgs := f.bus.published[domain.ChannelCycle]
	if len(msgs) != 1 {
		t.Fatalf("cycle messages = %d", len(msgs))
	}
	var msg CycleReportMessage
	if err := json.Unmarshal(msgs[0], &msg); err != nil {
		t.Fatal(err)
	}
	if len(msg.Results) != 1 || msg.Results[0].Event == nil || msg.Results[0].Event.Type != "ENTRY" {
		t.Fatalf("message = %+v", msg)
	}
}

func TestEvaluateCycleIsolatesFailures(t *testing.T) {
	f := newCycleFixture()
	f.prices.errs["ATOM/USDT"] = domain.ErrDataUnavailable
	f.prices.set(pairSand, revertingSpread(100, 0.3))
	f.prices.set(pairCrv, revertingSpread(100, 0.3))
	f.prices.panics["CRV/USDT"] = true

	results := f.service([]domain.Pair{pairAtom, pairSand, pairCrv}, testCycleConfig()).
		EvaluateCycle(context.Background(), []domain.Pair{pairAtom, pairSand, pairCrv}, 10)

	if len(results) != 3 {
		t.Fatalf("results = %d", len(results))
	}
	if results[0].PairID != pairAtom.ID || results[0].Reason != domain.SkipDataUnavailable {
		t.Errorf("atom = %+v", results[0])
	}
	if results[1].PairID != pairSand.ID || results[1].Outcome != domain.OutcomeTransitioned {
		t.Errorf("sand = %+v", results[1])
	}
	if results[2].PairID != pairCrv.ID || results[2].Reason != domain.SkipInternal {
		t.Errorf("crv = %+v", results[2])
	}
	if len(f.sink.events) != 1 || f.sink.events[0].PairID != pairSand.ID {
		t.Fatalf("events = %+v", f.sink.events)
	}
}

func TestEvaluatePairEntry(t *testing.T) {
	tests := []struct {
		name  string
		spike float64
		want  domain.PositionType
	}{
		{"spread above band shorts A", 0.3, domain.PositionShortALongB},
		{"spread below band longs A", -0.3, domain.PositionLongAShortB},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newCycleFixture()
			f.prices.set(pairAtom, revertingSpread(100, tt.spike))

			res := f.service(nil, testCycleConfig()).EvaluateCycle(context.Background(), []domain.Pair{pairAtom}, 0)[0]
			if res.Outcome != domain.OutcomeTransitioned || res.From != domain.PositionFlat || res.To != tt.want {
				t.Fatalf("result = %+v", res)
			}
			if res.Event == nil || res.Event.ID == "" || res.Event.Type != domain.TradeEventEntry {
				t.Fatalf("event = %+v", res.Event)
			}
			if math.Abs(res.Event.Ratio-tt.spike) > 1e-9 {
				t.Fatalf("ratio = %v, want log spread %v", res.Event.Ratio, tt.spike)
			}
			if res.Lambda >= 0 || res.HalfLife <= 0 {
				t.Fatalf("lambda = %v half-life = %v", res.Lambda, res.HalfLife)
			}
			st := f.states.states[pairAtom.ID]
			if st.Type != tt.want || st.Name != pairAtom.Name || *st.EntryZScore != res.ZScore {
				t.Fatalf("saved state = %+v", st)
			}
		})
	}
}

func TestEvaluatePairUnchanged(t *testing.T) {
	f := newCycleFixture()
	f.prices.set(pairAtom, revertingSpread(100, 0.05))

	res := f.service(nil, testCycleConfig()).EvaluateCycle(context.Background(), []domain.Pair{pairAtom}, 0)[0]
	if res.Outcome != domain.OutcomeUnchanged || res.To != domain.PositionFlat {
		t.Fatalf("result = %+v", res)
	}
	if f.states.saves != 0 || len(f.sink.events) != 0 {
		t.Fatal("hold must not persist anything")
	}
}

func TestEvaluatePairMeanReversionExit(t *testing.T) {
	f := newCycleFixture()
	f.prices.set(pairAtom, revertingSpread(100, 0.05))
	f.states.states[pairAtom.ID] = openPosition(pairAtom, domain.PositionLongAShortB, -2.3, 0.02)

	res := f.service(nil, testCycleConfig()).EvaluateCycle(context.Background(), []domain.Pair{pairAtom}, 0)[0]
	if res.Outcome != domain.OutcomeTransitioned || res.To != domain.PositionFlat {
		t.Fatalf("result = %+v", res)
	}
	if res.Event.ExitReason != domain.ExitMeanReversion {
		t.Fatalf("reason = %s", res.Event.ExitReason)
	}
	if math.Abs(res.Event.PnLPercent-150) > 1e-6 {
		t.Fatalf("pnl = %v", res.Event.PnLPercent)
	}
	if st := f.states.states[pairAtom.ID]; st.IsActive || st.EntryRatio != nil {
		t.Fatalf("state not flattened: %+v", st)
	}
}

func TestEvaluatePairNonReverting(t *testing.T) {
	f := newCycleFixture()
	f.prices.set(pairAtom, trendingSpread(100))
	f.states.states[pairAtom.ID] = openPosition(pairAtom, domain.PositionLongAShortB, -2.1, 9.0)

	svc := f.service(nil, testCycleConfig())
	res := svc.EvaluateCycle(context.Background(), []domain.Pair{pairAtom}, 0)[0]
	if res.Reason != domain.SkipNonReverting || res.Lambda < 0 {
		t.Fatalf("result = %+v", res)
	}
	if f.states.loads != 0 || f.states.saves != 0 {
		t.Fatal("non-reverting pair should not reach the state store")
	}

	cfg := testCycleConfig()
	cfg.ExitsWhenNonReverting = true
	res = f.service(nil, cfg).EvaluateCycle(context.Background(), []domain.Pair{pairAtom}, 0)[0]
	if res.Outcome != domain.OutcomeTransitioned || res.Event.Type != domain.TradeEventExit {
		t.Fatalf("opt-in exit result = %+v", res)
	}

	// A flat pair stays skipped even with the opt-in.
	f.states.states[pairAtom.ID] = domain.FlatState(pairAtom.ID)
	res = f.service(nil, cfg).EvaluateCycle(context.Background(), []domain.Pair{pairAtom}, 0)[0]
	if res.Reason != domain.SkipNonReverting {
		t.Fatalf("flat opt-in result = %+v", res)
	}
}

func TestEvaluateCycleExitsWhenRiskHalted(t *testing.T) {
	f := newCycleFixture()
	f.prices.set(pairAtom, revertingSpread(100, 0.3))
	f.prices.set(pairSand, revertingSpread(100, 0.05))
	f.states.states[pairSand.ID] = openPosition(pairSand, domain.PositionLongAShortB, -2.2, 0.04)

	cfg := testCycleConfig()
	cfg.ExitsWhenRiskHalted = true
	results := f.service(nil, cfg).EvaluateCycle(context.Background(), []domain.Pair{pairAtom, pairSand}, 90)

	if results[0].Reason != domain.SkipRiskHalted {
		t.Fatalf("flat pair = %+v", results[0])
	}
	if results[1].Outcome != domain.OutcomeTransitioned || results[1].Event.Type != domain.TradeEventExit {
		t.Fatalf("open pair = %+v", results[1])
	}
	if f.prices.calls != 2 {
		t.Fatalf("fetches = %d, want only the open pair's two legs", f.prices.calls)
	}
}

func TestEvaluatePairSkipReasons(t *testing.T) {
	short := revertingSpread(30, 0.3)
	misA, misB := legs(revertingSpread(100, 0.3))
	misB[len(misB)-1].OpenTime = misB[len(misB)-1].OpenTime.Add(time.Hour)
	badA, badB := legs(revertingSpread(100, 0.3))
	badA[40].Close = 0

	tests := []struct {
		name  string
		setup func(f *cycleFixture)
		want  domain.SkipReason
	}{
		{"short history", func(f *cycleFixture) { f.prices.set(pairAtom, short) }, domain.SkipInsufficientHistory},
		{"misaligned legs", func(f *cycleFixture) {
			f.prices.series["ATOM/USDT"], f.prices.series["DOT/USDT"] = misA, misB
		}, domain.SkipInvalidSeries},
		{"zero close", func(f *cycleFixture) {
			f.prices.series["ATOM/USDT"], f.prices.series["DOT/USDT"] = badA, badB
		}, domain.SkipInvalidPrice},
		{"save fails", func(f *cycleFixture) {
			f.prices.set(pairAtom, revertingSpread(100, 0.3))
			f.states.saveErr = errors.New("db down")
		}, domain.SkipStateError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newCycleFixture()
			tt.setup(f)
			res := f.service(nil, testCycleConfig()).EvaluateCycle(context.Background(), []domain.Pair{pairAtom}, 0)[0]
			if res.Outcome != domain.OutcomeSkipped || res.Reason != tt.want {
				t.Fatalf("result = %+v, want %s", res, tt.want)
			}
			if len(f.sink.events) != 0 {
				t.Fatal("skipped pair recorded an event")
			}
		})
	}
}

func TestEvaluatePairLocked(t *testing.T) {
	f := newCycleFixture()
	f.prices.set(pairAtom, revertingSpread(100, 0.3))
	svc := NewCycleService(nil, CycleDeps{
		Prices: f.prices,
		Risk:   f.risk,
		States: f.states,
		Sink:   f.sink,
		Locks:  &fakeLocks{held: map[string]bool{"pair:ATOM/DOT": true}},
	}, testCycleConfig(), discardLogger())

	res := svc.EvaluateCycle(context.Background(), []domain.Pair{pairAtom}, 0)[0]
	if res.Reason != domain.SkipLocked || f.prices.calls != 0 {
		t.Fatalf("result = %+v fetches = %d", res, f.prices.calls)
	}
}

func TestEvaluatePairLockBackendDown(t *testing.T) {
	f := newCycleFixture()
	f.prices.set(pairAtom, revertingSpread(100, 0.3))
	svc := NewCycleService(nil, CycleDeps{
		Prices: f.prices,
		Risk:   f.risk,
		States: f.states,
		Sink:   f.sink,
		Locks:  &fakeLocks{err: errors.New("redis: lock pair:ATOM/DOT: dial tcp: connection refused")},
	}, testCycleConfig(), discardLogger())

	res := svc.EvaluateCycle(context.Background(), []domain.Pair{pairAtom}, 0)[0]
	if res.Outcome != domain.OutcomeSkipped || res.Reason != domain.SkipLockUnavailable {
		t.Fatalf("result = %+v, want lock_unavailable", res)
	}
	if f.prices.calls != 0 {
		t.Fatalf("fetched %d series without a lock", f.prices.calls)
	}
}

func TestEvaluatePairPriceRatioBasis(t *testing.T) {
	f := newCycleFixture()
	f.prices.set(pairAtom, revertingSpread(100, 0.3))
	cfg := testCycleConfig()
	cfg.RatioBasis = RatioBasisPrice

	res := f.service(nil, cfg).EvaluateCycle(context.Background(), []domain.Pair{pairAtom}, 0)[0]
	if res.Event == nil || math.Abs(res.Event.Ratio-math.Exp(0.3)) > 1e-9 {
		t.Fatalf("event = %+v", res.Event)
	}
}
