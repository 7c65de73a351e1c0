package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/pairbot/internal/domain"
	"github.com/alanyoungcy/pairbot/internal/metrics"
	"github.com/alanyoungcy/pairbot/internal/strategy"
)

// ErrCycleInProgress is returned by Run while another cycle is executing in
// this process.
var ErrCycleInProgress = errors.New("service: cycle already in progress")

// Ratio bases accepted by CycleConfig.RatioBasis.
const (
	RatioBasisSpread = "spread"
	RatioBasisPrice  = "price"
)

// SeriesFetcher resolves a pair leg to a candle series.
type SeriesFetcher interface {
	FetchSeries(ctx context.Context, symbols []string, timeframe string, count int) ([]domain.Candle, string, error)
}

// RiskReader returns the current risk score. Failure wraps
// domain.ErrRiskGateUnavailable.
type RiskReader interface {
	CurrentRiskScore(ctx context.Context) (int, error)
}

// EventSink records trade events without reporting failures.
type EventSink interface {
	RecordTradeEvent(ctx context.Context, ev domain.TradeEvent)
}

// CycleNotifier alerts operators about a finished cycle.
type CycleNotifier interface {
	NotifyCycle(ctx context.Context, report domain.CycleReport) error
}

// CycleConfig holds the orchestrator parameters.
type CycleConfig struct {
	Timeframe    string
	Lookback     int
	Window       int
	Thresholds   strategy.Thresholds
	MaxRiskScore int
	MaxParallel  int
	FetchTimeout time.Duration
	LockTTL      time.Duration
	RatioBasis   string

	// ExitsWhenNonReverting still evaluates exits for an open position whose
	// spread no longer mean-reverts. Entries stay suppressed.
	ExitsWhenNonReverting bool
	// ExitsWhenRiskHalted evaluates pairs holding a position, exits only,
	// when the risk score is above the ceiling.
	ExitsWhenRiskHalted bool
}

// CycleDeps are the collaborators of CycleService. Locks, Bus, Audit and
// Notifier are optional.
type CycleDeps struct {
	Prices   SeriesFetcher
	Risk     RiskReader
	States   domain.StateStore
	Sink     EventSink
	Locks    domain.LockManager
	Bus      domain.SignalBus
	Audit    domain.AuditStore
	Notifier CycleNotifier
}

// CycleService is the signal orchestrator. Each cycle reads the risk gate
// once, then evaluates every configured pair independently.
type CycleService struct {
	pairs  []domain.Pair
	deps   CycleDeps
	cfg    CycleConfig
	logger *slog.Logger

	now   func() time.Time
	newID func() string

	running sync.Mutex
}

// NewCycleService creates a CycleService for the given pairs.
func NewCycleService(pairs []domain.Pair, deps CycleDeps, cfg CycleConfig, logger *slog.Logger) *CycleService {
	if cfg.MaxParallel < 1 {
		cfg.MaxParallel = 1
	}
	if cfg.RatioBasis == "" {
		cfg.RatioBasis = RatioBasisSpread
	}
	return &CycleService{
		pairs:  pairs,
		deps:   deps,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "cycle_service")),
		now:    func() time.Time { return time.Now().UTC() },
		newID:  uuid.NewString,
	}
}

// Pairs returns the configured pairs in configuration order.
func (s *CycleService) Pairs() []domain.Pair {
	return append([]domain.Pair(nil), s.pairs...)
}

// Run executes one cycle over every configured pair. It fails only when the
// risk gate cannot be read; per-pair problems are reported in the results.
func (s *CycleService) Run(ctx context.Context) (domain.CycleReport, error) {
	if !s.running.TryLock() {
		return domain.CycleReport{}, ErrCycleInProgress
	}
	defer s.running.Unlock()

	report := domain.CycleReport{ID: s.newID(), StartedAt: s.now()}
	log := s.logger.With(slog.String("cycle_id", report.ID))
	timer := time.Now()

	score, err := s.deps.Risk.CurrentRiskScore(ctx)
	if err != nil {
		metrics.CyclesTotal.WithLabelValues("failed").Inc()
		log.ErrorContext(ctx, "risk gate unavailable, cycle aborted", slog.String("error", err.Error()))
		if !errors.Is(err, domain.ErrRiskGateUnavailable) {
			err = fmt.Errorf("%w: %w", domain.ErrRiskGateUnavailable, err)
		}
		return report, fmt.Errorf("cycle_service: %w", err)
	}

	report.RiskScore = score
	report.RiskLevel = domain.ClassifyRisk(score)
	report.Halted = score > s.cfg.MaxRiskScore
	metrics.RiskScore.Set(float64(score))

	if report.Halted {
		log.WarnContext(ctx, "risk score above ceiling, cycle halted",
			slog.Int("risk_score", score),
			slog.Int("ceiling", s.cfg.MaxRiskScore),
			slog.String("level", string(report.RiskLevel)),
		)
		s.audit(ctx, "cycle.halted", map[string]any{
			"cycle_id":   report.ID,
			"risk_score": score,
			"ceiling":    s.cfg.MaxRiskScore,
		})
	}

	report.Results = s.EvaluateCycle(ctx, s.pairs, score)
	report.FinishedAt = s.now()

	result := "ok"
	if report.Halted {
		result = "halted"
	}
	metrics.CyclesTotal.WithLabelValues(result).Inc()
	metrics.CycleDuration.Observe(time.Since(timer).Seconds())

	log.InfoContext(ctx, "cycle complete",
		slog.Int("risk_score", score),
		slog.Bool("halted", report.Halted),
		slog.Int("transitioned", report.Count(domain.OutcomeTransitioned)),
		slog.Int("unchanged", report.Count(domain.OutcomeUnchanged)),
		slog.Int("skipped", report.Count(domain.OutcomeSkipped)),
		slog.Duration("elapsed", time.Since(timer)),
	)

	s.publish(ctx, report)
	if s.deps.Notifier != nil {
		if err := s.deps.Notifier.NotifyCycle(ctx, report); err != nil {
			log.WarnContext(ctx, "cycle notify failed", slog.String("error", err.Error()))
		}
	}
	return report, nil
}

// EvaluateCycle evaluates pairs against an already-read risk score and
// returns one result per pair, in input order. A score above the ceiling
// skips every pair unless ExitsWhenRiskHalted is set.
func (s *CycleService) EvaluateCycle(ctx context.Context, pairs []domain.Pair, riskScore int) []domain.CycleResult {
	results := make([]domain.CycleResult, len(pairs))
	halted := riskScore > s.cfg.MaxRiskScore

	if halted && !s.cfg.ExitsWhenRiskHalted {
		detail := fmt.Sprintf("risk score %d above ceiling %d", riskScore, s.cfg.MaxRiskScore)
		for i, p := range pairs {
			results[i] = skipped(p.ID, domain.SkipRiskHalted, detail)
			metrics.PairOutcomes.WithLabelValues(p.ID, string(domain.OutcomeSkipped), string(domain.SkipRiskHalted)).Inc()
		}
		return results
	}

	var g errgroup.Group
	g.SetLimit(s.cfg.MaxParallel)
	for i, p := range pairs {
		g.Go(func() error {
			results[i] = s.evaluatePair(ctx, p, halted)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// evaluatePair runs the per-pair pipeline. With exitsOnly set, flat pairs
// are skipped before any data is fetched and entries are never taken.
func (s *CycleService) evaluatePair(ctx context.Context, p domain.Pair, exitsOnly bool) (res domain.CycleResult) {
	log := s.logger.With(slog.String("pair", p.ID))
	defer func() {
		if r := recover(); r != nil {
			log.ErrorContext(ctx, "pair evaluation panicked",
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
			res = skipped(p.ID, domain.SkipInternal, fmt.Sprint(r))
		}
		s.observe(res)
	}()

	if s.deps.Locks != nil {
		unlock, err := s.deps.Locks.Acquire(ctx, pairLockKey(p.ID), s.cfg.LockTTL)
		if err != nil {
			reason := domain.SkipLockUnavailable
			if errors.Is(err, domain.ErrLockHeld) {
				reason = domain.SkipLocked
			}
			return s.skip(ctx, log, p.ID, reason, err)
		}
		defer unlock()
	}

	var (
		state     domain.PositionState
		haveState bool
	)
	if exitsOnly {
		st, err := s.loadState(ctx, p)
		if err != nil {
			return s.skip(ctx, log, p.ID, domain.SkipStateError, err)
		}
		if st.Flat() {
			return skipped(p.ID, domain.SkipRiskHalted, "flat pair not evaluated while risk is above ceiling")
		}
		state, haveState = st, true
	}

	legA, legB, err := s.fetchLegs(ctx, p)
	if err != nil {
		return s.skip(ctx, log, p.ID, classify(err), err)
	}
	closesA, closesB := domain.Closes(legA), domain.Closes(legB)

	spread, err := strategy.LogSpread(closesA, closesB)
	if err != nil {
		return s.skip(ctx, log, p.ID, classify(err), err)
	}
	if len(spread) < s.cfg.Window {
		err := fmt.Errorf("%w: %d aligned points, window %d", domain.ErrInsufficientHistory, len(spread), s.cfg.Window)
		return s.skip(ctx, log, p.ID, domain.SkipInsufficientHistory, err)
	}

	rev := strategy.EstimateReversion(spread)
	res.Lambda = rev.Lambda
	res.HalfLife = rev.HalfLife
	if !rev.MeanReverting() && !s.cfg.ExitsWhenNonReverting {
		return s.skipNonReverting(ctx, log, res, p.ID, rev)
	}

	z, err := strategy.LatestZScore(spread, s.cfg.Window)
	if err != nil {
		return s.skip(ctx, log, p.ID, classify(err), err)
	}
	res.ZScore = finite(z)
	metrics.ZScore.WithLabelValues(p.ID).Set(z)
	metrics.Lambda.WithLabelValues(p.ID).Set(rev.Lambda)

	if !haveState {
		state, err = s.loadState(ctx, p)
		if err != nil {
			return s.skip(ctx, log, p.ID, domain.SkipStateError, err)
		}
	}
	if !rev.MeanReverting() {
		if state.Flat() {
			return s.skipNonReverting(ctx, log, res, p.ID, rev)
		}
		exitsOnly = true
	}

	ratio := spread[len(spread)-1]
	if s.cfg.RatioBasis == RatioBasisPrice {
		if ratio, err = strategy.LastPriceRatio(closesA, closesB); err != nil {
			return s.skip(ctx, log, p.ID, classify(err), err)
		}
	}

	tr := strategy.Step(state, strategy.Observation{Z: z, Ratio: ratio, Time: s.now()}, s.cfg.Thresholds)
	res.PairID = p.ID
	res.From = tr.From

	if !tr.Changed() || (exitsOnly && tr.Kind == strategy.TransitionEnter) {
		res.Outcome = domain.OutcomeUnchanged
		res.To = tr.From
		metrics.SetPosition(p.ID, string(state.Type))
		log.DebugContext(ctx, "position unchanged",
			slog.String("position", string(tr.From)),
			slog.Float64("z_score", z),
			slog.Float64("lambda", rev.Lambda),
		)
		return res
	}

	ev := *tr.Event
	ev.ID = s.newID()
	if err := s.deps.States.Save(ctx, tr.Next); err != nil {
		return s.skip(ctx, log, p.ID, domain.SkipStateError, err)
	}
	s.deps.Sink.RecordTradeEvent(ctx, ev)

	res.Outcome = domain.OutcomeTransitioned
	res.To = tr.Next.Type
	res.Event = &ev
	metrics.SetPosition(p.ID, string(tr.Next.Type))
	return res
}

// loadState returns the persisted state, or FLAT for a pair never saved.
func (s *CycleService) loadState(ctx context.Context, p domain.Pair) (domain.PositionState, error) {
	st, err := s.deps.States.Load(ctx, p.ID)
	if errors.Is(err, domain.ErrNotFound) {
		st = domain.FlatState(p.ID)
		st.Name = p.Name
		return st, nil
	}
	if err != nil {
		return domain.PositionState{}, fmt.Errorf("cycle_service: load state %s: %w", p.ID, err)
	}
	if st.Name == "" {
		st.Name = p.Name
	}
	return st, nil
}

// fetchLegs fetches both legs concurrently, each bounded by FetchTimeout,
// and checks that the two series end on the same candle.
func (s *CycleService) fetchLegs(ctx context.Context, p domain.Pair) ([]domain.Candle, []domain.Candle, error) {
	var a, b []domain.Candle
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		a, err = s.fetchLeg(gctx, p.AssetA)
		return err
	})
	g.Go(func() (err error) {
		b, err = s.fetchLeg(gctx, p.AssetB)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	if len(a) > 0 && len(b) > 0 && !a[len(a)-1].OpenTime.Equal(b[len(b)-1].OpenTime) {
		return nil, nil, fmt.Errorf("%w: %s ends at %s, %s at %s", domain.ErrMisalignedSeries,
			p.AssetA, a[len(a)-1].OpenTime.Format(time.RFC3339),
			p.AssetB, b[len(b)-1].OpenTime.Format(time.RFC3339))
	}
	return a, b, nil
}

// fetchLeg runs on its own goroutine, so a panicking source is turned into
// an error here rather than by evaluatePair.
func (s *CycleService) fetchLeg(ctx context.Context, symbols []string) (candles []domain.Candle, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("cycle_service: fetch %v panicked: %v", symbols, r)
		}
	}()
	if s.cfg.FetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.FetchTimeout)
		defer cancel()
	}
	candles, _, err = s.deps.Prices.FetchSeries(ctx, symbols, s.cfg.Timeframe, s.cfg.Lookback)
	return candles, err
}

func (s *CycleService) skip(ctx context.Context, log *slog.Logger, pairID string, reason domain.SkipReason, err error) domain.CycleResult {
	level := slog.LevelError
	switch reason {
	case domain.SkipNonReverting, domain.SkipLocked:
		level = slog.LevelInfo
	case domain.SkipDataUnavailable, domain.SkipInsufficientHistory, domain.SkipInvalidPrice,
		domain.SkipInvalidSeries, domain.SkipDegenerateSpread:
		level = slog.LevelWarn
	}
	log.Log(ctx, level, "pair skipped",
		slog.String("reason", string(reason)),
		slog.String("error", err.Error()),
	)
	return skipped(pairID, reason, err.Error())
}

func (s *CycleService) skipNonReverting(ctx context.Context, log *slog.Logger, res domain.CycleResult, pairID string, rev strategy.Reversion) domain.CycleResult {
	metrics.Lambda.WithLabelValues(pairID).Set(rev.Lambda)
	err := fmt.Errorf("%w: lambda %.6f over %d samples", domain.ErrNonReverting, rev.Lambda, rev.Samples)
	out := s.skip(ctx, log, pairID, domain.SkipNonReverting, err)
	out.Lambda = res.Lambda
	out.HalfLife = res.HalfLife
	return out
}

func (s *CycleService) observe(res domain.CycleResult) {
	metrics.PairOutcomes.WithLabelValues(res.PairID, string(res.Outcome), string(res.Reason)).Inc()
}

func (s *CycleService) audit(ctx context.Context, event string, detail map[string]any) {
	if s.deps.Audit == nil {
		return
	}
	if err := s.deps.Audit.Log(ctx, event, detail); err != nil {
		s.logger.WarnContext(ctx, "audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

func (s *CycleService) publish(ctx context.Context, report domain.CycleReport) {
	if s.deps.Bus == nil {
		return
	}
	payload, err := json.Marshal(NewCycleReportMessage(report))
	if err != nil {
		return
	}
	if err := s.deps.Bus.Publish(ctx, domain.ChannelCycle, payload); err != nil {
		s.logger.WarnContext(ctx, "cycle publish failed", slog.String("error", err.Error()))
	}
}

// classify maps a pair pipeline error to its skip reason.
func classify(err error) domain.SkipReason {
	switch {
	case errors.Is(err, domain.ErrInvalidPrice):
		return domain.SkipInvalidPrice
	case errors.Is(err, domain.ErrMisalignedSeries):
		return domain.SkipInvalidSeries
	case errors.Is(err, domain.ErrInsufficientHistory):
		return domain.SkipInsufficientHistory
	case errors.Is(err, domain.ErrDegenerateSpread):
		return domain.SkipDegenerateSpread
	case errors.Is(err, domain.ErrNonReverting):
		return domain.SkipNonReverting
	case errors.Is(err, domain.ErrLockHeld):
		return domain.SkipLocked
	case errors.Is(err, domain.ErrDataUnavailable),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return domain.SkipDataUnavailable
	}
	return domain.SkipInternal
}

func skipped(pairID string, reason domain.SkipReason, detail string) domain.CycleResult {
	return domain.CycleResult{
		PairID:  pairID,
		Outcome: domain.OutcomeSkipped,
		Reason:  reason,
		Detail:  detail,
	}
}

func pairLockKey(pairID string) string {
	return "pair:" + pairID
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
