package domain

import "time"

// CycleOutcome is the per-pair result kind of one evaluation cycle.
type CycleOutcome string

const (
	OutcomeSkipped      CycleOutcome = "skipped"
	OutcomeTransitioned CycleOutcome = "transitioned"
	OutcomeUnchanged    CycleOutcome = "unchanged"
)

// SkipReason names why a pair was not evaluated to completion.
type SkipReason string

const (
	SkipDataUnavailable     SkipReason = "data_unavailable"
	SkipInsufficientHistory SkipReason = "insufficient_history"
	SkipNonReverting        SkipReason = "non_reverting"
	SkipInvalidPrice        SkipReason = "invalid_price"
	SkipInvalidSeries       SkipReason = "invalid_series"
	SkipDegenerateSpread    SkipReason = "degenerate_spread"
	SkipLocked              SkipReason = "locked"
	SkipLockUnavailable     SkipReason = "lock_unavailable"
	SkipStateError          SkipReason = "state_error"
	SkipRiskHalted          SkipReason = "risk_halted"
	SkipInternal            SkipReason = "internal_error"
)

// CycleResult is exactly one of skipped(reason), transitioned(from, to,
// event) or unchanged.
type CycleResult struct {
	PairID   string
	Outcome  CycleOutcome
	Reason   SkipReason
	Detail   string
	From     PositionType
	To       PositionType
	Event    *TradeEvent
	ZScore   float64
	Lambda   float64
	HalfLife float64
}

// CycleReport summarises one orchestration run.
type CycleReport struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time
	RiskScore  int
	RiskLevel  RiskLevel
	Halted     bool
	Results    []CycleResult
}

// Count returns how many results have the given outcome.
func (r CycleReport) Count(o CycleOutcome) int {
	n := 0
	for _, res := range r.Results {
		if res.Outcome == o {
			n++
		}
	}
	return n
}
