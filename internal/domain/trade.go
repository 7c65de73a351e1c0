package domain

import "time"

// TradeEventType distinguishes position openings from closings.
type TradeEventType string

const (
	TradeEventEntry TradeEventType = "ENTRY"
	TradeEventExit  TradeEventType = "EXIT"
)

// ExitReason records why a position was closed.
type ExitReason string

const (
	ExitMeanReversion ExitReason = "mean_reversion"
	ExitStopLoss      ExitReason = "stop_loss"
)

// TradeEvent is an immutable record of a simulated entry or exit.
type TradeEvent struct {
	ID         string
	PairID     string
	Type       TradeEventType
	Side       PositionType
	Ratio      float64
	ZScore     float64
	PnLPercent float64
	Comment    string
	ExitReason ExitReason // empty for entries
	Timestamp  time.Time
}
