package strategy

import (
	"fmt"
	"math"
	"time"

	"github.com/alanyoungcy/pairbot/internal/domain"
)

// Thresholds are the z-score levels that drive position changes.
type Thresholds struct {
	Entry    float64
	Exit     float64
	StopLoss float64
	// StopLossFirst checks the stop-loss before the mean-reversion exit when
	// both hold on the same observation.
	StopLossFirst bool
}

// DefaultThresholds returns entry 2.0, exit 0.0, stop-loss 4.0.
func DefaultThresholds() Thresholds {
	return Thresholds{Entry: 2.0, Exit: 0.0, StopLoss: 4.0}
}

// Observation is the latest reading for one pair.
type Observation struct {
	Z     float64
	Ratio float64
	Time  time.Time
}

// TransitionKind names what Step decided.
type TransitionKind string

const (
	TransitionHold  TransitionKind = "hold"
	TransitionEnter TransitionKind = "enter"
	TransitionExit  TransitionKind = "exit"
)

// Transition is the result of one Step. Event is nil for holds; its ID is
// left for the caller to assign.
type Transition struct {
	Kind  TransitionKind
	From  domain.PositionType
	Next  domain.PositionState
	Event *domain.TradeEvent
}

// Changed reports whether the state moved.
func (t Transition) Changed() bool { return t.Kind != TransitionHold }

// Step advances a pair's position given the latest observation. It is pure:
// the input state is not modified.
func Step(state domain.PositionState, obs Observation, th Thresholds) Transition {
	from := state.Type
	if from == "" {
		from = domain.PositionFlat
	}
	hold := Transition{Kind: TransitionHold, From: from, Next: state}

	if state.Flat() {
		var side domain.PositionType
		switch {
		case obs.Z > th.Entry:
			side = domain.PositionShortALongB
		case obs.Z < -th.Entry:
			side = domain.PositionLongAShortB
		default:
			return hold
		}
		z, ratio := obs.Z, obs.Ratio
		next := domain.PositionState{
			PairID:      state.PairID,
			Name:        state.Name,
			IsActive:    true,
			Type:        side,
			EntryZScore: &z,
			EntryRatio:  &ratio,
			UpdatedAt:   obs.Time,
		}
		return Transition{
			Kind: TransitionEnter,
			From: from,
			Next: next,
			Event: &domain.TradeEvent{
				PairID:    state.PairID,
				Type:      domain.TradeEventEntry,
				Side:      side,
				Ratio:     obs.Ratio,
				ZScore:    obs.Z,
				Comment:   fmt.Sprintf("SIMULATED ENTRY: Z=%.2f, Ratio=%.4f", obs.Z, obs.Ratio),
				Timestamp: obs.Time,
			},
		}
	}

	reason, detail, exit := exitDecision(state.Type, obs.Z, th)
	if !exit {
		return hold
	}

	next := domain.FlatState(state.PairID)
	next.Name = state.Name
	next.UpdatedAt = obs.Time
	return Transition{
		Kind: TransitionExit,
		From: from,
		Next: next,
		Event: &domain.TradeEvent{
			PairID:     state.PairID,
			Type:       domain.TradeEventExit,
			Side:       state.Type,
			Ratio:      obs.Ratio,
			ZScore:     obs.Z,
			PnLPercent: ExitPnL(state.Type, state.EntryRatio, obs.Ratio),
			Comment:    "SIMULATED EXIT: " + detail,
			ExitReason: reason,
			Timestamp:  obs.Time,
		},
	}
}

func exitDecision(side domain.PositionType, z float64, th Thresholds) (domain.ExitReason, string, bool) {
	reverted := false
	var detail string
	switch side {
	case domain.PositionShortALongB:
		if z <= th.Exit {
			reverted = true
			detail = fmt.Sprintf("Mean reversion: Z=%.2f crossed below %g", z, th.Exit)
		}
	case domain.PositionLongAShortB:
		if z >= th.Exit {
			reverted = true
			detail = fmt.Sprintf("Mean reversion: Z=%.2f crossed above %g", z, th.Exit)
		}
	}
	stopped := math.Abs(z) > th.StopLoss
	stopDetail := fmt.Sprintf("STOP LOSS: Z=%.2f exceeded %g", z, th.StopLoss)

	switch {
	case stopped && th.StopLossFirst:
		return domain.ExitStopLoss, stopDetail, true
	case reverted:
		return domain.ExitMeanReversion, detail, true
	case stopped:
		return domain.ExitStopLoss, stopDetail, true
	}
	return "", "", false
}

// ExitPnL is the simulated percentage return of closing side at ratio,
// relative to the entry ratio. A missing or non-positive entry ratio yields 0.
func ExitPnL(side domain.PositionType, entryRatio *float64, ratio float64) float64 {
	if entryRatio == nil || *entryRatio <= 0 {
		return 0
	}
	r0 := *entryRatio
	switch side {
	case domain.PositionShortALongB:
		return (r0 - ratio) / r0 * 100
	case domain.PositionLongAShortB:
		return (ratio - r0) / r0 * 100
	}
	return 0
}
