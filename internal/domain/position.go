package domain

import (
	"fmt"
	"time"
)

// PositionType is the leg orientation of a pair position.
type PositionType string

const (
	PositionFlat        PositionType = "NONE"
	PositionShortALongB PositionType = "SHORT_A_LONG_B"
	PositionLongAShortB PositionType = "LONG_A_SHORT_B"
)

// PositionState is the persisted per-pair position. A flat state has
// IsActive=false and no entry values.
type PositionState struct {
	PairID      string
	Name        string
	IsActive    bool
	Type        PositionType
	EntryZScore *float64
	EntryRatio  *float64
	UpdatedAt   time.Time
}

// FlatState returns the initial state for a pair.
func FlatState(pairID string) PositionState {
	return PositionState{PairID: pairID, Type: PositionFlat}
}

// Validate enforces FLAT <=> !IsActive <=> no entry values.
func (s PositionState) Validate() error {
	switch s.Type {
	case PositionFlat, "":
		if s.IsActive || s.EntryZScore != nil || s.EntryRatio != nil {
			return fmt.Errorf("%w: flat %s carries entry data", ErrInvalidState, s.PairID)
		}
	case PositionShortALongB, PositionLongAShortB:
		if !s.IsActive || s.EntryZScore == nil || s.EntryRatio == nil {
			return fmt.Errorf("%w: %s %s missing entry data", ErrInvalidState, s.Type, s.PairID)
		}
	default:
		return fmt.Errorf("%w: unknown position type %q", ErrInvalidState, s.Type)
	}
	return nil
}

// Flat reports whether no position is held.
func (s PositionState) Flat() bool { return !s.IsActive }
