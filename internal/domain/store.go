package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// StateStore persists per-pair position state. Load returns ErrNotFound for a
// pair that has never been saved.
type StateStore interface {
	Load(ctx context.Context, pairID string) (PositionState, error)
	Save(ctx context.Context, state PositionState) error
	Seed(ctx context.Context, pairs []Pair) error
	List(ctx context.Context) ([]PositionState, error)
}

// TradeEventStore persists the append-only trade log.
type TradeEventStore interface {
	Insert(ctx context.Context, ev TradeEvent) error
	List(ctx context.Context, pairID string, opts ListOpts) ([]TradeEvent, error)
	ListBefore(ctx context.Context, before time.Time, limit int) ([]TradeEvent, error)
	DeleteBefore(ctx context.Context, before time.Time, ids []string) (int64, error)
}

// SentimentStore persists market-sentiment readings consumed by the risk gate.
type SentimentStore interface {
	Latest(ctx context.Context) (RiskReading, error)
	Insert(ctx context.Context, r RiskReading) (RiskReading, error)
	List(ctx context.Context, opts ListOpts) ([]RiskReading, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, event string, opts ListOpts) ([]AuditEntry, error)
}
