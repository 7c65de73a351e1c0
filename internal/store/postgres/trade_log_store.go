package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/pairbot/internal/domain"
)

// TradeLogStore implements domain.TradeEventStore on the trade_logs table.
type TradeLogStore struct {
	pool *pgxpool.Pool
}

// NewTradeLogStore creates a new TradeLogStore backed by the given connection
// pool.
func NewTradeLogStore(pool *pgxpool.Pool) *TradeLogStore {
	return &TradeLogStore{pool: pool}
}

// Rows written before event ids existed fall back to their serial id.
const tradeSelectCols = `COALESCE(event_id::text, id::text), timestamp, pair, type,
	COALESCE(side, ''), COALESCE(price, 0), COALESCE(z_score, 0), pnl_percent,
	COALESCE(comment, ''), COALESCE(exit_reason, '')`

func scanTradeRows(rows pgx.Rows) ([]domain.TradeEvent, error) {
	var out []domain.TradeEvent
	for rows.Next() {
		var ev domain.TradeEvent
		var typ, side, reason string
		if err := rows.Scan(
			&ev.ID, &ev.Timestamp, &ev.PairID, &typ,
			&side, &ev.Ratio, &ev.ZScore, &ev.PnLPercent,
			&ev.Comment, &reason,
		); err != nil {
			return nil, err
		}
		ev.Type = domain.TradeEventType(typ)
		ev.Side = domain.PositionType(side)
		ev.ExitReason = domain.ExitReason(reason)
		out = append(out, ev)
	}
	return out, rows.Err()
}

// Insert appends one trade event. Re-inserting the same event id is a no-op.
func (s *TradeLogStore) Insert(ctx context.Context, ev domain.TradeEvent) error {
	const query = `
		INSERT INTO trade_logs (
			event_id, timestamp, pair, type, side,
			price, z_score, pnl_percent, comment, exit_reason
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, NULLIF($10, '')
		) ON CONFLICT (event_id) DO NOTHING`

	ts := ev.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	if _, err := s.pool.Exec(ctx, query,
		ev.ID, ts, ev.PairID, string(ev.Type), string(ev.Side),
		ev.Ratio, ev.ZScore, ev.PnLPercent, ev.Comment, string(ev.ExitReason),
	); err != nil {
		return fmt.Errorf("postgres: insert trade event %s: %w", ev.ID, err)
	}
	return nil
}

// List returns events newest first, optionally filtered by pair.
func (s *TradeLogStore) List(ctx context.Context, pairID string, opts domain.ListOpts) ([]domain.TradeEvent, error) {
	q := newListQuery(`SELECT ` + tradeSelectCols + ` FROM trade_logs`)
	if pairID != "" {
		q.where("pair", "=", pairID)
	}
	q.window("timestamp", opts)
	query, args := q.build("timestamp DESC", opts)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trade events: %w", err)
	}
	defer rows.Close()

	events, err := scanTradeRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan trade events: %w", err)
	}
	return events, nil
}

// ListBefore returns up to limit events older than before, oldest first.
func (s *TradeLogStore) ListBefore(ctx context.Context, before time.Time, limit int) ([]domain.TradeEvent, error) {
	query := `SELECT ` + tradeSelectCols + ` FROM trade_logs
		WHERE timestamp < $1 ORDER BY timestamp ASC LIMIT $2`

	rows, err := s.pool.Query(ctx, query, before, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trade events before %s: %w", before.Format(time.RFC3339), err)
	}
	defer rows.Close()

	events, err := scanTradeRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan trade events: %w", err)
	}
	return events, nil
}

// DeleteBefore removes the given archived events. Only rows older than
// before are touched, so a stray id cannot delete a live row.
func (s *TradeLogStore) DeleteBefore(ctx context.Context, before time.Time, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	const query = `
		DELETE FROM trade_logs
		WHERE timestamp < $1
		  AND COALESCE(event_id::text, id::text) = ANY($2)`

	tag, err := s.pool.Exec(ctx, query, before, ids)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete archived trade events: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Compile-time interface check.
var _ domain.TradeEventStore = (*TradeLogStore)(nil)
