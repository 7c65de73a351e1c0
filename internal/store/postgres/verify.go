package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// RequiredTables are the tables the engine reads and writes.
var RequiredTables = []string{"bot_state", "trade_logs", "market_sentiment"}

// VerifyTables reports existence and row count for each named table. A
// missing table is reported, not returned as an error.
func (c *Client) VerifyTables(ctx context.Context, names []string) ([]TableStatus, error) {
	out := make([]TableStatus, 0, len(names))
	for _, name := range names {
		st := TableStatus{Name: name}

		var exists bool
		if err := c.pool.QueryRow(ctx, `SELECT to_regclass($1) IS NOT NULL`, "public."+name).Scan(&exists); err != nil {
			return nil, fmt.Errorf("postgres: check table %s: %w", name, err)
		}
		st.Exists = exists
		if exists {
			query := `SELECT COUNT(*) FROM ` + pgx.Identifier{name}.Sanitize()
			if err := c.pool.QueryRow(ctx, query).Scan(&st.Rows); err != nil {
				return nil, fmt.Errorf("postgres: count %s: %w", name, err)
			}
		}
		out = append(out, st)
	}
	return out, nil
}

// TableStatus reports whether a table exists and how many rows it holds.
type TableStatus struct {
	Name   string
	Exists bool
	Rows   int64
}
