package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/pairbot/internal/domain"
)

// StateStore implements domain.StateStore on the bot_state table.
type StateStore struct {
	pool *pgxpool.Pool
}

// NewStateStore creates a new StateStore backed by the given connection pool.
func NewStateStore(pool *pgxpool.Pool) *StateStore {
	return &StateStore{pool: pool}
}

const stateSelectCols = `symbol, name, is_active, position_type, entry_z, entry_ratio, last_updated`

func scanState(row pgx.Row) (domain.PositionState, error) {
	var s domain.PositionState
	var posType *string

	if err := row.Scan(&s.PairID, &s.Name, &s.IsActive, &posType, &s.EntryZScore, &s.EntryRatio, &s.UpdatedAt); err != nil {
		return domain.PositionState{}, err
	}
	s.Type = domain.PositionFlat
	if posType != nil && *posType != "" {
		s.Type = domain.PositionType(*posType)
	}
	return s, nil
}

// Load returns the stored state for pairID, or domain.ErrNotFound.
func (s *StateStore) Load(ctx context.Context, pairID string) (domain.PositionState, error) {
	query := `SELECT ` + stateSelectCols + ` FROM bot_state WHERE symbol = $1`

	st, err := scanState(s.pool.QueryRow(ctx, query, pairID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.PositionState{}, domain.ErrNotFound
		}
		return domain.PositionState{}, fmt.Errorf("postgres: load state %s: %w", pairID, err)
	}
	return st, nil
}

// Save upserts the state row. A flat state is written with NULL position
// type and entry values.
func (s *StateStore) Save(ctx context.Context, st domain.PositionState) error {
	if err := st.Validate(); err != nil {
		return fmt.Errorf("postgres: save state %s: %w", st.PairID, err)
	}

	var posType *string
	if st.IsActive {
		t := string(st.Type)
		posType = &t
	}

	const query = `
		INSERT INTO bot_state (symbol, name, is_active, position_type, entry_z, entry_ratio, last_updated)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (symbol) DO UPDATE SET
			name          = CASE WHEN EXCLUDED.name <> '' THEN EXCLUDED.name ELSE bot_state.name END,
			is_active     = EXCLUDED.is_active,
			position_type = EXCLUDED.position_type,
			entry_z       = EXCLUDED.entry_z,
			entry_ratio   = EXCLUDED.entry_ratio,
			last_updated  = NOW()`

	if _, err := s.pool.Exec(ctx, query,
		st.PairID, st.Name, st.IsActive, posType, st.EntryZScore, st.EntryRatio,
	); err != nil {
		return fmt.Errorf("postgres: save state %s: %w", st.PairID, err)
	}
	return nil
}

// Seed inserts a flat row for every pair that has none. Existing rows keep
// their position and only pick up the configured display name.
func (s *StateStore) Seed(ctx context.Context, pairs []domain.Pair) error {
	if len(pairs) == 0 {
		return nil
	}

	const query = `
		INSERT INTO bot_state (symbol, name, is_active)
		VALUES ($1, $2, FALSE)
		ON CONFLICT (symbol) DO UPDATE SET name = EXCLUDED.name`

	batch := &pgx.Batch{}
	for _, p := range pairs {
		batch.Queue(query, p.ID, p.Name)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range pairs {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: seed state %s: %w", pairs[i].ID, err)
		}
	}
	return nil
}

// List returns every stored state ordered by pair.
func (s *StateStore) List(ctx context.Context) ([]domain.PositionState, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+stateSelectCols+` FROM bot_state ORDER BY symbol`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list states: %w", err)
	}
	defer rows.Close()

	var out []domain.PositionState
	for rows.Next() {
		st, err := scanState(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan state: %w", err)
		}
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list states rows: %w", err)
	}
	return out, nil
}

// Compile-time interface check.
var _ domain.StateStore = (*StateStore)(nil)
