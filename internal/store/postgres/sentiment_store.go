package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/pairbot/internal/domain"
)

// SentimentStore implements domain.SentimentStore on the market_sentiment
// table.
type SentimentStore struct {
	pool *pgxpool.Pool
}

// NewSentimentStore creates a new SentimentStore backed by the given
// connection pool.
func NewSentimentStore(pool *pgxpool.Pool) *SentimentStore {
	return &SentimentStore{pool: pool}
}

const sentimentSelectCols = `id, timestamp, risk_score, sentiment, COALESCE(summary, '')`

func scanSentiment(row pgx.Row) (domain.RiskReading, error) {
	var r domain.RiskReading
	var sentiment string
	if err := row.Scan(&r.ID, &r.Timestamp, &r.Score, &sentiment, &r.Summary); err != nil {
		return domain.RiskReading{}, err
	}
	r.Sentiment = domain.RiskLevel(sentiment)
	return r, nil
}

// Latest returns the most recent reading, or domain.ErrNotFound when the
// table is empty.
func (s *SentimentStore) Latest(ctx context.Context) (domain.RiskReading, error) {
	query := `SELECT ` + sentimentSelectCols + ` FROM market_sentiment ORDER BY timestamp DESC, id DESC LIMIT 1`

	r, err := scanSentiment(s.pool.QueryRow(ctx, query))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.RiskReading{}, domain.ErrNotFound
		}
		return domain.RiskReading{}, fmt.Errorf("postgres: latest sentiment: %w", err)
	}
	return r, nil
}

// Insert stores a reading and returns it with its assigned id and timestamp.
// A zero timestamp defaults to now.
func (s *SentimentStore) Insert(ctx context.Context, r domain.RiskReading) (domain.RiskReading, error) {
	const query = `
		INSERT INTO market_sentiment (timestamp, risk_score, sentiment, summary)
		VALUES (COALESCE($1, NOW()), $2, $3, $4)
		RETURNING ` + sentimentSelectCols

	var ts any
	if !r.Timestamp.IsZero() {
		ts = r.Timestamp
	}
	out, err := scanSentiment(s.pool.QueryRow(ctx, query, ts, r.Score, string(r.Sentiment), r.Summary))
	if err != nil {
		return domain.RiskReading{}, fmt.Errorf("postgres: insert sentiment: %w", err)
	}
	return out, nil
}

// List returns readings newest first.
func (s *SentimentStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.RiskReading, error) {
	q := newListQuery(`SELECT ` + sentimentSelectCols + ` FROM market_sentiment`)
	q.window("timestamp", opts)
	query, args := q.build("timestamp DESC, id DESC", opts)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list sentiment: %w", err)
	}
	defer rows.Close()

	var out []domain.RiskReading
	for rows.Next() {
		r, err := scanSentiment(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan sentiment: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list sentiment rows: %w", err)
	}
	return out, nil
}

// Compile-time interface check.
var _ domain.SentimentStore = (*SentimentStore)(nil)
