package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ResultRepository stores per-symbol scan results.
type ResultRepository struct {
	pool *pgxpool.Pool
}

// NewResultRepository creates a new result repository
func NewResultRepository(pool *pgxpool.Pool) *ResultRepository {
	return &ResultRepository{pool: pool}
}

// SaveBatch inserts results in one round trip.
func (r *ResultRepository) SaveBatch(ctx context.Context, results []Result) error {
	if len(results) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	query := `
		INSERT INTO scan_results (scanner_id, history_id, symbol, exchange, signal, metrics, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	for _, res := range results {
		metrics := res.Metrics
		if metrics == nil {
			metrics = map[string]interface{}{}
		}
		ts := res.Timestamp
		if ts.IsZero() {
			ts = time.Now()
		}
		batch.Queue(query, res.ScannerID, res.HistoryID, res.Symbol, res.Exchange, res.Signal, metrics, ts)
	}

	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()

	for _, res := range results {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("failed to save result for %s: %w", res.Symbol, err)
		}
	}
	return nil
}

// ResultFilter narrows Recent. Zero values match everything.
type ResultFilter struct {
	ScannerID int64
	HistoryID int64
	Signal    string
	Limit     int
}

// Recent returns results newest first.
func (r *ResultRepository) Recent(ctx context.Context, f ResultFilter) ([]*Result, error) {
	if f.Limit <= 0 {
		f.Limit = 100
	}
	query := `
		SELECT id, scanner_id, history_id, symbol, exchange, signal, metrics, timestamp
		FROM scan_results
		WHERE ($1 = 0 OR scanner_id = $1)
		  AND ($2 = 0 OR history_id = $2)
		  AND ($3 = '' OR signal = $3)
		ORDER BY timestamp DESC, id DESC
		LIMIT $4`

	rows, err := r.pool.Query(ctx, query, f.ScannerID, f.HistoryID, f.Signal, f.Limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query scan results: %w", err)
	}
	defer rows.Close()

	var out []*Result
	for rows.Next() {
		var res Result
		if err := rows.Scan(&res.ID, &res.ScannerID, &res.HistoryID, &res.Symbol,
			&res.Exchange, &res.Signal, &res.Metrics, &res.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		out = append(out, &res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return out, nil
}

// CleanupOlderThan deletes results older than the given number of days and
// returns how many rows went.
func (r *ResultRepository) CleanupOlderThan(ctx context.Context, days int) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM scan_results WHERE timestamp < NOW() - make_interval(days => $1)`, days)
	if err != nil {
		return 0, fmt.Errorf("failed to clean up scan results: %w", err)
	}
	return tag.RowsAffected(), nil
}
