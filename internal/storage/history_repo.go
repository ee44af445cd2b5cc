package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// HistoryRepository records scan runs.
type HistoryRepository struct {
	pool *pgxpool.Pool
}

// NewHistoryRepository creates a new history repository
func NewHistoryRepository(pool *pgxpool.Pool) *HistoryRepository {
	return &HistoryRepository{pool: pool}
}

const historyColumns = `id, scanner_id, watchlist_id, status, symbols_scanned, signals_found,
	execution_time_ms, error_message, started_at, completed_at`

func scanHistory(row pgx.Row) (*History, error) {
	var h History
	err := row.Scan(&h.ID, &h.ScannerID, &h.WatchlistID, &h.Status, &h.SymbolsScanned,
		&h.SignalsFound, &h.ExecutionTimeMs, &h.ErrorMessage, &h.StartedAt, &h.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &h, nil
}

// Start opens a running history record and returns its id.
func (r *HistoryRepository) Start(ctx context.Context, scannerID int64, watchlistID *int64) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO scan_history (scanner_id, watchlist_id, status)
		VALUES ($1, $2, 'running')
		RETURNING id`, scannerID, watchlistID).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to start scan history: %w", err)
	}
	return id, nil
}

// Finish closes a history record with a terminal status.
func (r *HistoryRepository) Finish(ctx context.Context, id int64, status string, scanned, signals int, elapsed time.Duration, errMsg string) error {
	query := `
		UPDATE scan_history SET
			status = $2, symbols_scanned = $3, signals_found = $4,
			execution_time_ms = $5, error_message = $6, completed_at = NOW()
		WHERE id = $1`

	tag, err := r.pool.Exec(ctx, query, id, status, scanned, signals, elapsed.Milliseconds(), errMsg)
	if err != nil {
		return fmt.Errorf("failed to finish scan history %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Get returns one history record.
func (r *HistoryRepository) Get(ctx context.Context, id int64) (*History, error) {
	h, err := scanHistory(r.pool.QueryRow(ctx,
		`SELECT `+historyColumns+` FROM scan_history WHERE id = $1`, id))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("failed to get scan history %d: %w", id, err)
	}
	return h, err
}

// Recent returns the latest runs, newest first. scannerID 0 means all scanners.
func (r *HistoryRepository) Recent(ctx context.Context, scannerID int64, limit int) ([]*History, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+historyColumns+` FROM scan_history
		WHERE $1 = 0 OR scanner_id = $1
		ORDER BY started_at DESC, id DESC
		LIMIT $2`, scannerID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query scan history: %w", err)
	}
	defer rows.Close()

	var out []*History
	for rows.Next() {
		h, err := scanHistory(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return out, nil
}

// Statistics aggregates the history of one scanner.
func (r *HistoryRepository) Statistics(ctx context.Context, scannerID int64) (*Statistics, error) {
	query := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'completed'),
			COALESCE(SUM(signals_found), 0),
			MAX(started_at)
		FROM scan_history
		WHERE scanner_id = $1`

	var st Statistics
	err := r.pool.QueryRow(ctx, query, scannerID).
		Scan(&st.TotalScans, &st.SuccessfulScans, &st.TotalSignals, &st.LastRun)
	if err != nil {
		return nil, fmt.Errorf("failed to compute statistics for scanner %d: %w", scannerID, err)
	}
	st.Derive()
	return &st, nil
}

// Derive fills the ratio fields from the counts.
func (s *Statistics) Derive() {
	s.SuccessRate = 0
	s.AvgSignalsPerScan = 0
	if s.TotalScans > 0 {
		s.SuccessRate = float64(s.SuccessfulScans) / float64(s.TotalScans) * 100
	}
	if s.SuccessfulScans > 0 {
		s.AvgSignalsPerScan = float64(s.TotalSignals) / float64(s.SuccessfulScans)
	}
}
