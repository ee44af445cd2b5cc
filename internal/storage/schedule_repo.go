package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ScheduleRepository stores scan schedules.
type ScheduleRepository struct {
	pool *pgxpool.Pool
}

// NewScheduleRepository creates a new schedule repository
func NewScheduleRepository(pool *pgxpool.Pool) *ScheduleRepository {
	return &ScheduleRepository{pool: pool}
}

const scheduleColumns = `id, scanner_id, watchlist_id, schedule_type, interval_minutes, run_time,
	days_of_week, parameters, is_active, market_hours_only, last_run, next_run, created_at`

func scanSchedule(row pgx.Row) (*Schedule, error) {
	var s Schedule
	err := row.Scan(&s.ID, &s.ScannerID, &s.WatchlistID, &s.ScheduleType, &s.IntervalMinutes,
		&s.RunTime, &s.DaysOfWeek, &s.Parameters, &s.IsActive, &s.MarketHoursOnly,
		&s.LastRun, &s.NextRun, &s.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Create inserts s and fills its ID.
func (r *ScheduleRepository) Create(ctx context.Context, s *Schedule) error {
	if s.DaysOfWeek == nil {
		s.DaysOfWeek = []int{}
	}
	if s.Parameters == nil {
		s.Parameters = map[string]interface{}{}
	}
	query := `
		INSERT INTO scan_schedules (
			scanner_id, watchlist_id, schedule_type, interval_minutes, run_time,
			days_of_week, parameters, is_active, market_hours_only, next_run
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at`

	err := r.pool.QueryRow(ctx, query,
		s.ScannerID, s.WatchlistID, s.ScheduleType, s.IntervalMinutes, s.RunTime,
		s.DaysOfWeek, s.Parameters, s.IsActive, s.MarketHoursOnly, s.NextRun,
	).Scan(&s.ID, &s.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create schedule: %w", err)
	}
	return nil
}

// Get returns one schedule by id.
func (r *ScheduleRepository) Get(ctx context.Context, id int64) (*Schedule, error) {
	s, err := scanSchedule(r.pool.QueryRow(ctx,
		`SELECT `+scheduleColumns+` FROM scan_schedules WHERE id = $1`, id))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("failed to get schedule %d: %w", id, err)
	}
	return s, err
}

// List returns schedules ordered by id, optionally only active ones.
func (r *ScheduleRepository) List(ctx context.Context, activeOnly bool) ([]*Schedule, error) {
	query := `SELECT ` + scheduleColumns + ` FROM scan_schedules`
	if activeOnly {
		query += ` WHERE is_active`
	}
	query += ` ORDER BY id`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query schedules: %w", err)
	}
	defer rows.Close()

	var out []*Schedule
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return out, nil
}

// SetActive enables or disables a schedule.
func (r *ScheduleRepository) SetActive(ctx context.Context, id int64, active bool) error {
	tag, err := r.pool.Exec(ctx, `UPDATE scan_schedules SET is_active = $2 WHERE id = $1`, id, active)
	if err != nil {
		return fmt.Errorf("failed to update schedule %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkExecuted records a run. A nil next deactivates the schedule, which is
// how one-shot schedules retire.
func (r *ScheduleRepository) MarkExecuted(ctx context.Context, id int64, ranAt time.Time, next *time.Time) error {
	query := `
		UPDATE scan_schedules SET
			last_run = $2, next_run = $3, is_active = is_active AND $3::timestamptz IS NOT NULL
		WHERE id = $1`

	tag, err := r.pool.Exec(ctx, query, id, ranAt, next)
	if err != nil {
		return fmt.Errorf("failed to mark schedule %d executed: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Reschedule moves the next run without recording an execution.
func (r *ScheduleRepository) Reschedule(ctx context.Context, id int64, next *time.Time) error {
	tag, err := r.pool.Exec(ctx, `UPDATE scan_schedules SET next_run = $2 WHERE id = $1`, id, next)
	if err != nil {
		return fmt.Errorf("failed to reschedule %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a schedule.
func (r *ScheduleRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM scan_schedules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete schedule %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
