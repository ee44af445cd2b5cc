// Package storage persists scanners, watchlists, schedules, scan history and
// scan results in PostgreSQL.
package storage

import (
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound is returned when a row lookup matches nothing.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when a unique name is already taken.
	ErrDuplicate = errors.New("already exists")
)

// uniqueViolation maps PostgreSQL unique_violation onto ErrDuplicate.
func uniqueViolation(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicate
	}
	return err
}

// Scanner is a stored scanner definition.
type Scanner struct {
	ID          int64                  `json:"id"`
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Code        string                 `json:"code"`
	Parameters  map[string]interface{} `json:"parameters"`
	Category    string                 `json:"category"`
	IsActive    bool                   `json:"is_active"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
}

// Schedule types.
const (
	ScheduleOnce     = "once"
	ScheduleInterval = "interval"
	ScheduleDaily    = "daily"
	ScheduleWeekly   = "weekly"
)

// Schedule runs a scanner against a watchlist on a recurring basis.
type Schedule struct {
	ID              int64                  `json:"id"`
	ScannerID       int64                  `json:"scanner_id"`
	WatchlistID     int64                  `json:"watchlist_id"`
	ScheduleType    string                 `json:"schedule_type"`
	IntervalMinutes int                    `json:"interval_minutes"`
	RunTime         string                 `json:"run_time"`     // HH:MM, IST
	DaysOfWeek      []int                  `json:"days_of_week"` // 0 = Sunday
	Parameters      map[string]interface{} `json:"parameters"`
	IsActive        bool                   `json:"is_active"`
	MarketHoursOnly bool                   `json:"market_hours_only"`
	LastRun         *time.Time             `json:"last_run"`
	NextRun         *time.Time             `json:"next_run"`
	CreatedAt       time.Time              `json:"created_at"`
}

// History statuses.
const (
	HistoryRunning   = "running"
	HistoryCompleted = "completed"
	HistoryFailed    = "failed"
	HistoryCancelled = "cancelled"
)

// History is one scan run.
type History struct {
	ID              int64      `json:"id"`
	ScannerID       int64      `json:"scanner_id"`
	WatchlistID     *int64     `json:"watchlist_id"`
	Status          string     `json:"status"`
	SymbolsScanned  int        `json:"symbols_scanned"`
	SignalsFound    int        `json:"signals_found"`
	ExecutionTimeMs int64      `json:"execution_time_ms"`
	ErrorMessage    string     `json:"error_message,omitempty"`
	StartedAt       time.Time  `json:"started_at"`
	CompletedAt     *time.Time `json:"completed_at"`
}

// Result is one persisted per-symbol scan result.
type Result struct {
	ID        int64                  `json:"id"`
	ScannerID int64                  `json:"scanner_id"`
	HistoryID *int64                 `json:"history_id"`
	Symbol    string                 `json:"symbol"`
	Exchange  string                 `json:"exchange"`
	Signal    string                 `json:"signal"`
	Metrics   map[string]interface{} `json:"metrics"`
	Timestamp time.Time              `json:"timestamp"`
}

// Statistics summarises the run history of one scanner.
type Statistics struct {
	TotalScans        int        `json:"total_scans"`
	SuccessfulScans   int        `json:"successful_scans"`
	SuccessRate       float64    `json:"success_rate"`
	TotalSignals      int        `json:"total_signals"`
	AvgSignalsPerScan float64    `json:"avg_signals_per_scan"`
	LastRun           *time.Time `json:"last_run"`
}
