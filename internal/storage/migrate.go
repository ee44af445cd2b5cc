package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/wonny/fluxscan/pkg/database"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS scanners (
		id          BIGSERIAL PRIMARY KEY,
		name        TEXT NOT NULL UNIQUE,
		description TEXT NOT NULL DEFAULT '',
		code        TEXT NOT NULL,
		parameters  JSONB NOT NULL DEFAULT '{}',
		category    TEXT NOT NULL DEFAULT 'custom',
		is_active   BOOLEAN NOT NULL DEFAULT TRUE,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS watchlists (
		id          BIGSERIAL PRIMARY KEY,
		name        TEXT NOT NULL UNIQUE,
		description TEXT NOT NULL DEFAULT '',
		exchange    TEXT NOT NULL DEFAULT 'NSE',
		symbols     JSONB NOT NULL DEFAULT '[]',
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS scan_schedules (
		id                BIGSERIAL PRIMARY KEY,
		scanner_id        BIGINT NOT NULL REFERENCES scanners(id) ON DELETE CASCADE,
		watchlist_id      BIGINT NOT NULL REFERENCES watchlists(id) ON DELETE CASCADE,
		schedule_type     TEXT NOT NULL,
		interval_minutes  INTEGER NOT NULL DEFAULT 0,
		run_time          TEXT NOT NULL DEFAULT '',
		days_of_week      JSONB NOT NULL DEFAULT '[]',
		parameters        JSONB NOT NULL DEFAULT '{}',
		is_active         BOOLEAN NOT NULL DEFAULT TRUE,
		market_hours_only BOOLEAN NOT NULL DEFAULT TRUE,
		last_run          TIMESTAMPTZ,
		next_run          TIMESTAMPTZ,
		created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS scan_history (
		id                BIGSERIAL PRIMARY KEY,
		scanner_id        BIGINT NOT NULL REFERENCES scanners(id) ON DELETE CASCADE,
		watchlist_id      BIGINT REFERENCES watchlists(id) ON DELETE SET NULL,
		status            TEXT NOT NULL DEFAULT 'running',
		symbols_scanned   INTEGER NOT NULL DEFAULT 0,
		signals_found     INTEGER NOT NULL DEFAULT 0,
		execution_time_ms BIGINT NOT NULL DEFAULT 0,
		error_message     TEXT NOT NULL DEFAULT '',
		started_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		completed_at      TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_scan_history_scanner ON scan_history (scanner_id, started_at DESC)`,
	`CREATE TABLE IF NOT EXISTS scan_results (
		id         BIGSERIAL PRIMARY KEY,
		scanner_id BIGINT NOT NULL REFERENCES scanners(id) ON DELETE CASCADE,
		history_id BIGINT REFERENCES scan_history(id) ON DELETE CASCADE,
		symbol     TEXT NOT NULL,
		exchange   TEXT NOT NULL,
		signal     TEXT NOT NULL,
		metrics    JSONB NOT NULL DEFAULT '{}',
		timestamp  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_scan_results_timestamp ON scan_results (timestamp DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_scan_results_scanner ON scan_results (scanner_id, timestamp DESC)`,
}

// Migrate creates the tables if they do not exist.
func Migrate(ctx context.Context, db *database.DB) error {
	return db.WithTx(ctx, func(tx pgx.Tx) error {
		for i, stmt := range schema {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("migration step %d: %w", i+1, err)
			}
		}
		return nil
	})
}
