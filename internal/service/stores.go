// Package service holds the application layer between the HTTP/CLI surfaces
// and the scanner engine: scanner management and background scan runs.
package service

import (
	"context"
	"time"

	"github.com/wonny/fluxscan/internal/storage"
	"github.com/wonny/fluxscan/internal/watchlist"
)

// ScannerStore persists scanner definitions.
type ScannerStore interface {
	Create(ctx context.Context, s *storage.Scanner) error
	Get(ctx context.Context, id int64) (*storage.Scanner, error)
	GetByName(ctx context.Context, name string) (*storage.Scanner, error)
	List(ctx context.Context, activeOnly bool) ([]*storage.Scanner, error)
	Update(ctx context.Context, s *storage.Scanner) error
	Delete(ctx context.Context, id int64) error
}

// WatchlistStore persists watchlists.
type WatchlistStore interface {
	Create(ctx context.Context, w *watchlist.Watchlist) error
	Get(ctx context.Context, id int64) (*watchlist.Watchlist, error)
	List(ctx context.Context) ([]*watchlist.Watchlist, error)
	Update(ctx context.Context, w *watchlist.Watchlist) error
	Delete(ctx context.Context, id int64) error
}

// HistoryStore records scan runs.
type HistoryStore interface {
	Start(ctx context.Context, scannerID int64, watchlistID *int64) (int64, error)
	Finish(ctx context.Context, id int64, status string, scanned, signals int, elapsed time.Duration, errMsg string) error
	Get(ctx context.Context, id int64) (*storage.History, error)
	Recent(ctx context.Context, scannerID int64, limit int) ([]*storage.History, error)
	Statistics(ctx context.Context, scannerID int64) (*storage.Statistics, error)
}

// ResultStore persists per-symbol results.
type ResultStore interface {
	SaveBatch(ctx context.Context, results []storage.Result) error
	Recent(ctx context.Context, f storage.ResultFilter) ([]*storage.Result, error)
	CleanupOlderThan(ctx context.Context, days int) (int64, error)
}

var (
	_ ScannerStore   = (*storage.ScannerRepository)(nil)
	_ WatchlistStore = (*storage.WatchlistRepository)(nil)
	_ HistoryStore   = (*storage.HistoryRepository)(nil)
	_ ResultStore    = (*storage.ResultRepository)(nil)
)
