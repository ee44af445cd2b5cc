package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/fluxscan/internal/watchlist"
)

// WatchlistRepository stores watchlists with their symbols as JSONB.
type WatchlistRepository struct {
	pool *pgxpool.Pool
}

// NewWatchlistRepository creates a new watchlist repository
func NewWatchlistRepository(pool *pgxpool.Pool) *WatchlistRepository {
	return &WatchlistRepository{pool: pool}
}

const watchlistColumns = `id, name, description, exchange, symbols, created_at, updated_at`

func scanWatchlist(row pgx.Row) (*watchlist.Watchlist, error) {
	var w watchlist.Watchlist
	err := row.Scan(&w.ID, &w.Name, &w.Description, &w.Exchange, &w.Symbols, &w.CreatedAt, &w.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if w.Symbols == nil {
		w.Symbols = []watchlist.Entry{}
	}
	return &w, nil
}

// Create inserts w and fills its ID and timestamps.
func (r *WatchlistRepository) Create(ctx context.Context, w *watchlist.Watchlist) error {
	if w.Symbols == nil {
		w.Symbols = []watchlist.Entry{}
	}
	query := `
		INSERT INTO watchlists (name, description, exchange, symbols)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at`

	err := r.pool.QueryRow(ctx, query, w.Name, w.Description, w.Exchange, w.Symbols).
		Scan(&w.ID, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create watchlist: %w", uniqueViolation(err))
	}
	return nil
}

// Get returns one watchlist by id.
func (r *WatchlistRepository) Get(ctx context.Context, id int64) (*watchlist.Watchlist, error) {
	w, err := scanWatchlist(r.pool.QueryRow(ctx,
		`SELECT `+watchlistColumns+` FROM watchlists WHERE id = $1`, id))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("failed to get watchlist %d: %w", id, err)
	}
	return w, err
}

// List returns all watchlists ordered by name.
func (r *WatchlistRepository) List(ctx context.Context) ([]*watchlist.Watchlist, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+watchlistColumns+` FROM watchlists ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query watchlists: %w", err)
	}
	defer rows.Close()

	var out []*watchlist.Watchlist
	for rows.Next() {
		w, err := scanWatchlist(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		out = append(out, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return out, nil
}

// Update overwrites name, description, exchange and symbols.
func (r *WatchlistRepository) Update(ctx context.Context, w *watchlist.Watchlist) error {
	query := `
		UPDATE watchlists SET
			name = $2, description = $3, exchange = $4, symbols = $5, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`

	err := r.pool.QueryRow(ctx, query, w.ID, w.Name, w.Description, w.Exchange, w.Symbols).
		Scan(&w.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to update watchlist %d: %w", w.ID, uniqueViolation(err))
	}
	return nil
}

// Delete removes a watchlist.
func (r *WatchlistRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM watchlists WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete watchlist %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
