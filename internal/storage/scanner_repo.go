package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ScannerRepository stores scanner definitions.
type ScannerRepository struct {
	pool *pgxpool.Pool
}

// NewScannerRepository creates a new scanner repository
func NewScannerRepository(pool *pgxpool.Pool) *ScannerRepository {
	return &ScannerRepository{pool: pool}
}

const scannerColumns = `id, name, description, code, parameters, category, is_active, created_at, updated_at`

func scanScanner(row pgx.Row) (*Scanner, error) {
	var s Scanner
	err := row.Scan(&s.ID, &s.Name, &s.Description, &s.Code, &s.Parameters,
		&s.Category, &s.IsActive, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if s.Parameters == nil {
		s.Parameters = map[string]interface{}{}
	}
	return &s, nil
}

// Create inserts s and fills its ID and timestamps.
func (r *ScannerRepository) Create(ctx context.Context, s *Scanner) error {
	if s.Parameters == nil {
		s.Parameters = map[string]interface{}{}
	}
	if s.Category == "" {
		s.Category = "custom"
	}
	query := `
		INSERT INTO scanners (name, description, code, parameters, category, is_active)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`

	err := r.pool.QueryRow(ctx, query,
		s.Name, s.Description, s.Code, s.Parameters, s.Category, s.IsActive,
	).Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create scanner: %w", uniqueViolation(err))
	}
	return nil
}

// Get returns one scanner by id.
func (r *ScannerRepository) Get(ctx context.Context, id int64) (*Scanner, error) {
	s, err := scanScanner(r.pool.QueryRow(ctx,
		`SELECT `+scannerColumns+` FROM scanners WHERE id = $1`, id))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("failed to get scanner %d: %w", id, err)
	}
	return s, err
}

// GetByName returns one scanner by its unique name.
func (r *ScannerRepository) GetByName(ctx context.Context, name string) (*Scanner, error) {
	s, err := scanScanner(r.pool.QueryRow(ctx,
		`SELECT `+scannerColumns+` FROM scanners WHERE name = $1`, name))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("failed to get scanner %q: %w", name, err)
	}
	return s, err
}

// List returns scanners ordered by name, optionally only active ones.
func (r *ScannerRepository) List(ctx context.Context, activeOnly bool) ([]*Scanner, error) {
	query := `SELECT ` + scannerColumns + ` FROM scanners`
	if activeOnly {
		query += ` WHERE is_active`
	}
	query += ` ORDER BY name`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query scanners: %w", err)
	}
	defer rows.Close()

	var out []*Scanner
	for rows.Next() {
		s, err := scanScanner(rows)
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

// Update overwrites the editable fields of s.
func (r *ScannerRepository) Update(ctx context.Context, s *Scanner) error {
	query := `
		UPDATE scanners SET
			name = $2, description = $3, code = $4, parameters = $5,
			category = $6, is_active = $7, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`

	err := r.pool.QueryRow(ctx, query,
		s.ID, s.Name, s.Description, s.Code, s.Parameters, s.Category, s.IsActive,
	).Scan(&s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to update scanner %d: %w", s.ID, uniqueViolation(err))
	}
	return nil
}

// Delete removes a scanner and, by cascade, its schedules, history and results.
func (r *ScannerRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM scanners WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete scanner %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
