package universe

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/dragon/internal/contracts"
)

// Repository implements contracts.TickerRepository
// ⭐ SSOT: 종목 저장소는 여기서만
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new ticker repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// UpsertBySymbol inserts or updates a ticker keyed by symbol
func (r *Repository) UpsertBySymbol(ctx context.Context, t *contracts.Ticker) error {
	query := `
		INSERT INTO data.tickers (symbol, name, source_index, active, notes)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (symbol) DO UPDATE SET
			name = EXCLUDED.name,
			source_index = EXCLUDED.source_index,
			active = EXCLUDED.active
		RETURNING id
	`
	return r.pool.QueryRow(ctx, query,
		t.Symbol, t.Name, t.SourceIndex, t.Active, t.Notes,
	).Scan(&t.ID)
}

// GetBySymbol retrieves a ticker by its symbol
func (r *Repository) GetBySymbol(ctx context.Context, symbol string) (*contracts.Ticker, error) {
	query := `
		SELECT id, symbol, name, source_index, active, COALESCE(notes, '')
		FROM data.tickers
		WHERE symbol = $1
	`
	return r.scanOne(r.pool.QueryRow(ctx, query, symbol))
}

// GetByID retrieves a ticker by id
func (r *Repository) GetByID(ctx context.Context, id int64) (*contracts.Ticker, error) {
	query := `
		SELECT id, symbol, name, source_index, active, COALESCE(notes, '')
		FROM data.tickers
		WHERE id = $1
	`
	return r.scanOne(r.pool.QueryRow(ctx, query, id))
}

// ListActive returns all active tickers ordered by symbol
func (r *Repository) ListActive(ctx context.Context) ([]contracts.Ticker, error) {
	query := `
		SELECT id, symbol, name, source_index, active, COALESCE(notes, '')
		FROM data.tickers
		WHERE active
		ORDER BY symbol
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tickers []contracts.Ticker
	for rows.Next() {
		var t contracts.Ticker
		if err := rows.Scan(&t.ID, &t.Symbol, &t.Name, &t.SourceIndex, &t.Active, &t.Notes); err != nil {
			return nil, err
		}
		tickers = append(tickers, t)
	}
	return tickers, rows.Err()
}

// Count returns the total number of tickers, active or not
func (r *Repository) Count(ctx context.Context) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM data.tickers`).Scan(&count)
	return count, err
}

// Deactivate marks a ticker inactive. 물리 삭제는 하지 않는다.
func (r *Repository) Deactivate(ctx context.Context, symbol string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE data.tickers SET active = FALSE WHERE symbol = $1`, symbol)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return contracts.ErrNotFound
	}
	return nil
}

func (r *Repository) scanOne(row pgx.Row) (*contracts.Ticker, error) {
	var t contracts.Ticker
	err := row.Scan(&t.ID, &t.Symbol, &t.Name, &t.SourceIndex, &t.Active, &t.Notes)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, contracts.ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}
