package position

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/dragon/internal/contracts"
)

// Repository implements contracts.PositionRepository
// ⭐ SSOT: 포지션 저장소는 여기서만
//
// open 포지션의 종목당 유일성은 partial unique index가 DB 차원에서 보장한다.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new position repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// FindOpenByTicker returns the open position for a ticker, if any
func (r *Repository) FindOpenByTicker(ctx context.Context, tickerID int64) (*contracts.Position, error) {
	query := `
		SELECT id, ticker_id, date_opened, status, confirmed_by_user,
		       last_evaluated_date, last_close, last_kijun
		FROM data.positions
		WHERE ticker_id = $1 AND status = 'open'
	`
	return r.scanOne(r.pool.QueryRow(ctx, query, tickerID))
}

// ListOpen returns all open positions
func (r *Repository) ListOpen(ctx context.Context) ([]contracts.Position, error) {
	query := `
		SELECT id, ticker_id, date_opened, status, confirmed_by_user,
		       last_evaluated_date, last_close, last_kijun
		FROM data.positions
		WHERE status = 'open'
		ORDER BY id
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var positions []contracts.Position
	for rows.Next() {
		var p contracts.Position
		if err := rows.Scan(
			&p.ID, &p.TickerID, &p.DateOpened, &p.Status, &p.ConfirmedByUser,
			&p.LastEvaluatedDate, &p.LastClose, &p.LastKijun,
		); err != nil {
			return nil, err
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// Create inserts a new open position
func (r *Repository) Create(ctx context.Context, p *contracts.Position) error {
	query := `
		INSERT INTO data.positions (ticker_id, date_opened, status, confirmed_by_user)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`
	return r.pool.QueryRow(ctx, query,
		p.TickerID, p.DateOpened, p.Status, p.ConfirmedByUser,
	).Scan(&p.ID)
}

// UpdateSnapshot refreshes the last-evaluation snapshot without closing
func (r *Repository) UpdateSnapshot(ctx context.Context, id int64, evaluatedDate time.Time, lastClose, lastKijun float64) error {
	query := `
		UPDATE data.positions
		SET last_evaluated_date = $2, last_close = $3, last_kijun = $4
		WHERE id = $1 AND status = 'open'
	`
	tag, err := r.pool.Exec(ctx, query, id, evaluatedDate, lastClose, lastKijun)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return contracts.ErrNotFound
	}
	return nil
}

// Close transitions a position to closed, recording the final snapshot
func (r *Repository) Close(ctx context.Context, id int64, evaluatedDate time.Time, lastClose, lastKijun float64) error {
	query := `
		UPDATE data.positions
		SET status = 'closed', last_evaluated_date = $2, last_close = $3, last_kijun = $4
		WHERE id = $1 AND status = 'open'
	`
	tag, err := r.pool.Exec(ctx, query, id, evaluatedDate, lastClose, lastKijun)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return contracts.ErrNotFound
	}
	return nil
}

func (r *Repository) scanOne(row pgx.Row) (*contracts.Position, error) {
	var p contracts.Position
	err := row.Scan(
		&p.ID, &p.TickerID, &p.DateOpened, &p.Status, &p.ConfirmedByUser,
		&p.LastEvaluatedDate, &p.LastClose, &p.LastKijun,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, contracts.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}
