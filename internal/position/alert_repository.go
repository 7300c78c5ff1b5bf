package position

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/dragon/internal/contracts"
)

// AlertRepository implements contracts.AlertRepository
// ⭐ SSOT: 매도 알림 저장소는 여기서만
type AlertRepository struct {
	pool *pgxpool.Pool
}

// NewAlertRepository creates a new alert repository
func NewAlertRepository(pool *pgxpool.Pool) *AlertRepository {
	return &AlertRepository{pool: pool}
}

// Insert stores a new alert. 생성 후 resolved_at 외에는 불변.
func (r *AlertRepository) Insert(ctx context.Context, a *contracts.SellAlert) error {
	query := `
		INSERT INTO data.sell_alerts (ticker_id, alert_date, close_price, kijun_value, reason)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`
	return r.pool.QueryRow(ctx, query,
		a.TickerID, a.AlertDate, a.ClosePrice, a.KijunValue, a.Reason,
	).Scan(&a.ID)
}

// List returns alerts, optionally only unresolved ones, newest first
func (r *AlertRepository) List(ctx context.Context, unresolvedOnly bool) ([]contracts.SellAlert, error) {
	query := `
		SELECT a.id, a.ticker_id, t.symbol, a.alert_date, a.close_price,
		       a.kijun_value, a.reason, a.resolved_at
		FROM data.sell_alerts a
		JOIN data.tickers t ON t.id = a.ticker_id
		WHERE NOT $1 OR a.resolved_at IS NULL
		ORDER BY a.alert_date DESC, a.id DESC
	`

	rows, err := r.pool.Query(ctx, query, unresolvedOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var alerts []contracts.SellAlert
	for rows.Next() {
		var a contracts.SellAlert
		if err := rows.Scan(
			&a.ID, &a.TickerID, &a.Symbol, &a.AlertDate, &a.ClosePrice,
			&a.KijunValue, &a.Reason, &a.ResolvedAt,
		); err != nil {
			return nil, err
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

// Resolve stamps an alert's resolution time
func (r *AlertRepository) Resolve(ctx context.Context, id int64, at time.Time) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE data.sell_alerts SET resolved_at = $2 WHERE id = $1 AND resolved_at IS NULL`,
		id, at,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return contracts.ErrNotFound
	}
	return nil
}

// DeleteResolvedBefore prunes old resolved alerts (maintenance job)
func (r *AlertRepository) DeleteResolvedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM data.sell_alerts WHERE resolved_at IS NOT NULL AND resolved_at < $1`,
		cutoff,
	)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}
