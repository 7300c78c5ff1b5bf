package indicator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/dragon/internal/contracts"
)

// Repository implements contracts.IndicatorRepository
// ⭐ SSOT: 지표 저장소는 여기서만
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new indicator repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ReplaceForTicker atomically replaces the full indicator series for a ticker.
// delete+insert를 한 트랜잭션으로 묶어 full-replace 계약을 지킨다.
func (r *Repository) ReplaceForTicker(ctx context.Context, tickerID int64, rows []contracts.IndicatorRow) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin replace tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM data.indicator_rows WHERE ticker_id = $1`, tickerID); err != nil {
		return fmt.Errorf("delete indicator rows: %w", err)
	}

	batch := &pgx.Batch{}
	for _, row := range rows {
		batch.Queue(`
			INSERT INTO data.indicator_rows (
				ticker_id, bar_date, tenkan, kijun, senkou_a, senkou_b, chikou,
				tenkan_slope, kijun_slope, price_kijun_ratio, tk_distance
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		`,
			row.TickerID, row.Date, row.Tenkan, row.Kijun, row.SenkouA, row.SenkouB,
			row.Chikou, row.TenkanSlope, row.KijunSlope, row.PriceKijunRatio, row.TKDistance,
		)
	}

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert indicator rows: %w", err)
	}

	return tx.Commit(ctx)
}

// GetByTickerAndDate retrieves the row for an exact calendar date
func (r *Repository) GetByTickerAndDate(ctx context.Context, tickerID int64, date time.Time) (*contracts.IndicatorRow, error) {
	query := `
		SELECT ticker_id, bar_date, tenkan, kijun, senkou_a, senkou_b, chikou,
		       tenkan_slope, kijun_slope, price_kijun_ratio, tk_distance
		FROM data.indicator_rows
		WHERE ticker_id = $1 AND bar_date = $2
	`
	return r.scanOne(r.pool.QueryRow(ctx, query, tickerID, date))
}

// LatestByTicker retrieves the most recent row for a ticker
func (r *Repository) LatestByTicker(ctx context.Context, tickerID int64) (*contracts.IndicatorRow, error) {
	query := `
		SELECT ticker_id, bar_date, tenkan, kijun, senkou_a, senkou_b, chikou,
		       tenkan_slope, kijun_slope, price_kijun_ratio, tk_distance
		FROM data.indicator_rows
		WHERE ticker_id = $1
		ORDER BY bar_date DESC
		LIMIT 1
	`
	return r.scanOne(r.pool.QueryRow(ctx, query, tickerID))
}

func (r *Repository) scanOne(row pgx.Row) (*contracts.IndicatorRow, error) {
	var ir contracts.IndicatorRow
	err := row.Scan(
		&ir.TickerID, &ir.Date, &ir.Tenkan, &ir.Kijun, &ir.SenkouA, &ir.SenkouB,
		&ir.Chikou, &ir.TenkanSlope, &ir.KijunSlope, &ir.PriceKijunRatio, &ir.TKDistance,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, contracts.ErrNotFound
		}
		return nil, err
	}
	return &ir, nil
}
