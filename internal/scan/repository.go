package scan

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/dragon/internal/contracts"
)

// Repository implements contracts.CandidateRepository
// ⭐ SSOT: 후보 저장소는 여기서만
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new candidate repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ReplaceForDate atomically replaces the candidate set for a scan date.
// 같은 날짜로 두 번 스캔하면 두 번째 결과만 남아야 한다. 합집합 금지.
func (r *Repository) ReplaceForDate(ctx context.Context, scanDate time.Time, candidates []contracts.Candidate) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin replace tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM data.scan_candidates WHERE scan_date = $1`, scanDate); err != nil {
		return fmt.Errorf("delete candidates: %w", err)
	}

	batch := &pgx.Batch{}
	for _, c := range candidates {
		batch.Queue(`
			INSERT INTO data.scan_candidates (
				scan_date, ticker_id, rank, momentum_score, close_price,
				tenkan, kijun, tenkan_slope, kijun_slope,
				price_kijun_ratio, tk_distance, notes
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		`,
			c.ScanDate, c.TickerID, c.Rank, c.MomentumScore, c.ClosePrice,
			c.Tenkan, c.Kijun, c.TenkanSlope, c.KijunSlope,
			c.PriceKijunRatio, c.TKDistance, c.Notes,
		)
	}

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert candidates: %w", err)
	}

	return tx.Commit(ctx)
}

// ListByDate returns the candidate set for a scan date, by rank
func (r *Repository) ListByDate(ctx context.Context, scanDate time.Time) ([]contracts.Candidate, error) {
	query := `
		SELECT c.scan_date, c.ticker_id, t.symbol, c.rank, c.momentum_score,
		       c.close_price, c.tenkan, c.kijun, c.tenkan_slope, c.kijun_slope,
		       c.price_kijun_ratio, c.tk_distance, COALESCE(c.notes, '')
		FROM data.scan_candidates c
		JOIN data.tickers t ON t.id = c.ticker_id
		WHERE c.scan_date = $1
		ORDER BY c.rank
	`

	rows, err := r.pool.Query(ctx, query, scanDate)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var candidates []contracts.Candidate
	for rows.Next() {
		var c contracts.Candidate
		if err := rows.Scan(
			&c.ScanDate, &c.TickerID, &c.Symbol, &c.Rank, &c.MomentumScore,
			&c.ClosePrice, &c.Tenkan, &c.Kijun, &c.TenkanSlope, &c.KijunSlope,
			&c.PriceKijunRatio, &c.TKDistance, &c.Notes,
		); err != nil {
			return nil, err
		}
		candidates = append(candidates, c)
	}
	return candidates, rows.Err()
}
