package marketdata

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/dragon/internal/contracts"
)

// Repository implements contracts.BarRepository
// ⭐ SSOT: 가격 bar 저장소는 여기서만. append-only, bar는 한 번 쓰면 불변.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new bar repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// SaveBatch inserts bars, ignoring already-stored (ticker, date) pairs.
// 반환값은 실제로 새로 들어간 bar 수.
func (r *Repository) SaveBatch(ctx context.Context, bars []contracts.PriceBar) (int, error) {
	if len(bars) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, b := range bars {
		batch.Queue(`
			INSERT INTO data.daily_bars (ticker_id, bar_date, open_price, high_price, low_price, close_price)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (ticker_id, bar_date) DO NOTHING
		`, b.TickerID, b.Date, b.Open, b.High, b.Low, b.Close)
	}

	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()

	inserted := 0
	for range bars {
		tag, err := results.Exec()
		if err != nil {
			return inserted, err
		}
		inserted += int(tag.RowsAffected())
	}

	return inserted, nil
}

// ListByTicker returns up to limit most recent bars, ascending by date
func (r *Repository) ListByTicker(ctx context.Context, tickerID int64, limit int) ([]contracts.PriceBar, error) {
	query := `
		SELECT ticker_id, bar_date, open_price, high_price, low_price, close_price
		FROM (
			SELECT ticker_id, bar_date, open_price, high_price, low_price, close_price
			FROM data.daily_bars
			WHERE ticker_id = $1
			ORDER BY bar_date DESC
			LIMIT CASE WHEN $2 > 0 THEN $2 ELSE NULL END
		) recent
		ORDER BY bar_date ASC
	`

	rows, err := r.pool.Query(ctx, query, tickerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bars []contracts.PriceBar
	for rows.Next() {
		var b contracts.PriceBar
		if err := rows.Scan(&b.TickerID, &b.Date, &b.Open, &b.High, &b.Low, &b.Close); err != nil {
			return nil, err
		}
		bars = append(bars, b)
	}
	return bars, rows.Err()
}

// LatestByTicker returns the most recent bar for a ticker
func (r *Repository) LatestByTicker(ctx context.Context, tickerID int64) (*contracts.PriceBar, error) {
	query := `
		SELECT ticker_id, bar_date, open_price, high_price, low_price, close_price
		FROM data.daily_bars
		WHERE ticker_id = $1
		ORDER BY bar_date DESC
		LIMIT 1
	`

	var b contracts.PriceBar
	err := r.pool.QueryRow(ctx, query, tickerID).Scan(
		&b.TickerID, &b.Date, &b.Open, &b.High, &b.Low, &b.Close,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, contracts.ErrNotFound
		}
		return nil, err
	}
	return &b, nil
}

// ListMissingDates returns weekday dates in [from, to] with no stored bar.
// 주말은 거래일이 아니므로 제외. 공휴일은 구분할 수 없어 포함되는데,
// 프로바이더가 해당 날짜 bar를 안 주면 다음 런에도 그냥 다시 요청된다.
func (r *Repository) ListMissingDates(ctx context.Context, tickerID int64, from, to time.Time) ([]time.Time, error) {
	query := `
		SELECT d::date
		FROM generate_series($2::date, $3::date, '1 day') d
		WHERE EXTRACT(ISODOW FROM d) < 6
		AND NOT EXISTS (
			SELECT 1 FROM data.daily_bars b
			WHERE b.ticker_id = $1 AND b.bar_date = d::date
		)
		ORDER BY d
	`

	rows, err := r.pool.Query(ctx, query, tickerID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var dates []time.Time
	for rows.Next() {
		var d time.Time
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		dates = append(dates, d)
	}
	return dates, rows.Err()
}
