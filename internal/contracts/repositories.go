package contracts

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by repositories when a row does not exist
var ErrNotFound = errors.New("not found")

// TickerRepository persists the tradeable universe
type TickerRepository interface {
	// UpsertBySymbol inserts or updates a ticker keyed by symbol.
	// 같은 symbol은 절대 중복 생성되지 않는다.
	UpsertBySymbol(ctx context.Context, t *Ticker) error

	GetBySymbol(ctx context.Context, symbol string) (*Ticker, error)
	GetByID(ctx context.Context, id int64) (*Ticker, error)
	ListActive(ctx context.Context) ([]Ticker, error)
	Count(ctx context.Context) (int, error)

	// Deactivate marks a ticker inactive. 물리 삭제는 하지 않는다.
	Deactivate(ctx context.Context, symbol string) error
}

// BarRepository is the append-only daily bar store
type BarRepository interface {
	// SaveBatch inserts bars, ignoring (ticker,date) conflicts.
	// 반환값은 새로 저장된 bar 수.
	SaveBatch(ctx context.Context, bars []PriceBar) (int, error)

	// ListByTicker returns up to limit most recent bars, ascending by date.
	// limit <= 0이면 전체.
	ListByTicker(ctx context.Context, tickerID int64, limit int) ([]PriceBar, error)

	LatestByTicker(ctx context.Context, tickerID int64) (*PriceBar, error)

	// ListMissingDates returns weekday dates in [from,to] with no stored bar
	ListMissingDates(ctx context.Context, tickerID int64, from, to time.Time) ([]time.Time, error)
}

// IndicatorRepository stores computed indicator series
type IndicatorRepository interface {
	// ReplaceForTicker atomically swaps the full series for one ticker.
	// 과거 갭이 백필되면 shift된 값이 소급 변경되므로 부분 패치는 없다.
	ReplaceForTicker(ctx context.Context, tickerID int64, rows []IndicatorRow) error

	GetByTickerAndDate(ctx context.Context, tickerID int64, date time.Time) (*IndicatorRow, error)
	LatestByTicker(ctx context.Context, tickerID int64) (*IndicatorRow, error)
}

// CandidateRepository stores ranked scan results
type CandidateRepository interface {
	// ReplaceForDate atomically swaps the full candidate set for a scan date.
	// 병합 금지. 이전 rank가 남으면 안 된다.
	ReplaceForDate(ctx context.Context, scanDate time.Time, candidates []Candidate) error

	ListByDate(ctx context.Context, scanDate time.Time) ([]Candidate, error)
}

// PositionRepository tracks open/closed positions
type PositionRepository interface {
	FindOpenByTicker(ctx context.Context, tickerID int64) (*Position, error)
	ListOpen(ctx context.Context) ([]Position, error)
	Create(ctx context.Context, p *Position) error
	UpdateSnapshot(ctx context.Context, id int64, evaluatedDate time.Time, lastClose, lastKijun float64) error
	Close(ctx context.Context, id int64, evaluatedDate time.Time, lastClose, lastKijun float64) error
}

// AlertRepository stores sell alerts
type AlertRepository interface {
	Insert(ctx context.Context, a *SellAlert) error
	List(ctx context.Context, unresolvedOnly bool) ([]SellAlert, error)
	Resolve(ctx context.Context, id int64, at time.Time) error
	DeleteResolvedBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// RunLogRepository records pipeline invocations
type RunLogRepository interface {
	Start(ctx context.Context, startedAt time.Time) (int64, error)
	Complete(ctx context.Context, id int64, status RunStatus, message string, tickers, candidates, alerts int, at time.Time) error
	ListRecent(ctx context.Context, limit int) ([]RunLog, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// KVRepository is the string-typed configuration store backing settings.
// data_type 태그로 round-trip 시 타입을 복원한다.
type KVRepository interface {
	Get(ctx context.Context, key string) (value string, dataType string, err error)
	Set(ctx context.Context, key, value, dataType string) error
	All(ctx context.Context) (map[string]string, error)
}
