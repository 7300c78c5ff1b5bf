package provider

import (
	"context"
	"errors"
	"time"
)

// 프로바이더 오류 분류 (SSOT)
// 파이프라인은 rate limit만 특별 취급한다: fetch 루프 전체 중단.
// 나머지는 해당 종목만 건너뛴다.
var (
	// ErrRateLimited means the provider throttled us. 남은 종목 fetch 중단 신호.
	ErrRateLimited = errors.New("provider rate limited")

	// ErrUnauthorized means the provider rejected our credentials
	ErrUnauthorized = errors.New("provider unauthorized")

	// ErrNotFound means the provider does not know the symbol
	ErrNotFound = errors.New("symbol not found")

	// ErrNetwork wraps transport-level failures
	ErrNetwork = errors.New("provider network error")
)

// OHLC is one daily bar as returned by a provider, not yet tied to a ticker id
type OHLC struct {
	Date  time.Time
	Open  float64
	High  float64
	Low   float64
	Close float64
}

// Provider fetches daily OHLC bars for a symbol.
// 구현은 위의 sentinel 오류로 실패를 구분해서 반환해야 한다.
type Provider interface {
	// Name returns the provider identifier used in the priority setting
	Name() string

	// FetchRange returns daily bars for [from, to], ascending by date.
	// 빈 결과는 오류가 아니다 (휴장 구간일 수 있음).
	FetchRange(ctx context.Context, symbol string, from, to time.Time) ([]OHLC, error)

	// FetchLatest returns the most recent daily bar
	FetchLatest(ctx context.Context, symbol string) (*OHLC, error)
}
