package marketdata

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/dragon/internal/contracts"
	"github.com/wonny/dragon/internal/provider"
	"github.com/wonny/dragon/pkg/logger"
)

// fakeBarStore is an in-memory append-only BarRepository
type fakeBarStore struct {
	mu      sync.Mutex
	bars    map[int64]map[time.Time]contracts.PriceBar
	missing map[int64][]time.Time
}

func newFakeBarStore() *fakeBarStore {
	return &fakeBarStore{
		bars:    map[int64]map[time.Time]contracts.PriceBar{},
		missing: map[int64][]time.Time{},
	}
}

func (f *fakeBarStore) SaveBatch(ctx context.Context, bars []contracts.PriceBar) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	inserted := 0
	for _, b := range bars {
		if f.bars[b.TickerID] == nil {
			f.bars[b.TickerID] = map[time.Time]contracts.PriceBar{}
		}
		if _, exists := f.bars[b.TickerID][b.Date]; exists {
			continue // append-only: 중복은 무시
		}
		f.bars[b.TickerID][b.Date] = b
		inserted++
	}
	return inserted, nil
}

func (f *fakeBarStore) ListByTicker(ctx context.Context, tickerID int64, limit int) ([]contracts.PriceBar, error) {
	return nil, nil
}

func (f *fakeBarStore) LatestByTicker(ctx context.Context, tickerID int64) (*contracts.PriceBar, error) {
	return nil, contracts.ErrNotFound
}

func (f *fakeBarStore) ListMissingDates(ctx context.Context, tickerID int64, from, to time.Time) ([]time.Time, error) {
	return f.missing[tickerID], nil
}

// fakeRange simulates the provider registry
type fakeRange struct {
	mu    sync.Mutex
	calls map[string]int
	errs  map[string]error
	bars  []provider.OHLC
}

func (f *fakeRange) FetchRange(ctx context.Context, symbol string, from, to time.Time) ([]provider.OHLC, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	f.calls[symbol]++
	err := f.errs[symbol]
	f.mu.Unlock()

	if err != nil {
		return nil, err
	}
	return f.bars, nil
}

func day(d int) time.Time {
	return time.Date(2026, 8, d, 0, 0, 0, 0, time.UTC)
}

func TestFetcher_FetchMissing(t *testing.T) {
	store := newFakeBarStore()
	store.missing[1] = []time.Time{day(25), day(26), day(28)}

	reg := &fakeRange{
		calls: map[string]int{},
		errs:  map[string]error{},
		bars: []provider.OHLC{
			{Date: day(25), Close: 1},
			{Date: day(26), Close: 2},
			{Date: day(27), Close: 3}, // 이미 있는 날, append-only가 무시
			{Date: day(28), Close: 4},
		},
	}
	store.bars[1] = map[time.Time]contracts.PriceBar{day(27): {TickerID: 1, Date: day(27)}}

	f := NewFetcher(store, reg, 2, logger.NewNop())
	n, err := f.FetchMissing(context.Background(), contracts.Ticker{ID: 1, Symbol: "AAPL"}, 30)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 1, reg.calls["AAPL"])
}

func TestFetcher_FetchMissing_NothingToDo(t *testing.T) {
	store := newFakeBarStore()
	reg := &fakeRange{calls: map[string]int{}, errs: map[string]error{}}

	f := NewFetcher(store, reg, 2, logger.NewNop())
	n, err := f.FetchMissing(context.Background(), contracts.Ticker{ID: 1, Symbol: "AAPL"}, 30)
	require.NoError(t, err)
	assert.Zero(t, n)
	// 누락이 없으면 프로바이더 호출도 없다
	assert.Zero(t, reg.calls["AAPL"])
}

func TestFetcher_FetchAll_CountsOutcomes(t *testing.T) {
	store := newFakeBarStore()
	tickers := []contracts.Ticker{
		{ID: 1, Symbol: "AAPL"},
		{ID: 2, Symbol: "MSFT"},
		{ID: 3, Symbol: "NVDA"},
	}
	for _, tk := range tickers {
		store.missing[tk.ID] = []time.Time{day(28)}
	}

	reg := &fakeRange{
		calls: map[string]int{},
		errs:  map[string]error{"MSFT": provider.ErrNetwork},
		bars:  []provider.OHLC{{Date: day(28), Close: 1}},
	}

	f := NewFetcher(store, reg, 2, logger.NewNop())
	result := f.FetchAll(context.Background(), tickers, 30)

	assert.Equal(t, 2, result.Fetched)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 2, result.NewBars)
	assert.False(t, result.RateLimited)
}

func TestFetcher_FetchAll_RateLimitAborts(t *testing.T) {
	// 직렬(워커 1)로 돌려 중단 지점을 결정적으로 만든다
	store := newFakeBarStore()
	var tickers []contracts.Ticker
	for i := int64(1); i <= 10; i++ {
		tickers = append(tickers, contracts.Ticker{ID: i, Symbol: string(rune('A' + i - 1))})
		store.missing[i] = []time.Time{day(28)}
	}

	reg := &fakeRange{
		calls: map[string]int{},
		errs:  map[string]error{"B": provider.ErrRateLimited},
		bars:  []provider.OHLC{{Date: day(28), Close: 1}},
	}

	f := NewFetcher(store, reg, 1, logger.NewNop())
	result := f.FetchAll(context.Background(), tickers, 30)

	assert.True(t, result.RateLimited)
	// 첫 종목은 성공, 두 번째에서 중단. 나머지는 fetch 자체가 시작되지 않는다
	assert.Equal(t, 1, result.Fetched)
	assert.Equal(t, 1, result.NewBars)
	assert.Zero(t, result.Failed)
	assert.LessOrEqual(t, len(result.Results), 2)

	// 이미 저장된 bar는 유지
	assert.Len(t, store.bars[1], 1)
}
