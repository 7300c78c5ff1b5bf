package provider

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/dragon/pkg/logger"
)

// stubProvider returns canned results for registry tests
type stubProvider struct {
	name  string
	bars  []OHLC
	err   error
	calls int
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) FetchRange(ctx context.Context, symbol string, from, to time.Time) ([]OHLC, error) {
	s.calls++
	return s.bars, s.err
}

func (s *stubProvider) FetchLatest(ctx context.Context, symbol string) (*OHLC, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &s.bars[len(s.bars)-1], nil
}

func someBars() []OHLC {
	return []OHLC{{
		Date: time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC),
		Open: 1, High: 2, Low: 0.5, Close: 1.5,
	}}
}

func TestNewRegistry_PriorityOrder(t *testing.T) {
	stooq := &stubProvider{name: "stooq"}
	yahoo := &stubProvider{name: "yahoo"}

	reg, err := NewRegistry([]Provider{stooq, yahoo}, []string{"yahoo", "stooq"}, logger.NewNop())
	require.NoError(t, err)
	assert.Equal(t, []string{"yahoo", "stooq"}, reg.Names())

	// 모르는 이름은 무시
	reg, err = NewRegistry([]Provider{stooq, yahoo}, []string{"bloomberg", "stooq"}, logger.NewNop())
	require.NoError(t, err)
	assert.Equal(t, []string{"stooq"}, reg.Names())
}

func TestNewRegistry_NoUsableProviders(t *testing.T) {
	stooq := &stubProvider{name: "stooq"}
	_, err := NewRegistry([]Provider{stooq}, []string{"bloomberg"}, logger.NewNop())
	assert.Error(t, err)
}

func TestRegistry_FetchRange_Fallback(t *testing.T) {
	failing := &stubProvider{name: "stooq", err: ErrNetwork}
	working := &stubProvider{name: "yahoo", bars: someBars()}

	reg, err := NewRegistry([]Provider{failing, working}, []string{"stooq", "yahoo"}, logger.NewNop())
	require.NoError(t, err)

	bars, err := reg.FetchRange(context.Background(), "AAPL", time.Now(), time.Now())
	require.NoError(t, err)
	assert.Len(t, bars, 1)
	assert.Equal(t, 1, failing.calls)
	assert.Equal(t, 1, working.calls)
}

func TestRegistry_FetchRange_FirstSuccessStops(t *testing.T) {
	first := &stubProvider{name: "stooq", bars: someBars()}
	second := &stubProvider{name: "yahoo", bars: someBars()}

	reg, err := NewRegistry([]Provider{first, second}, []string{"stooq", "yahoo"}, logger.NewNop())
	require.NoError(t, err)

	_, err = reg.FetchRange(context.Background(), "AAPL", time.Now(), time.Now())
	require.NoError(t, err)
	assert.Zero(t, second.calls)
}

func TestRegistry_FetchRange_RateLimitDominates(t *testing.T) {
	// rate limit 후 다른 프로바이더도 실패하면 rate limit으로 보고한다.
	// 파이프라인이 fetch 루프를 중단할 수 있게
	throttled := &stubProvider{name: "stooq", err: ErrRateLimited}
	failing := &stubProvider{name: "yahoo", err: ErrNetwork}

	reg, err := NewRegistry([]Provider{throttled, failing}, []string{"stooq", "yahoo"}, logger.NewNop())
	require.NoError(t, err)

	_, err = reg.FetchRange(context.Background(), "AAPL", time.Now(), time.Now())
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestParseStooqCSV(t *testing.T) {
	body := `Date,Open,High,Low,Close,Volume
2026-08-27,100.0,105.0,99.0,104.0,123456
2026-08-28,104.0,106.0,103.0,105.5,234567
`
	bars, err := parseStooqCSV(strings.NewReader(body))
	require.NoError(t, err)
	require.Len(t, bars, 2)

	assert.Equal(t, time.Date(2026, 8, 27, 0, 0, 0, 0, time.UTC), bars[0].Date)
	assert.InDelta(t, 100.0, bars[0].Open, 1e-9)
	assert.InDelta(t, 105.5, bars[1].Close, 1e-9)
}

func TestParseStooqCSV_UnknownSymbolBody(t *testing.T) {
	// 모르는 심볼이면 Stooq는 200에 무효 본문을 준다
	_, err := parseStooqCSV(strings.NewReader("No data"))
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = parseStooqCSV(strings.NewReader(""))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestParseStooqCSV_SkipsBadRows(t *testing.T) {
	body := `Date,Open,High,Low,Close,Volume
2026-08-27,100.0,105.0,99.0,104.0,1
not-a-date,1,2,3,4,5
2026-08-28,104.0,n/a,103.0,105.5,1
2026-08-29,105.0,107.0,104.0,106.0,1
`
	bars, err := parseStooqCSV(strings.NewReader(body))
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.InDelta(t, 106.0, bars[1].Close, 1e-9)
}

func TestStooqSymbol(t *testing.T) {
	assert.Equal(t, "aapl.us", stooqSymbol("AAPL"))
	assert.Equal(t, "brk.b.us", stooqSymbol("BRK-B"))
	assert.Equal(t, "msft.us", stooqSymbol("msft.us"))
}

func TestClassifyStatus(t *testing.T) {
	assert.NoError(t, classifyStatus(http.StatusOK))
	assert.ErrorIs(t, classifyStatus(http.StatusTooManyRequests), ErrRateLimited)
	assert.ErrorIs(t, classifyStatus(http.StatusUnauthorized), ErrUnauthorized)
	assert.ErrorIs(t, classifyStatus(http.StatusForbidden), ErrUnauthorized)
	assert.ErrorIs(t, classifyStatus(http.StatusNotFound), ErrNotFound)
	assert.ErrorIs(t, classifyStatus(http.StatusInternalServerError), ErrNetwork)
}
