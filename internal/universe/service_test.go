package universe

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/dragon/internal/contracts"
	"github.com/wonny/dragon/pkg/logger"
)

// fakeTickers is an in-memory TickerRepository keyed by symbol
type fakeTickers struct {
	nextID int64
	bySym  map[string]*contracts.Ticker
}

func newFakeTickers() *fakeTickers {
	return &fakeTickers{nextID: 1, bySym: map[string]*contracts.Ticker{}}
}

func (f *fakeTickers) UpsertBySymbol(ctx context.Context, t *contracts.Ticker) error {
	if existing, ok := f.bySym[t.Symbol]; ok {
		existing.Name = t.Name
		existing.SourceIndex = t.SourceIndex
		existing.Active = t.Active
		t.ID = existing.ID
		return nil
	}
	t.ID = f.nextID
	f.nextID++
	cp := *t
	f.bySym[t.Symbol] = &cp
	return nil
}

func (f *fakeTickers) GetBySymbol(ctx context.Context, symbol string) (*contracts.Ticker, error) {
	t, ok := f.bySym[symbol]
	if !ok {
		return nil, contracts.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (f *fakeTickers) GetByID(ctx context.Context, id int64) (*contracts.Ticker, error) {
	for _, t := range f.bySym {
		if t.ID == id {
			cp := *t
			return &cp, nil
		}
	}
	return nil, contracts.ErrNotFound
}

func (f *fakeTickers) ListActive(ctx context.Context) ([]contracts.Ticker, error) {
	var out []contracts.Ticker
	for _, t := range f.bySym {
		if t.Active {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (f *fakeTickers) Count(ctx context.Context) (int, error) {
	return len(f.bySym), nil
}

func (f *fakeTickers) Deactivate(ctx context.Context, symbol string) error {
	t, ok := f.bySym[symbol]
	if !ok {
		return contracts.ErrNotFound
	}
	t.Active = false
	return nil
}

// fakeKV is a minimal in-memory KVRepository
type fakeKV struct {
	values map[string]string
}

func (f *fakeKV) Get(ctx context.Context, key string) (string, string, error) {
	v, ok := f.values[key]
	if !ok {
		return "", "", contracts.ErrNotFound
	}
	return v, "string", nil
}

func (f *fakeKV) Set(ctx context.Context, key, value, dataType string) error {
	f.values[key] = value
	return nil
}

func (f *fakeKV) All(ctx context.Context) (map[string]string, error) {
	return f.values, nil
}

func TestLoadConstituents(t *testing.T) {
	for _, source := range contracts.AllIndexSources() {
		t.Run(string(source), func(t *testing.T) {
			got, err := LoadConstituents(source)
			require.NoError(t, err)
			require.NotEmpty(t, got)

			seen := map[string]bool{}
			for _, c := range got {
				assert.NotEmpty(t, c.Symbol)
				assert.Equal(t, strings.ToUpper(c.Symbol), c.Symbol)
				assert.False(t, seen[c.Symbol], "duplicate symbol %s", c.Symbol)
				seen[c.Symbol] = true
			}
		})
	}
}

func TestLoadConstituents_UnknownSource(t *testing.T) {
	_, err := LoadConstituents(contracts.IndexSource("KOSPI"))
	assert.Error(t, err)
}

func TestService_EnsureSeeded(t *testing.T) {
	tickers := newFakeTickers()
	kv := &fakeKV{values: map[string]string{}}
	svc := NewService(tickers, kv, logger.NewNop())

	require.NoError(t, svc.EnsureSeeded(context.Background()))

	count, _ := tickers.Count(context.Background())
	assert.Greater(t, count, 0)

	// 시드된 티커는 전부 active
	active, _ := tickers.ListActive(context.Background())
	assert.Len(t, active, count)

	// 타임스탬프 기록
	last, err := svc.LastSeeded(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, last)
}

func TestService_EnsureSeeded_Idempotent(t *testing.T) {
	tickers := newFakeTickers()
	kv := &fakeKV{values: map[string]string{}}
	svc := NewService(tickers, kv, logger.NewNop())

	require.NoError(t, svc.EnsureSeeded(context.Background()))
	first, _ := tickers.Count(context.Background())

	// 티커 하나를 비활성화한 뒤 다시 호출해도 재시드하지 않는다
	active, _ := tickers.ListActive(context.Background())
	require.NoError(t, tickers.Deactivate(context.Background(), active[0].Symbol))

	require.NoError(t, svc.EnsureSeeded(context.Background()))
	second, _ := tickers.Count(context.Background())
	assert.Equal(t, first, second)

	nowActive, _ := tickers.ListActive(context.Background())
	assert.Len(t, nowActive, first-1)
}
