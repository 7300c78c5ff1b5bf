package pipeline

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/dragon/internal/contracts"
	"github.com/wonny/dragon/internal/marketdata"
	"github.com/wonny/dragon/internal/position"
	"github.com/wonny/dragon/internal/provider"
	"github.com/wonny/dragon/internal/scan"
	"github.com/wonny/dragon/internal/settings"
	"github.com/wonny/dragon/internal/universe"
	"github.com/wonny/dragon/pkg/logger"
)

// memStore is one in-memory backing store implementing every repository the
// pipeline touches. 테스트는 DB 없이 전체 런을 돌린다.
type memStore struct {
	mu sync.Mutex

	tickers    map[int64]*contracts.Ticker
	bars       map[int64][]contracts.PriceBar
	indicators map[int64][]contracts.IndicatorRow
	candidates map[string][]contracts.Candidate
	missing    map[int64][]time.Time
	positions  map[int64]*contracts.Position
	alerts     []contracts.SellAlert
	runLogs    map[int64]*contracts.RunLog
	kv         map[string]string

	nextPositionID int64
	nextRunID      int64
}

func newMemStore() *memStore {
	return &memStore{
		tickers:        map[int64]*contracts.Ticker{},
		bars:           map[int64][]contracts.PriceBar{},
		indicators:     map[int64][]contracts.IndicatorRow{},
		candidates:     map[string][]contracts.Candidate{},
		missing:        map[int64][]time.Time{},
		positions:      map[int64]*contracts.Position{},
		runLogs:        map[int64]*contracts.RunLog{},
		kv:             map[string]string{},
		nextPositionID: 1,
		nextRunID:      1,
	}
}

func dateKey(d time.Time) string { return d.Format("2006-01-02") }

// --- TickerRepository ---

type memTickers struct{ s *memStore }

func (m memTickers) UpsertBySymbol(ctx context.Context, t *contracts.Ticker) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, existing := range m.s.tickers {
		if existing.Symbol == t.Symbol {
			t.ID = existing.ID
			*existing = *t
			return nil
		}
	}
	t.ID = int64(len(m.s.tickers) + 1)
	cp := *t
	m.s.tickers[t.ID] = &cp
	return nil
}

func (m memTickers) GetBySymbol(ctx context.Context, symbol string) (*contracts.Ticker, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, t := range m.s.tickers {
		if t.Symbol == symbol {
			cp := *t
			return &cp, nil
		}
	}
	return nil, contracts.ErrNotFound
}

func (m memTickers) GetByID(ctx context.Context, id int64) (*contracts.Ticker, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	t, ok := m.s.tickers[id]
	if !ok {
		return nil, contracts.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (m memTickers) ListActive(ctx context.Context) ([]contracts.Ticker, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var out []contracts.Ticker
	for id := int64(1); id <= int64(len(m.s.tickers)); id++ {
		if t, ok := m.s.tickers[id]; ok && t.Active {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (m memTickers) Count(ctx context.Context) (int, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	return len(m.s.tickers), nil
}

func (m memTickers) Deactivate(ctx context.Context, symbol string) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, t := range m.s.tickers {
		if t.Symbol == symbol {
			t.Active = false
			return nil
		}
	}
	return contracts.ErrNotFound
}

// --- BarRepository ---

type memBars struct{ s *memStore }

func (m memBars) SaveBatch(ctx context.Context, bars []contracts.PriceBar) (int, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	inserted := 0
	for _, b := range bars {
		dup := false
		for _, existing := range m.s.bars[b.TickerID] {
			if existing.Date.Equal(b.Date) {
				dup = true
				break
			}
		}
		if !dup {
			m.s.bars[b.TickerID] = append(m.s.bars[b.TickerID], b)
			inserted++
		}
	}
	return inserted, nil
}

func (m memBars) ListByTicker(ctx context.Context, tickerID int64, limit int) ([]contracts.PriceBar, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	bars := append([]contracts.PriceBar(nil), m.s.bars[tickerID]...)
	if limit > 0 && len(bars) > limit {
		bars = bars[len(bars)-limit:]
	}
	return bars, nil
}

func (m memBars) LatestByTicker(ctx context.Context, tickerID int64) (*contracts.PriceBar, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	bars := m.s.bars[tickerID]
	if len(bars) == 0 {
		return nil, contracts.ErrNotFound
	}
	b := bars[len(bars)-1]
	return &b, nil
}

func (m memBars) ListMissingDates(ctx context.Context, tickerID int64, from, to time.Time) ([]time.Time, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	return m.s.missing[tickerID], nil
}

// --- IndicatorRepository ---

type memIndicators struct{ s *memStore }

func (m memIndicators) ReplaceForTicker(ctx context.Context, tickerID int64, rows []contracts.IndicatorRow) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	m.s.indicators[tickerID] = rows
	return nil
}

func (m memIndicators) GetByTickerAndDate(ctx context.Context, tickerID int64, date time.Time) (*contracts.IndicatorRow, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, r := range m.s.indicators[tickerID] {
		if r.Date.Equal(date) {
			cp := r
			return &cp, nil
		}
	}
	return nil, contracts.ErrNotFound
}

func (m memIndicators) LatestByTicker(ctx context.Context, tickerID int64) (*contracts.IndicatorRow, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	rows := m.s.indicators[tickerID]
	if len(rows) == 0 {
		return nil, contracts.ErrNotFound
	}
	cp := rows[len(rows)-1]
	return &cp, nil
}

// --- CandidateRepository ---

type memCandidates struct{ s *memStore }

func (m memCandidates) ReplaceForDate(ctx context.Context, scanDate time.Time, candidates []contracts.Candidate) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	m.s.candidates[dateKey(scanDate)] = append([]contracts.Candidate(nil), candidates...)
	return nil
}

func (m memCandidates) ListByDate(ctx context.Context, scanDate time.Time) ([]contracts.Candidate, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	return m.s.candidates[dateKey(scanDate)], nil
}

// --- PositionRepository ---

type memPositions struct{ s *memStore }

func (m memPositions) FindOpenByTicker(ctx context.Context, tickerID int64) (*contracts.Position, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, p := range m.s.positions {
		if p.TickerID == tickerID && p.Status == contracts.PositionOpen {
			cp := *p
			return &cp, nil
		}
	}
	return nil, contracts.ErrNotFound
}

func (m memPositions) ListOpen(ctx context.Context) ([]contracts.Position, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var out []contracts.Position
	for id := int64(1); id < m.s.nextPositionID; id++ {
		if p, ok := m.s.positions[id]; ok && p.Status == contracts.PositionOpen {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (m memPositions) Create(ctx context.Context, p *contracts.Position) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	p.ID = m.s.nextPositionID
	m.s.nextPositionID++
	cp := *p
	m.s.positions[p.ID] = &cp
	return nil
}

func (m memPositions) UpdateSnapshot(ctx context.Context, id int64, evaluatedDate time.Time, lastClose, lastKijun float64) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	p, ok := m.s.positions[id]
	if !ok || p.Status != contracts.PositionOpen {
		return contracts.ErrNotFound
	}
	p.LastEvaluatedDate = &evaluatedDate
	p.LastClose = &lastClose
	p.LastKijun = &lastKijun
	return nil
}

func (m memPositions) Close(ctx context.Context, id int64, evaluatedDate time.Time, lastClose, lastKijun float64) error {
	if err := m.UpdateSnapshot(ctx, id, evaluatedDate, lastClose, lastKijun); err != nil {
		return err
	}
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	m.s.positions[id].Status = contracts.PositionClosed
	return nil
}

// --- AlertRepository ---

type memAlerts struct{ s *memStore }

func (m memAlerts) Insert(ctx context.Context, a *contracts.SellAlert) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	a.ID = int64(len(m.s.alerts) + 1)
	m.s.alerts = append(m.s.alerts, *a)
	return nil
}

func (m memAlerts) List(ctx context.Context, unresolvedOnly bool) ([]contracts.SellAlert, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	return append([]contracts.SellAlert(nil), m.s.alerts...), nil
}

func (m memAlerts) Resolve(ctx context.Context, id int64, at time.Time) error { return nil }

func (m memAlerts) DeleteResolvedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	return 0, nil
}

// --- RunLogRepository ---

type memRunLogs struct{ s *memStore }

func (m memRunLogs) Start(ctx context.Context, startedAt time.Time) (int64, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	id := m.s.nextRunID
	m.s.nextRunID++
	m.s.runLogs[id] = &contracts.RunLog{ID: id, StartedAt: startedAt, Status: contracts.RunRunning}
	return id, nil
}

func (m memRunLogs) Complete(ctx context.Context, id int64, status contracts.RunStatus, message string, tickers, candidates, alerts int, at time.Time) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	l, ok := m.s.runLogs[id]
	if !ok {
		return contracts.ErrNotFound
	}
	l.Status = status
	l.Message = message
	l.TickersProcessed = tickers
	l.CandidatesFound = candidates
	l.AlertsTriggered = alerts
	l.CompletedAt = &at
	return nil
}

func (m memRunLogs) ListRecent(ctx context.Context, limit int) ([]contracts.RunLog, error) {
	return nil, nil
}

func (m memRunLogs) DeleteBefore(ctx context.Context, cutoff time.Time) (int, error) {
	return 0, nil
}

// --- KVRepository ---

type memKV struct{ s *memStore }

func (m memKV) Get(ctx context.Context, key string) (string, string, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	v, ok := m.s.kv[key]
	if !ok {
		return "", "", contracts.ErrNotFound
	}
	return v, "string", nil
}

func (m memKV) Set(ctx context.Context, key, value, dataType string) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	m.s.kv[key] = value
	return nil
}

func (m memKV) All(ctx context.Context) (map[string]string, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	out := map[string]string{}
	for k, v := range m.s.kv {
		out[k] = v
	}
	return out, nil
}

// --- provider registry stub ---

type stubRange struct {
	err error
}

func (s stubRange) FetchRange(ctx context.Context, symbol string, from, to time.Time) ([]provider.OHLC, error) {
	return nil, s.err
}

// --- fixtures ---

// seedTicker registers a ticker with n daily bars ending at end.
// trend > 0이면 상승, < 0이면 하락.
func seedTicker(t *testing.T, store *memStore, symbol string, n int, end time.Time, trend float64) int64 {
	t.Helper()

	tk := &contracts.Ticker{Symbol: symbol, SourceIndex: contracts.IndexSP500, Active: true}
	require.NoError(t, memTickers{store}.UpsertBySymbol(context.Background(), tk))

	bars := make([]contracts.PriceBar, n)
	for i := range bars {
		p := 500 + trend*float64(i)
		bars[i] = contracts.PriceBar{
			TickerID: tk.ID,
			Date:     end.AddDate(0, 0, i-n+1),
			Open:     p, High: p + 1, Low: p - 1, Close: p,
		}
	}
	_, err := memBars{store}.SaveBatch(context.Background(), bars)
	require.NoError(t, err)
	return tk.ID
}

func newTestService(t *testing.T, store *memStore, reg marketdata.RangeFetcher) *Service {
	return newTestServiceIndicators(t, store, reg, memIndicators{store})
}

func newTestServiceIndicators(t *testing.T, store *memStore, reg marketdata.RangeFetcher, indicators contracts.IndicatorRepository) *Service {
	t.Helper()
	log := logger.NewNop()

	settingsSvc, err := settings.NewService(context.Background(), memKV{store}, log)
	require.NoError(t, err)

	tickers := memTickers{store}
	bars := memBars{store}

	universeSvc := universe.NewService(tickers, memKV{store}, log)
	fetcher := marketdata.NewFetcher(bars, reg, 2, log)
	engine := scan.NewEngine(bars, indicators, 2, log)
	evaluator := position.NewEvaluator(memPositions{store}, memAlerts{store}, bars, indicators, log)

	return NewService(
		universeSvc, tickers, fetcher, bars, indicators,
		engine, memCandidates{store}, evaluator, memRunLogs{store}, settingsSvc, log,
	)
}

func TestService_Run_EndToEnd(t *testing.T) {
	scanDate := time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC)
	store := newMemStore()

	// 상승 2종목(기준일 bar 보유), 하락 1종목, 하루 뒤처진 종목 1개
	risingA := seedTicker(t, store, "AAA", 120, scanDate, 1.0)
	seedTicker(t, store, "BBB", 120, scanDate, 2.0)
	seedTicker(t, store, "DDD", 120, scanDate, -1.0)
	seedTicker(t, store, "STALE", 120, scanDate.AddDate(0, 0, -1), 1.0)

	svc := newTestService(t, store, stubRange{})
	summary, err := svc.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, contracts.RunSuccess, summary.Status)
	assert.Equal(t, 4, summary.TickersProcessed)
	assert.False(t, summary.FetchAborted)

	// 합의 기준일: 3표 vs 1표 다수결
	assert.True(t, summary.ScanDate.Equal(scanDate), "scan date %v", summary.ScanDate)

	// 상승 종목만 후보. 하락/뒤처진 종목은 탈락
	require.Len(t, summary.Candidates, 2)
	assert.Equal(t, "BBB", summary.Candidates[0].Symbol) // 기울기 큰 쪽이 먼저
	assert.Equal(t, 1, summary.Candidates[0].Rank)
	assert.Equal(t, "AAA", summary.Candidates[1].Symbol)
	assert.Equal(t, 2, summary.Candidates[1].Rank)

	// 후보마다 포지션 오픈, 상승 중이므로 알림 없음
	openA, err := memPositions{store}.FindOpenByTicker(context.Background(), risingA)
	require.NoError(t, err)
	assert.True(t, openA.DateOpened.Equal(scanDate))
	assert.Empty(t, summary.Alerts)

	// 지표는 티커마다 bar 수만큼 저장
	assert.Len(t, store.indicators[risingA], 120)

	// 런 로그 종결
	runLog := store.runLogs[summary.RunID]
	require.NotNil(t, runLog)
	assert.Equal(t, contracts.RunSuccess, runLog.Status)
	assert.NotNil(t, runLog.CompletedAt)
	assert.Equal(t, 2, runLog.CandidatesFound)
}

func TestService_Run_SecondRunReplacesCandidates(t *testing.T) {
	scanDate := time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC)
	store := newMemStore()
	seedTicker(t, store, "AAA", 120, scanDate, 1.0)

	svc := newTestService(t, store, stubRange{})

	_, err := svc.Run(context.Background())
	require.NoError(t, err)
	_, err = svc.Run(context.Background())
	require.NoError(t, err)

	// 같은 날 재실행해도 후보는 병합되지 않고 교체된다
	got, err := memCandidates{store}.ListByDate(context.Background(), scanDate)
	require.NoError(t, err)
	assert.Len(t, got, 1)

	// 포지션도 중복 오픈되지 않는다
	open, err := memPositions{store}.ListOpen(context.Background())
	require.NoError(t, err)
	assert.Len(t, open, 1)
}

func TestService_Run_NoTickers(t *testing.T) {
	store := newMemStore()
	// EnsureSeeded가 내장 리스트로 시드하지 못하게 비활성 티커 하나를 둔다
	tk := &contracts.Ticker{Symbol: "ZZZ", Active: false}
	require.NoError(t, memTickers{store}.UpsertBySymbol(context.Background(), tk))

	svc := newTestService(t, store, stubRange{})
	summary, err := svc.Run(context.Background())
	require.ErrorIs(t, err, ErrNoTickers)

	require.NotNil(t, summary)
	assert.Equal(t, contracts.RunFailed, summary.Status)
	assert.Equal(t, contracts.RunFailed, store.runLogs[summary.RunID].Status)
}

func TestService_Run_NoConsensusDate(t *testing.T) {
	store := newMemStore()
	tk := &contracts.Ticker{Symbol: "AAA", Active: true}
	require.NoError(t, memTickers{store}.UpsertBySymbol(context.Background(), tk))
	// bar가 전혀 없다

	svc := newTestService(t, store, stubRange{})
	_, err := svc.Run(context.Background())
	assert.ErrorIs(t, err, ErrNoConsensusDate)
}

func TestService_Run_RateLimitedStillCompletes(t *testing.T) {
	scanDate := time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC)
	store := newMemStore()
	id := seedTicker(t, store, "AAA", 120, scanDate, 1.0)

	// 누락 날짜가 있어야 fetch가 실제로 시도된다
	store.missing[id] = []time.Time{scanDate.AddDate(0, 0, 1)}

	// fetch는 rate limit으로 실패하지만 기존 bar로 런은 계속된다
	svc := newTestService(t, store, stubRange{err: provider.ErrRateLimited})
	summary, err := svc.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, contracts.RunSuccess, summary.Status)
	assert.True(t, summary.FetchAborted)
	assert.Zero(t, summary.BarsFetched)
}

func TestService_ConsensusDate_TiePicksLater(t *testing.T) {
	earlier := time.Date(2026, 8, 27, 0, 0, 0, 0, time.UTC)
	later := time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC)

	store := newMemStore()
	seedTicker(t, store, "AAA", 100, earlier, 1.0)
	seedTicker(t, store, "BBB", 100, later, 1.0)

	svc := newTestService(t, store, stubRange{})
	tickers, err := memTickers{store}.ListActive(context.Background())
	require.NoError(t, err)

	got, err := svc.consensusDate(context.Background(), tickers)
	require.NoError(t, err)
	assert.True(t, got.Equal(later), "got %v", got)
}

// failingIndicators rejects every write, simulating a down indicator store
type failingIndicators struct{}

func (failingIndicators) ReplaceForTicker(ctx context.Context, tickerID int64, rows []contracts.IndicatorRow) error {
	return assert.AnError
}

func (failingIndicators) GetByTickerAndDate(ctx context.Context, tickerID int64, date time.Time) (*contracts.IndicatorRow, error) {
	return nil, contracts.ErrNotFound
}

func (failingIndicators) LatestByTicker(ctx context.Context, tickerID int64) (*contracts.IndicatorRow, error) {
	return nil, contracts.ErrNotFound
}

func TestService_Run_IndicatorStoreFailureFailsRun(t *testing.T) {
	scanDate := time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC)
	store := newMemStore()
	// 워커 수보다 많은 티커. 전 워커가 저장 오류를 만나도 런이 끝까지
	// 진행돼야 한다
	for i := 0; i < 10; i++ {
		seedTicker(t, store, fmt.Sprintf("T%02d", i), 100, scanDate, 1.0)
	}

	svc := newTestServiceIndicators(t, store, stubRange{}, failingIndicators{})

	done := make(chan struct{})
	var summary *contracts.RunSummary
	var err error
	go func() {
		defer close(done)
		summary, err = svc.Run(context.Background())
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("run did not finish after indicator store failures")
	}

	require.Error(t, err)
	require.NotNil(t, summary)
	assert.Equal(t, contracts.RunFailed, summary.Status)
	assert.Equal(t, contracts.RunFailed, store.runLogs[summary.RunID].Status)

	// busy가 풀려 다음 런이 가능해야 한다
	assert.False(t, svc.Busy())
}

func TestService_Run_Serialized(t *testing.T) {
	scanDate := time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC)
	store := newMemStore()
	seedTicker(t, store, "AAA", 120, scanDate, 1.0)

	svc := newTestService(t, store, stubRange{})

	// busy 플래그를 직접 세워 진행 중인 런을 흉내낸다
	require.True(t, svc.busy.CompareAndSwap(false, true))
	_, err := svc.Run(context.Background())
	assert.ErrorIs(t, err, ErrRunInProgress)
	svc.busy.Store(false)

	_, err = svc.Run(context.Background())
	assert.NoError(t, err)
}
