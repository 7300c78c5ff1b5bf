package marketdata

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/wonny/dragon/internal/contracts"
	"github.com/wonny/dragon/internal/provider"
	"github.com/wonny/dragon/pkg/logger"
)

// RangeFetcher is the provider-side contract the fetcher needs.
// 실 구현은 provider.Registry.
type RangeFetcher interface {
	FetchRange(ctx context.Context, symbol string, from, to time.Time) ([]provider.OHLC, error)
}

// Fetcher backfills missing daily bars per ticker
// ⭐ SSOT: 히스토리 수집 오케스트레이션은 여기서만
type Fetcher struct {
	bars     contracts.BarRepository
	registry RangeFetcher
	workers  int
	logger   *logger.Logger
}

// NewFetcher creates a new historical data fetcher
func NewFetcher(bars contracts.BarRepository, registry RangeFetcher, workers int, log *logger.Logger) *Fetcher {
	if workers < 1 {
		workers = 1
	}
	return &Fetcher{
		bars:     bars,
		registry: registry,
		workers:  workers,
		logger:   log.WithField("module", "fetcher"),
	}
}

// TickerResult is the per-ticker outcome of a fetch pass
type TickerResult struct {
	Symbol  string
	NewBars int
	Err     error
}

// FetchAllResult summarizes a fetch pass over the universe
type FetchAllResult struct {
	Results     []TickerResult
	NewBars     int
	Fetched     int  // 성공한 종목 수
	Failed      int  // 개별 실패로 건너뛴 종목 수
	RateLimited bool // rate limit으로 루프가 조기 중단됐는지
}

// FetchMissing backfills one ticker's missing bars within the lookback window
// and returns the newly persisted bar count.
func (f *Fetcher) FetchMissing(ctx context.Context, ticker contracts.Ticker, lookbackDays int) (int, error) {
	to := time.Now().UTC().Truncate(24 * time.Hour)
	from := to.AddDate(0, 0, -lookbackDays)

	missing, err := f.bars.ListMissingDates(ctx, ticker.ID, from, to)
	if err != nil {
		return 0, err
	}
	if len(missing) == 0 {
		return 0, nil
	}

	// 누락 구간만 요청: 빠진 날짜들의 [min, max] 한 번이면 충분하다.
	// 이미 있는 bar는 append-only 저장소가 무시한다.
	fetched, err := f.registry.FetchRange(ctx, ticker.Symbol, missing[0], missing[len(missing)-1])
	if err != nil {
		return 0, err
	}

	bars := make([]contracts.PriceBar, 0, len(fetched))
	for _, b := range fetched {
		bars = append(bars, contracts.PriceBar{
			TickerID: ticker.ID,
			Date:     b.Date,
			Open:     b.Open,
			High:     b.High,
			Low:      b.Low,
			Close:    b.Close,
		})
	}

	return f.bars.SaveBatch(ctx, bars)
}

// FetchAll backfills every ticker with a bounded worker pool.
//
// rate limit은 한 워커에서 발생해도 새 fetch가 더 시작되면 안 되므로
// 공유 context를 취소해 루프 전체를 멈춘다. 이미 저장된 bar는 그대로
// 남는다. 부분 데이터로도 파이프라인은 계속 진행한다.
func (f *Fetcher) FetchAll(ctx context.Context, tickers []contracts.Ticker, lookbackDays int) *FetchAllResult {
	f.logger.WithFields(map[string]interface{}{
		"tickers":  len(tickers),
		"lookback": lookbackDays,
		"workers":  f.workers,
	}).Info("Starting history fetch")

	fetchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	tickerCh := make(chan contracts.Ticker)
	resultCh := make(chan TickerResult, len(tickers))

	var wg sync.WaitGroup
	for i := 0; i < f.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range tickerCh {
				n, err := f.FetchMissing(fetchCtx, t, lookbackDays)
				resultCh <- TickerResult{Symbol: t.Symbol, NewBars: n, Err: err}
				if err != nil && errors.Is(err, provider.ErrRateLimited) {
					// 남은 종목 fetch 시작 금지
					cancel()
					return
				}
			}
		}()
	}

	go func() {
		defer close(tickerCh)
		for _, t := range tickers {
			select {
			case <-fetchCtx.Done():
				return
			case tickerCh <- t:
			}
		}
	}()

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	result := &FetchAllResult{}
	for r := range resultCh {
		result.Results = append(result.Results, r)

		switch {
		case r.Err == nil:
			result.Fetched++
			result.NewBars += r.NewBars
		case errors.Is(r.Err, provider.ErrRateLimited):
			result.RateLimited = true
			f.logger.WithField("symbol", r.Symbol).Warn("Rate limited, aborting remaining fetches")
		case errors.Is(r.Err, context.Canceled):
			// rate limit 중단의 부수 효과: 이번 사이클은 건드리지 않은 종목
		default:
			result.Failed++
			f.logger.WithError(r.Err).WithField("symbol", r.Symbol).Warn("Fetch failed for ticker, continuing")
		}
	}

	f.logger.WithFields(map[string]interface{}{
		"fetched":      result.Fetched,
		"failed":       result.Failed,
		"new_bars":     result.NewBars,
		"rate_limited": result.RateLimited,
	}).Info("History fetch completed")

	return result
}
