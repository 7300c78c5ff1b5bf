package scan

import (
	"context"
	"errors"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/wonny/dragon/internal/contracts"
	"github.com/wonny/dragon/pkg/logger"
)

// 후보 판정에 필요한 최소 trailing bar 수. 미달 종목은 오류가 아니라 스킵.
const minBars = 90

// momentumShift is the lookback (bar count, not calendar days) for the
// 26-period momentum confirmation
const momentumShift = 26

// 모멘텀 점수 가중치
const (
	weightTenkanSlope = 0.6
	weightKijunSlope  = 0.4
	weightPriceDist   = 0.1
	weightTKDistance  = 0.05
)

// Engine evaluates entry eligibility and ranks candidates
// ⭐ SSOT: 후보 판정/랭킹은 여기서만
type Engine struct {
	bars       contracts.BarRepository
	indicators contracts.IndicatorRepository
	workers    int
	logger     *logger.Logger
}

// NewEngine creates a new signal engine
func NewEngine(bars contracts.BarRepository, indicators contracts.IndicatorRepository, workers int, log *logger.Logger) *Engine {
	if workers < 1 {
		workers = 1
	}
	return &Engine{
		bars:       bars,
		indicators: indicators,
		workers:    workers,
		logger:     log.WithField("module", "scan"),
	}
}

// GenerateCandidates evaluates every ticker against the entry rules for the
// target date and returns the ranked, capped candidate list.
//
// 종목별 평가는 병렬, 최종 정렬/rank 부여는 단일 스레드 (결정적 순서 보장).
func (e *Engine) GenerateCandidates(ctx context.Context, tickers []contracts.Ticker, targetDate time.Time, maxCandidates int) ([]contracts.Candidate, error) {
	tickerCh := make(chan contracts.Ticker)
	candidateCh := make(chan contracts.Candidate, len(tickers))

	var wg sync.WaitGroup
	for i := 0; i < e.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range tickerCh {
				c, ok, err := e.evaluate(ctx, t, targetDate)
				if err != nil {
					e.logger.WithError(err).WithField("symbol", t.Symbol).Warn("Candidate evaluation failed, skipping")
					continue
				}
				if ok {
					candidateCh <- c
				}
			}
		}()
	}

	go func() {
		defer close(tickerCh)
		for _, t := range tickers {
			select {
			case <-ctx.Done():
				return
			case tickerCh <- t:
			}
		}
	}()

	go func() {
		wg.Wait()
		close(candidateCh)
	}()

	var candidates []contracts.Candidate
	for c := range candidateCh {
		candidates = append(candidates, c)
	}

	ranked := RankAndTruncate(candidates, maxCandidates)

	e.logger.WithFields(map[string]interface{}{
		"date":       targetDate.Format("2006-01-02"),
		"evaluated":  len(tickers),
		"qualified":  len(candidates),
		"candidates": len(ranked),
	}).Info("Candidate scan completed")

	return ranked, nil
}

// evaluate checks one ticker against the three entry rules and scores it
func (e *Engine) evaluate(ctx context.Context, t contracts.Ticker, targetDate time.Time) (contracts.Candidate, bool, error) {
	var none contracts.Candidate

	bars, err := e.bars.ListByTicker(ctx, t.ID, 0)
	if err != nil {
		return none, false, err
	}
	// 히스토리 부족은 데이터 품질 갭, 조용히 제외
	if len(bars) < minBars {
		return none, false, nil
	}

	// 기준일 bar를 인덱스로 찾는다 (달력 날짜 일치, nearest 아님)
	idx := -1
	for i := len(bars) - 1; i >= 0; i-- {
		if sameDay(bars[i].Date, targetDate) {
			idx = i
			break
		}
		if bars[i].Date.Before(targetDate) {
			break
		}
	}
	if idx < 0 {
		return none, false, nil
	}
	closePrice := bars[idx].Close

	row, err := e.indicators.GetByTickerAndDate(ctx, t.ID, targetDate)
	if err != nil {
		if errors.Is(err, contracts.ErrNotFound) {
			return none, false, nil
		}
		return none, false, err
	}

	// 규칙 1: 전환선 > 기준선 (둘 다 정의돼 있을 때만)
	if row.Tenkan == nil || row.Kijun == nil || *row.Tenkan <= *row.Kijun {
		return none, false, nil
	}

	// 규칙 2: 종가가 구름 상단 위. 미정의 스팬은 -inf로 취급 (탈락 사유 아님)
	cloudTop := math.Inf(-1)
	if row.SenkouA != nil {
		cloudTop = *row.SenkouA
	}
	if row.SenkouB != nil && *row.SenkouB > cloudTop {
		cloudTop = *row.SenkouB
	}
	if closePrice <= cloudTop {
		return none, false, nil
	}

	// 규칙 3: 26거래 관측 전 bar 대비 상승 (인덱스 기준)
	if idx < momentumShift {
		return none, false, nil
	}
	if closePrice <= bars[idx-momentumShift].Close {
		return none, false, nil
	}

	c := contracts.Candidate{
		ScanDate:      targetDate,
		TickerID:      t.ID,
		Symbol:        t.Symbol,
		ClosePrice:    closePrice,
		Tenkan:        *row.Tenkan,
		Kijun:         *row.Kijun,
		TKDistance:    *row.Tenkan - *row.Kijun,
		MomentumScore: Score(row),
	}
	if row.TenkanSlope != nil {
		c.TenkanSlope = *row.TenkanSlope
	}
	if row.KijunSlope != nil {
		c.KijunSlope = *row.KijunSlope
	}
	if row.PriceKijunRatio != nil {
		c.PriceKijunRatio = *row.PriceKijunRatio
	}

	return c, true, nil
}

// Score computes the momentum composite for a qualified row.
//
// 지표 계산기와 달리 여기서는 결측 slope/ratio를 중립 0으로 둔다.
// 스코어링에서 결측은 페널티가 아니라 중립으로 취급한다.
func Score(row *contracts.IndicatorRow) float64 {
	var tenkanSlope, kijunSlope, priceDist float64
	if row.TenkanSlope != nil {
		tenkanSlope = *row.TenkanSlope
	}
	if row.KijunSlope != nil {
		kijunSlope = *row.KijunSlope
	}
	if row.PriceKijunRatio != nil {
		priceDist = *row.PriceKijunRatio - 1
	}

	return weightTenkanSlope*tenkanSlope +
		weightKijunSlope*kijunSlope +
		weightPriceDist*priceDist +
		weightTKDistance*normalizedDistance(row)
}

// normalizedDistance is (tenkan-kijun)/kijun, or the raw difference when
// kijun is zero. 호출 전 tenkan/kijun 정의 보장 (규칙 1 통과 row만 온다).
func normalizedDistance(row *contracts.IndicatorRow) float64 {
	if row.Tenkan == nil || row.Kijun == nil {
		return 0
	}
	diff := *row.Tenkan - *row.Kijun
	if *row.Kijun != 0 {
		return diff / *row.Kijun
	}
	return diff
}

// RankAndTruncate sorts candidates into their final total order, truncates
// to the cap, and assigns 1-based ranks after truncation.
func RankAndTruncate(candidates []contracts.Candidate, maxCandidates int) []contracts.Candidate {
	sorted := make([]contracts.Candidate, len(candidates))
	copy(sorted, candidates)

	sort.Slice(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.MomentumScore != b.MomentumScore {
			return a.MomentumScore > b.MomentumScore
		}
		// 동점: price distance 큰 쪽 우선
		da, db := a.PriceKijunRatio-1, b.PriceKijunRatio-1
		if da != db {
			return da > db
		}
		// 그 다음: 정규화 거리 큰 쪽
		na, nb := normDist(a), normDist(b)
		if na != nb {
			return na > nb
		}
		// 마지막으로 심볼, 전순서 보장 (재현성)
		return a.Symbol < b.Symbol
	})

	if maxCandidates > 0 && len(sorted) > maxCandidates {
		sorted = sorted[:maxCandidates]
	}

	// rank는 잘라낸 뒤 다시 부여한다
	for i := range sorted {
		sorted[i].Rank = i + 1
	}

	return sorted
}

func normDist(c contracts.Candidate) float64 {
	if c.Kijun != 0 {
		return c.TKDistance / c.Kijun
	}
	return c.TKDistance
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
