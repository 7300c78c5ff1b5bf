package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wonny/dragon/internal/contracts"
	"github.com/wonny/dragon/internal/indicator"
	"github.com/wonny/dragon/internal/marketdata"
	"github.com/wonny/dragon/internal/position"
	"github.com/wonny/dragon/internal/scan"
	"github.com/wonny/dragon/internal/settings"
	"github.com/wonny/dragon/internal/universe"
	"github.com/wonny/dragon/pkg/logger"
)

// 구성 오류: fetch 이전/직후에 런을 중단시키는 조건들
var (
	// ErrRunInProgress is returned when a trigger arrives while a run is active.
	// 수동 트리거와 스케줄 트리거는 이 플래그로 직렬화된다.
	ErrRunInProgress = errors.New("pipeline run already in progress")

	// ErrNoTickers means the universe is empty after seeding
	ErrNoTickers = errors.New("no active tickers")

	// ErrNoConsensusDate means no ticker produced any bar
	ErrNoConsensusDate = errors.New("no consensus scan date")
)

// computeWorkers bounds the parallel indicator recomputation
const computeWorkers = 4

// Service orchestrates the daily run
// ⭐ SSOT: 파이프라인 조율은 여기서만
//
// Idle → Seeding → Fetching → Computing → Scanning → Evaluating
//      → Completed | Failed
type Service struct {
	universe   *universe.Service
	tickers    contracts.TickerRepository
	fetcher    *marketdata.Fetcher
	bars       contracts.BarRepository
	indicators contracts.IndicatorRepository
	engine     *scan.Engine
	candidates contracts.CandidateRepository
	evaluator  *position.Evaluator
	runLogs    contracts.RunLogRepository
	settings   *settings.Service
	logger     *logger.Logger

	busy atomic.Bool
}

// NewService creates a new pipeline service
func NewService(
	universeSvc *universe.Service,
	tickers contracts.TickerRepository,
	fetcher *marketdata.Fetcher,
	bars contracts.BarRepository,
	indicators contracts.IndicatorRepository,
	engine *scan.Engine,
	candidates contracts.CandidateRepository,
	evaluator *position.Evaluator,
	runLogs contracts.RunLogRepository,
	settingsSvc *settings.Service,
	log *logger.Logger,
) *Service {
	return &Service{
		universe:   universeSvc,
		tickers:    tickers,
		fetcher:    fetcher,
		bars:       bars,
		indicators: indicators,
		engine:     engine,
		candidates: candidates,
		evaluator:  evaluator,
		runLogs:    runLogs,
		settings:   settingsSvc,
		logger:     log.WithField("module", "pipeline"),
	}
}

// Busy reports whether a run is currently in flight
func (s *Service) Busy() bool {
	return s.busy.Load()
}

// Run executes one full pipeline invocation.
//
// 런은 겹치지 않는다. 진행 중이면 ErrRunInProgress.
func (s *Service) Run(ctx context.Context) (*contracts.RunSummary, error) {
	if !s.busy.CompareAndSwap(false, true) {
		return nil, ErrRunInProgress
	}
	defer s.busy.Store(false)

	startedAt := time.Now().UTC()
	cfg := s.settings.Current()

	runID, err := s.runLogs.Start(ctx, startedAt)
	if err != nil {
		return nil, fmt.Errorf("start run log: %w", err)
	}

	summary := &contracts.RunSummary{
		RunID:     runID,
		StartedAt: startedAt,
	}

	s.logger.WithFields(map[string]interface{}{
		"run_id":   runID,
		"lookback": cfg.HistoryLookbackDays,
		"max":      cfg.MaxCandidates,
	}).Info("Pipeline run started")

	if err := s.run(ctx, runID, cfg, summary); err != nil {
		s.transition(contracts.StageFailed)
		// 처리된 실패는 run-log를 failed로 닫는다. 크래시만 running으로
		// 남는다 (running은 "불확정"이지 "실패"가 아니다).
		s.completeLog(ctx, runID, contracts.RunFailed, err.Error(), summary)
		summary.Status = contracts.RunFailed
		summary.Message = err.Error()
		return summary, err
	}

	s.transition(contracts.StageCompleted)

	message := fmt.Sprintf("scanned %s: %d tickers, %d candidates, %d alerts",
		summary.ScanDate.Format("2006-01-02"),
		summary.TickersProcessed, len(summary.Candidates), len(summary.Alerts))
	s.completeLog(ctx, runID, contracts.RunSuccess, message, summary)

	summary.Status = contracts.RunSuccess
	summary.Message = message
	summary.CompletedAt = time.Now().UTC()

	s.logger.WithFields(map[string]interface{}{
		"run_id":     runID,
		"scan_date":  summary.ScanDate.Format("2006-01-02"),
		"candidates": len(summary.Candidates),
		"alerts":     len(summary.Alerts),
		"duration":   time.Since(startedAt),
	}).Info("Pipeline run completed")

	return summary, nil
}

// run drives the stages; any returned error moves the run to Failed
func (s *Service) run(ctx context.Context, runID int64, cfg settings.State, summary *contracts.RunSummary) error {
	// Seeding: 결과와 무관하게 다음 단계로 진행 (빈 유니버스는 아래서 잡힘)
	s.transition(contracts.StageSeeding)
	if err := s.universe.EnsureSeeded(ctx); err != nil {
		s.logger.WithError(err).Warn("Universe seeding failed, continuing")
	}

	tickers, err := s.tickers.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("list active tickers: %w", err)
	}
	if len(tickers) == 0 {
		return ErrNoTickers
	}
	summary.TickersProcessed = len(tickers)

	// Fetching: rate limit은 루프만 중단시키고 런은 계속된다
	s.transition(contracts.StageFetching)
	fetchResult := s.fetcher.FetchAll(ctx, tickers, cfg.HistoryLookbackDays)
	summary.BarsFetched = fetchResult.NewBars
	summary.FetchAborted = fetchResult.RateLimited

	// Computing: 종목별 전체 시계열 재계산 후 통째로 교체.
	// 백필로 과거 갭이 메워지면 shift된 값이 소급 변경되기 때문.
	s.transition(contracts.StageComputing)
	if err := s.recomputeIndicators(ctx, tickers, cfg.RegressionWindow); err != nil {
		return err
	}

	// Scanning
	s.transition(contracts.StageScanning)
	scanDate, err := s.consensusDate(ctx, tickers)
	if err != nil {
		return err
	}
	summary.ScanDate = scanDate

	candidates, err := s.engine.GenerateCandidates(ctx, tickers, scanDate, cfg.MaxCandidates)
	if err != nil {
		return fmt.Errorf("generate candidates: %w", err)
	}
	if err := s.candidates.ReplaceForDate(ctx, scanDate, candidates); err != nil {
		return fmt.Errorf("persist candidates: %w", err)
	}
	summary.Candidates = candidates

	// Evaluating
	s.transition(contracts.StageEvaluating)
	evalResult, err := s.evaluator.Evaluate(ctx, candidates, scanDate)
	if err != nil {
		return fmt.Errorf("evaluate positions: %w", err)
	}
	summary.Alerts = evalResult.Alerts

	return nil
}

// recomputeIndicators replaces every ticker's indicator series.
// 종목 간 공유 상태가 없어 워커 풀로 병렬 처리한다.
func (s *Service) recomputeIndicators(ctx context.Context, tickers []contracts.Ticker, regressionWindow int) error {
	calc := indicator.NewCalculator(regressionWindow)

	tickerCh := make(chan contracts.Ticker)
	errCh := make(chan error, len(tickers))

	var wg sync.WaitGroup
	for i := 0; i < computeWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// 오류가 나도 채널은 끝까지 비운다. 워커가 먼저 빠져나가면
			// 아래의 producer send가 영원히 블록된다.
			for t := range tickerCh {
				bars, err := s.bars.ListByTicker(ctx, t.ID, 0)
				if err != nil {
					errCh <- fmt.Errorf("load bars for %s: %w", t.Symbol, err)
					continue
				}
				rows := calc.Compute(bars)
				if err := s.indicators.ReplaceForTicker(ctx, t.ID, rows); err != nil {
					errCh <- fmt.Errorf("replace indicators for %s: %w", t.Symbol, err)
					continue
				}
			}
		}()
	}

	for _, t := range tickers {
		tickerCh <- t
	}
	close(tickerCh)
	wg.Wait()
	close(errCh)

	// 저장 오류는 이 단계에선 치명적이다. 부분 복구하지 않는다
	if err := <-errCh; err != nil {
		return err
	}
	return nil
}

// consensusDate picks the scan date by majority vote over each ticker's most
// recent bar date. 프로바이더가 하루씩 어긋날 수 있어 "오늘"이나 "최신"을
// 그대로 쓰지 않는다. 동률이면 더 늦은 날짜.
func (s *Service) consensusDate(ctx context.Context, tickers []contracts.Ticker) (time.Time, error) {
	votes := make(map[time.Time]int)

	for _, t := range tickers {
		bar, err := s.bars.LatestByTicker(ctx, t.ID)
		if err != nil {
			if errors.Is(err, contracts.ErrNotFound) {
				continue
			}
			return time.Time{}, fmt.Errorf("latest bar for %s: %w", t.Symbol, err)
		}
		day := bar.Date.Truncate(24 * time.Hour)
		votes[day]++
	}

	if len(votes) == 0 {
		return time.Time{}, ErrNoConsensusDate
	}

	var best time.Time
	bestCount := -1
	for day, count := range votes {
		if count > bestCount || (count == bestCount && day.After(best)) {
			best = day
			bestCount = count
		}
	}

	s.logger.WithFields(map[string]interface{}{
		"scan_date": best.Format("2006-01-02"),
		"votes":     bestCount,
	}).Info("Consensus scan date selected")

	return best, nil
}

// transition logs a stage change. 상태는 run() 호출 흐름 자체가 들고 있다.
func (s *Service) transition(stage contracts.Stage) {
	s.logger.WithField("stage", stage.String()).Info("Stage transition")
}

// completeLog closes the run log, logging rather than failing on error.
// 러닝 row는 다음 런에 영향을 주지 않는다.
func (s *Service) completeLog(ctx context.Context, runID int64, status contracts.RunStatus, message string, summary *contracts.RunSummary) {
	err := s.runLogs.Complete(ctx, runID, status, message,
		summary.TickersProcessed, len(summary.Candidates), len(summary.Alerts),
		time.Now().UTC(),
	)
	if err != nil {
		s.logger.WithError(err).Error("Failed to complete run log")
	}
}
