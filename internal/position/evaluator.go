package position

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wonny/dragon/internal/contracts"
	"github.com/wonny/dragon/pkg/logger"
)

// Evaluator opens positions for new candidates and applies the stop rule
// to every open position.
// ⭐ SSOT: 포지션 전이/매도 알림 생성은 여기서만
type Evaluator struct {
	positions  contracts.PositionRepository
	alerts     contracts.AlertRepository
	bars       contracts.BarRepository
	indicators contracts.IndicatorRepository
	logger     *logger.Logger
}

// NewEvaluator creates a new position evaluator
func NewEvaluator(
	positions contracts.PositionRepository,
	alerts contracts.AlertRepository,
	bars contracts.BarRepository,
	indicators contracts.IndicatorRepository,
	log *logger.Logger,
) *Evaluator {
	return &Evaluator{
		positions:  positions,
		alerts:     alerts,
		bars:       bars,
		indicators: indicators,
		logger:     log.WithField("module", "positions"),
	}
}

// Result summarizes one evaluation pass
type Result struct {
	Opened    int
	Evaluated int
	Closed    int
	Skipped   int // 지표 데이터가 없어 이번 사이클은 건드리지 않은 포지션
	Alerts    []contracts.SellAlert
}

// Evaluate runs the Evaluating stage: open positions for new candidates,
// then check every open position against the close-below-kijun stop.
func (e *Evaluator) Evaluate(ctx context.Context, candidates []contracts.Candidate, scanDate time.Time) (*Result, error) {
	result := &Result{}

	// 1. 새 후보 중 open 포지션이 없는 종목은 포지션 오픈
	for _, c := range candidates {
		_, err := e.positions.FindOpenByTicker(ctx, c.TickerID)
		if err == nil {
			continue // 이미 열려 있음, 종목당 open은 1개뿐
		}
		if !errors.Is(err, contracts.ErrNotFound) {
			return nil, fmt.Errorf("find open position for %s: %w", c.Symbol, err)
		}

		p := &contracts.Position{
			TickerID:   c.TickerID,
			DateOpened: scanDate,
			Status:     contracts.PositionOpen,
		}
		if err := e.positions.Create(ctx, p); err != nil {
			return nil, fmt.Errorf("open position for %s: %w", c.Symbol, err)
		}
		result.Opened++

		e.logger.WithFields(map[string]interface{}{
			"symbol": c.Symbol,
			"rank":   c.Rank,
		}).Info("Position opened")
	}

	// 2. 오늘 후보가 아니었던 것 포함, 모든 open 포지션 평가
	open, err := e.positions.ListOpen(ctx)
	if err != nil {
		return nil, fmt.Errorf("list open positions: %w", err)
	}

	for _, p := range open {
		outcome, alert, err := e.evaluateOne(ctx, p)
		if err != nil {
			return nil, err
		}

		switch outcome {
		case outcomeSkipped:
			result.Skipped++
		case outcomeClosed:
			result.Closed++
			result.Alerts = append(result.Alerts, *alert)
		case outcomeHeld:
			result.Evaluated++
		}
	}

	e.logger.WithFields(map[string]interface{}{
		"opened":    result.Opened,
		"evaluated": result.Evaluated,
		"closed":    result.Closed,
		"skipped":   result.Skipped,
	}).Info("Position evaluation completed")

	return result, nil
}

// outcome of a single open-position evaluation
type outcome int

const (
	outcomeSkipped outcome = iota // 데이터 부족, 이번 사이클은 건드리지 않음
	outcomeHeld                   // 스냅샷 갱신, 계속 보유
	outcomeClosed                 // 스탑 발동, 종료 + 알림
)

// evaluateOne applies the stop rule to a single open position
func (e *Evaluator) evaluateOne(ctx context.Context, p contracts.Position) (outcome, *contracts.SellAlert, error) {
	bar, err := e.bars.LatestByTicker(ctx, p.TickerID)
	if err != nil {
		if errors.Is(err, contracts.ErrNotFound) {
			return outcomeSkipped, nil, nil
		}
		return outcomeSkipped, nil, fmt.Errorf("latest bar for ticker %d: %w", p.TickerID, err)
	}

	row, err := e.indicators.LatestByTicker(ctx, p.TickerID)
	if err != nil {
		if errors.Is(err, contracts.ErrNotFound) {
			return outcomeSkipped, nil, nil
		}
		return outcomeSkipped, nil, fmt.Errorf("latest indicators for ticker %d: %w", p.TickerID, err)
	}
	if row.Kijun == nil {
		// 기준선이 아직 없으면 판정 불가. 강제 종료하지 않는다
		return outcomeSkipped, nil, nil
	}

	kijun := *row.Kijun

	if bar.Close < kijun {
		// 포지션 종료와 알림 생성은 한 논리 단계다. 알림만 남고 포지션이
		// 열려 있는 상태를 만들지 않는다.
		if err := e.positions.Close(ctx, p.ID, bar.Date, bar.Close, kijun); err != nil {
			return outcomeSkipped, nil, fmt.Errorf("close position %d: %w", p.ID, err)
		}

		alert := &contracts.SellAlert{
			TickerID:   p.TickerID,
			AlertDate:  bar.Date,
			ClosePrice: bar.Close,
			KijunValue: kijun,
			Reason:     contracts.SellReasonCloseBelowKijun,
		}
		if err := e.alerts.Insert(ctx, alert); err != nil {
			return outcomeSkipped, nil, fmt.Errorf("insert sell alert for position %d: %w", p.ID, err)
		}

		e.logger.WithFields(map[string]interface{}{
			"ticker_id": p.TickerID,
			"close":     bar.Close,
			"kijun":     kijun,
		}).Info("Sell alert raised, position closed")

		return outcomeClosed, alert, nil
	}

	if err := e.positions.UpdateSnapshot(ctx, p.ID, bar.Date, bar.Close, kijun); err != nil {
		return outcomeSkipped, nil, fmt.Errorf("update position %d snapshot: %w", p.ID, err)
	}
	return outcomeHeld, nil, nil
}
