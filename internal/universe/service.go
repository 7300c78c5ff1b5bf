package universe

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/dragon/internal/contracts"
	"github.com/wonny/dragon/pkg/logger"
)

// lastSeededKey is the observability timestamp key in the settings store
const lastSeededKey = "universe_last_seeded"

// Service seeds and maintains the ticker universe
// ⭐ SSOT: 유니버스 시드/관리는 여기서만
type Service struct {
	tickers contracts.TickerRepository
	kv      contracts.KVRepository
	logger  *logger.Logger
}

// NewService creates a new universe service
func NewService(tickers contracts.TickerRepository, kv contracts.KVRepository, log *logger.Logger) *Service {
	return &Service{
		tickers: tickers,
		kv:      kv,
		logger:  log.WithField("module", "universe"),
	}
}

// EnsureSeeded bootstraps the universe from the bundled index lists.
//
// 이미 종목이 있으면 아무것도 하지 않는다. 자동 재시드는 없다 (의도된
// one-way 부트스트랩). 개별 리스트 로드 실패는 건너뛰고 계속한다.
// 전 소스 실패 = 빈 유니버스, 판단은 호출자 몫.
func (s *Service) EnsureSeeded(ctx context.Context) error {
	count, err := s.tickers.Count(ctx)
	if err != nil {
		return fmt.Errorf("count tickers: %w", err)
	}
	if count > 0 {
		s.logger.WithField("tickers", count).Debug("Universe already seeded, skipping")
		return nil
	}

	seeded := 0
	for _, source := range contracts.AllIndexSources() {
		constituents, err := LoadConstituents(source)
		if err != nil {
			s.logger.WithError(err).WithField("index", source).Warn("Skipping index list")
			continue
		}

		for _, c := range constituents {
			t := &contracts.Ticker{
				Symbol:      c.Symbol,
				Name:        c.Name,
				SourceIndex: source,
				Active:      true,
			}
			if err := s.tickers.UpsertBySymbol(ctx, t); err != nil {
				return fmt.Errorf("upsert %s: %w", c.Symbol, err)
			}
			seeded++
		}

		s.logger.WithFields(map[string]interface{}{
			"index": source,
			"count": len(constituents),
		}).Info("Index list seeded")
	}

	if seeded > 0 {
		if err := s.kv.Set(ctx, lastSeededKey, time.Now().UTC().Format(time.RFC3339), "string"); err != nil {
			s.logger.WithError(err).Warn("Failed to record seed timestamp")
		}
	}

	s.logger.WithField("seeded", seeded).Info("Universe seeding completed")
	return nil
}

// LastSeeded returns when the universe was last seeded, if ever
func (s *Service) LastSeeded(ctx context.Context) (*time.Time, error) {
	value, _, err := s.kv.Get(ctx, lastSeededKey)
	if err != nil {
		return nil, nil // 시드 전이면 기록이 없다
	}
	ts, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil, fmt.Errorf("parse seed timestamp: %w", err)
	}
	return &ts, nil
}
