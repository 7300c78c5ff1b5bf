package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wonny/dragon/pkg/logger"
)

// Registry tries providers in the configured priority order.
// ⭐ SSOT: 프로바이더 폴백 정책은 여기서만
//
// 전역 lookup이 아니라 명시적으로 조립해서 주입한다.
type Registry struct {
	providers []Provider
	logger    *logger.Logger
}

// NewRegistry builds a registry from the available providers, ordered by the
// priority list. priority에 없는 프로바이더는 제외, 모르는 이름은 무시.
func NewRegistry(available []Provider, priority []string, log *logger.Logger) (*Registry, error) {
	byName := make(map[string]Provider, len(available))
	for _, p := range available {
		byName[p.Name()] = p
	}

	var ordered []Provider
	for _, name := range priority {
		if p, ok := byName[name]; ok {
			ordered = append(ordered, p)
		} else {
			log.WithField("provider", name).Warn("Unknown provider in priority list, ignoring")
		}
	}

	if len(ordered) == 0 {
		return nil, fmt.Errorf("no usable providers in priority list %v", priority)
	}

	return &Registry{
		providers: ordered,
		logger:    log.WithField("module", "providers"),
	}, nil
}

// Names returns the active provider order
func (r *Registry) Names() []string {
	names := make([]string, len(r.providers))
	for i, p := range r.providers {
		names[i] = p.Name()
	}
	return names
}

// FetchRange tries each provider in order until one succeeds.
//
// 전부 실패하고 그중 하나라도 rate limit이었다면 ErrRateLimited를 돌려준다.
// 파이프라인이 fetch 단계를 조기 중단할 수 있도록.
func (r *Registry) FetchRange(ctx context.Context, symbol string, from, to time.Time) ([]OHLC, error) {
	var lastErr error
	rateLimited := false

	for _, p := range r.providers {
		bars, err := p.FetchRange(ctx, symbol, from, to)
		if err == nil {
			return bars, nil
		}

		if errors.Is(err, ErrRateLimited) {
			rateLimited = true
		}
		lastErr = err

		r.logger.WithError(err).WithFields(map[string]interface{}{
			"provider": p.Name(),
			"symbol":   symbol,
		}).Debug("Provider fetch failed, trying next")
	}

	if rateLimited {
		return nil, fmt.Errorf("all providers failed for %s: %w", symbol, ErrRateLimited)
	}
	return nil, fmt.Errorf("all providers failed for %s: %w", symbol, lastErr)
}

// FetchLatest tries each provider in order for the most recent bar
func (r *Registry) FetchLatest(ctx context.Context, symbol string) (*OHLC, error) {
	var lastErr error
	rateLimited := false

	for _, p := range r.providers {
		bar, err := p.FetchLatest(ctx, symbol)
		if err == nil {
			return bar, nil
		}
		if errors.Is(err, ErrRateLimited) {
			rateLimited = true
		}
		lastErr = err
	}

	if rateLimited {
		return nil, fmt.Errorf("all providers failed for %s: %w", symbol, ErrRateLimited)
	}
	return nil, fmt.Errorf("all providers failed for %s: %w", symbol, lastErr)
}
