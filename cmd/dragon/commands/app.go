package commands

import (
	"context"
	"fmt"

	"github.com/wonny/dragon/internal/indicator"
	"github.com/wonny/dragon/internal/marketdata"
	"github.com/wonny/dragon/internal/pipeline"
	"github.com/wonny/dragon/internal/position"
	"github.com/wonny/dragon/internal/provider"
	"github.com/wonny/dragon/internal/scan"
	"github.com/wonny/dragon/internal/settings"
	"github.com/wonny/dragon/internal/universe"
	"github.com/wonny/dragon/pkg/config"
	"github.com/wonny/dragon/pkg/database"
	"github.com/wonny/dragon/pkg/httputil"
	"github.com/wonny/dragon/pkg/logger"
)

// app wires the full dependency graph once for every command.
// ⭐ SSOT: 의존성 조립은 이 파일에서만
type app struct {
	cfg    *config.Config
	log    *logger.Logger
	db     *database.DB
	client *httputil.Client

	tickers    *universe.Repository
	bars       *marketdata.Repository
	indicators *indicator.Repository
	candidates *scan.Repository
	positions  *position.Repository
	alerts     *position.AlertRepository
	runLogs    *pipeline.RunLogRepository
	kv         *settings.KVRepository

	settings  *settings.Service
	universe  *universe.Service
	refresher *universe.Refresher
	registry  *provider.Registry
	fetcher   *marketdata.Fetcher
	engine    *scan.Engine
	evaluator *position.Evaluator
	pipeline  *pipeline.Service
}

// newApp loads config, connects the database and builds every service
func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log := logger.New(cfg)

	db, err := database.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	a := &app{cfg: cfg, log: log, db: db}

	// Repositories
	a.tickers = universe.NewRepository(db.Pool)
	a.bars = marketdata.NewRepository(db.Pool)
	a.indicators = indicator.NewRepository(db.Pool)
	a.candidates = scan.NewRepository(db.Pool)
	a.positions = position.NewRepository(db.Pool)
	a.alerts = position.NewAlertRepository(db.Pool)
	a.runLogs = pipeline.NewRunLogRepository(db.Pool)
	a.kv = settings.NewKVRepository(db.Pool)

	// Settings
	a.settings, err = settings.NewService(ctx, a.kv, log)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("load settings: %w", err)
	}

	// Providers: 우선순위는 설정에서, 레이트리밋은 인프라 설정에서
	a.client = httputil.New(log, cfg.Providers.RequestTimeout).
		WithRateLimit(cfg.Providers.RatePerSecond, cfg.Providers.RateBurst)

	available := []provider.Provider{
		provider.NewStooqClient(a.client, cfg.Providers.StooqBaseURL, log),
		provider.NewYahooClient(a.client, cfg.Providers.YahooBaseURL, log),
	}
	a.registry, err = provider.NewRegistry(available, a.settings.Current().ProviderPriority, log)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("build provider registry: %w", err)
	}

	// Services
	a.universe = universe.NewService(a.tickers, a.kv, log)
	a.refresher = universe.NewRefresher(a.tickers, a.client, log)
	a.fetcher = marketdata.NewFetcher(a.bars, a.registry, cfg.FetchWorkers, log)
	a.engine = scan.NewEngine(a.bars, a.indicators, cfg.FetchWorkers, log)
	a.evaluator = position.NewEvaluator(a.positions, a.alerts, a.bars, a.indicators, log)

	a.pipeline = pipeline.NewService(
		a.universe, a.tickers, a.fetcher, a.bars, a.indicators,
		a.engine, a.candidates, a.evaluator, a.runLogs, a.settings, log,
	)

	return a, nil
}

// close releases held resources
func (a *app) close() {
	a.db.Close()
}
