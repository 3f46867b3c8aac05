package commands

import (
	"context"
	"fmt"

	"github.com/wonny/aegis-signals/internal/backtest"
	"github.com/wonny/aegis-signals/internal/compliance"
	"github.com/wonny/aegis-signals/internal/consensus"
	"github.com/wonny/aegis-signals/internal/contracts"
	"github.com/wonny/aegis-signals/internal/external/marketdata"
	"github.com/wonny/aegis-signals/internal/gateway"
	"github.com/wonny/aegis-signals/internal/history"
	"github.com/wonny/aegis-signals/internal/pipeline"
	"github.com/wonny/aegis-signals/internal/scheduler"
	"github.com/wonny/aegis-signals/internal/scheduler/jobs"
	"github.com/wonny/aegis-signals/internal/sink"
	"github.com/wonny/aegis-signals/internal/strategy"
	"github.com/wonny/aegis-signals/internal/strategyconfig"
	"github.com/wonny/aegis-signals/pkg/clock"
	"github.com/wonny/aegis-signals/pkg/config"
	"github.com/wonny/aegis-signals/pkg/database"
	"github.com/wonny/aegis-signals/pkg/httputil"
	"github.com/wonny/aegis-signals/pkg/logger"
	"github.com/wonny/aegis-signals/pkg/metrics"
	"github.com/wonny/aegis-signals/pkg/redis"
)

// app holds every wired component a command may need
// ⭐ SSOT: dependency wiring happens here only
type app struct {
	cfg      *config.Config
	log      *logger.Logger
	metrics  *metrics.Recorder
	db       *database.DB // nil without DATABASE_URL
	redis    *redis.Client
	set      *strategyconfig.Config
	setHash  string
	universe pipeline.UniverseSource

	provider *marketdata.Client
	gateway  *gateway.Gateway
	resolver *compliance.Resolver
	registry *strategy.Registry
	engine   *consensus.Engine
	bars     contracts.BarRepository
	signals  contracts.SignalRepository // nil without DATABASE_URL

	hub      *sink.Hub
	kafka    *sink.KafkaSink
	fanout   *sink.Fanout
	pipeline *pipeline.Orchestrator
	backtest *backtest.Engine
	btConfig backtest.Config
	syncer   *history.Syncer
}

// newApp loads configuration and wires the signal engine
func newApp() (*app, error) {
	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if strategyFile != "" {
		cfg.StrategyConfigPath = strategyFile
	}
	if universeFile != "" {
		cfg.UniversePath = universeFile
	}
	if verbose {
		cfg.LogLevel = "debug"
	}

	// 2. Initialize logger and metrics
	log := logger.New(cfg)
	var rec *metrics.Recorder
	if cfg.MetricsEnabled {
		rec = metrics.New()
	}

	a := &app{
		cfg:      cfg,
		log:      log,
		metrics:  rec,
		universe: pipeline.FileUniverse{Path: cfg.UniversePath},
	}

	// 3. Strategy set
	set, _, err := strategyconfig.Load(cfg.StrategyConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load strategy set: %w", err)
	}
	for _, w := range strategyconfig.Warn(set) {
		log.WithField("code", w.Code).Warn(w.Message)
	}
	a.set = set
	if a.setHash, err = strategyconfig.Hash(set); err != nil {
		return nil, fmt.Errorf("hash strategy set: %w", err)
	}

	// 4. Storage (optional)
	if a.redis, err = redis.New(cfg); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	if cfg.Database.Enabled() {
		if a.db, err = database.New(cfg); err != nil {
			a.Close()
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		if err := a.db.Migrate(context.Background()); err != nil {
			a.Close()
			return nil, fmt.Errorf("migrate database: %w", err)
		}
		log.Info("Connected to database")
	}

	var snapshots contracts.SnapshotRepository
	if a.db != nil {
		a.bars = history.NewPostgresBars(a.db.Pool)
		snapshots = history.NewPostgresSnapshots(a.db.Pool)
	} else {
		a.bars = history.NewMemoryBars()
		snapshots = history.NewMemorySnapshots()
		log.Warn("DATABASE_URL not set, history and snapshots are kept in memory")
	}

	// 5. Upstream provider
	httpClient := httputil.New(cfg, log)
	if a.redis.Enabled() {
		httpClient.WithRateLimiter(
			redis.NewRateLimiter(a.redis, "ratelimit"),
			redis.ProviderRateLimit(cfg.Provider.Name, cfg.Provider.RequestsPerSec),
		)
	}
	a.provider = marketdata.NewClient(httpClient, cfg.Provider, log)

	// 6. Gateway
	clk := clock.Real{}
	breaker, err := gateway.NewBreaker(gateway.BreakerConfigFrom(cfg.Provider.Name, cfg.Gateway), clk, log, rec)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("create breaker: %w", err)
	}
	quotes := gateway.NewQuoteCache(cfg.Gateway.QuoteCacheTTL, clk, log)
	if a.redis.Enabled() {
		quotes.WithRedis(redis.NewCache(a.redis, "quotes"))
	}
	a.gateway = gateway.New(a.provider, breaker, quotes, log).
		WithSnapshots(snapshots).
		WithMetrics(rec)
	batch := gateway.BatchConfigFrom(cfg.Gateway)

	// 7. Compliance
	store := compliance.NewStore(clk, log)
	if a.redis.Enabled() {
		store.WithRedis(redis.NewCache(a.redis, "compliance"))
	}
	a.resolver, err = compliance.NewResolver(a.gateway, store, compliance.ConfigFrom(cfg.Compliance, batch), clk, log)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("create compliance resolver: %w", err)
	}
	a.resolver.WithRules(set.ScreeningRules()).WithMetrics(rec)
	if cfg.Compliance.OverridesPath != "" {
		overrides, err := compliance.LoadOverrides(cfg.Compliance.OverridesPath)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("load compliance overrides: %w", err)
		}
		a.resolver.WithOverrides(overrides)
	}

	// 8. Strategies and consensus
	if a.registry, err = set.BuildRegistry(log); err != nil {
		a.Close()
		return nil, fmt.Errorf("build strategy registry: %w", err)
	}
	engine, err := consensus.NewEngine(set.ConsensusConfig(), log)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("create consensus engine: %w", err)
	}
	a.engine = engine.WithMetrics(rec)

	// 9. Sinks
	a.hub = sink.NewHub(log)
	a.fanout = sink.NewFanout(log, sink.Named{Name: "websocket", Sink: a.hub}).WithMetrics(rec)
	if a.db != nil {
		repo := sink.NewSignalRepository(a.db.Pool)
		a.signals = repo
		a.fanout.Add("postgres", repo)
	}
	if cfg.Kafka.Enabled {
		if a.kafka, err = sink.NewKafkaSink(cfg.Kafka); err != nil {
			a.Close()
			return nil, fmt.Errorf("create kafka sink: %w", err)
		}
		a.fanout.Add("kafka", a.kafka)
	}

	// 10. Pipeline
	orch, err := pipeline.NewOrchestrator(a.gateway, a.registry, a.engine, batch, log)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("create pipeline: %w", err)
	}
	a.pipeline = orch.
		WithCompliance(a.resolver).
		WithHistory(a.bars, cfg.HistoryDays).
		WithScorer(strategy.FundamentalsScorer{}).
		WithSink(a.fanout).
		WithConfigHash(a.setHash).
		WithMetrics(rec)

	// 11. Backtest and history sync
	a.backtest = backtest.NewEngine(a.bars, a.engine, log).
		WithCompliance(a.resolver).
		WithScorer(strategy.FundamentalsScorer{}).
		WithMetrics(rec)
	a.btConfig = set.BacktestConfig(backtest.ConfigFrom(cfg.Backtest))
	a.syncer = history.NewSyncer(a.provider, a.bars, cfg.Gateway.Workers, log)

	log.WithFields(map[string]interface{}{
		"set_id":     set.Meta.SetID,
		"config":     a.setHash,
		"strategies": a.registry.IDs(),
		"sinks":      a.fanout.Names(),
	}).Info("Signal engine wired")

	return a, nil
}

// newScheduler registers every recurring job
func (a *app) newScheduler() (*scheduler.Scheduler, error) {
	sched := scheduler.New(a.log)

	for _, job := range []scheduler.Job{
		jobs.NewSignalJob(a.pipeline, a.universe, "", a.log),
		jobs.NewHistorySyncJob(a.syncer, a.universe, 5, clock.Real{}, a.log), // daily top-up
		jobs.NewComplianceRefreshJob(a.resolver, a.universe, a.log),
		jobs.NewComplianceCleanupJob(a.resolver.Store(), a.log),
	} {
		if err := sched.AddJob(job); err != nil {
			return nil, fmt.Errorf("add job %s: %w", job.Name(), err)
		}
	}

	return sched, nil
}

// Close releases external connections
func (a *app) Close() {
	if a.hub != nil {
		a.hub.Close()
	}
	if a.kafka != nil {
		if err := a.kafka.Close(); err != nil {
			a.log.WithError(err).Warn("Failed to close kafka writer")
		}
	}
	if a.db != nil {
		a.db.Close()
	}
	if a.redis != nil {
		a.redis.Close()
	}
}
