package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/wonny/aegis-signals/internal/compliance"
	"github.com/wonny/aegis-signals/internal/consensus"
	"github.com/wonny/aegis-signals/internal/contracts"
	"github.com/wonny/aegis-signals/internal/gateway"
	"github.com/wonny/aegis-signals/internal/strategy"
	"github.com/wonny/aegis-signals/pkg/clock"
	"github.com/wonny/aegis-signals/pkg/logger"
	"github.com/wonny/aegis-signals/pkg/metrics"
)

// QuoteFetcher is the gateway surface the pipeline needs
type QuoteFetcher interface {
	FetchBatch(ctx context.Context, symbols []string, cfg gateway.BatchConfig) (*gateway.BatchResult, error)
}

// Eligibility filters the universe through compliance.
// fetched is the batch the fetch stage produced, so the provider is called once per symbol.
type Eligibility interface {
	Register(instruments ...contracts.Instrument)
	ResolveUniverseFrom(ctx context.Context, symbols []string, fetched *gateway.BatchResult) (*compliance.UniverseResult, error)
}

// Orchestrator runs one signal generation pass:
//
//	fetch → compliance → strategies → consensus → publish
//
// ⭐ SSOT: live pipeline coordination lives here only
type Orchestrator struct {
	quotes     QuoteFetcher
	eligible   Eligibility
	registry   *strategy.Registry
	consensus  *consensus.Engine
	bars       contracts.BarRepository
	scorer     contracts.QualityScorer
	sink       contracts.SignalSink
	batch      gateway.BatchConfig
	configHash string

	historyDays int
	workers     int

	clock   clock.Clock
	metrics *metrics.Recorder
	logger  *logger.Logger
}

// NewOrchestrator creates an orchestrator. Compliance, history, scorer and sink are optional.
func NewOrchestrator(quotes QuoteFetcher, registry *strategy.Registry, cons *consensus.Engine, batch gateway.BatchConfig, log *logger.Logger) (*Orchestrator, error) {
	if quotes == nil || registry == nil || cons == nil {
		return nil, errors.New("pipeline requires a quote fetcher, a strategy registry and a consensus engine")
	}
	if err := batch.Validate(); err != nil {
		return nil, fmt.Errorf("invalid batch config: %w", err)
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Orchestrator{
		quotes:      quotes,
		registry:    registry,
		consensus:   cons,
		batch:       batch,
		historyDays: 365,
		workers:     8,
		clock:       clock.Real{},
		logger:      log.Module("pipeline"),
	}, nil
}

// WithCompliance filters the universe before strategies run
func (o *Orchestrator) WithCompliance(e Eligibility) *Orchestrator {
	o.eligible = e
	return o
}

// WithHistory hands strategies the trailing bars from repo
func (o *Orchestrator) WithHistory(repo contracts.BarRepository, days int) *Orchestrator {
	o.bars = repo
	if days > 0 {
		o.historyDays = days
	}
	return o
}

// WithScorer blends an external quality score into consensus
func (o *Orchestrator) WithScorer(s contracts.QualityScorer) *Orchestrator {
	o.scorer = s
	return o
}

// WithSink publishes emitted signals
func (o *Orchestrator) WithSink(s contracts.SignalSink) *Orchestrator {
	o.sink = s
	return o
}

// WithConfigHash stamps every run summary with the strategy-set hash
func (o *Orchestrator) WithConfigHash(hash string) *Orchestrator {
	o.configHash = hash
	return o
}

// WithClock replaces the wall clock
func (o *Orchestrator) WithClock(c clock.Clock) *Orchestrator {
	o.clock = c
	return o
}

// WithMetrics attaches a recorder
func (o *Orchestrator) WithMetrics(rec *metrics.Recorder) *Orchestrator {
	o.metrics = rec
	return o
}

// WithWorkers bounds strategy evaluation concurrency
func (o *Orchestrator) WithWorkers(n int) *Orchestrator {
	if n > 0 {
		o.workers = n
	}
	return o
}

// RunConfig holds configuration for a pipeline run
type RunConfig struct {
	RunID    string // generated when empty
	Universe contracts.Universe
	DryRun   bool // skip publishing
}

// candidate is one eligible instrument with its quote and trailing bars
type candidate struct {
	inst    contracts.Instrument
	quote   contracts.MarketQuote
	history []contracts.Bar
}

// Run executes the full pipeline.
//
// Transient failures degrade the summary instead of failing the run. On
// cancellation the stages completed so far are returned with Cancelled set and
// nothing is published.
func (o *Orchestrator) Run(ctx context.Context, cfg RunConfig) (*contracts.RunSummary, error) {
	start := time.Now()
	if cfg.RunID == "" {
		cfg.RunID = uuid.NewString()
	}

	summary := &contracts.RunSummary{
		RunID:      cfg.RunID,
		ConfigHash: o.configHash,
		Signals:    []contracts.ConsensusSignal{},
		Stages:     make([]contracts.StageResult, 0, len(contracts.AllStages())),
		Excluded:   make(map[string]string),
	}

	log := o.logger.WithRun(cfg.RunID)
	log.WithFields(map[string]interface{}{
		"instruments": cfg.Universe.Count(),
		"strategies":  o.registry.Len(),
		"config_hash": o.configHash,
		"dry_run":     cfg.DryRun,
	}).Info("Starting pipeline run")

	instruments := make(map[string]contracts.Instrument, cfg.Universe.Count())
	var symbols []string
	for _, inst := range cfg.Universe.Instruments {
		if !inst.Eligible() {
			summary.Excluded[inst.Symbol] = "not tradable"
			continue
		}
		if _, dup := instruments[inst.Symbol]; dup {
			continue
		}
		instruments[inst.Symbol] = inst
		symbols = append(symbols, inst.Symbol)
	}

	// FETCH
	fetched, err := o.fetch(ctx, symbols, summary)
	if err != nil {
		return summary, err
	}
	if o.stop(ctx, summary) {
		return summary, nil
	}
	quotes := fetched.Quotes()

	// COMPLIANCE
	symbols, err = o.filter(ctx, instruments, symbols, fetched, summary)
	if err != nil {
		return summary, err
	}
	if o.stop(ctx, summary) {
		return summary, nil
	}

	// STRATEGIES
	var candidates []candidate
	for _, sym := range symbols {
		q, ok := quotes[sym]
		if !ok {
			summary.Excluded[sym] = "no quote"
			continue
		}
		candidates = append(candidates, candidate{inst: instruments[sym], quote: q})
	}
	inputs := o.evaluate(ctx, candidates, summary)
	if o.stop(ctx, summary) {
		return summary, nil
	}

	// CONSENSUS
	signals := o.aggregate(ctx, inputs, summary)
	if o.stop(ctx, summary) {
		return summary, nil
	}
	summary.Signals = signals

	// PUBLISH
	if !cfg.DryRun {
		o.publish(ctx, signals, summary)
	}

	o.metrics.ObserveDuration("pipeline_run", start)
	log.WithFields(map[string]interface{}{
		"signals":   len(summary.Signals),
		"excluded":  len(summary.Excluded),
		"degraded":  summary.Degraded,
		"cancelled": summary.Cancelled,
		"elapsed":   time.Since(start).String(),
	}).Info("Pipeline run completed")

	return summary, nil
}

func (o *Orchestrator) stop(ctx context.Context, summary *contracts.RunSummary) bool {
	if ctx.Err() == nil {
		return false
	}
	summary.Cancelled = true
	o.logger.WithRun(summary.RunID).Warn("Pipeline run cancelled")
	return true
}

func (o *Orchestrator) fetch(ctx context.Context, symbols []string, summary *contracts.RunSummary) (*gateway.BatchResult, error) {
	start := time.Now()
	stage := contracts.StageResult{Stage: contracts.StageFetch, InputCount: len(symbols)}

	if len(symbols) == 0 {
		stage.Success = true
		summary.Stages = append(summary.Stages, stage)
		return &gateway.BatchResult{Results: map[string]gateway.Result{}}, nil
	}

	res, err := o.quotes.FetchBatch(ctx, symbols, o.batch)
	if err != nil {
		stage.Error = err.Error()
		stage.Duration = time.Since(start).Milliseconds()
		summary.Stages = append(summary.Stages, stage)
		return nil, fmt.Errorf("fetch quotes: %w", err)
	}

	quotes := res.Quotes()
	for _, sym := range symbols {
		if r, ok := res.Results[sym]; ok && !r.OK() {
			summary.Excluded[sym] = "fetch " + string(r.Failure)
		}
	}
	summary.Degraded = summary.Degraded || res.Degraded
	summary.Cancelled = summary.Cancelled || res.Cancelled

	stage.Success = true
	stage.OutputCount = len(quotes)
	stage.Duration = time.Since(start).Milliseconds()
	summary.Stages = append(summary.Stages, stage)
	return res, nil
}

func (o *Orchestrator) filter(ctx context.Context, instruments map[string]contracts.Instrument, symbols []string, fetched *gateway.BatchResult, summary *contracts.RunSummary) ([]string, error) {
	start := time.Now()
	stage := contracts.StageResult{Stage: contracts.StageCompliance, InputCount: len(symbols)}

	if o.eligible == nil || len(symbols) == 0 {
		stage.Success = true
		stage.OutputCount = len(symbols)
		summary.Stages = append(summary.Stages, stage)
		return symbols, nil
	}

	insts := make([]contracts.Instrument, 0, len(symbols))
	for _, sym := range symbols {
		insts = append(insts, instruments[sym])
	}
	o.eligible.Register(insts...)

	res, err := o.eligible.ResolveUniverseFrom(ctx, symbols, fetched)
	if err != nil {
		stage.Error = err.Error()
		stage.Duration = time.Since(start).Milliseconds()
		summary.Stages = append(summary.Stages, stage)
		return nil, fmt.Errorf("resolve compliance: %w", err)
	}
	summary.Degraded = summary.Degraded || res.Degraded
	summary.Cancelled = summary.Cancelled || res.Cancelled

	var keep []string
	for _, sym := range symbols {
		rec, ok := res.Records[sym]
		switch {
		case !ok:
			summary.Excluded[sym] = "compliance unresolved"
		case !rec.Eligible():
			summary.Excluded[sym] = "compliance " + string(rec.Status)
		default:
			keep = append(keep, sym)
		}
	}

	stage.Success = true
	stage.OutputCount = len(keep)
	stage.Duration = time.Since(start).Milliseconds()
	summary.Stages = append(summary.Stages, stage)
	return keep, nil
}

func (o *Orchestrator) evaluate(ctx context.Context, candidates []candidate, summary *contracts.RunSummary) []consensus.Input {
	start := time.Now()
	stage := contracts.StageResult{Stage: contracts.StageStrategies, InputCount: len(candidates)}

	var (
		mu     sync.Mutex
		inputs = make([]consensus.Input, 0, len(candidates))
		raw    int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.workers)
	for _, c := range candidates {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			c.history = o.history(gctx, c.inst.Symbol, c.quote.FetchedAt)
			signals := o.registry.Evaluate(c.inst, c.quote, c.history)
			if len(signals) == 0 {
				return nil
			}
			in := consensus.Input{Symbol: c.inst.Symbol, Signals: signals, ExternalScore: o.score(c)}

			mu.Lock()
			inputs = append(inputs, in)
			raw += len(signals)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(inputs, func(i, j int) bool { return inputs[i].Symbol < inputs[j].Symbol })

	stage.Success = true
	stage.OutputCount = raw
	stage.Duration = time.Since(start).Milliseconds()
	summary.Stages = append(summary.Stages, stage)
	return inputs
}

// history loads trailing bars up to the quote's day; failures degrade to no history
func (o *Orchestrator) history(ctx context.Context, symbol string, asOf time.Time) []contracts.Bar {
	if o.bars == nil {
		return nil
	}
	if asOf.IsZero() {
		asOf = o.clock.Now()
	}
	day := time.Date(asOf.Year(), asOf.Month(), asOf.Day(), 0, 0, 0, 0, asOf.Location())
	r := contracts.DateRange{From: day.AddDate(0, 0, -o.historyDays), To: day}

	bars, err := o.bars.Bars(ctx, symbol, r)
	if err != nil {
		o.logger.WithError(err).WithSymbol(symbol).Warn("History unavailable")
		return nil
	}
	return bars
}

func (o *Orchestrator) score(c candidate) *float64 {
	if o.scorer == nil {
		return nil
	}
	s, err := o.scorer.Score(c.inst, strategy.FeaturesFrom(c.quote, c.history))
	if err != nil {
		o.logger.WithError(err).WithSymbol(c.inst.Symbol).Debug("Quality score unavailable")
		return nil
	}
	return &s
}

func (o *Orchestrator) aggregate(ctx context.Context, inputs []consensus.Input, summary *contracts.RunSummary) []contracts.ConsensusSignal {
	start := time.Now()
	stage := contracts.StageResult{Stage: contracts.StageConsensus, InputCount: len(inputs)}

	signals, err := o.consensus.AggregateAll(ctx, inputs)
	stage.Duration = time.Since(start).Milliseconds()
	if err != nil {
		stage.Error = err.Error()
		summary.Stages = append(summary.Stages, stage)
		return nil
	}
	for _, in := range inputs {
		if !containsSymbol(signals, in.Symbol) {
			summary.Excluded[in.Symbol] = "no consensus"
		}
	}

	stage.Success = true
	stage.OutputCount = len(signals)
	summary.Stages = append(summary.Stages, stage)
	return signals
}

func (o *Orchestrator) publish(ctx context.Context, signals []contracts.ConsensusSignal, summary *contracts.RunSummary) {
	start := time.Now()
	stage := contracts.StageResult{Stage: contracts.StagePublish, InputCount: len(signals)}

	if o.sink != nil && len(signals) > 0 {
		if err := o.sink.Publish(ctx, signals); err != nil {
			o.logger.WithError(err).WithRun(summary.RunID).Warn("Signal publish failed")
			stage.Error = err.Error()
			stage.Duration = time.Since(start).Milliseconds()
			summary.Stages = append(summary.Stages, stage)
			summary.Degraded = true
			return
		}
	}

	stage.Success = true
	stage.OutputCount = len(signals)
	stage.Duration = time.Since(start).Milliseconds()
	summary.Stages = append(summary.Stages, stage)
}

func containsSymbol(signals []contracts.ConsensusSignal, symbol string) bool {
	for _, s := range signals {
		if s.Symbol == symbol {
			return true
		}
	}
	return false
}
