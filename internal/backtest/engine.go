package backtest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wonny/aegis-signals/internal/compliance"
	"github.com/wonny/aegis-signals/internal/consensus"
	"github.com/wonny/aegis-signals/internal/contracts"
	"github.com/wonny/aegis-signals/internal/strategy"
	"github.com/wonny/aegis-signals/pkg/config"
	"github.com/wonny/aegis-signals/pkg/logger"
	"github.com/wonny/aegis-signals/pkg/metrics"
)

// ErrNoUsableData is returned when every instrument had to be skipped
var ErrNoUsableData = errors.New("no usable historical data in universe")

// Config holds backtest parameters
type Config struct {
	MaxHoldingDays int     // timeout once the holding period exceeds this many bars
	MinHistoryBars int     // instruments with fewer loaded bars are skipped
	WarmupDays     int     // calendar days of history loaded before the range
	Lookback       int     // bars handed to strategies per day, 0 = all so far
	Workers        int     // instruments replayed in parallel
	Commission     float64 // per leg, e.g. 0.0015
	Slippage       float64 // per leg, e.g. 0.001
}

// DefaultConfig returns 20-day holding, 60-bar minimum, 4 workers
func DefaultConfig() Config {
	return Config{
		MaxHoldingDays: 20,
		MinHistoryBars: 60,
		WarmupDays:     120,
		Lookback:       250,
		Workers:        4,
	}
}

// ConfigFrom builds a Config from the environment section
func ConfigFrom(c config.BacktestConfig) Config {
	cfg := DefaultConfig()
	cfg.MaxHoldingDays = c.MaxHoldingDays
	cfg.MinHistoryBars = c.MinHistoryBars
	cfg.Workers = c.Workers
	return cfg
}

// Validate fails fast on unusable settings
func (c Config) Validate() error {
	if c.MaxHoldingDays < 1 {
		return fmt.Errorf("max_holding_days must be >= 1, got %d", c.MaxHoldingDays)
	}
	if c.MinHistoryBars < 0 || c.WarmupDays < 0 || c.Lookback < 0 {
		return fmt.Errorf("history settings must not be negative")
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be >= 1, got %d", c.Workers)
	}
	if c.Commission < 0 || c.Slippage < 0 {
		return fmt.Errorf("commission and slippage must not be negative")
	}
	return nil
}

func (c Config) roundTripCost() float64 {
	return 2 * (c.Commission + c.Slippage)
}

// Eligibility filters the universe before replay
type Eligibility interface {
	ResolveUniverse(ctx context.Context, symbols []string) (*compliance.UniverseResult, error)
}

// Engine replays history through the live strategy and consensus components
// ⭐ SSOT: backtests never duplicate aggregation logic; they call consensus.Engine
type Engine struct {
	bars      contracts.BarRepository
	consensus *consensus.Engine
	eligible  Eligibility
	scorer    contracts.QualityScorer
	metrics   *metrics.Recorder
	logger    *logger.Logger
}

// NewEngine creates a backtest engine
func NewEngine(bars contracts.BarRepository, cons *consensus.Engine, log *logger.Logger) *Engine {
	if log == nil {
		log = logger.Nop()
	}
	return &Engine{
		bars:      bars,
		consensus: cons,
		logger:    log.Module("backtest"),
	}
}

// WithCompliance restricts replay to eligible instruments
func (e *Engine) WithCompliance(el Eligibility) *Engine {
	e.eligible = el
	return e
}

// WithScorer feeds an external quality score into consensus, as in live runs
func (e *Engine) WithScorer(s contracts.QualityScorer) *Engine {
	e.scorer = s
	return e
}

// WithMetrics attaches a Prometheus recorder
func (e *Engine) WithMetrics(rec *metrics.Recorder) *Engine {
	e.metrics = rec
	return e
}

// instrumentResult is one instrument's replay outcome
type instrumentResult struct {
	trades    []contracts.BacktestTrade
	skipped   *contracts.SkippedInstrument
	cancelled bool
}

// Run replays the universe over the date range.
//
// Instruments run in parallel, days within an instrument run in order.
// On cancellation instruments not yet started are left out and the
// partial report is returned with Cancelled set.
func (e *Engine) Run(ctx context.Context, strategies []contracts.StrategyAdapter, universe contracts.Universe, r contracts.DateRange, cfg Config) (*contracts.BacktestReport, error) {
	if e.bars == nil || e.consensus == nil {
		return nil, errors.New("backtest engine requires a bar repository and a consensus engine")
	}
	if !r.Valid() {
		return nil, fmt.Errorf("invalid date range %s..%s", r.From.Format(dateLayout), r.To.Format(dateLayout))
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(strategies) == 0 {
		return nil, errors.New("backtest requires at least one strategy")
	}

	start := time.Now()
	log := e.logger.WithFields(map[string]interface{}{
		"from":        r.From.Format(dateLayout),
		"to":          r.To.Format(dateLayout),
		"instruments": universe.Count(),
		"strategies":  len(strategies),
	})
	log.Info("Starting backtest")

	registry := strategy.NewRegistry(e.logger)
	for _, s := range strategies {
		if err := registry.Register(s); err != nil {
			return nil, err
		}
	}

	instruments, skipped, err := e.filter(ctx, universe)
	if err != nil {
		return nil, err
	}

	var (
		mu        sync.Mutex
		trades    []contracts.BacktestTrade
		replayed  int
		cancelled bool
	)

	g := new(errgroup.Group)
	g.SetLimit(cfg.Workers)
	for _, inst := range instruments {
		if ctx.Err() != nil {
			cancelled = true
			break
		}
		g.Go(func() error {
			res := e.replay(ctx, registry, inst, r, cfg)

			mu.Lock()
			defer mu.Unlock()
			if res.cancelled {
				cancelled = true
				return nil
			}
			if res.skipped != nil {
				skipped = append(skipped, *res.skipped)
				return nil
			}
			replayed++
			trades = append(trades, res.trades...)
			return nil
		})
	}
	_ = g.Wait()
	cancelled = cancelled || ctx.Err() != nil

	if replayed == 0 && !cancelled {
		log.WithField("skipped", len(skipped)).Warn("Backtest found no usable data")
		return nil, ErrNoUsableData
	}

	report := buildReport(r, universe.Count(), trades, skipped)
	report.Cancelled = cancelled
	e.metrics.ObserveDuration("backtest", start)

	log.WithFields(map[string]interface{}{
		"replayed":     replayed,
		"skipped":      len(skipped),
		"trades":       report.TotalTrades,
		"win_rate":     fmt.Sprintf("%.2f%%", report.WinRate*100),
		"total_return": fmt.Sprintf("%.2f%%", report.TotalReturn*100),
		"max_drawdown": fmt.Sprintf("%.2f%%", report.MaxDrawdown*100),
		"cancelled":    cancelled,
		"elapsed":      time.Since(start).String(),
	}).Info("Backtest completed")

	return report, nil
}

// filter drops untradable instruments and, when configured, non-eligible ones
func (e *Engine) filter(ctx context.Context, universe contracts.Universe) ([]contracts.Instrument, []contracts.SkippedInstrument, error) {
	var keep []contracts.Instrument
	var skipped []contracts.SkippedInstrument

	for _, inst := range universe.Instruments {
		if !inst.Tradable {
			skipped = append(skipped, contracts.SkippedInstrument{Symbol: inst.Symbol, Reason: "not tradable"})
			continue
		}
		keep = append(keep, inst)
	}

	if e.eligible == nil || len(keep) == 0 {
		return keep, skipped, nil
	}

	symbols := make([]string, len(keep))
	for i, inst := range keep {
		symbols[i] = inst.Symbol
	}
	res, err := e.eligible.ResolveUniverse(ctx, symbols)
	if err != nil {
		return nil, nil, fmt.Errorf("resolve compliance: %w", err)
	}

	eligible := keep[:0]
	for _, inst := range keep {
		rec, ok := res.Records[inst.Symbol]
		switch {
		case !ok:
			skipped = append(skipped, contracts.SkippedInstrument{Symbol: inst.Symbol, Reason: "compliance unresolved"})
		case !rec.Eligible():
			skipped = append(skipped, contracts.SkippedInstrument{Symbol: inst.Symbol, Reason: "compliance " + string(rec.Status)})
		default:
			eligible = append(eligible, inst)
		}
	}
	return eligible, skipped, nil
}

// replay walks one instrument's bars in date order
func (e *Engine) replay(ctx context.Context, registry *strategy.Registry, inst contracts.Instrument, r contracts.DateRange, cfg Config) instrumentResult {
	load := contracts.DateRange{From: r.From.AddDate(0, 0, -cfg.WarmupDays), To: r.To}
	bars, err := e.bars.Bars(ctx, inst.Symbol, load)
	if err != nil && (errors.Is(err, context.Canceled) || ctx.Err() != nil) {
		return instrumentResult{cancelled: true}
	}
	if err != nil {
		e.logger.WithError(err).WithSymbol(inst.Symbol).Warn("Failed to load history, skipping instrument")
		return instrumentResult{skipped: &contracts.SkippedInstrument{Symbol: inst.Symbol, Reason: "history unavailable"}}
	}

	first := -1
	for i, b := range bars {
		if r.Contains(b.Date) {
			first = i
			break
		}
	}
	if len(bars) < cfg.MinHistoryBars || first < 0 {
		e.logger.WithFields(map[string]interface{}{
			"symbol": inst.Symbol,
			"bars":   len(bars),
			"min":    cfg.MinHistoryBars,
		}).Warn("Insufficient history, skipping instrument")
		return instrumentResult{skipped: &contracts.SkippedInstrument{
			Symbol: inst.Symbol,
			Reason: fmt.Sprintf("insufficient history: %d bars", len(bars)),
		}}
	}

	var out []contracts.BacktestTrade
	var open *position
	last := first

	for i := first; i < len(bars) && r.Contains(bars[i].Date); i++ {
		last = i
		bar := bars[i]

		if open != nil {
			if open.update(i, bar, cfg.MaxHoldingDays).Closed() {
				out = append(out, open.trade(bar, cfg.roundTripCost()))
				open = nil
			}
		}
		if open != nil {
			continue
		}

		history := bars[:i+1]
		if cfg.Lookback > 0 && len(history) > cfg.Lookback {
			history = history[len(history)-cfg.Lookback:]
		}
		quote := contracts.QuoteFromBar(inst.Symbol, bar)

		raws := registry.Evaluate(inst, quote, history)
		if len(raws) == 0 {
			continue
		}
		sig, ok := e.consensus.Aggregate(inst.Symbol, raws, e.score(inst, quote, history))
		if !ok || !tradeable(sig) {
			continue
		}
		open = openPosition(sig, i, bar)
	}

	// End of data with an open trade closes as a timeout at the last close
	if open != nil {
		open.expire(last, bars[last])
		out = append(out, open.trade(bars[last], cfg.roundTripCost()))
	}

	return instrumentResult{trades: out}
}

func (e *Engine) score(inst contracts.Instrument, quote contracts.MarketQuote, history []contracts.Bar) *float64 {
	if e.scorer == nil {
		return nil
	}
	s, err := e.scorer.Score(inst, strategy.FeaturesFrom(quote, history))
	if err != nil {
		return nil
	}
	return &s
}
