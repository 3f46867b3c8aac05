package compliance

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wonny/aegis-signals/internal/contracts"
	"github.com/wonny/aegis-signals/internal/gateway"
	"github.com/wonny/aegis-signals/pkg/clock"
	"github.com/wonny/aegis-signals/pkg/config"
	"github.com/wonny/aegis-signals/pkg/logger"
	"github.com/wonny/aegis-signals/pkg/metrics"
)

// QuoteSource is the part of the gateway the resolver depends on
type QuoteSource interface {
	FetchBatch(ctx context.Context, symbols []string, cfg gateway.BatchConfig) (*gateway.BatchResult, error)
	LastKnownQuote(ctx context.Context, symbol string) (contracts.MarketQuote, bool)
}

// Config holds resolver tuning
type Config struct {
	PrimaryTTL  time.Duration // provider-tier records
	FallbackTTL time.Duration // cached fundamentals, heuristic and override records
	UnknownTTL  time.Duration // default-tier records
	Concurrency int
	Batch       gateway.BatchConfig
}

// DefaultConfig returns 90d / 7d / 1d TTLs
func DefaultConfig() Config {
	return Config{
		PrimaryTTL:  90 * 24 * time.Hour,
		FallbackTTL: 7 * 24 * time.Hour,
		UnknownTTL:  24 * time.Hour,
		Concurrency: 8,
		Batch:       gateway.DefaultBatchConfig(),
	}
}

// ConfigFrom builds resolver config from the environment sections
func ConfigFrom(c config.ComplianceConfig, batch gateway.BatchConfig) Config {
	return Config{
		PrimaryTTL:  c.PrimaryTTL,
		FallbackTTL: c.FallbackTTL,
		UnknownTTL:  c.UnknownTTL,
		Concurrency: c.Concurrency,
		Batch:       batch,
	}
}

// Validate fails fast on unusable settings
func (c Config) Validate() error {
	if c.PrimaryTTL <= 0 || c.FallbackTTL <= 0 || c.UnknownTTL <= 0 {
		return fmt.Errorf("compliance TTLs must be positive")
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("compliance concurrency must be >= 1, got %d", c.Concurrency)
	}
	return c.Batch.Validate()
}

// Options control a single resolution
type Options struct {
	ForceRefresh bool // skip the cache
}

// UniverseResult is the outcome of resolving many instruments
type UniverseResult struct {
	Records   map[string]contracts.ComplianceRecord `json:"records"`
	CacheHits int                                   `json:"cache_hits"`
	Degraded  bool                                  `json:"degraded"`
	Cancelled bool                                  `json:"cancelled"`
}

// Eligible returns the compliant symbols in ascending order
func (u *UniverseResult) Eligible() []string {
	out := make([]string, 0, len(u.Records))
	for sym, rec := range u.Records {
		if rec.Eligible() {
			out = append(out, sym)
		}
	}
	sort.Strings(out)
	return out
}

// Resolver determines compliance through an ordered fallback chain
// ⭐ SSOT: the only writer of ComplianceRecords
type Resolver struct {
	quotes     QuoteSource
	store      *Store
	rules      ScreeningRules
	heuristics Heuristics
	overrides  *OverrideTable
	chain      []FallbackTier
	cfg        Config
	clock      clock.Clock
	metrics    *metrics.Recorder
	logger     *logger.Logger

	mu          sync.RWMutex
	instruments map[string]contracts.Instrument
}

// NewResolver creates a resolver with the default chain
func NewResolver(quotes QuoteSource, store *Store, cfg Config, clk clock.Clock, log *logger.Logger) (*Resolver, error) {
	if quotes == nil {
		return nil, errors.New("compliance resolver requires a quote source")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if clk == nil {
		clk = clock.Real{}
	}
	if log == nil {
		log = logger.Nop()
	}
	if store == nil {
		store = NewStore(clk, log)
	}

	r := &Resolver{
		quotes:      quotes,
		store:       store,
		rules:       DefaultScreeningRules(),
		heuristics:  DefaultHeuristics(),
		cfg:         cfg,
		clock:       clk,
		logger:      log.Module("compliance"),
		instruments: make(map[string]contracts.Instrument),
	}
	r.chain = r.DefaultChain()
	return r, nil
}

// WithRules replaces the screening rules
func (r *Resolver) WithRules(rules ScreeningRules) *Resolver {
	r.rules = rules
	return r
}

// WithHeuristics replaces the heuristic tier's settings
func (r *Resolver) WithHeuristics(h Heuristics) *Resolver {
	r.heuristics = h
	return r
}

// WithOverrides attaches the curated override table
func (r *Resolver) WithOverrides(t *OverrideTable) *Resolver {
	r.overrides = t
	return r
}

// WithChain replaces the tier chain
func (r *Resolver) WithChain(chain []FallbackTier) *Resolver {
	r.chain = chain
	return r
}

// WithMetrics attaches a Prometheus recorder
func (r *Resolver) WithMetrics(rec *metrics.Recorder) *Resolver {
	r.metrics = rec
	return r
}

// Store exposes the record cache
func (r *Resolver) Store() *Store {
	return r.store
}

// Register records instrument metadata used by the heuristic tier
func (r *Resolver) Register(instruments ...contracts.Instrument) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, inst := range instruments {
		r.instruments[inst.Symbol] = inst
	}
}

func (r *Resolver) instrument(symbol string) contracts.Instrument {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if inst, ok := r.instruments[symbol]; ok {
		return inst
	}
	return contracts.Instrument{Symbol: symbol}
}

// Resolve returns the compliance record for one instrument.
// A non-expired cached record is returned without touching the gateway.
func (r *Resolver) Resolve(ctx context.Context, symbol string, opts Options) (contracts.ComplianceRecord, error) {
	if symbol == "" {
		return contracts.ComplianceRecord{}, errors.New("symbol is required")
	}

	if !opts.ForceRefresh {
		if rec, ok := r.store.Get(ctx, symbol); ok {
			return rec, nil
		}
	}

	if err := ctx.Err(); err != nil {
		return contracts.ComplianceRecord{}, err
	}

	batch, err := r.quotes.FetchBatch(ctx, []string{symbol}, r.cfg.Batch)
	if err != nil {
		return contracts.ComplianceRecord{}, fmt.Errorf("fetch %s: %w", symbol, err)
	}

	rec := r.runChain(ctx, r.tierInput(symbol, batch))
	r.store.Put(ctx, rec)
	return rec, nil
}

// ResolveUniverse resolves many instruments.
//
// Cache hits are served directly; all misses share one gateway batch and
// then run the chain concurrently. On cancellation instruments that were not
// started are left out of Records and Cancelled is set.
func (r *Resolver) ResolveUniverse(ctx context.Context, symbols []string) (*UniverseResult, error) {
	return r.ResolveUniverseFrom(ctx, symbols, nil)
}

// ResolveUniverseFrom is ResolveUniverse for callers that already fetched the
// universe: misses present in fetched use it as the provider-tier input and
// only the remaining misses go to the gateway. A nil fetched fetches all misses.
func (r *Resolver) ResolveUniverseFrom(ctx context.Context, symbols []string, fetched *gateway.BatchResult) (*UniverseResult, error) {
	start := r.clock.Now()
	out := &UniverseResult{Records: make(map[string]contracts.ComplianceRecord, len(symbols))}

	var misses []string
	seen := make(map[string]struct{}, len(symbols))
	for _, sym := range symbols {
		if _, dup := seen[sym]; dup {
			continue
		}
		seen[sym] = struct{}{}

		if rec, ok := r.store.Get(ctx, sym); ok {
			out.Records[sym] = rec
			out.CacheHits++
			continue
		}
		misses = append(misses, sym)
	}

	if len(misses) > 0 {
		if err := r.resolveMisses(ctx, misses, fetched, out); err != nil {
			return nil, err
		}
	}

	for _, rec := range out.Records {
		if rec.Status == contracts.StatusUnknown {
			out.Degraded = true
			break
		}
	}

	r.logger.WithFields(map[string]interface{}{
		"requested":  len(seen),
		"resolved":   len(out.Records),
		"cache_hits": out.CacheHits,
		"degraded":   out.Degraded,
		"cancelled":  out.Cancelled,
		"elapsed":    r.clock.Now().Sub(start).String(),
	}).Info("Universe compliance resolved")

	return out, nil
}

func (r *Resolver) resolveMisses(ctx context.Context, misses []string, fetched *gateway.BatchResult, out *UniverseResult) error {
	if ctx.Err() != nil {
		out.Cancelled = true
		return nil
	}

	batch := &gateway.BatchResult{Results: make(map[string]gateway.Result, len(misses))}
	var toFetch []string
	for _, sym := range misses {
		if fetched != nil {
			if res, ok := fetched.Results[sym]; ok {
				batch.Results[sym] = res
				continue
			}
		}
		toFetch = append(toFetch, sym)
	}
	if fetched != nil && len(toFetch) < len(misses) {
		batch.Degraded = fetched.Degraded
		batch.Cancelled = fetched.Cancelled
	}

	if len(toFetch) > 0 {
		res, err := r.quotes.FetchBatch(ctx, toFetch, r.cfg.Batch)
		if err != nil {
			return fmt.Errorf("fetch universe: %w", err)
		}
		for sym, rr := range res.Results {
			batch.Results[sym] = rr
		}
		batch.Degraded = batch.Degraded || res.Degraded
		batch.Cancelled = batch.Cancelled || res.Cancelled
	}
	if batch.Degraded {
		out.Degraded = true
	}
	if batch.Cancelled {
		out.Cancelled = true
	}

	var mu sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(r.cfg.Concurrency)

	for _, sym := range misses {
		if res, ok := batch.Results[sym]; ok && res.Failure == gateway.FailureCancelled {
			continue
		}
		if ctx.Err() != nil {
			out.Cancelled = true
			break
		}

		g.Go(func() error {
			rec := r.runChain(ctx, r.tierInput(sym, batch))
			r.store.Put(ctx, rec)

			mu.Lock()
			out.Records[sym] = rec
			mu.Unlock()
			return nil
		})
	}

	return g.Wait()
}

// Invalidate evicts a cached record
func (r *Resolver) Invalidate(ctx context.Context, symbol string) {
	r.store.Delete(ctx, symbol)
	r.logger.WithSymbol(symbol).Debug("Compliance record invalidated")
}

func (r *Resolver) tierInput(symbol string, batch *gateway.BatchResult) TierInput {
	in := TierInput{Instrument: r.instrument(symbol)}
	res, ok := batch.Results[symbol]
	if !ok {
		in.FetchFailure = "not fetched"
		return in
	}
	if res.Quote != nil {
		q := *res.Quote
		in.Fresh = &q
	}
	if res.Failure != gateway.FailureNone {
		in.FetchFailure = string(res.Failure)
		if res.Err != nil {
			in.FetchFailure += " (" + res.Err.Error() + ")"
		}
	}
	return in
}

// runChain evaluates tiers in order; the first determination wins
func (r *Resolver) runChain(ctx context.Context, in TierInput) contracts.ComplianceRecord {
	var notes []string

	for _, tier := range r.chain {
		d, tierNotes, ok := tier.Fn(ctx, in)
		notes = append(notes, tierNotes...)
		if !ok {
			continue
		}

		rec := r.record(in.Instrument.Symbol, tier.Kind, d, notes)
		r.metrics.RecordCompliance(string(tier.Kind), string(rec.Status))
		r.logger.WithFields(map[string]interface{}{
			"symbol":     rec.Symbol,
			"tier":       rec.ResolvedBy,
			"status":     rec.Status,
			"confidence": rec.Confidence,
		}).Debug("Compliance resolved")
		return rec
	}

	// A custom chain without a default tier still never yields NON_COMPLIANT
	d, tierNotes, _ := defaultTier(ctx, in)
	rec := r.record(in.Instrument.Symbol, contracts.TierDefault, d, append(notes, tierNotes...))
	r.metrics.RecordCompliance(string(contracts.TierDefault), string(rec.Status))
	return rec
}

func (r *Resolver) record(symbol string, kind contracts.TierKind, d Determination, notes []string) contracts.ComplianceRecord {
	now := r.clock.Now()
	return contracts.ComplianceRecord{
		Symbol:         symbol,
		Status:         d.Status,
		Confidence:     d.Confidence,
		ResolvedBy:     kind,
		ResolvedAt:     now,
		ExpiresAt:      now.Add(r.ttl(kind)),
		ReviewRequired: d.Review || d.Confidence == contracts.ConfidenceLow,
		Notes:          notes,
	}
}

func (r *Resolver) ttl(kind contracts.TierKind) time.Duration {
	switch kind {
	case contracts.TierProvider:
		return r.cfg.PrimaryTTL
	case contracts.TierDefault:
		return r.cfg.UnknownTTL
	default:
		return r.cfg.FallbackTTL
	}
}
