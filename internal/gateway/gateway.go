package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/wonny/aegis-signals/internal/contracts"
	"github.com/wonny/aegis-signals/pkg/logger"
	"github.com/wonny/aegis-signals/pkg/metrics"
)

// Gateway fetches quotes from one provider in bounded, paced batches
// ⭐ SSOT: every upstream market-data call goes through FetchBatch
type Gateway struct {
	provider  contracts.QuoteProvider
	breaker   *Breaker
	cache     *QuoteCache
	snapshots contracts.SnapshotRepository
	metrics   *metrics.Recorder
	logger    *logger.Logger

	// sleep blocks for d unless ctx ends first
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a gateway
func New(provider contracts.QuoteProvider, breaker *Breaker, cache *QuoteCache, log *logger.Logger) *Gateway {
	return &Gateway{
		provider: provider,
		breaker:  breaker,
		cache:    cache,
		logger:   log.Module("gateway").WithField("provider", provider.Name()),
		sleep:    sleepCtx,
	}
}

// WithSnapshots persists every live quote and uses the store as a last-resort fallback
func (g *Gateway) WithSnapshots(repo contracts.SnapshotRepository) *Gateway {
	g.snapshots = repo
	return g
}

// WithMetrics attaches a Prometheus recorder
func (g *Gateway) WithMetrics(rec *metrics.Recorder) *Gateway {
	g.metrics = rec
	return g
}

// BreakerState returns the provider's breaker snapshot
func (g *Gateway) BreakerState() contracts.CircuitBreakerState {
	return g.breaker.State()
}

// LastKnownQuote returns the newest cached quote for a symbol, regardless of age.
// It never calls the provider.
func (g *Gateway) LastKnownQuote(ctx context.Context, symbol string) (contracts.MarketQuote, bool) {
	if q, ok := g.cache.Latest(symbol); ok {
		return q, true
	}
	if g.snapshots != nil {
		q, found, err := g.snapshots.LatestSnapshot(ctx, symbol)
		if err != nil {
			g.logger.WithError(err).WithSymbol(symbol).Warn("Snapshot lookup failed")
			return contracts.MarketQuote{}, false
		}
		if found {
			q.Provenance = contracts.ProvenanceCached
			return q, true
		}
	}
	return contracts.MarketQuote{}, false
}

// FetchBatch fetches quotes for symbols in groups of cfg.BatchSize.
//
// A single failure never aborts the run. Once the breaker opens the remaining
// instruments are served from cache. On cancellation in-flight items finish,
// no new group starts, and the partial result carries Cancelled.
func (g *Gateway) FetchBatch(ctx context.Context, symbols []string, cfg BatchConfig) (*BatchResult, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid batch config: %w", err)
	}

	start := time.Now()
	out := &BatchResult{Results: make(map[string]Result, len(symbols))}

	g.logger.WithFields(map[string]interface{}{
		"symbols":    len(symbols),
		"batch_size": cfg.BatchSize,
		"workers":    cfg.Workers,
	}).Info("Starting batch fetch")

	for i := 0; i < len(symbols); i += cfg.BatchSize {
		end := i + cfg.BatchSize
		if end > len(symbols) {
			end = len(symbols)
		}

		if i > 0 {
			if err := g.sleep(ctx, cfg.DelayBetweenBatches); err != nil {
				g.markCancelled(out, symbols[i:])
				break
			}
		}
		if ctx.Err() != nil {
			g.markCancelled(out, symbols[i:])
			break
		}

		out.Stats.Batches++
		for _, r := range g.runGroup(ctx, symbols[i:end], cfg) {
			out.Results[r.Symbol] = r
			if r.Failure == FailureCancelled {
				out.Cancelled = true
			}
		}
	}

	for _, r := range out.Results {
		switch {
		case r.Cached():
			out.Stats.Cached++
			out.Degraded = true
		case r.OK():
			out.Stats.Success++
		default:
			out.Stats.Failed++
			out.Degraded = true
			if r.Failure == FailureRateLimited {
				out.Stats.RateLimited++
			}
		}
	}
	out.Stats.Elapsed = time.Since(start)
	g.metrics.ObserveDuration("gateway_fetch_batch", start)

	g.logger.WithFields(map[string]interface{}{
		"batches":   out.Stats.Batches,
		"success":   out.Stats.Success,
		"cached":    out.Stats.Cached,
		"failed":    out.Stats.Failed,
		"degraded":  out.Degraded,
		"cancelled": out.Cancelled,
		"elapsed":   out.Stats.Elapsed.String(),
	}).Info("Batch fetch completed")

	return out, nil
}

func (g *Gateway) markCancelled(out *BatchResult, rest []string) {
	out.Cancelled = true
	for _, sym := range rest {
		out.Results[sym] = Result{Symbol: sym, Failure: FailureCancelled, Err: context.Canceled}
	}
}

// runGroup fans one group out to a bounded worker pool
func (g *Gateway) runGroup(ctx context.Context, group []string, cfg BatchConfig) []Result {
	workers := cfg.Workers
	if workers > len(group) {
		workers = len(group)
	}

	symbolCh := make(chan string, len(group))
	resultCh := make(chan Result, len(group))

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			g.worker(ctx, workerID, symbolCh, resultCh, cfg)
		}(w)
	}

	for _, sym := range group {
		symbolCh <- sym
	}
	close(symbolCh)

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	results := make([]Result, 0, len(group))
	for r := range resultCh {
		results = append(results, r)
	}
	return results
}

// worker processes symbols until the channel drains. Sleeps are worker-scoped.
func (g *Gateway) worker(ctx context.Context, workerID int, symbolCh <-chan string, resultCh chan<- Result, cfg BatchConfig) {
	for sym := range symbolCh {
		if ctx.Err() != nil {
			resultCh <- Result{Symbol: sym, Failure: FailureCancelled, Err: ctx.Err()}
			continue
		}

		r := g.fetchOne(ctx, sym, cfg)
		g.metrics.RecordFetch(outcome(r))

		log := g.logger.WithFields(map[string]interface{}{
			"worker":   workerID,
			"symbol":   sym,
			"attempts": r.Attempts,
		})
		if r.Err != nil && !r.Cached() {
			log.WithError(r.Err).WithField("failure", string(r.Failure)).Warn("Fetch failed")
		} else {
			log.WithField("cached", r.Cached()).Debug("Fetched quote")
		}
		resultCh <- r

		_ = g.sleep(ctx, cfg.DelayBetweenItems)
	}
}

func outcome(r Result) string {
	switch {
	case r.Cached():
		return "cached"
	case r.OK():
		return "fresh"
	default:
		return string(r.Failure)
	}
}

// fetchOne runs the retry / rate-limit / breaker policy for one symbol
func (g *Gateway) fetchOne(ctx context.Context, symbol string, cfg BatchConfig) Result {
	res := Result{Symbol: symbol}
	retriesLeft := cfg.RetryAttempts
	rateLimitPaused := false

	for {
		q, err := g.call(ctx, symbol, cfg.CallTimeout)
		if !errors.Is(err, ErrBreakerOpen) {
			res.Attempts++
		}

		switch kind := classify(err); kind {
		case FailureNone:
			q.Provenance = contracts.ProvenanceLive
			g.remember(ctx, q)
			res.Quote = &q
			return res

		case FailureBreakerOpen:
			return g.fallback(ctx, res, err)

		case FailureNotFound:
			res.Failure, res.Err = kind, err
			return res

		case FailureRateLimited:
			if rateLimitPaused {
				res.Failure, res.Err = kind, err
				return res
			}
			rateLimitPaused = true
			g.logger.WithFields(map[string]interface{}{
				"symbol": symbol,
				"pause":  cfg.RateLimitDelay.String(),
			}).Warn("Rate limited, pausing worker")
			if serr := g.sleep(ctx, cfg.RateLimitDelay); serr != nil {
				res.Failure, res.Err = FailureCancelled, serr
				return res
			}

		default:
			if retriesLeft == 0 || ctx.Err() != nil {
				res.Failure, res.Err = kind, err
				return res
			}
			retriesLeft--
			if serr := g.sleep(ctx, cfg.RetryBackoff); serr != nil {
				res.Failure, res.Err = kind, err
				return res
			}
		}
	}
}

// call performs one provider call through the breaker with its own timeout.
// The call ignores caller cancellation so in-flight items can finish.
func (g *Gateway) call(ctx context.Context, symbol string, timeout time.Duration) (contracts.MarketQuote, error) {
	done, err := g.breaker.allow()
	if err != nil {
		return contracts.MarketQuote{}, err
	}

	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	type reply struct {
		quote contracts.MarketQuote
		err   error
	}
	ch := make(chan reply, 1)
	go func() {
		q, err := g.provider.FetchQuote(callCtx, symbol)
		ch <- reply{q, err}
	}()

	var r reply
	select {
	case r = <-ch:
	case <-callCtx.Done():
		r.err = fmt.Errorf("%w: %s after %s", contracts.ErrTimeout, symbol, timeout)
	}
	if r.err != nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) && !errors.Is(r.err, contracts.ErrTimeout) {
		r.err = fmt.Errorf("%w: %v", contracts.ErrTimeout, r.err)
	}

	done(r.err)
	return r.quote, r.err
}

func (g *Gateway) remember(ctx context.Context, q contracts.MarketQuote) {
	g.cache.Put(ctx, q)
	if g.snapshots != nil {
		if err := g.snapshots.SaveSnapshot(ctx, q); err != nil {
			g.logger.WithError(err).WithSymbol(q.Symbol).Warn("Failed to persist quote snapshot")
		}
	}
}

func (g *Gateway) fallback(ctx context.Context, res Result, err error) Result {
	if q, ok := g.cache.Get(ctx, res.Symbol); ok {
		res.Quote, res.Err = &q, err
		return res
	}
	if g.snapshots != nil {
		if q, found, serr := g.snapshots.LatestSnapshot(ctx, res.Symbol); serr == nil && found {
			q.Provenance = contracts.ProvenanceCached
			res.Quote, res.Err = &q, err
			return res
		}
	}
	res.Failure, res.Err = FailureBreakerOpen, err
	return res
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
