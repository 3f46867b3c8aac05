package compliance

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wonny/aegis-signals/internal/contracts"
	"github.com/wonny/aegis-signals/internal/gateway"
	"github.com/wonny/aegis-signals/pkg/clock"
	"github.com/wonny/aegis-signals/pkg/logger"
)

var epoch = time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)

// fakeSource serves scripted gateway results and counts calls.
type fakeSource struct {
	mu        sync.Mutex
	results   map[string]gateway.Result
	last      map[string]contracts.MarketQuote
	calls     int
	requested [][]string
	degraded  bool
	cancelled map[string]bool
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		results:   map[string]gateway.Result{},
		last:      map[string]contracts.MarketQuote{},
		cancelled: map[string]bool{},
	}
}

func (f *fakeSource) FetchBatch(_ context.Context, symbols []string, _ gateway.BatchConfig) (*gateway.BatchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.requested = append(f.requested, append([]string(nil), symbols...))

	out := &gateway.BatchResult{Results: map[string]gateway.Result{}, Degraded: f.degraded}
	for _, sym := range symbols {
		if f.cancelled[sym] {
			out.Results[sym] = gateway.Result{Symbol: sym, Failure: gateway.FailureCancelled}
			out.Cancelled = true
			continue
		}
		if res, ok := f.results[sym]; ok {
			out.Results[sym] = res
			continue
		}
		out.Results[sym] = gateway.Result{Symbol: sym, Failure: gateway.FailureNotFound, Err: contracts.ErrNotFound}
		out.Degraded = true
	}
	return out, nil
}

func (f *fakeSource) LastKnownQuote(_ context.Context, symbol string) (contracts.MarketQuote, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	q, ok := f.last[symbol]
	return q, ok
}

func (f *fakeSource) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeSource) live(symbol string, fund *contracts.Fundamentals) {
	q := contracts.MarketQuote{
		Symbol:       symbol,
		Close:        100,
		MarketCap:    1000,
		Fundamentals: fund,
		FetchedAt:    epoch,
		Provenance:   contracts.ProvenanceLive,
	}
	f.results[symbol] = gateway.Result{Symbol: symbol, Quote: &q, Attempts: 1}
}

func (f *fakeSource) breakerOpen(symbol string) {
	f.results[symbol] = gateway.Result{Symbol: symbol, Failure: gateway.FailureBreakerOpen, Err: gateway.ErrBreakerOpen}
	f.degraded = true
}

func ptr(v float64) *float64 { return &v }

// clean passes every screen against a market cap of 1000.
func clean() *contracts.Fundamentals {
	return &contracts.Fundamentals{
		Sector:                     "Technology",
		MarketCap:                  ptr(1000),
		TotalDebt:                  ptr(100),
		CashAndSecurities:          ptr(50),
		Receivables:                ptr(200),
		NonPermissibleRevenueRatio: ptr(0.01),
		AsOf:                       epoch.AddDate(0, -1, 0),
	}
}

func newTestResolver(t *testing.T, src QuoteSource) (*Resolver, *clock.Manual) {
	t.Helper()
	clk := clock.NewManual(epoch)
	cfg := DefaultConfig()
	cfg.Concurrency = 4
	r, err := NewResolver(src, NewStore(clk, logger.Nop()), cfg, clk, logger.Nop())
	require.NoError(t, err)
	return r, clk
}
