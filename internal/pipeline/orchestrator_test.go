package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/aegis-signals/internal/compliance"
	"github.com/wonny/aegis-signals/internal/consensus"
	"github.com/wonny/aegis-signals/internal/contracts"
	"github.com/wonny/aegis-signals/internal/gateway"
	"github.com/wonny/aegis-signals/internal/history"
	"github.com/wonny/aegis-signals/internal/sink"
	"github.com/wonny/aegis-signals/internal/strategy"
	"github.com/wonny/aegis-signals/pkg/clock"
	"github.com/wonny/aegis-signals/pkg/logger"
)

var now = time.Date(2024, 3, 4, 15, 30, 0, 0, time.UTC)

type fakeQuotes struct {
	failed    map[string]gateway.FailureKind
	degraded  bool
	requested []string
}

func (f *fakeQuotes) FetchBatch(_ context.Context, symbols []string, _ gateway.BatchConfig) (*gateway.BatchResult, error) {
	f.requested = append(f.requested, symbols...)
	out := &gateway.BatchResult{Results: map[string]gateway.Result{}, Degraded: f.degraded}
	for _, sym := range symbols {
		if kind, ok := f.failed[sym]; ok {
			out.Results[sym] = gateway.Result{Symbol: sym, Failure: kind}
			out.Degraded = true
			continue
		}
		q := contracts.MarketQuote{Symbol: sym, Close: 100, Volume: 1000, FetchedAt: now, Provenance: contracts.ProvenanceLive}
		out.Results[sym] = gateway.Result{Symbol: sym, Quote: &q}
	}
	return out, nil
}

type fakeEligibility struct {
	status     map[string]contracts.ComplianceStatus
	registered []string
	fetched    *gateway.BatchResult
}

func (f *fakeEligibility) Register(instruments ...contracts.Instrument) {
	for _, inst := range instruments {
		f.registered = append(f.registered, inst.Symbol)
	}
}

func (f *fakeEligibility) ResolveUniverseFrom(_ context.Context, symbols []string, fetched *gateway.BatchResult) (*compliance.UniverseResult, error) {
	f.fetched = fetched
	out := &compliance.UniverseResult{Records: map[string]contracts.ComplianceRecord{}}
	for _, sym := range symbols {
		st, ok := f.status[sym]
		if !ok {
			st = contracts.StatusCompliant
		}
		out.Records[sym] = contracts.ComplianceRecord{Symbol: sym, Status: st}
		if st == contracts.StatusUnknown {
			out.Degraded = true
		}
	}
	return out, nil
}

// always emits one signal per instrument in a fixed direction
type always struct {
	id         string
	dir        contracts.Direction
	confidence float64
	seen       *int
}

func (a always) ID() string { return a.id }

func (a always) Evaluate(inst contracts.Instrument, q contracts.MarketQuote, history []contracts.Bar) []contracts.RawSignal {
	if a.seen != nil {
		*a.seen = len(history)
	}
	return []contracts.RawSignal{{
		Symbol:     inst.Symbol,
		StrategyID: a.id,
		Direction:  a.dir,
		Confidence: a.confidence,
		Entry:      q.Close,
		Target:     q.Close * 1.1,
		Stop:       q.Close * 0.95,
		Timestamp:  q.FetchedAt,
	}}
}

type failingSink struct{}

func (failingSink) Publish(context.Context, []contracts.ConsensusSignal) error {
	return errors.New("sink down")
}

func universe(symbols ...string) contracts.Universe {
	u := contracts.Universe{Date: now}
	for _, s := range symbols {
		u.Instruments = append(u.Instruments, contracts.Instrument{Symbol: s, Name: s, Tradable: true})
	}
	return u
}

func newOrchestrator(t *testing.T, quotes QuoteFetcher, adapters ...contracts.StrategyAdapter) *Orchestrator {
	t.Helper()
	reg := strategy.NewRegistry(logger.Nop())
	for _, a := range adapters {
		require.NoError(t, reg.Register(a))
	}
	cfg := consensus.DefaultConfig()
	cfg.ExternalWeight = 0
	for _, a := range adapters {
		cfg.Priority = append(cfg.Priority, a.ID())
	}
	cons, err := consensus.NewEngine(cfg, logger.Nop())
	require.NoError(t, err)

	o, err := NewOrchestrator(quotes, reg, cons, gateway.DefaultBatchConfig(), logger.Nop())
	require.NoError(t, err)
	return o
}

func TestRun_EndToEnd(t *testing.T) {
	quotes := &fakeQuotes{failed: map[string]gateway.FailureKind{"DOWN": gateway.FailureTimeout}}
	elig := &fakeEligibility{status: map[string]contracts.ComplianceStatus{"BANK": contracts.StatusNonCompliant}}
	mem := sink.NewMemory()

	o := newOrchestrator(t, quotes,
		always{id: "alpha", dir: contracts.DirectionBuy, confidence: 0.6},
		always{id: "beta", dir: contracts.DirectionBuy, confidence: 0.8},
	).WithCompliance(elig).WithSink(mem).WithConfigHash("abc123")

	u := universe("ACME", "BANK", "DOWN", "HALT")
	u.Instruments[3].Halted = true

	summary, err := o.Run(context.Background(), RunConfig{RunID: "run-1", Universe: u})
	require.NoError(t, err)

	assert.Equal(t, "run-1", summary.RunID)
	assert.Equal(t, "abc123", summary.ConfigHash)
	assert.True(t, summary.Degraded, "a failed fetch degrades the run")
	assert.False(t, summary.Cancelled)

	require.Len(t, summary.Signals, 1)
	sig := summary.Signals[0]
	assert.Equal(t, "ACME", sig.Symbol)
	assert.Equal(t, contracts.DirectionBuy, sig.Direction)
	assert.InDelta(t, 0.7, sig.Confidence, 1e-9)
	assert.Equal(t, []string{"alpha", "beta"}, sig.Strategies)

	assert.Equal(t, map[string]string{
		"HALT": "not tradable",
		"DOWN": "fetch timeout",
		"BANK": "compliance NON_COMPLIANT",
	}, summary.Excluded)

	assert.NotContains(t, quotes.requested, "HALT")
	assert.ElementsMatch(t, []string{"ACME", "BANK", "DOWN"}, elig.registered)

	require.Len(t, summary.Stages, 5)
	for i, stage := range contracts.AllStages() {
		assert.Equal(t, stage, summary.Stages[i].Stage)
		assert.True(t, summary.Stages[i].Success, stage)
	}

	assert.Equal(t, summary.Signals, mem.Signals())

	require.NotNil(t, elig.fetched, "compliance reuses the fetch stage batch")
	assert.Contains(t, elig.fetched.Results, "ACME")
}

func TestRun_NoConsensusIsExcluded(t *testing.T) {
	o := newOrchestrator(t, &fakeQuotes{},
		always{id: "alpha", dir: contracts.DirectionBuy, confidence: 0.6},
		always{id: "beta", dir: contracts.DirectionSell, confidence: 0.6},
	)

	summary, err := o.Run(context.Background(), RunConfig{Universe: universe("SPLIT")})
	require.NoError(t, err)
	assert.NotEmpty(t, summary.RunID, "run id is generated")
	assert.Empty(t, summary.Signals)
	assert.Equal(t, "no consensus", summary.Excluded["SPLIT"])
}

func TestRun_DryRunSkipsSink(t *testing.T) {
	mem := sink.NewMemory()
	o := newOrchestrator(t, &fakeQuotes{},
		always{id: "alpha", dir: contracts.DirectionBuy, confidence: 0.6},
		always{id: "beta", dir: contracts.DirectionBuy, confidence: 0.6},
	).WithSink(mem)

	summary, err := o.Run(context.Background(), RunConfig{Universe: universe("A"), DryRun: true})
	require.NoError(t, err)
	assert.Len(t, summary.Signals, 1)
	assert.Len(t, summary.Stages, 4)
	assert.Zero(t, mem.Batches())
}

func TestRun_PublishFailureDegrades(t *testing.T) {
	o := newOrchestrator(t, &fakeQuotes{},
		always{id: "alpha", dir: contracts.DirectionBuy, confidence: 0.6},
		always{id: "beta", dir: contracts.DirectionBuy, confidence: 0.6},
	).WithSink(failingSink{})

	summary, err := o.Run(context.Background(), RunConfig{Universe: universe("A")})
	require.NoError(t, err)
	assert.True(t, summary.Degraded)
	assert.Len(t, summary.Signals, 1)

	last := summary.Stages[len(summary.Stages)-1]
	assert.Equal(t, contracts.StagePublish, last.Stage)
	assert.False(t, last.Success)
	assert.Equal(t, "sink down", last.Error)
}

func TestRun_Cancelled(t *testing.T) {
	mem := sink.NewMemory()
	o := newOrchestrator(t, &fakeQuotes{},
		always{id: "alpha", dir: contracts.DirectionBuy, confidence: 0.6},
		always{id: "beta", dir: contracts.DirectionBuy, confidence: 0.6},
	).WithSink(mem)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := o.Run(ctx, RunConfig{Universe: universe("A")})
	require.NoError(t, err)
	assert.True(t, summary.Cancelled)
	assert.Empty(t, summary.Signals)
	assert.Zero(t, mem.Batches(), "nothing is published after cancellation")
}

func TestRun_HistoryAndScorer(t *testing.T) {
	repo := history.NewMemoryBars()
	var bars []contracts.Bar
	for i := 40; i >= 1; i-- {
		bars = append(bars, contracts.Bar{Date: time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -i), Close: 100, Volume: 1000})
	}
	require.NoError(t, repo.SaveBars(context.Background(), "A", bars))

	seen := 0
	o := newOrchestrator(t, &fakeQuotes{},
		always{id: "alpha", dir: contracts.DirectionBuy, confidence: 0.6, seen: &seen},
	).WithHistory(repo, 30).WithScorer(strategy.FundamentalsScorer{})

	cfg := consensus.DefaultConfig()
	cfg.MinAgreement = 1
	cons, err := consensus.NewEngine(cfg, logger.Nop())
	require.NoError(t, err)
	o.consensus = cons

	summary, err := o.Run(context.Background(), RunConfig{Universe: universe("A")})
	require.NoError(t, err)
	assert.Equal(t, 30, seen, "history window is 30 calendar days before the quote day")
	require.Len(t, summary.Signals, 1)
}

func TestNewOrchestrator_Validation(t *testing.T) {
	_, err := NewOrchestrator(nil, strategy.NewRegistry(nil), nil, gateway.DefaultBatchConfig(), nil)
	assert.Error(t, err)
}

// countingProvider serves a fixed quote and counts calls per symbol
type countingProvider struct {
	mu    sync.Mutex
	calls map[string]int
}

func (p *countingProvider) Name() string { return "counting" }

func (p *countingProvider) FetchQuote(_ context.Context, symbol string) (contracts.MarketQuote, error) {
	p.mu.Lock()
	p.calls[symbol]++
	p.mu.Unlock()
	return contracts.MarketQuote{Symbol: symbol, Close: 100, Volume: 1000, FetchedAt: now}, nil
}

func TestRun_OneProviderCallPerSymbol(t *testing.T) {
	clk := clock.NewManual(now)
	batch := gateway.BatchConfig{BatchSize: 10, Workers: 2, CallTimeout: time.Second}

	provider := &countingProvider{calls: map[string]int{}}
	breaker, err := gateway.NewBreaker(gateway.BreakerConfig{Provider: "counting", FailureThreshold: 3, Cooldown: time.Minute}, clk, logger.Nop(), nil)
	require.NoError(t, err)
	gw := gateway.New(provider, breaker, gateway.NewQuoteCache(time.Hour, clk, logger.Nop()), logger.Nop())

	rcfg := compliance.DefaultConfig()
	rcfg.Batch = batch
	resolver, err := compliance.NewResolver(gw, nil, rcfg, clk, logger.Nop())
	require.NoError(t, err)

	reg := strategy.NewRegistry(logger.Nop())
	require.NoError(t, reg.Register(always{id: "alpha", dir: contracts.DirectionBuy, confidence: 0.6}))
	ccfg := consensus.DefaultConfig()
	ccfg.MinAgreement = 1
	ccfg.ExternalWeight = 0
	ccfg.Priority = []string{"alpha"}
	cons, err := consensus.NewEngine(ccfg, logger.Nop())
	require.NoError(t, err)

	o, err := NewOrchestrator(gw, reg, cons, batch, logger.Nop())
	require.NoError(t, err)
	o.WithCompliance(resolver)

	u := contracts.Universe{Date: now}
	for _, sym := range []string{"AAA", "BBB", "CCC"} {
		u.Instruments = append(u.Instruments, contracts.Instrument{Symbol: sym, Name: sym, Sector: "Technology", Tradable: true})
	}

	summary, err := o.Run(context.Background(), RunConfig{Universe: u, DryRun: true})
	require.NoError(t, err)
	assert.Len(t, summary.Signals, 3, "sector metadata makes every instrument eligible")
	assert.Equal(t, map[string]int{"AAA": 1, "BBB": 1, "CCC": 1}, provider.calls)
}
