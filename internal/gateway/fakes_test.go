package gateway

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wonny/aegis-signals/internal/contracts"
	"github.com/wonny/aegis-signals/pkg/clock"
	"github.com/wonny/aegis-signals/pkg/logger"
)

// fakeProvider answers from a per-symbol script of errors, then succeeds.
type fakeProvider struct {
	mu     sync.Mutex
	calls  map[string]int
	total  int
	script map[string][]error
	fail   func(symbol string) error // consulted after the script runs out
	delay  time.Duration
	onCall func(symbol string)
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{calls: map[string]int{}, script: map[string][]error{}}
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) FetchQuote(ctx context.Context, symbol string) (contracts.MarketQuote, error) {
	p.mu.Lock()
	p.calls[symbol]++
	p.total++
	n := p.calls[symbol]
	script := p.script[symbol]
	fail := p.fail
	onCall := p.onCall
	p.mu.Unlock()

	if onCall != nil {
		onCall(symbol)
	}
	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return contracts.MarketQuote{}, ctx.Err()
		}
	}
	if n <= len(script) && script[n-1] != nil {
		return contracts.MarketQuote{}, script[n-1]
	}
	if fail != nil {
		if err := fail(symbol); err != nil {
			return contracts.MarketQuote{}, err
		}
	}
	return contracts.MarketQuote{Symbol: symbol, Close: 100, FetchedAt: time.Now()}, nil
}

func (p *fakeProvider) setFail(fn func(string) error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fail = fn
}

func (p *fakeProvider) totalCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.total
}

func (p *fakeProvider) callsFor(symbol string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[symbol]
}

// recordingSleeper records requested pauses without waiting.
type recordingSleeper struct {
	mu    sync.Mutex
	slept []time.Duration
}

func (s *recordingSleeper) sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d <= 0 {
		return nil
	}
	s.mu.Lock()
	s.slept = append(s.slept, d)
	s.mu.Unlock()
	return nil
}

func (s *recordingSleeper) count(d time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, v := range s.slept {
		if v == d {
			n++
		}
	}
	return n
}

const (
	itemDelay      = 1 * time.Millisecond
	batchDelay     = 2 * time.Millisecond
	retryBackoff   = 3 * time.Millisecond
	rateLimitPause = 60 * time.Second
)

func testBatchConfig() BatchConfig {
	return BatchConfig{
		BatchSize:           10,
		Workers:             1,
		DelayBetweenItems:   itemDelay,
		DelayBetweenBatches: batchDelay,
		CallTimeout:         time.Second,
		RetryAttempts:       0,
		RetryBackoff:        retryBackoff,
		RateLimitDelay:      rateLimitPause,
	}
}

type harness struct {
	gw       *Gateway
	provider *fakeProvider
	sleeper  *recordingSleeper
	cache    *QuoteCache
	breaker  *Breaker
}

func newHarness(t *testing.T, threshold uint32, cooldown time.Duration) *harness {
	t.Helper()
	log := logger.Nop()

	br, err := NewBreaker(BreakerConfig{Provider: "fake", FailureThreshold: threshold, Cooldown: cooldown}, clock.Real{}, log, nil)
	require.NoError(t, err)

	p := newFakeProvider()
	cache := NewQuoteCache(24*time.Hour, clock.Real{}, log)
	s := &recordingSleeper{}

	gw := New(p, br, cache, log)
	gw.sleep = s.sleep

	return &harness{gw: gw, provider: p, sleeper: s, cache: cache, breaker: br}
}
