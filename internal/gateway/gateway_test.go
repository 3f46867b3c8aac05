package gateway

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/aegis-signals/internal/contracts"
)

func symbols(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("SYM%d", i+1)
	}
	return out
}

func TestFetchBatch_AllSucceed(t *testing.T) {
	h := newHarness(t, 3, time.Minute)
	cfg := testBatchConfig()
	cfg.BatchSize = 3
	cfg.Workers = 2

	res, err := h.gw.FetchBatch(context.Background(), symbols(7), cfg)
	require.NoError(t, err)

	assert.False(t, res.Degraded)
	assert.False(t, res.Cancelled)
	assert.Equal(t, 3, res.Stats.Batches)
	assert.Equal(t, 7, res.Stats.Success)
	assert.Len(t, res.Quotes(), 7)
	assert.Equal(t, 7, h.provider.totalCalls())
	assert.Equal(t, 2, h.sleeper.count(batchDelay), "one pause between each pair of groups")
	assert.Equal(t, 7, h.sleeper.count(itemDelay))

	for _, r := range res.Results {
		assert.Equal(t, contracts.ProvenanceLive, r.Quote.Provenance)
	}
	assert.Equal(t, 7, h.cache.Len(), "live quotes refresh the cache")
}

func TestFetchBatch_InvalidConfig(t *testing.T) {
	h := newHarness(t, 3, time.Minute)
	cfg := testBatchConfig()
	cfg.BatchSize = 0

	_, err := h.gw.FetchBatch(context.Background(), symbols(1), cfg)
	assert.Error(t, err)
}

func TestBreaker_OpensAfterExactlyNConsecutiveFailures(t *testing.T) {
	h := newHarness(t, 3, time.Minute)
	h.provider.setFail(func(string) error { return contracts.ErrProviderUnavailable })

	res, err := h.gw.FetchBatch(context.Background(), symbols(5), testBatchConfig())
	require.NoError(t, err)

	assert.Equal(t, 3, h.provider.totalCalls(), "calls stop once the breaker opens")
	st := h.gw.BreakerState()
	assert.Equal(t, contracts.BreakerOpen, st.State)
	assert.Equal(t, uint32(3), st.ConsecutiveFailures)

	assert.True(t, res.Degraded)
	assert.Equal(t, FailureUnavailable, res.Results["SYM3"].Failure)
	assert.Equal(t, FailureBreakerOpen, res.Results["SYM4"].Failure)
	assert.Equal(t, FailureBreakerOpen, res.Results["SYM5"].Failure)
	assert.Equal(t, 5, res.Stats.Failed)
}

func TestBreaker_HalfOpenAdmitsExactlyOneProbe(t *testing.T) {
	h := newHarness(t, 2, 50*time.Millisecond)
	h.provider.setFail(func(string) error { return contracts.ErrProviderUnavailable })

	_, err := h.gw.FetchBatch(context.Background(), symbols(2), testBatchConfig())
	require.NoError(t, err)
	require.Equal(t, contracts.BreakerOpen, h.gw.BreakerState().State)
	before := h.provider.totalCalls()

	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, contracts.BreakerHalfOpen, h.gw.BreakerState().State)

	h.provider.delay = 20 * time.Millisecond
	cfg := testBatchConfig()
	cfg.Workers = 4
	res, err := h.gw.FetchBatch(context.Background(), symbols(4), cfg)
	require.NoError(t, err)

	assert.Equal(t, before+1, h.provider.totalCalls(), "HALF_OPEN lets one probe through")
	assert.Equal(t, contracts.BreakerOpen, h.gw.BreakerState().State, "failed probe reopens")

	breakerOpen := 0
	for _, r := range res.Results {
		if r.Failure == FailureBreakerOpen {
			breakerOpen++
		}
	}
	assert.Equal(t, 3, breakerOpen)
}

func TestBreaker_SuccessfulProbeResetsCounter(t *testing.T) {
	h := newHarness(t, 2, 50*time.Millisecond)
	h.provider.setFail(func(string) error { return contracts.ErrTimeout })

	_, err := h.gw.FetchBatch(context.Background(), symbols(2), testBatchConfig())
	require.NoError(t, err)
	require.Equal(t, contracts.BreakerOpen, h.gw.BreakerState().State)

	time.Sleep(80 * time.Millisecond)
	h.provider.setFail(nil)

	res, err := h.gw.FetchBatch(context.Background(), []string{"OK1"}, testBatchConfig())
	require.NoError(t, err)
	assert.True(t, res.Results["OK1"].OK())

	st := h.gw.BreakerState()
	assert.Equal(t, contracts.BreakerClosed, st.State)
	assert.Equal(t, uint32(0), st.ConsecutiveFailures)

	h.provider.setFail(func(string) error { return contracts.ErrProviderUnavailable })
	_, err = h.gw.FetchBatch(context.Background(), []string{"BAD"}, testBatchConfig())
	require.NoError(t, err)

	st = h.gw.BreakerState()
	assert.Equal(t, contracts.BreakerClosed, st.State)
	assert.Equal(t, uint32(1), st.ConsecutiveFailures, "streak restarted from zero")
}

func TestRateLimit_PausesAndRetriesWithoutTrippingBreaker(t *testing.T) {
	h := newHarness(t, 1, time.Minute)
	for _, s := range symbols(3) {
		h.provider.script[s] = []error{contracts.ErrRateLimited}
	}

	res, err := h.gw.FetchBatch(context.Background(), symbols(3), testBatchConfig())
	require.NoError(t, err)

	assert.Equal(t, 3, res.Stats.Success)
	assert.False(t, res.Degraded)
	assert.Equal(t, 3, h.sleeper.count(rateLimitPause), "one extended pause per rate-limited item")
	assert.Equal(t, contracts.BreakerClosed, h.gw.BreakerState().State, "threshold 1 would have tripped on a counted failure")
	assert.Equal(t, 2, res.Results["SYM1"].Attempts)
}

func TestRateLimit_SecondRejectionRecordedPerInstrument(t *testing.T) {
	h := newHarness(t, 1, time.Minute)
	h.provider.script["SYM1"] = []error{contracts.ErrRateLimited, contracts.ErrRateLimited}

	res, err := h.gw.FetchBatch(context.Background(), symbols(2), testBatchConfig())
	require.NoError(t, err)

	assert.Equal(t, FailureRateLimited, res.Results["SYM1"].Failure)
	assert.True(t, res.Results["SYM2"].OK(), "a single failure never aborts the batch")
	assert.Equal(t, 1, res.Stats.RateLimited)
	assert.Equal(t, 1, h.sleeper.count(rateLimitPause))
	assert.Equal(t, contracts.BreakerClosed, h.gw.BreakerState().State)
}

func TestTimeout_CountsAsBreakerFailure(t *testing.T) {
	h := newHarness(t, 2, time.Minute)
	h.provider.delay = 200 * time.Millisecond

	cfg := testBatchConfig()
	cfg.CallTimeout = 10 * time.Millisecond
	cfg.RetryAttempts = 1

	res, err := h.gw.FetchBatch(context.Background(), []string{"SLOW"}, cfg)
	require.NoError(t, err)

	r := res.Results["SLOW"]
	assert.Equal(t, FailureTimeout, r.Failure)
	assert.ErrorIs(t, r.Err, contracts.ErrTimeout)
	assert.Equal(t, 2, r.Attempts)
	assert.Equal(t, 1, h.sleeper.count(retryBackoff))
	assert.Equal(t, contracts.BreakerOpen, h.gw.BreakerState().State)
}

func TestNotFound_DoesNotTripBreaker(t *testing.T) {
	h := newHarness(t, 1, time.Minute)
	h.provider.script["GONE"] = []error{contracts.ErrNotFound}

	res, err := h.gw.FetchBatch(context.Background(), []string{"GONE", "SYM1"}, testBatchConfig())
	require.NoError(t, err)

	assert.Equal(t, FailureNotFound, res.Results["GONE"].Failure)
	assert.Equal(t, 1, h.provider.callsFor("GONE"), "not-found is not retried")
	assert.True(t, res.Results["SYM1"].OK())
	assert.Equal(t, contracts.BreakerClosed, h.gw.BreakerState().State)
}

func TestTransientFailure_RetriedThenSucceeds(t *testing.T) {
	h := newHarness(t, 3, time.Minute)
	h.provider.script["FLAKY"] = []error{contracts.ErrProviderUnavailable}

	cfg := testBatchConfig()
	cfg.RetryAttempts = 1
	res, err := h.gw.FetchBatch(context.Background(), []string{"FLAKY"}, cfg)
	require.NoError(t, err)

	r := res.Results["FLAKY"]
	assert.True(t, r.OK())
	assert.Equal(t, 2, r.Attempts)
	assert.Equal(t, 1, h.sleeper.count(retryBackoff))
}

// Five instruments in groups of two; the third fails three times in a row,
// the breaker opens, and the last two are served from cache or short-circuited.
func TestFetchBatch_BreakerOpensMidRunAndDegradesToCache(t *testing.T) {
	h := newHarness(t, 3, time.Minute)
	ids := []string{"I1", "I2", "I3", "I4", "I5"}
	fail := contracts.ErrProviderUnavailable
	h.provider.script["I3"] = []error{fail, fail, fail}

	h.cache.Put(context.Background(), contracts.MarketQuote{Symbol: "I4", Close: 42, FetchedAt: time.Now().Add(-time.Hour)})

	cfg := testBatchConfig()
	cfg.BatchSize = 2
	cfg.RetryAttempts = 2

	res, err := h.gw.FetchBatch(context.Background(), ids, cfg)
	require.NoError(t, err)

	assert.Equal(t, contracts.BreakerOpen, h.gw.BreakerState().State)
	assert.Equal(t, 3, res.Stats.Batches)
	assert.Equal(t, 5, h.provider.totalCalls(), "I1, I2 and three attempts on I3")
	assert.Zero(t, h.provider.callsFor("I4"))
	assert.Zero(t, h.provider.callsFor("I5"))

	assert.True(t, res.Results["I1"].OK())
	assert.True(t, res.Results["I2"].OK())
	assert.Equal(t, FailureUnavailable, res.Results["I3"].Failure)
	assert.Equal(t, 3, res.Results["I3"].Attempts)

	i4 := res.Results["I4"]
	require.True(t, i4.Cached())
	assert.Equal(t, 42.0, i4.Quote.Close)
	assert.Equal(t, contracts.ProvenanceCached, i4.Quote.Provenance)

	assert.Equal(t, FailureBreakerOpen, res.Results["I5"].Failure)
	assert.ErrorIs(t, res.Results["I5"].Err, ErrBreakerOpen)

	assert.True(t, res.Degraded)
	assert.False(t, res.Cancelled)
	assert.Equal(t, 2, res.Stats.Success)
	assert.Equal(t, 1, res.Stats.Cached)
	assert.Equal(t, 2, res.Stats.Failed)
}

func TestFetchBatch_CancellationKeepsPartialResults(t *testing.T) {
	h := newHarness(t, 3, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h.provider.onCall = func(symbol string) {
		if symbol == "B" {
			cancel()
		}
	}

	cfg := testBatchConfig()
	cfg.BatchSize = 2

	res, err := h.gw.FetchBatch(ctx, []string{"A", "B", "C", "D"}, cfg)
	require.NoError(t, err)

	assert.True(t, res.Cancelled)
	assert.True(t, res.Results["A"].OK())
	assert.True(t, res.Results["B"].OK(), "in-flight item finishes")
	assert.Equal(t, FailureCancelled, res.Results["C"].Failure)
	assert.Equal(t, FailureCancelled, res.Results["D"].Failure)
	assert.Zero(t, h.provider.callsFor("C"))
	assert.Len(t, res.Results, 4)
}

func TestLastKnownQuote_IgnoresTTLAndNeverCallsProvider(t *testing.T) {
	h := newHarness(t, 3, time.Minute)
	h.cache.Put(context.Background(), contracts.MarketQuote{Symbol: "OLD", FetchedAt: time.Now().AddDate(0, -3, 0)})

	q, ok := h.gw.LastKnownQuote(context.Background(), "OLD")
	require.True(t, ok)
	assert.Equal(t, contracts.ProvenanceCached, q.Provenance)

	_, ok = h.gw.LastKnownQuote(context.Background(), "NONE")
	assert.False(t, ok)
	assert.Zero(t, h.provider.totalCalls())
}
