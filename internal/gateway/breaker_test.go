package gateway

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/aegis-signals/internal/contracts"
	"github.com/wonny/aegis-signals/pkg/clock"
	"github.com/wonny/aegis-signals/pkg/logger"
	"github.com/wonny/aegis-signals/pkg/metrics"
)

func TestNewBreaker_Validation(t *testing.T) {
	_, err := NewBreaker(BreakerConfig{Provider: "p", FailureThreshold: 0, Cooldown: time.Second}, nil, logger.Nop(), nil)
	assert.Error(t, err)

	_, err = NewBreaker(BreakerConfig{Provider: "p", FailureThreshold: 3}, nil, logger.Nop(), nil)
	assert.Error(t, err)
}

func TestBreaker_StateSnapshot(t *testing.T) {
	t0 := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	clk := clock.NewManual(t0)
	rec := metrics.New()

	b, err := NewBreaker(BreakerConfig{Provider: "p", FailureThreshold: 2, Cooldown: time.Minute}, clk, logger.Nop(), rec)
	require.NoError(t, err)

	st := b.State()
	assert.Equal(t, "p", st.Provider)
	assert.Equal(t, contracts.BreakerClosed, st.State)
	assert.Equal(t, t0, st.LastStateChange)

	clk.Advance(5 * time.Second)
	for i := 0; i < 2; i++ {
		done, err := b.allow()
		require.NoError(t, err)
		done(contracts.ErrProviderUnavailable)
	}

	st = b.State()
	assert.Equal(t, contracts.BreakerOpen, st.State)
	assert.Equal(t, uint32(2), st.ConsecutiveFailures)
	assert.Equal(t, t0.Add(5*time.Second), st.LastStateChange)
	assert.True(t, b.Open())

	_, err = b.allow()
	assert.ErrorIs(t, err, ErrBreakerOpen)
}

func TestBreaker_NeutralOutcomesKeepStreak(t *testing.T) {
	b, err := NewBreaker(BreakerConfig{Provider: "p", FailureThreshold: 3, Cooldown: time.Minute}, nil, logger.Nop(), nil)
	require.NoError(t, err)

	record := func(callErr error) {
		done, err := b.allow()
		require.NoError(t, err)
		done(callErr)
	}

	record(contracts.ErrProviderUnavailable)
	record(contracts.ErrRateLimited)
	record(contracts.ErrProviderUnavailable)
	assert.Equal(t, uint32(2), b.State().ConsecutiveFailures, "rate limits neither count nor reset")

	record(contracts.ErrNotFound)
	assert.Equal(t, uint32(0), b.State().ConsecutiveFailures, "a provider answer resets the streak")
}
