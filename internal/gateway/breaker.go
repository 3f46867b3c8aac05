package gateway

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker"

	"github.com/wonny/aegis-signals/internal/contracts"
	"github.com/wonny/aegis-signals/pkg/clock"
	"github.com/wonny/aegis-signals/pkg/logger"
	"github.com/wonny/aegis-signals/pkg/metrics"
)

// ErrBreakerOpen is returned when the breaker short-circuits a call
var ErrBreakerOpen = errors.New("circuit breaker open")

// BreakerConfig holds circuit breaker settings for one provider
type BreakerConfig struct {
	Provider         string
	FailureThreshold uint32        // consecutive failures before OPEN
	Cooldown         time.Duration // OPEN duration before the HALF_OPEN probe
}

// Breaker guards one provider
// ⭐ SSOT: the only mutable state shared by gateway workers
//
// State transitions happen under gobreaker's single mutex. HALF_OPEN admits
// exactly one probe. Rate-limit responses are neutral: they neither count
// as failures nor reset the failure streak.
type Breaker struct {
	cb       *gobreaker.TwoStepCircuitBreaker
	provider string
	clock    clock.Clock // stamps transitions; the cooldown runs on gobreaker's wall clock
	logger   *logger.Logger
	metrics  *metrics.Recorder

	lastChange     atomic.Int64  // unix nanos
	failuresAtTrip atomic.Uint32 // streak that opened the breaker
}

// NewBreaker creates a breaker for a provider
func NewBreaker(cfg BreakerConfig, clk clock.Clock, log *logger.Logger, rec *metrics.Recorder) (*Breaker, error) {
	if cfg.FailureThreshold < 1 {
		return nil, fmt.Errorf("failure threshold must be >= 1")
	}
	if cfg.Cooldown <= 0 {
		return nil, fmt.Errorf("breaker cooldown must be positive")
	}
	if clk == nil {
		clk = clock.Real{}
	}

	b := &Breaker{
		provider: cfg.Provider,
		clock:    clk,
		logger:   log.Module("breaker").WithField("provider", cfg.Provider),
		metrics:  rec,
	}
	b.lastChange.Store(clk.Now().UnixNano())

	threshold := cfg.FailureThreshold
	b.cb = gobreaker.NewTwoStepCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Provider,
		MaxRequests: 1,
		Timeout:     cfg.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.ConsecutiveFailures >= threshold {
				b.failuresAtTrip.Store(counts.ConsecutiveFailures)
				return true
			}
			return false
		},
		OnStateChange: b.onStateChange,
	})
	rec.SetBreakerState(cfg.Provider, metrics.BreakerClosed)

	return b, nil
}

func (b *Breaker) onStateChange(_ string, from, to gobreaker.State) {
	b.lastChange.Store(b.clock.Now().UnixNano())
	if from == gobreaker.StateHalfOpen && to == gobreaker.StateOpen {
		b.failuresAtTrip.Add(1)
	}

	switch to {
	case gobreaker.StateOpen:
		b.metrics.SetBreakerState(b.provider, metrics.BreakerOpen)
		b.logger.WithField("from", from.String()).Warn("Circuit breaker opened")
	case gobreaker.StateHalfOpen:
		b.metrics.SetBreakerState(b.provider, metrics.BreakerHalfOpen)
		b.logger.Info("Circuit breaker half-open, admitting probe")
	case gobreaker.StateClosed:
		b.failuresAtTrip.Store(0)
		b.metrics.SetBreakerState(b.provider, metrics.BreakerClosed)
		b.logger.Info("Circuit breaker closed")
	}
}

// allow reserves a call slot. The returned func must receive the call's error.
func (b *Breaker) allow() (func(err error), error) {
	done, err := b.cb.Allow()
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, ErrBreakerOpen
		}
		return nil, err
	}

	return func(callErr error) {
		switch classify(callErr) {
		case FailureNone, FailureNotFound:
			done(true)
		case FailureRateLimited, FailureCancelled:
			// neutral in CLOSED; a probe that cannot conclude must still release HALF_OPEN
			if b.cb.State() == gobreaker.StateHalfOpen {
				done(false)
			}
		default:
			done(false)
		}
	}, nil
}

// State returns a snapshot of the breaker
func (b *Breaker) State() contracts.CircuitBreakerState {
	st := b.cb.State()
	failures := b.cb.Counts().ConsecutiveFailures
	if st != gobreaker.StateClosed {
		failures = b.failuresAtTrip.Load()
	}

	return contracts.CircuitBreakerState{
		Provider:            b.provider,
		State:               toStatus(st),
		ConsecutiveFailures: failures,
		LastStateChange:     time.Unix(0, b.lastChange.Load()).UTC(),
	}
}

// Open reports whether calls are currently short-circuited
func (b *Breaker) Open() bool {
	return b.cb.State() == gobreaker.StateOpen
}

func toStatus(s gobreaker.State) contracts.BreakerStatus {
	switch s {
	case gobreaker.StateOpen:
		return contracts.BreakerOpen
	case gobreaker.StateHalfOpen:
		return contracts.BreakerHalfOpen
	default:
		return contracts.BreakerClosed
	}
}
