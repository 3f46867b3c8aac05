package gateway

import (
	"fmt"
	"time"

	"github.com/wonny/aegis-signals/pkg/config"
)

// BatchConfig tunes one FetchBatch run
type BatchConfig struct {
	BatchSize           int           // instruments per group
	Workers             int           // concurrent workers per group
	DelayBetweenItems   time.Duration // worker-scoped sleep after each item
	DelayBetweenBatches time.Duration // sleep between groups
	CallTimeout         time.Duration // per provider call
	RetryAttempts       int           // extra attempts for transient failures
	RetryBackoff        time.Duration
	RateLimitDelay      time.Duration // extended pause after a rate-limit response
}

// DefaultBatchConfig returns the production defaults
func DefaultBatchConfig() BatchConfig {
	return BatchConfig{
		BatchSize:           10,
		Workers:             3,
		DelayBetweenItems:   200 * time.Millisecond,
		DelayBetweenBatches: 2 * time.Second,
		CallTimeout:         10 * time.Second,
		RetryAttempts:       1,
		RetryBackoff:        500 * time.Millisecond,
		RateLimitDelay:      60 * time.Second,
	}
}

// BatchConfigFrom maps the environment configuration
func BatchConfigFrom(c config.GatewayConfig) BatchConfig {
	return BatchConfig{
		BatchSize:           c.BatchSize,
		Workers:             c.Workers,
		DelayBetweenItems:   c.DelayBetweenItems,
		DelayBetweenBatches: c.DelayBetweenBatches,
		CallTimeout:         c.CallTimeout,
		RetryAttempts:       c.RetryAttempts,
		RetryBackoff:        c.RetryBackoff,
		RateLimitDelay:      c.RateLimitDelay,
	}
}

// BreakerConfigFrom maps the environment configuration
func BreakerConfigFrom(provider string, c config.GatewayConfig) BreakerConfig {
	return BreakerConfig{
		Provider:         provider,
		FailureThreshold: uint32(c.FailureThreshold),
		Cooldown:         c.BreakerCooldown,
	}
}

// Validate rejects settings the worker pool cannot run with
func (c BatchConfig) Validate() error {
	if c.BatchSize < 1 {
		return fmt.Errorf("batch size must be >= 1, got %d", c.BatchSize)
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be >= 1, got %d", c.Workers)
	}
	if c.RetryAttempts < 0 {
		return fmt.Errorf("retry attempts must be >= 0, got %d", c.RetryAttempts)
	}
	if c.CallTimeout <= 0 {
		return fmt.Errorf("call timeout must be positive")
	}
	if c.DelayBetweenItems < 0 || c.DelayBetweenBatches < 0 || c.RateLimitDelay < 0 || c.RetryBackoff < 0 {
		return fmt.Errorf("delays must not be negative")
	}
	return nil
}
