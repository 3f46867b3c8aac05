package contracts

import "time"

// BreakerStatus is the circuit breaker position
type BreakerStatus string

const (
	BreakerClosed   BreakerStatus = "CLOSED"
	BreakerOpen     BreakerStatus = "OPEN"
	BreakerHalfOpen BreakerStatus = "HALF_OPEN"
)

// CircuitBreakerState is a point-in-time view of a provider's breaker
type CircuitBreakerState struct {
	Provider            string        `json:"provider"`
	State               BreakerStatus `json:"state"`
	ConsecutiveFailures uint32        `json:"consecutive_failures"`
	LastStateChange     time.Time     `json:"last_state_change"`
}
