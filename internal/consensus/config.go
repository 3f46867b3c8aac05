package consensus

import (
	"fmt"
	"math"
)

// Config holds the aggregation parameters
type Config struct {
	// Weights per strategy id; strategies without an entry weigh DefaultWeight
	Weights       map[string]float64
	DefaultWeight float64

	// Priority is the fixed tie-break order (first = highest priority).
	// Strategies not listed rank after every listed one, by id.
	Priority []string

	MinAgreement     int     // winning group size required to emit
	MinConfidence    float64 // floor on the final confidence, 0 disables
	ExternalWeight   float64 // α in the blend
	StrictStrategies bool    // drop signals from strategies not in Priority
}

// DefaultConfig returns MinAgreement 2 and α 0.2
func DefaultConfig() Config {
	return Config{
		Weights:        map[string]float64{},
		DefaultWeight:  1.0,
		MinAgreement:   2,
		ExternalWeight: 0.2,
	}
}

// Validate fails fast on contradictory settings
func (c Config) Validate() error {
	if c.MinAgreement < 1 {
		return fmt.Errorf("min_agreement must be >= 1, got %d", c.MinAgreement)
	}
	if c.ExternalWeight < 0 || c.ExternalWeight > 1 || math.IsNaN(c.ExternalWeight) {
		return fmt.Errorf("external_weight must be in [0, 1], got %v", c.ExternalWeight)
	}
	if c.MinConfidence < 0 || c.MinConfidence > 1 {
		return fmt.Errorf("min_confidence must be in [0, 1], got %v", c.MinConfidence)
	}
	if c.DefaultWeight < 0 || math.IsNaN(c.DefaultWeight) {
		return fmt.Errorf("default_weight must be >= 0, got %v", c.DefaultWeight)
	}
	for id, w := range c.Weights {
		if w < 0 || math.IsNaN(w) || math.IsInf(w, 0) {
			return fmt.Errorf("weight for %q must be a non-negative number, got %v", id, w)
		}
	}

	seen := make(map[string]struct{}, len(c.Priority))
	for _, id := range c.Priority {
		if id == "" {
			return fmt.Errorf("priority list contains an empty strategy id")
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("strategy %q appears twice in the priority list", id)
		}
		seen[id] = struct{}{}
	}
	if c.StrictStrategies && len(c.Priority) == 0 {
		return fmt.Errorf("strict_strategies requires a priority list")
	}
	return nil
}
