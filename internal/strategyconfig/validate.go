package strategyconfig

import (
	"fmt"
	"math"

	"github.com/wonny/aegis-signals/internal/strategy"
)

// ValidationError aborts startup
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Warning flags a legal but questionable setting
type Warning struct {
	Code    string
	Message string
}

// Validate checks all required constraints
func Validate(cfg *Config) error {
	if len(cfg.Strategies) == 0 {
		return ValidationError{"strategies", "at least one strategy is required"}
	}

	seen := make(map[string]struct{}, len(cfg.Strategies))
	for i, s := range cfg.Strategies {
		field := fmt.Sprintf("strategies[%d]", i)
		if s.ID == "" {
			return ValidationError{field + ".id", "required"}
		}
		if _, dup := seen[s.ID]; dup {
			return ValidationError{field + ".id", fmt.Sprintf("duplicate strategy %q", s.ID)}
		}
		seen[s.ID] = struct{}{}

		if _, ok := strategy.Builtin(s.ID); !ok {
			return ValidationError{field + ".id", fmt.Sprintf("unknown strategy %q", s.ID)}
		}
		if s.Weight != nil && (*s.Weight < 0 || math.IsNaN(*s.Weight) || math.IsInf(*s.Weight, 0)) {
			return ValidationError{field + ".weight", "must be a non-negative number"}
		}
	}

	enabled := len(cfg.Enabled())
	if enabled == 0 {
		return ValidationError{"strategies", "every strategy is disabled"}
	}

	c := cfg.Consensus
	if c.MinAgreement < 1 {
		return ValidationError{"consensus.min_agreement", "must be >= 1"}
	}
	if c.MinAgreement > enabled {
		return ValidationError{"consensus.min_agreement", fmt.Sprintf("%d exceeds the %d enabled strategies", c.MinAgreement, enabled)}
	}
	if err := validatePctRange(c.ExternalWeight, "consensus.external_weight"); err != nil {
		return err
	}
	if err := validatePctRange(c.MinConfidence, "consensus.min_confidence"); err != nil {
		return err
	}
	if c.DefaultWeight < 0 {
		return ValidationError{"consensus.default_weight", "must be >= 0"}
	}

	b := cfg.Backtest
	if b.MaxHoldingDays < 1 {
		return ValidationError{"backtest.max_holding_days", "must be >= 1"}
	}
	if b.WarmupDays < 0 || b.Lookback < 0 {
		return ValidationError{"backtest", "warmup_days and lookback must be >= 0"}
	}
	if b.Commission < 0 || b.Slippage < 0 {
		return ValidationError{"backtest", "commission and slippage must be >= 0"}
	}

	if cfg.Screening != nil {
		if err := cfg.Screening.Validate(); err != nil {
			return ValidationError{"screening", err.Error()}
		}
	}

	return nil
}

// Warn checks recommended constraints (non-fatal)
func Warn(cfg *Config) []Warning {
	var warnings []Warning

	if cfg.Consensus.MinAgreement == 1 {
		warnings = append(warnings, Warning{
			Code:    "SINGLE_STRATEGY_CONSENSUS",
			Message: "min_agreement=1 lets a single strategy emit a signal on its own",
		})
	}

	if cfg.Consensus.ExternalWeight > 0.5 {
		warnings = append(warnings, Warning{
			Code:    "EXTERNAL_DOMINATES",
			Message: "external_weight > 0.5: the quality score outweighs the strategies",
		})
	}

	if cfg.Backtest.Commission == 0 && cfg.Backtest.Slippage == 0 {
		warnings = append(warnings, Warning{
			Code:    "ZERO_COSTS",
			Message: "backtest without commission or slippage overstates returns",
		})
	}

	return warnings
}

func validatePctRange(pct float64, field string) error {
	if pct < 0 || pct > 1 || math.IsNaN(pct) {
		return ValidationError{field, "must be in range [0, 1]"}
	}
	return nil
}
