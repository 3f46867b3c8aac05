package strategyconfig

import (
	"fmt"

	"github.com/wonny/aegis-signals/internal/backtest"
	"github.com/wonny/aegis-signals/internal/compliance"
	"github.com/wonny/aegis-signals/internal/consensus"
	"github.com/wonny/aegis-signals/internal/strategy"
	"github.com/wonny/aegis-signals/pkg/logger"
)

// Config is one strategy set: which strategies run, how they are weighed,
// and the backtest horizon used to evaluate them.
// ⭐ SSOT: consensus parameters are read from this file only
type Config struct {
	Meta       Meta                       `yaml:"meta" json:"meta"`
	Strategies []Strategy                 `yaml:"strategies" json:"strategies"`
	Consensus  Consensus                  `yaml:"consensus" json:"consensus"`
	Backtest   Backtest                   `yaml:"backtest" json:"backtest"`
	Screening  *compliance.ScreeningRules `yaml:"screening,omitempty" json:"screening,omitempty" default:"-"`
}

// Meta identifies the set
type Meta struct {
	SetID   string `yaml:"set_id" json:"set_id" default:"default"`
	Version string `yaml:"version" json:"version" default:"1"`
}

// Strategy is one entry of the set. List order is the consensus priority order.
type Strategy struct {
	ID       string             `yaml:"id" json:"id"`
	Weight   *float64           `yaml:"weight,omitempty" json:"weight,omitempty"` // nil = consensus.default_weight
	Disabled bool               `yaml:"disabled,omitempty" json:"disabled,omitempty"`
	Params   map[string]float64 `yaml:"params,omitempty" json:"params,omitempty"`
}

// Consensus holds the aggregation knobs
type Consensus struct {
	MinAgreement   int     `yaml:"min_agreement" json:"min_agreement" default:"2"`
	MinConfidence  float64 `yaml:"min_confidence" json:"min_confidence"`
	ExternalWeight float64 `yaml:"external_weight" json:"external_weight"`
	DefaultWeight  float64 `yaml:"default_weight" json:"default_weight" default:"1"`
	Strict         bool    `yaml:"strict" json:"strict"`
}

// Backtest holds the evaluation horizon and trading costs
type Backtest struct {
	MaxHoldingDays int     `yaml:"max_holding_days" json:"max_holding_days" default:"20"`
	WarmupDays     int     `yaml:"warmup_days" json:"warmup_days" default:"120"`
	Lookback       int     `yaml:"lookback" json:"lookback" default:"250"`
	Commission     float64 `yaml:"commission" json:"commission"`
	Slippage       float64 `yaml:"slippage" json:"slippage"`
}

// Enabled returns the strategies that will run, in priority order
func (c *Config) Enabled() []Strategy {
	out := make([]Strategy, 0, len(c.Strategies))
	for _, s := range c.Strategies {
		if !s.Disabled {
			out = append(out, s)
		}
	}
	return out
}

// BuildRegistry instantiates every enabled strategy in priority order
func (c *Config) BuildRegistry(log *logger.Logger) (*strategy.Registry, error) {
	reg := strategy.NewRegistry(log)
	for _, s := range c.Enabled() {
		factory, ok := strategy.Builtin(s.ID)
		if !ok {
			return nil, fmt.Errorf("unknown strategy %q", s.ID)
		}
		if err := reg.Register(factory(strategy.Params(s.Params))); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// ConsensusConfig maps the set onto engine parameters
func (c *Config) ConsensusConfig() consensus.Config {
	cfg := consensus.Config{
		Weights:          make(map[string]float64),
		DefaultWeight:    c.Consensus.DefaultWeight,
		MinAgreement:     c.Consensus.MinAgreement,
		MinConfidence:    c.Consensus.MinConfidence,
		ExternalWeight:   c.Consensus.ExternalWeight,
		StrictStrategies: c.Consensus.Strict,
	}
	for _, s := range c.Enabled() {
		cfg.Priority = append(cfg.Priority, s.ID)
		if s.Weight != nil {
			cfg.Weights[s.ID] = *s.Weight
		}
	}
	return cfg
}

// BacktestConfig overlays the set's horizon and costs onto base
func (c *Config) BacktestConfig(base backtest.Config) backtest.Config {
	base.MaxHoldingDays = c.Backtest.MaxHoldingDays
	base.WarmupDays = c.Backtest.WarmupDays
	base.Lookback = c.Backtest.Lookback
	base.Commission = c.Backtest.Commission
	base.Slippage = c.Backtest.Slippage
	return base
}

// ScreeningRules returns the configured rules or the defaults
func (c *Config) ScreeningRules() compliance.ScreeningRules {
	if c.Screening == nil {
		return compliance.DefaultScreeningRules()
	}
	return *c.Screening
}
