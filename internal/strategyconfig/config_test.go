package strategyconfig

import (
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/aegis-signals/internal/backtest"
	"github.com/wonny/aegis-signals/internal/consensus"
	"github.com/wonny/aegis-signals/pkg/logger"
)

const minimal = `
strategies:
  - id: momentum
  - id: breakout
    weight: 2
`

func TestLoad_ShippedFile(t *testing.T) {
	path := "../../config/strategy/signal_set.yaml"
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Skip("config file not found")
	}

	cfg, data, err := Load(path)
	require.NoError(t, err)
	assert.NotEmpty(t, data)
	assert.Equal(t, "core_equity", cfg.Meta.SetID)
	assert.Len(t, cfg.Enabled(), 3)
	assert.InDelta(t, 0.33, cfg.ScreeningRules().MaxDebtRatio, 1e-9)

	hash, err := Hash(cfg)
	require.NoError(t, err)
	assert.Len(t, hash, 64)

	hash2, err := Hash(cfg)
	require.NoError(t, err)
	assert.Equal(t, hash, hash2, "hash must be deterministic")
}

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte(minimal))
	require.NoError(t, err)

	assert.Equal(t, "default", cfg.Meta.SetID)
	assert.Equal(t, 2, cfg.Consensus.MinAgreement)
	assert.Equal(t, 1.0, cfg.Consensus.DefaultWeight)
	assert.Equal(t, 20, cfg.Backtest.MaxHoldingDays)
	assert.Nil(t, cfg.Screening)
}

func TestParse_UnknownFieldFails(t *testing.T) {
	_, err := Parse([]byte(minimal + "consensus:\n  min_agreemnt: 2\n"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		yaml  string
		field string
	}{
		{"no strategies", "consensus:\n  min_agreement: 1\n", "strategies"},
		{"unknown strategy", "strategies:\n  - id: astrology\n", "strategies[0].id"},
		{"duplicate", "strategies:\n  - id: momentum\n  - id: momentum\n", "strategies[1].id"},
		{"negative weight", "strategies:\n  - id: momentum\n    weight: -1\n  - id: breakout\n", "strategies[0].weight"},
		{"all disabled", "strategies:\n  - id: momentum\n    disabled: true\n", "strategies"},
		{"agreement above enabled", "strategies:\n  - id: momentum\nconsensus:\n  min_agreement: 2\n", "consensus.min_agreement"},
		{"external weight", minimal + "consensus:\n  external_weight: 1.5\n", "consensus.external_weight"},
		{"screening", minimal + "screening:\n  max_debt_ratio: 2\n", "screening"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)

			var verr ValidationError
			require.True(t, errors.As(err, &verr), "got %v", err)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestConsensusConfig_PriorityFollowsListOrder(t *testing.T) {
	cfg, err := Parse([]byte(`
strategies:
  - id: mean_reversion
    weight: 0
  - id: momentum
    disabled: true
  - id: breakout
consensus:
  min_agreement: 2
  external_weight: 0.3
`))
	require.NoError(t, err)

	cc := cfg.ConsensusConfig()
	assert.Equal(t, []string{"mean_reversion", "breakout"}, cc.Priority)
	assert.Equal(t, map[string]float64{"mean_reversion": 0}, cc.Weights)
	assert.InDelta(t, 0.3, cc.ExternalWeight, 1e-9)
	require.NoError(t, cc.Validate())

	_, err = consensus.NewEngine(cc, logger.Nop())
	require.NoError(t, err)
}

func TestBuildRegistry(t *testing.T) {
	cfg, err := Parse([]byte(minimal))
	require.NoError(t, err)

	reg, err := cfg.BuildRegistry(logger.Nop())
	require.NoError(t, err)
	assert.Equal(t, []string{"momentum", "breakout"}, reg.IDs())
}

func TestBacktestConfig_Overlay(t *testing.T) {
	cfg, err := Parse([]byte(minimal + "backtest:\n  max_holding_days: 5\n  commission: 0.001\n"))
	require.NoError(t, err)

	bt := cfg.BacktestConfig(backtest.DefaultConfig())
	assert.Equal(t, 5, bt.MaxHoldingDays)
	assert.Equal(t, 0.001, bt.Commission)
	assert.Equal(t, backtest.DefaultConfig().Workers, bt.Workers)
	require.NoError(t, bt.Validate())
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, Validate(cfg))
	assert.Len(t, cfg.Enabled(), 3)
}

func TestWarn(t *testing.T) {
	cfg, err := Parse([]byte("strategies:\n  - id: momentum\nconsensus:\n  min_agreement: 1\n  external_weight: 0.9\n"))
	require.NoError(t, err)

	codes := map[string]bool{}
	for _, w := range Warn(cfg) {
		codes[w.Code] = true
	}
	assert.True(t, codes["SINGLE_STRATEGY_CONSENSUS"])
	assert.True(t, codes["EXTERNAL_DOMINATES"])
	assert.True(t, codes["ZERO_COSTS"])
}
