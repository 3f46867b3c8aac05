package strategy

import (
	"math"

	"github.com/wonny/aegis-signals/internal/contracts"
)

// Momentum follows medium-term trend strength confirmed by volume
type Momentum struct {
	shortDays int
	longDays  int
	threshold float64
	targetPct float64
	stopPct   float64
}

// NewMomentum builds the strategy from params.
//
//	short_days (20) long_days (60) threshold (0.3) target_pct (0.08) stop_pct (0.04)
func NewMomentum(p Params) contracts.StrategyAdapter {
	return &Momentum{
		shortDays: int(p.get("short_days", 20)),
		longDays:  int(p.get("long_days", 60)),
		threshold: p.get("threshold", 0.3),
		targetPct: p.get("target_pct", 0.08),
		stopPct:   p.get("stop_pct", 0.04),
	}
}

// ID implements contracts.StrategyAdapter
func (m *Momentum) ID() string { return "momentum" }

// Evaluate implements contracts.StrategyAdapter
func (m *Momentum) Evaluate(inst contracts.Instrument, quote contracts.MarketQuote, history []contracts.Bar) []contracts.RawSignal {
	bars := series(history, quote)
	if len(bars) < m.longDays+1 {
		return nil
	}

	score := m.score(bars)
	if math.Abs(score) < m.threshold {
		return nil
	}

	dir := contracts.DirectionBuy
	if score < 0 {
		dir = contracts.DirectionSell
	}
	entry := bars[len(bars)-1].Close
	target, stop := levels(dir, entry, m.targetPct, m.stopPct)

	return []contracts.RawSignal{{
		Symbol:     inst.Symbol,
		StrategyID: m.ID(),
		Direction:  dir,
		Confidence: clamp01(math.Abs(score)),
		Entry:      entry,
		Target:     target,
		Stop:       stop,
		Timestamp:  bars[len(bars)-1].Date,
	}}
}

// score is in (-1, 1): short return 40%, long return 40%, volume growth 20%
func (m *Momentum) score(bars []contracts.Bar) float64 {
	raw := pctReturn(bars, m.shortDays)*0.4 +
		pctReturn(bars, m.longDays)*0.4 +
		volumeGrowth(bars, m.shortDays)*0.2
	return math.Tanh(raw * 2)
}
