package strategy

import (
	"github.com/wonny/aegis-signals/internal/contracts"
)

// Breakout trades closes outside the prior N-day channel
type Breakout struct {
	lookback    int
	volumeRatio float64
	targetPct   float64
	stopPct     float64
}

// NewBreakout builds the strategy from params.
//
//	lookback (20) volume_ratio (1.5) target_pct (0.10) stop_pct (0.05)
func NewBreakout(p Params) contracts.StrategyAdapter {
	return &Breakout{
		lookback:    int(p.get("lookback", 20)),
		volumeRatio: p.get("volume_ratio", 1.5),
		targetPct:   p.get("target_pct", 0.10),
		stopPct:     p.get("stop_pct", 0.05),
	}
}

// ID implements contracts.StrategyAdapter
func (b *Breakout) ID() string { return "breakout" }

// Evaluate implements contracts.StrategyAdapter
func (b *Breakout) Evaluate(inst contracts.Instrument, quote contracts.MarketQuote, history []contracts.Bar) []contracts.RawSignal {
	bars := series(history, quote)
	if len(bars) < b.lookback+1 {
		return nil
	}

	today := bars[len(bars)-1]
	prior := bars[len(bars)-1-b.lookback : len(bars)-1]
	high, low := channel(prior)
	if high <= 0 || low <= 0 {
		return nil
	}

	var dir contracts.Direction
	var distance float64
	switch {
	case today.Close > high:
		dir = contracts.DirectionBuy
		distance = (today.Close - high) / high
	case today.Close < low:
		dir = contracts.DirectionSell
		distance = (low - today.Close) / low
	default:
		return nil
	}

	// Volume confirmation lifts confidence; an unconfirmed breakout stays weak
	confidence := 0.4 + distance*5
	if avg := avgVolume(prior); avg > 0 && float64(today.Volume) >= avg*b.volumeRatio {
		confidence += 0.3
	}

	target, stop := levels(dir, today.Close, b.targetPct, b.stopPct)
	return []contracts.RawSignal{{
		Symbol:     inst.Symbol,
		StrategyID: b.ID(),
		Direction:  dir,
		Confidence: clamp01(confidence),
		Entry:      today.Close,
		Target:     target,
		Stop:       stop,
		Timestamp:  today.Date,
	}}
}
