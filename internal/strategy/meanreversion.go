package strategy

import (
	"github.com/wonny/aegis-signals/internal/contracts"
)

// MeanReversion fades RSI extremes back toward the moving average
type MeanReversion struct {
	period     int
	oversold   float64
	overbought float64
	maDays     int
	stopPct    float64
}

// NewMeanReversion builds the strategy from params.
//
//	period (14) oversold (30) overbought (70) ma_days (20) stop_pct (0.05)
func NewMeanReversion(p Params) contracts.StrategyAdapter {
	return &MeanReversion{
		period:     int(p.get("period", 14)),
		oversold:   p.get("oversold", 30),
		overbought: p.get("overbought", 70),
		maDays:     int(p.get("ma_days", 20)),
		stopPct:    p.get("stop_pct", 0.05),
	}
}

// ID implements contracts.StrategyAdapter
func (m *MeanReversion) ID() string { return "mean_reversion" }

// Evaluate implements contracts.StrategyAdapter
func (m *MeanReversion) Evaluate(inst contracts.Instrument, quote contracts.MarketQuote, history []contracts.Bar) []contracts.RawSignal {
	bars := series(history, quote)
	need := m.period + 1
	if m.maDays > need {
		need = m.maDays
	}
	if len(bars) < need {
		return nil
	}

	r := rsi(bars, m.period)
	today := bars[len(bars)-1]
	mean := sma(bars[len(bars)-m.maDays:])

	var dir contracts.Direction
	var confidence float64
	switch {
	case r < m.oversold && mean > today.Close:
		dir = contracts.DirectionBuy
		confidence = (m.oversold - r) / m.oversold
	case r > m.overbought && mean < today.Close:
		dir = contracts.DirectionSell
		confidence = (r - m.overbought) / (100 - m.overbought)
	default:
		return nil
	}

	// Target is the reversion back to the mean
	_, stop := levels(dir, today.Close, 0, m.stopPct)
	return []contracts.RawSignal{{
		Symbol:     inst.Symbol,
		StrategyID: m.ID(),
		Direction:  dir,
		Confidence: clamp01(0.3 + confidence*0.7),
		Entry:      today.Close,
		Target:     mean,
		Stop:       stop,
		Timestamp:  today.Date,
	}}
}
