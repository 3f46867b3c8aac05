package backtest

import (
	"github.com/wonny/aegis-signals/internal/contracts"
)

// TradeState is the lifecycle of one simulated trade
type TradeState string

const (
	StateOpened        TradeState = "OPENED"
	StatePriceUpdate   TradeState = "PRICE_UPDATE"
	StateTargetHit     TradeState = "TARGET_HIT"
	StateStopHit       TradeState = "STOP_HIT"
	StateTimeoutClosed TradeState = "TIMEOUT_CLOSED"
)

// Closed reports whether the state is terminal
func (s TradeState) Closed() bool {
	return s == StateTargetHit || s == StateStopHit || s == StateTimeoutClosed
}

// position is an open simulated trade
type position struct {
	signal   contracts.ConsensusSignal
	entryIdx int
	entryBar contracts.Bar
	state    TradeState

	exitIdx   int
	exitPrice float64
}

// openPosition enters at the consensus entry price on the signal day
func openPosition(sig contracts.ConsensusSignal, idx int, bar contracts.Bar) *position {
	return &position{
		signal:   sig,
		entryIdx: idx,
		entryBar: bar,
		state:    StateOpened,
	}
}

// update applies one daily bar after entry.
//
// The stop side is checked before the target side, so a bar touching both
// closes at the stop. The first bar whose holding period exceeds maxHolding
// closes at that bar's close. Fills happen exactly at the stop or target level.
func (p *position) update(idx int, bar contracts.Bar, maxHolding int) TradeState {
	if p.state.Closed() || idx <= p.entryIdx {
		return p.state
	}

	sig := p.signal
	var stopHit, targetHit bool
	if sig.Direction == contracts.DirectionSell {
		stopHit = bar.High >= sig.Stop
		targetHit = bar.Low <= sig.Target
	} else {
		stopHit = bar.Low <= sig.Stop
		targetHit = bar.High >= sig.Target
	}

	switch {
	case stopHit:
		p.close(StateStopHit, idx, sig.Stop)
	case targetHit:
		p.close(StateTargetHit, idx, sig.Target)
	case idx-p.entryIdx > maxHolding:
		p.close(StateTimeoutClosed, idx, bar.Close)
	default:
		p.state = StatePriceUpdate
	}
	return p.state
}

// expire closes at idx's close when the data runs out
func (p *position) expire(idx int, bar contracts.Bar) {
	if !p.state.Closed() {
		p.close(StateTimeoutClosed, idx, bar.Close)
	}
}

func (p *position) close(state TradeState, idx int, price float64) {
	p.state = state
	p.exitIdx = idx
	p.exitPrice = price
}

// trade converts a closed position into a report row.
// costs is the round-trip fraction charged (commission + slippage on both legs).
func (p *position) trade(exitBar contracts.Bar, costs float64) contracts.BacktestTrade {
	sig := p.signal
	ret := 0.0
	if sig.Entry > 0 {
		if sig.Direction == contracts.DirectionSell {
			ret = (sig.Entry - p.exitPrice) / sig.Entry
		} else {
			ret = (p.exitPrice - sig.Entry) / sig.Entry
		}
	}
	ret -= costs

	return contracts.BacktestTrade{
		Symbol:      sig.Symbol,
		Direction:   sig.Direction,
		Strategies:  append([]string(nil), sig.Strategies...),
		EntryDate:   p.entryBar.Date.Format(dateLayout),
		ExitDate:    exitBar.Date.Format(dateLayout),
		EntryPrice:  sig.Entry,
		ExitPrice:   p.exitPrice,
		Return:      ret,
		ExitReason:  exitReason(p.state),
		HoldingDays: p.exitIdx - p.entryIdx,
	}
}

func exitReason(s TradeState) contracts.ExitReason {
	switch s {
	case StateTargetHit:
		return contracts.ExitTarget
	case StateStopHit:
		return contracts.ExitStop
	default:
		return contracts.ExitTimeout
	}
}

// tradeable reports whether the levels bracket the entry on the right sides
func tradeable(sig contracts.ConsensusSignal) bool {
	if sig.Entry <= 0 {
		return false
	}
	if sig.Direction == contracts.DirectionSell {
		return sig.Target < sig.Entry && sig.Entry < sig.Stop
	}
	return sig.Stop < sig.Entry && sig.Entry < sig.Target
}
