package contracts

import "time"

// Direction is the side a signal recommends
type Direction string

const (
	DirectionBuy  Direction = "BUY"
	DirectionSell Direction = "SELL"
)

// Valid reports whether d is BUY or SELL
func (d Direction) Valid() bool {
	return d == DirectionBuy || d == DirectionSell
}

// RawSignal is one strategy's opinion on one instrument
// ⭐ SSOT: produced by a StrategyAdapter, immutable once emitted
type RawSignal struct {
	Symbol     string    `json:"symbol"`
	StrategyID string    `json:"strategy_id"`
	Direction  Direction `json:"direction"`
	Confidence float64   `json:"confidence"` // 0.0 ~ 1.0
	Entry      float64   `json:"entry"`
	Target     float64   `json:"target"`
	Stop       float64   `json:"stop"`
	Timestamp  time.Time `json:"timestamp"`
}

// ConsensusSignal is the single aggregated decision for an instrument
// ⭐ SSOT: deterministic function of its contributing RawSignals and external score
type ConsensusSignal struct {
	Symbol        string    `json:"symbol"`
	Strategies    []string  `json:"strategies"` // priority order
	Confidence    float64   `json:"confidence"`
	Direction     Direction `json:"direction"`
	Entry         float64   `json:"entry"`
	Target        float64   `json:"target"`
	Stop          float64   `json:"stop"`
	Agreement     int       `json:"agreement"`
	ExternalScore *float64  `json:"external_score,omitempty"`
	GeneratedAt   time.Time `json:"generated_at"`
}

// ExpectedReturn is the fractional move from entry to target in the signal direction
func (c ConsensusSignal) ExpectedReturn() float64 {
	if c.Entry == 0 {
		return 0
	}
	if c.Direction == DirectionSell {
		return (c.Entry - c.Target) / c.Entry
	}
	return (c.Target - c.Entry) / c.Entry
}
