package contracts

import "context"

// QuoteProvider is the upstream market-data boundary.
// Implementations return ErrNotFound, ErrRateLimited, ErrTimeout or
// ErrProviderUnavailable (wrapped) so the gateway can route failures.
type QuoteProvider interface {
	Name() string
	FetchQuote(ctx context.Context, symbol string) (MarketQuote, error)
}

// StrategyAdapter is the one interface every strategy implements
// ⭐ SSOT: the pipeline never inspects strategy internals
//
// history is ascending by date and never extends past quote's day.
type StrategyAdapter interface {
	ID() string
	Evaluate(instrument Instrument, quote MarketQuote, history []Bar) []RawSignal
}

// Features is the opaque input handed to a QualityScorer
type Features map[string]float64

// QualityScorer produces an external quality score in [0,1]. Optional.
type QualityScorer interface {
	Score(instrument Instrument, features Features) (float64, error)
}

// SignalSink receives emitted consensus signals
type SignalSink interface {
	Publish(ctx context.Context, signals []ConsensusSignal) error
}
