package contracts

import (
	"context"
	"time"
)

// ⭐ SSOT: repository interfaces are defined here only

// BarRepository serves and stores daily bars.
// Bars returns bars inside the inclusive range, ascending by date.
type BarRepository interface {
	Bars(ctx context.Context, symbol string, r DateRange) ([]Bar, error)
	SaveBars(ctx context.Context, symbol string, bars []Bar) error
}

// SnapshotRepository keeps the last good quote per symbol
type SnapshotRepository interface {
	SaveSnapshot(ctx context.Context, quote MarketQuote) error
	LatestSnapshot(ctx context.Context, symbol string) (MarketQuote, bool, error)
}

// SignalRepository persists emitted consensus signals
type SignalRepository interface {
	SaveSignals(ctx context.Context, signals []ConsensusSignal) error
	SignalsSince(ctx context.Context, symbol string, since time.Time) ([]ConsensusSignal, error)
}
