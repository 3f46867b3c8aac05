package contracts

// ExitReason records why a simulated trade closed
type ExitReason string

const (
	ExitTarget  ExitReason = "target"
	ExitStop    ExitReason = "stop"
	ExitTimeout ExitReason = "timeout"
)

// BacktestTrade is one closed simulated trade
type BacktestTrade struct {
	Symbol      string     `json:"symbol"`
	Direction   Direction  `json:"direction"`
	Strategies  []string   `json:"strategies"`
	EntryDate   string     `json:"entry_date"` // 2006-01-02
	ExitDate    string     `json:"exit_date"`
	EntryPrice  float64    `json:"entry_price"`
	ExitPrice   float64    `json:"exit_price"`
	Return      float64    `json:"return"` // fractional, direction adjusted
	ExitReason  ExitReason `json:"exit_reason"`
	HoldingDays int        `json:"holding_days"`
}

// Win reports whether the trade made money
func (t BacktestTrade) Win() bool {
	return t.Return > 0
}

// StrategyStats attributes trades to one contributing strategy
type StrategyStats struct {
	Trades    int     `json:"trades"`
	Wins      int     `json:"wins"`
	WinRate   float64 `json:"win_rate"`
	AvgReturn float64 `json:"avg_return"`
}

// SkippedInstrument is an instrument the backtest could not replay
type SkippedInstrument struct {
	Symbol string `json:"symbol"`
	Reason string `json:"reason"`
}

// BacktestReport aggregates one backtest run
// ⭐ SSOT: built once per run, never mutated afterwards
type BacktestReport struct {
	From         string                   `json:"from"`
	To           string                   `json:"to"`
	Instruments  int                      `json:"instruments"`
	TotalTrades  int                      `json:"total_trades"`
	Wins         int                      `json:"wins"`
	Losses       int                      `json:"losses"`
	WinRate      float64                  `json:"win_rate"`
	AvgReturn    float64                  `json:"avg_return"`
	MedianReturn float64                  `json:"median_return"`
	TotalReturn  float64                  `json:"total_return"` // compounded
	MaxDrawdown  float64                  `json:"max_drawdown"` // 0.0 ~ 1.0
	ByStrategy   map[string]StrategyStats `json:"by_strategy"`
	ByExitReason map[ExitReason]int       `json:"by_exit_reason"`
	Trades       []BacktestTrade          `json:"trades"`
	Skipped      []SkippedInstrument      `json:"skipped,omitempty"`
	Cancelled    bool                     `json:"cancelled"`
}
