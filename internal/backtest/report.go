package backtest

import (
	"math"
	"sort"

	"github.com/wonny/aegis-signals/internal/contracts"
)

const dateLayout = "2006-01-02"

// buildReport aggregates closed trades.
// Trades are ordered by exit date, symbol, entry date before the equity curve is compounded.
func buildReport(r contracts.DateRange, instruments int, trades []contracts.BacktestTrade, skipped []contracts.SkippedInstrument) *contracts.BacktestReport {
	sort.Slice(trades, func(i, j int) bool {
		a, b := trades[i], trades[j]
		if a.ExitDate != b.ExitDate {
			return a.ExitDate < b.ExitDate
		}
		if a.Symbol != b.Symbol {
			return a.Symbol < b.Symbol
		}
		return a.EntryDate < b.EntryDate
	})
	sort.Slice(skipped, func(i, j int) bool { return skipped[i].Symbol < skipped[j].Symbol })

	report := &contracts.BacktestReport{
		From:         r.From.Format(dateLayout),
		To:           r.To.Format(dateLayout),
		Instruments:  instruments,
		TotalTrades:  len(trades),
		ByStrategy:   make(map[string]contracts.StrategyStats),
		ByExitReason: make(map[contracts.ExitReason]int),
		Trades:       trades,
		Skipped:      skipped,
	}
	if report.Trades == nil {
		report.Trades = []contracts.BacktestTrade{}
	}
	if len(trades) == 0 {
		return report
	}

	returns := make([]float64, len(trades))
	var sum float64
	sums := make(map[string]float64)

	for i, t := range trades {
		returns[i] = t.Return
		sum += t.Return
		if t.Win() {
			report.Wins++
		} else {
			report.Losses++
		}
		report.ByExitReason[t.ExitReason]++

		for _, id := range t.Strategies {
			st := report.ByStrategy[id]
			st.Trades++
			if t.Win() {
				st.Wins++
			}
			report.ByStrategy[id] = st
			sums[id] += t.Return
		}
	}

	for id, st := range report.ByStrategy {
		st.WinRate = float64(st.Wins) / float64(st.Trades)
		st.AvgReturn = sums[id] / float64(st.Trades)
		report.ByStrategy[id] = st
	}

	report.WinRate = float64(report.Wins) / float64(len(trades))
	report.AvgReturn = sum / float64(len(trades))
	report.MedianReturn = median(returns)
	report.TotalReturn, report.MaxDrawdown = compound(returns)

	return report
}

// compound walks the equity curve starting at 1.0 and returns the total
// return and the largest peak-to-trough decline
func compound(returns []float64) (total, maxDrawdown float64) {
	equity, peak := 1.0, 1.0
	for _, r := range returns {
		equity *= 1 + r
		if equity > peak {
			peak = equity
		}
		if peak > 0 {
			if dd := (peak - equity) / peak; dd > maxDrawdown {
				maxDrawdown = dd
			}
		}
	}
	return equity - 1, math.Min(maxDrawdown, 1)
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}
