package commands

import (
	"fmt"
	"sort"
	"strings"

	"github.com/wonny/aegis-signals/internal/contracts"
)

// ═══════════════════════════════════════════════════════════
// Common Formatting Utilities
// Every command prints through these helpers
// ═══════════════════════════════════════════════════════════

// PrintHeader prints a titled block with key/value lines
func PrintHeader(title string, kv ...string) {
	fmt.Println()
	PrintDoubleSeparator()
	fmt.Printf("  %s\n", title)
	PrintSeparator()
	for i := 0; i+1 < len(kv); i += 2 {
		PrintKeyValue(kv[i], kv[i+1], 10)
	}
	if len(kv) > 0 {
		PrintSeparator()
	}
}

// PrintSeparator prints a visual separator
func PrintSeparator() {
	fmt.Println("───────────────────────────────────────────────────────────")
}

// PrintDoubleSeparator prints a double-line separator
func PrintDoubleSeparator() {
	fmt.Println("═══════════════════════════════════════════════════════════")
}

// PrintWarning prints a warning message
func PrintWarning(message string) {
	fmt.Printf("⚠️  %s\n", message)
}

// PrintSuccess prints a success message
func PrintSuccess(message string) {
	fmt.Printf("✅ %s\n", message)
}

// PrintError prints an error message
func PrintError(message string) {
	fmt.Printf("❌ %s\n", message)
}

// PrintTableHeader prints a table header
func PrintTableHeader(columns []string, widths []int) {
	PrintTableRow(columns, widths)

	totalWidth := 0
	for i, width := range widths {
		totalWidth += width
		if i < len(widths)-1 {
			totalWidth += 2 // spacing
		}
	}
	fmt.Println(strings.Repeat("─", totalWidth))
}

// PrintTableRow prints a table row
func PrintTableRow(values []string, widths []int) {
	for i, val := range values {
		fmt.Printf("%-*s", widths[i], val)
		if i < len(values)-1 {
			fmt.Print("  ")
		}
	}
	fmt.Println()
}

// PrintKeyValue prints key-value pairs
func PrintKeyValue(key string, value string, keyWidth int) {
	fmt.Printf("  %-*s : %s\n", keyWidth, key, value)
}

// printSignals renders consensus signals as a table
func printSignals(signals []contracts.ConsensusSignal) {
	if len(signals) == 0 {
		fmt.Println("  (no signals)")
		return
	}
	widths := []int{8, 5, 6, 5, 10, 10, 10, 30}
	PrintTableHeader([]string{"SYMBOL", "DIR", "CONF", "AGREE", "ENTRY", "TARGET", "STOP", "STRATEGIES"}, widths)
	for _, s := range signals {
		PrintTableRow([]string{
			s.Symbol,
			string(s.Direction),
			fmt.Sprintf("%.3f", s.Confidence),
			fmt.Sprintf("%d", s.Agreement),
			fmt.Sprintf("%.2f", s.Entry),
			fmt.Sprintf("%.2f", s.Target),
			fmt.Sprintf("%.2f", s.Stop),
			strings.Join(s.Strategies, ","),
		}, widths)
	}
}

// printSummary renders a pipeline run
func printSummary(s *contracts.RunSummary) {
	PrintHeader("Signal Run",
		"Run ID", s.RunID,
		"Config", s.ConfigHash,
	)

	for _, st := range s.Stages {
		mark := "✅"
		if !st.Success {
			mark = "❌"
		}
		line := fmt.Sprintf("%s %-11s in=%-4d out=%-4d %dms", mark, st.Stage, st.InputCount, st.OutputCount, st.Duration)
		if st.Error != "" {
			line += "  " + st.Error
		}
		fmt.Println(line)
	}
	PrintSeparator()

	printSignals(s.Signals)

	if len(s.Excluded) > 0 {
		fmt.Println()
		fmt.Println("Excluded:")
		symbols := make([]string, 0, len(s.Excluded))
		for sym := range s.Excluded {
			symbols = append(symbols, sym)
		}
		sort.Strings(symbols)
		for _, sym := range symbols {
			fmt.Printf("   • %-8s %s\n", sym, s.Excluded[sym])
		}
	}

	fmt.Println()
	switch {
	case s.Cancelled:
		PrintWarning("Run cancelled, nothing published")
	case s.Degraded:
		PrintWarning("Run degraded, see stage errors")
	default:
		PrintSuccess(fmt.Sprintf("%d signals", len(s.Signals)))
	}
}

// printReport renders backtest statistics
func printReport(r *contracts.BacktestReport) {
	PrintHeader("Backtest Report",
		"Period", r.From+" ~ "+r.To,
		"Universe", fmt.Sprintf("%d instruments", r.Instruments),
	)

	PrintKeyValue("Trades", fmt.Sprintf("%d (%d wins / %d losses)", r.TotalTrades, r.Wins, r.Losses), 14)
	PrintKeyValue("Win rate", fmt.Sprintf("%.2f%%", r.WinRate*100), 14)
	PrintKeyValue("Avg return", fmt.Sprintf("%.4f", r.AvgReturn), 14)
	PrintKeyValue("Median return", fmt.Sprintf("%.4f", r.MedianReturn), 14)
	PrintKeyValue("Total return", fmt.Sprintf("%.2f%%", r.TotalReturn*100), 14)
	PrintKeyValue("Max drawdown", fmt.Sprintf("%.2f%%", r.MaxDrawdown*100), 14)

	if len(r.ByStrategy) > 0 {
		fmt.Println()
		ids := make([]string, 0, len(r.ByStrategy))
		for id := range r.ByStrategy {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		widths := []int{16, 8, 10, 12}
		PrintTableHeader([]string{"STRATEGY", "TRADES", "WIN RATE", "AVG RETURN"}, widths)
		for _, id := range ids {
			st := r.ByStrategy[id]
			PrintTableRow([]string{
				id,
				fmt.Sprintf("%d", st.Trades),
				fmt.Sprintf("%.2f%%", st.WinRate*100),
				fmt.Sprintf("%.4f", st.AvgReturn),
			}, widths)
		}
	}

	if len(r.ByExitReason) > 0 {
		fmt.Println()
		for reason, n := range r.ByExitReason {
			PrintKeyValue(string(reason), fmt.Sprintf("%d", n), 14)
		}
	}

	for _, sk := range r.Skipped {
		PrintWarning(fmt.Sprintf("skipped %s: %s", sk.Symbol, sk.Reason))
	}
	if r.Cancelled {
		PrintWarning("Backtest cancelled, report is partial")
	}
}
