package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

// historyCmd groups daily bar maintenance
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Daily bar history",
	Long: `Maintains the daily bars strategies and backtests read.

Example:
  go run ./cmd/quant history sync --days 730
  go run ./cmd/quant history sync --symbols AAPL,MSFT`,
}

var (
	historySyncCmd = &cobra.Command{
		Use:   "sync",
		Short: "Fetch and store daily bars for the universe",
		RunE:  runHistorySync,
	}

	historyDays    int
	historySymbols string
)

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historySyncCmd)

	historySyncCmd.Flags().IntVar(&historyDays, "days", 0, "calendar days to fetch (default: HISTORY_DAYS)")
	historySyncCmd.Flags().StringVar(&historySymbols, "symbols", "", "comma separated subset of the universe")
}

func runHistorySync(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if a.db == nil {
		PrintWarning("DATABASE_URL not set, synced bars are discarded when the command exits")
	}

	days := historyDays
	if days <= 0 {
		days = a.cfg.HistoryDays
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	u, err := a.universe.Universe(ctx)
	if err != nil {
		return err
	}
	u = filterUniverse(u, historySymbols)

	to := time.Now().UTC()
	from := to.AddDate(0, 0, -days)
	PrintHeader("History Sync",
		"Period", fmt.Sprintf("%s ~ %s", from.Format("2006-01-02"), to.Format("2006-01-02")),
		"Symbols", fmt.Sprintf("%d", u.Count()),
	)

	results, err := a.syncer.Sync(ctx, u.Symbols(), from, to)
	if err != nil {
		return fmt.Errorf("history sync: %w", err)
	}

	failed := 0
	for _, r := range results {
		if r.Error != "" {
			failed++
			PrintError(fmt.Sprintf("%-8s %s", r.Symbol, r.Error))
			continue
		}
		PrintSuccess(fmt.Sprintf("%-8s %d bars", r.Symbol, r.Bars))
	}

	fmt.Println()
	if failed > 0 {
		PrintWarning(fmt.Sprintf("%d of %d symbols failed", failed, len(results)))
	}
	return nil
}
