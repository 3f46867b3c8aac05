package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/aegis-signals/internal/backtest"
	"github.com/wonny/aegis-signals/internal/contracts"
)

// backtestCmd represents the backtest command
var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Backtesting framework",
	Long: `Replays the configured strategy set over stored daily bars.

Each consensus signal opens one simulated trade at the next bar's open.
The trade closes at its stop, its target or after max holding days.

Example:
  go run ./cmd/quant backtest run --from 2023-01-02 --to 2023-12-29
  go run ./cmd/quant backtest run --from 2023-01-02 --symbols AAPL,MSFT --max-holding 10`,
}

var (
	backtestRunCmd = &cobra.Command{
		Use:   "run",
		Short: "Run a backtest",
		Long: `Runs a backtest for the given period.

Flags:
  --from         start date (YYYY-MM-DD, required)
  --to           end date (YYYY-MM-DD, default: today)
  --symbols      comma separated subset of the universe
  --max-holding  max holding days (default: strategy set)
  --commission   per-leg commission (default: strategy set)
  --slippage     per-leg slippage (default: strategy set)`,
		RunE: runBacktest,
	}

	// Flags
	backtestFrom       string
	backtestTo         string
	backtestSymbols    string
	backtestMaxHolding int
	backtestCommission float64
	backtestSlippage   float64
	backtestJSON       bool
)

func init() {
	rootCmd.AddCommand(backtestCmd)
	backtestCmd.AddCommand(backtestRunCmd)

	// Flags
	backtestRunCmd.Flags().StringVar(&backtestFrom, "from", "", "start date (YYYY-MM-DD, required)")
	backtestRunCmd.Flags().StringVar(&backtestTo, "to", "", "end date (YYYY-MM-DD, default: today)")
	backtestRunCmd.Flags().StringVar(&backtestSymbols, "symbols", "", "comma separated subset of the universe")
	backtestRunCmd.Flags().IntVar(&backtestMaxHolding, "max-holding", 0, "max holding days")
	backtestRunCmd.Flags().Float64Var(&backtestCommission, "commission", -1, "per-leg commission rate")
	backtestRunCmd.Flags().Float64Var(&backtestSlippage, "slippage", -1, "per-leg slippage rate")
	backtestRunCmd.Flags().BoolVar(&backtestJSON, "json", false, "print the report as JSON")

	backtestRunCmd.MarkFlagRequired("from")
}

func runBacktest(cmd *cobra.Command, args []string) error {
	// Parse dates
	startDate, err := time.Parse("2006-01-02", backtestFrom)
	if err != nil {
		return fmt.Errorf("invalid start date: %w", err)
	}

	endDate := time.Now().UTC().Truncate(24 * time.Hour)
	if backtestTo != "" {
		endDate, err = time.Parse("2006-01-02", backtestTo)
		if err != nil {
			return fmt.Errorf("invalid end date: %w", err)
		}
	}
	period := contracts.DateRange{From: startDate, To: endDate}
	if !period.Valid() {
		return fmt.Errorf("start date %s is after end date %s", backtestFrom, endDate.Format("2006-01-02"))
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	cfg := a.btConfig
	if backtestMaxHolding > 0 {
		cfg.MaxHoldingDays = backtestMaxHolding
	}
	if backtestCommission >= 0 {
		cfg.Commission = backtestCommission
	}
	if backtestSlippage >= 0 {
		cfg.Slippage = backtestSlippage
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	u, err := a.universe.Universe(ctx)
	if err != nil {
		return err
	}
	u = filterUniverse(u, backtestSymbols)
	a.resolver.Register(u.Instruments...)

	if !backtestJSON {
		PrintHeader("Backtest",
			"Period", fmt.Sprintf("%s ~ %s", startDate.Format("2006-01-02"), endDate.Format("2006-01-02")),
			"Holding", fmt.Sprintf("%d days max", cfg.MaxHoldingDays),
			"Costs", fmt.Sprintf("commission %.4f / slippage %.4f per leg", cfg.Commission, cfg.Slippage),
		)
		fmt.Println("🚀 Starting backtest...")
	}

	report, err := a.backtest.Run(ctx, a.registry.Adapters(), u, period, cfg)
	if errors.Is(err, backtest.ErrNoUsableData) {
		PrintError("No stored bars cover this period; run `quant history sync` first")
		return err
	}
	if err != nil {
		return fmt.Errorf("backtest failed: %w", err)
	}

	if backtestJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	printReport(report)
	return nil
}
