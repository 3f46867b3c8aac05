package commands

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	configFile   string
	strategyFile string
	universeFile string
	verbose      bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "quant",
	Short: "Aegis Signals - multi-strategy consensus signal engine",
	Long: `Aegis Signals Unified CLI

Fetches quotes through a rate-limited gateway, screens instruments for
compliance, runs every configured strategy and aggregates their opinions
into one consensus signal per instrument.

Usage:
  go run ./cmd/quant [command]

Examples:
  go run ./cmd/quant api
  go run ./cmd/quant generate --dry-run
  go run ./cmd/quant backtest run --from 2023-01-02 --to 2023-12-29
  go run ./cmd/quant compliance check AAPL BRKB`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if configFile == "" {
			return nil
		}
		if err := godotenv.Overload(configFile); err != nil {
			return fmt.Errorf("load %s: %w", configFile, err)
		}
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "env file (default is .env)")
	rootCmd.PersistentFlags().StringVar(&strategyFile, "strategy", "", "strategy set YAML (overrides STRATEGY_CONFIG)")
	rootCmd.PersistentFlags().StringVar(&universeFile, "universe", "", "universe YAML (overrides UNIVERSE_FILE)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
