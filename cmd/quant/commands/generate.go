package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wonny/aegis-signals/internal/contracts"
	"github.com/wonny/aegis-signals/internal/pipeline"
)

// generateCmd runs one pipeline pass
var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate consensus signals once",
	Long: `Runs FETCH → COMPLIANCE → STRATEGIES → CONSENSUS → PUBLISH for the
configured universe and prints the run summary.

Ctrl+C cancels the run; a cancelled run publishes nothing.

Example:
  go run ./cmd/quant generate
  go run ./cmd/quant generate --symbols AAPL,MSFT --dry-run
  go run ./cmd/quant generate --json`,
	RunE: runGenerate,
}

var (
	generateSymbols string
	generateDryRun  bool
	generateJSON    bool
)

func init() {
	rootCmd.AddCommand(generateCmd)

	generateCmd.Flags().StringVar(&generateSymbols, "symbols", "", "comma separated subset of the universe")
	generateCmd.Flags().BoolVar(&generateDryRun, "dry-run", false, "skip the PUBLISH stage")
	generateCmd.Flags().BoolVar(&generateJSON, "json", false, "print the summary as JSON")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	u, err := a.universe.Universe(ctx)
	if err != nil {
		return err
	}
	u = filterUniverse(u, generateSymbols)

	summary, err := a.pipeline.Run(ctx, pipeline.RunConfig{Universe: u, DryRun: generateDryRun})
	if err != nil {
		return fmt.Errorf("pipeline run: %w", err)
	}

	if generateJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	}
	printSummary(summary)
	return nil
}

// filterUniverse keeps the listed symbols. Unknown symbols are added as
// plain tradable instruments so ad-hoc runs work outside the universe file.
func filterUniverse(u contracts.Universe, csv string) contracts.Universe {
	if strings.TrimSpace(csv) == "" {
		return u
	}
	out := contracts.Universe{Date: u.Date}
	seen := map[string]bool{}
	for _, raw := range strings.Split(csv, ",") {
		sym := strings.ToUpper(strings.TrimSpace(raw))
		if sym == "" || seen[sym] {
			continue
		}
		seen[sym] = true
		inst, ok := u.Lookup(sym)
		if !ok {
			inst = contracts.Instrument{Symbol: sym, Tradable: true}
		}
		out.Instruments = append(out.Instruments, inst)
	}
	return out
}
