package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wonny/aegis-signals/internal/strategy"
	"github.com/wonny/aegis-signals/internal/strategyconfig"
	"github.com/wonny/aegis-signals/pkg/config"
)

// strategyCmd groups strategy set tooling
var strategyCmd = &cobra.Command{
	Use:   "strategy",
	Short: "Strategy set tooling",
	Long: `Inspects the strategy set YAML without touching any provider.

Example:
  go run ./cmd/quant strategy validate
  go run ./cmd/quant strategy validate --strategy config/strategy/signal_set.yaml`,
}

var strategyValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the strategy set and print its effective settings",
	RunE:  runStrategyValidate,
}

func init() {
	rootCmd.AddCommand(strategyCmd)
	strategyCmd.AddCommand(strategyValidateCmd)
}

func runStrategyValidate(cmd *cobra.Command, args []string) error {
	path := strategyFile
	if path == "" {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		path = cfg.StrategyConfigPath
	}

	set, _, err := strategyconfig.Load(path)
	if err != nil {
		PrintError(err.Error())
		return err
	}
	hash, err := strategyconfig.Hash(set)
	if err != nil {
		return err
	}

	cons := set.ConsensusConfig()
	PrintHeader("Strategy Set",
		"File", path,
		"Set ID", fmt.Sprintf("%s v%s", set.Meta.SetID, set.Meta.Version),
		"Hash", hash,
	)

	widths := []int{16, 8, 9, 30}
	PrintTableHeader([]string{"STRATEGY", "WEIGHT", "ENABLED", "PARAMS"}, widths)
	for _, s := range set.Strategies {
		weight := "default"
		if s.Weight != nil {
			weight = fmt.Sprintf("%.2f", *s.Weight)
		}
		params := make([]string, 0, len(s.Params))
		for k, v := range s.Params {
			params = append(params, fmt.Sprintf("%s=%g", k, v))
		}
		PrintTableRow([]string{s.ID, weight, fmt.Sprintf("%v", !s.Disabled), strings.Join(params, " ")}, widths)
	}

	fmt.Println()
	PrintKeyValue("Min agreement", fmt.Sprintf("%d", cons.MinAgreement), 15)
	PrintKeyValue("Min confidence", fmt.Sprintf("%.2f", cons.MinConfidence), 15)
	PrintKeyValue("External weight", fmt.Sprintf("%.2f", cons.ExternalWeight), 15)
	PrintKeyValue("Priority", strings.Join(cons.Priority, " > "), 15)
	PrintKeyValue("Builtins", strings.Join(strategy.BuiltinIDs(), ", "), 15)

	fmt.Println()
	for _, w := range strategyconfig.Warn(set) {
		PrintWarning(fmt.Sprintf("[%s] %s", w.Code, w.Message))
	}
	PrintSuccess("Strategy set is valid")
	return nil
}
