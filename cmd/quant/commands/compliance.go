package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wonny/aegis-signals/internal/compliance"
	"github.com/wonny/aegis-signals/internal/contracts"
)

// complianceCmd groups compliance tooling
var complianceCmd = &cobra.Command{
	Use:   "compliance",
	Short: "Compliance screening",
	Long: `Resolves instrument compliance through the fallback chain:
provider → cached fundamentals → heuristic → override → default.

Example:
  go run ./cmd/quant compliance check AAPL BRKB
  go run ./cmd/quant compliance check AAPL --refresh
  go run ./cmd/quant compliance universe`,
}

var (
	complianceCheckCmd = &cobra.Command{
		Use:   "check [symbols...]",
		Short: "Resolve the given symbols",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runComplianceCheck,
	}

	complianceUniverseCmd = &cobra.Command{
		Use:   "universe",
		Short: "Resolve every symbol in the universe file",
		RunE:  runComplianceUniverse,
	}

	complianceRefresh bool
)

func init() {
	rootCmd.AddCommand(complianceCmd)
	complianceCmd.AddCommand(complianceCheckCmd)
	complianceCmd.AddCommand(complianceUniverseCmd)

	complianceCheckCmd.Flags().BoolVar(&complianceRefresh, "refresh", false, "ignore cached records")
}

func runComplianceCheck(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if u, err := a.universe.Universe(ctx); err == nil {
		a.resolver.Register(u.Instruments...)
	}

	records := make([]contracts.ComplianceRecord, 0, len(args))
	for _, raw := range args {
		sym := strings.ToUpper(strings.TrimSpace(raw))
		rec, err := a.resolver.Resolve(ctx, sym, compliance.Options{ForceRefresh: complianceRefresh})
		if err != nil {
			return fmt.Errorf("resolve %s: %w", sym, err)
		}
		records = append(records, rec)
	}

	printRecords(records)
	return nil
}

func runComplianceUniverse(cmd *cobra.Command, args []string) error {
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
	a.resolver.Register(u.Instruments...)

	res, err := a.resolver.ResolveUniverse(ctx, u.Symbols())
	if err != nil {
		return fmt.Errorf("resolve universe: %w", err)
	}

	records := make([]contracts.ComplianceRecord, 0, len(res.Records))
	for _, rec := range res.Records {
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Symbol < records[j].Symbol })
	printRecords(records)

	fmt.Println()
	PrintSuccess(fmt.Sprintf("%d/%d eligible, %d from cache", len(res.Eligible()), len(res.Records), res.CacheHits))
	if res.Degraded {
		PrintWarning("Provider degraded, some records came from fallback tiers")
	}
	if res.Cancelled {
		PrintWarning("Resolution cancelled, results are partial")
	}
	return nil
}

func printRecords(records []contracts.ComplianceRecord) {
	widths := []int{8, 14, 8, 19, 6, 40}
	PrintTableHeader([]string{"SYMBOL", "STATUS", "CONF", "TIER", "REVIEW", "NOTES"}, widths)
	for _, r := range records {
		review := ""
		if r.ReviewRequired {
			review = "yes"
		}
		PrintTableRow([]string{
			r.Symbol,
			string(r.Status),
			string(r.Confidence),
			string(r.ResolvedBy),
			review,
			strings.Join(r.Notes, "; "),
		}, widths)
	}
}
