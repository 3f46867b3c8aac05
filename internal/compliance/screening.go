package compliance

import (
	"fmt"
	"strings"

	"github.com/wonny/aegis-signals/internal/contracts"
)

// ScreeningRules are the financial screens applied to fundamentals.
// Ratios are measured against market capitalisation.
type ScreeningRules struct {
	ExcludedSectors          []string `yaml:"excluded_sectors"`
	MaxDebtRatio             float64  `yaml:"max_debt_ratio"`
	MaxCashRatio             float64  `yaml:"max_cash_ratio"`
	MaxReceivablesRatio      float64  `yaml:"max_receivables_ratio"`
	MaxNonPermissibleRevenue float64  `yaml:"max_non_permissible_revenue"`
}

// DefaultScreeningRules returns the standard thresholds
func DefaultScreeningRules() ScreeningRules {
	return ScreeningRules{
		ExcludedSectors: []string{
			"Conventional Banking",
			"Conventional Insurance",
			"Alcoholic Beverages",
			"Tobacco",
			"Gambling",
			"Adult Entertainment",
			"Pork Products",
			"Weapons & Defense",
		},
		MaxDebtRatio:             0.33,
		MaxCashRatio:             0.33,
		MaxReceivablesRatio:      0.49,
		MaxNonPermissibleRevenue: 0.05,
	}
}

// Validate fails on thresholds outside [0,1]
func (r ScreeningRules) Validate() error {
	for name, v := range map[string]float64{
		"max_debt_ratio":              r.MaxDebtRatio,
		"max_cash_ratio":              r.MaxCashRatio,
		"max_receivables_ratio":       r.MaxReceivablesRatio,
		"max_non_permissible_revenue": r.MaxNonPermissibleRevenue,
	} {
		if v <= 0 || v > 1 {
			return fmt.Errorf("%s must be in (0, 1], got %v", name, v)
		}
	}
	return nil
}

// Classify screens fundamentals.
//
// A failing screen is a data-backed NON_COMPLIANT. All screens present and
// passing is COMPLIANT. Anything else (missing market cap, a missing ratio
// with no failing one) yields no determination so the chain falls through.
func (r ScreeningRules) Classify(f *contracts.Fundamentals, quoteMarketCap float64) (contracts.ComplianceStatus, []string, bool) {
	if f == nil {
		return "", nil, false
	}

	if f.Sector != "" {
		for _, s := range r.ExcludedSectors {
			if strings.EqualFold(f.Sector, s) {
				return contracts.StatusNonCompliant, []string{fmt.Sprintf("excluded sector: %s", f.Sector)}, true
			}
		}
	}

	marketCap := quoteMarketCap
	if f.MarketCap != nil {
		marketCap = *f.MarketCap
	}
	if marketCap <= 0 {
		return "", []string{"market cap unavailable"}, false
	}

	var failures, missing []string
	check := func(name string, value *float64, limit float64, relative bool) {
		if value == nil {
			missing = append(missing, name)
			return
		}
		ratio := *value
		if relative {
			ratio = *value / marketCap
		}
		if ratio > limit {
			failures = append(failures, fmt.Sprintf("%s %.1f%% exceeds %.0f%%", name, ratio*100, limit*100))
		}
	}

	check("debt", f.TotalDebt, r.MaxDebtRatio, true)
	check("cash and interest-bearing securities", f.CashAndSecurities, r.MaxCashRatio, true)
	check("receivables", f.Receivables, r.MaxReceivablesRatio, true)
	check("non-permissible revenue", f.NonPermissibleRevenueRatio, r.MaxNonPermissibleRevenue, false)

	switch {
	case len(failures) > 0:
		return contracts.StatusNonCompliant, failures, true
	case len(missing) > 0:
		return "", []string{"missing " + strings.Join(missing, ", ")}, false
	default:
		return contracts.StatusCompliant, nil, true
	}
}
