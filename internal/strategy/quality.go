package strategy

import (
	"errors"
	"math"

	"github.com/wonny/aegis-signals/internal/contracts"
)

// Feature keys produced by FeaturesFrom
const (
	FeatureDebtRatio     = "debt_ratio"     // total debt / market cap, percent
	FeatureReturn60D     = "return_60d"     // close-to-close
	FeatureVolatility20D = "volatility_20d" // stdev of daily returns
)

// ErrInsufficientFeatures is returned when no feature can be scored
var ErrInsufficientFeatures = errors.New("insufficient features")

// FundamentalsScorer is the built-in QualityScorer.
// It grades balance-sheet leverage and trend quality into [0,1].
type FundamentalsScorer struct{}

// Score implements contracts.QualityScorer
func (FundamentalsScorer) Score(_ contracts.Instrument, f contracts.Features) (float64, error) {
	var score, weight float64

	// Debt ratio: lower is better. 0% = 1.0, 100% = 0, 200% = -1.0
	if d, ok := f[FeatureDebtRatio]; ok && d >= 0 {
		score += math.Max(-1, math.Min(1, (100-d)/100)) * 0.5
		weight += 0.5
	}

	if r, ok := f[FeatureReturn60D]; ok {
		score += math.Tanh(r*3) * 0.3
		weight += 0.3
	}

	// Volatility above ~3% daily is penalised
	if v, ok := f[FeatureVolatility20D]; ok && v >= 0 {
		score += math.Max(-1, 1-v/0.03) * 0.2
		weight += 0.2
	}

	if weight == 0 {
		return 0, ErrInsufficientFeatures
	}

	s := math.Tanh(score / weight * 1.5)
	return (s + 1) / 2, nil
}

// FeaturesFrom derives scorer features from a quote and its history
func FeaturesFrom(quote contracts.MarketQuote, history []contracts.Bar) contracts.Features {
	f := contracts.Features{}

	if fund := quote.Fundamentals; fund != nil && fund.TotalDebt != nil {
		marketCap := quote.MarketCap
		if fund.MarketCap != nil {
			marketCap = *fund.MarketCap
		}
		if marketCap > 0 {
			f[FeatureDebtRatio] = *fund.TotalDebt / marketCap * 100
		}
	}

	bars := series(history, quote)
	if len(bars) >= 61 {
		f[FeatureReturn60D] = pctReturn(bars, 60)
	}
	if len(bars) >= 21 {
		f[FeatureVolatility20D] = volatility(bars[len(bars)-21:])
	}
	return f
}

func volatility(bars []contracts.Bar) float64 {
	if len(bars) < 2 {
		return 0
	}
	rets := make([]float64, 0, len(bars)-1)
	var mean float64
	for i := 1; i < len(bars); i++ {
		if bars[i-1].Close == 0 {
			continue
		}
		r := bars[i].Close/bars[i-1].Close - 1
		rets = append(rets, r)
		mean += r
	}
	if len(rets) == 0 {
		return 0
	}
	mean /= float64(len(rets))

	var ss float64
	for _, r := range rets {
		ss += (r - mean) * (r - mean)
	}
	return math.Sqrt(ss / float64(len(rets)))
}
