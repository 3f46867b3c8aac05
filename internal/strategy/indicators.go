package strategy

import (
	"math"
	"time"

	"github.com/wonny/aegis-signals/internal/contracts"
)

// Params are per-strategy tunables from the strategy-set YAML
type Params map[string]float64

func (p Params) get(key string, def float64) float64 {
	if v, ok := p[key]; ok {
		return v
	}
	return def
}

// series returns history with the quote's day appended when history stops before it.
// The result is ascending by date; its last element is "today".
func series(history []contracts.Bar, quote contracts.MarketQuote) []contracts.Bar {
	if len(history) > 0 {
		last := history[len(history)-1].Date
		if quote.FetchedAt.IsZero() || sameDay(last, quote.FetchedAt) || last.After(quote.FetchedAt) {
			return history
		}
	}
	if quote.Close <= 0 {
		return history
	}
	today := contracts.Bar{
		Date:   quote.FetchedAt,
		Open:   quote.Open,
		High:   quote.High,
		Low:    quote.Low,
		Close:  quote.Close,
		Volume: quote.Volume,
	}
	out := make([]contracts.Bar, 0, len(history)+1)
	out = append(out, history...)
	return append(out, today)
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// pctReturn is the close-to-close return over the last n bars
func pctReturn(bars []contracts.Bar, n int) float64 {
	if len(bars) < n+1 {
		return 0
	}
	current := bars[len(bars)-1].Close
	past := bars[len(bars)-1-n].Close
	if past == 0 {
		return 0
	}
	return (current - past) / past
}

// volumeGrowth compares the last n bars' average volume with the n before them
func volumeGrowth(bars []contracts.Bar, n int) float64 {
	if len(bars) < n*2 {
		return 0
	}
	recent := avgVolume(bars[len(bars)-n:])
	past := avgVolume(bars[len(bars)-2*n : len(bars)-n])
	if past == 0 {
		return 0
	}
	return (recent - past) / past
}

func avgVolume(bars []contracts.Bar) float64 {
	if len(bars) == 0 {
		return 0
	}
	var sum int64
	for _, b := range bars {
		sum += b.Volume
	}
	return float64(sum) / float64(len(bars))
}

// rsi is the simple-average relative strength index over the last period changes
func rsi(bars []contracts.Bar, period int) float64 {
	if len(bars) < period+1 {
		return 50
	}

	var gains, losses float64
	for i := len(bars) - period; i < len(bars); i++ {
		change := bars[i].Close - bars[i-1].Close
		if change > 0 {
			gains += change
		} else {
			losses -= change
		}
	}

	if losses == 0 {
		if gains == 0 {
			return 50
		}
		return 100
	}
	rs := (gains / float64(period)) / (losses / float64(period))
	return 100 - 100/(1+rs)
}

// channel returns the highest high and lowest low of bars
func channel(bars []contracts.Bar) (high, low float64) {
	if len(bars) == 0 {
		return 0, 0
	}
	high, low = bars[0].High, bars[0].Low
	for _, b := range bars[1:] {
		high = math.Max(high, b.High)
		low = math.Min(low, b.Low)
	}
	return high, low
}

func sma(bars []contracts.Bar) float64 {
	if len(bars) == 0 {
		return 0
	}
	var sum float64
	for _, b := range bars {
		sum += b.Close
	}
	return sum / float64(len(bars))
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// levels derives target and stop from entry for a direction
func levels(dir contracts.Direction, entry, targetPct, stopPct float64) (target, stop float64) {
	if dir == contracts.DirectionSell {
		return entry * (1 - targetPct), entry * (1 + stopPct)
	}
	return entry * (1 + targetPct), entry * (1 - stopPct)
}
