package contracts

import "time"

// Instrument is immutable reference data for one tradable symbol
// ⭐ SSOT: instrument identity shared by every component
type Instrument struct {
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Sector   string `json:"sector"`
	Exchange string `json:"exchange,omitempty"`
	Tradable bool   `json:"tradable"`
	Halted   bool   `json:"halted"`
}

// Eligible reports whether the instrument can be traded today
func (i Instrument) Eligible() bool {
	return i.Tradable && !i.Halted
}

// Provenance marks where a quote came from
type Provenance string

const (
	ProvenanceLive   Provenance = "live"
	ProvenanceCached Provenance = "cached"
)

// Fundamentals holds the balance-sheet fields used by compliance screening.
// Nil fields were not reported by the provider.
type Fundamentals struct {
	Sector                     string    `json:"sector,omitempty"`
	MarketCap                  *float64  `json:"market_cap,omitempty"`
	TotalDebt                  *float64  `json:"total_debt,omitempty"`
	CashAndSecurities          *float64  `json:"cash_and_securities,omitempty"`
	Receivables                *float64  `json:"receivables,omitempty"`
	NonPermissibleRevenueRatio *float64  `json:"non_permissible_revenue_ratio,omitempty"`
	AsOf                       time.Time `json:"as_of"`
}

// MarketQuote is one fetched price/fundamental payload
// ⭐ SSOT: created by the gateway, read-only downstream
type MarketQuote struct {
	Symbol       string        `json:"symbol"`
	Open         float64       `json:"open"`
	High         float64       `json:"high"`
	Low          float64       `json:"low"`
	Close        float64       `json:"close"`
	Volume       int64         `json:"volume"`
	MarketCap    float64       `json:"market_cap"`
	Fundamentals *Fundamentals `json:"fundamentals,omitempty"`
	FetchedAt    time.Time     `json:"fetched_at"`
	Provenance   Provenance    `json:"provenance"`
}

// Bar is one daily OHLCV bar
type Bar struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`
}

// QuoteFromBar builds the quote a strategy sees on a historical day
func QuoteFromBar(symbol string, b Bar) MarketQuote {
	return MarketQuote{
		Symbol:     symbol,
		Open:       b.Open,
		High:       b.High,
		Low:        b.Low,
		Close:      b.Close,
		Volume:     b.Volume,
		FetchedAt:  b.Date,
		Provenance: ProvenanceCached,
	}
}

// DateRange is an inclusive calendar range
type DateRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// Contains reports whether t falls inside the range (inclusive)
func (r DateRange) Contains(t time.Time) bool {
	return !t.Before(r.From) && !t.After(r.To)
}

// Valid reports whether From is not after To
func (r DateRange) Valid() bool {
	return !r.From.IsZero() && !r.To.IsZero() && !r.From.After(r.To)
}

// Universe is the instrument set for one run
type Universe struct {
	Date        time.Time    `json:"date"`
	Instruments []Instrument `json:"instruments"`
}

// Symbols returns the symbols in universe order
func (u *Universe) Symbols() []string {
	out := make([]string, len(u.Instruments))
	for i, inst := range u.Instruments {
		out[i] = inst.Symbol
	}
	return out
}

// Lookup finds an instrument by symbol
func (u *Universe) Lookup(symbol string) (Instrument, bool) {
	for _, inst := range u.Instruments {
		if inst.Symbol == symbol {
			return inst, true
		}
	}
	return Instrument{}, false
}

// Count returns the number of instruments
func (u *Universe) Count() int {
	return len(u.Instruments)
}
