package marketdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/wonny/aegis-signals/internal/contracts"
)

// quotePayload is the provider's JSON quote document
type quotePayload struct {
	Symbol    string  `json:"symbol"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    int64   `json:"volume"`
	MarketCap float64 `json:"marketCap"`
	Sector    string  `json:"sector"`
	Timestamp int64   `json:"timestamp"` // unix seconds
}

// FetchQuote fetches the latest quote plus fundamentals for a symbol.
// A missing fundamentals page is not an error: the quote is returned
// without fundamentals and compliance falls through to the next tier.
func (c *Client) FetchQuote(ctx context.Context, symbol string) (contracts.MarketQuote, error) {
	body, err := c.get(ctx, "/v1/quotes/"+symbol, nil)
	if err != nil {
		return contracts.MarketQuote{}, err
	}

	var p quotePayload
	if err := json.Unmarshal(body, &p); err != nil {
		return contracts.MarketQuote{}, fmt.Errorf("%w: decode quote %s: %v", contracts.ErrProviderUnavailable, symbol, err)
	}

	q := contracts.MarketQuote{
		Symbol:     symbol,
		Open:       p.Open,
		High:       p.High,
		Low:        p.Low,
		Close:      p.Close,
		Volume:     p.Volume,
		MarketCap:  p.MarketCap,
		FetchedAt:  time.Now().UTC(),
		Provenance: contracts.ProvenanceLive,
	}
	if p.Timestamp > 0 {
		q.FetchedAt = time.Unix(p.Timestamp, 0).UTC()
	}

	f, err := c.FetchFundamentals(ctx, symbol)
	switch {
	case err == nil:
		if f.Sector == "" {
			f.Sector = p.Sector
		}
		if f.MarketCap == nil && p.MarketCap > 0 {
			mc := p.MarketCap
			f.MarketCap = &mc
		}
		q.Fundamentals = f
	case errors.Is(err, contracts.ErrNotFound):
		c.logger.WithSymbol(symbol).Debug("No fundamentals page")
	default:
		return contracts.MarketQuote{}, err
	}

	c.logger.WithFields(map[string]interface{}{
		"symbol":       symbol,
		"close":        q.Close,
		"fundamentals": q.Fundamentals != nil,
	}).Debug("Fetched quote")
	return q, nil
}
