package marketdata

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/wonny/aegis-signals/internal/contracts"
)

// FetchFundamentals scrapes the company financials page.
//
// The page carries one row per field:
//
//	<table id="fundamentals">
//	  <tr data-field="total_debt"><th>Total debt</th><td>1,234.5</td></tr>
//	</table>
//
// Unknown rows are ignored; unparsable or "-" cells leave the field nil.
func (c *Client) FetchFundamentals(ctx context.Context, symbol string) (*contracts.Fundamentals, error) {
	body, err := c.get(ctx, "/company/"+symbol+"/financials", nil)
	if err != nil {
		return nil, err
	}

	f, err := parseFundamentalsHTML(body)
	if err != nil {
		return nil, fmt.Errorf("%w: parse fundamentals %s: %v", contracts.ErrProviderUnavailable, symbol, err)
	}
	return f, nil
}

func parseFundamentalsHTML(body []byte) (*contracts.Fundamentals, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	f := &contracts.Fundamentals{AsOf: time.Now().UTC()}
	if asOf, ok := doc.Find("#fundamentals").Attr("data-as-of"); ok {
		if t, err := time.Parse("2006-01-02", asOf); err == nil {
			f.AsOf = t
		}
	}

	doc.Find("#fundamentals tr[data-field]").Each(func(_ int, row *goquery.Selection) {
		field, _ := row.Attr("data-field")
		text := strings.TrimSpace(row.Find("td").First().Text())

		if field == "sector" {
			f.Sector = text
			return
		}

		v, ok := parseNumber(text)
		if !ok {
			return
		}
		switch field {
		case "market_cap":
			f.MarketCap = &v
		case "total_debt":
			f.TotalDebt = &v
		case "cash_and_securities":
			f.CashAndSecurities = &v
		case "receivables":
			f.Receivables = &v
		case "non_permissible_revenue_pct":
			ratio := v / 100
			f.NonPermissibleRevenueRatio = &ratio
		}
	})

	return f, nil
}

// parseNumber parses "1,234.5", "12.5%" or "(300)" (negative)
func parseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" || s == "-" || strings.EqualFold(s, "n/a") {
		return 0, false
	}

	neg := strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")")
	s = strings.Trim(s, "()")
	s = strings.TrimSuffix(s, "%")
	s = strings.ReplaceAll(s, ",", "")

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	if neg {
		v = -v
	}
	return v, true
}
