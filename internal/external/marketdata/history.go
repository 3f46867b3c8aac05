package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/wonny/aegis-signals/internal/contracts"
)

// FetchHistory fetches daily bars for [from, to].
//
// The endpoint answers with a header row followed by
// ["YYYYMMDD", open, high, low, close, volume] rows; numbers may be strings.
func (c *Client) FetchHistory(ctx context.Context, symbol string, from, to time.Time) ([]contracts.Bar, error) {
	params := url.Values{}
	params.Set("from", from.Format("20060102"))
	params.Set("to", to.Format("20060102"))

	body, err := c.get(ctx, "/v1/history/"+symbol, params)
	if err != nil {
		return nil, err
	}

	var rows [][]interface{}
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("%w: decode history %s: %v", contracts.ErrProviderUnavailable, symbol, err)
	}

	bars := parseBarRows(rows)
	c.logger.WithFields(map[string]interface{}{
		"symbol": symbol,
		"count":  len(bars),
	}).Debug("Fetched history")
	return bars, nil
}

// parseBarRows skips the header and malformed rows and sorts ascending
func parseBarRows(rows [][]interface{}) []contracts.Bar {
	var bars []contracts.Bar
	for i, row := range rows {
		if i == 0 || len(row) < 6 {
			continue // header
		}

		dateStr, ok := row[0].(string)
		if !ok {
			continue
		}
		date, err := time.Parse("20060102", strings.Trim(dateStr, "\" "))
		if err != nil {
			continue
		}

		bars = append(bars, contracts.Bar{
			Date:   date,
			Open:   toFloat(row[1]),
			High:   toFloat(row[2]),
			Low:    toFloat(row[3]),
			Close:  toFloat(row[4]),
			Volume: int64(toFloat(row[5])),
		})
	}

	sort.Slice(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })
	return bars
}

// toFloat converts JSON numbers and numeric strings
func toFloat(v interface{}) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case string:
		f, _ := strconv.ParseFloat(strings.ReplaceAll(val, ",", ""), 64)
		return f
	default:
		return 0
	}
}
