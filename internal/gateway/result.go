package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/wonny/aegis-signals/internal/contracts"
)

// FailureKind classifies a per-instrument failure
type FailureKind string

const (
	FailureNone        FailureKind = ""
	FailureNotFound    FailureKind = "not_found"
	FailureRateLimited FailureKind = "rate_limited"
	FailureTimeout     FailureKind = "timeout"
	FailureUnavailable FailureKind = "unavailable"
	FailureBreakerOpen FailureKind = "breaker_open"
	FailureCancelled   FailureKind = "cancelled"
)

func classify(err error) FailureKind {
	switch {
	case err == nil:
		return FailureNone
	case errors.Is(err, ErrBreakerOpen):
		return FailureBreakerOpen
	case errors.Is(err, contracts.ErrNotFound):
		return FailureNotFound
	case errors.Is(err, contracts.ErrRateLimited):
		return FailureRateLimited
	case errors.Is(err, contracts.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return FailureTimeout
	case errors.Is(err, context.Canceled):
		return FailureCancelled
	default:
		return FailureUnavailable
	}
}

// Result is the outcome for one instrument: a quote or a typed failure
type Result struct {
	Symbol   string                 `json:"symbol"`
	Quote    *contracts.MarketQuote `json:"quote,omitempty"`
	Failure  FailureKind            `json:"failure,omitempty"`
	Err      error                  `json:"-"`
	Attempts int                    `json:"attempts"`
}

// OK reports whether a quote (live or cached) is available
func (r Result) OK() bool {
	return r.Quote != nil
}

// Cached reports whether the quote was served from cache
func (r Result) Cached() bool {
	return r.Quote != nil && r.Quote.Provenance == contracts.ProvenanceCached
}

// BatchStats summarizes one FetchBatch run
type BatchStats struct {
	Batches     int           `json:"batches"`
	Success     int           `json:"success"`
	Cached      int           `json:"cached"`
	Failed      int           `json:"failed"`
	RateLimited int           `json:"rate_limited"`
	Elapsed     time.Duration `json:"elapsed"`
}

// BatchResult is the outcome of FetchBatch.
// Degraded is set when any instrument failed or was served from cache.
type BatchResult struct {
	Results   map[string]Result `json:"results"`
	Degraded  bool              `json:"degraded"`
	Cancelled bool              `json:"cancelled"`
	Stats     BatchStats        `json:"stats"`
}

// Quotes returns every available quote keyed by symbol
func (b *BatchResult) Quotes() map[string]contracts.MarketQuote {
	out := make(map[string]contracts.MarketQuote, len(b.Results))
	for sym, r := range b.Results {
		if r.Quote != nil {
			out[sym] = *r.Quote
		}
	}
	return out
}
