package compliance

import (
	"context"
	"fmt"

	"github.com/wonny/aegis-signals/internal/contracts"
)

// TierInput is what every tier sees for one instrument
type TierInput struct {
	Instrument contracts.Instrument
	// Fresh is the quote returned by the gateway for this run, if any.
	// Quotes served from the gateway cache carry ProvenanceCached.
	Fresh *contracts.MarketQuote
	// FetchFailure describes why no live quote is available
	FetchFailure string
}

// Determination is a tier's verdict
type Determination struct {
	Status     contracts.ComplianceStatus
	Confidence contracts.ComplianceConfidence
	Review     bool
}

// TierFunc returns a determination, or ok=false to fall through.
// Notes are collected for the final record either way.
type TierFunc func(ctx context.Context, in TierInput) (d Determination, notes []string, ok bool)

// FallbackTier is one step of the resolution chain
type FallbackTier struct {
	Kind contracts.TierKind
	Fn   TierFunc
}

// DefaultChain builds the standard five-tier chain.
// The order is fixed: provider, cached fundamentals, heuristic, override, default.
func (r *Resolver) DefaultChain() []FallbackTier {
	return []FallbackTier{
		{Kind: contracts.TierProvider, Fn: r.providerTier},
		{Kind: contracts.TierCachedFundamentals, Fn: r.cachedFundamentalsTier},
		{Kind: contracts.TierHeuristic, Fn: r.heuristicTier},
		{Kind: contracts.TierOverride, Fn: r.overrideTier},
		{Kind: contracts.TierDefault, Fn: defaultTier},
	}
}

func (r *Resolver) providerTier(_ context.Context, in TierInput) (Determination, []string, bool) {
	q := in.Fresh
	if q == nil || q.Provenance != contracts.ProvenanceLive {
		reason := in.FetchFailure
		if reason == "" {
			reason = "no live quote"
		}
		return Determination{}, []string{"provider: " + reason}, false
	}
	if q.Fundamentals == nil {
		return Determination{}, []string{"provider: quote carried no fundamentals"}, false
	}

	status, notes, ok := r.rules.Classify(q.Fundamentals, q.MarketCap)
	if !ok {
		return Determination{}, prefix("provider", notes), false
	}
	return Determination{Status: status, Confidence: contracts.ConfidenceHigh}, notes, true
}

func (r *Resolver) cachedFundamentalsTier(ctx context.Context, in TierInput) (Determination, []string, bool) {
	var q *contracts.MarketQuote
	if in.Fresh != nil && in.Fresh.Provenance == contracts.ProvenanceCached && in.Fresh.Fundamentals != nil {
		q = in.Fresh
	} else if r.quotes != nil {
		if last, ok := r.quotes.LastKnownQuote(ctx, in.Instrument.Symbol); ok && last.Fundamentals != nil {
			q = &last
		}
	}
	if q == nil {
		return Determination{}, []string{"cached fundamentals: none available"}, false
	}

	status, notes, ok := r.rules.Classify(q.Fundamentals, q.MarketCap)
	if !ok {
		return Determination{}, prefix("cached fundamentals", notes), false
	}
	asOf := q.Fundamentals.AsOf
	if asOf.IsZero() {
		asOf = q.FetchedAt
	}
	notes = append(notes, fmt.Sprintf("fundamentals as of %s", asOf.Format("2006-01-02")))
	return Determination{Status: status, Confidence: contracts.ConfidenceMedium}, notes, true
}

func (r *Resolver) heuristicTier(_ context.Context, in TierInput) (Determination, []string, bool) {
	compliant, notes := r.heuristics.Classify(in.Instrument)
	if !compliant {
		return Determination{}, notes, false
	}
	return Determination{Status: contracts.StatusCompliant, Confidence: contracts.ConfidenceLow}, notes, true
}

func (r *Resolver) overrideTier(_ context.Context, in TierInput) (Determination, []string, bool) {
	o, ok := r.overrides.Lookup(in.Instrument.Symbol)
	if !ok {
		return Determination{}, nil, false
	}
	var notes []string
	if o.Note != "" {
		notes = append(notes, "override: "+o.Note)
	}
	return Determination{Status: o.Status, Confidence: contracts.ConfidenceHigh}, notes, true
}

func defaultTier(context.Context, TierInput) (Determination, []string, bool) {
	return Determination{
		Status:     contracts.StatusUnknown,
		Confidence: contracts.ConfidenceUnknown,
		Review:     true,
	}, []string{"no tier reached a determination"}, true
}

func prefix(p string, notes []string) []string {
	out := make([]string, len(notes))
	for i, n := range notes {
		out[i] = p + ": " + n
	}
	return out
}
