package contracts

import "time"

// ComplianceStatus is the eligibility verdict for an instrument
type ComplianceStatus string

const (
	StatusCompliant    ComplianceStatus = "COMPLIANT"
	StatusNonCompliant ComplianceStatus = "NON_COMPLIANT"
	StatusUnknown      ComplianceStatus = "UNKNOWN"
	StatusError        ComplianceStatus = "ERROR"
)

// Valid reports whether s is a known status
func (s ComplianceStatus) Valid() bool {
	switch s {
	case StatusCompliant, StatusNonCompliant, StatusUnknown, StatusError:
		return true
	}
	return false
}

// ComplianceConfidence grades how trustworthy a determination is
type ComplianceConfidence string

const (
	ConfidenceHigh    ComplianceConfidence = "HIGH"
	ConfidenceMedium  ComplianceConfidence = "MEDIUM"
	ConfidenceLow     ComplianceConfidence = "LOW"
	ConfidenceUnknown ComplianceConfidence = "UNKNOWN"
	ConfidenceError   ComplianceConfidence = "ERROR"
)

// TierKind names the fallback tier that produced a record
type TierKind string

const (
	TierProvider           TierKind = "provider"
	TierCachedFundamentals TierKind = "cached_fundamentals"
	TierHeuristic          TierKind = "heuristic"
	TierOverride           TierKind = "override"
	TierDefault            TierKind = "default"
)

// ComplianceRecord is the resolved eligibility of one instrument
// ⭐ SSOT: written only by the compliance resolver
//
// A record is never NON_COMPLIANT because data was missing; absence of
// data resolves to UNKNOWN with ReviewRequired set.
type ComplianceRecord struct {
	Symbol         string               `json:"symbol"`
	Status         ComplianceStatus     `json:"status"`
	Confidence     ComplianceConfidence `json:"confidence"`
	ResolvedBy     TierKind             `json:"resolved_by"`
	ResolvedAt     time.Time            `json:"resolved_at"`
	ExpiresAt      time.Time            `json:"expires_at"`
	ReviewRequired bool                 `json:"review_required"`
	Notes          []string             `json:"notes,omitempty"`
}

// Expired reports whether the record is past its expiry at now
func (r ComplianceRecord) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// Eligible reports whether the instrument may enter the signal universe
func (r ComplianceRecord) Eligible() bool {
	return r.Status == StatusCompliant
}
