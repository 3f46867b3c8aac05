package compliance

import (
	"regexp"
	"strings"

	"github.com/wonny/aegis-signals/internal/contracts"
)

// Name patterns hinting at an excluded business line. They only ever add a note.
var excludedNamePattern = regexp.MustCompile(`(?i)\b(bank|bancorp|bancshares|insurance|assurance|brew(ing|ery|ers)?|distill(ers|ery)|winery|spirits|tobacco|cigar|casino|gaming|lottery|betting|defen[cs]e|arms|lending|mortgage)\b`)

// Name patterns for business lines that are permissible on their face.
var permissibleNamePattern = regexp.MustCompile(`(?i)\b(software|semiconductors?|micro(systems)?|pharma(ceuticals)?|therapeutics|biotech|medical|solar|renewables?|logistics|telecom|networks|robotics|foods?)\b`)

// Heuristics infers eligibility from instrument metadata when no data is available
type Heuristics struct {
	PermissibleSectors []string
}

// DefaultHeuristics returns the standard permissible sector list
func DefaultHeuristics() Heuristics {
	return Heuristics{
		PermissibleSectors: []string{
			"Technology",
			"Healthcare",
			"Industrials",
			"Utilities",
			"Consumer Staples",
			"Communication Services",
			"Materials",
			"Energy",
		},
	}
}

// Classify returns COMPLIANT when metadata makes it likely, never NON_COMPLIANT.
// A name that suggests an excluded sector is reported as a note.
func (h Heuristics) Classify(inst contracts.Instrument) (bool, []string) {
	if m := excludedNamePattern.FindString(inst.Name); m != "" {
		return false, []string{"name suggests excluded business line: " + strings.ToLower(m)}
	}

	for _, s := range h.PermissibleSectors {
		if inst.Sector != "" && strings.EqualFold(inst.Sector, s) {
			return true, []string{"sector metadata: " + inst.Sector}
		}
	}
	if m := permissibleNamePattern.FindString(inst.Name); m != "" {
		return true, []string{"name suggests permissible business line: " + strings.ToLower(m)}
	}
	return false, nil
}
