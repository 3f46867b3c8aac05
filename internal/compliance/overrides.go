package compliance

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/wonny/aegis-signals/internal/contracts"
)

// Override is one curated determination
type Override struct {
	Symbol string                     `yaml:"symbol"`
	Status contracts.ComplianceStatus `yaml:"status"`
	Note   string                     `yaml:"note"`
}

// OverrideTable is the manually curated list of known instruments
type OverrideTable struct {
	entries map[string]Override
}

type overrideFile struct {
	Overrides []Override `yaml:"overrides"`
}

// NewOverrideTable builds a table from entries (later duplicates win)
func NewOverrideTable(entries ...Override) (*OverrideTable, error) {
	t := &OverrideTable{entries: make(map[string]Override, len(entries))}
	for _, e := range entries {
		e.Symbol = strings.TrimSpace(e.Symbol)
		if e.Symbol == "" {
			return nil, fmt.Errorf("override without symbol")
		}
		if e.Status != contracts.StatusCompliant && e.Status != contracts.StatusNonCompliant {
			return nil, fmt.Errorf("override %s: status must be COMPLIANT or NON_COMPLIANT, got %q", e.Symbol, e.Status)
		}
		t.entries[e.Symbol] = e
	}
	return t, nil
}

// LoadOverrides reads the YAML override file. An empty path yields an empty table.
//
//	overrides:
//	  - symbol: ABC
//	    status: COMPLIANT
//	    note: reviewed 2024-Q1
func LoadOverrides(path string) (*OverrideTable, error) {
	if path == "" {
		return NewOverrideTable()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read overrides: %w", err)
	}

	var f overrideFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("parse overrides: %w", err)
	}
	return NewOverrideTable(f.Overrides...)
}

// Lookup returns the override for a symbol
func (t *OverrideTable) Lookup(symbol string) (Override, bool) {
	if t == nil {
		return Override{}, false
	}
	o, ok := t.entries[symbol]
	return o, ok
}

// Len returns the number of entries
func (t *OverrideTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.entries)
}
