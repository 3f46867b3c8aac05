package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/wonny/aegis-signals/internal/contracts"
	"github.com/wonny/aegis-signals/pkg/clock"
)

// UniverseSource supplies the instrument set for a run
type UniverseSource interface {
	Universe(ctx context.Context) (contracts.Universe, error)
}

// FileUniverse reads the instrument list from YAML on every call,
// so edits apply on the next scheduled run.
type FileUniverse struct {
	Path  string
	Clock clock.Clock
}

type universeFile struct {
	Instruments []contracts.Instrument `yaml:"instruments"`
}

// Universe implements UniverseSource
func (f FileUniverse) Universe(_ context.Context) (contracts.Universe, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return contracts.Universe{}, fmt.Errorf("read universe: %w", err)
	}
	instruments, err := ParseUniverse(data)
	if err != nil {
		return contracts.Universe{}, fmt.Errorf("%s: %w", f.Path, err)
	}

	clk := f.Clock
	if clk == nil {
		clk = clock.Real{}
	}
	return contracts.Universe{Date: clk.Now(), Instruments: instruments}, nil
}

// ParseUniverse decodes an instrument list and rejects blank or duplicate symbols
func ParseUniverse(data []byte) ([]contracts.Instrument, error) {
	var file universeFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("decode universe: %w", err)
	}

	seen := make(map[string]struct{}, len(file.Instruments))
	for i := range file.Instruments {
		inst := &file.Instruments[i]
		inst.Symbol = strings.ToUpper(strings.TrimSpace(inst.Symbol))
		if inst.Symbol == "" {
			return nil, fmt.Errorf("instruments[%d]: symbol is required", i)
		}
		if _, dup := seen[inst.Symbol]; dup {
			return nil, fmt.Errorf("instruments[%d]: duplicate symbol %s", i, inst.Symbol)
		}
		seen[inst.Symbol] = struct{}{}
	}
	return file.Instruments, nil
}

// StaticUniverse serves a fixed instrument list
type StaticUniverse contracts.Universe

// Universe implements UniverseSource
func (s StaticUniverse) Universe(context.Context) (contracts.Universe, error) {
	return contracts.Universe(s), nil
}
