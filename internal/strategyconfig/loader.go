package strategyconfig

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"

	"github.com/creasty/defaults"
	"gopkg.in/yaml.v3"

	"github.com/wonny/aegis-signals/internal/strategy"
)

// Load reads a YAML file and returns the Config with its raw bytes.
// Unknown fields fail immediately so typos never run silently.
func Load(path string) (*Config, []byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, data, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, data, nil
}

// Parse decodes, applies defaults and validates
func Parse(data []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, err
	}

	if err := defaults.Set(&cfg); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns every built-in strategy with default parameters
func Default() *Config {
	cfg := &Config{}
	for _, id := range strategy.BuiltinIDs() {
		cfg.Strategies = append(cfg.Strategies, Strategy{ID: id})
	}
	_ = defaults.Set(cfg)
	cfg.Consensus.ExternalWeight = 0.2
	return cfg
}

// Hash generates a SHA-256 hash of the Config (canonical JSON).
// Struct fields marshal in declaration order and map keys sorted, so equal configs hash equal.
func Hash(cfg *Config) (string, error) {
	jsonBytes, err := json.Marshal(cfg)
	if err != nil {
		return "", err
	}

	sum := sha256.Sum256(jsonBytes)
	return hex.EncodeToString(sum[:]), nil
}
