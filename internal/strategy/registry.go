package strategy

import (
	"fmt"
	"sort"
	"sync"

	"github.com/wonny/aegis-signals/internal/contracts"
	"github.com/wonny/aegis-signals/pkg/logger"
)

// Factory builds a strategy from its YAML params
type Factory func(Params) contracts.StrategyAdapter

var builtins = map[string]Factory{
	"momentum":       NewMomentum,
	"breakout":       NewBreakout,
	"mean_reversion": NewMeanReversion,
}

// Builtin returns the factory for a built-in strategy id
func Builtin(id string) (Factory, bool) {
	f, ok := builtins[id]
	return f, ok
}

// BuiltinIDs lists the built-in strategy ids in ascending order
func BuiltinIDs() []string {
	ids := make([]string, 0, len(builtins))
	for id := range builtins {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Registry holds the active strategy set.
// ⭐ SSOT: registration order is the priority order used for consensus tie-breaks
type Registry struct {
	mu       sync.RWMutex
	adapters []contracts.StrategyAdapter
	index    map[string]int
	logger   *logger.Logger
}

// NewRegistry creates an empty registry
func NewRegistry(log *logger.Logger) *Registry {
	if log == nil {
		log = logger.Nop()
	}
	return &Registry{
		index:  make(map[string]int),
		logger: log.Module("strategy"),
	}
}

// Register appends a strategy; ids must be unique
func (r *Registry) Register(a contracts.StrategyAdapter) error {
	if a == nil || a.ID() == "" {
		return fmt.Errorf("strategy must have a non-empty id")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, dup := r.index[a.ID()]; dup {
		return fmt.Errorf("strategy %q already registered", a.ID())
	}
	r.index[a.ID()] = len(r.adapters)
	r.adapters = append(r.adapters, a)
	return nil
}

// Get returns a registered strategy
func (r *Registry) Get(id string) (contracts.StrategyAdapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.index[id]
	if !ok {
		return nil, false
	}
	return r.adapters[i], true
}

// Adapters returns the strategies in priority order
func (r *Registry) Adapters() []contracts.StrategyAdapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]contracts.StrategyAdapter, len(r.adapters))
	copy(out, r.adapters)
	return out
}

// IDs returns strategy ids in priority order
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.adapters))
	for i, a := range r.adapters {
		out[i] = a.ID()
	}
	return out
}

// Len returns the number of registered strategies
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.adapters)
}

// Evaluate runs every strategy against one instrument.
// A strategy that panics is logged and skipped; the others still run.
func (r *Registry) Evaluate(inst contracts.Instrument, quote contracts.MarketQuote, history []contracts.Bar) []contracts.RawSignal {
	var out []contracts.RawSignal
	for _, a := range r.Adapters() {
		out = append(out, r.evaluateOne(a, inst, quote, history)...)
	}
	return out
}

func (r *Registry) evaluateOne(a contracts.StrategyAdapter, inst contracts.Instrument, quote contracts.MarketQuote, history []contracts.Bar) (signals []contracts.RawSignal) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.WithFields(map[string]interface{}{
				"strategy": a.ID(),
				"symbol":   inst.Symbol,
				"panic":    fmt.Sprint(rec),
			}).Error("Strategy panicked")
			signals = nil
		}
	}()

	for _, s := range a.Evaluate(inst, quote, history) {
		if s.Symbol != inst.Symbol || s.StrategyID != a.ID() || !s.Direction.Valid() {
			r.logger.WithFields(map[string]interface{}{
				"strategy": a.ID(),
				"symbol":   inst.Symbol,
			}).Warn("Dropping malformed strategy signal")
			continue
		}
		signals = append(signals, s)
	}
	return signals
}
