package consensus

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wonny/aegis-signals/internal/contracts"
	"github.com/wonny/aegis-signals/pkg/logger"
	"github.com/wonny/aegis-signals/pkg/metrics"
)

const tieEpsilon = 1e-12

// Engine merges strategy outputs into one decision per instrument
// ⭐ SSOT: the only aggregation logic; live runs and backtests both call Aggregate
//
// Aggregate is a pure function of its inputs and safe for concurrent use.
type Engine struct {
	cfg      Config
	priority map[string]int
	metrics  *metrics.Recorder
	logger   *logger.Logger
	workers  int
}

// NewEngine validates cfg and builds an engine
func NewEngine(cfg Config, log *logger.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.Nop()
	}

	priority := make(map[string]int, len(cfg.Priority))
	for i, id := range cfg.Priority {
		priority[id] = i
	}

	return &Engine{
		cfg:      cfg,
		priority: priority,
		logger:   log.Module("consensus"),
		workers:  8,
	}, nil
}

// WithMetrics attaches a Prometheus recorder (AggregateAll only)
func (e *Engine) WithMetrics(rec *metrics.Recorder) *Engine {
	e.metrics = rec
	return e
}

// WithWorkers bounds AggregateAll's parallelism
func (e *Engine) WithWorkers(n int) *Engine {
	if n > 0 {
		e.workers = n
	}
	return e
}

// Config returns the engine's configuration
func (e *Engine) Config() Config {
	return e.cfg
}

// Aggregate merges the signals for one instrument.
//
// ok=false means no consensus (not an error): nothing usable, the winning
// direction has fewer than MinAgreement strategies, or the final confidence
// is below MinConfidence.
func (e *Engine) Aggregate(symbol string, signals []contracts.RawSignal, externalScore *float64) (contracts.ConsensusSignal, bool) {
	deduped := e.dedupe(symbol, signals)
	if len(deduped) == 0 {
		return contracts.ConsensusSignal{}, false
	}

	winners := e.pickDirection(deduped)
	if len(winners) < e.cfg.MinAgreement {
		return contracts.ConsensusSignal{}, false
	}

	var score *float64
	if externalScore != nil && !math.IsNaN(*externalScore) {
		s := clamp01(*externalScore)
		score = &s
	}

	confidence := e.blend(winners, score)
	if e.cfg.MinConfidence > 0 && confidence < e.cfg.MinConfidence {
		return contracts.ConsensusSignal{}, false
	}

	out := contracts.ConsensusSignal{
		Symbol:        symbol,
		Strategies:    make([]string, len(winners)),
		Confidence:    confidence,
		Direction:     winners[0].Direction,
		Agreement:     len(winners),
		ExternalScore: score,
	}

	entries := make([]float64, len(winners))
	targets := make([]float64, len(winners))
	stops := make([]float64, len(winners))
	for i, s := range winners {
		out.Strategies[i] = s.StrategyID
		entries[i] = s.Entry
		targets[i] = s.Target
		stops[i] = s.Stop
		if s.Timestamp.After(out.GeneratedAt) {
			out.GeneratedAt = s.Timestamp
		}
	}
	out.Entry = median(entries)
	out.Target = median(targets)
	out.Stop = median(stops)

	return out, true
}

// dedupe keeps one signal per strategy, sorted by priority.
// The kept signal has the highest confidence; ties go to the later timestamp, then the higher entry.
func (e *Engine) dedupe(symbol string, signals []contracts.RawSignal) []contracts.RawSignal {
	best := make(map[string]contracts.RawSignal, len(signals))
	for _, s := range signals {
		if s.Symbol != symbol || !s.Direction.Valid() || s.StrategyID == "" || math.IsNaN(s.Confidence) {
			continue
		}
		if _, known := e.priority[s.StrategyID]; e.cfg.StrictStrategies && !known {
			continue
		}
		s.Confidence = clamp01(s.Confidence)

		cur, ok := best[s.StrategyID]
		if !ok || better(s, cur) {
			best[s.StrategyID] = s
		}
	}

	out := make([]contracts.RawSignal, 0, len(best))
	for _, s := range best {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		return e.before(out[i].StrategyID, out[j].StrategyID)
	})
	return out
}

func better(a, b contracts.RawSignal) bool {
	switch {
	case a.Confidence != b.Confidence:
		return a.Confidence > b.Confidence
	case !a.Timestamp.Equal(b.Timestamp):
		return a.Timestamp.After(b.Timestamp)
	case a.Entry != b.Entry:
		return a.Entry > b.Entry
	case a.Target != b.Target:
		return a.Target > b.Target
	case a.Stop != b.Stop:
		return a.Stop > b.Stop
	case a.Direction != b.Direction:
		return a.Direction < b.Direction
	}
	return false
}

// before orders strategy ids by priority; unlisted ids follow, by id
func (e *Engine) before(a, b string) bool {
	pa, okA := e.priority[a]
	pb, okB := e.priority[b]
	switch {
	case okA && okB:
		return pa < pb
	case okA != okB:
		return okA
	default:
		return a < b
	}
}

// pickDirection returns the winning direction group in priority order.
// Higher summed confidence wins; ties go to more strategies, then to the
// group holding the highest-priority strategy.
func (e *Engine) pickDirection(signals []contracts.RawSignal) []contracts.RawSignal {
	var buys, sells []contracts.RawSignal
	var buySum, sellSum float64
	for _, s := range signals {
		if s.Direction == contracts.DirectionBuy {
			buys = append(buys, s)
			buySum += s.Confidence
		} else {
			sells = append(sells, s)
			sellSum += s.Confidence
		}
	}

	switch {
	case len(sells) == 0:
		return buys
	case len(buys) == 0:
		return sells
	case math.Abs(buySum-sellSum) > tieEpsilon:
		if buySum > sellSum {
			return buys
		}
		return sells
	case len(buys) != len(sells):
		if len(buys) > len(sells) {
			return buys
		}
		return sells
	default:
		// Both groups are priority-sorted; compare their leaders
		if e.before(buys[0].StrategyID, sells[0].StrategyID) {
			return buys
		}
		return sells
	}
}

func (e *Engine) weight(id string) float64 {
	if w, ok := e.cfg.Weights[id]; ok {
		return w
	}
	return e.cfg.DefaultWeight
}

// blend computes final = (1-α)·Σwᵢcᵢ/Σwᵢ + α·s, or Σwᵢcᵢ/Σwᵢ without a score.
// When every winner weighs zero the strategy part is the plain mean.
func (e *Engine) blend(winners []contracts.RawSignal, score *float64) float64 {
	var num, den, plain float64
	for _, s := range winners {
		w := e.weight(s.StrategyID)
		num += w * s.Confidence
		den += w
		plain += s.Confidence
	}

	part := plain / float64(len(winners))
	if den > 0 {
		part = num / den
	}
	if score == nil {
		return clamp01(part)
	}
	a := e.cfg.ExternalWeight
	return clamp01((1-a)*part + a*(*score))
}

// Input is one instrument's aggregation request
type Input struct {
	Symbol        string
	Signals       []contracts.RawSignal
	ExternalScore *float64
}

// AggregateAll aggregates many instruments in parallel.
// Results are ranked by confidence descending, then symbol ascending.
func (e *Engine) AggregateAll(ctx context.Context, inputs []Input) ([]contracts.ConsensusSignal, error) {
	start := time.Now()

	var mu sync.Mutex
	out := make([]contracts.ConsensusSignal, 0, len(inputs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for _, in := range inputs {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			sig, ok := e.Aggregate(in.Symbol, in.Signals, in.ExternalScore)
			if !ok {
				return nil
			}
			mu.Lock()
			out = append(out, sig)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	Rank(out)

	buys, sells := 0, 0
	for _, s := range out {
		if s.Direction == contracts.DirectionBuy {
			buys++
		} else {
			sells++
		}
	}
	e.metrics.RecordSignals(string(contracts.DirectionBuy), buys)
	e.metrics.RecordSignals(string(contracts.DirectionSell), sells)
	e.metrics.ObserveDuration("consensus", start)

	e.logger.WithFields(map[string]interface{}{
		"instruments": len(inputs),
		"signals":     len(out),
		"buy":         buys,
		"sell":        sells,
	}).Info("Consensus aggregation completed")

	return out, nil
}

// Rank sorts signals by confidence descending, then symbol ascending
func Rank(signals []contracts.ConsensusSignal) {
	sort.SliceStable(signals, func(i, j int) bool {
		if signals[i].Confidence != signals[j].Confidence {
			return signals[i].Confidence > signals[j].Confidence
		}
		return signals[i].Symbol < signals[j].Symbol
	})
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
