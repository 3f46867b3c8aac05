package sink

import (
	"context"
	"errors"
	"fmt"

	"github.com/wonny/aegis-signals/internal/contracts"
	"github.com/wonny/aegis-signals/pkg/logger"
	"github.com/wonny/aegis-signals/pkg/metrics"
)

// Named pairs a sink with the label used in logs and metrics
type Named struct {
	Name string
	Sink contracts.SignalSink
}

// Fanout publishes to every sink in order. A failing sink does not stop the rest.
type Fanout struct {
	sinks   []Named
	metrics *metrics.Recorder
	logger  *logger.Logger
}

// NewFanout creates a fan-out sink
func NewFanout(log *logger.Logger, sinks ...Named) *Fanout {
	if log == nil {
		log = logger.Nop()
	}
	return &Fanout{sinks: sinks, logger: log.Module("sink")}
}

// WithMetrics attaches a recorder
func (f *Fanout) WithMetrics(rec *metrics.Recorder) *Fanout {
	f.metrics = rec
	return f
}

// Add appends a sink
func (f *Fanout) Add(name string, s contracts.SignalSink) {
	f.sinks = append(f.sinks, Named{Name: name, Sink: s})
}

// Names lists the configured sinks
func (f *Fanout) Names() []string {
	out := make([]string, len(f.sinks))
	for i, s := range f.sinks {
		out[i] = s.Name
	}
	return out
}

// Publish implements contracts.SignalSink. The returned error joins every sink failure.
func (f *Fanout) Publish(ctx context.Context, signals []contracts.ConsensusSignal) error {
	var errs []error
	for _, s := range f.sinks {
		err := s.Sink.Publish(ctx, signals)
		f.metrics.RecordPublish(s.Name, err)
		if err != nil {
			f.logger.WithError(err).WithField("sink", s.Name).Warn("Publish failed")
			errs = append(errs, fmt.Errorf("%s: %w", s.Name, err))
			continue
		}
		f.logger.WithFields(map[string]interface{}{
			"sink":    s.Name,
			"signals": len(signals),
		}).Debug("Published signals")
	}
	return errors.Join(errs...)
}
