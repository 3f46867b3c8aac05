package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder records pipeline metrics on its own registry.
// ⭐ SSOT: metric names are declared here only
//
// A nil *Recorder is valid and records nothing.
type Recorder struct {
	registry *prometheus.Registry

	fetchTotal      *prometheus.CounterVec
	breakerState    *prometheus.GaugeVec
	complianceTotal *prometheus.CounterVec
	signalsTotal    *prometheus.CounterVec
	sinkTotal       *prometheus.CounterVec
	latency         *prometheus.HistogramVec
}

// Breaker state gauge values
const (
	BreakerClosed   = 0
	BreakerHalfOpen = 1
	BreakerOpen     = 2
)

// New creates a recorder with Go runtime and process collectors attached.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		fetchTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quant_gateway_fetch_total",
				Help: "Gateway fetch outcomes per instrument",
			},
			[]string{"outcome"},
		),
		breakerState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "quant_gateway_breaker_state",
				Help: "Circuit breaker state (0 closed, 1 half-open, 2 open)",
			},
			[]string{"provider"},
		),
		complianceTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quant_compliance_resolved_total",
				Help: "Compliance records produced by tier and status",
			},
			[]string{"tier", "status"},
		),
		signalsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quant_consensus_signals_total",
				Help: "Consensus signals emitted by direction",
			},
			[]string{"direction"},
		),
		sinkTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quant_sink_publish_total",
				Help: "Signal sink publish outcomes",
			},
			[]string{"sink", "outcome"},
		),
		latency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "quant_operation_duration_seconds",
				Help:    "Duration of pipeline operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// Registry exposes the underlying registry (tests, extra collectors).
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// RecordFetch counts one gateway outcome (fresh, cached, failed, rate_limited, cancelled).
func (r *Recorder) RecordFetch(outcome string) {
	if r == nil {
		return
	}
	r.fetchTotal.WithLabelValues(outcome).Inc()
}

// SetBreakerState publishes the breaker state for a provider.
func (r *Recorder) SetBreakerState(provider string, state int) {
	if r == nil {
		return
	}
	r.breakerState.WithLabelValues(provider).Set(float64(state))
}

// RecordCompliance counts a resolved compliance record.
func (r *Recorder) RecordCompliance(tier, status string) {
	if r == nil {
		return
	}
	r.complianceTotal.WithLabelValues(tier, status).Inc()
}

// RecordSignals counts emitted consensus signals.
func (r *Recorder) RecordSignals(direction string, n int) {
	if r == nil || n <= 0 {
		return
	}
	r.signalsTotal.WithLabelValues(direction).Add(float64(n))
}

// RecordPublish counts a sink publish outcome.
func (r *Recorder) RecordPublish(sink string, err error) {
	if r == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	r.sinkTotal.WithLabelValues(sink, outcome).Inc()
}

// ObserveDuration records how long op took since start.
func (r *Recorder) ObserveDuration(op string, start time.Time) {
	if r == nil {
		return
	}
	r.latency.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
