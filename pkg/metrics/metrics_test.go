package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_Counters(t *testing.T) {
	r := New()

	r.RecordFetch("fresh")
	r.RecordFetch("fresh")
	r.RecordFetch("cached")
	r.RecordCompliance("provider", "COMPLIANT")
	r.RecordSignals("BUY", 3)
	r.RecordSignals("SELL", 0)
	r.RecordPublish("kafka", nil)
	r.RecordPublish("kafka", errors.New("boom"))
	r.SetBreakerState("marketdata", BreakerOpen)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.fetchTotal.WithLabelValues("fresh")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.fetchTotal.WithLabelValues("cached")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.complianceTotal.WithLabelValues("provider", "COMPLIANT")))
	assert.Equal(t, 3.0, testutil.ToFloat64(r.signalsTotal.WithLabelValues("BUY")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.sinkTotal.WithLabelValues("kafka", "error")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.breakerState.WithLabelValues("marketdata")))
}

func TestRecorder_IndependentRegistries(t *testing.T) {
	a, b := New(), New()
	a.RecordFetch("failed")

	assert.Equal(t, 1.0, testutil.ToFloat64(a.fetchTotal.WithLabelValues("failed")))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.fetchTotal.WithLabelValues("failed")))
}

func TestRecorder_NilIsNoop(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		r.RecordFetch("fresh")
		r.SetBreakerState("x", BreakerClosed)
		r.RecordCompliance("default", "UNKNOWN")
		r.RecordSignals("BUY", 1)
		r.RecordPublish("memory", nil)
		r.ObserveDuration("aggregate", time.Now())
	})
}

func TestRecorder_Handler(t *testing.T) {
	r := New()
	r.ObserveDuration("aggregate", time.Now().Add(-10*time.Millisecond))

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "quant_operation_duration_seconds"))
}
