package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_Counters(t *testing.T) {
	r := New()
	r.ObserveReasoning("validation", "ok", 1500*time.Millisecond)
	r.ObserveReasoning("validation", "unavailable", time.Second)
	r.Fallback("insights")
	r.Correction("applied", 2)
	r.Correction("skipped", 0)
	r.Stale("validation")

	assert.Equal(t, 1.0, testutil.ToFloat64(r.ReasoningRequests.WithLabelValues("validation", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.NormalizerFallbacks.WithLabelValues("insights")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.Corrections.WithLabelValues("applied")))
	assert.Equal(t, 0.0, testutil.ToFloat64(r.Corrections.WithLabelValues("skipped")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.StaleResults.WithLabelValues("validation")))
}

func TestRegistry_NilSafe(t *testing.T) {
	var r *Registry
	assert.NotPanics(t, func() {
		r.ObserveReasoning("insights", "ok", time.Second)
		r.Fallback("validation")
		r.Correction("applied", 1)
		r.Stale("insights")
	})
}

func TestRegistry_Handler(t *testing.T) {
	r := New()
	r.Fallback("validation")

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `groundwater_normalizer_fallbacks_total{schema="validation"} 1`)
}
