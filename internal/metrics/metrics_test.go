package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveVerdict("approved", "pipeline", time.Millisecond)
		m.CacheLookup(true)
		m.ClassifierCall("openai", "success")
		m.EscalationFailure("audit_log")
		m.TrackActive()()
	})
}

func TestMetricsRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveVerdict("rejected", "pipeline", 20*time.Millisecond)
	m.CacheLookup(false)
	m.ClassifierCall("perspective", "timeout")
	done := m.TrackActive()
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ActiveRequests))
	done()

	assert.Equal(t, float64(1), testutil.ToFloat64(m.Verdicts.WithLabelValues("rejected", "pipeline")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.CacheLookups.WithLabelValues("miss")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ClassifierCalls.WithLabelValues("perspective", "timeout")))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.ActiveRequests))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "moderation_duration_seconds")
	assert.Contains(t, names, "moderation_verdicts_total")
}

func TestNewWithoutRegistry(t *testing.T) {
	assert.NotPanics(t, func() {
		New(nil).CacheLookup(true)
	})
}
