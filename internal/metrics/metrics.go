package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the moderation collectors. A nil *Metrics is valid and records
// nothing, which keeps tests and tools free of registry setup.
type Metrics struct {
	Verdicts           *prometheus.CounterVec
	CacheLookups       *prometheus.CounterVec
	ClassifierCalls    *prometheus.CounterVec
	EscalationFailures *prometheus.CounterVec
	Duration           prometheus.Histogram
	ActiveRequests     prometheus.Gauge
}

// New creates the collectors and registers them on reg when reg is non-nil.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Verdicts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "moderation_verdicts_total",
				Help: "Moderation verdicts by status",
			},
			[]string{"status", "source"},
		),
		CacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "moderation_cache_lookups_total",
				Help: "Result cache lookups by outcome",
			},
			[]string{"result"},
		),
		ClassifierCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "moderation_classifier_calls_total",
				Help: "External classifier calls by provider and outcome",
			},
			[]string{"provider", "outcome"},
		),
		EscalationFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "moderation_escalation_failures_total",
				Help: "Failed audit log, review queue and notification writes",
			},
			[]string{"write"},
		),
		Duration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "moderation_duration_seconds",
				Help:    "Time spent producing a moderation verdict",
				Buckets: prometheus.DefBuckets,
			},
		),
		ActiveRequests: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "moderation_active_requests",
				Help: "Number of moderation requests in flight",
			},
		),
	}
	if reg != nil {
		reg.MustRegister(m.Verdicts, m.CacheLookups, m.ClassifierCalls, m.EscalationFailures, m.Duration, m.ActiveRequests)
	}
	return m
}

func (m *Metrics) ObserveVerdict(status, source string, took time.Duration) {
	if m == nil {
		return
	}
	m.Verdicts.WithLabelValues(status, source).Inc()
	m.Duration.Observe(took.Seconds())
}

func (m *Metrics) CacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) ClassifierCall(provider, outcome string) {
	if m == nil {
		return
	}
	m.ClassifierCalls.WithLabelValues(provider, outcome).Inc()
}

func (m *Metrics) EscalationFailure(write string) {
	if m == nil {
		return
	}
	m.EscalationFailures.WithLabelValues(write).Inc()
}

// TrackActive increments the in-flight gauge and returns the matching decrement.
func (m *Metrics) TrackActive() func() {
	if m == nil {
		return func() {}
	}
	m.ActiveRequests.Inc()
	return m.ActiveRequests.Dec
}
