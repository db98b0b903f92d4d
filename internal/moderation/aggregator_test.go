package moderation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/tullo/guardian/internal/metrics"
)

func pattern(score int, flags ...Flag) PatternResult {
	return PatternResult{RawScore: score, Flags: flags}
}

func TestAggregateWithoutClassifiers(t *testing.T) {
	a := NewAggregator(nil, 0, 0, nil, nil)
	got := a.Aggregate(context.Background(), "x", pattern(24, Flag{CategoryBullying, SeverityLow}))

	assert.Equal(t, 24, got.Score)
	assert.Equal(t, []string{"bullying_low"}, got.Flags)
	assert.InDelta(t, 0.8, got.Confidence, 1e-9)
	assert.Zero(t, got.Failed)
}

func TestAggregateBlendsWeightedSignals(t *testing.T) {
	openai := &fakeClassifier{name: "openai", sig: Signal{Score: 40, Flags: []string{"bullying"}, Confidence: 0.9}}
	perspective := &fakeClassifier{name: "perspective", sig: Signal{Score: 20, Flags: []string{"perspective_toxicity"}, Confidence: 0.85}}
	a := NewAggregator([]WeightedClassifier{
		{Classifier: openai, Weight: 0.4},
		{Classifier: perspective, Weight: 0.3},
	}, time.Second, 0.8, nil, nil)

	got := a.Aggregate(context.Background(), "x", pattern(10, Flag{CategoryBullying, SeverityLow}))

	assert.Equal(t, 10+16+6, got.Score)
	assert.Equal(t, []string{"bullying_low", "openai_bullying", "perspective_toxicity"}, got.Flags)
	assert.InDelta(t, (0.8+0.9+0.85)/3, got.Confidence, 1e-9)
}

func TestAggregateDegradesFailures(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	tests := []struct {
		name    string
		c       *fakeClassifier
		outcome string
	}{
		{"error", &fakeClassifier{name: "openai", err: errors.New("503")}, "failure"},
		{"panic", &fakeClassifier{name: "openai", panics: true}, "failure"},
		{"timeout ignoring context", &fakeClassifier{name: "slow", delay: 2 * time.Second, ignoreCtx: true}, "timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewAggregator([]WeightedClassifier{{Classifier: tt.c, Weight: 1}}, 50*time.Millisecond, 0.8, nil, m)

			start := time.Now()
			got := a.Aggregate(context.Background(), "x", pattern(12, Flag{CategoryBullying, SeverityLow}))

			assert.Less(t, time.Since(start), time.Second)
			assert.Equal(t, 12, got.Score)
			assert.Equal(t, 1, got.Failed)
			assert.InDelta(t, 0.4, got.Confidence, 1e-9)
		})
	}

	assert.Equal(t, float64(2), testutil.ToFloat64(m.ClassifierCalls.WithLabelValues("openai", "failure")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ClassifierCalls.WithLabelValues("slow", "timeout")))
}

func TestAggregateCanceledContext(t *testing.T) {
	c := &fakeClassifier{name: "openai", delay: time.Second, sig: Signal{Score: 50, Confidence: 0.9}}
	a := NewAggregator([]WeightedClassifier{{Classifier: c, Weight: 1}}, time.Second, 0.8, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	got := a.Aggregate(ctx, "x", pattern(5))

	assert.Equal(t, 5, got.Score)
	assert.Equal(t, 1, got.Failed)
	assert.Zero(t, c.calls.Load(), "providers are not called for a caller that already left")
}

func TestAggregateClampsBadSignals(t *testing.T) {
	c := &fakeClassifier{name: "weird", sig: Signal{Score: -500, Confidence: 7}}
	neg := &fakeClassifier{name: "neg", sig: Signal{Score: 100, Confidence: 0.5}}
	a := NewAggregator([]WeightedClassifier{
		{Classifier: c, Weight: 1},
		{Classifier: neg, Weight: -1},
		{Classifier: nil, Weight: 1},
	}, time.Second, 0.8, nil, nil)

	got := a.Aggregate(context.Background(), "x", pattern(7))

	assert.Equal(t, 7, got.Score, "a classifier can never lower the pattern score")
	assert.InDelta(t, (0.8+1+0.5)/3, got.Confidence, 1e-9)
}

func TestAggregateRunsClassifiersConcurrently(t *testing.T) {
	var cs []WeightedClassifier
	for _, name := range []string{"a", "b", "c", "d"} {
		cs = append(cs, WeightedClassifier{Classifier: &fakeClassifier{name: name, delay: 100 * time.Millisecond}, Weight: 1})
	}
	a := NewAggregator(cs, time.Second, 0.8, nil, nil)

	start := time.Now()
	a.Aggregate(context.Background(), "x", pattern(0))
	assert.Less(t, time.Since(start), 350*time.Millisecond)
}
