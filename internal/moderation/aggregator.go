package moderation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tullo/guardian/internal/metrics"
)

const (
	defaultClassifierTimeout = 3 * time.Second
	defaultPatternConfidence = 0.8
)

// Aggregate is the blended text signal.
type Aggregate struct {
	Score      int
	Flags      []string
	Confidence float64
	// Failed counts classifiers that contributed a neutral fallback.
	Failed int
}

// Aggregator fans a text out to every external classifier and blends the
// answers with the pattern score.
type Aggregator struct {
	classifiers       []WeightedClassifier
	timeout           time.Duration
	patternConfidence float64
	log               *zap.Logger
	metrics           *metrics.Metrics
}

func NewAggregator(classifiers []WeightedClassifier, timeout time.Duration, patternConfidence float64, log *zap.Logger, m *metrics.Metrics) *Aggregator {
	if timeout <= 0 {
		timeout = defaultClassifierTimeout
	}
	if patternConfidence <= 0 || patternConfidence > 1 {
		patternConfidence = defaultPatternConfidence
	}
	if log == nil {
		log = zap.NewNop()
	}
	kept := make([]WeightedClassifier, 0, len(classifiers))
	for _, c := range classifiers {
		if c.Classifier == nil {
			continue
		}
		if c.Weight < 0 {
			c.Weight = 0
		}
		kept = append(kept, c)
	}
	return &Aggregator{
		classifiers:       kept,
		timeout:           timeout,
		patternConfidence: patternConfidence,
		log:               log.With(zap.String("module", "aggregator")),
		metrics:           m,
	}
}

// Aggregate calls every classifier concurrently and blends the signals with
// pattern. It never fails: a classifier that errors, panics or times out
// contributes a neutral signal with zero confidence.
func (a *Aggregator) Aggregate(ctx context.Context, text string, pattern PatternResult) Aggregate {
	signals := make([]Signal, len(a.classifiers))
	failed := make([]bool, len(a.classifiers))

	var g errgroup.Group
	for i, wc := range a.classifiers {
		g.Go(func() error {
			sig, err := a.classify(ctx, wc.Classifier, text)
			if err != nil {
				failed[i] = true
				return nil
			}
			signals[i] = sig
			return nil
		})
	}
	_ = g.Wait()

	total := float64(pattern.RawScore)
	confidence := a.patternConfidence
	flags := pattern.FlagTokens()
	out := Aggregate{}
	for i, wc := range a.classifiers {
		if failed[i] {
			out.Failed++
		}
		sig := signals[i]
		total += wc.Weight * sig.Score
		confidence += sig.Confidence
		prefix := wc.Classifier.Name() + "_"
		for _, f := range sig.Flags {
			if f == "" {
				continue
			}
			if !strings.HasPrefix(f, prefix) {
				f = prefix + f
			}
			flags = append(flags, f)
		}
	}

	out.Score = int(total)
	if out.Score < pattern.RawScore {
		out.Score = pattern.RawScore
	}
	out.Flags = uniqueSorted(flags)
	out.Confidence = confidence / float64(len(a.classifiers)+1)
	return out
}

// classify bounds a single call by the aggregator timeout, even when the
// classifier ignores its context.
func (a *Aggregator) classify(ctx context.Context, c Classifier, text string) (Signal, error) {
	cctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	type outcome struct {
		sig Signal
		err error
	}
	var o outcome
	if err := ctx.Err(); err != nil {
		// The caller is gone; skip the provider entirely.
		o = outcome{err: err}
	} else {
		done := make(chan outcome, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- outcome{err: fmt.Errorf("classifier panic: %v", r)}
				}
			}()
			sig, err := c.Classify(cctx, text)
			done <- outcome{sig: sig, err: err}
		}()

		select {
		case o = <-done:
		case <-cctx.Done():
			o = outcome{err: cctx.Err()}
		}
	}

	if o.err != nil {
		result := "failure"
		if errors.Is(o.err, context.DeadlineExceeded) {
			result = "timeout"
		} else if errors.Is(o.err, context.Canceled) {
			result = "canceled"
		}
		a.metrics.ClassifierCall(c.Name(), result)
		a.log.Warn("classifier unavailable, using neutral signal",
			zap.String("provider", c.Name()),
			zap.String("outcome", result),
			zap.Error(o.err),
		)
		return Signal{}, o.err
	}
	a.metrics.ClassifierCall(c.Name(), "success")
	return o.sig.sanitize(), nil
}

func uniqueSorted(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
