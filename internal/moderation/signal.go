package moderation

import (
	"context"
	"math"
)

// Signal is the normalized output of one classifier. The zero value is the
// neutral result used whenever a classifier fails.
type Signal struct {
	Score      float64
	Flags      []string
	Confidence float64
}

// Classifier is an external text classification service.
type Classifier interface {
	Name() string
	Classify(ctx context.Context, text string) (Signal, error)
}

// WeightedClassifier pairs a classifier with its blending weight.
type WeightedClassifier struct {
	Classifier Classifier
	Weight     float64
}

// sanitize clamps a signal so that it can only ever add to the score.
func (s Signal) sanitize() Signal {
	if s.Score < 0 || math.IsNaN(s.Score) || math.IsInf(s.Score, 0) {
		s.Score = 0
	}
	switch {
	case math.IsNaN(s.Confidence) || s.Confidence < 0:
		s.Confidence = 0
	case s.Confidence > 1:
		s.Confidence = 1
	}
	return s
}
