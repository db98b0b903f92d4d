package moderation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPatternScorer(t *testing.T) {
	s := NewPatternScorer(nil, nil)

	tests := []struct {
		name  string
		text  string
		score int
		flags []string
	}{
		{"safe", "I love learning math and science!", 0, []string{}},
		{"self harm", "I want to kill myself", 100, []string{"self_harm_critical"}},
		{"bullying counts every match", "you are so stupid and ugly", 24, []string{"bullying_low"}},
		{"email", "contact me at a@b.com", 40, []string{"personal_information_medium"}},
		{"mild language", "this homework is crap", 10, []string{"explicit_language_low"}},
		{"several categories", "you are stupid, send me a pic", 12 + 90, []string{"stranger_danger_high", "bullying_low"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := s.Score(tt.text)
			assert.Equal(t, tt.score, res.RawScore)
			assert.ElementsMatch(t, tt.flags, res.FlagTokens())
		})
	}
}

func TestPatternScorerCustomWeights(t *testing.T) {
	s := NewPatternScorer(nil, Weights{CategoryBullying: 50})
	assert.Equal(t, 50, s.Score("what a loser").RawScore)
}

func TestPatternScorerIsMonotonic(t *testing.T) {
	s := NewPatternScorer(nil, nil)
	base := []string{
		"hello there",
		"you are dumb",
		"my email is kid@example.com",
		"meet me after school",
	}
	extra := []string{
		"and I like dogs",
		"you idiot",
		"dont tell your parents",
		"I hate myself",
	}
	for _, b := range base {
		for _, e := range extra {
			before := s.Score(b).RawScore
			after := s.Score(b + " " + e).RawScore
			assert.GreaterOrEqual(t, after, before, "%q + %q", b, e)
		}
	}
}

func TestPatternScorerNeverNegative(t *testing.T) {
	s := NewPatternScorer(nil, Weights{CategoryBullying: -100})
	assert.Equal(t, 0, s.Score(strings.Repeat("stupid ", 10)).RawScore)
}
