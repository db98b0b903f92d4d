package moderation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tullo/guardian/internal/models"
)

func TestFastTrackApprovesSafeContent(t *testing.T) {
	f := NewFastTrackClassifier(nil, 0)

	res := f.Classify("I love learning math and science!")
	require.NotNil(t, res)
	assert.Equal(t, models.StatusApproved, res.Status)
	assert.Equal(t, 0, res.RiskScore)
	assert.NotNil(t, res.Flags)
	assert.Empty(t, res.Flags)
	assert.InDelta(t, 0.95, res.Confidence, 1e-9)
}

func TestFastTrackDeclines(t *testing.T) {
	f := NewFastTrackClassifier(nil, 0)

	tests := []struct {
		name string
		text string
	}{
		{"empty", "   "},
		{"no safe vocabulary", "the weather today"},
		{"profanity", "this homework is crap"},
		{"safe words with a rule hit", "I love my friends, my email is kid@example.com"},
		{"too long", "I love learning " + strings.Repeat("a", 600)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Nil(t, f.Classify(tt.text))
		})
	}
}

// Anything the fast track approves must also be approved by pattern scoring.
func TestFastTrackIsNeverMoreLenient(t *testing.T) {
	f := NewFastTrackClassifier(nil, 0)
	s := NewPatternScorer(nil, nil)
	d := NewDecisionEngine(nil)

	samples := []string{
		"I love learning math and science!",
		"Thanks for the help with homework, you are awesome",
		"I love you, send me a pic",
		"our team won the game, we are proud",
		"art class was fun but I want to die",
		"I love music, text me",
		"Great project! my password is hunter2",
	}
	for _, text := range samples {
		if f.Classify(text) == nil {
			continue
		}
		p := s.Score(text)
		assert.Equal(t, models.StatusApproved, d.Decide(p.RawScore, p.FlagTokens()).Status, text)
	}
}
