package moderation

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tullo/guardian/internal/models"
)

func TestDecide(t *testing.T) {
	d := NewDecisionEngine(nil)

	tests := []struct {
		name   string
		score  int
		flags  []string
		status models.Status
		review bool
	}{
		{"clean", 0, nil, models.StatusApproved, false},
		{"just below flag", 4, nil, models.StatusApproved, false},
		{"flag threshold", 5, nil, models.StatusFlagged, true},
		{"review threshold", 15, nil, models.StatusPendingReview, true},
		{"reject threshold", 25, nil, models.StatusRejected, true},
		{"self harm marker at low score", 3, []string{"self_harm_low"}, models.StatusRejected, true},
		{"provider flag carries marker", 10, []string{"openai_violence_threats"}, models.StatusRejected, true},
		{"bullying marker", 1, []string{"bullying_low"}, models.StatusPendingReview, true},
		{"language marker", 0, []string{"explicit_language_low"}, models.StatusFlagged, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := d.Decide(tt.score, tt.flags)
			assert.Equal(t, tt.status, got.Status)
			assert.Equal(t, tt.review, got.RequiresHumanReview)
			assert.NotEmpty(t, got.Reason)
		})
	}
}

func TestDecideIsDeterministic(t *testing.T) {
	d := NewDecisionEngine(nil)
	first := d.Decide(24, []string{"bullying_low"})
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, d.Decide(24, []string{"bullying_low"}))
	}
}

func TestDecideReturnsCopies(t *testing.T) {
	d := NewDecisionEngine(nil)
	got := d.Decide(30, nil)
	got.Suggestions[0] = "mutated"
	assert.NotEqual(t, "mutated", d.Decide(30, nil).Suggestions[0])
}

func TestDecideFailsClosedWithoutCatchAll(t *testing.T) {
	d := NewDecisionEngine([]DecisionRule{{Name: "reject", MinScore: 100, Decision: Decision{Status: models.StatusRejected}}})
	got := d.Decide(1, nil)
	assert.Equal(t, models.StatusPendingReview, got.Status)
	assert.True(t, got.RequiresHumanReview)
}
