package moderation

import (
	"strings"

	"github.com/tullo/guardian/internal/models"
)

// Decision is the verdict for an aggregated score and flag set.
type Decision struct {
	Status              models.Status
	RequiresHumanReview bool
	Reason              string
	Suggestions         []string
}

// DecisionRule fires when the score reaches MinScore or any flag contains one
// of FlagMarkers.
type DecisionRule struct {
	Name        string
	MinScore    int
	FlagMarkers []string
	Decision    Decision
}

// Matches reports whether the rule applies to score and flags.
func (r DecisionRule) Matches(score int, flags []string) bool {
	if score >= r.MinScore {
		return true
	}
	for _, f := range flags {
		for _, m := range r.FlagMarkers {
			if strings.Contains(f, m) {
				return true
			}
		}
	}
	return false
}

// DefaultDecisionRules is the ordered policy. Category markers apply even when
// the numeric threshold is not reached.
var DefaultDecisionRules = []DecisionRule{
	{
		Name:        "reject",
		MinScore:    25,
		FlagMarkers: []string{string(CategorySelfHarm), string(CategoryViolence), string(CategoryStrangerDanger)},
		Decision: Decision{
			Status:              models.StatusRejected,
			RequiresHumanReview: true,
			Reason:              "Content contains material that is not safe for this community",
			Suggestions: []string{
				"If something is bothering you, talk to a trusted adult",
				"Review the community guidelines before posting",
			},
		},
	},
	{
		Name:        "review",
		MinScore:    15,
		FlagMarkers: []string{string(CategoryBullying), string(CategoryPersonalInfo)},
		Decision: Decision{
			Status:              models.StatusPendingReview,
			RequiresHumanReview: true,
			Reason:              "Content needs to be checked by a moderator before it is published",
			Suggestions: []string{
				"Be kind to others",
				"Never share personal information like your address, phone number or email",
			},
		},
	},
	{
		Name:        "flag",
		MinScore:    5,
		FlagMarkers: []string{string(CategoryExplicitLanguage), string(CategorySubstances)},
		Decision: Decision{
			Status:              models.StatusFlagged,
			RequiresHumanReview: true,
			Reason:              "Content may contain inappropriate language or references",
			Suggestions: []string{
				"Use appropriate language",
				"Try rephrasing your message in a positive way",
			},
		},
	},
	{
		Name:     "approve",
		MinScore: 0,
		Decision: Decision{
			Status: models.StatusApproved,
			Reason: "Content meets community guidelines",
		},
	},
}

// DecisionEngine evaluates an ordered rule table; the first match wins.
type DecisionEngine struct {
	rules []DecisionRule
}

func NewDecisionEngine(rules []DecisionRule) *DecisionEngine {
	if len(rules) == 0 {
		rules = DefaultDecisionRules
	}
	return &DecisionEngine{rules: rules}
}

// Decide is a pure function of score and flags.
func (e *DecisionEngine) Decide(score int, flags []string) Decision {
	for _, r := range e.rules {
		if r.Matches(score, flags) {
			d := r.Decision
			if d.Suggestions != nil {
				d.Suggestions = append([]string(nil), d.Suggestions...)
			}
			return d
		}
	}
	// A rule table without a catch-all fails closed.
	return failClosedDecision()
}

func failClosedDecision() Decision {
	return Decision{
		Status:              models.StatusPendingReview,
		RequiresHumanReview: true,
		Reason:              "Content could not be fully checked and will be reviewed by a moderator",
	}
}
