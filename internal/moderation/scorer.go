package moderation

// PatternResult is the raw output of running the rule set against content.
type PatternResult struct {
	RawScore int
	Flags    []Flag
}

// FlagTokens renders every flag as its token.
func (p PatternResult) FlagTokens() []string {
	out := make([]string, 0, len(p.Flags))
	for _, f := range p.Flags {
		out = append(out, f.String())
	}
	return out
}

// PatternScorer evaluates every tier of a rule set and accumulates a score.
type PatternScorer struct {
	rules   *RuleSet
	weights Weights
}

func NewPatternScorer(rules *RuleSet, weights Weights) *PatternScorer {
	if rules == nil {
		rules = DefaultRuleSet()
	}
	return &PatternScorer{rules: rules, weights: weights.Merge()}
}

// Score runs every tier of every category; nothing short-circuits, so
// unrelated categories in the same text are all reported.
func (s *PatternScorer) Score(content string) PatternResult {
	var res PatternResult
	for _, t := range s.rules.Tiers() {
		n := t.CountMatches(content)
		if n == 0 {
			continue
		}
		res.RawScore += n * s.weights.For(t.Category) * t.Severity.Multiplier()
		res.Flags = append(res.Flags, Flag{Category: t.Category, Severity: t.Severity})
	}
	return res
}
