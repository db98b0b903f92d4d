package moderation

import "fmt"

// Category is a closed set of risk categories. The string value is the prefix
// of every flag token the category produces.
type Category string

const (
	CategoryViolence         Category = "violence_threats"
	CategorySelfHarm         Category = "self_harm"
	CategoryPersonalInfo     Category = "personal_information"
	CategoryBullying         Category = "bullying"
	CategoryStrangerDanger   Category = "stranger_danger"
	CategorySubstances       Category = "substance_references"
	CategoryExplicitLanguage Category = "explicit_language"
	CategoryInappropriate    Category = "inappropriate_content"
)

// Categories lists every category in evaluation order.
var Categories = []Category{
	CategorySelfHarm,
	CategoryStrangerDanger,
	CategoryViolence,
	CategoryPersonalInfo,
	CategoryBullying,
	CategoryExplicitLanguage,
	CategorySubstances,
	CategoryInappropriate,
}

// Valid reports whether c is part of the enumeration.
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// Severity ranks how serious a rule match is. The numeric value doubles as the
// score multiplier.
type Severity int

const (
	SeverityLow Severity = iota + 1
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

// Severities lists every severity, most serious first.
var Severities = []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow}

func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	case SeverityCritical:
		return "critical"
	}
	return fmt.Sprintf("severity(%d)", int(s))
}

// Multiplier is the factor applied to a category weight for each match.
func (s Severity) Multiplier() int {
	if s < SeverityLow || s > SeverityCritical {
		return 0
	}
	return int(s)
}

// Flag is a matched category at a given severity.
type Flag struct {
	Category Category
	Severity Severity
}

// String renders the flag token, e.g. "self_harm_critical".
func (f Flag) String() string {
	return string(f.Category) + "_" + f.Severity.String()
}

// Weights maps every category to its base score weight.
type Weights map[Category]int

// DefaultWeights returns the stock category weights.
func DefaultWeights() Weights {
	return Weights{
		CategoryViolence:         15,
		CategorySelfHarm:         25,
		CategoryPersonalInfo:     20,
		CategoryBullying:         12,
		CategoryStrangerDanger:   30,
		CategorySubstances:       8,
		CategoryExplicitLanguage: 10,
		CategoryInappropriate:    8,
	}
}

// For returns the weight of c, falling back to the default weight when the
// category is missing. Negative weights are treated as zero so that a match
// can never lower the score.
func (w Weights) For(c Category) int {
	v, ok := w[c]
	if !ok {
		v = DefaultWeights()[c]
	}
	if v < 0 {
		return 0
	}
	return v
}

// Merge returns a copy of the defaults overridden by w.
func (w Weights) Merge() Weights {
	out := DefaultWeights()
	for c, v := range w {
		if c.Valid() {
			out[c] = v
		}
	}
	return out
}
