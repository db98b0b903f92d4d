package moderation

import (
	"fmt"
	"regexp"
)

// Tier is the set of patterns for one category at one severity.
type Tier struct {
	Category Category
	Severity Severity
	Patterns []*regexp.Regexp
}

// CountMatches returns the number of non-overlapping matches of every pattern
// in the tier.
func (t Tier) CountMatches(content string) int {
	n := 0
	for _, p := range t.Patterns {
		n += len(p.FindAllStringIndex(content, -1))
	}
	return n
}

// Matches reports whether any pattern in the tier matches.
func (t Tier) Matches(content string) bool {
	for _, p := range t.Patterns {
		if p.MatchString(content) {
			return true
		}
	}
	return false
}

// RuleSet is the static table of lexical rules grouped by category and severity.
type RuleSet struct {
	tiers []Tier
}

// NewRuleSet builds a rule set from precompiled tiers.
func NewRuleSet(tiers []Tier) *RuleSet {
	return &RuleSet{tiers: append([]Tier(nil), tiers...)}
}

// Tiers returns the tiers in evaluation order.
func (rs *RuleSet) Tiers() []Tier {
	return rs.tiers
}

// AnyMatch reports whether any rule matches content, stopping at the first hit.
func (rs *RuleSet) AnyMatch(content string) bool {
	for _, t := range rs.tiers {
		if t.Matches(content) {
			return true
		}
	}
	return false
}

// Validate checks that every tier uses a known category and severity and that
// every category in the enumeration has at least one tier.
func (rs *RuleSet) Validate() error {
	covered := make(map[Category]bool, len(Categories))
	for _, t := range rs.tiers {
		if !t.Category.Valid() {
			return fmt.Errorf("unknown category %q", t.Category)
		}
		if t.Severity.Multiplier() == 0 {
			return fmt.Errorf("category %s: invalid severity %d", t.Category, int(t.Severity))
		}
		if len(t.Patterns) == 0 {
			return fmt.Errorf("category %s_%s has no patterns", t.Category, t.Severity)
		}
		covered[t.Category] = true
	}
	for _, c := range Categories {
		if !covered[c] {
			return fmt.Errorf("category %s has no rules", c)
		}
	}
	return nil
}

var defaultPatterns = map[Category]map[Severity][]string{
	CategorySelfHarm: {
		SeverityCritical: {
			`\b(kill(ing)?|hurt(ing)?|harm(ing)?|cut(ting)?) myself\b`,
			`\bend(ing)? (it all|my life)\b`,
			`\bsuicid(e|al)\b`,
		},
		SeverityHigh: {
			`\b(want|wanna|going) to die\b`,
			`\bself[- ]?harm\b`,
		},
		SeverityMedium: {
			`\b(hate|hating) myself\b`,
			`\bno reason to live\b`,
		},
		SeverityLow: {
			`\bnobody would (miss|care about) me\b`,
		},
	},
	CategoryStrangerDanger: {
		SeverityCritical: {
			`\bdon'?t tell (your|ur) (parents|mom|dad|mum|family|anyone)\b`,
			`\bour (little )?secret\b`,
		},
		SeverityHigh: {
			`\bmeet (me )?(up )?(in person|irl|after school)\b`,
			`\bsend (me )?(a |some )?(pic|pics|photo|photos|picture|pictures|selfie|selfies)\b`,
			`\bhow old (are|r) (you|u)\b`,
		},
		SeverityMedium: {
			`\b(are|r) (you|u) (home )?alone\b`,
			`\bwhere do (you|u) live\b`,
			`\bwhat school do (you|u) go to\b`,
		},
		SeverityLow: {
			`\b(add me on|dm me|private chat|text me)\b`,
		},
	},
	CategoryViolence: {
		SeverityCritical: {
			`\b(i'?m going to|i will|i'?ll|gonna) (kill|shoot|stab|hurt) (you|him|her|them|everyone)\b`,
			`\bbring a (gun|knife|weapon) to school\b`,
		},
		SeverityHigh: {
			`\b(shoot|stab|murder|bomb)(s|ed|ing)?\b`,
		},
		SeverityMedium: {
			`\bbeat (you|him|her|them) up\b`,
			`\b(gun|guns|knife|knives|weapon|weapons)\b`,
		},
		SeverityLow: {
			`\b(punch|kick|slap)(ed|ing)? (you|him|her|them)\b`,
		},
	},
	CategoryPersonalInfo: {
		SeverityCritical: {
			`\bmy password is\b`,
			`\b\d{3}-\d{2}-\d{4}\b`,
		},
		SeverityHigh: {
			`\b\d{3}[-.\s]?\d{3}[-.\s]?\d{4}\b`,
			`\b\d{1,5}\s+\w+\s+(street|st|avenue|ave|road|rd|lane|ln|drive|dr)\b`,
		},
		SeverityMedium: {
			`[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}`,
		},
		SeverityLow: {
			`\b(my (address|phone number|last name) is|i live (at|on))\b`,
		},
	},
	CategoryBullying: {
		SeverityHigh: {
			`\b(go )?kill yourself\b`,
			`\bkys\b`,
		},
		SeverityMedium: {
			`\b(nobody|no one) likes (you|u)\b`,
			`\beveryone hates (you|u)\b`,
			`\b(you|u) (are|r|'re) (worthless|pathetic|a freak)\b`,
		},
		SeverityLow: {
			`\b(stupid|ugly|dumb|loser|idiot|moron|weirdo|fatso)\b`,
		},
	},
	CategoryExplicitLanguage: {
		SeverityHigh: {
			`\bf+u+c+k+\w*`,
			`\b(shit\w*|bitch\w*|cunt)\b`,
		},
		SeverityMedium: {
			`\b(ass|asshole|bastard|dick|piss(ed)?)\b`,
		},
		SeverityLow: {
			`\b(damn|crap|hell|wtf)\b`,
		},
	},
	CategorySubstances: {
		SeverityHigh: {
			`\b(cocaine|heroin|meth|fentanyl|ecstasy)\b`,
		},
		SeverityMedium: {
			`\b(weed|marijuana|vape|vaping|get high|getting high|drunk)\b`,
		},
		SeverityLow: {
			`\b(beer|wine|vodka|alcohol|cigarettes?|smoking)\b`,
		},
	},
	CategoryInappropriate: {
		SeverityHigh: {
			`\b(porn\w*|nudes?|naked|sexting|sexy|sex)\b`,
		},
		SeverityMedium: {
			`\b(hookup|stripper|onlyfans)\b`,
		},
	},
}

// DefaultRuleSet compiles the built-in rule table. Patterns are case-insensitive.
func DefaultRuleSet() *RuleSet {
	tiers := make([]Tier, 0, len(Categories)*len(Severities))
	for _, c := range Categories {
		for _, s := range Severities {
			raw := defaultPatterns[c][s]
			if len(raw) == 0 {
				continue
			}
			t := Tier{Category: c, Severity: s, Patterns: make([]*regexp.Regexp, 0, len(raw))}
			for _, p := range raw {
				t.Patterns = append(t.Patterns, regexp.MustCompile(`(?i)`+p))
			}
			tiers = append(tiers, t)
		}
	}
	return NewRuleSet(tiers)
}
