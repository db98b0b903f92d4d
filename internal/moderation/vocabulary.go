package moderation

import "sort"

// Scenario keys the safe-phrase suggestions shown to young authors.
type Scenario string

const (
	ScenarioFrustration  Scenario = "frustration"
	ScenarioDisagreement Scenario = "disagreement"
	ScenarioSadness      Scenario = "sadness"
	ScenarioExcitement   Scenario = "excitement"
	ScenarioAchievement  Scenario = "achievement"
)

var safeVocabularyList = []string{
	"amazing", "awesome", "brave", "creative", "curious", "excited", "fantastic",
	"friendly", "fun", "great", "happy", "helpful", "kind", "learning", "proud",
	"respectful", "thank you", "thoughtful", "wonderful",
}

var safePhrases = map[Scenario][]string{
	ScenarioFrustration: {
		"I'm feeling frustrated right now",
		"This is really hard for me",
		"Can someone help me with this?",
	},
	ScenarioDisagreement: {
		"I see it differently",
		"I respectfully disagree",
		"Can you explain your idea more?",
	},
	ScenarioSadness: {
		"I'm feeling sad today",
		"I could use a friend right now",
		"I want to talk to a trusted adult",
	},
	ScenarioExcitement: {
		"This is so exciting!",
		"I can't wait to try this!",
		"That sounds like a lot of fun!",
	},
	ScenarioAchievement: {
		"I'm proud of what I did",
		"Great job, everyone!",
		"I worked hard on this",
	},
}

// SafeVocabulary returns the static list of encouraged words.
func SafeVocabulary() []string {
	return append([]string(nil), safeVocabularyList...)
}

// SafePhrases returns the suggestions for scenario, or every scenario when the
// key is empty or unknown.
func SafePhrases(scenario string) map[string][]string {
	if phrases, ok := safePhrases[Scenario(scenario)]; ok {
		return map[string][]string{scenario: append([]string(nil), phrases...)}
	}
	out := make(map[string][]string, len(safePhrases))
	for s, phrases := range safePhrases {
		out[string(s)] = append([]string(nil), phrases...)
	}
	return out
}

// Scenarios lists the known scenario keys.
func Scenarios() []string {
	out := make([]string, 0, len(safePhrases))
	for s := range safePhrases {
		out = append(out, string(s))
	}
	sort.Strings(out)
	return out
}
