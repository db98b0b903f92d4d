package moderation

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/tullo/guardian/internal/models"
)

const defaultFastTrackMaxLength = 500

var (
	safeVocabulary = regexp.MustCompile(`(?i)\b(learn(ing|ed)?|math|science|read(ing)?|books?|homework|study(ing)?|teachers?|class(es)?|project|art|music|draw(ing)?|happy|excited|love|fun|great|awesome|thanks?|thank you|friends?|proud|amazing|cool|help(ing)?|practice|team|game|win|won)\b`)
	basicProfanity = regexp.MustCompile(`(?i)\b(damn|crap|hell|shit|fuck|bitch|ass|wtf)\b`)
)

// FastTrackClassifier approves short, obviously safe content without running
// the full pipeline.
type FastTrackClassifier struct {
	rules     *RuleSet
	maxLength int
}

func NewFastTrackClassifier(rules *RuleSet, maxLength int) *FastTrackClassifier {
	if rules == nil {
		rules = DefaultRuleSet()
	}
	if maxLength <= 0 {
		maxLength = defaultFastTrackMaxLength
	}
	return &FastTrackClassifier{rules: rules, maxLength: maxLength}
}

// Classify returns an approved result, or nil when the full pipeline must run.
// Content that matches any rule is never fast-tracked, so the fast path can
// not be more lenient than the pattern scorer. External classifiers are never
// consulted, so the guarantee does not extend to the full pipeline.
func (f *FastTrackClassifier) Classify(content string) *models.ModerationResult {
	text := strings.TrimSpace(content)
	if text == "" || utf8.RuneCountInString(text) >= f.maxLength {
		return nil
	}
	if !safeVocabulary.MatchString(text) || basicProfanity.MatchString(text) {
		return nil
	}
	if f.rules.AnyMatch(text) {
		return nil
	}
	return &models.ModerationResult{
		Status:     models.StatusApproved,
		RiskScore:  0,
		Flags:      []string{},
		Confidence: 0.95,
		Reason:     "Fast-tracked safe content",
	}
}
