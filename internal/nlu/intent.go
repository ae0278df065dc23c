package nlu

import (
	"slices"
	"strings"

	"rent360_assistant/internal/config"
	"rent360_assistant/pkg"
)

const (
	// FallbackIntent is returned when no rule matches
	FallbackIntent = "support"

	contextTagBoost = 0.1
	roleBoost       = 0.05
)

// Classifier maps a message to an intent using the ordered rule table
type Classifier struct {
	rules     []config.IntentRule
	extractor *EntityExtractor
}

// NewClassifier creates a classifier over compiled intent rules
func NewClassifier(rules []config.IntentRule, lex config.Lexicon) (*Classifier, error) {
	extractor, err := NewEntityExtractor(lex)
	if err != nil {
		return nil, err
	}
	return &Classifier{rules: rules, extractor: extractor}, nil
}

// Classify scores every rule against the text. A later candidate only
// replaces the current best when strictly greater, so declaration order
// breaks ties. Unmatched text yields the fallback intent at confidence 0.
func (c *Classifier) Classify(text string, role pkg.Role, contextTags []string) pkg.IntentResult {
	normalized := strings.ToLower(strings.TrimSpace(text))

	result := pkg.IntentResult{
		Intent:      FallbackIntent,
		Confidence:  0,
		ContextTags: []string{},
	}

	var winner *config.IntentRule
	for i := range c.rules {
		rule := &c.rules[i]
		for _, re := range rule.Matchers {
			if !re.MatchString(normalized) {
				continue
			}
			confidence := rule.Weight
			if intersects(contextTags, rule.Tags) {
				confidence += contextTagBoost
			}
			if rule.RelevantFor(role) {
				confidence += roleBoost
			}
			confidence = clip(confidence)
			if confidence > result.Confidence {
				result.Intent = rule.Name
				result.Confidence = confidence
				winner = rule
			}
		}
	}

	if winner != nil {
		result.ContextTags = sortedCopy(winner.Tags)
		result.SubIntent = detectSubIntent(winner, normalized)
	}
	result.Entities = c.extractor.Extract(normalized)

	return result
}

// detectSubIntent runs the secondary patterns of the winning rule only
func detectSubIntent(rule *config.IntentRule, normalized string) string {
	for _, sub := range rule.SubIntents {
		for _, re := range sub.Matchers {
			if re.MatchString(normalized) {
				return sub.Name
			}
		}
	}
	return ""
}

func intersects(a, b []string) bool {
	for _, x := range a {
		if slices.Contains(b, x) {
			return true
		}
	}
	return false
}

func sortedCopy(values []string) []string {
	out := slices.Clone(values)
	if out == nil {
		return []string{}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
