package nlu

import (
	"strings"
	"unicode"

	"rent360_assistant/internal/config"
	"rent360_assistant/pkg"
)

const (
	baseIntensity     = 0.5
	baseConfidence    = 0.8
	matchIncrement    = 0.2
	emphasisBoost     = 0.3
	angerConfidenceUp = 0.2
	upperRatioLimit   = 0.3
	exclamationLimit  = 2
	urgentFamily      = "urgent"
)

// SentimentAnalyzer scores the emotional tone of a message from
// ordered pattern families
type SentimentAnalyzer struct {
	families []config.SentimentFamily
}

// NewSentimentAnalyzer creates an analyzer over compiled families
func NewSentimentAnalyzer(families []config.SentimentFamily) *SentimentAnalyzer {
	return &SentimentAnalyzer{families: families}
}

// Analyze never fails; text without matches is neutral at base intensity
func (a *SentimentAnalyzer) Analyze(text string) pkg.SentimentResult {
	result := pkg.SentimentResult{
		Emotion:    pkg.EmotionNeutral,
		Intensity:  baseIntensity,
		Confidence: baseConfidence,
		Keywords:   []string{},
	}

	lower := strings.ToLower(text)
	seen := make(map[string]bool)
	emotionSet := false

	for _, family := range a.families {
		matched := false
		for _, re := range family.Matchers {
			for _, match := range re.FindAllString(lower, -1) {
				matched = true
				result.Intensity = clip(result.Intensity + matchIncrement)
				keyword := strings.TrimSpace(match)
				if !seen[keyword] {
					seen[keyword] = true
					result.Keywords = append(result.Keywords, keyword)
				}
			}
		}
		if !matched {
			continue
		}
		if !emotionSet {
			result.Emotion = family.Emotion
			emotionSet = true
		}
		// urgency dominates whatever family matched first
		if family.Family == urgentFamily {
			result.Emotion = family.Emotion
		}
	}

	if upperRatio(text) > upperRatioLimit || strings.Count(text, "!") > exclamationLimit {
		result.Intensity = clip(result.Intensity + emphasisBoost)
		if result.Emotion == pkg.EmotionAnger {
			result.Confidence = clip(result.Confidence + angerConfidenceUp)
		}
	}

	return result
}

// upperRatio is the share of uppercase letters among all letters
func upperRatio(text string) float64 {
	var letters, upper int
	for _, r := range text {
		if !unicode.IsLetter(r) {
			continue
		}
		letters++
		if unicode.IsUpper(r) {
			upper++
		}
	}
	if letters == 0 {
		return 0
	}
	return float64(upper) / float64(letters)
}

func clip(v float64) float64 {
	if v > 1 {
		return 1
	}
	return v
}
