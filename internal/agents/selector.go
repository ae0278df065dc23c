package agents

import (
	"regexp"
	"slices"
	"strings"

	"rent360_assistant/internal/config"
	"rent360_assistant/pkg"
)

// Score weights
const (
	exactExpertise      = 40
	relatedExpertise    = 20
	roleSuitable        = 15
	angerEmpathy        = 10
	fearPatience        = 10
	intensityEmpathy    = 5
	memoryContinuity    = 10
	specialistPreferred = 5

	empathyForAnger     = 7
	patienceForFear     = 8
	empathyForIntensity = 6
	highIntensity       = 0.7
)

// OnboardingIntent is the intent whose service questions are routed to
// the maintenance persona before scoring
const OnboardingIntent = "registration"

var serviceContext = regexp.MustCompile(`(?i)(servicios?|mantenimiento|certificac|proveedor|t[eé]cnico)`)

// Selection is the chosen agent and how it was chosen
type Selection struct {
	Agent    pkg.Agent `json:"agent"`
	Score    int       `json:"score"`
	Override bool      `json:"override"`
}

// Selector scores the static agent registry against a classified turn
type Selector struct {
	registry config.AgentRegistry
}

// NewSelector creates a selector over a read-only registry
func NewSelector(registry config.AgentRegistry) *Selector {
	return &Selector{registry: registry}
}

// Select never fails. Ties keep registry order.
func (s *Selector) Select(result pkg.IntentResult, role pkg.Role, sentiment pkg.SentimentResult, memory pkg.MemoryContext, text string) Selection {
	if s.overrides(result, role, text) {
		if agent, ok := s.registry.Find(s.registry.MaintenanceAgent); ok {
			return Selection{Agent: agent, Override: true}
		}
	}

	best := Selection{Score: -1}
	for _, agent := range s.registry.Agents {
		score := s.score(agent, result, role, sentiment, memory)
		if score > best.Score {
			best = Selection{Agent: agent, Score: score}
		}
	}
	if best.Score < 0 {
		agent, _ := s.registry.Find(s.registry.DefaultAgent)
		return Selection{Agent: agent}
	}
	return best
}

// overrides reports whether an onboarding turn is about offering services
func (s *Selector) overrides(result pkg.IntentResult, role pkg.Role, text string) bool {
	if result.Intent != OnboardingIntent {
		return false
	}
	return role == pkg.RoleGuest ||
		result.Entity(pkg.EntityService) != "" ||
		serviceContext.MatchString(text)
}

func (s *Selector) score(agent pkg.Agent, result pkg.IntentResult, role pkg.Role, sentiment pkg.SentimentResult, memory pkg.MemoryContext) int {
	score := 0

	switch {
	case slices.Contains(agent.Expertise, result.Intent):
		score += exactExpertise
	case related(agent.Expertise, result.Intent):
		score += relatedExpertise
	}

	if slices.Contains(s.registry.RoleAgents[string(role)], agent.ID) {
		score += roleSuitable
	}

	p := agent.Personality
	if sentiment.Emotion == pkg.EmotionAnger && p.Empathy > empathyForAnger {
		score += angerEmpathy
	}
	if sentiment.Emotion == pkg.EmotionFear && p.Patience > patienceForFear {
		score += fearPatience
	}
	if sentiment.Intensity > highIntensity && p.Empathy > empathyForIntensity {
		score += intensityEmpathy
	}

	for _, tag := range agent.Expertise {
		if slices.Contains(memory.Topics, tag) {
			score += memoryContinuity
			break
		}
	}

	if agent.ID != s.registry.DefaultAgent {
		score += specialistPreferred
	}
	return score
}

func related(expertise []string, intent string) bool {
	if intent == "" {
		return false
	}
	for _, tag := range expertise {
		if strings.Contains(tag, intent) || strings.Contains(intent, tag) {
			return true
		}
	}
	return false
}
