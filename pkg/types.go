package pkg

import (
	"time"
)

// Core types shared by the assistant pipeline

// Emotion is the dominant emotional tone of a message
type Emotion string

const (
	EmotionJoy      Emotion = "joy"
	EmotionSadness  Emotion = "sadness"
	EmotionAnger    Emotion = "anger"
	EmotionFear     Emotion = "fear"
	EmotionSurprise Emotion = "surprise"
	EmotionDisgust  Emotion = "disgust"
	EmotionNeutral  Emotion = "neutral"
)

// Outcome is the resolution state recorded for a conversation turn
type Outcome string

const (
	OutcomeResolved            Outcome = "resolved"
	OutcomeEscalated           Outcome = "escalated"
	OutcomeInProgress          Outcome = "in_progress"
	OutcomeClarificationNeeded Outcome = "clarification_needed"
)

// DataAccess is the ceiling of data a role may see
type DataAccess string

const (
	AccessOwnData        DataAccess = "own_data"
	AccessPublicInfoOnly DataAccess = "public_info_only"
	AccessAllData        DataAccess = "all_data"
)

// Entity keys produced by the intent classifier
const (
	EntityRole         = "role"
	EntityAmount       = "amount"
	EntityPropertyType = "property_type"
	EntityLocation     = "location"
	EntityService      = "service"
)

// Turn is a prior message in the conversation history
type Turn struct {
	Role    string `json:"role"` // user, assistant
	Content string `json:"content"`
}

// Message is the immutable input of a single request
type Message struct {
	Text    string `json:"text"`
	Role    Role   `json:"role"`
	UserID  string `json:"user_id"`
	History []Turn `json:"history,omitempty"`
}

// SentimentResult holds emotional tone analysis
type SentimentResult struct {
	Emotion    Emotion  `json:"emotion"`
	Intensity  float64  `json:"intensity"`
	Confidence float64  `json:"confidence"`
	Keywords   []string `json:"keywords"`
}

// IntentResult is the classifier output for one message
type IntentResult struct {
	Intent      string            `json:"intent"`
	Confidence  float64           `json:"confidence"`
	Entities    map[string]string `json:"entities"`
	SubIntent   string            `json:"sub_intent,omitempty"`
	ContextTags []string          `json:"context_tags"`
}

// Entity returns the extracted entity value for key, or ""
func (r IntentResult) Entity(key string) string {
	if r.Entities == nil {
		return ""
	}
	return r.Entities[key]
}

// MemoryEntry is one recorded turn in a user's conversational memory
type MemoryEntry struct {
	ID           string            `json:"id"`
	Timestamp    time.Time         `json:"timestamp"`
	Topic        string            `json:"topic"`
	Sentiment    Emotion           `json:"sentiment"`
	Outcome      Outcome           `json:"outcome"`
	Entities     map[string]string `json:"entities,omitempty"`
	AgentUsed    string            `json:"agent_used,omitempty"`
	Satisfaction int               `json:"satisfaction,omitempty"` // 1-5, 0 when absent
}

// MemoryContext is the summary derived from recent memory entries
type MemoryContext struct {
	Topics     []string `json:"topics"`
	Unresolved []string `json:"unresolved"`
	Successful []string `json:"successful"`
	Summary    string   `json:"summary"`
	FollowUp   bool     `json:"follow_up"`
}

// Personality describes how an agent talks
type Personality struct {
	Tone          string `json:"tone" yaml:"tone"`
	Formality     string `json:"formality" yaml:"formality"`
	Empathy       int    `json:"empathy" yaml:"empathy"`
	Patience      int    `json:"patience" yaml:"patience"`
	Assertiveness int    `json:"assertiveness" yaml:"assertiveness"`
}

// Agent is a persona from the static agent registry
type Agent struct {
	ID          string      `json:"id" yaml:"id"`
	Name        string      `json:"name" yaml:"name"`
	Specialty   string      `json:"specialty" yaml:"specialty"`
	Personality Personality `json:"personality" yaml:"personality"`
	Expertise   []string    `json:"expertise" yaml:"expertise"`
}

// Link is a navigation hint attached to a reply
type Link struct {
	Label string `json:"label" yaml:"label"`
	URL   string `json:"url" yaml:"url"`
}

// ResponseEnvelope is the final reply returned to the caller
type ResponseEnvelope struct {
	Text         string   `json:"text"`
	Confidence   float64  `json:"confidence"`
	Intent       string   `json:"intent"`
	Suggestions  []string `json:"suggestions,omitempty"`
	Links        []Link   `json:"links,omitempty"`
	FollowUps    []string `json:"follow_ups,omitempty"`
	Agent        *Agent   `json:"agent,omitempty"`
	SecurityNote string   `json:"security_note,omitempty"`
	Tier         string   `json:"tier"`
	Provider     string   `json:"provider,omitempty"`
}
