package config

import (
	"regexp"

	"rent360_assistant/pkg"
)

// Catalog holds every static registry the pipeline reads at runtime.
// It is built once at startup and shared read-only.
type Catalog struct {
	Intents   []IntentRule
	Security  SecurityTable
	Knowledge KnowledgeBase
	Agents    AgentRegistry
	Dataset   Dataset
	Lexicon   Lexicon
}

// ===== Intents =====

// IntentRule is one row of the prioritized intent rule table
type IntentRule struct {
	Name       string          `yaml:"name"`
	Topic      string          `yaml:"topic"`
	Weight     float64         `yaml:"weight"`
	Tags       []string        `yaml:"tags"`
	Roles      []string        `yaml:"roles"`
	Patterns   []string        `yaml:"patterns"`
	SubIntents []SubIntentRule `yaml:"sub_intents"`

	Matchers []*regexp.Regexp `yaml:"-"`
}

// SubIntentRule refines a winning intent
type SubIntentRule struct {
	Name     string   `yaml:"name"`
	Patterns []string `yaml:"patterns"`

	Matchers []*regexp.Regexp `yaml:"-"`
}

// RelevantFor reports whether the intent is on-topic for role
func (r IntentRule) RelevantFor(role pkg.Role) bool {
	for _, candidate := range r.Roles {
		if candidate == string(role) {
			return true
		}
	}
	return false
}

// ===== Security =====

// SecurityProfile is the static policy row for a role
type SecurityProfile struct {
	Allowed           []string `yaml:"allowed"`
	Restricted        []string `yaml:"restricted"`
	MaxDataAccess     string   `yaml:"max_data_access"`
	CanExecuteActions bool     `yaml:"can_execute_actions"`
}

// SecurityTable maps uppercased role names to profiles
type SecurityTable struct {
	Profiles          map[string]SecurityProfile `yaml:"profiles"`
	Default           SecurityProfile            `yaml:"default"`
	SensitiveSubjects []string                   `yaml:"sensitive_subjects"`
}

// Profile returns the profile for role, or the default one
func (t SecurityTable) Profile(role pkg.Role) SecurityProfile {
	if profile, ok := t.Profiles[role.Key()]; ok {
		return profile
	}
	return t.Default
}

// ===== Knowledge =====

// KnowledgeEntry is a canned answer for an intent and role
type KnowledgeEntry struct {
	Confidence  float64    `yaml:"confidence"`
	Responses   []string   `yaml:"responses"`
	Suggestions []string   `yaml:"suggestions"`
	Links       []pkg.Link `yaml:"links"`
}

// KnowledgeBase is the intent -> role -> entry lookup table
type KnowledgeBase struct {
	RoleLabels map[string]string                    `yaml:"role_labels"`
	Entries    map[string]map[string]KnowledgeEntry `yaml:"entries"`
	SubIntents map[string]map[string]string         `yaml:"sub_intents"`
	Fallbacks  map[string]string                    `yaml:"fallbacks"`
	FollowUps  map[string]map[string][]string       `yaml:"follow_ups"`
}

// ===== Agents =====

// AgentRegistry is the ordered persona registry
type AgentRegistry struct {
	DefaultAgent     string              `yaml:"default_agent"`
	MaintenanceAgent string              `yaml:"maintenance_agent"`
	Agents           []pkg.Agent         `yaml:"agents"`
	RoleAgents       map[string][]string `yaml:"role_agents"`
}

// Find returns the agent with the given id
func (r AgentRegistry) Find(id string) (pkg.Agent, bool) {
	for _, agent := range r.Agents {
		if agent.ID == id {
			return agent, true
		}
	}
	return pkg.Agent{}, false
}

// ===== Dataset =====

// Example is one training pair of the dataset
type Example struct {
	Input      string  `yaml:"input"`
	Output     string  `yaml:"output"`
	Intent     string  `yaml:"intent"`
	Context    string  `yaml:"context"`
	Confidence float64 `yaml:"confidence"`
}

// IntentKeywords is an ordered keyword list for a dataset intent
type IntentKeywords struct {
	Intent   string   `yaml:"intent"`
	Keywords []string `yaml:"keywords"`
}

// Category is a named group of examples
type Category struct {
	Name     string    `yaml:"name"`
	Examples []Example `yaml:"examples"`
}

// Dataset is the role-indexed training dataset
type Dataset struct {
	GeneralCategory    string              `yaml:"general_category"`
	RoleCategories     map[string]string   `yaml:"role_categories"`
	IntentKeywords     []IntentKeywords    `yaml:"intent_keywords"`
	Suggestions        map[string][]string `yaml:"suggestions"`
	DefaultSuggestions []string            `yaml:"default_suggestions"`
	Categories         []Category          `yaml:"categories"`
}

// Category returns the examples of the named category
func (d Dataset) Category(name string) ([]Example, bool) {
	for _, category := range d.Categories {
		if category.Name == name {
			return category.Examples, true
		}
	}
	return nil, false
}

// RoleCategory returns the dataset entries specialized for role
func (d Dataset) RoleCategory(role pkg.Role) ([]Example, bool) {
	name, ok := d.RoleCategories[role.Key()]
	if !ok {
		return nil, false
	}
	return d.Category(name)
}

// ===== Lexicon =====

// SentimentFamily is a weighted pattern family of the sentiment analyzer
type SentimentFamily struct {
	Family   string      `yaml:"family"`
	Emotion  pkg.Emotion `yaml:"emotion"`
	Patterns []string    `yaml:"patterns"`

	Matchers []*regexp.Regexp `yaml:"-"`
}

// RoleMention recognizes a role named in free text
type RoleMention struct {
	Role     pkg.Role `yaml:"role"`
	Patterns []string `yaml:"patterns"`

	Matchers []*regexp.Regexp `yaml:"-"`
}

// Lexicon holds the keyword tables used for sentiment and entities
type Lexicon struct {
	Sentiment     []SentimentFamily `yaml:"sentiment"`
	Roles         []RoleMention     `yaml:"roles"`
	Amounts       []string          `yaml:"amounts"`
	PropertyTypes []string          `yaml:"property_types"`
	Locations     []string          `yaml:"locations"`
	Services      []string          `yaml:"services"`

	AmountMatchers []*regexp.Regexp `yaml:"-"`
}
