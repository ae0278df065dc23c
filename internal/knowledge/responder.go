package knowledge

import (
	"hash/fnv"
	"regexp"
	"slices"
	"strings"

	"rent360_assistant/internal/config"
	"rent360_assistant/internal/security"
	"rent360_assistant/pkg"
)

const (
	// SecurityNote replaces the whole reply when the intent's topic is denied for the role
	SecurityNote = "Esta consulta involucra información restringida para tu rol. Por tu seguridad, te recomiendo contactar al soporte de Rent360."

	fallbackConfidence = 0.5
	maxFollowUps       = 2

	generalEntry    = "general"
	defaultKey      = "default"
	defaultLocation = "tu ubicación"
	defaultAmount   = "el monto indicado"
)

var priceContext = regexp.MustCompile(`(?i)(precio|pago|pagar|monto|arriendo|presupuesto|costo|tarifa)`)

// Responder answers from the canned knowledge base
type Responder struct {
	kb     config.KnowledgeBase
	topics map[string]string
}

// NewResponder creates a responder. The intent table maps each intent to
// the security topic checked before answering.
func NewResponder(kb config.KnowledgeBase, intents []config.IntentRule) *Responder {
	topics := make(map[string]string, len(intents))
	for _, rule := range intents {
		topics[rule.Name] = rule.Topic
	}
	return &Responder{kb: kb, topics: topics}
}

// Violates reports whether answering intent would touch a topic the context denies
func (r *Responder) Violates(intent string, ctx security.Context) bool {
	topic, ok := r.topics[intent]
	if !ok || topic == "" {
		return false
	}
	return ctx.Restricts(topic)
}

// Respond builds the local reply for an intent result
func (r *Responder) Respond(result pkg.IntentResult, role pkg.Role, ctx security.Context) pkg.ResponseEnvelope {
	if r.Violates(result.Intent, ctx) {
		return pkg.ResponseEnvelope{
			Text:         SecurityNote,
			Confidence:   1.0,
			Intent:       result.Intent,
			SecurityNote: SecurityNote,
		}
	}

	entry, ok := r.lookup(result.Intent, role)
	if !ok || len(entry.Responses) == 0 {
		return pkg.ResponseEnvelope{
			Text:       r.fallback(role),
			Confidence: fallbackConfidence,
			Intent:     result.Intent,
			FollowUps:  r.followUps(result.Intent, role),
		}
	}

	text := entry.Responses[variant(result, len(entry.Responses))]
	text = r.personalize(text, result, role)
	if extra := r.kb.SubIntents[result.Intent][result.SubIntent]; result.SubIntent != "" && extra != "" {
		text += " " + extra
	}

	return pkg.ResponseEnvelope{
		Text:        text,
		Confidence:  entry.Confidence,
		Intent:      result.Intent,
		Suggestions: slices.Clone(entry.Suggestions),
		Links:       slices.Clone(entry.Links),
		FollowUps:   r.followUps(result.Intent, role),
	}
}

// Suggestions returns the suggestion list of the entry answering intent for role
func (r *Responder) Suggestions(intent string, role pkg.Role) []string {
	entry, ok := r.lookup(intent, role)
	if !ok {
		return nil
	}
	return slices.Clone(entry.Suggestions)
}

// Label returns the display label of a role
func (r *Responder) Label(role pkg.Role) string {
	if label, ok := r.kb.RoleLabels[string(role)]; ok {
		return label
	}
	return string(role)
}

func (r *Responder) lookup(intent string, role pkg.Role) (config.KnowledgeEntry, bool) {
	byRole, ok := r.kb.Entries[intent]
	if !ok {
		return config.KnowledgeEntry{}, false
	}
	if entry, ok := byRole[string(role)]; ok {
		return entry, true
	}
	entry, ok := byRole[generalEntry]
	return entry, ok
}

func (r *Responder) fallback(role pkg.Role) string {
	if text, ok := r.kb.Fallbacks[string(role)]; ok {
		return text
	}
	return r.kb.Fallbacks[defaultKey]
}

// personalize fills the template placeholders from extracted entities
func (r *Responder) personalize(text string, result pkg.IntentResult, role pkg.Role) string {
	label := r.Label(role)
	if mentioned := pkg.Role(result.Entity(pkg.EntityRole)); mentioned != "" && mentioned != role {
		label = r.Label(mentioned)
	}

	location := defaultLocation
	if value := result.Entity(pkg.EntityLocation); value != "" {
		location = value
	}

	amount := defaultAmount
	if value := result.Entity(pkg.EntityAmount); value != "" && priceContext.MatchString(text) {
		amount = value
	}

	return strings.NewReplacer(
		"{rol}", label,
		"{ubicacion}", location,
		"{monto}", amount,
	).Replace(text)
}

// followUps walks role/intent, role/default, default/intent, default/default
func (r *Responder) followUps(intent string, role pkg.Role) []string {
	candidates := [][2]string{
		{string(role), intent},
		{string(role), defaultKey},
		{defaultKey, intent},
		{defaultKey, defaultKey},
	}
	for _, c := range candidates {
		if questions, ok := r.kb.FollowUps[c[0]][c[1]]; ok && len(questions) > 0 {
			return slices.Clone(questions[:min(maxFollowUps, len(questions))])
		}
	}
	return nil
}

// variant picks a response deterministically from the classification
func variant(result pkg.IntentResult, n int) int {
	if n <= 1 {
		return 0
	}
	keys := make([]string, 0, len(result.Entities))
	for k := range result.Entities {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	h := fnv.New32a()
	h.Write([]byte(result.Intent + "|" + result.SubIntent))
	for _, k := range keys {
		h.Write([]byte("|" + k + "=" + result.Entities[k]))
	}
	return int(h.Sum32() % uint32(n))
}
