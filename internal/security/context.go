package security

import (
	"fmt"
	"slices"
	"strings"

	"rent360_assistant/internal/config"
	"rent360_assistant/pkg"
)

// AllTopics is the wildcard allow-list sentinel
const AllTopics = "all"

// Context is the allow/deny policy derived from a role
type Context struct {
	Role              pkg.Role       `json:"role"`
	AllowedTopics     []string       `json:"allowed_topics"`
	RestrictedTopics  []string       `json:"restricted_topics"`
	MaxDataAccess     pkg.DataAccess `json:"max_data_access"`
	CanExecuteActions bool           `json:"can_execute_actions"`
}

// AllowsAll reports whether the allow-list is the wildcard
func (c Context) AllowsAll() bool {
	return slices.Contains(c.AllowedTopics, AllTopics)
}

// Allows reports whether topic is on the allow-list
func (c Context) Allows(topic string) bool {
	return c.AllowsAll() || slices.Contains(c.AllowedTopics, topic)
}

// Restricts reports whether topic is denied for the role
func (c Context) Restricts(topic string) bool {
	return slices.Contains(c.RestrictedTopics, topic)
}

// PolicyText renders the policy preamble placed ahead of the user message
func (c Context) PolicyText() string {
	var b strings.Builder
	b.WriteString("Eres un asistente virtual especializado en el sistema Rent360.\n\n")
	b.WriteString("INFORMACIÓN DE SEGURIDAD CRÍTICA:\n")
	fmt.Fprintf(&b, "- Solo puedes acceder a datos permitidos para este usuario (%s)\n", c.MaxDataAccess)
	if !c.CanExecuteActions {
		b.WriteString("- NO puedes ejecutar acciones del sistema\n")
		b.WriteString("- NO puedes modificar configuraciones\n")
	}
	b.WriteString("- NO puedes acceder a datos de otros usuarios\n")
	b.WriteString("- NO puedes proporcionar información sensible del sistema\n")
	b.WriteString("- SIEMPRE debes mantener la privacidad de los datos\n\n")
	fmt.Fprintf(&b, "ROL DEL USUARIO: %s\n", c.Role)
	fmt.Fprintf(&b, "TEMAS PERMITIDOS: %s\n", strings.Join(c.AllowedTopics, ", "))
	restricted := "ninguno"
	if len(c.RestrictedTopics) > 0 {
		restricted = strings.Join(c.RestrictedTopics, ", ")
	}
	fmt.Fprintf(&b, "TEMAS RESTRINGIDOS: %s\n\n", restricted)
	b.WriteString("INSTRUCCIONES:\n")
	b.WriteString("1. Solo responde preguntas relacionadas con las funcionalidades permitidas para este rol\n")
	b.WriteString("2. Si la pregunta es sobre temas restringidos, redirige al soporte humano\n")
	b.WriteString("3. Nunca reveles información técnica interna del sistema\n")
	b.WriteString("4. Mantén un tono amigable y profesional\n")
	b.WriteString("5. Si no sabes la respuesta, sugiere contactar al soporte\n")
	return b.String()
}

// Builder derives security contexts from the static profile table
type Builder struct {
	table   config.SecurityTable
	intents []config.IntentRule
}

// NewBuilder creates a builder. The intent table extends each role's
// allow-list with the topics of its relevant intents.
func NewBuilder(table config.SecurityTable, intents []config.IntentRule) *Builder {
	return &Builder{table: table, intents: intents}
}

// Build is a pure function of role; every call returns fresh slices
func (b *Builder) Build(role pkg.Role) Context {
	profile := b.table.Profile(role)

	allowed := slices.Clone(profile.Allowed)
	if slices.Contains(allowed, AllTopics) {
		allowed = []string{AllTopics}
	} else {
		for _, rule := range b.intents {
			if rule.Topic != "" && rule.RelevantFor(role) {
				allowed = append(allowed, rule.Topic)
			}
		}
		allowed = sortedSet(allowed)
	}

	access := pkg.DataAccess(profile.MaxDataAccess)
	if access == "" {
		access = pkg.AccessOwnData
	}

	return Context{
		Role:              role,
		AllowedTopics:     allowed,
		RestrictedTopics:  sortedSet(slices.Clone(profile.Restricted)),
		MaxDataAccess:     access,
		CanExecuteActions: profile.CanExecuteActions,
	}
}

func sortedSet(values []string) []string {
	if len(values) == 0 {
		return []string{}
	}
	slices.Sort(values)
	return slices.Compact(values)
}
