package security

import (
	"regexp"
	"strings"
	"sync"

	"rent360_assistant/pkg"
)

// Rule names the validator check that rejected a reply
type Rule string

const (
	RuleNone             Rule = ""
	RuleConfidentialData Rule = "confidential_data"
	RuleRestrictedTopic  Rule = "restricted_topic"
	RuleActionCommand    Rule = "action_command"
	RuleOtherUserData    Rule = "other_user_data"
)

// Fixed replies used when a candidate is rejected
const (
	ConfidentialMessage  = "Lo siento, no puedo compartir esa información. Por seguridad, te recomiendo contactar al soporte de Rent360 para obtener ayuda."
	RestrictedMessage    = "Lo siento, no puedo proporcionar información sobre ese tema. Te recomiendo contactar al soporte técnico para obtener ayuda especializada."
	ActionMessage        = "Para realizar cambios en tu cuenta o ejecutar acciones, por favor accede directamente a las secciones correspondientes del sistema o contacta al soporte."
	OtherUserDataMessage = "Lo siento, no puedo compartir información de otros usuarios. Solo puedo ayudarte con los datos de tu propia cuenta."
)

var confidentialSignatures = []*regexp.Regexp{
	// RUT, dotted and plain
	regexp.MustCompile(`\b\d{1,2}\.\d{3}\.\d{3}-[\dkK]\b`),
	regexp.MustCompile(`\b\d{7,8}-[\dkK]\b`),
	regexp.MustCompile(`\b\d{8,9}\b`),
	// card numbers
	regexp.MustCompile(`\b(?:\d{4}[ -]){3}\d{4}\b`),
	// account numbers
	regexp.MustCompile(`\b\d{10,}\b`),
	regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`),
	regexp.MustCompile(`(?i)(?:password|contraseña|clave|token|api[_ -]?key|secret|secreto)\s*[:=]\s*\S+`),
	regexp.MustCompile(`(?i)\b(?:host|hostname|servidor|server|database|db_[a-z_]+|port|puerto|ip|endpoint)\s*[:=]\s*\S+`),
	regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`),
	// amounts of one hundred million or more
	regexp.MustCompile(`\$\s?(?:\d{3}(?:\.\d{3}){2,}|\d{1,3}(?:\.\d{3}){3,})`),
}

var actionSignatures = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(?:eliminar|borrar|modificar|cambiar|actualizar|crear|ejecutar|delete|update|create|run|remove|drop)\b`),
	regexp.MustCompile(`(?i)\b(?:he|hemos)\s+(?:eliminado|borrado|modificado|cambiado|actualizado|creado|ejecutado)\b`),
}

var instructionalPhrases = []string{
	"aquí están los pasos", "estos son los pasos", "sigue estos pasos", "los pasos",
	"ve a ", "ir a ", "dirígete", "haz clic", "haga clic", "selecciona",
	"puedes", "podrás", "debes", "necesitas", "accede", "en la sección",
	"here are the steps", "go to", "click", "you can", "you need",
}

var otherUserSignatures = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(?:user named|usuario llamado|usuaria llamada|cliente llamad[oa]|inquilin[oa] llamad[oa]|propietari[oa] llamad[oa])\s+\S+`),
	regexp.MustCompile(`(?i)\b(?:email|e-mail|correo|tel[eé]fono|rut|direcci[oó]n|phone|address)\s+(?:of|de|del)\s+(?:otro usuario|otra usuaria|el usuario|la usuaria|[A-ZÁÉÍÓÚÑ][\p{L}]+)\s+(?:is|es)\b`),
	regexp.MustCompile(`(?i)\bdatos de otros? usuarios?\s+(?:son|es)\b`),
}

// Verdict is the outcome of validating one candidate reply
type Verdict struct {
	Text     string
	Rule     Rule
	Replaced bool
}

// Validator scrubs candidate replies against a security context
type Validator struct {
	sensitive []string
	topics    sync.Map // topic -> *regexp.Regexp
}

// NewValidator creates a validator. Sensitive subjects are checked for
// every role without all_data access.
func NewValidator(sensitiveSubjects []string) *Validator {
	return &Validator{sensitive: sensitiveSubjects}
}

// Validate runs the checks in order and replaces the whole reply on the
// first hit. It never fails.
func (v *Validator) Validate(candidate string, ctx Context) Verdict {
	for _, re := range confidentialSignatures {
		if re.MatchString(candidate) {
			return reject(ConfidentialMessage, RuleConfidentialData)
		}
	}

	lower := strings.ToLower(candidate)

	if !ctx.AllowsAll() {
		topics := ctx.RestrictedTopics
		if ctx.MaxDataAccess != pkg.AccessAllData {
			topics = append(append([]string{}, topics...), v.sensitive...)
		}
		for _, topic := range topics {
			if v.topicPattern(topic).MatchString(lower) {
				return reject(RestrictedMessage, RuleRestrictedTopic)
			}
		}
	}

	if !ctx.CanExecuteActions && matchesAny(actionSignatures, lower) && !instructional(lower) {
		return reject(ActionMessage, RuleActionCommand)
	}

	if matchesAny(otherUserSignatures, candidate) {
		return reject(OtherUserDataMessage, RuleOtherUserData)
	}

	return Verdict{Text: candidate}
}

// topicPattern matches a topic only in possessive or assignment form,
// such as "tu seguridad es", "la base de datos es db01" or "servidor: x"
func (v *Validator) topicPattern(topic string) *regexp.Regexp {
	if cached, ok := v.topics.Load(topic); ok {
		return cached.(*regexp.Regexp)
	}
	quoted := regexp.QuoteMeta(strings.ToLower(topic))
	qualifier := `(?:\s+(?:de|del|of)\s+[\p{L}\p{N}_.-]+)?`
	possessive := `(?:tu|tus|su|sus|mi|mis|your|my)\s+` + quoted + qualifier +
		`(?:\s*[:=]|\s+(?:es|son|está|están|is|are)(?:[^\p{L}]|$))`
	assignment := `(?:(?:el|la|los|las|the)\s+)?` + quoted + qualifier +
		`(?:\s*[:=]\s*\S|\s+(?:es|son|is|are)\s+["'“]?[\p{L}\p{N}_./@-]*[\d/:@_][\p{L}\p{N}_./:@-]*)`
	re := regexp.MustCompile(`(?:^|[^\p{L}])(?:` + possessive + `|` + assignment + `)`)
	v.topics.Store(topic, re)
	return re
}

func instructional(lower string) bool {
	for _, phrase := range instructionalPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

func matchesAny(res []*regexp.Regexp, text string) bool {
	for _, re := range res {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

func reject(text string, rule Rule) Verdict {
	return Verdict{Text: text, Rule: rule, Replaced: true}
}
