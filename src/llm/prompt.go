package llm

import (
	"strings"

	"rent360_assistant/internal/security"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
)

// promptVar is the template variable carrying the full secure prompt
const promptVar = "prompt"

// BuildSecurePrompt places the policy preamble ahead of the user
// message, followed by the rendered history, if any
func BuildSecurePrompt(ctx security.Context, message, history string) string {
	var b strings.Builder
	b.WriteString(ctx.PolicyText())
	b.WriteString("\nPregunta del usuario: ")
	b.WriteString(message)
	b.WriteString("\n\n")
	if history != "" {
		b.WriteString(history)
		b.WriteString("\n")
	}
	b.WriteString("Respuesta:\n")
	return b.String()
}

// createTemplate wraps the prebuilt prompt in a single user message.
// The prompt is passed as a variable so braces inside it are never parsed.
func createTemplate() prompt.ChatTemplate {
	return prompt.FromMessages(schema.FString,
		schema.UserMessage("{"+promptVar+"}"),
	)
}
