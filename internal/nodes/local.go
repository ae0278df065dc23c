package nodes

import (
	"context"

	"rent360_assistant/internal/agents"
	"rent360_assistant/internal/core"
	"rent360_assistant/internal/knowledge"
)

// LocalNode is the guaranteed-termination tier: knowledge base plus agent
type LocalNode struct {
	responder *knowledge.Responder
	selector  *agents.Selector
}

// NewLocalNode creates a new local tier
func NewLocalNode(responder *knowledge.Responder, selector *agents.Selector) *LocalNode {
	return &LocalNode{responder: responder, selector: selector}
}

// Name returns the tier name
func (l *LocalNode) Name() string {
	return "local"
}

// Attempt always accepts. A security note is returned without a persona.
func (l *LocalNode) Attempt(_ context.Context, turn *core.Turn) (core.TierResult, error) {
	env := l.responder.Respond(turn.Intent, turn.Message.Role, turn.Security)
	if l.selector != nil && env.SecurityNote == "" {
		selection := l.selector.Select(turn.Intent, turn.Message.Role, turn.Sentiment, turn.Memory, turn.Message.Text)
		agent := selection.Agent
		env.Agent = &agent
	}
	return core.Accepted(env), nil
}
