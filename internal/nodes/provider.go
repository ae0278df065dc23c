package nodes

import (
	"context"
	"fmt"
	"time"

	"rent360_assistant/internal/core"
	"rent360_assistant/internal/knowledge"
	"rent360_assistant/pkg"
	"rent360_assistant/src/conversation"
	"rent360_assistant/src/llm"
)

const (
	// DefaultProviderTimeout bounds a single provider call
	DefaultProviderTimeout = 30 * time.Second
	promptHistoryTurns     = 5
)

// ProviderNode asks the external AI provider for a reply
type ProviderNode struct {
	provider  llm.Provider
	responder *knowledge.Responder
	history   conversation.ContextStrategy
	timeout   time.Duration
}

// NewProviderNode creates a new provider tier. A nil provider makes the
// tier a pass-through.
func NewProviderNode(provider llm.Provider, responder *knowledge.Responder, timeout time.Duration) *ProviderNode {
	if timeout <= 0 {
		timeout = DefaultProviderTimeout
	}
	return &ProviderNode{
		provider:  provider,
		responder: responder,
		history:   conversation.NewHistoryStrategy(promptHistoryTurns),
		timeout:   timeout,
	}
}

// Name returns the tier name
func (p *ProviderNode) Name() string {
	return "provider"
}

// Attempt makes exactly one provider call under the tier timeout.
// Caller cancellation does not cut the call short.
func (p *ProviderNode) Attempt(ctx context.Context, turn *core.Turn) (core.TierResult, error) {
	if p.provider == nil {
		return core.Continue(), nil
	}

	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	defer cancel()

	prompt := llm.BuildSecurePrompt(turn.Security, turn.Message.Text, p.history.BuildContext(turn.Message.History))
	completion, err := p.provider.Generate(callCtx, prompt)
	if err != nil {
		return core.TierResult{}, fmt.Errorf("provider %s: %w", p.provider.Name(), err)
	}

	var suggestions []string
	if p.responder != nil {
		suggestions = p.responder.Suggestions(turn.Intent.Intent, turn.Message.Role)
	}
	return core.Accepted(pkg.ResponseEnvelope{
		Text:        completion.Text,
		Confidence:  completion.Confidence,
		Intent:      turn.Intent.Intent,
		Suggestions: suggestions,
		Provider:    completion.Provider,
	}), nil
}
