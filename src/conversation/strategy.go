package conversation

import (
	"strings"

	"rent360_assistant/pkg"
)

// ContextStrategy renders prior turns for a model prompt
type ContextStrategy interface {
	BuildContext(turns []pkg.Turn) string
	GetMaxTurns() int
}

// ====================== Provider ======================
// HistoryStrategy keeps the last maxTurns turns as "role: content" lines
type HistoryStrategy struct {
	maxTurns int
}

func NewHistoryStrategy(maxTurns int) *HistoryStrategy {
	return &HistoryStrategy{maxTurns: maxTurns}
}

func (s *HistoryStrategy) GetMaxTurns() int {
	return s.maxTurns
}

func (s *HistoryStrategy) BuildContext(turns []pkg.Turn) string {
	recent := trimTail(turns, s.maxTurns)
	if len(recent) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("Historial de conversación:\n")
	for _, turn := range recent {
		role := turn.Role
		if role != "assistant" {
			role = "user"
		}
		b.WriteString(role + ": " + turn.Content + "\n")
	}
	return b.String()
}

// Helper function
func trimTail(turns []pkg.Turn, maxTurns int) []pkg.Turn {
	if maxTurns <= 0 || len(turns) <= maxTurns {
		return turns
	}
	return turns[len(turns)-maxTurns:]
}
