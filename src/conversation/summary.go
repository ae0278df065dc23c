package conversation

import (
	"fmt"
	"slices"
	"strings"
	"unicode"

	"rent360_assistant/pkg"
)

// SummaryWindow is the number of recent entries Summarize looks at
const SummaryWindow = 10

var continuationWords = []string{
	"y", "pero", "sigue", "todavía", "todavia", "aún", "aun", "además", "ademas",
	"también", "tambien", "entonces", "otra", "otro", "igual",
}

// Summarize derives the memory context from the most recent entries.
// It never fails; no entries yield an empty context.
func Summarize(entries []pkg.MemoryEntry, currentText string) pkg.MemoryContext {
	window := entries[max(0, len(entries)-SummaryWindow):]

	result := pkg.MemoryContext{
		Topics:     []string{},
		Unresolved: []string{},
		Successful: []string{},
	}

	total, scored := 0, 0
	for _, entry := range window {
		if entry.Topic == "" {
			continue
		}
		result.Topics = appendUnique(result.Topics, entry.Topic)
		switch entry.Outcome {
		case pkg.OutcomeInProgress, pkg.OutcomeClarificationNeeded:
			result.Unresolved = appendUnique(result.Unresolved, entry.Topic)
		case pkg.OutcomeResolved:
			result.Successful = appendUnique(result.Successful, entry.Topic)
		}
		if entry.Satisfaction > 0 {
			total += entry.Satisfaction
			scored++
		}
	}

	if len(window) == 0 {
		result.Summary = "Sin conversaciones previas."
		return result
	}

	satisfaction := "N/A"
	if scored > 0 {
		satisfaction = fmt.Sprintf("%.1f", float64(total)/float64(scored))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Temas recientes: %s.", joinOrNone(result.Topics))
	if len(result.Unresolved) > 0 {
		fmt.Fprintf(&b, " Pendientes: %s.", strings.Join(result.Unresolved, ", "))
	}
	fmt.Fprintf(&b, " Satisfacción promedio: %s.", satisfaction)
	result.Summary = b.String()

	result.FollowUp = len(result.Unresolved) > 0 && isContinuation(currentText)
	return result
}

// isContinuation reports whether text opens like a continuation of the previous turn
func isContinuation(text string) bool {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	if len(fields) == 0 {
		return false
	}
	return slices.Contains(continuationWords, fields[0])
}

func appendUnique(list []string, value string) []string {
	if slices.Contains(list, value) {
		return list
	}
	return append(list, value)
}

func joinOrNone(values []string) string {
	if len(values) == 0 {
		return "ninguno"
	}
	return strings.Join(values, ", ")
}
