package learning

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"rent360_assistant/pkg"

	"github.com/rs/zerolog"
)

const (
	successPatternMin = 5
	failurePatternMin = 3
	staleFrequency    = 3

	satisfiedAbove    = 3
	delightedAbove    = 4
	disappointedBelow = 3

	topQuestions         = 20
	suggestedQuestions   = 5
	topPatterns          = 10
	topPatternMinFreq    = 3
	lowPerformingRate    = 0.6
	lowPerformingMinFreq = 5
	lowSatisfactionRatio = 0.7
)

// ErrInvalidSatisfaction is returned by Rate for a score outside 1-5
var ErrInvalidSatisfaction = errors.New("satisfaction must be between 1 and 5")

// InsightKind names what an insight reports
type InsightKind string

const (
	InsightSuccessPattern   InsightKind = "success_pattern"
	InsightFailurePattern   InsightKind = "failure_pattern"
	InsightPositiveFeedback InsightKind = "positive_feedback"
	InsightNegativeFeedback InsightKind = "negative_feedback"
	InsightLengthPreference InsightKind = "length_preference"
)

// Insight is one observation surfaced by the engine
type Insight struct {
	Kind    InsightKind `json:"kind"`
	Pattern string      `json:"pattern,omitempty"`
	Key     string      `json:"key,omitempty"`
	Count   int         `json:"count,omitempty"`
	Detail  string      `json:"detail"`
}

// Signal is one learning observation for a finished turn
type Signal struct {
	UserID       string
	Role         pkg.Role
	Intent       string
	Message      string
	Response     string
	Outcome      pkg.Outcome
	Satisfaction int // 1-5, 0 when absent
}

// Key is the intent_role pattern key
func (s Signal) Key() string {
	return s.Intent + "_" + string(s.Role)
}

// Success reports whether the outcome counts as a success
func (s Signal) Success() bool {
	return s.Outcome == pkg.OutcomeResolved
}

// Global is the system-wide view of what the engine has learned
type Global struct {
	MostCommonQuestions   []QuestionCount `json:"most_common_questions"`
	TotalQuestions        int             `json:"total_questions"`
	RatedUsers            int             `json:"rated_users"`
	Ratings               int             `json:"ratings"`
	AverageSatisfaction   float64         `json:"average_satisfaction"` // 1-5, 0 when unrated
	TopPerformingPatterns []Pattern       `json:"top_performing_patterns"`
}

// SatisfactionRatio maps the average rating onto 0-1, 1 being all fives
func (g Global) SatisfactionRatio() float64 {
	if g.Ratings == 0 {
		return 0
	}
	return (g.AverageSatisfaction - 1) / 4
}

// Report bundles everything the engine can tell an operator
type Report struct {
	Insights     []Insight `json:"insights"`
	Global       Global    `json:"global"`
	Suggestions  []string  `json:"suggestions"`
	RolePatterns []Pattern `json:"role_patterns,omitempty"`
}

// Empty reports whether nothing was learned yet
func (r Report) Empty() bool {
	return len(r.Insights) == 0 && r.Global.TotalQuestions == 0 && r.Global.Ratings == 0
}

// Engine is the frequency heuristic learner
type Engine struct {
	store  Store
	logger zerolog.Logger
	now    func() time.Time
}

func NewEngine(store Store, logger zerolog.Logger) *Engine {
	return &Engine{store: store, logger: logger, now: time.Now}
}

// Learn counts a finished turn: its n-grams under the intent_role key and
// the question itself. A signal carrying a satisfaction score is also
// rated. It returns the insights triggered by this signal alone.
func (e *Engine) Learn(ctx context.Context, signal Signal) ([]Insight, error) {
	grams := NGrams(signal.Message)
	at := e.now().UTC()
	success := signal.Success()

	for _, gram := range grams {
		if err := e.store.RecordPattern(ctx, gram, signal.Key(), success, at); err != nil {
			return nil, fmt.Errorf("failed to record pattern: %w", err)
		}
	}
	if question := NormalizeQuestion(signal.Message); question != "" {
		if err := e.store.RecordQuestion(ctx, question); err != nil {
			return nil, fmt.Errorf("failed to record question: %w", err)
		}
	}

	e.logger.Debug().
		Str("user_id", signal.UserID).
		Str("key", signal.Key()).
		Bool("success", success).
		Int("patterns", len(grams)).
		Msg("learning signal recorded")

	if signal.Satisfaction <= 0 {
		return nil, nil
	}
	return e.rate(ctx, signal, grams)
}

// Rate applies an explicit rating to a turn Learn already counted. The
// n-gram counters are left untouched.
func (e *Engine) Rate(ctx context.Context, signal Signal) ([]Insight, error) {
	if signal.Satisfaction < 1 || signal.Satisfaction > 5 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidSatisfaction, signal.Satisfaction)
	}
	return e.rate(ctx, signal, NGrams(signal.Message))
}

func (e *Engine) rate(ctx context.Context, signal Signal, grams []string) ([]Insight, error) {
	if signal.UserID != "" {
		delta := -1
		if signal.Satisfaction > satisfiedAbove {
			delta = 1
		}
		if err := e.store.RecordLength(ctx, signal.UserID, BucketFor(signal.Response), delta); err != nil {
			return nil, fmt.Errorf("failed to record length preference: %w", err)
		}
		if err := e.store.RecordSatisfaction(ctx, signal.UserID, signal.Satisfaction); err != nil {
			return nil, fmt.Errorf("failed to record satisfaction: %w", err)
		}
	}

	if len(grams) == 0 {
		return nil, nil
	}
	success := signal.Success()
	switch {
	case success && signal.Satisfaction > delightedAbove:
		return []Insight{{
			Kind:    InsightPositiveFeedback,
			Pattern: grams[0],
			Key:     signal.Key(),
			Detail:  fmt.Sprintf("respuesta exitosa para %q", grams[0]),
		}}, nil
	case !success && signal.Satisfaction < disappointedBelow:
		return []Insight{{
			Kind:    InsightNegativeFeedback,
			Pattern: grams[0],
			Key:     signal.Key(),
			Detail:  fmt.Sprintf("respuesta a mejorar para %q", grams[0]),
		}}, nil
	}
	return nil, nil
}

// GetInsights surfaces cumulative success and failure patterns and, for
// a user id, that user's preferred reply length
func (e *Engine) GetInsights(ctx context.Context, userID string) ([]Insight, error) {
	patterns, err := e.store.Patterns(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read patterns: %w", err)
	}

	var successes, failures []Insight
	for _, p := range patterns {
		if p.Successes > successPatternMin {
			successes = append(successes, Insight{
				Kind:    InsightSuccessPattern,
				Pattern: p.Text,
				Key:     p.Key,
				Count:   p.Successes,
				Detail:  fmt.Sprintf("patrón exitoso (%.0f%% de éxito)", p.SuccessRate()*100),
			})
		}
		if p.Failures > failurePatternMin {
			failures = append(failures, Insight{
				Kind:    InsightFailurePattern,
				Pattern: p.Text,
				Key:     p.Key,
				Count:   p.Failures,
				Detail:  fmt.Sprintf("patrón con fallas (%.0f%% de éxito)", p.SuccessRate()*100),
			})
		}
	}
	sortInsights(successes)
	sortInsights(failures)
	insights := append(successes, failures...)

	if userID != "" {
		scores, err := e.store.LengthScores(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("failed to read length scores: %w", err)
		}
		if bucket, score, ok := preferred(scores); ok {
			insights = append(insights, Insight{
				Kind:   InsightLengthPreference,
				Count:  score,
				Detail: string(bucket),
			})
		}
	}
	return insights, nil
}

// GlobalInsights summarizes questions, ratings and the best patterns
// across every user
func (e *Engine) GlobalInsights(ctx context.Context) (Global, error) {
	questions, err := e.store.Questions(ctx)
	if err != nil {
		return Global{}, fmt.Errorf("failed to read questions: %w", err)
	}
	tallies, err := e.store.Satisfaction(ctx)
	if err != nil {
		return Global{}, fmt.Errorf("failed to read satisfaction: %w", err)
	}
	patterns, err := e.store.Patterns(ctx)
	if err != nil {
		return Global{}, fmt.Errorf("failed to read patterns: %w", err)
	}

	var global Global
	for _, q := range questions {
		global.TotalQuestions += q.Frequency
	}
	slices.SortFunc(questions, func(a, b QuestionCount) int {
		return cmp.Or(cmp.Compare(b.Frequency, a.Frequency), cmp.Compare(a.Question, b.Question))
	})
	global.MostCommonQuestions = questions[:min(len(questions), topQuestions)]

	// mean of the per-user averages
	var sum float64
	for _, tally := range tallies {
		if tally.Count == 0 {
			continue
		}
		global.RatedUsers++
		global.Ratings += tally.Count
		sum += tally.Average()
	}
	if global.RatedUsers > 0 {
		global.AverageSatisfaction = sum / float64(global.RatedUsers)
	}

	top := slices.DeleteFunc(slices.Clone(patterns), func(p Pattern) bool {
		return p.Frequency() < topPatternMinFreq
	})
	slices.SortStableFunc(top, func(a, b Pattern) int {
		return cmp.Or(cmp.Compare(b.SuccessRate(), a.SuccessRate()), cmp.Compare(b.Frequency(), a.Frequency()))
	})
	global.TopPerformingPatterns = top[:min(len(top), topPatterns)]
	return global, nil
}

// ImprovementSuggestions lists what operators should look at: keys whose
// patterns keep failing, the questions worth a canned answer and low
// overall satisfaction
func (e *Engine) ImprovementSuggestions(ctx context.Context) ([]string, error) {
	global, err := e.GlobalInsights(ctx)
	if err != nil {
		return nil, err
	}
	patterns, err := e.store.Patterns(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read patterns: %w", err)
	}

	var suggestions []string
	var weak []string
	for _, p := range patterns {
		if p.Frequency() >= lowPerformingMinFreq && p.SuccessRate() < lowPerformingRate && !slices.Contains(weak, p.Key) {
			weak = append(weak, p.Key)
		}
	}
	if len(weak) > 0 {
		suggestions = append(suggestions, "Considerar mejorar las respuestas para: "+strings.Join(weak, ", "))
	}

	if n := min(len(global.MostCommonQuestions), suggestedQuestions); n > 0 {
		questions := make([]string, n)
		for i, q := range global.MostCommonQuestions[:n] {
			questions[i] = q.Question
		}
		suggestions = append(suggestions, "Crear respuestas predefinidas para las preguntas más frecuentes: "+strings.Join(questions, ", "))
	}

	if global.Ratings > 0 && global.SatisfactionRatio() < lowSatisfactionRatio {
		suggestions = append(suggestions, "La satisfacción general está por debajo del 70%. Considerar revisar las respuestas del asistente.")
	}
	return suggestions, nil
}

// PatternsForRole returns the patterns learned for role, most frequent
// first
func (e *Engine) PatternsForRole(ctx context.Context, role pkg.Role) ([]Pattern, error) {
	patterns, err := e.store.Patterns(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read patterns: %w", err)
	}
	suffix := "_" + string(role)
	out := slices.DeleteFunc(patterns, func(p Pattern) bool {
		return !strings.HasSuffix(p.Key, suffix)
	})
	slices.SortStableFunc(out, func(a, b Pattern) int {
		return cmp.Compare(b.Frequency(), a.Frequency())
	})
	return out, nil
}

// Report gathers the insights, global view and suggestions. A non-empty
// role adds that role's patterns.
func (e *Engine) Report(ctx context.Context, userID string, role pkg.Role) (Report, error) {
	var report Report
	var err error
	if report.Insights, err = e.GetInsights(ctx, userID); err != nil {
		return Report{}, err
	}
	if report.Global, err = e.GlobalInsights(ctx); err != nil {
		return Report{}, err
	}
	if report.Suggestions, err = e.ImprovementSuggestions(ctx); err != nil {
		return Report{}, err
	}
	if role != "" {
		if report.RolePatterns, err = e.PatternsForRole(ctx, role); err != nil {
			return Report{}, err
		}
	}
	return report, nil
}

// Cleanup drops patterns unused for retentionDays that were seen fewer than three times
func (e *Engine) Cleanup(ctx context.Context, retentionDays int) (int, error) {
	cutoff := e.now().UTC().AddDate(0, 0, -retentionDays)
	removed, err := e.store.DeleteStale(ctx, cutoff, staleFrequency)
	if err != nil {
		return 0, fmt.Errorf("failed to clean up patterns: %w", err)
	}
	e.logger.Info().
		Time("cutoff", cutoff).
		Int("removed", removed).
		Msg("learning patterns cleaned up")
	return removed, nil
}

func sortInsights(insights []Insight) {
	slices.SortStableFunc(insights, func(a, b Insight) int {
		return cmp.Or(
			cmp.Compare(b.Count, a.Count),
			cmp.Compare(a.Pattern, b.Pattern),
			cmp.Compare(a.Key, b.Key),
		)
	})
}

// preferred returns the highest scored bucket; ties keep Buckets order
func preferred(scores map[LengthBucket]int) (LengthBucket, int, bool) {
	if len(scores) == 0 {
		return "", 0, false
	}
	var best LengthBucket
	bestScore := 0
	found := false
	for _, bucket := range Buckets {
		score, ok := scores[bucket]
		if !ok {
			continue
		}
		if !found || score > bestScore {
			best, bestScore, found = bucket, score, true
		}
	}
	return best, bestScore, found
}
