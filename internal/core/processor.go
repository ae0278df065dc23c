package core

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"rent360_assistant/internal/learning"
	"rent360_assistant/internal/nlu"
	"rent360_assistant/internal/security"
	"rent360_assistant/pkg"
	"rent360_assistant/src/conversation"

	"github.com/rs/zerolog"
)

const (
	// MaxInputRunes caps the message text
	MaxInputRunes = 10000
	// MaxHistoryTurns caps the prior turns kept on a message
	MaxHistoryTurns = 20
	// AnonymousUser owns the memory of messages without a user id
	AnonymousUser = "anonymous"

	// ApologyMessage is returned when no tier accepts the turn
	ApologyMessage = "Lo siento, en este momento no puedo responder tu consulta. Por favor intenta nuevamente o contacta al soporte de Rent360."

	clarificationBelow = 0.6
)

// Dependencies are the shared components a Processor runs on
type Dependencies struct {
	Sentiment  *nlu.SentimentAnalyzer
	Classifier *nlu.Classifier
	Security   *security.Builder
	Validator  *security.Validator
	Memory     *conversation.Memory
	Learner    *learning.Engine
	Logger     zerolog.Logger
}

// Processor runs the resolution state machine for one message at a time.
// It is safe for concurrent use; per-turn state lives in Turn.
type Processor struct {
	deps  Dependencies
	tiers []Tier
}

// NewProcessor creates a processor trying tiers in order
func NewProcessor(deps Dependencies, tiers ...Tier) (*Processor, error) {
	if deps.Sentiment == nil || deps.Classifier == nil || deps.Security == nil || deps.Validator == nil {
		return nil, errors.New("processor requires sentiment, classifier, security and validator")
	}
	if deps.Memory == nil {
		return nil, errors.New("processor requires a memory service")
	}
	if len(tiers) == 0 {
		return nil, errors.New("processor requires at least one tier")
	}
	return &Processor{deps: deps, tiers: tiers}, nil
}

// Handle never fails: every message ends in a validated envelope
func (p *Processor) Handle(ctx context.Context, msg pkg.Message) pkg.ResponseEnvelope {
	return p.Process(ctx, msg).Envelope
}

// Process is Handle plus the turn state, for callers that inspect it
func (p *Processor) Process(ctx context.Context, msg pkg.Message) Result {
	start := time.Now()
	turn := &Turn{Message: Sanitize(msg)}
	turn.enter(StageReceived)

	log := p.deps.Logger.With().
		Str("user_id", turn.Message.UserID).
		Str("role", string(turn.Message.Role)).
		Logger()

	// ===== Context =====
	turn.Sentiment = p.deps.Sentiment.Analyze(turn.Message.Text)

	entries, err := p.deps.Memory.Load(ctx, turn.Message.UserID)
	if err != nil {
		log.Warn().Err(err).Msg("memory load failed, continuing without memory")
		entries = nil
	}
	turn.Memory = conversation.Summarize(entries, turn.Message.Text)

	turn.Intent = p.deps.Classifier.Classify(turn.Message.Text, turn.Message.Role, turn.Memory.Topics)
	turn.Security = p.deps.Security.Build(turn.Message.Role)
	turn.enter(StageClassified)

	log = log.With().Str("intent", turn.Intent.Intent).Logger()
	log.Debug().
		Float64("confidence", turn.Intent.Confidence).
		Str("emotion", string(turn.Sentiment.Emotion)).
		Strs("memory_topics", turn.Memory.Topics).
		Msg("message classified")

	// ===== Tiers =====
	env, accepted := p.resolve(ctx, turn, log)
	if !accepted {
		log.Error().Msg("no tier accepted the turn")
		env = pkg.ResponseEnvelope{
			Text:   ApologyMessage,
			Intent: turn.Intent.Intent,
			Tier:   "none",
		}
	}

	// ===== Validation =====
	verdict := p.deps.Validator.Validate(env.Text, turn.Security)
	if verdict.Replaced {
		log.Warn().
			Str("tier", env.Tier).
			Str("rule", string(verdict.Rule)).
			Msg("reply replaced by validator")
		env.Text = verdict.Text
		env.SecurityNote = verdict.Text
	}
	turn.enter(StageValidated)

	// ===== Recording =====
	outcome := OutcomeFor(env, verdict)
	entryID := p.record(ctx, turn, env, outcome, log)
	turn.enter(StageRecorded)

	turn.enter(StageDone)
	log.Debug().
		Interface("stages", turn.Stages).
		Dur("elapsed", time.Since(start)).
		Msg("turn done")

	return Result{Envelope: env, Outcome: outcome, Verdict: verdict, Turn: turn, EntryID: entryID}
}

// resolve runs the tiers in order until one accepts
func (p *Processor) resolve(ctx context.Context, turn *Turn, log zerolog.Logger) (pkg.ResponseEnvelope, bool) {
	for i, tier := range p.tiers {
		n := i + 1
		turn.enter(TierAttempted(n))
		log.Info().
			Str("tier", tier.Name()).
			Float64("confidence", turn.Intent.Confidence).
			Msg("tier attempted")

		result, err := tier.Attempt(ctx, turn)
		if err != nil {
			log.Warn().
				Str("tier", tier.Name()).
				Err(err).
				Msg("tier unavailable, falling through")
			continue
		}

		env, ok := result.Envelope()
		if !ok {
			log.Debug().Str("tier", tier.Name()).Msg("tier declined")
			continue
		}

		env.Tier = tier.Name()
		if env.Intent == "" {
			env.Intent = turn.Intent.Intent
		}
		turn.enter(TierAccepted(n))
		log.Info().
			Str("tier", tier.Name()).
			Float64("confidence", env.Confidence).
			Msg("tier accepted")
		return env, true
	}
	return pkg.ResponseEnvelope{}, false
}

// record appends to memory and feeds the learner, returning the memory
// entry id. Failures are logged only.
func (p *Processor) record(ctx context.Context, turn *Turn, env pkg.ResponseEnvelope, outcome pkg.Outcome, log zerolog.Logger) string {
	entry := pkg.MemoryEntry{
		Topic:     turn.Intent.Intent,
		Sentiment: turn.Sentiment.Emotion,
		Outcome:   outcome,
		Entities:  turn.Intent.Entities,
	}
	if env.Agent != nil {
		entry.AgentUsed = env.Agent.ID
	}
	var entryID string
	if stored, err := p.deps.Memory.Append(ctx, turn.Message.UserID, entry); err != nil {
		log.Warn().Err(err).Msg("memory append failed")
	} else {
		entryID = stored.ID
	}

	if p.deps.Learner != nil {
		insights, err := p.deps.Learner.Learn(ctx, learning.Signal{
			UserID:   turn.Message.UserID,
			Role:     turn.Message.Role,
			Intent:   turn.Intent.Intent,
			Message:  turn.Message.Text,
			Response: env.Text,
			Outcome:  outcome,
		})
		if err != nil {
			log.Warn().Err(err).Msg("learning update failed")
		} else if len(insights) > 0 {
			log.Debug().Int("insights", len(insights)).Msg("learning insights emitted")
		}
	}

	log.Info().
		Str("tier", env.Tier).
		Str("outcome", string(outcome)).
		Float64("confidence", env.Confidence).
		Msg("turn recorded")
	return entryID
}

// OutcomeFor classifies a finished turn for memory and learning
func OutcomeFor(env pkg.ResponseEnvelope, verdict security.Verdict) pkg.Outcome {
	switch {
	case verdict.Replaced || env.SecurityNote != "":
		return pkg.OutcomeEscalated
	case env.Confidence < clarificationBelow:
		return pkg.OutcomeClarificationNeeded
	default:
		return pkg.OutcomeResolved
	}
}

// Sanitize trims and bounds a message and normalizes its role
func Sanitize(msg pkg.Message) pkg.Message {
	text := strings.TrimSpace(strings.ToValidUTF8(msg.Text, ""))
	if utf8.RuneCountInString(text) > MaxInputRunes {
		text = string([]rune(text)[:MaxInputRunes])
	}

	userID := strings.TrimSpace(msg.UserID)
	if userID == "" {
		userID = AnonymousUser
	}

	history := msg.History
	if len(history) > MaxHistoryTurns {
		history = history[len(history)-MaxHistoryTurns:]
	}

	return pkg.Message{
		Text:    text,
		Role:    pkg.NormalizeRole(string(msg.Role)),
		UserID:  userID,
		History: append([]pkg.Turn(nil), history...),
	}
}
