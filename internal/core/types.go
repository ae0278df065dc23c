package core

import (
	"context"
	"fmt"

	"rent360_assistant/internal/security"
	"rent360_assistant/pkg"
)

// Stage is a state of the resolution state machine
type Stage string

const (
	StageReceived   Stage = "received"
	StageClassified Stage = "classified"
	StageValidated  Stage = "validated"
	StageRecorded   Stage = "recorded"
	StageDone       Stage = "done"
)

// TierAttempted is the stage entered before running tier n (1-based)
func TierAttempted(n int) Stage {
	return Stage(fmt.Sprintf("tier%d_attempted", n))
}

// TierAccepted is the stage entered when tier n (1-based) produced the reply
func TierAccepted(n int) Stage {
	return Stage(fmt.Sprintf("tier%d_accepted", n))
}

// Turn is the request-scoped state threaded through the tiers
type Turn struct {
	Message   pkg.Message
	Sentiment pkg.SentimentResult
	Memory    pkg.MemoryContext
	Intent    pkg.IntentResult
	Security  security.Context
	Stages    []Stage
}

func (t *Turn) enter(stage Stage) {
	t.Stages = append(t.Stages, stage)
}

// TierResult is either Accepted(envelope) or Continue()
type TierResult struct {
	accepted bool
	envelope pkg.ResponseEnvelope
}

// Accepted ends resolution with env
func Accepted(env pkg.ResponseEnvelope) TierResult {
	return TierResult{accepted: true, envelope: env}
}

// Continue passes the turn to the next tier
func Continue() TierResult {
	return TierResult{}
}

// Envelope returns the accepted envelope, if any
func (r TierResult) Envelope() (pkg.ResponseEnvelope, bool) {
	return r.envelope, r.accepted
}

// Tier is one resolution strategy. An error means the tier was
// unavailable this turn; the processor logs it and moves on.
type Tier interface {
	Name() string
	Attempt(ctx context.Context, turn *Turn) (TierResult, error)
}

// Result is the outcome of one processed message
type Result struct {
	Envelope pkg.ResponseEnvelope
	Outcome  pkg.Outcome
	Verdict  security.Verdict
	Turn     *Turn
	// EntryID is the memory entry recorded for the turn, empty when the
	// append failed
	EntryID string
}
