package core_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"rent360_assistant/internal/agents"
	"rent360_assistant/internal/config"
	"rent360_assistant/internal/core"
	"rent360_assistant/internal/knowledge"
	"rent360_assistant/internal/learning"
	"rent360_assistant/internal/nlu"
	"rent360_assistant/internal/nodes"
	"rent360_assistant/internal/security"
	"rent360_assistant/pkg"
	"rent360_assistant/src/conversation"
	"rent360_assistant/src/llm"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubProvider replies with a fixed completion or error and counts calls
type stubProvider struct {
	reply string
	err   error
	calls atomic.Int32
}

func (p *stubProvider) Name() string { return "stub" }

func (p *stubProvider) Generate(_ context.Context, _ string) (llm.Completion, error) {
	p.calls.Add(1)
	if p.err != nil {
		return llm.Completion{}, p.err
	}
	return llm.Completion{Text: p.reply, Confidence: 0.85, Provider: "stub"}, nil
}

type declineTier struct{}

func (declineTier) Name() string { return "decline" }

func (declineTier) Attempt(context.Context, *core.Turn) (core.TierResult, error) {
	return core.Continue(), nil
}

type fixture struct {
	processor *core.Processor
	memory    *conversation.Memory
	logs      *bytes.Buffer
	catalog   *config.Catalog
}

// newFixture wires the three tiers around provider. Passing extra tiers
// replaces the default tier list.
func newFixture(t *testing.T, provider llm.Provider, tiers ...core.Tier) fixture {
	t.Helper()
	catalog, err := config.Default()
	require.NoError(t, err)

	classifier, err := nlu.NewClassifier(catalog.Intents, catalog.Lexicon)
	require.NoError(t, err)
	dataset, err := knowledge.NewDataset(catalog.Dataset)
	require.NoError(t, err)

	var logs bytes.Buffer
	logger := zerolog.New(&logs)
	memory := conversation.NewMemory(conversation.NewInMemoryRepository(), conversation.DefaultLimit)
	responder := knowledge.NewResponder(catalog.Knowledge, catalog.Intents)

	if len(tiers) == 0 {
		tiers = []core.Tier{
			nodes.NewDatasetNode(dataset),
			nodes.NewProviderNode(provider, responder, 0),
			nodes.NewLocalNode(responder, agents.NewSelector(catalog.Agents)),
		}
	}

	processor, err := core.NewProcessor(core.Dependencies{
		Sentiment:  nlu.NewSentimentAnalyzer(catalog.Lexicon.Sentiment),
		Classifier: classifier,
		Security:   security.NewBuilder(catalog.Security, catalog.Intents),
		Validator:  security.NewValidator(catalog.Security.SensitiveSubjects),
		Memory:     memory,
		Learner:    learning.NewEngine(learning.NewMemoryStore(), logger),
		Logger:     logger,
	}, tiers...)
	require.NoError(t, err)

	return fixture{processor: processor, memory: memory, logs: &logs, catalog: catalog}
}

func message(text string, role pkg.Role) pkg.Message {
	return pkg.Message{Text: text, Role: role, UserID: "u1"}
}

func TestDatasetTierSkipsProvider(t *testing.T) {
	provider := &stubProvider{reply: "no debería usarse"}
	f := newFixture(t, provider)

	result := f.processor.Process(context.Background(), message("¿Cómo pago mi arriendo?", pkg.RoleTenant))

	assert.Zero(t, provider.calls.Load())
	assert.Equal(t, "dataset", result.Envelope.Tier)
	assert.Equal(t, "pay_rent", result.Envelope.Intent)
	assert.InDelta(t, 0.94, result.Envelope.Confidence, 1e-9)
	assert.True(t, strings.HasPrefix(result.Envelope.Text, "Puedes pagar tu arriendo"), result.Envelope.Text)
	assert.Len(t, result.Envelope.Suggestions, 3)
	assert.Equal(t, pkg.OutcomeResolved, result.Outcome)

	want := []core.Stage{
		core.StageReceived, core.StageClassified,
		core.TierAttempted(1), core.TierAccepted(1),
		core.StageValidated, core.StageRecorded, core.StageDone,
	}
	if diff := cmp.Diff(want, result.Turn.Stages); diff != "" {
		t.Errorf("stages mismatch (-want +got):\n%s", diff)
	}
}

func TestMidBandGoesToProvider(t *testing.T) {
	provider := &stubProvider{reply: "Puedes pagar desde Mis Pagos."}
	f := newFixture(t, provider)

	result := f.processor.Process(context.Background(), message("como pago mi arriendo", pkg.RoleTenant))

	assert.Equal(t, int32(1), provider.calls.Load())
	assert.Equal(t, "provider", result.Envelope.Tier)
	assert.Equal(t, "stub", result.Envelope.Provider)
	assert.Equal(t, "Puedes pagar desde Mis Pagos.", result.Envelope.Text)
	assert.Contains(t, result.Turn.Stages, core.TierAccepted(2))
	assert.NotContains(t, result.Turn.Stages, core.TierAccepted(1))
}

func TestProviderFailureFallsToLocal(t *testing.T) {
	provider := &stubProvider{err: errors.New("connection refused")}
	f := newFixture(t, provider)

	result := f.processor.Process(context.Background(), message("como pago mi arriendo", pkg.RoleTenant))

	assert.Equal(t, int32(1), provider.calls.Load())
	assert.Equal(t, "local", result.Envelope.Tier)
	require.NotNil(t, result.Envelope.Agent)
	assert.NotEmpty(t, result.Envelope.Agent.ID)
	assert.NotEmpty(t, result.Envelope.Text)

	assert.Contains(t, result.Turn.Stages, core.TierAttempted(2))
	assert.NotContains(t, result.Turn.Stages, core.TierAccepted(2))
	assert.Contains(t, result.Turn.Stages, core.TierAccepted(3))

	logs := f.logs.String()
	assert.Contains(t, logs, `"level":"warn"`)
	assert.Contains(t, logs, "tier unavailable, falling through")
	assert.Contains(t, logs, "connection refused")
}

func TestNoProviderSkipsTier(t *testing.T) {
	f := newFixture(t, nil)

	result := f.processor.Process(context.Background(), message("como pago mi arriendo", pkg.RoleTenant))
	assert.Equal(t, "local", result.Envelope.Tier)
	assert.NotContains(t, f.logs.String(), "tier unavailable")
}

func TestValidatorReplacesProviderReply(t *testing.T) {
	provider := &stubProvider{reply: "Tu RUT registrado es 12.345.678-9"}
	f := newFixture(t, provider)

	result := f.processor.Process(context.Background(), message("como pago mi arriendo", pkg.RoleTenant))

	assert.Equal(t, "provider", result.Envelope.Tier)
	assert.Equal(t, security.ConfidentialMessage, result.Envelope.Text)
	assert.Equal(t, security.ConfidentialMessage, result.Envelope.SecurityNote)
	assert.Equal(t, security.RuleConfidentialData, result.Verdict.Rule)
	assert.Equal(t, pkg.OutcomeEscalated, result.Outcome)

	logs := f.logs.String()
	assert.Contains(t, logs, "reply replaced by validator")
	assert.NotContains(t, logs, "12.345.678-9", "rejected replies are never logged")
}

func TestRestrictedIntentIsEscalated(t *testing.T) {
	catalog, err := config.Default()
	require.NoError(t, err)
	responder := knowledge.NewResponder(catalog.Knowledge, catalog.Intents)
	f := newFixture(t, nil, nodes.NewLocalNode(responder, agents.NewSelector(catalog.Agents)))

	result := f.processor.Process(context.Background(), message("¿Cuál es la contraseña del servidor?", pkg.RoleTenant))

	assert.Equal(t, "system_admin", result.Envelope.Intent)
	assert.Equal(t, knowledge.SecurityNote, result.Envelope.Text)
	assert.Nil(t, result.Envelope.Agent, "security notes carry no persona")
	assert.False(t, result.Verdict.Replaced)
	assert.Equal(t, pkg.OutcomeEscalated, result.Outcome)

	entries, err := f.memory.Load(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, entries[0].ID, result.EntryID)
	assert.Empty(t, entries[0].AgentUsed)
}

func TestNoTierAcceptsReturnsApology(t *testing.T) {
	f := newFixture(t, nil, declineTier{}, declineTier{})

	result := f.processor.Process(context.Background(), message("xyzzy", pkg.RoleGuest))

	assert.Equal(t, core.ApologyMessage, result.Envelope.Text)
	assert.Equal(t, "none", result.Envelope.Tier)
	assert.Equal(t, pkg.OutcomeClarificationNeeded, result.Outcome)
	assert.Equal(t, []core.Stage{
		core.StageReceived, core.StageClassified,
		core.TierAttempted(1), core.TierAttempted(2),
		core.StageValidated, core.StageRecorded, core.StageDone,
	}, result.Turn.Stages)
	assert.Contains(t, f.logs.String(), "no tier accepted the turn")
}

func TestTurnIsRecorded(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	f.processor.Handle(ctx, message("¿Cómo pago mi arriendo?", pkg.RoleTenant))
	f.processor.Handle(ctx, message("Necesito una reparación urgente, hay una inundación en mi departamento", pkg.RoleTenant))

	entries, err := f.memory.Load(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "payments", entries[0].Topic)
	assert.Equal(t, pkg.OutcomeResolved, entries[0].Outcome)
	assert.Empty(t, entries[0].AgentUsed, "dataset replies have no agent")

	assert.Equal(t, "maintenance", entries[1].Topic)
	assert.Equal(t, pkg.EmotionFear, entries[1].Sentiment)
	assert.NotEmpty(t, entries[1].ID)
	assert.False(t, entries[1].Timestamp.IsZero())
	assert.Contains(t, f.logs.String(), "turn recorded")
}

func TestAnonymousUser(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	f.processor.Handle(ctx, pkg.Message{Text: "Hola, ¿cómo estás?", Role: "TENANT"})

	entries, err := f.memory.Load(ctx, core.AnonymousUser)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "greeting", entries[0].Topic)
}

func TestMemoryTopicsBoostClassification(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	first := f.processor.Process(ctx, message("¿Cómo pago mi arriendo?", pkg.RoleTenant))
	assert.InDelta(t, 0.85, first.Turn.Intent.Confidence, 1e-9)

	second := f.processor.Process(ctx, message("¿Cómo pago mi arriendo?", pkg.RoleTenant))
	assert.Equal(t, []string{"payments"}, second.Turn.Memory.Topics)
	assert.InDelta(t, 0.95, second.Turn.Intent.Confidence, 1e-9)
}

func TestNewProcessorValidation(t *testing.T) {
	_, err := core.NewProcessor(core.Dependencies{}, declineTier{})
	assert.Error(t, err)

	f := newFixture(t, nil)
	assert.NotNil(t, f.processor)

	catalog := f.catalog
	classifier, err := nlu.NewClassifier(catalog.Intents, catalog.Lexicon)
	require.NoError(t, err)
	deps := core.Dependencies{
		Sentiment:  nlu.NewSentimentAnalyzer(catalog.Lexicon.Sentiment),
		Classifier: classifier,
		Security:   security.NewBuilder(catalog.Security, catalog.Intents),
		Validator:  security.NewValidator(catalog.Security.SensitiveSubjects),
	}
	_, err = core.NewProcessor(deps, declineTier{})
	assert.ErrorContains(t, err, "memory")

	deps.Memory = conversation.NewMemory(conversation.NewInMemoryRepository(), 0)
	_, err = core.NewProcessor(deps)
	assert.ErrorContains(t, err, "tier")

	_, err = core.NewProcessor(deps, declineTier{})
	assert.NoError(t, err, "the learner is optional")
}

func TestSanitize(t *testing.T) {
	long := strings.Repeat("ñ", core.MaxInputRunes+5)
	history := make([]pkg.Turn, 25)
	for i := range history {
		history[i] = pkg.Turn{Role: "user", Content: strings.Repeat("x", i+1)}
	}

	got := core.Sanitize(pkg.Message{
		Text:    "  " + long + "  ",
		Role:    " Owner ",
		UserID:  "   ",
		History: history,
	})
	assert.Equal(t, core.MaxInputRunes, len([]rune(got.Text)))
	assert.Equal(t, pkg.RoleOwner, got.Role)
	assert.Equal(t, core.AnonymousUser, got.UserID)
	require.Len(t, got.History, core.MaxHistoryTurns)
	assert.Equal(t, history[5], got.History[0])

	got.History[0].Content = "tampered"
	assert.NotEqual(t, "tampered", history[5].Content)

	invalid := core.Sanitize(pkg.Message{Text: "hola\xff mundo", UserID: "u1"})
	assert.Equal(t, "hola mundo", invalid.Text)
	assert.Equal(t, pkg.RoleGuest, invalid.Role)
	assert.Equal(t, "u1", invalid.UserID)
}

func TestOutcomeFor(t *testing.T) {
	tests := []struct {
		name    string
		env     pkg.ResponseEnvelope
		verdict security.Verdict
		want    pkg.Outcome
	}{
		{"replaced", pkg.ResponseEnvelope{Confidence: 0.9}, security.Verdict{Replaced: true}, pkg.OutcomeEscalated},
		{"security note", pkg.ResponseEnvelope{Confidence: 1, SecurityNote: "x"}, security.Verdict{}, pkg.OutcomeEscalated},
		{"low confidence", pkg.ResponseEnvelope{Confidence: 0.5}, security.Verdict{}, pkg.OutcomeClarificationNeeded},
		{"boundary", pkg.ResponseEnvelope{Confidence: 0.6}, security.Verdict{}, pkg.OutcomeResolved},
		{"confident", pkg.ResponseEnvelope{Confidence: 0.94}, security.Verdict{}, pkg.OutcomeResolved},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, core.OutcomeFor(tt.env, tt.verdict))
		})
	}
}
