package assistant

import (
	"bytes"
	"context"
	"path/filepath"
	"slices"
	"testing"

	"rent360_assistant/internal/config"
	"rent360_assistant/internal/learning"
	"rent360_assistant/pkg"
	"rent360_assistant/src"
	"rent360_assistant/src/conversation"
	"rent360_assistant/src/llm"
	"rent360_assistant/src/model"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAssistant(t *testing.T) (*Assistant, *bytes.Buffer) {
	t.Helper()
	return newAssistantWith(t, Options{})
}

func newAssistantWith(t *testing.T, opts Options) (*Assistant, *bytes.Buffer) {
	t.Helper()
	catalog, err := config.Default()
	require.NoError(t, err)

	var logs bytes.Buffer
	logger := zerolog.New(&logs)
	opts.Logger = &logger
	a, err := New(catalog, opts)
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, a.Close()) })
	return a, &logs
}

func TestNewRequiresCatalog(t *testing.T) {
	_, err := New(nil, Options{})
	assert.Error(t, err)
}

func TestHandleMessage(t *testing.T) {
	a, logs := newAssistant(t)
	ctx := context.Background()

	reply := a.HandleMessage(ctx, "¿Cómo pago mi arriendo?", "TENANT", "u1", nil)
	assert.Equal(t, "dataset", reply.Tier)
	assert.Equal(t, "pay_rent", reply.Intent)

	local := a.HandleMessage(ctx, "Necesito una reparación urgente, hay una inundación en mi departamento", "tenant", "u1", []pkg.Turn{
		{Role: "user", Content: "¿Cómo pago mi arriendo?"},
		{Role: "assistant", Content: reply.Text},
	})
	assert.Equal(t, "local", local.Tier)
	require.NotNil(t, local.Agent)
	assert.Equal(t, "maintenance_specialist", local.Agent.ID)

	entries, err := a.Memory(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, entries, 2)
	assert.Contains(t, logs.String(), `"component":"orchestrator"`)
}

func TestFeedback(t *testing.T) {
	a, logs := newAssistant(t)
	ctx := context.Background()

	for _, score := range []int{0, 6, -1} {
		_, err := a.Feedback(ctx, Feedback{UserID: "u1", Satisfaction: score})
		assert.ErrorIs(t, err, ErrInvalidFeedback)
	}

	insights, err := a.Feedback(ctx, Feedback{
		UserID:       "u1",
		Role:         "tenant",
		Intent:       "payments",
		Message:      "¿Cómo pago mi arriendo?",
		Response:     "Desde Mis Pagos.",
		Satisfaction: 5,
	})
	require.NoError(t, err)
	require.Len(t, insights, 1)
	assert.Equal(t, learning.InsightPositiveFeedback, insights[0].Kind)
	assert.Contains(t, logs.String(), "feedback recorded")

	all, err := a.Insights(ctx, "u1")
	require.NoError(t, err)
	require.NotEmpty(t, all)
	last := all[len(all)-1]
	assert.Equal(t, learning.InsightLengthPreference, last.Kind)
	assert.Equal(t, string(learning.LengthShort), last.Detail)

	removed, err := a.Cleanup(ctx)
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestTools(t *testing.T) {
	a, _ := newAssistant(t)

	tools, err := a.Tools()
	require.NoError(t, err)
	assert.Len(t, tools, 2)
	assert.NotEmpty(t, a.Catalog().Intents)
}

func TestFromConfig(t *testing.T) {
	cfg, err := src.LoadConfig()
	require.NoError(t, err)
	cfg.Storage.LearningBackend = model.BackendSQLite
	cfg.Storage.SQLitePath = filepath.Join(t.TempDir(), "learning.db")

	a, err := FromConfig(context.Background(), cfg)
	require.NoError(t, err)

	reply := a.HandleMessage(context.Background(), "¿Qué es Rent360?", "", "", nil)
	assert.Equal(t, "dataset", reply.Tier)
	assert.Equal(t, "platform_info", reply.Intent)

	insights, err := a.Insights(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, insights)
	assert.Len(t, a.closers, 1)
	require.NoError(t, a.Close())
}

func TestFromConfigBadCatalogDir(t *testing.T) {
	cfg, err := src.LoadConfig()
	require.NoError(t, err)
	cfg.Pipeline.CatalogDir = filepath.Join(t.TempDir(), "missing")

	_, err = FromConfig(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load catalog")
}

func TestFeedbackRatesTurnOnce(t *testing.T) {
	store := learning.NewMemoryStore()
	a, _ := newAssistantWith(t, Options{LearningStore: store})
	ctx := context.Background()

	res := a.Process(ctx, pkg.Message{Text: "¿Cómo pago mi arriendo?", Role: pkg.RoleTenant, UserID: "u1"})
	require.NotEmpty(t, res.EntryID)
	require.Equal(t, pkg.OutcomeResolved, res.Outcome)

	before, err := store.Patterns(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, before)

	insights, err := a.Feedback(ctx, FeedbackFor(res, 1))
	require.NoError(t, err)
	assert.Empty(t, insights)

	after, err := store.Patterns(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, before, after)
	for _, p := range after {
		assert.Equal(t, res.Turn.Intent.Intent+"_tenant", p.Key)
		assert.Equal(t, 1, p.Successes, p.Text)
		assert.Zero(t, p.Failures, p.Text)
	}

	entries, err := a.Memory(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, res.EntryID, entries[0].ID)
	assert.Equal(t, 1, entries[0].Satisfaction)
	assert.Contains(t, conversation.Summarize(entries, "").Summary, "Satisfacción promedio: 1.0.")

	tallies, err := store.Satisfaction(ctx)
	require.NoError(t, err)
	assert.Equal(t, learning.SatisfactionTally{Sum: 1, Count: 1}, tallies["u1"])
}

func TestFeedbackUsesTurnOutcome(t *testing.T) {
	a, _ := newAssistant(t)
	ctx := context.Background()

	res := a.Process(ctx, pkg.Message{Text: "¿Cuál es la contraseña del servidor?", Role: pkg.RoleTenant, UserID: "u2"})
	require.Equal(t, pkg.OutcomeEscalated, res.Outcome)
	require.NotNil(t, res.Turn)

	insights, err := a.Feedback(ctx, FeedbackFor(res, 1))
	require.NoError(t, err)
	require.Len(t, insights, 1)
	assert.Equal(t, learning.InsightNegativeFeedback, insights[0].Kind)
	assert.Equal(t, res.Turn.Intent.Intent+"_tenant", insights[0].Key)
}

func TestFeedbackFillsFromMemoryEntry(t *testing.T) {
	a, _ := newAssistant(t)
	ctx := context.Background()

	res := a.Process(ctx, pkg.Message{Text: "¿Cuál es la contraseña del servidor?", Role: pkg.RoleTenant, UserID: "u3"})
	require.Equal(t, pkg.OutcomeEscalated, res.Outcome)

	// intent and outcome come from the stored entry
	insights, err := a.Feedback(ctx, Feedback{
		UserID:       "u3",
		Role:         "tenant",
		Message:      res.Turn.Message.Text,
		Satisfaction: 2,
	})
	require.NoError(t, err)
	require.Len(t, insights, 1)
	assert.Equal(t, learning.InsightNegativeFeedback, insights[0].Kind)
	assert.Equal(t, res.Turn.Intent.Intent+"_tenant", insights[0].Key)
}

func TestReport(t *testing.T) {
	a, _ := newAssistant(t)
	ctx := context.Background()

	empty, err := a.Report(ctx, "", "")
	require.NoError(t, err)
	assert.True(t, empty.Empty())

	var intent string
	for range 3 {
		res := a.Process(ctx, pkg.Message{Text: "¿Cómo pago mi arriendo?", Role: pkg.RoleTenant, UserID: "u1"})
		_, err := a.Feedback(ctx, FeedbackFor(res, 2))
		require.NoError(t, err)
		intent = res.Turn.Intent.Intent
	}

	report, err := a.Report(ctx, "u1", "TENANT")
	require.NoError(t, err)
	assert.False(t, report.Empty())
	require.NotEmpty(t, report.Global.MostCommonQuestions)
	assert.Equal(t, learning.QuestionCount{Question: "¿cómo pago mi arriendo?", Frequency: 3}, report.Global.MostCommonQuestions[0])
	assert.Equal(t, 3, report.Global.Ratings)
	assert.InDelta(t, 2.0, report.Global.AverageSatisfaction, 1e-9)
	assert.NotEmpty(t, report.Global.TopPerformingPatterns)
	assert.Contains(t, report.Suggestions, "La satisfacción general está por debajo del 70%. Considerar revisar las respuestas del asistente.")
	require.NotEmpty(t, report.RolePatterns)
	for _, p := range report.RolePatterns {
		assert.Equal(t, intent+"_tenant", p.Key)
	}

	other, err := a.Report(ctx, "u1", "")
	require.NoError(t, err)
	assert.Empty(t, other.RolePatterns)
}

// lookupModel asks for the knowledge lookup once, then answers with the
// tool reply
type lookupModel struct {
	bound []*schema.ToolInfo
	calls int
}

func (m *lookupModel) Generate(_ context.Context, input []*schema.Message, _ ...einomodel.Option) (*schema.Message, error) {
	m.calls++
	if last := input[len(input)-1]; last.Role == schema.Tool {
		return schema.AssistantMessage("Según Rent360: "+last.Content, nil), nil
	}
	return schema.AssistantMessage("", []schema.ToolCall{{
		ID:       "call-1",
		Type:     "function",
		Function: schema.FunctionCall{Name: "rent360_knowledge_lookup", Arguments: `{"question":"como pago mi arriendo","role":"tenant"}`},
	}}), nil
}

func (m *lookupModel) Stream(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.StreamReader[*schema.Message], error) {
	out, err := m.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{out}), nil
}

func (m *lookupModel) WithTools(tools []*schema.ToolInfo) (einomodel.ToolCallingChatModel, error) {
	m.bound = tools
	return m, nil
}

func TestProviderGetsLookupTools(t *testing.T) {
	ctx := context.Background()
	chatModel := &lookupModel{}
	a, _ := newAssistantWith(t, Options{
		NewProvider: func(tools []tool.BaseTool) (llm.Provider, error) {
			return llm.NewChatProvider(ctx, "fake", 0.85, chatModel, tools...)
		},
	})

	names := make([]string, 0, len(chatModel.bound))
	for _, info := range chatModel.bound {
		names = append(names, info.Name)
	}
	slices.Sort(names)
	assert.Equal(t, []string{"rent360_dataset_lookup", "rent360_knowledge_lookup"}, names)

	res := a.Process(ctx, pkg.Message{Text: "como pago mi arriendo", Role: pkg.RoleTenant, UserID: "u1"})
	assert.Equal(t, "provider", res.Envelope.Tier)
	assert.Equal(t, "fake", res.Envelope.Provider)
	assert.Contains(t, res.Envelope.Text, "Según Rent360:")
	assert.Equal(t, 2, chatModel.calls)
}
