package nodes

import (
	"context"
	"errors"
	"testing"
	"time"

	"rent360_assistant/internal/agents"
	"rent360_assistant/internal/config"
	"rent360_assistant/internal/core"
	"rent360_assistant/internal/knowledge"
	"rent360_assistant/internal/nlu"
	"rent360_assistant/internal/security"
	"rent360_assistant/pkg"
	"rent360_assistant/src/llm"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type env struct {
	catalog    *config.Catalog
	dataset    *knowledge.Dataset
	responder  *knowledge.Responder
	classifier *nlu.Classifier
	builder    *security.Builder
	validator  *security.Validator
}

func newEnv(t *testing.T) env {
	t.Helper()
	catalog, err := config.Default()
	require.NoError(t, err)
	dataset, err := knowledge.NewDataset(catalog.Dataset)
	require.NoError(t, err)
	classifier, err := nlu.NewClassifier(catalog.Intents, catalog.Lexicon)
	require.NoError(t, err)
	return env{
		catalog:    catalog,
		dataset:    dataset,
		responder:  knowledge.NewResponder(catalog.Knowledge, catalog.Intents),
		classifier: classifier,
		builder:    security.NewBuilder(catalog.Security, catalog.Intents),
		validator:  security.NewValidator(catalog.Security.SensitiveSubjects),
	}
}

func (e env) toolSet() ToolSet {
	return ToolSet{Dataset: e.dataset, Responder: e.responder, Classifier: e.classifier, Security: e.builder, Validator: e.validator}
}

func (e env) turn(text string, role pkg.Role) *core.Turn {
	return &core.Turn{
		Message:  pkg.Message{Text: text, Role: role, UserID: "u1"},
		Intent:   e.classifier.Classify(text, role, nil),
		Security: e.builder.Build(role),
	}
}

// blockingProvider waits for its context, or replies after delay
type blockingProvider struct {
	delay  time.Duration
	reply  string
	err    error
	prompt string
}

func (p *blockingProvider) Name() string { return "blocking" }

func (p *blockingProvider) Generate(ctx context.Context, prompt string) (llm.Completion, error) {
	p.prompt = prompt
	if p.err != nil {
		return llm.Completion{}, p.err
	}
	select {
	case <-ctx.Done():
		return llm.Completion{}, ctx.Err()
	case <-time.After(p.delay):
		return llm.Completion{Text: p.reply, Confidence: 0.9, Provider: "blocking"}, nil
	}
}

func TestDatasetNode(t *testing.T) {
	e := newEnv(t)
	node := NewDatasetNode(e.dataset)
	assert.Equal(t, "dataset", node.Name())

	result, err := node.Attempt(context.Background(), e.turn("¿Cómo pago mi arriendo?", pkg.RoleTenant))
	require.NoError(t, err)
	reply, ok := result.Envelope()
	require.True(t, ok)
	assert.Equal(t, "pay_rent", reply.Intent)
	assert.InDelta(t, 0.94, reply.Confidence, 1e-9)
	assert.Equal(t, e.dataset.Suggestions(pkg.RoleTenant), reply.Suggestions)

	for _, text := range []string{"como pago mi arriendo", "Hola, ¿cómo estás?"} {
		result, err := node.Attempt(context.Background(), e.turn(text, pkg.RoleTenant))
		require.NoError(t, err)
		_, ok := result.Envelope()
		assert.False(t, ok, "text %q continues", text)
	}
}

func TestProviderNodeWithoutProvider(t *testing.T) {
	e := newEnv(t)
	node := NewProviderNode(nil, e.responder, 0)
	assert.Equal(t, "provider", node.Name())

	result, err := node.Attempt(context.Background(), e.turn("hola", pkg.RoleGuest))
	require.NoError(t, err)
	_, ok := result.Envelope()
	assert.False(t, ok)
}

func TestProviderNodeAccepts(t *testing.T) {
	e := newEnv(t)
	provider := &blockingProvider{reply: "Desde Mis Pagos."}
	node := NewProviderNode(provider, e.responder, time.Second)

	turn := e.turn("¿Cómo pago mi arriendo?", pkg.RoleTenant)
	turn.Message.History = []pkg.Turn{{Role: "user", Content: "hola"}, {Role: "assistant", Content: "¿en qué te ayudo?"}}

	result, err := node.Attempt(context.Background(), turn)
	require.NoError(t, err)
	reply, ok := result.Envelope()
	require.True(t, ok)
	assert.Equal(t, "Desde Mis Pagos.", reply.Text)
	assert.Equal(t, "blocking", reply.Provider)
	assert.Equal(t, "payments", reply.Intent)
	assert.Equal(t, e.responder.Suggestions("payments", pkg.RoleTenant), reply.Suggestions)

	assert.Contains(t, provider.prompt, turn.Security.PolicyText())
	assert.Contains(t, provider.prompt, "Pregunta del usuario: ¿Cómo pago mi arriendo?")
	assert.Contains(t, provider.prompt, "assistant: ¿en qué te ayudo?")
}

func TestProviderNodeWrapsErrors(t *testing.T) {
	e := newEnv(t)
	boom := errors.New("quota exceeded")
	node := NewProviderNode(&blockingProvider{err: boom}, e.responder, time.Second)

	_, err := node.Attempt(context.Background(), e.turn("hola", pkg.RoleGuest))
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "provider blocking")
}

func TestProviderNodeTimeout(t *testing.T) {
	defer goleak.VerifyNone(t)

	e := newEnv(t)
	node := NewProviderNode(&blockingProvider{delay: time.Minute}, e.responder, 20*time.Millisecond)

	start := time.Now()
	_, err := node.Attempt(context.Background(), e.turn("hola", pkg.RoleGuest))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestProviderNodeIgnoresCallerCancel(t *testing.T) {
	e := newEnv(t)
	node := NewProviderNode(&blockingProvider{delay: 10 * time.Millisecond, reply: "listo"}, e.responder, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := node.Attempt(ctx, e.turn("hola", pkg.RoleGuest))
	require.NoError(t, err)
	reply, ok := result.Envelope()
	require.True(t, ok)
	assert.Equal(t, "listo", reply.Text)
}

func TestLocalNodeAlwaysAccepts(t *testing.T) {
	e := newEnv(t)
	node := NewLocalNode(e.responder, agents.NewSelector(e.catalog.Agents))
	assert.Equal(t, "local", node.Name())

	for _, text := range []string{"xyzzy", "¿Cómo pago mi arriendo?", ""} {
		result, err := node.Attempt(context.Background(), e.turn(text, pkg.RoleTenant))
		require.NoError(t, err)
		reply, ok := result.Envelope()
		require.True(t, ok)
		assert.NotEmpty(t, reply.Text)
		require.NotNil(t, reply.Agent)
		assert.NotEmpty(t, reply.Agent.ID)
	}

	onboarding, err := node.Attempt(context.Background(), e.turn("Soy electricista y quiero ofrecer servicios en Rent360", pkg.RoleGuest))
	require.NoError(t, err)
	reply, _ := onboarding.Envelope()
	assert.Equal(t, e.catalog.Agents.MaintenanceAgent, reply.Agent.ID)

	for _, text := range []string{"¿Cuál es la contraseña del servidor?", "configuración del sistema"} {
		denied, err := node.Attempt(context.Background(), e.turn(text, pkg.RoleTenant))
		require.NoError(t, err)
		reply, ok := denied.Envelope()
		require.True(t, ok)
		assert.Equal(t, knowledge.SecurityNote, reply.Text, text)
		assert.Nil(t, reply.Agent, text)
	}
}

func TestLookupTools(t *testing.T) {
	e := newEnv(t)
	set := e.toolSet()
	ctx := context.Background()

	tools, err := set.Tools()
	require.NoError(t, err)
	require.Len(t, tools, 2)

	info, err := tools[0].Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, "rent360_dataset_lookup", info.Name)

	datasetTool, err := set.DatasetTool()
	require.NoError(t, err)
	out, err := datasetTool.InvokableRun(ctx, `{"question":"¿Cómo pago mi arriendo?","role":"TENANT"}`)
	require.NoError(t, err)

	var found LookupResult
	require.NoError(t, sonic.UnmarshalString(out, &found))
	assert.True(t, found.Found)
	assert.Equal(t, "pay_rent", found.Intent)

	out, err = datasetTool.InvokableRun(ctx, `{"question":"¿?"}`)
	require.NoError(t, err)
	var missing LookupResult
	require.NoError(t, sonic.UnmarshalString(out, &missing))
	assert.False(t, missing.Found)

	knowledgeTool, err := set.KnowledgeTool()
	require.NoError(t, err)
	out, err = knowledgeTool.InvokableRun(ctx, `{"question":"¿Cuál es la contraseña del servidor?","role":"tenant"}`)
	require.NoError(t, err)
	var denied LookupResult
	require.NoError(t, sonic.UnmarshalString(out, &denied))
	assert.False(t, denied.Found)
	assert.Equal(t, knowledge.SecurityNote, denied.Answer)

	out, err = knowledgeTool.InvokableRun(ctx, `{"question":"¿Cómo pago mi arriendo?","role":"tenant"}`)
	require.NoError(t, err)
	var answered LookupResult
	require.NoError(t, sonic.UnmarshalString(out, &answered))
	assert.True(t, answered.Found)
	assert.Equal(t, "payments", answered.Intent)
	assert.NotEmpty(t, answered.Links)
}

func TestLookupToolsValidateAnswers(t *testing.T) {
	e := newEnv(t)
	set := e.toolSet()

	leaked := set.validate(LookupResult{Found: true, Answer: "Tu RUT registrado es 12.345.678-9", Intent: "profile"}, pkg.RoleTenant)
	assert.False(t, leaked.Found)
	assert.True(t, leaked.Withheld)
	assert.Equal(t, security.ConfidentialMessage, leaked.Answer)
	assert.Equal(t, "profile", leaked.Intent)

	clean := LookupResult{Found: true, Answer: "Desde Mis Pagos.", Intent: "payments"}
	assert.Equal(t, clean, set.validate(clean, pkg.RoleTenant))

	set.Validator = nil
	_, err := set.Tools()
	assert.Error(t, err)
	_, err = set.KnowledgeTool()
	assert.ErrorIs(t, err, errIncompleteToolSet)
}
