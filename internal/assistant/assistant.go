package assistant

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"rent360_assistant/internal/agents"
	"rent360_assistant/internal/config"
	"rent360_assistant/internal/core"
	"rent360_assistant/internal/knowledge"
	"rent360_assistant/internal/learning"
	"rent360_assistant/internal/nlu"
	"rent360_assistant/internal/nodes"
	"rent360_assistant/internal/security"
	internalstorage "rent360_assistant/internal/storage"
	"rent360_assistant/pkg"
	"rent360_assistant/src"
	"rent360_assistant/src/conversation"
	"rent360_assistant/src/llm"
	"rent360_assistant/src/logger"
	"rent360_assistant/src/model"
	"rent360_assistant/src/storage"

	"github.com/cloudwego/eino/components/tool"
	"github.com/rs/zerolog"
)

// DefaultRetentionDays is the learning cleanup window
const DefaultRetentionDays = 30

// ErrInvalidFeedback is returned for a satisfaction score outside 1-5
var ErrInvalidFeedback = errors.New("satisfaction must be between 1 and 5")

// ProviderFactory builds the Tier-2 provider around the lookup tools
type ProviderFactory func(tools []tool.BaseTool) (llm.Provider, error)

// Options wires the replaceable collaborators. Zero values pick the
// in-process defaults.
type Options struct {
	Provider llm.Provider
	// NewProvider is used when Provider is nil
	NewProvider     ProviderFactory
	ProviderTimeout time.Duration
	MemoryRepo      conversation.Repository
	MemoryLimit     int
	LearningStore   learning.Store
	RetentionDays   int
	Logger          *zerolog.Logger
	Closers         []io.Closer
}

// Assistant is the composition root of the pipeline
type Assistant struct {
	catalog       *config.Catalog
	processor     *core.Processor
	memory        *conversation.Memory
	learner       *learning.Engine
	tools         nodes.ToolSet
	retentionDays int
	logger        zerolog.Logger
	closers       []io.Closer
}

// New builds every component over catalog
func New(catalog *config.Catalog, opts Options) (*Assistant, error) {
	if catalog == nil {
		return nil, errors.New("catalog is required")
	}

	log := *logger.GetLogger()
	if opts.Logger != nil {
		log = *opts.Logger
	}

	classifier, err := nlu.NewClassifier(catalog.Intents, catalog.Lexicon)
	if err != nil {
		return nil, fmt.Errorf("failed to create classifier: %w", err)
	}
	dataset, err := knowledge.NewDataset(catalog.Dataset)
	if err != nil {
		return nil, fmt.Errorf("failed to create dataset: %w", err)
	}

	repo := opts.MemoryRepo
	if repo == nil {
		repo = conversation.NewInMemoryRepository()
	}
	store := opts.LearningStore
	if store == nil {
		store = learning.NewMemoryStore()
	}

	memory := conversation.NewMemory(repo, opts.MemoryLimit)
	learner := learning.NewEngine(store, log.With().Str("component", "learning").Logger())
	builder := security.NewBuilder(catalog.Security, catalog.Intents)
	validator := security.NewValidator(catalog.Security.SensitiveSubjects)
	responder := knowledge.NewResponder(catalog.Knowledge, catalog.Intents)
	selector := agents.NewSelector(catalog.Agents)
	tools := nodes.ToolSet{
		Dataset:    dataset,
		Responder:  responder,
		Classifier: classifier,
		Security:   builder,
		Validator:  validator,
	}

	provider := opts.Provider
	if provider == nil && opts.NewProvider != nil {
		lookups, err := tools.Tools()
		if err != nil {
			return nil, err
		}
		if provider, err = opts.NewProvider(lookups); err != nil {
			return nil, fmt.Errorf("failed to create provider: %w", err)
		}
	}

	processor, err := core.NewProcessor(core.Dependencies{
		Sentiment:  nlu.NewSentimentAnalyzer(catalog.Lexicon.Sentiment),
		Classifier: classifier,
		Security:   builder,
		Validator:  validator,
		Memory:     memory,
		Learner:    learner,
		Logger:     log.With().Str("component", "orchestrator").Logger(),
	},
		nodes.NewDatasetNode(dataset),
		nodes.NewProviderNode(provider, responder, opts.ProviderTimeout),
		nodes.NewLocalNode(responder, selector),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create processor: %w", err)
	}

	retention := opts.RetentionDays
	if retention <= 0 {
		retention = DefaultRetentionDays
	}

	return &Assistant{
		catalog:       catalog,
		processor:     processor,
		memory:        memory,
		learner:       learner,
		tools:         tools,
		retentionDays: retention,
		logger:        log,
		closers:       opts.Closers,
	}, nil
}

// FromConfig builds the assistant and its backends from environment config
func FromConfig(ctx context.Context, cfg *src.Config) (*Assistant, error) {
	catalog, err := config.LoadDir(cfg.Pipeline.CatalogDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}

	opts := Options{
		ProviderTimeout: cfg.Pipeline.ProviderTimeout,
		MemoryLimit:     cfg.Pipeline.MemoryLimit,
		RetentionDays:   cfg.Pipeline.RetentionDays,
	}
	closeAll := func() {
		for _, c := range opts.Closers {
			_ = c.Close()
		}
	}

	var redisStore *storage.RedisStorage
	redisClient := func() (*storage.RedisStorage, error) {
		if redisStore != nil {
			return redisStore, nil
		}
		rs, err := storage.NewRedisStorage(ctx, cfg.Storage.RedisURL)
		if err != nil {
			return nil, err
		}
		redisStore = rs
		opts.Closers = append(opts.Closers, rs)
		return rs, nil
	}

	if cfg.Storage.MemoryBackend == model.BackendRedis {
		rs, err := redisClient()
		if err != nil {
			return nil, fmt.Errorf("failed to open memory backend: %w", err)
		}
		opts.MemoryRepo = conversation.NewRedisRepository(rs, cfg.Storage.MemoryTTL)
	}

	switch cfg.Storage.LearningBackend {
	case model.BackendSQLite:
		store, err := internalstorage.OpenSQLiteLearningStore(cfg.Storage.SQLitePath)
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("failed to open learning backend: %w", err)
		}
		opts.LearningStore = store
		opts.Closers = append(opts.Closers, store)
	case model.BackendRedis:
		rs, err := redisClient()
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("failed to open learning backend: %w", err)
		}
		opts.LearningStore = internalstorage.NewRedisLearningStore(rs.Client())
	}

	if cfg.Provider.Enabled() {
		opts.NewProvider = func(tools []tool.BaseTool) (llm.Provider, error) {
			return llm.NewProvider(ctx, cfg.Provider, tools...)
		}
	}

	a, err := New(catalog, opts)
	if err != nil {
		closeAll()
		return nil, err
	}
	a.logger.Info().
		Str("provider", cfg.Provider.Kind).
		Str("memory_backend", cfg.Storage.MemoryBackend).
		Str("learning_backend", cfg.Storage.LearningBackend).
		Msg("assistant ready")
	return a, nil
}

// HandleMessage answers one message. It never fails.
func (a *Assistant) HandleMessage(ctx context.Context, text, role, userID string, history []pkg.Turn) pkg.ResponseEnvelope {
	return a.processor.Handle(ctx, pkg.Message{
		Text:    text,
		Role:    pkg.Role(role),
		UserID:  userID,
		History: history,
	})
}

// Process answers one message and returns the full turn state
func (a *Assistant) Process(ctx context.Context, msg pkg.Message) core.Result {
	return a.processor.Process(ctx, msg)
}

// Feedback is an explicit rating of a reply. Empty fields are filled
// from the rated memory entry.
type Feedback struct {
	UserID string
	Role   string
	// EntryID is the memory entry of the rated turn; empty rates the
	// user's newest entry
	EntryID      string
	Intent       string
	Message      string
	Response     string
	Outcome      pkg.Outcome
	Satisfaction int // 1-5
}

// FeedbackFor rates the turn behind res
func FeedbackFor(res core.Result, satisfaction int) Feedback {
	fb := Feedback{
		EntryID:      res.EntryID,
		Response:     res.Envelope.Text,
		Outcome:      res.Outcome,
		Satisfaction: satisfaction,
	}
	if res.Turn != nil {
		fb.UserID = res.Turn.Message.UserID
		fb.Role = string(res.Turn.Message.Role)
		fb.Intent = res.Turn.Intent.Intent
		fb.Message = res.Turn.Message.Text
	}
	return fb
}

// Feedback stores the rating on the turn's memory entry and feeds it to
// the learner. The turn's n-grams were already counted when it was
// answered and are not counted again. It returns the insights the rating
// triggered.
func (a *Assistant) Feedback(ctx context.Context, fb Feedback) ([]learning.Insight, error) {
	if fb.Satisfaction < 1 || fb.Satisfaction > 5 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidFeedback, fb.Satisfaction)
	}
	userID := strings.TrimSpace(fb.UserID)
	if userID == "" {
		userID = core.AnonymousUser
	}

	entry, err := a.memory.Rate(ctx, userID, fb.EntryID, fb.Satisfaction)
	switch {
	case errors.Is(err, conversation.ErrEntryNotFound):
		a.logger.Warn().
			Str("user_id", userID).
			Str("entry_id", fb.EntryID).
			Msg("rated turn not in memory")
	case err != nil:
		return nil, fmt.Errorf("failed to rate memory entry: %w", err)
	}

	intent := cmp.Or(fb.Intent, entry.Topic)
	outcome := cmp.Or(fb.Outcome, entry.Outcome, pkg.OutcomeResolved)

	insights, err := a.learner.Rate(ctx, learning.Signal{
		UserID:       userID,
		Role:         pkg.NormalizeRole(fb.Role),
		Intent:       intent,
		Message:      fb.Message,
		Response:     fb.Response,
		Outcome:      outcome,
		Satisfaction: fb.Satisfaction,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to record feedback: %w", err)
	}
	a.logger.Info().
		Str("user_id", userID).
		Str("intent", intent).
		Str("outcome", string(outcome)).
		Int("satisfaction", fb.Satisfaction).
		Int("insights", len(insights)).
		Msg("feedback recorded")
	return insights, nil
}

// Insights returns the learner's cumulative insights, plus the user's
// length preference when userID is set
func (a *Assistant) Insights(ctx context.Context, userID string) ([]learning.Insight, error) {
	return a.learner.GetInsights(ctx, userID)
}

// Report returns the insights together with the global view and the
// improvement suggestions. A non-empty role adds its learned patterns.
func (a *Assistant) Report(ctx context.Context, userID, role string) (learning.Report, error) {
	var r pkg.Role
	if strings.TrimSpace(role) != "" {
		r = pkg.NormalizeRole(role)
	}
	return a.learner.Report(ctx, userID, r)
}

// Cleanup applies the learning retention window
func (a *Assistant) Cleanup(ctx context.Context) (int, error) {
	return a.learner.Cleanup(ctx, a.retentionDays)
}

// Memory returns the user's recorded turns, oldest first
func (a *Assistant) Memory(ctx context.Context, userID string) ([]pkg.MemoryEntry, error) {
	return a.memory.Load(ctx, userID)
}

// Tools returns the lookup tools over the assistant's knowledge
func (a *Assistant) Tools() ([]tool.BaseTool, error) {
	return a.tools.Tools()
}

// Catalog returns the loaded static registries
func (a *Assistant) Catalog() *config.Catalog {
	return a.catalog
}

// Close releases the storage backends
func (a *Assistant) Close() error {
	var errs []error
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
