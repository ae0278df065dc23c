package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"rent360_assistant/src/model"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino-ext/components/model/deepseek"
	"github.com/cloudwego/eino-ext/components/model/ollama"
	"github.com/cloudwego/eino-ext/components/model/openai"
	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/ollama/ollama/api"
)

var (
	// ErrEmptyCompletion is returned when the model answers with no text
	ErrEmptyCompletion = errors.New("empty completion")
	// ErrUnknownProvider is returned for an unsupported provider kind
	ErrUnknownProvider = errors.New("unknown provider")
	// ErrToolsUnsupported is returned when tools are given to a model
	// that cannot call them
	ErrToolsUnsupported = errors.New("chat model does not support tool calling")
)

const (
	nodeTemplate = "template"
	nodeModel    = "model"
	nodeTools    = "tools"

	// MaxToolRounds bounds the model -> tools -> model loop
	MaxToolRounds = 2
)

// Confidence reported for replies of each provider kind
var confidences = map[string]float64{
	model.ProviderOpenAI:   0.85,
	model.ProviderArk:      0.90,
	model.ProviderDeepSeek: 0.85,
	model.ProviderOllama:   0.80,
}

var defaultModels = map[string]string{
	model.ProviderOpenAI:   "gpt-4o-mini",
	model.ProviderDeepSeek: "deepseek-chat",
	model.ProviderOllama:   "llama3.1",
}

// Completion is a provider reply
type Completion struct {
	Text       string
	Confidence float64
	Provider   string
}

// Provider generates a reply for a fully formed prompt
type Provider interface {
	Name() string
	Generate(ctx context.Context, prompt string) (Completion, error)
}

// ChatProvider runs an eino chain: Template -> ChatModel. With tools the
// chain becomes a graph in which the model may call the tools before it
// answers.
type ChatProvider struct {
	name       string
	confidence float64
	chain      compose.Runnable[map[string]any, *schema.Message]
}

// NewChatProvider compiles the chain around any eino chat model
func NewChatProvider(ctx context.Context, name string, confidence float64, chatModel einomodel.BaseChatModel, tools ...tool.BaseTool) (*ChatProvider, error) {
	if len(tools) > 0 {
		graph, err := newToolGraph(ctx, chatModel, tools)
		if err != nil {
			return nil, fmt.Errorf("error creating Eino tool graph: %w", err)
		}
		return &ChatProvider{name: name, confidence: confidence, chain: graph}, nil
	}

	chain, err := compose.NewChain[map[string]any, *schema.Message]().
		AppendChatTemplate(createTemplate()).
		AppendChatModel(chatModel).
		Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("error creating Eino chain: %w", err)
	}
	return &ChatProvider{name: name, confidence: confidence, chain: chain}, nil
}

// toolState is the conversation so far, shared by the model and tools
// nodes of one run
type toolState struct {
	Messages []*schema.Message
}

// newToolGraph wires template -> model, and model -> tools -> model while
// the model keeps asking for tool calls
func newToolGraph(ctx context.Context, chatModel einomodel.BaseChatModel, tools []tool.BaseTool) (compose.Runnable[map[string]any, *schema.Message], error) {
	calling, ok := chatModel.(einomodel.ToolCallingChatModel)
	if !ok {
		return nil, ErrToolsUnsupported
	}

	infos := make([]*schema.ToolInfo, 0, len(tools))
	for _, t := range tools {
		info, err := t.Info(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to describe tool: %w", err)
		}
		infos = append(infos, info)
	}
	bound, err := calling.WithTools(infos)
	if err != nil {
		return nil, fmt.Errorf("failed to bind tools: %w", err)
	}

	toolsNode, err := compose.NewToolNode(ctx, &compose.ToolsNodeConfig{Tools: tools})
	if err != nil {
		return nil, fmt.Errorf("failed to create tools node: %w", err)
	}

	graph := compose.NewGraph[map[string]any, *schema.Message](
		compose.WithGenLocalState(func(context.Context) *toolState { return &toolState{} }),
	)

	if err := graph.AddChatTemplateNode(nodeTemplate, createTemplate()); err != nil {
		return nil, err
	}
	err = graph.AddChatModelNode(nodeModel, bound,
		compose.WithStatePreHandler(func(_ context.Context, in []*schema.Message, state *toolState) ([]*schema.Message, error) {
			state.Messages = append(state.Messages, in...)
			return state.Messages, nil
		}))
	if err != nil {
		return nil, err
	}
	err = graph.AddToolsNode(nodeTools, toolsNode,
		compose.WithStatePreHandler(func(_ context.Context, in *schema.Message, state *toolState) (*schema.Message, error) {
			state.Messages = append(state.Messages, in)
			return in, nil
		}))
	if err != nil {
		return nil, err
	}

	if err := graph.AddEdge(compose.START, nodeTemplate); err != nil {
		return nil, err
	}
	if err := graph.AddEdge(nodeTemplate, nodeModel); err != nil {
		return nil, err
	}
	err = graph.AddBranch(nodeModel, compose.NewGraphBranch(func(_ context.Context, msg *schema.Message) (string, error) {
		if len(msg.ToolCalls) > 0 {
			return nodeTools, nil
		}
		return compose.END, nil
	}, map[string]bool{nodeTools: true, compose.END: true}))
	if err != nil {
		return nil, err
	}
	if err := graph.AddEdge(nodeTools, nodeModel); err != nil {
		return nil, err
	}

	// template and model, then tools and model again for each round
	return graph.Compile(ctx,
		compose.WithMaxRunSteps(2*(MaxToolRounds+2)),
		compose.WithNodeTriggerMode(compose.AnyPredecessor),
	)
}

func (p *ChatProvider) Name() string {
	return p.name
}

// Generate invokes the chain once; it does not retry
func (p *ChatProvider) Generate(ctx context.Context, prompt string) (Completion, error) {
	out, err := p.chain.Invoke(ctx, map[string]any{promptVar: prompt})
	if err != nil {
		return Completion{}, fmt.Errorf("%s generate: %w", p.name, err)
	}
	if out == nil || strings.TrimSpace(out.Content) == "" {
		return Completion{}, fmt.Errorf("%s: %w", p.name, ErrEmptyCompletion)
	}
	return Completion{
		Text:       strings.TrimSpace(out.Content),
		Confidence: p.confidence,
		Provider:   p.name,
	}, nil
}

// NewProvider builds the chat model selected by config, bound to tools
func NewProvider(ctx context.Context, config model.ProviderConfig, tools ...tool.BaseTool) (*ChatProvider, error) {
	chatModel, err := newChatModel(ctx, config)
	if err != nil {
		return nil, err
	}
	return NewChatProvider(ctx, config.Kind, confidences[config.Kind], chatModel, tools...)
}

func newChatModel(ctx context.Context, config model.ProviderConfig) (einomodel.BaseChatModel, error) {
	modelName := config.Model
	if modelName == "" {
		modelName = defaultModels[config.Kind]
	}
	maxTokens := config.MaxTokens
	temperature := config.Temperature

	switch config.Kind {
	case model.ProviderOpenAI:
		chatModel, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
			APIKey:      config.APIKey,
			BaseURL:     config.BaseURL,
			Model:       modelName,
			MaxTokens:   &maxTokens,
			Temperature: &temperature,
		})
		if err != nil {
			return nil, fmt.Errorf("error creating openai chat model: %w", err)
		}
		return chatModel, nil

	case model.ProviderArk:
		if modelName == "" {
			return nil, fmt.Errorf("ark provider requires a model endpoint id")
		}
		chatModel, err := ark.NewChatModel(ctx, &ark.ChatModelConfig{
			APIKey:      config.APIKey,
			BaseURL:     config.BaseURL,
			Model:       modelName,
			MaxTokens:   &maxTokens,
			Temperature: &temperature,
		})
		if err != nil {
			return nil, fmt.Errorf("error creating ark chat model: %w", err)
		}
		return chatModel, nil

	case model.ProviderDeepSeek:
		chatModel, err := deepseek.NewChatModel(ctx, &deepseek.ChatModelConfig{
			APIKey:      config.APIKey,
			BaseURL:     config.BaseURL,
			Model:       modelName,
			MaxTokens:   maxTokens,
			Temperature: temperature,
		})
		if err != nil {
			return nil, fmt.Errorf("error creating deepseek chat model: %w", err)
		}
		return chatModel, nil

	case model.ProviderOllama:
		baseURL := config.BaseURL
		if baseURL == "" {
			baseURL = "http://localhost:11434"
		}
		chatModel, err := ollama.NewChatModel(ctx, &ollama.ChatModelConfig{
			BaseURL: baseURL,
			Model:   modelName,
			Options: &api.Options{
				Temperature: temperature,
				NumPredict:  maxTokens,
			},
		})
		if err != nil {
			return nil, fmt.Errorf("error creating ollama chat model: %w", err)
		}
		return chatModel, nil
	}

	return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, config.Kind)
}
