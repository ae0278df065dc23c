package model

// ================ Provider ================

// Provider kinds accepted by ProviderConfig.Kind
const (
	ProviderNone     = "none"
	ProviderOpenAI   = "openai"
	ProviderArk      = "ark"
	ProviderDeepSeek = "deepseek"
	ProviderOllama   = "ollama"
)

// ProviderConfig selects the external chat model used by the provider tier
type ProviderConfig struct {
	Kind        string  `envconfig:"KIND" default:"none"`
	APIKey      string  `envconfig:"API_KEY"`
	Model       string  `envconfig:"MODEL"`
	BaseURL     string  `envconfig:"BASE_URL"`
	MaxTokens   int     `envconfig:"MAX_TOKENS" default:"1000"`
	Temperature float32 `envconfig:"TEMPERATURE" default:"0.7"`
}

// Enabled reports whether a provider is configured
func (c ProviderConfig) Enabled() bool {
	return c.Kind != "" && c.Kind != ProviderNone
}
