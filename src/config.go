package src

import (
	"fmt"

	"rent360_assistant/src/model"

	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix is prepended to every configuration variable
const EnvPrefix = "ASSISTANT"

type Config struct {
	Log      model.LogConfig      `envconfig:"LOG"`
	Provider model.ProviderConfig `envconfig:"PROVIDER"`
	Storage  model.StorageConfig  `envconfig:"STORAGE"`
	Pipeline model.PipelineConfig `envconfig:"PIPELINE"`
}

// LoadConfig reads ASSISTANT_* variables from the environment
func LoadConfig() (*Config, error) {
	var config Config
	err := envconfig.Process(EnvPrefix, &config)
	if err != nil {
		return nil, fmt.Errorf("error processing environment configuration: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate rejects unknown backends and out-of-range limits
func (c *Config) Validate() error {
	switch c.Provider.Kind {
	case model.ProviderNone, model.ProviderOpenAI, model.ProviderArk, model.ProviderDeepSeek, model.ProviderOllama:
	default:
		return fmt.Errorf("unknown provider kind %q", c.Provider.Kind)
	}
	switch c.Storage.MemoryBackend {
	case model.BackendMemory:
	case model.BackendRedis:
		if c.Storage.RedisURL == "" {
			return fmt.Errorf("redis memory backend requires %s_STORAGE_REDIS_URL", EnvPrefix)
		}
	default:
		return fmt.Errorf("unknown memory backend %q", c.Storage.MemoryBackend)
	}
	switch c.Storage.LearningBackend {
	case model.BackendMemory, model.BackendSQLite:
	case model.BackendRedis:
		if c.Storage.RedisURL == "" {
			return fmt.Errorf("redis learning backend requires %s_STORAGE_REDIS_URL", EnvPrefix)
		}
	default:
		return fmt.Errorf("unknown learning backend %q", c.Storage.LearningBackend)
	}
	if c.Pipeline.MemoryLimit <= 0 {
		return fmt.Errorf("memory limit must be positive, got %d", c.Pipeline.MemoryLimit)
	}
	if c.Pipeline.ProviderTimeout <= 0 {
		return fmt.Errorf("provider timeout must be positive, got %s", c.Pipeline.ProviderTimeout)
	}
	return nil
}
