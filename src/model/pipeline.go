package model

import "time"

// ================ Log ================

// LogConfig configures the zerolog logger
type LogConfig struct {
	Level      string `envconfig:"LEVEL" default:"info"`
	Format     string `envconfig:"FORMAT" default:"json"`   // json, console
	Output     string `envconfig:"OUTPUT" default:"stdout"` // stdout, stderr, file
	FilePath   string `envconfig:"FILE_PATH" default:"logs/assistant.log"`
	TimeFormat string `envconfig:"TIME_FORMAT" default:"rfc3339"`
}

// ================ Pipeline ================

// PipelineConfig tunes the resolution pipeline
type PipelineConfig struct {
	ProviderTimeout time.Duration `envconfig:"PROVIDER_TIMEOUT" default:"30s"`
	MemoryLimit     int           `envconfig:"MEMORY_LIMIT" default:"50"`
	CatalogDir      string        `envconfig:"CATALOG_DIR"`
	RetentionDays   int           `envconfig:"RETENTION_DAYS" default:"30"`
}
