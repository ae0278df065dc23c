package model

import "time"

// Storage backends
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendSQLite = "sqlite"
)

// StorageConfig picks where conversational memory and learning counters live.
//
// memory:<user_id>  capped list of JSON memory entries (redis backend)
type StorageConfig struct {
	MemoryBackend   string        `envconfig:"MEMORY_BACKEND" default:"memory"`
	RedisURL        string        `envconfig:"REDIS_URL"`
	MemoryTTL       time.Duration `envconfig:"MEMORY_TTL" default:"720h"`
	LearningBackend string        `envconfig:"LEARNING_BACKEND" default:"memory"`
	SQLitePath      string        `envconfig:"SQLITE_PATH" default:"rent360_learning.db"`
}
