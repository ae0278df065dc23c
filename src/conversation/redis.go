package conversation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"rent360_assistant/pkg"
	"rent360_assistant/src/storage"

	"github.com/bytedance/sonic"
)

const memoryPrefix = "memory:"

// RedisRepository stores each memory list as a redis list of JSON entries
type RedisRepository struct {
	store *storage.RedisStorage
	ttl   time.Duration
}

func NewRedisRepository(store *storage.RedisStorage, ttl time.Duration) *RedisRepository {
	return &RedisRepository{store: store, ttl: ttl}
}

func (r *RedisRepository) key(userID string) string {
	return memoryPrefix + userID
}

func (r *RedisRepository) Load(ctx context.Context, userID string) ([]pkg.MemoryEntry, error) {
	items, err := r.store.Range(ctx, r.key(userID))
	if err != nil {
		return nil, err
	}

	entries := make([]pkg.MemoryEntry, 0, len(items))
	for _, item := range items {
		var entry pkg.MemoryEntry
		if err := sonic.UnmarshalString(item, &entry); err != nil {
			return nil, fmt.Errorf("failed to unmarshal memory entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Append pushes the entry, trims to limit and refreshes the TTL in one
// transaction
func (r *RedisRepository) Append(ctx context.Context, userID string, entry pkg.MemoryEntry, limit int) error {
	data, err := sonic.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal memory entry: %w", err)
	}
	return r.store.PushCapped(ctx, r.key(userID), data, limit, r.ttl)
}

func (r *RedisRepository) Update(ctx context.Context, userID, entryID string, fn func(*pkg.MemoryEntry)) error {
	err := r.store.UpdateItem(ctx, r.key(userID), func(items []string) (int, []byte, error) {
		entries := make([]pkg.MemoryEntry, len(items))
		for i, item := range items {
			if err := sonic.UnmarshalString(item, &entries[i]); err != nil {
				return -1, nil, fmt.Errorf("failed to unmarshal memory entry: %w", err)
			}
		}
		i := findEntry(entries, entryID)
		if i < 0 {
			return -1, nil, nil
		}
		fn(&entries[i])
		data, err := sonic.Marshal(entries[i])
		if err != nil {
			return -1, nil, fmt.Errorf("failed to marshal memory entry: %w", err)
		}
		return i, data, nil
	})
	if errors.Is(err, storage.ErrNoMatch) {
		return ErrEntryNotFound
	}
	return err
}
