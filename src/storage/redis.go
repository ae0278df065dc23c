package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrMissingURL is returned when no redis URL is configured
var ErrMissingURL = errors.New("redis URL is required")

// RedisStorage wraps a redis client with the capped list operations used
// by conversational memory
type RedisStorage struct {
	client *redis.Client
}

// NewRedisStorage parses url, connects and pings the server
func NewRedisStorage(ctx context.Context, url string) (*RedisStorage, error) {
	if url == "" {
		return nil, ErrMissingURL
	}

	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	// Test connection
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisStorage{client: client}, nil
}

// NewRedisStorageFromClient wraps an existing client
func NewRedisStorageFromClient(client *redis.Client) *RedisStorage {
	return &RedisStorage{client: client}
}

// PushCapped appends value to the list at key, keeps only the newest
// limit items and refreshes the TTL, in one transaction
func (r *RedisStorage) PushCapped(ctx context.Context, key string, value []byte, limit int, ttl time.Duration) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, value)
		if limit > 0 {
			pipe.LTrim(ctx, key, int64(-limit), -1)
		}
		if ttl > 0 {
			pipe.Expire(ctx, key, ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to push to %s: %w", key, err)
	}
	return nil
}

// Range returns every item of the list at key, oldest first
func (r *RedisStorage) Range(ctx context.Context, key string) ([]string, error) {
	items, err := r.client.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return items, nil
}

// maxUpdateRetries bounds the optimistic retries of UpdateItem
const maxUpdateRetries = 3

// ErrNoMatch is returned by UpdateItem when pick selects no item
var ErrNoMatch = errors.New("no list item matched")

// UpdateItem replaces one item of the list at key. pick receives the
// items oldest first and returns the index to replace with its new
// value, or -1. The read and write run under WATCH and are retried when
// another client changes the list in between.
func (r *RedisStorage) UpdateItem(ctx context.Context, key string, pick func(items []string) (int, []byte, error)) error {
	txf := func(tx *redis.Tx) error {
		items, err := tx.LRange(ctx, key, 0, -1).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		i, value, err := pick(items)
		if err != nil {
			return err
		}
		if i < 0 || i >= len(items) {
			return ErrNoMatch
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.LSet(ctx, key, int64(i), value)
			return nil
		})
		return err
	}

	for range maxUpdateRetries {
		err := r.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil && !errors.Is(err, ErrNoMatch) {
			return fmt.Errorf("failed to update %s: %w", key, err)
		}
		return err
	}
	return fmt.Errorf("failed to update %s: %w", key, redis.TxFailedErr)
}

// Delete removes key
func (r *RedisStorage) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

// GetTTL gets remaining TTL for a key
func (r *RedisStorage) GetTTL(ctx context.Context, key string) (time.Duration, error) {
	ttl, err := r.client.TTL(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get TTL: %w", err)
	}
	return ttl, nil
}

// Client returns the underlying client
func (r *RedisStorage) Client() *redis.Client {
	return r.client
}

// Close closes the Redis connection
func (r *RedisStorage) Close() error {
	return r.client.Close()
}
