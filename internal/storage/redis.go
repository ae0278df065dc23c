package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"rent360_assistant/internal/learning"

	"github.com/redis/go-redis/v9"
)

// Redis keys used by the learning store
//
// learning:patterns            sorted set of pattern ids, scored by first use
// learning:pattern:{id}        hash {successes, failures, last_used}
// learning:length:{user_id}    hash bucket -> signed score
// learning:questions           sorted set of questions, scored by frequency
// learning:raters              set of rated user ids
// learning:rating:{user_id}    hash {sum, count}
const (
	patternIndexKey  = "learning:patterns"
	patternKeyPrefix = "learning:pattern:"
	lengthKeyPrefix  = "learning:length:"
	questionsKey     = "learning:questions"
	ratersKey        = "learning:raters"
	ratingKeyPrefix  = "learning:rating:"
	idSeparator      = "\x1f"
)

// RedisLearningStore keeps learning counters in redis hashes
type RedisLearningStore struct {
	client *redis.Client
}

// NewRedisLearningStore wraps a connected client
func NewRedisLearningStore(client *redis.Client) *RedisLearningStore {
	return &RedisLearningStore{client: client}
}

func patternID(text, key string) string {
	return key + idSeparator + text
}

func splitPatternID(id string) (text, key string) {
	key, text, _ = strings.Cut(id, idSeparator)
	return text, key
}

func (r *RedisLearningStore) RecordPattern(ctx context.Context, text, key string, success bool, at time.Time) error {
	id := patternID(text, key)
	field := "failures"
	if success {
		field = "successes"
	}
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAddNX(ctx, patternIndexKey, redis.Z{Score: float64(at.UnixNano()), Member: id})
		pipe.HIncrBy(ctx, patternKeyPrefix+id, field, 1)
		pipe.HSet(ctx, patternKeyPrefix+id, "last_used", at.UnixNano())
		return nil
	})
	if err != nil {
		return fmt.Errorf("record pattern: %w", err)
	}
	return nil
}

func (r *RedisLearningStore) RecordLength(ctx context.Context, userID string, bucket learning.LengthBucket, delta int) error {
	if err := r.client.HIncrBy(ctx, lengthKeyPrefix+userID, string(bucket), int64(delta)).Err(); err != nil {
		return fmt.Errorf("record length: %w", err)
	}
	return nil
}

func (r *RedisLearningStore) RecordQuestion(ctx context.Context, question string) error {
	if err := r.client.ZIncrBy(ctx, questionsKey, 1, question).Err(); err != nil {
		return fmt.Errorf("record question: %w", err)
	}
	return nil
}

func (r *RedisLearningStore) RecordSatisfaction(ctx context.Context, userID string, score int) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, ratersKey, userID)
		pipe.HIncrBy(ctx, ratingKeyPrefix+userID, "sum", int64(score))
		pipe.HIncrBy(ctx, ratingKeyPrefix+userID, "count", 1)
		return nil
	})
	if err != nil {
		return fmt.Errorf("record satisfaction: %w", err)
	}
	return nil
}

// Patterns returns every pattern in first-seen order
func (r *RedisLearningStore) Patterns(ctx context.Context) ([]learning.Pattern, error) {
	ids, err := r.client.ZRange(ctx, patternIndexKey, 0, -1).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("list patterns: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	cmds := make([]*redis.MapStringStringCmd, len(ids))
	_, err = r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HGetAll(ctx, patternKeyPrefix+id)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read patterns: %w", err)
	}

	patterns := make([]learning.Pattern, 0, len(ids))
	for i, id := range ids {
		fields := cmds[i].Val()
		if len(fields) == 0 {
			continue
		}
		text, key := splitPatternID(id)
		patterns = append(patterns, learning.Pattern{
			Text:      text,
			Key:       key,
			Successes: atoi(fields["successes"]),
			Failures:  atoi(fields["failures"]),
			LastUsed:  time.Unix(0, int64(atoi(fields["last_used"]))).UTC(),
		})
	}
	return patterns, nil
}

func (r *RedisLearningStore) LengthScores(ctx context.Context, userID string) (map[learning.LengthBucket]int, error) {
	fields, err := r.client.HGetAll(ctx, lengthKeyPrefix+userID).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("read length scores: %w", err)
	}
	scores := make(map[learning.LengthBucket]int, len(fields))
	for bucket, score := range fields {
		scores[learning.LengthBucket(bucket)] = atoi(score)
	}
	return scores, nil
}

func (r *RedisLearningStore) Questions(ctx context.Context) ([]learning.QuestionCount, error) {
	members, err := r.client.ZRangeWithScores(ctx, questionsKey, 0, -1).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("read questions: %w", err)
	}
	questions := make([]learning.QuestionCount, 0, len(members))
	for _, m := range members {
		question, _ := m.Member.(string)
		questions = append(questions, learning.QuestionCount{Question: question, Frequency: int(m.Score)})
	}
	return questions, nil
}

func (r *RedisLearningStore) Satisfaction(ctx context.Context) (map[string]learning.SatisfactionTally, error) {
	users, err := r.client.SMembers(ctx, ratersKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("list raters: %w", err)
	}

	cmds := make([]*redis.MapStringStringCmd, len(users))
	if len(users) > 0 {
		_, err = r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
			for i, userID := range users {
				cmds[i] = pipe.HGetAll(ctx, ratingKeyPrefix+userID)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("read ratings: %w", err)
		}
	}

	tallies := make(map[string]learning.SatisfactionTally, len(users))
	for i, userID := range users {
		fields := cmds[i].Val()
		tallies[userID] = learning.SatisfactionTally{Sum: atoi(fields["sum"]), Count: atoi(fields["count"])}
	}
	return tallies, nil
}

func (r *RedisLearningStore) DeleteStale(ctx context.Context, cutoff time.Time, minFrequency int) (int, error) {
	patterns, err := r.Patterns(ctx)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, p := range patterns {
		if !p.LastUsed.Before(cutoff) || p.Frequency() >= minFrequency {
			continue
		}
		id := patternID(p.Text, p.Key)
		_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.ZRem(ctx, patternIndexKey, id)
			pipe.Del(ctx, patternKeyPrefix+id)
			return nil
		})
		if err != nil {
			return removed, fmt.Errorf("delete pattern: %w", err)
		}
		removed++
	}
	return removed, nil
}

func atoi(s string) int {
	n, _ := strconv.ParseInt(s, 10, 64)
	return int(n)
}
