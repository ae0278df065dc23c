package learning

import (
	"context"
	"strings"
	"sync"
	"time"
)

// LengthBucket classifies the length of a reply
type LengthBucket string

const (
	LengthShort  LengthBucket = "short"
	LengthMedium LengthBucket = "medium"
	LengthLong   LengthBucket = "long"
)

// Buckets lists the length buckets in tie-break order
var Buckets = []LengthBucket{LengthShort, LengthMedium, LengthLong}

// Pattern is an n-gram counter for one intent_role key
type Pattern struct {
	Text      string    `json:"text"`
	Key       string    `json:"key"`
	Successes int       `json:"successes"`
	Failures  int       `json:"failures"`
	LastUsed  time.Time `json:"last_used"`
}

// Frequency is the number of times the pattern was seen
func (p Pattern) Frequency() int {
	return p.Successes + p.Failures
}

// SuccessRate is the share of successful observations, 0 when unseen
func (p Pattern) SuccessRate() float64 {
	if p.Frequency() == 0 {
		return 0
	}
	return float64(p.Successes) / float64(p.Frequency())
}

// QuestionCount is how often a normalized question was asked
type QuestionCount struct {
	Question  string `json:"question"`
	Frequency int    `json:"frequency"`
}

// SatisfactionTally accumulates one user's ratings
type SatisfactionTally struct {
	Sum   int `json:"sum"`
	Count int `json:"count"`
}

// Average is the mean rating, 0 when unrated
func (t SatisfactionTally) Average() float64 {
	if t.Count == 0 {
		return 0
	}
	return float64(t.Sum) / float64(t.Count)
}

// NormalizeQuestion lowercases message and collapses its whitespace
func NormalizeQuestion(message string) string {
	return strings.Join(strings.Fields(strings.ToLower(message)), " ")
}

// Store persists learning counters. Implementations must be safe for
// concurrent use and apply each increment atomically.
type Store interface {
	RecordPattern(ctx context.Context, text, key string, success bool, at time.Time) error
	RecordLength(ctx context.Context, userID string, bucket LengthBucket, delta int) error
	RecordQuestion(ctx context.Context, question string) error
	RecordSatisfaction(ctx context.Context, userID string, score int) error
	Patterns(ctx context.Context) ([]Pattern, error)
	LengthScores(ctx context.Context, userID string) (map[LengthBucket]int, error)
	// Questions returns every recorded question, in no particular order
	Questions(ctx context.Context) ([]QuestionCount, error)
	// Satisfaction returns the rating tally of every rated user
	Satisfaction(ctx context.Context) (map[string]SatisfactionTally, error)
	DeleteStale(ctx context.Context, cutoff time.Time, minFrequency int) (int, error)
}

type patternKey struct {
	text string
	key  string
}

// MemoryStore keeps counters in process memory
type MemoryStore struct {
	mu       sync.Mutex
	patterns map[patternKey]*Pattern
	order    []patternKey
	lengths  map[string]map[LengthBucket]int
	asked    map[string]int
	ratings  map[string]SatisfactionTally
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		patterns: make(map[patternKey]*Pattern),
		lengths:  make(map[string]map[LengthBucket]int),
		asked:    make(map[string]int),
		ratings:  make(map[string]SatisfactionTally),
	}
}

func (s *MemoryStore) RecordPattern(_ context.Context, text, key string, success bool, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := patternKey{text: text, key: key}
	p, ok := s.patterns[k]
	if !ok {
		p = &Pattern{Text: text, Key: key}
		s.patterns[k] = p
		s.order = append(s.order, k)
	}
	if success {
		p.Successes++
	} else {
		p.Failures++
	}
	p.LastUsed = at
	return nil
}

func (s *MemoryStore) RecordLength(_ context.Context, userID string, bucket LengthBucket, delta int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	scores, ok := s.lengths[userID]
	if !ok {
		scores = make(map[LengthBucket]int)
		s.lengths[userID] = scores
	}
	scores[bucket] += delta
	return nil
}

func (s *MemoryStore) RecordQuestion(_ context.Context, question string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.asked[question]++
	return nil
}

func (s *MemoryStore) RecordSatisfaction(_ context.Context, userID string, score int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tally := s.ratings[userID]
	tally.Sum += score
	tally.Count++
	s.ratings[userID] = tally
	return nil
}

// Patterns returns copies in first-seen order
func (s *MemoryStore) Patterns(_ context.Context) ([]Pattern, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Pattern, 0, len(s.order))
	for _, k := range s.order {
		out = append(out, *s.patterns[k])
	}
	return out, nil
}

func (s *MemoryStore) LengthScores(_ context.Context, userID string) (map[LengthBucket]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[LengthBucket]int, len(s.lengths[userID]))
	for bucket, score := range s.lengths[userID] {
		out[bucket] = score
	}
	return out, nil
}

func (s *MemoryStore) Questions(_ context.Context) ([]QuestionCount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]QuestionCount, 0, len(s.asked))
	for question, n := range s.asked {
		out = append(out, QuestionCount{Question: question, Frequency: n})
	}
	return out, nil
}

func (s *MemoryStore) Satisfaction(_ context.Context) (map[string]SatisfactionTally, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]SatisfactionTally, len(s.ratings))
	for userID, tally := range s.ratings {
		out[userID] = tally
	}
	return out, nil
}

func (s *MemoryStore) DeleteStale(_ context.Context, cutoff time.Time, minFrequency int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	kept := s.order[:0]
	for _, k := range s.order {
		p := s.patterns[k]
		if p.LastUsed.Before(cutoff) && p.Frequency() < minFrequency {
			delete(s.patterns, k)
			removed++
			continue
		}
		kept = append(kept, k)
	}
	s.order = kept
	return removed, nil
}
