package conversation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"rent360_assistant/pkg"

	"github.com/google/uuid"
)

// DefaultLimit is the number of entries kept per user
const DefaultLimit = 50

// Memory is the bounded conversational memory service
type Memory struct {
	repo  Repository
	limit int
	now   func() time.Time
}

func NewMemory(repo Repository, limit int) *Memory {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Memory{repo: repo, limit: limit, now: time.Now}
}

// Load returns the user's entries, oldest first, or an empty list
func (m *Memory) Load(ctx context.Context, userID string) ([]pkg.MemoryEntry, error) {
	entries, err := m.repo.Load(ctx, userID)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []pkg.MemoryEntry{}
	}
	return entries, nil
}

// Append stores the entry and evicts the oldest ones beyond the limit.
// A missing id or timestamp is filled in.
func (m *Memory) Append(ctx context.Context, userID string, entry pkg.MemoryEntry) (pkg.MemoryEntry, error) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = m.now().UTC()
	}
	return entry, m.repo.Append(ctx, userID, entry, m.limit)
}

// ErrInvalidSatisfaction is returned for a score outside 1-5
var ErrInvalidSatisfaction = errors.New("satisfaction must be between 1 and 5")

// Rate stores a satisfaction score on the entry with entryID, or on the
// user's newest entry when entryID is empty, and returns the rated entry
func (m *Memory) Rate(ctx context.Context, userID, entryID string, satisfaction int) (pkg.MemoryEntry, error) {
	if satisfaction < 1 || satisfaction > 5 {
		return pkg.MemoryEntry{}, fmt.Errorf("%w: got %d", ErrInvalidSatisfaction, satisfaction)
	}
	var rated pkg.MemoryEntry
	err := m.repo.Update(ctx, userID, entryID, func(e *pkg.MemoryEntry) {
		e.Satisfaction = satisfaction
		rated = *e
	})
	return rated, err
}

// Limit returns the per-user cap
func (m *Memory) Limit() int {
	return m.limit
}
