package conversation

import (
	"context"
	"errors"
	"slices"
	"sync"

	"rent360_assistant/pkg"
)

// ErrEntryNotFound is returned when an update matches no memory entry
var ErrEntryNotFound = errors.New("memory entry not found")

// Repository stores the per-user memory list, oldest entry first
type Repository interface {
	Load(ctx context.Context, userID string) ([]pkg.MemoryEntry, error)
	// Append stores entry and drops the oldest entries beyond limit in
	// one step. A limit <= 0 keeps everything.
	Append(ctx context.Context, userID string, entry pkg.MemoryEntry, limit int) error
	// Update applies fn to the entry with entryID, or to the newest entry
	// when entryID is empty
	Update(ctx context.Context, userID, entryID string, fn func(*pkg.MemoryEntry)) error
}

// InMemoryRepository keeps memory lists in a mutex-guarded map
type InMemoryRepository struct {
	mu      sync.RWMutex
	entries map[string][]pkg.MemoryEntry
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{entries: make(map[string][]pkg.MemoryEntry)}
}

func (r *InMemoryRepository) Load(_ context.Context, userID string) ([]pkg.MemoryEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.entries[userID]), nil
}

func (r *InMemoryRepository) Append(_ context.Context, userID string, entry pkg.MemoryEntry, limit int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := append(r.entries[userID], entry)
	if excess := len(list) - limit; limit > 0 && excess > 0 {
		list = slices.Clone(list[excess:])
	}
	r.entries[userID] = list
	return nil
}

func (r *InMemoryRepository) Update(_ context.Context, userID, entryID string, fn func(*pkg.MemoryEntry)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.entries[userID]
	i := findEntry(list, entryID)
	if i < 0 {
		return ErrEntryNotFound
	}
	fn(&list[i])
	return nil
}

// findEntry returns the index of entryID, the last index for an empty
// id, or -1
func findEntry(list []pkg.MemoryEntry, entryID string) int {
	if entryID == "" {
		return len(list) - 1
	}
	return slices.IndexFunc(list, func(e pkg.MemoryEntry) bool { return e.ID == entryID })
}
