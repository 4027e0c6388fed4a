// Package history keeps a capped, append-only log of past results.
package history

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nstogner/forge/pkg/domain"
)

// Log is an append-only record of results with FIFO eviction beyond a
// fixed capacity.
type Log interface {
	// Append adds entry, assigning ID and CreatedAt when unset. The oldest
	// entries are dropped once the log exceeds its capacity.
	Append(ctx context.Context, entry *domain.HistoryEntry) error

	// List returns up to limit entries, newest first. A limit <= 0 returns all.
	List(ctx context.Context, limit int) ([]domain.HistoryEntry, error)
}

// Prepare fills the generated fields of entry.
func Prepare(entry *domain.HistoryEntry) {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
}

// Ring is an in-memory Log. It starts empty and trims on insert.
type Ring struct {
	mu       sync.Mutex
	capacity int
	entries  []domain.HistoryEntry
}

// Verify interface compliance.
var _ Log = (*Ring)(nil)

// NewRing creates an empty ring holding at most capacity entries.
func NewRing(capacity int) *Ring {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring{capacity: capacity}
}

func (r *Ring) Append(_ context.Context, entry *domain.HistoryEntry) error {
	Prepare(entry)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, *entry)
	if over := len(r.entries) - r.capacity; over > 0 {
		r.entries = append(r.entries[:0:0], r.entries[over:]...)
	}
	return nil
}

func (r *Ring) List(_ context.Context, limit int) ([]domain.HistoryEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.entries)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]domain.HistoryEntry, 0, n)
	for i := len(r.entries) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, r.entries[i])
	}
	return out, nil
}

// Len returns the number of retained entries.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
