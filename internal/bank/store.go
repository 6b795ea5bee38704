// Package bank provides read access to the item bank: the Store interface
// the composition engine queries, and its backends.
package bank

import (
	"context"
	"fmt"
	"sync"

	"github.com/p-n-ai/pai-quizset/internal/document"
)

// Item is one stored record. Items are shared, read-only values; the
// composition pipeline never mutates them.
type Item struct {
	ID          string         `json:"id"`
	Grade       string         `json:"grade"`
	Subject     string         `json:"subject"`
	Category    string         `json:"category"`
	Difficulty  string         `json:"difficulty,omitempty"`
	ContentHash string         `json:"content_hash,omitempty"`
	Payload     *document.Node `json:"content"`
}

// Filter selects items by equality. Empty fields match anything.
type Filter struct {
	Grade    string
	Subject  string
	Category string
}

// Matches reports whether it satisfies f.
func (f Filter) Matches(it Item) bool {
	return (f.Grade == "" || f.Grade == it.Grade) &&
		(f.Subject == "" || f.Subject == it.Subject) &&
		(f.Category == "" || f.Category == it.Category)
}

// Store is the item bank as seen by the composition engine. Every query
// carries a row cap; implementations must never return more than limit
// rows and must reject non-positive limits.
type Store interface {
	Query(ctx context.Context, f Filter, limit int) ([]Item, error)
}

func checkLimit(limit int) error {
	if limit <= 0 {
		return fmt.Errorf("query limit must be positive, got %d", limit)
	}
	return nil
}

// MemoryStore is an in-memory Store used for snapshots and tests.
type MemoryStore struct {
	items []Item
	mu    sync.RWMutex
}

// NewMemoryStore creates a store holding items in insertion order.
func NewMemoryStore(items ...Item) *MemoryStore {
	return &MemoryStore{items: append([]Item{}, items...)}
}

// Add appends items to the store.
func (s *MemoryStore) Add(items ...Item) {
	s.mu.Lock()
	s.items = append(s.items, items...)
	s.mu.Unlock()
}

// Len returns the number of stored items.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

func (s *MemoryStore) Query(ctx context.Context, f Filter, limit int) ([]Item, error) {
	if err := checkLimit(limit); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Item
	for _, it := range s.items {
		if !f.Matches(it) {
			continue
		}
		out = append(out, it)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}
