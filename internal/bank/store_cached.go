package bank

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const cacheKeyPrefix = "quizset:pool:"

// CachedStore is a read-through cache in front of another Store. Cache
// failures never fail a query; they fall through to the wrapped store.
type CachedStore struct {
	next   Store
	client *redis.Client
	ttl    time.Duration
}

// NewCachedStore wraps next with a Redis-backed query cache.
func NewCachedStore(next Store, client *redis.Client, ttl time.Duration) *CachedStore {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &CachedStore{next: next, client: client, ttl: ttl}
}

func (s *CachedStore) Query(ctx context.Context, f Filter, limit int) ([]Item, error) {
	if err := checkLimit(limit); err != nil {
		return nil, err
	}

	key := cacheKey(f, limit)
	if items, ok := s.lookup(ctx, key); ok {
		return items, nil
	}

	items, err := s.next.Query(ctx, f, limit)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(items)
	if err != nil {
		slog.Warn("encode pool for cache", "key", key, "error", err)
		return items, nil
	}
	if err := s.client.Set(ctx, key, data, s.ttl).Err(); err != nil {
		slog.Warn("cache write failed", "key", key, "error", err)
	}
	return items, nil
}

func (s *CachedStore) lookup(ctx context.Context, key string) ([]Item, bool) {
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			slog.Warn("cache read failed", "key", key, "error", err)
		}
		return nil, false
	}

	var items []Item
	if err := json.Unmarshal(data, &items); err != nil {
		slog.Warn("discarding undecodable cache entry", "key", key, "error", err)
		return nil, false
	}
	return items, true
}

func cacheKey(f Filter, limit int) string {
	return fmt.Sprintf("%s%s|%s|%s|%d", cacheKeyPrefix, f.Grade, f.Subject, f.Category, limit)
}
