package redis

import (
	"context"
	"errors"
	"time"
)

// StateCache caches progression snapshots per user. It satisfies the
// query layer's cache port: a miss is (false, nil), anything else an error.
type StateCache struct {
	cache *Cache
	ttl   time.Duration
}

// NewStateCache creates a StateCache whose entries expire after ttl.
func NewStateCache(cache *Cache, ttl time.Duration) *StateCache {
	return &StateCache{cache: cache, ttl: ttl}
}

// Load decodes the cached snapshot of userID into dest.
func (s *StateCache) Load(ctx context.Context, userID string, dest interface{}) (bool, error) {
	err := s.cache.Get(ctx, StateKey(userID), dest)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrCacheMiss):
		return false, nil
	case errors.Is(err, ErrCacheSerialization):
		// A snapshot from an older layout is as good as absent.
		_ = s.cache.Delete(ctx, StateKey(userID))
		return false, nil
	default:
		return false, err
	}
}

// Store caches v as the snapshot of userID.
func (s *StateCache) Store(ctx context.Context, userID string, v interface{}) error {
	return s.cache.Set(ctx, StateKey(userID), v, s.ttl)
}

// Invalidate drops the cached snapshot of userID.
func (s *StateCache) Invalidate(ctx context.Context, userID string) error {
	return s.cache.Delete(ctx, StateKey(userID))
}
