package respcache

import (
	"context"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"
)

// MemoryStore is an in-process Store backed by go-cache. Concurrent misses
// on the same key share one fetch through singleflight.
type MemoryStore struct {
	cache *cache.Cache
	group singleflight.Group
}

// NewMemoryStore creates a MemoryStore.
//
// Parameters:
//   - defaultExpiration: TTL applied when GetOrFetch is given ttl 0
//   - cleanupInterval: Interval at which expired responses are purged
//
// Returns:
//   - A new MemoryStore
func NewMemoryStore(defaultExpiration, cleanupInterval time.Duration) *MemoryStore {
	return &MemoryStore{
		cache: cache.New(defaultExpiration, cleanupInterval),
	}
}

// GetOrFetch implements Store.
func (s *MemoryStore) GetOrFetch(ctx context.Context, key string, ttl time.Duration, fetch FetchFunc) (string, error) {
	if val, found := s.cache.Get(key); found {
		return val.(string), nil
	}

	val, err, _ := s.group.Do(key, func() (interface{}, error) {
		// Another caller may have filled the key while we waited on the group.
		if cached, found := s.cache.Get(key); found {
			return cached, nil
		}

		fetched, err := fetch(ctx)
		if err != nil {
			return "", err
		}

		s.cache.Set(key, fetched, ttl)
		return fetched, nil
	})
	if err != nil {
		return "", err
	}

	return val.(string), nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.cache.Delete(key)
	return nil
}

// DeleteByPrefix implements Store.
func (s *MemoryStore) DeleteByPrefix(ctx context.Context, prefix string) (int, error) {
	deleted := 0
	for key := range s.cache.Items() {
		if err := ctx.Err(); err != nil {
			return deleted, err
		}

		if strings.HasPrefix(key, prefix) {
			s.cache.Delete(key)
			deleted++
		}
	}

	return deleted, nil
}

// ItemCount implements Store.
func (s *MemoryStore) ItemCount(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	return s.cache.ItemCount(), nil
}

// Close implements Store. It flushes the cache.
func (s *MemoryStore) Close() error {
	s.cache.Flush()
	return nil
}
