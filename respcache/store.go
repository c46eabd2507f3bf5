// Package respcache stores handler responses so that repeated, identical
// read-only requests (a room list polled by every client in a lobby, for
// example) are answered without invoking the handler again. Stores collapse
// concurrent misses for the same key into a single handler call.
package respcache

import (
	"context"
	"errors"
	"time"
)

// ErrUnknownBackend is returned by New for an unrecognised backend name.
var ErrUnknownBackend = errors.New("unknown response cache backend")

// FetchFunc produces a response on a cache miss.
type FetchFunc func(ctx context.Context) (string, error)

// Store caches responses by key.
type Store interface {
	// GetOrFetch returns the cached response for key, or calls fetch, caches
	// its result for ttl and returns it. Errors from fetch are returned and
	// never cached.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout control
	//   - key: The cache key
	//   - ttl: Time-to-live of a freshly fetched response
	//   - fetch: Producer invoked on a miss
	//
	// Returns:
	//   - The cached or fetched response
	//   - An error if the store or fetch fails
	GetOrFetch(ctx context.Context, key string, ttl time.Duration, fetch FetchFunc) (string, error)

	// Delete removes key.
	Delete(ctx context.Context, key string) error

	// DeleteByPrefix removes every key starting with prefix and returns how
	// many were removed.
	DeleteByPrefix(ctx context.Context, prefix string) (int, error)

	// ItemCount returns the number of cached responses.
	ItemCount(ctx context.Context) (int, error)

	// Close releases the store's resources.
	Close() error
}
