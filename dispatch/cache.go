package dispatch

import (
	"context"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/cyberinferno/gameserver/respcache"
)

// Cached wraps op so that results are looked up in store by route and
// payload before op runs. Errors are never cached.
//
// Parameters:
//   - store: Where results are kept
//   - ttl: Lifetime of a cached result
//   - route: The route op serves; part of the cache key
//   - op: The operation to memoise
//
// Returns:
//   - The memoising operation
func Cached(store respcache.Store, ttl time.Duration, route Route, op Operation) Operation {
	prefix := cachePrefix(route)

	return func(ctx context.Context, payload string) (string, error) {
		key := prefix + strconv.Itoa(len(payload)) + ":" + strconv.FormatUint(xxhash.Sum64String(payload), 16)
		return store.GetOrFetch(ctx, key, ttl, func(ctx context.Context) (string, error) {
			return op(ctx, payload)
		})
	}
}

func cachePrefix(route Route) string {
	return route.String() + ":"
}
