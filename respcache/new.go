package respcache

import (
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Backend names accepted by New.
const (
	BackendNone   = "none"
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Options configures the Store built by New.
type Options struct {
	Backend         string
	DefaultTTL      time.Duration
	CleanupInterval time.Duration
	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	Namespace       string
}

// New builds the Store selected by opts.Backend.
//
// Parameters:
//   - opts: Backend selection and its settings
//
// Returns:
//   - The Store, or nil for BackendNone (and the empty string)
//   - ErrUnknownBackend for any other backend name
func New(opts Options) (Store, error) {
	switch opts.Backend {
	case "", BackendNone:
		return nil, nil
	case BackendMemory:
		return NewMemoryStore(opts.DefaultTTL, opts.CleanupInterval), nil
	case BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     opts.RedisAddr,
			Password: opts.RedisPassword,
			DB:       opts.RedisDB,
		})
		return NewRedisStore(client, opts.Namespace), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, opts.Backend)
	}
}
