package respcache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	lockTTL        = 30 * time.Second
	waitTimeout    = 30 * time.Second
	initialBackoff = 10 * time.Millisecond
	maxBackoff     = 500 * time.Millisecond
)

const releaseLockScript = `
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`

const extendLockScript = `
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("pexpire", KEYS[1], ARGV[2])
	else
		return 0
	end
`

// RedisStore is a Store shared by every server process pointing at the same
// Redis database. All keys live under a namespace so the store never touches
// unrelated data. A miss takes a short-lived lock so that only one process
// runs the handler; the others poll for its result.
type RedisStore struct {
	client    redis.UniversalClient
	namespace string
}

// NewRedisStore creates a RedisStore.
//
// Parameters:
//   - client: A connected Redis client; Close closes it
//   - namespace: Prefix prepended to every key, e.g. "gameserver:"
//
// Returns:
//   - A new RedisStore
func NewRedisStore(client redis.UniversalClient, namespace string) *RedisStore {
	return &RedisStore{client: client, namespace: namespace}
}

// GetOrFetch implements Store.
func (s *RedisStore) GetOrFetch(ctx context.Context, key string, ttl time.Duration, fetch FetchFunc) (string, error) {
	fullKey := s.namespace + key

	val, err := s.client.Get(ctx, fullKey).Result()
	if err == nil {
		return val, nil
	}

	if !errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("redis get error: %w", err)
	}

	lockKey := fullKey + ":lock"
	lockValue := strconv.FormatInt(time.Now().UnixNano(), 10)

	acquired, err := s.client.SetNX(ctx, lockKey, lockValue, lockTTL).Result()
	if err != nil {
		return "", fmt.Errorf("failed to acquire lock: %w", err)
	}

	if !acquired {
		return s.waitForValue(ctx, fullKey, lockKey)
	}

	// Release with a fresh context so a cancelled request still frees the lock.
	defer s.client.Eval(context.Background(), releaseLockScript, []string{lockKey}, lockValue)

	extendCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.extendLock(extendCtx, lockKey, lockValue)

	result, err := fetch(ctx)
	if err != nil {
		return "", err
	}

	if err := s.client.Set(context.Background(), fullKey, result, ttl).Err(); err != nil {
		return "", fmt.Errorf("failed to cache result: %w", err)
	}

	return result, nil
}

// extendLock keeps the lock alive while a slow handler runs.
func (s *RedisStore) extendLock(ctx context.Context, lockKey, lockValue string) {
	ticker := time.NewTicker(lockTTL / 3)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.client.Eval(ctx, extendLockScript, []string{lockKey}, lockValue, lockTTL.Milliseconds())
		}
	}
}

// waitForValue polls with exponential backoff until the lock holder stores
// the value, the lock disappears without a value, or waitTimeout elapses.
func (s *RedisStore) waitForValue(ctx context.Context, fullKey, lockKey string) (string, error) {
	backoff := initialBackoff
	deadline := time.Now().Add(waitTimeout)

	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		if time.Now().After(deadline) {
			return "", errors.New("timeout waiting for cached response")
		}

		val, err := s.client.Get(ctx, fullKey).Result()
		if err == nil {
			return val, nil
		}

		if !errors.Is(err, redis.Nil) {
			return "", fmt.Errorf("redis get error: %w", err)
		}

		exists, err := s.client.Exists(ctx, lockKey).Result()
		if err != nil {
			return "", fmt.Errorf("failed to check lock existence: %w", err)
		}

		if exists == 0 {
			if val, err := s.client.Get(ctx, fullKey).Result(); err == nil {
				return val, nil
			}

			return "", errors.New("fetch failed or response not cached")
		}

		time.Sleep(backoff)
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// Delete implements Store.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.namespace+key).Err(); err != nil {
		return fmt.Errorf("failed to delete key: %w", err)
	}

	return nil
}

// DeleteByPrefix implements Store.
func (s *RedisStore) DeleteByPrefix(ctx context.Context, prefix string) (int, error) {
	keys, err := s.scan(ctx, s.namespace+prefix+"*")
	if err != nil {
		return 0, err
	}

	if len(keys) == 0 {
		return 0, nil
	}

	deleted, err := s.client.Del(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to delete keys: %w", err)
	}

	return int(deleted), nil
}

// ItemCount implements Store. Only responses under the namespace are
// counted; in-flight locks are not.
func (s *RedisStore) ItemCount(ctx context.Context) (int, error) {
	keys, err := s.scan(ctx, s.namespace+"*")
	if err != nil {
		return 0, err
	}

	count := 0
	for _, key := range keys {
		if !strings.HasSuffix(key, ":lock") {
			count++
		}
	}

	return count, nil
}

// Close implements Store.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) scan(ctx context.Context, match string) ([]string, error) {
	var keys []string

	iter := s.client.Scan(ctx, 0, match, 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}

	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan keys: %w", err)
	}

	return keys, nil
}
