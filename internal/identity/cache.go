package identity

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/example/proctor/internal/logging"
	"github.com/example/proctor/internal/retry"
)

// Cache abstracts the Redis operations used by CachedStore.
type Cache interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string) (string, error)
}

// RedisCache is a Cache backed by go-redis.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache constructs a Redis-backed cache adapter.
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func (c *RedisCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return c.client.Set(ctx, key, value, expiration).Err()
}

func (c *RedisCache) Get(ctx context.Context, key string) (string, error) {
	return c.client.Get(ctx, key).Result()
}

// CachedStore fronts a Store with a read-through, write-through cache.
// Profiles are immutable, so entries never need invalidation. Cache
// failures are logged and fall through to the backing store.
type CachedStore struct {
	store  Store
	cache  Cache
	ttl    time.Duration
	policy retry.Policy
	logger *zap.Logger
}

var _ Store = (*CachedStore)(nil)

// NewCachedStore wraps store with cache.
func NewCachedStore(store Store, cache Cache, ttl time.Duration, policy retry.Policy, logger *zap.Logger) *CachedStore {
	return &CachedStore{
		store:  store,
		cache:  cache,
		ttl:    ttl,
		policy: policy,
		logger: logger.Named("profile_cache"),
	}
}

func cacheKey(token string) string {
	return "identity:" + token
}

func (s *CachedStore) Get(ctx context.Context, identityToken string) (*Profile, error) {
	key := cacheKey(identityToken)
	var (
		cached string
		miss   bool
	)
	err := retry.Do(ctx, s.policy, s.logger, "cache.get.profile", func() error {
		v, err := s.cache.Get(ctx, key)
		if errors.Is(err, redis.Nil) {
			miss = true
			return nil
		}
		if err != nil {
			return err
		}
		cached = v
		return nil
	})
	switch {
	case miss:
	case err == nil:
		var p Profile
		decodeErr := json.Unmarshal([]byte(cached), &p)
		if decodeErr == nil {
			return &p, nil
		}
		logging.WithOperation(s.logger, "cache.get.profile", logging.RequestID(ctx)).Warn("failed to decode cached profile", zap.Error(decodeErr))
	default:
		logging.WithOperation(s.logger, "cache.get.profile", logging.RequestID(ctx)).Warn("failed to read cache", zap.Error(err))
	}

	p, err := s.store.Get(ctx, identityToken)
	if err != nil {
		return nil, err
	}
	s.fill(ctx, *p)
	return p, nil
}

func (s *CachedStore) Put(ctx context.Context, profile Profile) error {
	if err := s.store.Put(ctx, profile); err != nil {
		return err
	}
	s.fill(ctx, profile)
	return nil
}

func (s *CachedStore) fill(ctx context.Context, p Profile) {
	serialized, err := json.Marshal(p)
	if err != nil {
		return
	}
	if err := retry.Do(ctx, s.policy, s.logger, "cache.set.profile", func() error {
		return s.cache.Set(ctx, cacheKey(p.IdentityToken), string(serialized), s.ttl)
	}); err != nil {
		logging.WithOperation(s.logger, "cache.set.profile", logging.RequestID(ctx)).Warn("failed to cache profile", zap.Error(err))
	}
}
