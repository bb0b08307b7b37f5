package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/example/proctor/internal/retry"
)

type stubStore struct {
	profiles map[string]Profile
	getCalls int
	putErr   error
}

func (s *stubStore) Get(ctx context.Context, token string) (*Profile, error) {
	s.getCalls++
	p, ok := s.profiles[token]
	if !ok {
		return nil, ErrProfileNotFound
	}
	return &p, nil
}

func (s *stubStore) Put(ctx context.Context, p Profile) error {
	if s.putErr != nil {
		return s.putErr
	}
	if s.profiles == nil {
		s.profiles = map[string]Profile{}
	}
	s.profiles[p.IdentityToken] = p
	return nil
}

type mapCache struct {
	values map[string]string
	getErr error
	sets   int
}

func (c *mapCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	c.sets++
	c.values[key] = value.(string)
	return nil
}

func (c *mapCache) Get(ctx context.Context, key string) (string, error) {
	if c.getErr != nil {
		return "", c.getErr
	}
	v, ok := c.values[key]
	if !ok {
		return "", redis.Nil
	}
	return v, nil
}

func newTestCachedStore(store Store, cache Cache) *CachedStore {
	return NewCachedStore(store, cache, time.Minute, retry.Policy{Attempts: 1}, zap.NewNop())
}

func TestCachedStoreReadsThrough(t *testing.T) {
	store := &stubStore{profiles: map[string]Profile{"tok": {CollectionID: "c", IdentityToken: "tok", FullName: "Alice"}}}
	cache := &mapCache{values: map[string]string{}}
	s := newTestCachedStore(store, cache)

	for i := 0; i < 2; i++ {
		p, err := s.Get(context.Background(), "tok")
		if err != nil {
			t.Fatalf("expected profile, got %v", err)
		}
		if p.FullName != "Alice" {
			t.Fatalf("unexpected profile: %+v", p)
		}
	}
	if store.getCalls != 1 {
		t.Fatalf("expected one backing read, got %d", store.getCalls)
	}
}

func TestCachedStoreFallsBackOnCacheFailure(t *testing.T) {
	store := &stubStore{profiles: map[string]Profile{"tok": {IdentityToken: "tok", FullName: "Bob"}}}
	cache := &mapCache{values: map[string]string{}, getErr: errors.New("connection refused")}
	s := newTestCachedStore(store, cache)

	p, err := s.Get(context.Background(), "tok")
	if err != nil {
		t.Fatalf("expected fallback read, got %v", err)
	}
	if p.FullName != "Bob" {
		t.Fatalf("unexpected profile: %+v", p)
	}
}

func TestCachedStoreNotFoundIsNotCached(t *testing.T) {
	store := &stubStore{}
	cache := &mapCache{values: map[string]string{}}
	s := newTestCachedStore(store, cache)

	if _, err := s.Get(context.Background(), "missing"); !errors.Is(err, ErrProfileNotFound) {
		t.Fatalf("expected ErrProfileNotFound, got %v", err)
	}
	if cache.sets != 0 {
		t.Fatalf("expected no cache writes, got %d", cache.sets)
	}
}

func TestCachedStorePutWritesThrough(t *testing.T) {
	store := &stubStore{}
	cache := &mapCache{values: map[string]string{}}
	s := newTestCachedStore(store, cache)

	if err := s.Put(context.Background(), Profile{IdentityToken: "tok", FullName: "Carol"}); err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if _, ok := cache.values["identity:tok"]; !ok {
		t.Fatal("expected profile to be cached")
	}

	store.putErr = errors.New("write failed")
	if err := s.Put(context.Background(), Profile{IdentityToken: "tok2"}); err == nil {
		t.Fatal("expected error")
	}
	if _, ok := cache.values["identity:tok2"]; ok {
		t.Fatal("failed writes must not be cached")
	}
}

func TestCachedStoreColdMissLogsNothing(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	store := &stubStore{profiles: map[string]Profile{"tok": {IdentityToken: "tok", FullName: "Dana"}}}
	cache := &mapCache{values: map[string]string{}}
	s := NewCachedStore(store, cache, time.Minute, retry.DefaultPolicy(3), zap.New(core))

	p, err := s.Get(context.Background(), "tok")
	if err != nil {
		t.Fatalf("expected profile, got %v", err)
	}
	if p.FullName != "Dana" {
		t.Fatalf("unexpected profile: %+v", p)
	}
	if n := logs.FilterLevelExact(zapcore.WarnLevel).Len(); n != 0 {
		t.Fatalf("expected no warnings on a cache miss, got %d: %v", n, logs.All())
	}
	if store.getCalls != 1 {
		t.Fatalf("expected one backing read, got %d", store.getCalls)
	}
}
