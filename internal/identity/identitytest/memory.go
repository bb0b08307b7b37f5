// Package identitytest offers an in-memory identity.Store for tests.
package identitytest

import (
	"context"
	"sync"

	"github.com/example/proctor/internal/identity"
)

// MemoryStore is a concurrency-safe identity.Store.
type MemoryStore struct {
	mu       sync.Mutex
	profiles map[string]identity.Profile
	PutErr   error
	GetErr   error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{profiles: map[string]identity.Profile{}}
}

func (s *MemoryStore) Get(ctx context.Context, token string) (*identity.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.GetErr != nil {
		return nil, s.GetErr
	}
	p, ok := s.profiles[token]
	if !ok {
		return nil, identity.ErrProfileNotFound
	}
	return &p, nil
}

func (s *MemoryStore) Put(ctx context.Context, p identity.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.PutErr != nil {
		return s.PutErr
	}
	s.profiles[p.IdentityToken] = p
	return nil
}

// Len returns the number of stored profiles.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.profiles)
}
