package auth

import (
	"context"
	"sync"

	"auction-sync/internal/domain"
)

// MemoryTokenStore keeps items for the life of the process. It is seeded from
// configuration when the token is supplied through the environment.
type MemoryTokenStore struct {
	mu    sync.RWMutex
	items map[string]string
}

var _ domain.TokenStore = (*MemoryTokenStore)(nil)

func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{items: make(map[string]string)}
}

// NewStaticTokenStore returns a store that already holds token under domain.AuthTokenKey.
func NewStaticTokenStore(token string) *MemoryTokenStore {
	s := NewMemoryTokenStore()
	if token != "" {
		s.items[domain.AuthTokenKey] = token
	}
	return s
}

func (s *MemoryTokenStore) GetItem(_ context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.items[key], nil
}

func (s *MemoryTokenStore) SetItem(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if value == "" {
		delete(s.items, key)
		return nil
	}
	s.items[key] = value
	return nil
}
