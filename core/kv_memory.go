package core

import (
	"context"
	"fmt"
	"sync"
)

// MemoryKVStore is the in-process fallback for the durable key-value
// surface. It backs tests and credential-less startup; real deployments
// inject a durable implementation.
type MemoryKVStore struct {
	mu    sync.RWMutex
	items map[string][]byte
}

func NewMemoryKVStore() *MemoryKVStore {
	return &MemoryKVStore{items: map[string][]byte{}}
}

func (s *MemoryKVStore) Get(_ context.Context, key string) ([]byte, error) {
	if s == nil {
		return nil, fmt.Errorf("core: kv store is nil")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.items[key]
	if !ok {
		return nil, ErrKeyNotFound
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

func (s *MemoryKVStore) Set(_ context.Context, key string, value []byte) error {
	if s == nil {
		return fmt.Errorf("core: kv store is nil")
	}
	stored := make([]byte, len(value))
	copy(stored, value)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[key] = stored
	return nil
}

func (s *MemoryKVStore) Delete(_ context.Context, key string) error {
	if s == nil {
		return fmt.Errorf("core: kv store is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, key)
	return nil
}

var _ KVStore = (*MemoryKVStore)(nil)
