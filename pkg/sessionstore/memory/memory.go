// Package memory is an in-process session store.
package memory

import (
	"slices"
	"sync"
)

// Store keeps values in a map. It is the default when no store is given.
type Store struct {
	mu    sync.RWMutex
	items map[string][]byte
}

func New() *Store {
	return &Store{items: make(map[string][]byte)}
}

func (s *Store) SaveItem(key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[key] = slices.Clone(data)
	return nil
}

func (s *Store) LoadItem(key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.items[key]
	if !ok {
		return nil, nil
	}
	return slices.Clone(data), nil
}

func (s *Store) RemoveItem(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, key)
	return nil
}
