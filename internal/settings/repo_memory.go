package settings

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory Store useful for tests.
type MemoryStore struct {
	mu     sync.Mutex
	values map[string]string
	// Err, when set, is returned by every call.
	Err error
}

func NewMemoryStore(initial map[string]string) *MemoryStore {
	s := &MemoryStore{values: make(map[string]string, len(initial))}
	for k, v := range initial {
		s.values[k] = v
	}
	return s
}

func (s *MemoryStore) Get(ctx context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return "", false, s.Err
	}
	v, ok := s.values[key]
	return v, ok, nil
}

func (s *MemoryStore) Set(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.values[key] = value
	return nil
}

func (s *MemoryStore) All(ctx context.Context) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	out := make(map[string]string, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out, nil
}
