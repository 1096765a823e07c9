package cache

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore keeps generations in process memory. It is the default backend
// for a single edge node.
type MemoryStore struct {
	mu          sync.RWMutex
	generations map[string]map[string]Response
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{generations: make(map[string]map[string]Response)}
}

func (s *MemoryStore) Open(ctx context.Context, generation string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.generations[generation]; !ok {
		s.generations[generation] = make(map[string]Response)
	}
	return nil
}

func (s *MemoryStore) Match(ctx context.Context, generation, key string) (Response, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries, ok := s.generations[generation]
	if !ok {
		return Response{}, ErrNotFound
	}
	resp, ok := entries[key]
	if !ok {
		return Response{}, ErrNotFound
	}
	return resp.Clone(), nil
}

func (s *MemoryStore) Put(ctx context.Context, generation, key string, resp Response) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, ok := s.generations[generation]
	if !ok {
		entries = make(map[string]Response)
		s.generations[generation] = entries
	}
	entries[key] = resp.Clone()
	return nil
}

func (s *MemoryStore) PutAll(ctx context.Context, generation string, batch []Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, ok := s.generations[generation]
	if !ok {
		entries = make(map[string]Response, len(batch))
		s.generations[generation] = entries
	}
	for _, e := range batch {
		entries[e.Key] = e.Response.Clone()
	}
	return nil
}

func (s *MemoryStore) Generations(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.generations))
	for name := range s.generations {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (s *MemoryStore) Delete(ctx context.Context, generation string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.generations, generation)
	return nil
}

// Len reports the number of entries in a generation.
func (s *MemoryStore) Len(generation string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.generations[generation])
}
