package cache

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-process Store. Entries are copied on the way in and out
// so callers never share body slices with the store.
type MemoryStore struct {
	mu   sync.RWMutex
	gens map[string]map[string]Entry
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{gens: make(map[string]map[string]Entry)}
}

func (s *MemoryStore) Open(_ context.Context, generation string) error {
	if err := checkGeneration(generation); err != nil {
		return err
	}
	s.mu.Lock()
	if _, ok := s.gens[generation]; !ok {
		s.gens[generation] = make(map[string]Entry)
	}
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, generation, fingerprint string) (Entry, error) {
	if err := checkGeneration(generation); err != nil {
		return Entry{}, err
	}
	s.mu.RLock()
	e, ok := s.gens[generation][fingerprint]
	s.mu.RUnlock()
	if !ok {
		return Entry{}, ErrNotFound
	}
	return copyEntry(e), nil
}

func (s *MemoryStore) Put(_ context.Context, generation, fingerprint string, entry Entry) error {
	if err := checkGeneration(generation); err != nil {
		return err
	}
	s.mu.Lock()
	g, ok := s.gens[generation]
	if !ok {
		g = make(map[string]Entry)
		s.gens[generation] = g
	}
	g[fingerprint] = copyEntry(entry)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) DeleteGeneration(_ context.Context, generation string) error {
	if err := checkGeneration(generation); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.gens, generation)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) ListGenerations(_ context.Context) ([]string, error) {
	s.mu.RLock()
	names := make([]string, 0, len(s.gens))
	for name := range s.gens {
		names = append(names, name)
	}
	s.mu.RUnlock()
	sort.Strings(names)
	return names, nil
}

func (s *MemoryStore) Close() error { return nil }

func copyEntry(e Entry) Entry {
	e.Header = e.Header.Clone()
	e.Body = append([]byte(nil), e.Body...)
	return e
}
