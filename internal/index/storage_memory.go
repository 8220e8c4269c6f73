package index

import (
	"context"
	"sync"

	"roadlog/pkg/domain"
)

// InMemoryStorage backs the index in tests and development. State is lost on
// restart, which is acceptable: the index is rebuilt from the authoritative
// store by the repair path.
type InMemoryStorage struct {
	mu     sync.RWMutex
	scopes map[string]*memoryScope
}

type memoryScope struct {
	summaries map[domain.RecordID]Summary
	counters  map[string]int
	legacy    []Summary
	hasLegacy bool
}

func NewInMemoryStorage() *InMemoryStorage {
	return &InMemoryStorage{scopes: make(map[string]*memoryScope)}
}

func (s *InMemoryStorage) scope(name string) *memoryScope {
	sc, ok := s.scopes[name]
	if !ok {
		sc = &memoryScope{
			summaries: make(map[domain.RecordID]Summary),
			counters:  make(map[string]int),
		}
		s.scopes[name] = sc
	}
	return sc
}

func (s *InMemoryStorage) Summaries(_ context.Context, scope string) ([]Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sc, ok := s.scopes[scope]
	if !ok {
		return nil, nil
	}
	items := make([]Summary, 0, len(sc.summaries))
	for _, item := range sc.summaries {
		items = append(items, item)
	}
	SortSummaries(items)
	return items, nil
}

func (s *InMemoryStorage) UpsertSummaries(_ context.Context, scope string, items []Summary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sc := s.scope(scope)
	for _, item := range items {
		sc.summaries[item.ID] = item
	}
	return nil
}

func (s *InMemoryStorage) DeleteSummary(_ context.Context, scope string, id domain.RecordID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sc, ok := s.scopes[scope]; ok {
		delete(sc.summaries, id)
	}
	return nil
}

func (s *InMemoryStorage) Counter(_ context.Context, scope, name string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if sc, ok := s.scopes[scope]; ok {
		return sc.counters[name], nil
	}
	return 0, nil
}

func (s *InMemoryStorage) SetCounter(_ context.Context, scope, name string, value int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scope(scope).counters[name] = value
	return nil
}

func (s *InMemoryStorage) LegacyList(_ context.Context, scope string) ([]Summary, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sc, ok := s.scopes[scope]
	if !ok || !sc.hasLegacy {
		return nil, false, nil
	}
	return append([]Summary(nil), sc.legacy...), true, nil
}

func (s *InMemoryStorage) ClearLegacy(_ context.Context, scope string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sc, ok := s.scopes[scope]; ok {
		sc.legacy = nil
		sc.hasLegacy = false
	}
	return nil
}

// SeedLegacy installs a legacy flat list for a scope. Test hook for the
// cold-start migration path.
func (s *InMemoryStorage) SeedLegacy(scope string, items []Summary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sc := s.scope(scope)
	sc.legacy = append([]Summary(nil), items...)
	sc.hasLegacy = true
}
