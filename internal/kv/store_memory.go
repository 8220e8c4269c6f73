package kv

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"roadlog/pkg/platform/sentinel"
)

// InMemoryStore keeps the development and test implementation lightweight.
// It intentionally favors clarity over performance: List copies and sorts
// the keyspace on every call.
type InMemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time // zero means no expiry
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

// SetNowFunc overrides the clock used for TTL expiry. Test hook only.
func (s *InMemoryStore) SetNowFunc(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *InMemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[key]
	if !ok || s.expired(entry) {
		return nil, sentinel.ErrNotFound
	}
	value := make([]byte, len(entry.value))
	copy(value, entry.value)
	return value, nil
}

func (s *InMemoryStore) Put(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry := memoryEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		entry.expiresAt = s.now().Add(ttl)
	}
	s.entries[key] = entry
	return nil
}

func (s *InMemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

// List pages through keys under prefix in lexical order. The cursor is the
// last key of the previous page.
func (s *InMemoryStore) List(_ context.Context, prefix, cursor string, limit int) (Page, error) {
	if limit <= 0 {
		limit = 100
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.entries))
	for key, entry := range s.entries {
		if !strings.HasPrefix(key, prefix) || s.expired(entry) {
			continue
		}
		if cursor != "" && key <= cursor {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	page := Page{Complete: true}
	if len(keys) > limit {
		keys = keys[:limit]
		page.Cursor = keys[len(keys)-1]
		page.Complete = false
	}
	page.Keys = keys
	return page, nil
}

func (s *InMemoryStore) expired(entry memoryEntry) bool {
	return !entry.expiresAt.IsZero() && !s.now().Before(entry.expiresAt)
}
