package index

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roadlog/pkg/domain"
)

func summaryAt(id string, sortDate, createdAt time.Time) Summary {
	return Summary{
		ID:        domain.RecordID(id),
		SortDate:  sortDate,
		CreatedAt: createdAt,
		Data:      []byte(`{"id":"` + id + `"}`),
	}
}

func TestHandle_ListOrdering(t *testing.T) {
	registry := NewRegistry(NewInMemoryStorage())
	handle := registry.For(domain.KindTrip, domain.UserID("u1"))
	ctx := context.Background()

	day := func(d int) time.Time {
		return time.Date(2026, 3, d, 0, 0, 0, 0, time.UTC)
	}

	require.NoError(t, handle.Put(ctx, summaryAt("older", day(1), day(1))))
	require.NoError(t, handle.Put(ctx, summaryAt("newest", day(9), day(9))))
	require.NoError(t, handle.Put(ctx, summaryAt("tie-late", day(5), day(5).Add(time.Hour))))
	require.NoError(t, handle.Put(ctx, summaryAt("tie-early", day(5), day(5))))

	items, err := handle.List(ctx)
	require.NoError(t, err)

	ids := make([]domain.RecordID, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ID)
	}
	assert.Equal(t, []domain.RecordID{"newest", "tie-late", "tie-early", "older"}, ids)
}

func TestHandle_PutDeleteIdempotent(t *testing.T) {
	registry := NewRegistry(NewInMemoryStorage())
	handle := registry.For(domain.KindTrip, domain.UserID("u1"))
	ctx := context.Background()

	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	t.Run("put same id twice keeps one entry", func(t *testing.T) {
		require.NoError(t, handle.Put(ctx, summaryAt("r1", now, now)))
		require.NoError(t, handle.Put(ctx, summaryAt("r1", now.Add(time.Hour), now)))

		items, err := handle.List(ctx)
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, now.Add(time.Hour), items[0].SortDate, "second put should win")
	})

	t.Run("delete missing id is a no-op", func(t *testing.T) {
		require.NoError(t, handle.Delete(ctx, domain.RecordID("nope")))
		require.NoError(t, handle.Delete(ctx, domain.RecordID("r1")))
		require.NoError(t, handle.Delete(ctx, domain.RecordID("r1")))

		items, err := handle.List(ctx)
		require.NoError(t, err)
		assert.Empty(t, items)
	})
}

func TestHandle_MigrateOverlapIdempotent(t *testing.T) {
	registry := NewRegistry(NewInMemoryStorage())
	handle := registry.For(domain.KindTrip, domain.UserID("u1"))
	ctx := context.Background()

	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	batch := []Summary{
		summaryAt("r1", now, now),
		summaryAt("r2", now.Add(time.Hour), now),
	}

	require.NoError(t, handle.Migrate(ctx, batch))
	require.NoError(t, handle.Migrate(ctx, batch))

	items, err := handle.List(ctx)
	require.NoError(t, err)
	assert.Len(t, items, 2)
}

func TestHandle_ScopeIsolation(t *testing.T) {
	registry := NewRegistry(NewInMemoryStorage())
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	trips := registry.For(domain.KindTrip, domain.UserID("u1"))
	expenses := registry.For(domain.KindExpense, domain.UserID("u1"))
	otherUser := registry.For(domain.KindTrip, domain.UserID("u2"))

	require.NoError(t, trips.Put(ctx, summaryAt("r1", now, now)))

	for name, handle := range map[string]*Handle{"other kind": expenses, "other user": otherUser} {
		items, err := handle.List(ctx)
		require.NoError(t, err)
		assert.Empty(t, items, name)
	}

	t.Run("registry returns the same handle per scope", func(t *testing.T) {
		assert.Same(t, trips, registry.For(domain.KindTrip, domain.UserID("u1")))
	})
}

func TestHandle_CheckIncrement(t *testing.T) {
	registry := NewRegistry(NewInMemoryStorage())
	handle := registry.For(domain.KindTrip, domain.UserID("u1"))
	ctx := context.Background()

	t.Run("allows up to the limit then rejects", func(t *testing.T) {
		for i := 1; i <= 3; i++ {
			decision, err := handle.CheckIncrement(ctx, "2026-03", 3)
			require.NoError(t, err)
			assert.True(t, decision.Allowed)
			assert.Equal(t, i, decision.Count)
		}

		decision, err := handle.CheckIncrement(ctx, "2026-03", 3)
		require.NoError(t, err)
		assert.False(t, decision.Allowed)
		assert.Equal(t, 3, decision.Count, "rejection must not change the count")
	})

	t.Run("months are independent", func(t *testing.T) {
		decision, err := handle.CheckIncrement(ctx, "2026-04", 3)
		require.NoError(t, err)
		assert.True(t, decision.Allowed)
		assert.Equal(t, 1, decision.Count)
	})

	t.Run("non-positive limit disables enforcement but still counts", func(t *testing.T) {
		for i := 0; i < 5; i++ {
			decision, err := handle.CheckIncrement(ctx, "2026-05", 0)
			require.NoError(t, err)
			assert.True(t, decision.Allowed)
		}
		decision, err := handle.CheckIncrement(ctx, "2026-05", 0)
		require.NoError(t, err)
		assert.Equal(t, 6, decision.Count)
	})

	t.Run("lifetime counter tracks every allowed increment", func(t *testing.T) {
		lifetime, err := handle.Lifetime(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3+1+6, lifetime)
	})
}

func TestHandle_CheckIncrement_Race(t *testing.T) {
	registry := NewRegistry(NewInMemoryStorage())
	handle := registry.For(domain.KindTrip, domain.UserID("u1"))
	ctx := context.Background()

	const limit = 10

	// Fill the month to one below the limit, then race for the last slot.
	for i := 0; i < limit-1; i++ {
		decision, err := handle.CheckIncrement(ctx, "2026-03", limit)
		require.NoError(t, err)
		require.True(t, decision.Allowed)
	}

	const contenders = 50
	var wg sync.WaitGroup
	wg.Add(contenders)
	allowed := make(chan struct{}, contenders)

	for i := 0; i < contenders; i++ {
		go func() {
			defer wg.Done()
			decision, err := handle.CheckIncrement(ctx, "2026-03", limit)
			assert.NoError(t, err)
			if decision.Allowed {
				allowed <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(allowed)

	assert.Len(t, allowed, 1, "exactly one contender should win the last slot")

	lifetime, err := handle.Lifetime(ctx)
	require.NoError(t, err)
	assert.Equal(t, limit, lifetime)
}

// lifetimeFailStorage fails counter writes to the lifetime key only.
type lifetimeFailStorage struct {
	*InMemoryStorage
	fail bool
}

func (s *lifetimeFailStorage) SetCounter(ctx context.Context, scope, name string, value int) error {
	if s.fail && name == lifetimeKey {
		return errors.New("counter write failed")
	}
	return s.InMemoryStorage.SetCounter(ctx, scope, name, value)
}

func TestHandle_CheckIncrement_LifetimeFailureReleasesSlot(t *testing.T) {
	storage := &lifetimeFailStorage{InMemoryStorage: NewInMemoryStorage(), fail: true}
	handle := NewRegistry(storage).For(domain.KindTrip, domain.UserID("u1"))
	ctx := context.Background()

	_, err := handle.CheckIncrement(ctx, "2026-03", 1)
	require.Error(t, err)

	// The month slot was released, so once counters are writable again the
	// single-slot quota is still available.
	storage.fail = false
	decision, err := handle.CheckIncrement(ctx, "2026-03", 1)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.Equal(t, 1, decision.Count)

	lifetime, err := handle.Lifetime(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, lifetime, "the failed attempt left no lifetime trace")
}

func TestHandle_Decrement(t *testing.T) {
	registry := NewRegistry(NewInMemoryStorage())
	handle := registry.For(domain.KindTrip, domain.UserID("u1"))
	ctx := context.Background()

	t.Run("decrementing zero is a no-op", func(t *testing.T) {
		require.NoError(t, handle.Decrement(ctx, "2026-03"))

		decision, err := handle.CheckIncrement(ctx, "2026-03", 1)
		require.NoError(t, err)
		assert.True(t, decision.Allowed)
		assert.Equal(t, 1, decision.Count)
	})

	t.Run("decrement frees a quota slot", func(t *testing.T) {
		decision, err := handle.CheckIncrement(ctx, "2026-03", 1)
		require.NoError(t, err)
		require.False(t, decision.Allowed)

		require.NoError(t, handle.Decrement(ctx, "2026-03"))

		decision, err = handle.CheckIncrement(ctx, "2026-03", 1)
		require.NoError(t, err)
		assert.True(t, decision.Allowed)
	})

	t.Run("decrement leaves the lifetime counter alone", func(t *testing.T) {
		lifetime, err := handle.Lifetime(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, lifetime)
	})
}

func TestHandle_LegacyMigration(t *testing.T) {
	storage := NewInMemoryStorage()
	registry := NewRegistry(storage)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	scope := Scope(domain.KindTrip, domain.UserID("u1"))
	storage.SeedLegacy(scope, []Summary{
		summaryAt("legacy-1", now.Add(time.Hour), now),
		summaryAt("legacy-2", now, now),
	})

	handle := registry.For(domain.KindTrip, domain.UserID("u1"))

	t.Run("first access folds the legacy list in", func(t *testing.T) {
		items, err := handle.List(ctx)
		require.NoError(t, err)
		require.Len(t, items, 2)
		assert.Equal(t, domain.RecordID("legacy-1"), items[0].ID)
	})

	t.Run("legacy shape is cleared after migration", func(t *testing.T) {
		_, ok, err := storage.LegacyList(ctx, scope)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("legacy entries merge with new writes, not replace them", func(t *testing.T) {
		fresh := NewInMemoryStorage()
		freshScope := Scope(domain.KindTrip, domain.UserID("u2"))
		fresh.SeedLegacy(freshScope, []Summary{summaryAt("legacy-1", now, now)})

		h := NewRegistry(fresh).For(domain.KindTrip, domain.UserID("u2"))
		require.NoError(t, h.Put(ctx, summaryAt("new-1", now.Add(time.Hour), now)))

		items, err := h.List(ctx)
		require.NoError(t, err)
		assert.Len(t, items, 2)
	})
}
