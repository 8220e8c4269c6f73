package index

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roadlog/pkg/domain"
)

func openTestSQLite(t *testing.T) *SQLiteStorage {
	t.Helper()
	storage, err := OpenSQLite(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { storage.Close() })
	return storage
}

func TestSQLiteStorage_Summaries(t *testing.T) {
	storage := openTestSQLite(t)
	ctx := context.Background()
	scope := "trip:u1"

	day := func(d int) time.Time {
		return time.Date(2026, 3, d, 0, 0, 0, 0, time.UTC)
	}

	require.NoError(t, storage.UpsertSummaries(ctx, scope, []Summary{
		summaryAt("older", day(1), day(1)),
		summaryAt("newest", day(9), day(9)),
		summaryAt("tie-late", day(5), day(5).Add(time.Hour)),
		summaryAt("tie-early", day(5), day(5)),
	}))

	t.Run("returns sorted by date then created-at", func(t *testing.T) {
		items, err := storage.Summaries(ctx, scope)
		require.NoError(t, err)
		require.Len(t, items, 4)

		ids := make([]domain.RecordID, 0, len(items))
		for _, item := range items {
			ids = append(ids, item.ID)
		}
		assert.Equal(t, []domain.RecordID{"newest", "tie-late", "tie-early", "older"}, ids)
	})

	t.Run("round-trips timestamps and payload", func(t *testing.T) {
		items, err := storage.Summaries(ctx, scope)
		require.NoError(t, err)
		assert.True(t, items[0].SortDate.Equal(day(9)))
		assert.True(t, items[0].CreatedAt.Equal(day(9)))
		assert.JSONEq(t, `{"id":"newest"}`, string(items[0].Data))
	})

	t.Run("upsert replaces by id", func(t *testing.T) {
		require.NoError(t, storage.UpsertSummaries(ctx, scope, []Summary{
			summaryAt("older", day(20), day(1)),
		}))
		items, err := storage.Summaries(ctx, scope)
		require.NoError(t, err)
		require.Len(t, items, 4)
		assert.Equal(t, domain.RecordID("older"), items[0].ID)
	})

	t.Run("scopes are isolated", func(t *testing.T) {
		items, err := storage.Summaries(ctx, "trip:u2")
		require.NoError(t, err)
		assert.Empty(t, items)
	})

	t.Run("delete removes one row and missing is a no-op", func(t *testing.T) {
		require.NoError(t, storage.DeleteSummary(ctx, scope, domain.RecordID("older")))
		require.NoError(t, storage.DeleteSummary(ctx, scope, domain.RecordID("older")))

		items, err := storage.Summaries(ctx, scope)
		require.NoError(t, err)
		assert.Len(t, items, 3)
	})
}

func TestSQLiteStorage_FractionalSecondOrdering(t *testing.T) {
	storage := openTestSQLite(t)
	ctx := context.Background()
	scope := "trip:u1"

	day := time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC)
	wholeSecond := time.Date(2026, 3, 5, 10, 0, 0, 0, time.UTC)

	// Equal business dates force the created-at tie-break; the timestamps
	// straddle a whole second, where a trimmed textual encoding would put
	// "10:00:00Z" after "10:00:00.5Z".
	require.NoError(t, storage.UpsertSummaries(ctx, scope, []Summary{
		summaryAt("whole", day, wholeSecond),
		summaryAt("fractional", day, wholeSecond.Add(500*time.Millisecond)),
	}))

	items, err := storage.Summaries(ctx, scope)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, domain.RecordID("fractional"), items[0].ID)
	assert.Equal(t, domain.RecordID("whole"), items[1].ID)

	t.Run("sub-second sort dates order chronologically", func(t *testing.T) {
		require.NoError(t, storage.UpsertSummaries(ctx, "trip:u2", []Summary{
			summaryAt("earlier", wholeSecond, wholeSecond),
			summaryAt("later", wholeSecond.Add(250*time.Millisecond), wholeSecond),
		}))

		items, err := storage.Summaries(ctx, "trip:u2")
		require.NoError(t, err)
		require.Len(t, items, 2)
		assert.Equal(t, domain.RecordID("later"), items[0].ID)
	})

	t.Run("nanosecond precision survives the round-trip", func(t *testing.T) {
		at := wholeSecond.Add(123456789 * time.Nanosecond)
		require.NoError(t, storage.UpsertSummaries(ctx, "trip:u3", []Summary{
			summaryAt("precise", at, at),
		}))

		items, err := storage.Summaries(ctx, "trip:u3")
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.True(t, items[0].SortDate.Equal(at))
		assert.True(t, items[0].CreatedAt.Equal(at))
	})
}

func TestSQLiteStorage_Counters(t *testing.T) {
	storage := openTestSQLite(t)
	ctx := context.Background()

	t.Run("unset counter reads zero", func(t *testing.T) {
		value, err := storage.Counter(ctx, "trip:u1", "count:2026-03")
		require.NoError(t, err)
		assert.Equal(t, 0, value)
	})

	t.Run("set then read", func(t *testing.T) {
		require.NoError(t, storage.SetCounter(ctx, "trip:u1", "count:2026-03", 7))

		value, err := storage.Counter(ctx, "trip:u1", "count:2026-03")
		require.NoError(t, err)
		assert.Equal(t, 7, value)
	})

	t.Run("set overwrites", func(t *testing.T) {
		require.NoError(t, storage.SetCounter(ctx, "trip:u1", "count:2026-03", 2))

		value, err := storage.Counter(ctx, "trip:u1", "count:2026-03")
		require.NoError(t, err)
		assert.Equal(t, 2, value)
	})

	t.Run("counters are scoped", func(t *testing.T) {
		value, err := storage.Counter(ctx, "trip:u2", "count:2026-03")
		require.NoError(t, err)
		assert.Equal(t, 0, value)
	})
}

func TestSQLiteStorage_Legacy(t *testing.T) {
	storage := openTestSQLite(t)
	ctx := context.Background()
	scope := "trip:u1"
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	t.Run("absent by default", func(t *testing.T) {
		_, ok, err := storage.LegacyList(ctx, scope)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("seed, load, clear", func(t *testing.T) {
		require.NoError(t, storage.SeedLegacy(ctx, scope, []Summary{summaryAt("legacy-1", now, now)}))

		items, ok, err := storage.LegacyList(ctx, scope)
		require.NoError(t, err)
		require.True(t, ok)
		require.Len(t, items, 1)
		assert.Equal(t, domain.RecordID("legacy-1"), items[0].ID)

		require.NoError(t, storage.ClearLegacy(ctx, scope))

		_, ok, err = storage.LegacyList(ctx, scope)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestSQLiteStorage_ReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	storage, err := OpenSQLite(path)
	require.NoError(t, err)
	require.NoError(t, storage.UpsertSummaries(ctx, "trip:u1", []Summary{summaryAt("r1", now, now)}))
	require.NoError(t, storage.SetCounter(ctx, "trip:u1", "count:lifetime", 4))
	require.NoError(t, storage.Close())

	storage, err = OpenSQLite(path)
	require.NoError(t, err)
	defer storage.Close()

	items, err := storage.Summaries(ctx, "trip:u1")
	require.NoError(t, err)
	assert.Len(t, items, 1)

	value, err := storage.Counter(ctx, "trip:u1", "count:lifetime")
	require.NoError(t, err)
	assert.Equal(t, 4, value)
}
