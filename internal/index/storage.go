// Package index maintains the per-user sorted view of active records plus
// quota counters. It is a derived, rebuildable cache of the authoritative
// store and is never treated as a second source of truth.
package index

import (
	"context"
	"sort"
	"time"

	"roadlog/pkg/domain"
)

// Summary is the reduced projection of a record kept in the index: enough to
// list in sorted order and to serve reads without touching the authoritative
// store. Data carries the full serialized record.
type Summary struct {
	ID        domain.RecordID `json:"id"`
	SortDate  time.Time       `json:"sortDate"`
	CreatedAt time.Time       `json:"createdAt"`
	Data      []byte          `json:"data"`
}

// Counter key layout within index storage.
const (
	counterPrefix = "count:"
	lifetimeKey   = "count:lifetime"
)

// Storage persists index state. Each user's data lives under a scope
// ("{kind}:{userId}"); implementations must isolate scopes from each other.
// Handles serialize access per scope, so implementations only need statement
// level atomicity, not cross-call transactions.
type Storage interface {
	// Summaries returns all summaries in the scope ordered by
	// (SortDate DESC, CreatedAt DESC).
	Summaries(ctx context.Context, scope string) ([]Summary, error)

	// UpsertSummaries inserts or replaces summaries by ID. Safe to call
	// repeatedly with overlapping sets.
	UpsertSummaries(ctx context.Context, scope string, items []Summary) error

	// DeleteSummary removes one summary; removing a missing ID is a no-op.
	DeleteSummary(ctx context.Context, scope string, id domain.RecordID) error

	// Counter returns the named counter, zero when unset.
	Counter(ctx context.Context, scope, name string) (int, error)

	// SetCounter stores the named counter.
	SetCounter(ctx context.Context, scope, name string, value int) error

	// LegacyList loads the pre-summary-table flat list shape if one exists.
	LegacyList(ctx context.Context, scope string) ([]Summary, bool, error)

	// ClearLegacy removes the legacy shape after migration.
	ClearLegacy(ctx context.Context, scope string) error
}

// SortSummaries orders by SortDate descending, breaking ties by CreatedAt
// descending and finally by ID for determinism. Storage implementations
// return pre-sorted data; the repair path uses this when serving a raw scan.
func SortSummaries(items []Summary) {
	sort.Slice(items, func(i, j int) bool {
		if !items[i].SortDate.Equal(items[j].SortDate) {
			return items[i].SortDate.After(items[j].SortDate)
		}
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.After(items[j].CreatedAt)
		}
		return items[i].ID < items[j].ID
	})
}
