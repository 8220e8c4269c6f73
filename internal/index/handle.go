package index

import (
	"context"
	"fmt"
	"sync"

	"roadlog/pkg/domain"
)

// Decision is the outcome of a quota check-and-increment. Count is the new
// count when allowed, or the unchanged current count when rejected.
type Decision struct {
	Allowed bool
	Count   int
}

// Handle is the single logical index instance for one (kind, user) scope.
// Every operation takes the handle mutex, so no two operations for the same
// scope interleave; this is what makes CheckIncrement race-free without
// storage-level transactions.
type Handle struct {
	scope   string
	storage Storage

	mu       sync.Mutex
	migrated bool
}

func newHandle(scope string, storage Storage) *Handle {
	return &Handle{scope: scope, storage: storage}
}

// List returns all summaries ordered (SortDate DESC, CreatedAt DESC).
// An empty index yields an empty slice, never an error.
func (h *Handle) List(ctx context.Context) ([]Summary, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.ensureMigrated(ctx); err != nil {
		return nil, err
	}
	return h.storage.Summaries(ctx, h.scope)
}

// Put upserts one summary by ID.
func (h *Handle) Put(ctx context.Context, item Summary) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.ensureMigrated(ctx); err != nil {
		return err
	}
	return h.storage.UpsertSummaries(ctx, h.scope, []Summary{item})
}

// Delete removes one summary. Deleting a missing ID is a no-op success.
func (h *Handle) Delete(ctx context.Context, id domain.RecordID) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.ensureMigrated(ctx); err != nil {
		return err
	}
	return h.storage.DeleteSummary(ctx, h.scope, id)
}

// Migrate bulk-upserts summaries; used by bootstrap and repair. Safe to call
// repeatedly with overlapping data.
func (h *Handle) Migrate(ctx context.Context, items []Summary) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.ensureMigrated(ctx); err != nil {
		return err
	}
	return h.storage.UpsertSummaries(ctx, h.scope, items)
}

// CheckIncrement atomically increments the month counter when it is below
// limit. A non-positive limit disables enforcement but still counts usage.
// Allowed increments also bump the lifetime counter.
func (h *Handle) CheckIncrement(ctx context.Context, monthKey string, limit int) (Decision, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.ensureMigrated(ctx); err != nil {
		return Decision{}, err
	}

	name := counterPrefix + monthKey
	count, err := h.storage.Counter(ctx, h.scope, name)
	if err != nil {
		return Decision{}, err
	}
	if limit > 0 && count >= limit {
		return Decision{Allowed: false, Count: count}, nil
	}

	count++
	if err := h.storage.SetCounter(ctx, h.scope, name, count); err != nil {
		return Decision{}, err
	}
	lifetime, err := h.storage.Counter(ctx, h.scope, lifetimeKey)
	if err == nil {
		err = h.storage.SetCounter(ctx, h.scope, lifetimeKey, lifetime+1)
	}
	if err != nil {
		// A failed check must not charge the user; release the month slot.
		if rerr := h.storage.SetCounter(ctx, h.scope, name, count-1); rerr != nil {
			return Decision{}, fmt.Errorf("bump lifetime counter (month slot leaked): %w", err)
		}
		return Decision{}, fmt.Errorf("bump lifetime counter: %w", err)
	}
	return Decision{Allowed: true, Count: count}, nil
}

// Decrement lowers the month counter, clamped at zero: decrementing a zero
// counter is a no-op.
func (h *Handle) Decrement(ctx context.Context, monthKey string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.ensureMigrated(ctx); err != nil {
		return err
	}

	name := counterPrefix + monthKey
	count, err := h.storage.Counter(ctx, h.scope, name)
	if err != nil {
		return err
	}
	if count == 0 {
		return nil
	}
	return h.storage.SetCounter(ctx, h.scope, name, count-1)
}

// Lifetime returns the monotonic total of allowed creations for the scope.
func (h *Handle) Lifetime(ctx context.Context) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.ensureMigrated(ctx); err != nil {
		return 0, err
	}
	return h.storage.Counter(ctx, h.scope, lifetimeKey)
}

// ensureMigrated runs the cold-start state machine once per handle: when the
// legacy flat-list shape exists, fold it into the summary table and drop it.
// Upsert-before-clear keeps the migration idempotent and safe to interrupt:
// a crash between the two statements just replays the upsert next start.
// Caller holds h.mu.
func (h *Handle) ensureMigrated(ctx context.Context) error {
	if h.migrated {
		return nil
	}
	legacy, ok, err := h.storage.LegacyList(ctx, h.scope)
	if err != nil {
		return fmt.Errorf("detect legacy index shape: %w", err)
	}
	if ok {
		if err := h.storage.UpsertSummaries(ctx, h.scope, legacy); err != nil {
			return fmt.Errorf("migrate legacy index shape: %w", err)
		}
		if err := h.storage.ClearLegacy(ctx, h.scope); err != nil {
			return fmt.Errorf("clear legacy index shape: %w", err)
		}
	}
	h.migrated = true
	return nil
}
