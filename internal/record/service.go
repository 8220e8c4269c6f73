// Package record implements the shared orchestration pattern for per-user
// business records: writes go to the authoritative store and are best-effort
// pushed to the per-user index; reads go through the self-healing repair
// path; soft deletion replaces records in place with TTL-bound tombstones.
package record

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"roadlog/internal/audit"
	"roadlog/internal/index"
	"roadlog/internal/kv"
	recordmetrics "roadlog/internal/record/metrics"
	"roadlog/internal/record/models"
	"roadlog/internal/record/ports"
	"roadlog/pkg/domain"
	dErrors "roadlog/pkg/domain-errors"
	"roadlog/pkg/platform/sentinel"
	"roadlog/pkg/requestcontext"
)

// DefaultRetention bounds how long tombstones survive before the store
// purges them.
const DefaultRetention = 30 * 24 * time.Hour

const scanPageSize = 100

// Service orchestrates one record kind. All kinds (trip, mileage, expense)
// share this implementation; only the key namespace differs.
type Service struct {
	kind    domain.Kind
	store   kv.Store
	indexes *index.Registry

	logger       *slog.Logger
	metrics      *recordmetrics.Metrics
	audit        ports.AuditPublisher
	limiter      ports.RateLimiter
	retention    time.Duration
	monthlyLimit int

	repairs singleflight.Group
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics wires Prometheus metrics.
func WithMetrics(m *recordmetrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithAuditPublisher wires the audit trail for delete/restore/purge/quota
// events.
func WithAuditPublisher(publisher ports.AuditPublisher) Option {
	return func(s *Service) { s.audit = publisher }
}

// WithRetention overrides the tombstone retention window.
func WithRetention(retention time.Duration) Option {
	return func(s *Service) {
		if retention > 0 {
			s.retention = retention
		}
	}
}

// WithRateLimiter wires the sliding-window write throttle applied before
// quota accounting.
func WithRateLimiter(limiter ports.RateLimiter) Option {
	return func(s *Service) { s.limiter = limiter }
}

// WithMonthlyQuota sets the free-tier creation limit per user per month.
// Zero disables enforcement.
func WithMonthlyQuota(limit int) Option {
	return func(s *Service) { s.monthlyLimit = limit }
}

// New constructs a record service for one kind.
func New(kind domain.Kind, store kv.Store, indexes *index.Registry, opts ...Option) (*Service, error) {
	if !kind.IsValid() {
		return nil, dErrors.Newf(dErrors.CodeInvalidInput, "unsupported record kind %q", kind)
	}
	if store == nil {
		return nil, errors.New("authoritative store is required")
	}
	if indexes == nil {
		return nil, errors.New("index registry is required")
	}

	s := &Service{
		kind:      kind,
		store:     store,
		indexes:   indexes,
		logger:    slog.New(slog.DiscardHandler),
		retention: DefaultRetention,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Create stores a new record, enforcing the monthly quota. The quota
// check-and-increment runs inside the single-writer index handle, so two
// concurrent creations at limit-1 resolve with exactly one allowed.
func (s *Service) Create(ctx context.Context, rec *models.Record) (*models.Record, error) {
	if rec == nil {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "record is required")
	}
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	if rec.ID.IsZero() {
		rec = rec.Clone()
		rec.ID = domain.RecordID(uuid.NewString())
	}

	if s.limiter != nil {
		allowed, err := s.limiter.Allow(ctx, rec.UserID)
		if err != nil {
			// An unreachable throttle fails open; the quota gate below
			// still bounds what a burst can create.
			s.logger.WarnContext(ctx, "rate limiter unavailable; failing open",
				"kind", s.kind, "user", rec.UserID, "error", err)
		} else if !allowed {
			return nil, dErrors.New(dErrors.CodeRateLimited, "too many write requests")
		}
	}

	now := requestcontext.Now(ctx)
	monthKey := domain.MonthKey(now)
	handle := s.indexes.For(s.kind, rec.UserID)

	decision, err := handle.CheckIncrement(ctx, monthKey, s.monthlyLimit)
	if err != nil {
		// The quota gate cannot be skipped: allowing writes while the
		// counter is unreachable would let concurrent requests blow past
		// the plan limit.
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "quota check unavailable")
	}
	if !decision.Allowed {
		s.metrics.IncQuotaRejection()
		s.emitAudit(ctx, audit.Event{
			UserID:   rec.UserID,
			RecordID: rec.ID,
			Action:   audit.ActionQuotaExceeded,
			Reason:   quotaMessage(s.kind, decision.Count, s.monthlyLimit),
		})
		return nil, dErrors.New(dErrors.CodeQuotaExceeded, quotaMessage(s.kind, decision.Count, s.monthlyLimit))
	}

	created, err := s.Put(ctx, rec)
	if err != nil {
		// Authoritative write failed after the counter was reserved;
		// release the slot so the retry is not double-charged.
		if derr := handle.Decrement(ctx, monthKey); derr != nil {
			s.logger.WarnContext(ctx, "failed to release quota slot",
				"kind", s.kind, "user", rec.UserID, "error", derr)
		}
		return nil, err
	}
	return created, nil
}

// Put upserts a record by ID: timestamps are refreshed, any tombstone shape
// is cleared, the authoritative store is written (fatal on failure), then
// the index is pushed best-effort; a failed push is swallowed because the
// repair path recovers it.
func (s *Service) Put(ctx context.Context, rec *models.Record) (*models.Record, error) {
	if rec == nil {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "record is required")
	}
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	if rec.ID.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "record id is required")
	}

	now := requestcontext.Now(ctx)
	stored := rec.Clone()
	stored.Deleted = false
	stored.DeletedAt = nil
	stored.DeletedBy = ""
	stored.Metadata = nil
	stored.Backup = nil
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now

	data, err := json.Marshal(stored)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "encode record")
	}
	key := storeKey(s.kind, stored.UserID, stored.ID)
	if err := s.store.Put(ctx, key, data, 0); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "authoritative write failed")
	}

	s.pushToIndex(ctx, stored)
	return stored, nil
}

// List returns the user's active records ordered (date DESC, createdAt
// DESC), repairing the index from the authoritative store when it has
// diverged. A non-zero since filters to records with updatedAt after it,
// for delta sync.
func (s *Service) List(ctx context.Context, userID domain.UserID, since time.Time) ([]*models.Record, error) {
	defer s.metrics.ObserveList(time.Now())
	if userID.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "userId is required")
	}

	summaries, err := s.listSummaries(ctx, userID)
	if err != nil {
		return nil, err
	}

	records := make([]*models.Record, 0, len(summaries))
	for _, summary := range summaries {
		rec, err := decodeRecord(summary.Data)
		if err != nil {
			s.logger.WarnContext(ctx, "skipping corrupt index entry",
				"kind", s.kind, "user", userID, "record", summary.ID, "error", err)
			continue
		}
		if !since.IsZero() && !rec.UpdatedAt.After(since) {
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// Get finds one record via the read path. Per-user indexes are small, so
// list-then-find is acceptable.
func (s *Service) Get(ctx context.Context, userID domain.UserID, id domain.RecordID) (*models.Record, error) {
	if id.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "record id is required")
	}
	records, err := s.List(ctx, userID, time.Time{})
	if err != nil {
		return nil, err
	}
	for _, rec := range records {
		if rec.ID == id {
			return rec, nil
		}
	}
	return nil, dErrors.Newf(dErrors.CodeNotFound, "%s %s not found", s.kind, id)
}

// Delete soft-deletes a record by replacing it in place with a TTL-bound
// tombstone embedding the pre-delete state. Idempotent: deleting an already
// tombstoned record succeeds without altering state.
func (s *Service) Delete(ctx context.Context, userID domain.UserID, id domain.RecordID) error {
	if userID.IsZero() || id.IsZero() {
		return dErrors.New(dErrors.CodeInvalidInput, "userId and record id are required")
	}

	key := storeKey(s.kind, userID, id)
	now := requestcontext.Now(ctx)

	var rec *models.Record
	data, err := s.store.Get(ctx, key)
	switch {
	case err == nil:
		rec, err = decodeRecord(data)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "corrupt record at authoritative key")
		}
	case errors.Is(err, sentinel.ErrNotFound):
		// Tolerate historical key-scheme drift: the record may be readable
		// through the index even when the canonical key misses.
		found, gerr := s.Get(ctx, userID, id)
		if gerr != nil {
			return gerr
		}
		rec = found
	default:
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "authoritative read failed")
	}

	if rec.IsTombstone() {
		return nil
	}

	tomb := newTombstone(rec, key, s.actor(ctx, userID), now, s.retention)
	payload, err := json.Marshal(tomb)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "encode tombstone")
	}
	if err := s.store.Put(ctx, key, payload, s.retention); err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "authoritative write failed")
	}

	handle := s.indexes.For(s.kind, userID)
	if err := handle.Delete(ctx, id); err != nil {
		s.metrics.IncIndexPushFailure()
		s.logger.WarnContext(ctx, "index delete failed; repair will recover",
			"kind", s.kind, "user", userID, "record", id, "error", err)
	}
	if err := handle.Decrement(ctx, domain.MonthKey(now)); err != nil {
		s.logger.WarnContext(ctx, "quota decrement failed",
			"kind", s.kind, "user", userID, "error", err)
	}

	s.emitAudit(ctx, audit.Event{UserID: userID, RecordID: id, Action: audit.ActionRecordDeleted})
	return nil
}

// Restore recovers a tombstoned record from its backup, writing the live
// shape back to the same key with no TTL.
func (s *Service) Restore(ctx context.Context, userID domain.UserID, id domain.RecordID) (*models.Record, error) {
	if userID.IsZero() || id.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "userId and record id are required")
	}

	key := storeKey(s.kind, userID, id)
	data, err := s.store.Get(ctx, key)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Newf(dErrors.CodeNotFound, "%s %s not found", s.kind, id)
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "authoritative read failed")
	}
	tomb, err := decodeRecord(data)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "corrupt record at authoritative key")
	}

	restored, err := restoreFromTombstone(tomb, requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(restored)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "encode record")
	}
	if err := s.store.Put(ctx, key, payload, 0); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "authoritative write failed")
	}

	s.pushToIndex(ctx, restored)
	s.emitAudit(ctx, audit.Event{UserID: userID, RecordID: id, Action: audit.ActionRecordRestored})
	return restored, nil
}

// PermanentDelete hard-deletes a tombstoned record. Live records must be
// soft-deleted first.
func (s *Service) PermanentDelete(ctx context.Context, userID domain.UserID, id domain.RecordID) error {
	if userID.IsZero() || id.IsZero() {
		return dErrors.New(dErrors.CodeInvalidInput, "userId and record id are required")
	}

	key := storeKey(s.kind, userID, id)
	data, err := s.store.Get(ctx, key)
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.Newf(dErrors.CodeNotFound, "%s %s not found", s.kind, id)
	}
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "authoritative read failed")
	}
	rec, err := decodeRecord(data)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "corrupt record at authoritative key")
	}
	if !rec.IsTombstone() {
		return dErrors.New(dErrors.CodeConflict, "record is not deleted; delete it first")
	}

	if err := s.store.Delete(ctx, key); err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "authoritative delete failed")
	}
	if err := s.indexes.For(s.kind, userID).Delete(ctx, id); err != nil {
		s.logger.WarnContext(ctx, "index delete failed after purge",
			"kind", s.kind, "user", userID, "record", id, "error", err)
	}

	s.metrics.AddTombstonesPurged(1)
	s.emitAudit(ctx, audit.Event{UserID: userID, RecordID: id, Action: audit.ActionRecordPurged})
	return nil
}

// EmptyTrash hard-deletes every tombstoned record under the user's prefix
// and returns how many were removed.
func (s *Service) EmptyTrash(ctx context.Context, userID domain.UserID) (int, error) {
	if userID.IsZero() {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "userId is required")
	}

	var purgeErr error
	count := 0
	err := s.forEachRecord(ctx, userID, func(key string, rec *models.Record) {
		if purgeErr != nil || !rec.IsTombstone() {
			return
		}
		if err := s.store.Delete(ctx, key); err != nil {
			purgeErr = dErrors.Wrap(err, dErrors.CodeUnavailable, "authoritative delete failed")
			return
		}
		count++
	})
	if err != nil {
		return count, err
	}
	if purgeErr != nil {
		return count, purgeErr
	}

	s.metrics.AddTombstonesPurged(count)
	s.emitAudit(ctx, audit.Event{
		UserID: userID,
		Action: audit.ActionTrashEmptied,
		Reason: quotaReasonCount(count),
	})
	return count, nil
}

// ListTrash returns previews of the user's tombstoned records, newest
// deletion first.
func (s *Service) ListTrash(ctx context.Context, userID domain.UserID) ([]models.TrashEntry, error) {
	if userID.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "userId is required")
	}

	entries := make([]models.TrashEntry, 0)
	err := s.forEachRecord(ctx, userID, func(_ string, rec *models.Record) {
		if !rec.IsTombstone() {
			return
		}
		entry := models.TrashEntry{ID: rec.ID, DeletedBy: rec.DeletedBy}
		if rec.DeletedAt != nil {
			entry.DeletedAt = *rec.DeletedAt
		}
		if rec.Metadata != nil {
			if entry.DeletedAt.IsZero() {
				entry.DeletedAt = rec.Metadata.DeletedAt
			}
			entry.ExpiresAt = rec.Metadata.ExpiresAt
		}
		if rec.Backup != nil {
			entry.Title = rec.Backup.Title
			entry.Date = rec.Backup.Date
		}
		entries = append(entries, entry)
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].DeletedAt.Equal(entries[j].DeletedAt) {
			return entries[i].DeletedAt.After(entries[j].DeletedAt)
		}
		return entries[i].ID < entries[j].ID
	})
	return entries, nil
}

// forEachRecord walks every record under the user's prefix, honoring scan
// pagination. Entries that vanish mid-scan are skipped; entries that fail to
// parse are skipped with a warning, never fatal to the whole scan.
func (s *Service) forEachRecord(ctx context.Context, userID domain.UserID, fn func(key string, rec *models.Record)) error {
	prefix := userPrefix(s.kind, userID)
	cursor := ""
	for {
		page, err := s.store.List(ctx, prefix, cursor, scanPageSize)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeUnavailable, "authoritative scan failed")
		}
		for _, key := range page.Keys {
			data, err := s.store.Get(ctx, key)
			if errors.Is(err, sentinel.ErrNotFound) {
				continue // purged between list and get
			}
			if err != nil {
				return dErrors.Wrap(err, dErrors.CodeUnavailable, "authoritative read failed")
			}
			rec, err := decodeRecord(data)
			if err != nil {
				s.logger.WarnContext(ctx, "skipping corrupt entry during scan",
					"kind", s.kind, "user", userID, "key", key, "error", err)
				continue
			}
			fn(key, rec)
		}
		if page.Complete {
			return nil
		}
		cursor = page.Cursor
	}
}

// pushToIndex is the best-effort write-path push. Failures are swallowed
// and logged: the authoritative write already succeeded and the index is
// rebuildable.
func (s *Service) pushToIndex(ctx context.Context, rec *models.Record) {
	summary, err := encodeSummary(rec)
	if err == nil {
		err = s.indexes.For(s.kind, rec.UserID).Put(ctx, summary)
	}
	if err != nil {
		s.metrics.IncIndexPushFailure()
		s.logger.WarnContext(ctx, "index push failed; repair will recover",
			"kind", s.kind, "user", rec.UserID, "record", rec.ID, "error", err)
	}
}

func (s *Service) emitAudit(ctx context.Context, event audit.Event) {
	if s.audit == nil {
		return
	}
	event.Kind = s.kind
	if event.Timestamp.IsZero() {
		event.Timestamp = requestcontext.Now(ctx)
	}
	if event.RequestID == "" {
		event.RequestID = requestcontext.RequestID(ctx)
	}
	if err := s.audit.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event",
			"action", event.Action, "error", err)
	}
}

func (s *Service) actor(ctx context.Context, userID domain.UserID) string {
	if actor := requestcontext.Actor(ctx); actor != "" {
		return actor
	}
	return string(userID)
}

func encodeSummary(rec *models.Record) (index.Summary, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return index.Summary{}, err
	}
	return index.Summary{
		ID:        rec.ID,
		SortDate:  rec.SortDate(),
		CreatedAt: rec.CreatedAt,
		Data:      data,
	}, nil
}

func decodeRecord(data []byte) (*models.Record, error) {
	var rec models.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	if rec.ID.IsZero() {
		return nil, errors.New("record is missing an id")
	}
	return &rec, nil
}

func quotaMessage(kind domain.Kind, used, limit int) string {
	return fmt.Sprintf("monthly %s limit reached: %d of %d used", kind, used, limit)
}

func quotaReasonCount(count int) string {
	return fmt.Sprintf("removed %d tombstones", count)
}
