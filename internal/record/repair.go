package record

import (
	"context"

	"roadlog/internal/index"
	"roadlog/internal/record/models"
	"roadlog/pkg/domain"
	dErrors "roadlog/pkg/domain-errors"
)

// listSummaries is the self-healing read path. A non-empty index answers
// directly. An empty index triggers a cheap limit-1 probe of the
// authoritative store: if that is empty too, the user is genuinely empty and
// no repair runs; if it holds data, the index has diverged and is rebuilt
// from a full prefix scan. Gating repair on "index empty AND truth
// non-empty" bounds repair cost to the single probe in the common case.
//
// Only total index loss is detected here; an index missing some records is
// intentionally left alone (partial divergence is out of signal).
func (s *Service) listSummaries(ctx context.Context, userID domain.UserID) ([]index.Summary, error) {
	handle := s.indexes.For(s.kind, userID)

	items, err := handle.List(ctx)
	if err == nil && len(items) > 0 {
		return items, nil
	}
	if err != nil {
		// Unreachable index reads as empty: the scan below serves the
		// caller and the next read retries the rebuild.
		s.logger.WarnContext(ctx, "index list failed; falling back to authoritative scan",
			"kind", s.kind, "user", userID, "error", err)
	}

	empty, err := s.truthEmpty(ctx, userID)
	if err != nil {
		return nil, err
	}
	if empty {
		return nil, nil
	}

	// Divergence. Concurrent readers of the same user coalesce into one
	// scan; everyone shares its result.
	result, err, _ := s.repairs.Do(index.Scope(s.kind, userID), func() (any, error) {
		return s.repair(ctx, userID, handle)
	})
	if err != nil {
		return nil, err
	}
	return result.([]index.Summary), nil
}

// truthEmpty probes the authoritative store for any key under the user's
// prefix. The store may return empty pages before the scan completes, so the
// probe follows the cursor until it sees a key or exhausts the space.
func (s *Service) truthEmpty(ctx context.Context, userID domain.UserID) (bool, error) {
	prefix := userPrefix(s.kind, userID)
	cursor := ""
	for {
		page, err := s.store.List(ctx, prefix, cursor, 1)
		if err != nil {
			return false, dErrors.Wrap(err, dErrors.CodeUnavailable, "authoritative probe failed")
		}
		if len(page.Keys) > 0 {
			return false, nil
		}
		if page.Complete {
			return true, nil
		}
		cursor = page.Cursor
	}
}

// repair rebuilds the user's index from a full authoritative scan. Live
// records become summaries; tombstones stay out of the active index (their
// backup only surfaces through trash listings). If the index cannot be
// updated, the freshly-scanned data is served directly and the next read
// retries the rebuild.
func (s *Service) repair(ctx context.Context, userID domain.UserID, handle *index.Handle) ([]index.Summary, error) {
	s.metrics.IncRepair()

	summaries := make([]index.Summary, 0)
	err := s.forEachRecord(ctx, userID, func(_ string, rec *models.Record) {
		if rec.IsTombstone() {
			return
		}
		summary, err := encodeSummary(rec)
		if err != nil {
			s.logger.WarnContext(ctx, "skipping unencodable record during repair",
				"kind", s.kind, "user", userID, "record", rec.ID, "error", err)
			return
		}
		summaries = append(summaries, summary)
	})
	if err != nil {
		return nil, err
	}
	s.metrics.AddRepairedRecords(len(summaries))

	if err := handle.Migrate(ctx, summaries); err != nil {
		s.metrics.IncIndexPushFailure()
		s.logger.WarnContext(ctx, "index rebuild failed; serving scan results",
			"kind", s.kind, "user", userID, "error", err)
		index.SortSummaries(summaries)
		return summaries, nil
	}

	items, err := handle.List(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "index re-read failed after rebuild; serving scan results",
			"kind", s.kind, "user", userID, "error", err)
		index.SortSummaries(summaries)
		return summaries, nil
	}
	return items, nil
}
