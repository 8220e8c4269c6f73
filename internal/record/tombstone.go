package record

import (
	"time"

	"roadlog/internal/record/models"
	dErrors "roadlog/pkg/domain-errors"
)

// newTombstone wraps a live record into its tombstone shape at the same key.
// The pre-delete state moves into Backup for recovery; Metadata carries the
// deletion audit fields and the purge deadline the store-level TTL mirrors.
func newTombstone(rec *models.Record, key, deletedBy string, now time.Time, retention time.Duration) *models.Record {
	backup := rec.Clone()
	deletedAt := now

	return &models.Record{
		ID:        rec.ID,
		UserID:    rec.UserID,
		CreatedAt: rec.CreatedAt,
		UpdatedAt: now,
		Deleted:   true,
		DeletedAt: &deletedAt,
		DeletedBy: deletedBy,
		Metadata: &models.TombstoneMetadata{
			DeletedAt:   now,
			DeletedBy:   deletedBy,
			OriginalKey: key,
			ExpiresAt:   now.Add(retention),
		},
		Backup: backup,
	}
}

// restoreFromTombstone recovers the pre-delete record. The tombstone must
// carry a backup; a tombstone without one is unrecoverable (only purgeable).
func restoreFromTombstone(tomb *models.Record, now time.Time) (*models.Record, error) {
	if !tomb.IsTombstone() {
		return nil, dErrors.New(dErrors.CodeConflict, "record is not deleted")
	}
	if tomb.Backup == nil {
		return nil, dErrors.New(dErrors.CodeConflict, "tombstone has no backup to restore")
	}

	restored := tomb.Backup.Clone()
	restored.Deleted = false
	restored.DeletedAt = nil
	restored.DeletedBy = ""
	restored.Metadata = nil
	restored.Backup = nil
	restored.UpdatedAt = now
	return restored, nil
}
