package models

import (
	"encoding/json"
	"time"

	"roadlog/pkg/domain"
	dErrors "roadlog/pkg/domain-errors"
)

// MaxExtraFields bounds the loosely-typed payload escape hatch so a single
// record cannot balloon the index row it is projected into.
const MaxExtraFields = 32

// DateLayout is the business-date wire format.
const DateLayout = "2006-01-02"

// Record is one business record (trip, mileage log or expense). A record and
// its tombstone share this shape: soft deletion replaces the live record in
// place, moving the original into Backup and raising the tombstone fields.
// Exactly one authoritative slot exists per ID; the shape toggles between
// live and tombstone, never duplicating the key.
type Record struct {
	ID        domain.RecordID `json:"id"`
	UserID    domain.UserID   `json:"userId"`
	Date      string          `json:"date,omitempty"` // business date, DateLayout
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`

	// Domain payload fields. Each kind uses the subset it needs.
	Title       string  `json:"title,omitempty"`
	Notes       string  `json:"notes,omitempty"`
	Origin      string  `json:"origin,omitempty"`
	Destination string  `json:"destination,omitempty"`
	DistanceKm  float64 `json:"distanceKm,omitempty"`
	Amount      float64 `json:"amount,omitempty"`
	Currency    string  `json:"currency,omitempty"`

	// Extra carries client fields outside the fixed schema, bounded by
	// MaxExtraFields.
	Extra map[string]json.RawMessage `json:"extra,omitempty"`

	// Tombstone shape. Zero on live records.
	Deleted   bool               `json:"deleted,omitempty"`
	DeletedAt *time.Time         `json:"deletedAt,omitempty"`
	DeletedBy string             `json:"deletedBy,omitempty"`
	Metadata  *TombstoneMetadata `json:"metadata,omitempty"`
	Backup    *Record            `json:"backup,omitempty"`
}

// TombstoneMetadata describes a soft deletion and its recovery window.
type TombstoneMetadata struct {
	DeletedAt   time.Time `json:"deletedAt"`
	DeletedBy   string    `json:"deletedBy,omitempty"`
	OriginalKey string    `json:"originalKey"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// TrashEntry is the normalized preview of a tombstoned record, built from
// the tombstone metadata and light fields of the backup.
type TrashEntry struct {
	ID        domain.RecordID `json:"id"`
	DeletedAt time.Time       `json:"deletedAt"`
	DeletedBy string          `json:"deletedBy,omitempty"`
	ExpiresAt time.Time       `json:"expiresAt"`
	Title     string          `json:"title,omitempty"`
	Date      string          `json:"date,omitempty"`
}

// IsTombstone reports whether the record currently holds the tombstone shape.
func (r *Record) IsTombstone() bool { return r.Deleted }

// SortDate is the index ordering key: the business date when present,
// falling back to the creation time.
func (r *Record) SortDate() time.Time {
	if r.Date != "" {
		if t, err := time.Parse(DateLayout, r.Date); err == nil {
			return t
		}
	}
	return r.CreatedAt
}

// Clone returns a deep copy, used to snapshot the pre-delete state into a
// tombstone backup.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	clone := *r
	if r.Extra != nil {
		clone.Extra = make(map[string]json.RawMessage, len(r.Extra))
		for k, v := range r.Extra {
			clone.Extra[k] = append(json.RawMessage(nil), v...)
		}
	}
	if r.DeletedAt != nil {
		t := *r.DeletedAt
		clone.DeletedAt = &t
	}
	if r.Metadata != nil {
		m := *r.Metadata
		clone.Metadata = &m
	}
	clone.Backup = r.Backup.Clone()
	return &clone
}

// Validate enforces the input invariants shared by all record kinds.
func (r *Record) Validate() error {
	if r.UserID.IsZero() {
		return dErrors.New(dErrors.CodeInvalidInput, "userId is required")
	}
	if r.Date != "" {
		if _, err := time.Parse(DateLayout, r.Date); err != nil {
			return dErrors.Newf(dErrors.CodeInvalidInput, "date must be formatted %s", DateLayout)
		}
	}
	if len(r.Extra) > MaxExtraFields {
		return dErrors.Newf(dErrors.CodeInvalidInput, "extra is limited to %d fields", MaxExtraFields)
	}
	return nil
}
