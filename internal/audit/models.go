package audit

import (
	"context"
	"time"

	"roadlog/pkg/domain"
)

// Event captures a record lifecycle action worth keeping a trail of.
// Keep it transport-agnostic so stores and sinks can fan out.
type Event struct {
	Timestamp time.Time       `json:"timestamp"`
	UserID    domain.UserID   `json:"userId"`
	Kind      domain.Kind     `json:"kind,omitempty"`
	RecordID  domain.RecordID `json:"recordId,omitempty"`
	Action    string          `json:"action"`
	Reason    string          `json:"reason,omitempty"`
	RequestID string          `json:"requestId,omitempty"`
}

// Audited actions.
const (
	ActionRecordDeleted  = "record_deleted"
	ActionRecordRestored = "record_restored"
	ActionRecordPurged   = "record_purged"
	ActionTrashEmptied   = "trash_emptied"
	ActionQuotaExceeded  = "quota_exceeded"
)

// Store persists audit events append-only.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByUser(ctx context.Context, userID domain.UserID) ([]Event, error)
}

// Sink receives a copy of every emitted event, e.g. a Kafka topic feeding
// downstream consumers. Sink failures never fail the emitting operation.
type Sink interface {
	Publish(ctx context.Context, event Event) error
}
