package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"roadlog/pkg/domain"
)

// PostgresStore persists the audit trail durably. The table is append-only;
// events are never updated or deleted here.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a Postgres-backed audit store. The connection
// lifecycle is managed externally.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the audit table. Idempotent.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS audit_events (
			id         UUID PRIMARY KEY,
			ts         TIMESTAMPTZ NOT NULL,
			user_id    TEXT NOT NULL,
			kind       TEXT NOT NULL DEFAULT '',
			record_id  TEXT NOT NULL DEFAULT '',
			action     TEXT NOT NULL,
			reason     TEXT NOT NULL DEFAULT '',
			request_id TEXT NOT NULL DEFAULT ''
		);
		CREATE INDEX IF NOT EXISTS audit_events_user_ts ON audit_events (user_id, ts DESC);
	`)
	if err != nil {
		return fmt.Errorf("migrate audit schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Append(ctx context.Context, event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_events (id, ts, user_id, kind, record_id, action, reason, request_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		uuid.New(), event.Timestamp, string(event.UserID), string(event.Kind),
		string(event.RecordID), event.Action, event.Reason, event.RequestID)
	if err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByUser(ctx context.Context, userID domain.UserID) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ts, user_id, kind, record_id, action, reason, request_id
		FROM audit_events WHERE user_id = $1 ORDER BY ts DESC`, string(userID))
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			event                Event
			user, kind, recordID string
		)
		if err := rows.Scan(&event.Timestamp, &user, &kind, &recordID,
			&event.Action, &event.Reason, &event.RequestID); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		event.UserID = domain.UserID(user)
		event.Kind = domain.Kind(kind)
		event.RecordID = domain.RecordID(recordID)
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}
