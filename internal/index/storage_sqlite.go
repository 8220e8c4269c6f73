package index

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"roadlog/pkg/domain"
)

// SQLiteStorage is the durable index backend: the summary table, quota
// counters and the legacy flat-list shape all live in one SQLite file.
// Handles serialize per-scope access, so a single writer connection is
// enough; WAL mode keeps reads concurrent.
type SQLiteStorage struct {
	db *sql.DB
}

// Timestamps are stored fixed-width so the textual ORDER BY compares
// chronologically; RFC3339Nano trims trailing fractional zeros, which makes
// "10:00:00Z" sort after "10:00:00.5Z" bytewise.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS records (
	scope      TEXT NOT NULL,
	id         TEXT NOT NULL,
	sort_date  TEXT NOT NULL,
	created_at TEXT NOT NULL,
	data       BLOB NOT NULL,
	PRIMARY KEY (scope, id)
);
CREATE INDEX IF NOT EXISTS records_scope_order ON records (scope, sort_date DESC, created_at DESC);

CREATE TABLE IF NOT EXISTS counters (
	scope TEXT NOT NULL,
	name  TEXT NOT NULL,
	value INTEGER NOT NULL,
	PRIMARY KEY (scope, name)
);

CREATE TABLE IF NOT EXISTS legacy_records (
	scope TEXT PRIMARY KEY,
	data  BLOB NOT NULL
);
`

// OpenSQLite creates or opens the index database at the given path.
// Idempotent: schema creation uses IF NOT EXISTS throughout.
func OpenSQLite(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open index database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect index database: %w", err)
	}

	// SQLite supports one writer at a time; a single pooled connection
	// avoids SQLITE_BUSY under concurrent handles.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply index schema: %w", err)
	}
	return &SQLiteStorage{db: db}, nil
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

func (s *SQLiteStorage) Summaries(ctx context.Context, scope string) ([]Summary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, sort_date, created_at, data FROM records
		 WHERE scope = ? ORDER BY sort_date DESC, created_at DESC, id ASC`, scope)
	if err != nil {
		return nil, fmt.Errorf("list summaries: %w", err)
	}
	defer rows.Close()

	var items []Summary
	for rows.Next() {
		var (
			item              Summary
			sortDate, created string
		)
		if err := rows.Scan(&item.ID, &sortDate, &created, &item.Data); err != nil {
			return nil, fmt.Errorf("scan summary row: %w", err)
		}
		if item.SortDate, err = time.Parse(time.RFC3339Nano, sortDate); err != nil {
			return nil, fmt.Errorf("parse summary sort date: %w", err)
		}
		if item.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
			return nil, fmt.Errorf("parse summary created at: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate summaries: %w", err)
	}
	return items, nil
}

func (s *SQLiteStorage) UpsertSummaries(ctx context.Context, scope string, items []Summary) error {
	if len(items) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin summary upsert: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO records (scope, id, sort_date, created_at, data) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (scope, id) DO UPDATE SET
			sort_date = excluded.sort_date,
			created_at = excluded.created_at,
			data = excluded.data`)
	if err != nil {
		return fmt.Errorf("prepare summary upsert: %w", err)
	}
	defer stmt.Close()

	for _, item := range items {
		_, err := stmt.ExecContext(ctx, scope, string(item.ID),
			item.SortDate.UTC().Format(sqliteTimeLayout),
			item.CreatedAt.UTC().Format(sqliteTimeLayout),
			item.Data)
		if err != nil {
			return fmt.Errorf("upsert summary %s: %w", item.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit summary upsert: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) DeleteSummary(ctx context.Context, scope string, id domain.RecordID) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM records WHERE scope = ? AND id = ?`, scope, string(id)); err != nil {
		return fmt.Errorf("delete summary %s: %w", id, err)
	}
	return nil
}

func (s *SQLiteStorage) Counter(ctx context.Context, scope, name string) (int, error) {
	var value int
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM counters WHERE scope = ? AND name = ?`, scope, name).Scan(&value)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read counter %s: %w", name, err)
	}
	return value, nil
}

func (s *SQLiteStorage) SetCounter(ctx context.Context, scope, name string, value int) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO counters (scope, name, value) VALUES (?, ?, ?)
		 ON CONFLICT (scope, name) DO UPDATE SET value = excluded.value`,
		scope, name, value)
	if err != nil {
		return fmt.Errorf("set counter %s: %w", name, err)
	}
	return nil
}

func (s *SQLiteStorage) LegacyList(ctx context.Context, scope string) ([]Summary, bool, error) {
	var blob []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM legacy_records WHERE scope = ?`, scope).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read legacy list: %w", err)
	}
	var items []Summary
	if err := json.Unmarshal(blob, &items); err != nil {
		return nil, false, fmt.Errorf("decode legacy list: %w", err)
	}
	return items, true, nil
}

func (s *SQLiteStorage) ClearLegacy(ctx context.Context, scope string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM legacy_records WHERE scope = ?`, scope); err != nil {
		return fmt.Errorf("clear legacy list: %w", err)
	}
	return nil
}

// SeedLegacy installs a legacy flat list for a scope. Test hook for the
// cold-start migration path.
func (s *SQLiteStorage) SeedLegacy(ctx context.Context, scope string, items []Summary) error {
	blob, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("encode legacy list: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO legacy_records (scope, data) VALUES (?, ?)
		 ON CONFLICT (scope) DO UPDATE SET data = excluded.data`,
		scope, blob)
	if err != nil {
		return fmt.Errorf("seed legacy list: %w", err)
	}
	return nil
}
