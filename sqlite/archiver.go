// Package sqlite archives exported rewind History in a SQLite database
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/kode4food/rewind"
)

// Archiver stores one row per exported record, ordered by position
type Archiver struct {
	sqlDB *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS rewind_archives (
	name       TEXT PRIMARY KEY,
	updated_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS rewind_records (
	archive    TEXT    NOT NULL REFERENCES rewind_archives(name) ON DELETE CASCADE,
	position   INTEGER NOT NULL,
	entry_id   TEXT    NOT NULL,
	kind       TEXT    NOT NULL,
	label      TEXT    NOT NULL,
	commands   TEXT    NOT NULL,
	payload    TEXT,
	sequence   INTEGER NOT NULL,
	undone     INTEGER NOT NULL,
	created_at INTEGER NOT NULL,
	PRIMARY KEY (archive, position)
);
`

var _ rewind.Archiver = (*Archiver)(nil)

// Open opens a SQLite archive and creates its tables
func Open(path string) (*Archiver, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Archiver{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle
func (a *Archiver) Close() error {
	if a == nil || a.sqlDB == nil {
		return nil
	}
	return a.sqlDB.Close()
}

func (a *Archiver) Put(
	ctx context.Context, name string, records []rewind.Record,
) (err error) {
	if name == "" {
		return rewind.ErrArchiveNameRequired
	}

	tx, err := a.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx,
		`DELETE FROM rewind_records WHERE archive = ?`, name,
	); err != nil {
		return fmt.Errorf("clear archive: %w", err)
	}
	if _, err = tx.ExecContext(ctx,
		`INSERT INTO rewind_archives (name, updated_at) VALUES (?, ?)
		 ON CONFLICT(name) DO UPDATE SET updated_at = excluded.updated_at`,
		name, time.Now().UTC().UnixNano(),
	); err != nil {
		return fmt.Errorf("upsert archive: %w", err)
	}

	for i, rec := range records {
		if err = insertRecord(ctx, tx, name, i, rec); err != nil {
			return err
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (a *Archiver) Get(ctx context.Context, name string) ([]rewind.Record, error) {
	if name == "" {
		return nil, rewind.ErrArchiveNameRequired
	}

	var found string
	err := a.sqlDB.QueryRowContext(ctx,
		`SELECT name FROM rewind_archives WHERE name = ?`, name,
	).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, rewind.ErrArchiveNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lookup archive: %w", err)
	}

	rows, err := a.sqlDB.QueryContext(ctx,
		`SELECT entry_id, kind, label, commands, payload, sequence, undone,
		        created_at
		 FROM rewind_records
		 WHERE archive = ?
		 ORDER BY position`,
		name,
	)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	records := []rewind.Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return records, nil
}

func (a *Archiver) Delete(ctx context.Context, name string) error {
	if name == "" {
		return rewind.ErrArchiveNameRequired
	}
	if _, err := a.sqlDB.ExecContext(ctx,
		`DELETE FROM rewind_records WHERE archive = ?`, name,
	); err != nil {
		return fmt.Errorf("delete records: %w", err)
	}
	if _, err := a.sqlDB.ExecContext(ctx,
		`DELETE FROM rewind_archives WHERE name = ?`, name,
	); err != nil {
		return fmt.Errorf("delete archive: %w", err)
	}
	return nil
}

func insertRecord(
	ctx context.Context, tx *sql.Tx, name string, pos int, rec rewind.Record,
) error {
	commands, err := json.Marshal(rec.Commands)
	if err != nil {
		return fmt.Errorf("encode commands: %w", err)
	}

	var payload any
	if rec.Payload != nil {
		payload = string(rec.Payload)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO rewind_records (
			archive, position, entry_id, kind, label, commands, payload,
			sequence, undone, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		name, pos, string(rec.EntryID), string(rec.Kind), rec.Label,
		string(commands), payload, rec.Sequence, boolToInt(rec.Undone),
		rec.Timestamp.UTC().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert record: %w", err)
	}
	return nil
}

func scanRecord(rows *sql.Rows) (rewind.Record, error) {
	var (
		rec       rewind.Record
		entryID   string
		kind      string
		commands  string
		payload   sql.NullString
		undone    int
		createdAt int64
	)
	if err := rows.Scan(
		&entryID, &kind, &rec.Label, &commands, &payload, &rec.Sequence,
		&undone, &createdAt,
	); err != nil {
		return rec, fmt.Errorf("scan record: %w", err)
	}

	if err := json.Unmarshal([]byte(commands), &rec.Commands); err != nil {
		return rec, fmt.Errorf("decode commands: %w", err)
	}
	if payload.Valid {
		rec.Payload = json.RawMessage(payload.String)
	}
	rec.EntryID = rewind.EntryID(entryID)
	rec.Kind = rewind.EntryKind(kind)
	rec.Undone = undone != 0
	rec.Timestamp = time.Unix(0, createdAt).UTC()
	return rec, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
