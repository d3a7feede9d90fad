// Package postgres archives exported rewind History in PostgreSQL
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kode4food/rewind"
)

// Archiver stores one row per exported record, ordered by position
type Archiver struct {
	pool *pgxpool.Pool
}

const schema = `
CREATE TABLE IF NOT EXISTS rewind_archives (
	name       TEXT PRIMARY KEY,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS rewind_records (
	archive    TEXT        NOT NULL REFERENCES rewind_archives(name) ON DELETE CASCADE,
	position   INTEGER     NOT NULL,
	entry_id   TEXT        NOT NULL,
	kind       TEXT        NOT NULL,
	label      TEXT        NOT NULL,
	commands   JSONB       NOT NULL,
	payload    JSONB,
	sequence   BIGINT      NOT NULL,
	undone     BOOLEAN     NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (archive, position)
);
`

var _ rewind.Archiver = (*Archiver)(nil)

// New wires an Archiver to an existing pool and creates its tables
func New(ctx context.Context, pool *pgxpool.Pool) (*Archiver, error) {
	if pool == nil {
		return nil, fmt.Errorf("archiver pool not initialized")
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Archiver{pool: pool}, nil
}

// Connect opens a pool for the given connection string and wires an
// Archiver to it. Close releases the pool
func Connect(ctx context.Context, connString string) (*Archiver, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping: %w", err)
	}
	a, err := New(ctx, pool)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return a, nil
}

// Close releases the pool
func (a *Archiver) Close() error {
	if a != nil && a.pool != nil {
		a.pool.Close()
	}
	return nil
}

func (a *Archiver) Put(
	ctx context.Context, name string, records []rewind.Record,
) error {
	if name == "" {
		return rewind.ErrArchiveNameRequired
	}

	return pgx.BeginFunc(ctx, a.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`DELETE FROM rewind_records WHERE archive = $1`, name,
		); err != nil {
			return fmt.Errorf("failed to clear archive: %w", err)
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO rewind_archives (name) VALUES ($1)
			 ON CONFLICT (name) DO UPDATE SET updated_at = now()`,
			name,
		); err != nil {
			return fmt.Errorf("failed to upsert archive: %w", err)
		}

		batch := &pgx.Batch{}
		for i, rec := range records {
			commands, err := json.Marshal(rec.Commands)
			if err != nil {
				return fmt.Errorf("failed to encode commands: %w", err)
			}
			var payload any
			if rec.Payload != nil {
				payload = string(rec.Payload)
			}
			batch.Queue(
				`INSERT INTO rewind_records (
					archive, position, entry_id, kind, label, commands,
					payload, sequence, undone, created_at
				) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
				name, i, string(rec.EntryID), string(rec.Kind), rec.Label,
				string(commands), payload, rec.Sequence, rec.Undone,
				rec.Timestamp,
			)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to insert records: %w", err)
		}
		return nil
	})
}

func (a *Archiver) Get(ctx context.Context, name string) ([]rewind.Record, error) {
	if name == "" {
		return nil, rewind.ErrArchiveNameRequired
	}

	var found string
	err := a.pool.QueryRow(ctx,
		`SELECT name FROM rewind_archives WHERE name = $1`, name,
	).Scan(&found)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, rewind.ErrArchiveNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lookup archive: %w", err)
	}

	rows, err := a.pool.Query(ctx,
		`SELECT entry_id, kind, label, commands::text, payload::text,
		        sequence, undone, created_at
		 FROM rewind_records
		 WHERE archive = $1
		 ORDER BY position`,
		name,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	defer rows.Close()

	records := []rewind.Record{}
	for rows.Next() {
		var (
			rec      rewind.Record
			entryID  string
			kind     string
			commands string
			payload  *string
		)
		if err := rows.Scan(
			&entryID, &kind, &rec.Label, &commands, &payload,
			&rec.Sequence, &rec.Undone, &rec.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		if err := json.Unmarshal([]byte(commands), &rec.Commands); err != nil {
			return nil, fmt.Errorf("failed to decode commands: %w", err)
		}
		if payload != nil {
			rec.Payload = json.RawMessage(*payload)
		}
		rec.EntryID = rewind.EntryID(entryID)
		rec.Kind = rewind.EntryKind(kind)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate records: %w", err)
	}
	return records, nil
}

func (a *Archiver) Delete(ctx context.Context, name string) error {
	if name == "" {
		return rewind.ErrArchiveNameRequired
	}
	_, err := a.pool.Exec(ctx,
		`DELETE FROM rewind_archives WHERE name = $1`, name,
	)
	if err != nil {
		return fmt.Errorf("failed to delete archive: %w", err)
	}
	return nil
}
