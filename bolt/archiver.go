// Package bolt archives exported rewind History in a local bbolt file
package bolt

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.etcd.io/bbolt"

	"github.com/kode4food/rewind"
)

// Archiver stores each archive name as one JSON document in a single
// bucket
type Archiver struct {
	db     *bbolt.DB
	bucket []byte
}

const (
	DefaultBucket = "rewind"
	OpenTimeout   = time.Second
)

var _ rewind.Archiver = (*Archiver)(nil)

// Open opens or creates the bbolt file at path
func Open(path string) (*Archiver, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: OpenTimeout})
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}

	a := &Archiver{db: db, bucket: []byte(DefaultBucket)}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(a.bucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create bucket: %w", err)
	}
	return a, nil
}

// Close closes the bbolt file
func (a *Archiver) Close() error {
	if a == nil || a.db == nil {
		return nil
	}
	return a.db.Close()
}

func (a *Archiver) Get(ctx context.Context, name string) ([]rewind.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if name == "" {
		return nil, rewind.ErrArchiveNameRequired
	}

	var data []byte
	err := a.db.View(func(tx *bbolt.Tx) error {
		if v := tx.Bucket(a.bucket).Get([]byte(name)); v != nil {
			data = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, rewind.ErrArchiveNotFound
	}

	var records []rewind.Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode records: %w", err)
	}
	return records, nil
}

func (a *Archiver) Put(
	ctx context.Context, name string, records []rewind.Record,
) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if name == "" {
		return rewind.ErrArchiveNameRequired
	}
	if records == nil {
		records = []rewind.Record{}
	}

	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("encode records: %w", err)
	}
	return a.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(a.bucket).Put([]byte(name), data)
	})
}

func (a *Archiver) Delete(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if name == "" {
		return rewind.ErrArchiveNameRequired
	}
	return a.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(a.bucket).Delete([]byte(name))
	})
}
