package bolt_test

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kode4food/rewind"
	"github.com/kode4food/rewind/bolt"
)

func openArchiver(t *testing.T) *bolt.Archiver {
	t.Helper()
	a, err := bolt.Open(filepath.Join(t.TempDir(), "rewind.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func sampleRecords() []rewind.Record {
	now := time.Now()
	return []rewind.Record{
		{
			Timestamp: now,
			EntryID:   "e1",
			Kind:      rewind.KindSingle,
			Commands:  []rewind.ID{"move"},
			Payload:   json.RawMessage(`{"old":{"x":0,"y":0},"new":{"x":3,"y":4}}`),
			Sequence:  1,
		},
		{
			Timestamp: now.Add(time.Millisecond),
			EntryID:   "e2",
			Label:     "batch",
			Kind:      rewind.KindGroup,
			Commands:  []rewind.ID{"c1", "c2"},
			Sequence:  2,
			Undone:    true,
		},
	}
}

func TestArchiverRoundTrip(t *testing.T) {
	a := openArchiver(t)
	ctx := context.Background()
	expected := sampleRecords()

	assert.NoError(t, a.Put(ctx, "session", expected))

	records, err := a.Get(ctx, "session")
	assert.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, expected[0].EntryID, records[0].EntryID)
	assert.JSONEq(t, string(expected[0].Payload), string(records[0].Payload))
	assert.True(t, expected[0].Timestamp.Equal(records[0].Timestamp))
	assert.Equal(t, expected[1].Commands, records[1].Commands)
	assert.Equal(t, "batch", records[1].Label)
	assert.True(t, records[1].Undone)
	assert.Nil(t, records[1].Payload)
}

func TestArchiverReplaceAndDelete(t *testing.T) {
	a := openArchiver(t)
	ctx := context.Background()

	assert.NoError(t, a.Put(ctx, "session", sampleRecords()))
	assert.NoError(t, a.Put(ctx, "session", nil))

	records, err := a.Get(ctx, "session")
	assert.NoError(t, err)
	assert.Empty(t, records)

	assert.NoError(t, a.Delete(ctx, "session"))
	_, err = a.Get(ctx, "session")
	assert.ErrorIs(t, err, rewind.ErrArchiveNotFound)
}

func TestArchiverErrors(t *testing.T) {
	a := openArchiver(t)
	ctx := context.Background()

	_, err := a.Get(ctx, "missing")
	assert.ErrorIs(t, err, rewind.ErrArchiveNotFound)
	assert.ErrorIs(t, a.Put(ctx, "", nil), rewind.ErrArchiveNameRequired)
	assert.ErrorIs(t, a.Delete(ctx, ""), rewind.ErrArchiveNameRequired)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	assert.ErrorIs(t, a.Put(cancelled, "session", nil), context.Canceled)

	_, err = bolt.Open(" ")
	assert.Error(t, err)
}

func TestArchiverReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rewind.db")
	ctx := context.Background()

	a, err := bolt.Open(path)
	require.NoError(t, err)
	assert.NoError(t, a.Put(ctx, "session", sampleRecords()))
	assert.NoError(t, a.Close())

	a, err = bolt.Open(path)
	require.NoError(t, err)
	defer func() { _ = a.Close() }()

	records, err := a.Get(ctx, "session")
	assert.NoError(t, err)
	assert.Len(t, records, 2)
}
