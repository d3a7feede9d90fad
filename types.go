package rewind

import (
	"encoding/json"
	"time"
)

type (
	// ID identifies a Command
	ID string

	// EntryID identifies a committed History entry
	EntryID string

	// EntryKind distinguishes standalone commands from groups
	EntryKind string

	// Record is the audit export shape of a single History entry
	Record struct {
		Timestamp time.Time       `json:"timestamp"`
		EntryID   EntryID         `json:"entry_id"`
		Label     string          `json:"label,omitempty"`
		Kind      EntryKind       `json:"kind"`
		Commands  []ID            `json:"commands"`
		Payload   json.RawMessage `json:"payload,omitempty"`
		Sequence  int64           `json:"sequence"`
		Undone    bool            `json:"undone,omitempty"`
	}

	// State reports what the Bus is currently doing
	State string
)

const (
	KindSingle EntryKind = "single"
	KindGroup  EntryKind = "group"
)

const (
	StateIdle      State = "idle"
	StateApplying  State = "applying"
	StateUndoing   State = "undoing"
	StateRedoing   State = "redoing"
	StateGroupOpen State = "group_open"
)
