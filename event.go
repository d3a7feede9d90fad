package rewind

import "time"

type (
	// EventType names what a completed Bus operation did
	EventType string

	// Event is emitted once for every completed history operation
	Event struct {
		Timestamp time.Time `json:"timestamp"`
		Type      EventType `json:"type"`
		EntryID   EntryID   `json:"entry_id"`
		Label     string    `json:"label,omitempty"`
		Kind      EntryKind `json:"kind,omitempty"`
		Commands  []ID      `json:"commands,omitempty"`
		Sequence  int64     `json:"sequence,omitempty"`
	}
)

const (
	EventApplied         EventType = "applied"
	EventReverted        EventType = "reverted"
	EventRedone          EventType = "redone"
	EventGroupCommitted  EventType = "groupCommitted"
	EventGroupRolledBack EventType = "groupRolledBack"
	EventHistoryPruned   EventType = "historyPruned"
	EventCheckpointSet   EventType = "checkpointSet"
)

func entryEvent(typ EventType, e *Entry) *Event {
	ids := make([]ID, len(e.commands))
	for i, c := range e.commands {
		ids[i] = c.ID()
	}
	return &Event{
		Timestamp: time.Now(),
		Type:      typ,
		EntryID:   e.ID,
		Label:     e.Label,
		Kind:      e.Kind,
		Commands:  ids,
		Sequence:  e.Sequence,
	}
}
