package rewind

import (
	"encoding/json"
	"slices"
	"time"

	"github.com/google/uuid"
)

// Entry is a committed unit of History. A single entry holds one Command,
// a group entry holds the ordered Commands of a committed group
type Entry struct {
	Timestamp time.Time
	ID        EntryID
	Label     string
	Kind      EntryKind
	commands  []Command
	payloads  []json.RawMessage
	Sequence  int64
}

func newEntry(id EntryID, kind EntryKind, label string, cmds []Command) *Entry {
	return &Entry{
		Timestamp: time.Now(),
		ID:        id,
		Label:     label,
		Kind:      kind,
		commands:  cmds,
	}
}

// Commands returns a copy of the entry's Commands in application order
func (e *Entry) Commands() []Command {
	res := make([]Command, len(e.commands))
	copy(res, e.commands)
	return res
}

// Record renders the entry in its audit export shape
func (e *Entry) Record() Record {
	ids := make([]ID, len(e.commands))
	for i, c := range e.commands {
		ids[i] = c.ID()
	}
	return Record{
		Timestamp: e.Timestamp,
		EntryID:   e.ID,
		Label:     e.Label,
		Kind:      e.Kind,
		Commands:  ids,
		Payload:   e.payload(),
		Sequence:  e.Sequence,
	}
}

func (e *Entry) payload() json.RawMessage {
	if e.Kind == KindSingle {
		if len(e.payloads) == 0 {
			return nil
		}
		return e.payloads[0]
	}

	if !slices.ContainsFunc(e.payloads, isPayload) {
		return nil
	}

	res := make([]json.RawMessage, len(e.payloads))
	for i, p := range e.payloads {
		if p == nil {
			p = json.RawMessage("null")
		}
		res[i] = p
	}
	data, err := json.Marshal(res)
	if err != nil {
		return nil
	}
	return data
}

func newEntryID() EntryID {
	return EntryID(uuid.NewString())
}

func isPayload(p json.RawMessage) bool {
	return p != nil
}
