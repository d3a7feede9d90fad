package rewind

import "slices"

// history is a single append-only sequence split by a cursor. Entries
// before the cursor are the past (newest last), entries from the cursor on
// are the future (next redo first). It is not safe for concurrent use; the
// Bus job loop is its only writer
type history struct {
	entries     []*Entry
	checkpoints []int
	cursor      int
	capacity    int
	seq         int64
	strict      bool
}

func newHistory(capacity int, strict bool) *history {
	return &history{
		entries:  []*Entry{},
		capacity: capacity,
		strict:   strict,
	}
}

func (h *history) pastLen() int {
	return h.cursor
}

func (h *history) futureLen() int {
	return len(h.entries) - h.cursor
}

// commit records e as the newest past entry. Any future is truncated, and
// the past is pruned back to capacity. Truncated and pruned entries are
// returned so the caller can release what they hold
func (h *history) commit(e *Entry) (truncated, pruned []*Entry) {
	truncated = h.truncate()
	h.seq++
	e.Sequence = h.seq
	h.entries = append(h.entries, e)
	h.cursor++
	return truncated, h.prune()
}

func (h *history) nextUndo() (*Entry, bool) {
	if h.cursor == 0 {
		return nil, false
	}
	return h.entries[h.cursor-1], true
}

func (h *history) markUndone() {
	h.cursor--
}

func (h *history) nextRedo() (*Entry, bool) {
	if h.cursor == len(h.entries) {
		return nil, false
	}
	return h.entries[h.cursor], true
}

func (h *history) markRedone() []*Entry {
	h.cursor++
	return h.prune()
}

// checkpoint marks the newest past entry as retained
func (h *history) checkpoint() (*Entry, error) {
	if h.cursor == 0 {
		return nil, ErrNoCheckpointTarget
	}
	idx := h.cursor - 1
	if pos, ok := slices.BinarySearch(h.checkpoints, idx); !ok {
		h.checkpoints = slices.Insert(h.checkpoints, pos, idx)
	}
	return h.entries[idx], nil
}

func (h *history) isCheckpoint(idx int) bool {
	_, ok := slices.BinarySearch(h.checkpoints, idx)
	return ok
}

func (h *history) truncate() []*Entry {
	if h.cursor == len(h.entries) {
		return nil
	}
	res := slices.Clone(h.entries[h.cursor:])
	clear(h.entries[h.cursor:])
	h.entries = h.entries[:h.cursor]

	pos, _ := slices.BinarySearch(h.checkpoints, h.cursor)
	h.checkpoints = h.checkpoints[:pos]
	return res
}

func (h *history) prune() []*Entry {
	var res []*Entry
	for h.cursor > h.capacity {
		idx, ok := h.evictionTarget()
		if !ok {
			break
		}
		res = append(res, h.remove(idx))
	}
	return res
}

// evictionTarget picks the oldest past entry that is not checkpointed,
// never the newest one. When every candidate is checkpointed the oldest
// checkpointed entry is chosen, unless checkpoints are strict
func (h *history) evictionTarget() (int, bool) {
	newest := h.cursor - 1
	for i := range newest {
		if !h.isCheckpoint(i) {
			return i, true
		}
	}
	if h.strict || newest <= 0 {
		return 0, false
	}
	return 0, true
}

func (h *history) remove(idx int) *Entry {
	e := h.entries[idx]
	h.entries = slices.Delete(h.entries, idx, idx+1)
	h.cursor--

	res := h.checkpoints[:0]
	for _, cp := range h.checkpoints {
		switch {
		case cp < idx:
			res = append(res, cp)
		case cp > idx:
			res = append(res, cp-1)
		}
	}
	h.checkpoints = res
	return e
}

func (h *history) records() []Record {
	res := make([]Record, len(h.entries))
	for i, e := range h.entries {
		res[i] = e.Record()
		res[i].Undone = i >= h.cursor
	}
	return res
}

func (h *history) checkpointIDs() []EntryID {
	res := make([]EntryID, len(h.checkpoints))
	for i, cp := range h.checkpoints {
		res[i] = h.entries[cp].ID
	}
	return res
}
