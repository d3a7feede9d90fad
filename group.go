package rewind

import (
	"context"
	"slices"
	"time"

	"go.uber.org/zap"
)

// openGroup buffers the applied Commands of a group until the outermost
// EndGroup. Nesting only moves depth
type openGroup struct {
	id       EntryID
	label    string
	commands []Command
	depth    int
	aborted  bool
}

func newOpenGroup(label string) *openGroup {
	return &openGroup{
		id:    newEntryID(),
		label: label,
	}
}

func (b *Bus) beginGroup(label string) error {
	if b.group == nil {
		b.group = newOpenGroup(label)
	}
	b.group.depth++
	return nil
}

func (b *Bus) endGroup() error {
	g := b.group
	if g == nil {
		return ErrNoOpenGroup
	}

	g.depth--
	if g.depth > 0 {
		return nil
	}

	b.group = nil
	if g.aborted || len(g.commands) == 0 {
		return nil
	}

	e := newEntry(g.id, KindGroup, g.label, g.commands)
	b.commit(e, EventGroupCommitted)
	return nil
}

// rollbackGroup reverts the group's applied Commands newest first after
// cause failed to apply. The group stays open but aborted so the caller's
// pending EndGroup calls still balance
func (b *Bus) rollbackGroup(ctx context.Context, cause *CommandError) error {
	g := b.group
	g.aborted = true
	cause.EntryID = g.id

	defer func() {
		g.commands = nil
		b.hub.emit(&Event{
			Timestamp: time.Now(),
			Type:      EventGroupRolledBack,
			EntryID:   g.id,
			Label:     g.label,
			Kind:      KindGroup,
			Commands:  slices.Clone(cause.RolledBack),
		})
	}()

	for _, cmd := range slices.Backward(g.commands) {
		if err := b.invoke(ctx, cmd, PhaseRevert); err != nil {
			revErr := revertError(cmd.ID(), err)
			revErr.EntryID = g.id
			return b.degrade(&GroupRollbackError{
				Apply:      cause,
				Revert:     revErr,
				RolledBack: slices.Clone(cause.RolledBack),
			})
		}
		delete(b.applied, cmd.ID())
		cause.RolledBack = append(cause.RolledBack, cmd.ID())
	}

	b.logger.Info("Group rolled back",
		zap.String("entry_id", string(g.id)),
		zap.String("label", g.label),
		zap.Int("reverted", len(cause.RolledBack)),
	)
	return cause
}
