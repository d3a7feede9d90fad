package rewind

import (
	"errors"
	"fmt"
)

type (
	// Phase names the Command method that failed
	Phase string

	// CommandError reports a failed Apply or Revert. Cause holds the error
	// returned by the Command, or ErrTimeout
	CommandError struct {
		Cause     error
		CommandID ID
		EntryID   EntryID
		Phase     Phase
		// RolledBack lists the commands reverted to compensate for a failed
		// Apply inside a group
		RolledBack []ID
	}

	// GroupRollbackError reports that a compensating Revert failed while
	// aborting a group. The Bus is degraded when this is returned
	GroupRollbackError struct {
		Apply      *CommandError
		Revert     *CommandError
		RolledBack []ID
	}
)

const (
	PhaseApply  Phase = "apply"
	PhaseRevert Phase = "revert"
)

var (
	// ErrIdempotencyViolation is returned when a Command that is already
	// applied is executed again
	ErrIdempotencyViolation = errors.New("command already applied")

	// ErrNothingToUndo is returned by Undo when no undoable entry remains
	ErrNothingToUndo = errors.New("nothing to undo")

	// ErrNothingToRedo is returned by Redo when no redoable entry remains
	ErrNothingToRedo = errors.New("nothing to redo")

	// ErrTimeout is the cause of a CommandError that exceeded its budget
	ErrTimeout = errors.New("command timed out")

	// ErrDegraded is returned by Undo and Redo after a revert failure until
	// ClearDegraded is called
	ErrDegraded = errors.New("bus degraded by a failed revert")

	// ErrGroupOpen is returned by Undo and Redo while a group is open
	ErrGroupOpen = errors.New("group is open")

	// ErrGroupAborted is returned by Execute inside a group that has
	// already been rolled back
	ErrGroupAborted = errors.New("group was rolled back")

	// ErrNoOpenGroup is returned by EndGroup without a matching BeginGroup
	ErrNoOpenGroup = errors.New("no open group")

	// ErrNoCheckpointTarget is returned by Checkpoint on an empty history
	ErrNoCheckpointTarget = errors.New("no entry to checkpoint")

	// ErrBusClosed is returned for jobs submitted to, or still queued in, a
	// closed Bus
	ErrBusClosed = errors.New("bus closed")
)

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("%s %q failed: %v", e.Phase, e.CommandID, e.Cause)
	if len(e.RolledBack) > 0 {
		msg += fmt.Sprintf(" (rolled back %d)", len(e.RolledBack))
	}
	return msg
}

func (e *CommandError) Unwrap() error {
	return e.Cause
}

func (e *GroupRollbackError) Error() string {
	return fmt.Sprintf(
		"group rollback failed: %v; compensating %v",
		e.Apply, e.Revert,
	)
}

// Unwrap exposes both the failed apply and the failed
// compensating revert
func (e *GroupRollbackError) Unwrap() []error {
	return []error{e.Apply, e.Revert}
}

func applyError(id ID, cause error) *CommandError {
	return &CommandError{
		CommandID: id,
		Phase:     PhaseApply,
		Cause:     cause,
	}
}

func revertError(id ID, cause error) *CommandError {
	return &CommandError{
		CommandID: id,
		Phase:     PhaseRevert,
		Cause:     cause,
	}
}
