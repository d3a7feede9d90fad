package rewind

import (
	"context"
	"time"
)

type (
	// Command is a reversible unit of work. Everything needed to both apply
	// and revert must be captured when the Command is constructed. Apply and
	// Revert may block; the Bus never runs two of them at once
	Command interface {
		ID() ID
		Apply(context.Context) error
		Revert(context.Context) error
	}

	// Snapshotter is implemented by Commands that can describe themselves
	// for audit export. The returned value must be JSON serializable
	Snapshotter interface {
		Snapshot() any
	}

	// Timed is implemented by Commands that override the configured
	// CommandTimeout. A zero duration disables the timeout
	Timed interface {
		Timeout() time.Duration
	}

	// Action is the function shape accepted by NewCommand
	Action func(context.Context) error

	funcCommand struct {
		id     ID
		apply  Action
		revert Action
	}
)

// NewCommand adapts a pair of functions into a Command
func NewCommand(id ID, apply, revert Action) Command {
	return &funcCommand{
		id:     id,
		apply:  apply,
		revert: revert,
	}
}

func (c *funcCommand) ID() ID {
	return c.id
}

func (c *funcCommand) Apply(ctx context.Context) error {
	return c.apply(ctx)
}

func (c *funcCommand) Revert(ctx context.Context) error {
	return c.revert(ctx)
}
