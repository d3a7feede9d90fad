package rewind

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type (
	// Bus executes Commands and drives undo and redo against its History.
	// Every history-mutating call is queued and processed strictly in
	// arrival order by a single goroutine. Queries read an immutable view
	// published after each job and never wait behind the queue
	Bus struct {
		config  Config
		logger  *zap.Logger
		tracer  trace.Tracer
		hub     *hub
		ctx     context.Context
		cancel  context.CancelFunc
		queue   chan *job
		stopped chan struct{}
		view    atomic.Pointer[view]
		state   atomic.Value
		mu      sync.RWMutex
		closed  bool

		// owned by the loop goroutine
		history  *history
		group    *openGroup
		applied  map[ID]struct{}
		degraded bool
	}

	view struct {
		records     []Record
		checkpoints []EntryID
		past        int
		future      int
		depth       int
		degraded    bool
	}
)

// NewBus creates a Bus and starts its job loop. Close releases it
func NewBus(cfg Config, opts ...Option) *Bus {
	cfg = cfg.normalized()
	ctx, cancel := context.WithCancel(context.Background())

	b := &Bus{
		config:  cfg,
		logger:  zap.NewNop(),
		tracer:  otel.GetTracerProvider().Tracer(tracerName),
		ctx:     ctx,
		cancel:  cancel,
		queue:   make(chan *job, cfg.QueueSize),
		stopped: make(chan struct{}),
		history: newHistory(cfg.HistoryCap, cfg.StrictCheckpoints),
		applied: map[ID]struct{}{},
	}
	for _, opt := range opts {
		opt(b)
	}

	b.hub = newHub(cfg.EventBufferSize, b.logger)
	b.state.Store(StateIdle)
	b.publish()

	go b.loop()
	return b
}

// Execute applies cmd. Outside a group a successful Command is committed
// as a single History entry and any redo future is discarded. Inside a
// group it is buffered until the outermost EndGroup, and a failure rolls
// back the Commands already applied in the group
func (b *Bus) Execute(ctx context.Context, cmd Command) error {
	return b.submit(ctx, "execute",
		func(ctx context.Context) error {
			return b.execute(ctx, cmd)
		},
		attribute.String("rewind.command_id", string(cmd.ID())),
	)
}

// Undo reverts the newest undoable entry, members in reverse order
func (b *Bus) Undo(ctx context.Context) error {
	return b.submit(ctx, "undo", b.undo)
}

// Redo re-applies the most recently undone entry, members in order
func (b *Bus) Redo(ctx context.Context) error {
	return b.submit(ctx, "redo", b.redo)
}

// BeginGroup opens a group, or nests within the one already open. The
// label of a nested group is ignored
func (b *Bus) BeginGroup(ctx context.Context, label string) error {
	return b.submit(ctx, "begin_group",
		func(context.Context) error {
			return b.beginGroup(label)
		},
		attribute.String("rewind.label", label),
	)
}

// EndGroup closes the innermost group. Closing the outermost group commits
// its Commands as a single entry, unless it is empty or was rolled back
func (b *Bus) EndGroup(ctx context.Context) error {
	return b.submit(ctx, "end_group", func(context.Context) error {
		return b.endGroup()
	})
}

// Checkpoint marks the newest undoable entry so pruning evicts it last
func (b *Bus) Checkpoint(ctx context.Context) error {
	return b.submit(ctx, "checkpoint", func(context.Context) error {
		return b.checkpoint()
	})
}

// ClearDegraded acknowledges a failed revert and re-enables Undo and Redo
func (b *Bus) ClearDegraded(ctx context.Context) error {
	return b.submit(ctx, "clear_degraded", func(context.Context) error {
		if b.degraded {
			b.logger.Info("Degraded state cleared")
		}
		b.degraded = false
		return nil
	})
}

// Register adds a Listener for every subsequent Event. The returned
// function removes it
func (b *Bus) Register(l Listener) func() {
	return b.hub.register(l)
}

// Export hands the current History records to an Archiver under name
func (b *Bus) Export(ctx context.Context, a Archiver, name string) error {
	return a.Put(ctx, name, b.History())
}

// Close stops the Bus. A job already running finishes, queued jobs fail
// with ErrBusClosed, and undelivered Events are flushed to Listeners
func (b *Bus) Close() error {
	b.cancel()
	<-b.stopped
	b.hub.close()
	return nil
}

// CanUndo reports whether Undo would revert an entry
func (b *Bus) CanUndo() bool {
	v := b.view.Load()
	return v.past > 0 && v.depth == 0 && !v.degraded
}

// CanRedo reports whether Redo would re-apply an entry
func (b *Bus) CanRedo() bool {
	v := b.view.Load()
	return v.future > 0 && v.depth == 0 && !v.degraded
}

// History returns every retained entry in application order. Entries that
// are currently undone are marked as such
func (b *Bus) History() []Record {
	return slices.Clone(b.view.Load().records)
}

// Checkpoints returns the IDs of checkpointed entries, oldest first
func (b *Bus) Checkpoints() []EntryID {
	return slices.Clone(b.view.Load().checkpoints)
}

// Degraded reports whether a failed revert is blocking Undo and Redo
func (b *Bus) Degraded() bool {
	return b.view.Load().degraded
}

// GroupDepth returns the nesting depth of the open group, if any
func (b *Bus) GroupDepth() int {
	return b.view.Load().depth
}

// State reports what the Bus is doing right now
func (b *Bus) State() State {
	return b.state.Load().(State)
}

func (b *Bus) execute(ctx context.Context, cmd Command) error {
	id := cmd.ID()
	if _, ok := b.applied[id]; ok {
		return applyError(id, ErrIdempotencyViolation)
	}
	if b.group != nil && b.group.aborted {
		return applyError(id, ErrGroupAborted)
	}

	b.state.Store(StateApplying)
	if err := b.invoke(ctx, cmd, PhaseApply); err != nil {
		cmdErr := applyError(id, err)
		if b.group != nil {
			return b.rollbackGroup(ctx, cmdErr)
		}
		return cmdErr
	}
	b.applied[id] = struct{}{}

	if b.group != nil {
		b.group.commands = append(b.group.commands, cmd)
		return nil
	}

	b.commit(newEntry(newEntryID(), KindSingle, "", []Command{cmd}),
		EventApplied,
	)
	return nil
}

func (b *Bus) undo(ctx context.Context) error {
	if err := b.checkTraversal(); err != nil {
		return err
	}
	e, ok := b.history.nextUndo()
	if !ok {
		return ErrNothingToUndo
	}

	b.state.Store(StateUndoing)
	for _, cmd := range slices.Backward(e.commands) {
		if err := b.invoke(ctx, cmd, PhaseRevert); err != nil {
			revErr := revertError(cmd.ID(), err)
			revErr.EntryID = e.ID
			return b.degrade(revErr)
		}
		delete(b.applied, cmd.ID())
	}

	b.history.markUndone()
	b.hub.emit(entryEvent(EventReverted, e))
	return nil
}

func (b *Bus) redo(ctx context.Context) error {
	if err := b.checkTraversal(); err != nil {
		return err
	}
	e, ok := b.history.nextRedo()
	if !ok {
		return ErrNothingToRedo
	}

	for _, cmd := range e.commands {
		if _, ok := b.applied[cmd.ID()]; ok {
			appErr := applyError(cmd.ID(), ErrIdempotencyViolation)
			appErr.EntryID = e.ID
			return appErr
		}
	}

	b.state.Store(StateRedoing)
	for _, cmd := range e.commands {
		if err := b.invoke(ctx, cmd, PhaseApply); err != nil {
			appErr := applyError(cmd.ID(), err)
			appErr.EntryID = e.ID
			return b.degrade(appErr)
		}
		b.applied[cmd.ID()] = struct{}{}
	}

	pruned := b.history.markRedone()
	b.hub.emit(entryEvent(EventRedone, e))
	b.release(pruned, true)
	return nil
}

func (b *Bus) checkpoint() error {
	e, err := b.history.checkpoint()
	if err != nil {
		return err
	}
	b.hub.emit(entryEvent(EventCheckpointSet, e))
	return nil
}

func (b *Bus) checkTraversal() error {
	if b.degraded {
		return ErrDegraded
	}
	if b.group != nil {
		return ErrGroupOpen
	}
	return nil
}

func (b *Bus) commit(e *Entry, typ EventType) {
	e.payloads = b.snapshots(e.commands)
	truncated, pruned := b.history.commit(e)
	b.hub.emit(entryEvent(typ, e))
	b.release(truncated, false)
	b.release(pruned, true)
}

// release forgets the Commands of entries that left the History. Pruned
// entries are announced
func (b *Bus) release(entries []*Entry, announce bool) {
	for _, e := range entries {
		for _, cmd := range e.commands {
			delete(b.applied, cmd.ID())
		}
		if announce {
			b.hub.emit(entryEvent(EventHistoryPruned, e))
		}
	}
}

func (b *Bus) snapshots(cmds []Command) []json.RawMessage {
	res := make([]json.RawMessage, len(cmds))
	for i, cmd := range cmds {
		s, ok := cmd.(Snapshotter)
		if !ok {
			continue
		}
		data, err := json.Marshal(s.Snapshot())
		if err != nil {
			b.logger.Warn("Failed to marshal command snapshot",
				zap.String("command_id", string(cmd.ID())),
				zap.Error(err),
			)
			continue
		}
		res[i] = data
	}
	return res
}

func (b *Bus) degrade(err error) error {
	b.degraded = true
	b.logger.Error("Bus degraded", zap.Error(err))
	return err
}

// invoke runs one phase of cmd, bounded by its timeout. On timeout the
// call is abandoned and its context cancelled, but it may keep running
func (b *Bus) invoke(ctx context.Context, cmd Command, phase Phase) error {
	fn := cmd.Apply
	if phase == PhaseRevert {
		fn = cmd.Revert
	}

	timeout := b.timeoutFor(cmd)
	if timeout <= 0 {
		return safeCall(ctx, fn)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	res := make(chan error, 1)
	go func() {
		res <- safeCall(ctx, fn)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err := <-res:
		return err
	case <-timer.C:
		b.logger.Warn("Command timed out",
			zap.String("command_id", string(cmd.ID())),
			zap.String("phase", string(phase)),
			zap.Duration("timeout", timeout),
		)
		return fmt.Errorf("%w after %s", ErrTimeout, timeout)
	}
}

func (b *Bus) timeoutFor(cmd Command) time.Duration {
	if t, ok := cmd.(Timed); ok {
		return t.Timeout()
	}
	return b.config.CommandTimeout
}

// settle publishes the post-job view and returns to a resting state
func (b *Bus) settle() {
	b.publish()
	if b.group != nil {
		b.state.Store(StateGroupOpen)
		return
	}
	b.state.Store(StateIdle)
}

func (b *Bus) publish() {
	v := &view{
		records:     b.history.records(),
		checkpoints: b.history.checkpointIDs(),
		past:        b.history.pastLen(),
		future:      b.history.futureLen(),
		degraded:    b.degraded,
	}
	if b.group != nil {
		v.depth = b.group.depth
	}
	b.view.Store(v)
}

func safeCall(ctx context.Context, fn func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("command panicked: %v", r)
		}
	}()
	return fn(ctx)
}
