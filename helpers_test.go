package rewind_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kode4food/rewind"
)

type (
	opLog struct {
		mu  sync.Mutex
		ops []string
	}

	testCommand struct {
		id        rewind.ID
		log       *opLog
		applyErr  error
		revertErr error
		applies   atomic.Int32
		reverts   atomic.Int32
	}

	blockingCommand struct {
		testCommand
		started chan struct{}
		release chan struct{}
	}

	position struct {
		X int `json:"x"`
		Y int `json:"y"`
	}

	world struct {
		mu  sync.Mutex
		pos position
	}

	setPosition struct {
		world *world
		id    rewind.ID
		old   position
		next  position
	}

	memArchiver struct {
		mu    sync.Mutex
		items map[string][]rewind.Record
	}
)

var errBoom = errors.New("boom")

func newTestBus(t *testing.T, cfg rewind.Config) *rewind.Bus {
	t.Helper()
	b := rewind.NewBus(cfg)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func newCommand(id string, log *opLog) *testCommand {
	return &testCommand{id: rewind.ID(id), log: log}
}

func (c *testCommand) ID() rewind.ID {
	return c.id
}

func (c *testCommand) Apply(context.Context) error {
	if c.applyErr != nil {
		return c.applyErr
	}
	c.applies.Add(1)
	c.log.add("apply:" + string(c.id))
	return nil
}

func (c *testCommand) Revert(context.Context) error {
	if c.revertErr != nil {
		return c.revertErr
	}
	c.reverts.Add(1)
	c.log.add("revert:" + string(c.id))
	return nil
}

func newBlockingCommand(id string, log *opLog) *blockingCommand {
	return &blockingCommand{
		testCommand: testCommand{id: rewind.ID(id), log: log},
		started:     make(chan struct{}),
		release:     make(chan struct{}),
	}
}

func (c *blockingCommand) Apply(ctx context.Context) error {
	close(c.started)
	<-c.release
	return c.testCommand.Apply(ctx)
}

func (l *opLog) add(op string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ops = append(l.ops, op)
}

func (l *opLog) list() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.ops...)
}

func (w *world) position() position {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.pos
}

func (w *world) set(p position) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pos = p
}

func (c *setPosition) ID() rewind.ID {
	return c.id
}

func (c *setPosition) Apply(context.Context) error {
	c.world.set(c.next)
	return nil
}

func (c *setPosition) Revert(context.Context) error {
	c.world.set(c.old)
	return nil
}

func (c *setPosition) Snapshot() any {
	return map[string]position{"old": c.old, "new": c.next}
}

func newMemArchiver() *memArchiver {
	return &memArchiver{items: map[string][]rewind.Record{}}
}

func (a *memArchiver) Get(_ context.Context, name string) ([]rewind.Record, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	rec, ok := a.items[name]
	if !ok {
		return nil, rewind.ErrArchiveNotFound
	}
	return rec, nil
}

func (a *memArchiver) Put(
	_ context.Context, name string, records []rewind.Record,
) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.items[name] = records
	return nil
}

func (a *memArchiver) Delete(_ context.Context, name string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.items, name)
	return nil
}

// collectEvents registers a listener; the returned func closes the Bus,
// which flushes pending events, and returns everything delivered
func collectEvents(b *rewind.Bus) func() []*rewind.Event {
	var mu sync.Mutex
	var events []*rewind.Event
	b.Register(func(ev *rewind.Event) error {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, ev)
		return nil
	})
	return func() []*rewind.Event {
		_ = b.Close()
		mu.Lock()
		defer mu.Unlock()
		return events
	}
}

func eventTypes(evs []*rewind.Event) []rewind.EventType {
	res := make([]rewind.EventType, len(evs))
	for i, ev := range evs {
		res[i] = ev.Type
	}
	return res
}

func pastLen(records []rewind.Record) int {
	n := 0
	for _, r := range records {
		if !r.Undone {
			n++
		}
	}
	return n
}

func entryCommands(records []rewind.Record) []string {
	res := make([]string, 0, len(records))
	for _, r := range records {
		res = append(res, string(r.Commands[0]))
	}
	return res
}

func assertPosition(t *testing.T, w *world, x, y int) {
	t.Helper()
	assert.Equal(t, position{X: x, Y: y}, w.position())
}
