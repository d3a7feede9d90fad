package rewind_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kode4food/rewind"
)

func TestEventSequence(t *testing.T) {
	b := rewind.NewBus(rewind.DefaultConfig())
	ctx := context.Background()
	log := &opLog{}
	finish := collectEvents(b)

	assert.NoError(t, b.Execute(ctx, newCommand("c1", log)))
	assert.NoError(t, b.BeginGroup(ctx, "pair"))
	assert.NoError(t, b.Execute(ctx, newCommand("c2", log)))
	assert.NoError(t, b.Execute(ctx, newCommand("c3", log)))
	assert.NoError(t, b.EndGroup(ctx))
	assert.NoError(t, b.Checkpoint(ctx))
	assert.NoError(t, b.Undo(ctx))
	assert.NoError(t, b.Redo(ctx))
	history := b.History()

	events := finish()
	assert.Equal(t, []rewind.EventType{
		rewind.EventApplied,
		rewind.EventGroupCommitted,
		rewind.EventCheckpointSet,
		rewind.EventReverted,
		rewind.EventRedone,
	}, eventTypes(events))

	applied := events[0]
	assert.Equal(t, history[0].EntryID, applied.EntryID)
	assert.Equal(t, rewind.KindSingle, applied.Kind)
	assert.Equal(t, []rewind.ID{"c1"}, applied.Commands)
	assert.False(t, applied.Timestamp.IsZero())

	group := events[1]
	assert.Equal(t, history[1].EntryID, group.EntryID)
	assert.Equal(t, "pair", group.Label)
	assert.Equal(t, rewind.KindGroup, group.Kind)
	assert.Equal(t, []rewind.ID{"c2", "c3"}, group.Commands)

	for _, ev := range events[2:] {
		assert.Equal(t, group.EntryID, ev.EntryID)
	}
}

func TestPruneAndRollbackEvents(t *testing.T) {
	cfg := rewind.DefaultConfig()
	cfg.HistoryCap = 1
	b := rewind.NewBus(cfg)
	ctx := context.Background()
	log := &opLog{}
	finish := collectEvents(b)

	assert.NoError(t, b.Execute(ctx, newCommand("c1", log)))
	first := b.History()[0].EntryID
	assert.NoError(t, b.Execute(ctx, newCommand("c2", log)))

	bad := newCommand("bad", log)
	bad.applyErr = errBoom
	assert.NoError(t, b.BeginGroup(ctx, "doomed"))
	assert.NoError(t, b.Execute(ctx, newCommand("c3", log)))
	assert.Error(t, b.Execute(ctx, bad))
	assert.NoError(t, b.EndGroup(ctx))

	events := finish()
	assert.Equal(t, []rewind.EventType{
		rewind.EventApplied,
		rewind.EventApplied,
		rewind.EventHistoryPruned,
		rewind.EventGroupRolledBack,
	}, eventTypes(events))
	assert.Equal(t, first, events[2].EntryID)
	assert.Equal(t, "doomed", events[3].Label)
	assert.Equal(t, []rewind.ID{"c3"}, events[3].Commands)
}

func TestListenerFailuresAreIsolated(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	b := rewind.NewBus(rewind.DefaultConfig(),
		rewind.WithLogger(zap.New(core)),
	)
	ctx := context.Background()

	b.Register(func(*rewind.Event) error {
		return errors.New("listener broke")
	})
	b.Register(func(*rewind.Event) error {
		panic("listener exploded")
	})
	finish := collectEvents(b)

	assert.NoError(t, b.Execute(ctx, newCommand("c1", &opLog{})))
	assert.NoError(t, b.Undo(ctx))

	events := finish()
	assert.Len(t, events, 2)
	assert.Equal(t, 2, logs.FilterMessage("Listener failed").Len())
	assert.Equal(t, 2, logs.FilterMessage("Listener panicked").Len())
}

func TestUnregister(t *testing.T) {
	b := rewind.NewBus(rewind.DefaultConfig())
	ctx := context.Background()
	log := &opLog{}

	ch := make(chan *rewind.Event, 10)
	unregister := b.Register(func(ev *rewind.Event) error {
		ch <- ev
		return nil
	})

	assert.NoError(t, b.Execute(ctx, newCommand("c1", log)))
	select {
	case ev := <-ch:
		assert.Equal(t, rewind.EventApplied, ev.Type)
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}

	unregister()
	unregister()
	assert.NoError(t, b.Execute(ctx, newCommand("c2", log)))
	assert.NoError(t, b.Close())
	assert.Empty(t, ch)
}

func TestSlowListenerDoesNotBlockBus(t *testing.T) {
	cfg := rewind.DefaultConfig()
	cfg.EventBufferSize = 1
	core, logs := observer.New(zapcore.WarnLevel)
	b := rewind.NewBus(cfg, rewind.WithLogger(zap.New(core)))
	ctx := context.Background()
	log := &opLog{}

	release := make(chan struct{})
	b.Register(func(*rewind.Event) error {
		<-release
		return nil
	})

	for _, id := range []string{"c1", "c2", "c3", "c4"} {
		assert.NoError(t, b.Execute(ctx, newCommand(id, log)))
	}
	assert.Len(t, b.History(), 4)

	close(release)
	require.NoError(t, b.Close())
	assert.Positive(t, logs.FilterMessage("Event queue full, dropping event").Len())
}

func TestDegradedIsLogged(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	b := rewind.NewBus(rewind.DefaultConfig(),
		rewind.WithLogger(zap.New(core)),
	)
	defer func() { _ = b.Close() }()
	ctx := context.Background()

	c1 := newCommand("c1", &opLog{})
	c1.revertErr = errBoom
	assert.NoError(t, b.Execute(ctx, c1))
	assert.Error(t, b.Undo(ctx))

	entries := logs.FilterMessage("Bus degraded").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.ErrorLevel, entries[0].Level)
}
