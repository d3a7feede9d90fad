package rewind

import (
	"slices"
	"sync"

	"go.uber.org/zap"
)

type (
	// Listener receives Events from the Bus. Returned errors and panics are
	// logged and otherwise ignored
	Listener func(*Event) error

	// hub delivers events to registered listeners from a single goroutine,
	// in emission order, without ever blocking the emitter
	hub struct {
		logger    *zap.Logger
		queue     chan *Event
		done      chan struct{}
		listeners []*registration
		nextID    uint64
		mu        sync.RWMutex
		sendMu    sync.RWMutex
		closed    bool
	}

	registration struct {
		listener Listener
		id       uint64
	}
)

func newHub(size int, logger *zap.Logger) *hub {
	h := &hub{
		logger: logger,
		queue:  make(chan *Event, size),
		done:   make(chan struct{}),
	}
	go h.dispatch()
	return h
}

// register adds a listener and returns a function that removes it
func (h *hub) register(l Listener) func() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	reg := &registration{listener: l, id: h.nextID}
	h.listeners = append(slices.Clone(h.listeners), reg)

	var once sync.Once
	return func() {
		once.Do(func() { h.unregister(reg.id) })
	}
}

func (h *hub) unregister(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.listeners = slices.DeleteFunc(
		slices.Clone(h.listeners),
		func(r *registration) bool { return r.id == id },
	)
}

// emit queues an event for delivery. A full queue drops the event
func (h *hub) emit(ev *Event) bool {
	h.sendMu.RLock()
	defer h.sendMu.RUnlock()

	if h.closed {
		return false
	}

	select {
	case h.queue <- ev:
		return true
	default:
		h.logger.Warn("Event queue full, dropping event",
			zap.String("type", string(ev.Type)),
			zap.String("entry_id", string(ev.EntryID)),
			zap.Int("queue_size", len(h.queue)),
		)
		return false
	}
}

func (h *hub) dispatch() {
	defer close(h.done)

	for ev := range h.queue {
		h.mu.RLock()
		regs := h.listeners
		h.mu.RUnlock()

		for _, reg := range regs {
			h.deliver(reg, ev)
		}
	}
}

func (h *hub) deliver(reg *registration, ev *Event) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("Listener panicked",
				zap.Uint64("listener_id", reg.id),
				zap.String("type", string(ev.Type)),
				zap.Any("panic", r),
			)
		}
	}()

	if err := reg.listener(ev); err != nil {
		h.logger.Warn("Listener failed",
			zap.Uint64("listener_id", reg.id),
			zap.String("type", string(ev.Type)),
			zap.String("entry_id", string(ev.EntryID)),
			zap.Error(err),
		)
	}
}

// close stops accepting events, delivers what is already queued, and waits
// for the dispatcher to finish
func (h *hub) close() {
	h.sendMu.Lock()
	if !h.closed {
		h.closed = true
		close(h.queue)
	}
	h.sendMu.Unlock()
	<-h.done
}
