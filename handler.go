package rewind

// MakeDispatcher returns a Listener that routes each Event to the Listener
// registered for its type. Events without a matching Listener are ignored
func MakeDispatcher(listeners map[EventType]Listener) Listener {
	return func(ev *Event) error {
		if fn, ok := listeners[ev.Type]; ok {
			return fn(ev)
		}
		return nil
	}
}

// MakeEntryListener returns a Listener that only sees Events for the given
// entry kind
func MakeEntryListener(kind EntryKind, fn Listener) Listener {
	return func(ev *Event) error {
		if ev.Kind != kind {
			return nil
		}
		return fn(ev)
	}
}
