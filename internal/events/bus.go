package events

import (
	"github.com/kelindar/event"
)

// Bus wraps kelindar/event dispatcher for event broadcasting.
// A nil *Bus is valid and drops everything, so components can run without one.
type Bus struct {
	dispatcher *event.Dispatcher
}

// New creates a new event bus
func New() *Bus {
	return &Bus{
		dispatcher: event.NewDispatcher(),
	}
}

// Publish publishes an event to all subscribers.
// Handlers run asynchronously on the dispatcher's goroutines.
func (b *Bus) Publish(ev Event) {
	if b == nil {
		return
	}
	switch e := ev.(type) {
	case LinkChanged:
		event.Publish(b.dispatcher, e)
	case ScheduleFired:
		event.Publish(b.dispatcher, e)
	case RotationStarted:
		event.Publish(b.dispatcher, e)
	case RotationFinished:
		event.Publish(b.dispatcher, e)
	}
}

// Subscribe registers handler for the event type named by its parameter and
// returns the unsubscribe function.
// Usage: unsub := bus.Subscribe(func(e LinkChanged) { ... })
func (b *Bus) Subscribe(handler any) func() {
	if b == nil {
		return func() {}
	}
	switch h := handler.(type) {
	case func(LinkChanged):
		return event.Subscribe(b.dispatcher, h)
	case func(ScheduleFired):
		return event.Subscribe(b.dispatcher, h)
	case func(RotationStarted):
		return event.Subscribe(b.dispatcher, h)
	case func(RotationFinished):
		return event.Subscribe(b.dispatcher, h)
	default:
		return func() {}
	}
}

// Close stops the dispatcher.
func (b *Bus) Close() error {
	if b == nil {
		return nil
	}
	return b.dispatcher.Close()
}
