package events

import (
	"github.com/kelindar/event"
)

// Bus wraps a kelindar/event dispatcher for in-process event broadcasting.
type Bus struct {
	dispatcher *event.Dispatcher
}

// New creates a new event bus.
func New() *Bus {
	return &Bus{dispatcher: event.NewDispatcher()}
}

// Publish publishes an event to all subscribers.
func (b *Bus) Publish(ev Event) {
	switch e := ev.(type) {
	case LiveStateChangedEvent:
		event.Publish(b.dispatcher, e)
	case RestreamStateChangedEvent:
		event.Publish(b.dispatcher, e)
	case ReminderDispatchedEvent:
		event.Publish(b.dispatcher, e)
	case LogEntryEvent:
		event.Publish(b.dispatcher, e)
	}
}

// Subscribe registers a handler for the event type inferred from its
// signature. Returns an unsubscribe function.
func (b *Bus) Subscribe(handler any) func() {
	switch h := handler.(type) {
	case func(LiveStateChangedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(RestreamStateChangedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(ReminderDispatchedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(LogEntryEvent):
		return event.Subscribe(b.dispatcher, h)
	default:
		return func() {}
	}
}

// SubscribeToChannel bridges callback subscriptions to a channel, for SSE
// handlers that select over connection context and event delivery.
func SubscribeToChannel[T Event](bus *Bus, ch chan<- any) func() {
	return event.Subscribe(bus.dispatcher, func(e T) {
		select {
		case ch <- e:
		default:
			// Drop when the subscriber is not keeping up.
		}
	})
}
