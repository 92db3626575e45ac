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
	return &Bus{
		dispatcher: event.NewDispatcher(),
	}
}

// Publish publishes an event to all subscribers of its concrete type.
func (b *Bus) Publish(ev Event) {
	switch e := ev.(type) {
	case DeviceChangedEvent:
		event.Publish(b.dispatcher, e)
	case StreamStateChangedEvent:
		event.Publish(b.dispatcher, e)
	case StreamSwitchedEvent:
		event.Publish(b.dispatcher, e)
	case StreamErrorEvent:
		event.Publish(b.dispatcher, e)
	}
}

// Subscribe registers a handler function. The handler's parameter type
// determines which events it receives. Returns an unsubscribe function.
//
// Usage: unsub := bus.Subscribe(func(e DeviceChangedEvent) { ... })
func (b *Bus) Subscribe(handler any) func() {
	switch h := handler.(type) {
	case func(DeviceChangedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(StreamStateChangedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(StreamSwitchedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(StreamErrorEvent):
		return event.Subscribe(b.dispatcher, h)
	default:
		return func() {}
	}
}

// SubscribeToChannel bridges a typed subscription to a channel. Events are
// dropped rather than blocking when the channel is full; SSE consumers that
// fall behind lose events instead of stalling publishers.
func SubscribeToChannel[T Event](bus *Bus, ch chan<- any) func() {
	return event.Subscribe(bus.dispatcher, func(e T) {
		select {
		case ch <- e:
		default:
		}
	})
}
