// Package bus is the typed room event bus. It is confined to the event loop.
package bus

import "github.com/dkeye/VoiceAgent/internal/core"

type entry struct {
	id core.Subscription
	h  core.Handler
}

// Bus fans room events out to registered handlers in registration order.
type Bus struct {
	next     core.Subscription
	handlers []entry
}

func New() *Bus { return &Bus{} }

func (b *Bus) On(h core.Handler) core.Subscription {
	b.next++
	b.handlers = append(b.handlers, entry{id: b.next, h: h})
	return b.next
}

// Off is idempotent. A handler removed while an event is being dispatched
// does not see that event if it has not been called yet.
func (b *Bus) Off(sub core.Subscription) {
	for i, e := range b.handlers {
		if e.id == sub {
			b.handlers = append(b.handlers[:i:i], b.handlers[i+1:]...)
			return
		}
	}
}

func (b *Bus) Publish(ev core.RoomEvent) {
	snapshot := b.handlers
	for _, e := range snapshot {
		if !b.has(e.id) {
			continue
		}
		e.h(ev)
	}
}

func (b *Bus) Len() int { return len(b.handlers) }

func (b *Bus) has(id core.Subscription) bool {
	for _, e := range b.handlers {
		if e.id == id {
			return true
		}
	}
	return false
}
