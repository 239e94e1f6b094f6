// Package bus provides an in-process fan-out event bus.
//
// Publishers never block: each subscriber owns a bounded buffer and overflow
// drops the oldest buffered event. Delivery is fire-and-forget; there is no
// persistence and no cross-process transport.
package bus

import (
	"sync"
	"time"
)

// Wildcard subscribes to every event type.
const Wildcard = "*"

// DefaultBufferSize is the per-subscriber buffer used by Subscribe.
const DefaultBufferSize = 64

// Event is the envelope that flows through the bus.
type Event struct {
	Type      string
	Timestamp time.Time
	Payload   any
}

// Subscription is a bounded stream of events for a single subscriber.
type Subscription struct {
	C <-chan Event

	bus   *Bus
	types []string
	ch    chan Event
	once  sync.Once
}

// Unsubscribe detaches the subscription and closes its channel.
// Safe to call more than once.
func (s *Subscription) Unsubscribe() {
	if s == nil || s.bus == nil {
		return
	}
	s.once.Do(func() {
		s.bus.remove(s)
		close(s.ch)
	})
}

// Bus fans events out to subscribers keyed by event type.
type Bus struct {
	mu   sync.Mutex
	subs map[string][]*Subscription
	now  func() time.Time
}

// New returns an empty bus.
func New() *Bus {
	return &Bus{
		subs: make(map[string][]*Subscription),
		now:  time.Now,
	}
}

// Subscribe registers a subscriber for the given event type with the default
// buffer. Use bus.Wildcard to receive every event.
func (b *Bus) Subscribe(eventType string) *Subscription {
	return b.SubscribeBuffered(eventType, DefaultBufferSize)
}

// SubscribeBuffered registers a subscriber with an explicit buffer size.
func (b *Bus) SubscribeBuffered(eventType string, size int) *Subscription {
	if size <= 0 {
		size = DefaultBufferSize
	}
	ch := make(chan Event, size)
	sub := &Subscription{C: ch, ch: ch, types: []string{eventType}}
	sub.bus = b

	b.mu.Lock()
	b.subs[eventType] = append(b.subs[eventType], sub)
	b.mu.Unlock()
	return sub
}

// Publish delivers an event to every subscriber of its type plus wildcard
// subscribers. When a subscriber's buffer is full the oldest buffered event
// is dropped to make room.
func (b *Bus) Publish(eventType string, payload any) {
	evt := Event{Type: eventType, Timestamp: b.now().UTC(), Payload: payload}

	b.mu.Lock()
	targets := make([]*Subscription, 0, len(b.subs[eventType])+len(b.subs[Wildcard]))
	targets = append(targets, b.subs[eventType]...)
	if eventType != Wildcard {
		targets = append(targets, b.subs[Wildcard]...)
	}
	for _, sub := range targets {
		deliver(sub.ch, evt)
	}
	b.mu.Unlock()
}

// deliver enqueues without blocking, evicting the oldest event on overflow.
func deliver(ch chan Event, evt Event) {
	for {
		select {
		case ch <- evt:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

func (b *Bus) remove(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, eventType := range sub.types {
		list := b.subs[eventType]
		for i, candidate := range list {
			if candidate == sub {
				b.subs[eventType] = append(list[:i], list[i+1:]...)
				break
			}
		}
		if len(b.subs[eventType]) == 0 {
			delete(b.subs, eventType)
		}
	}
}
