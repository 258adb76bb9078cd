package events

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Bus fans events out to subscribers. Delivery is non-blocking: a subscriber
// whose channel buffer is full misses the event rather than stalling the
// collector pipeline.
type Bus struct {
	subscribers map[chan Event]map[EventType]bool // channel -> type filter (nil = all)
	mu          sync.RWMutex
	log         zerolog.Logger
}

// NewBus creates a new event bus
func NewBus(log zerolog.Logger) *Bus {
	return &Bus{
		subscribers: make(map[chan Event]map[EventType]bool),
		log:         log.With().Str("component", "event_bus").Logger(),
	}
}

// Subscribe adds a subscriber. With no types given the subscriber receives
// every event. The returned channel is buffered; callers must Unsubscribe
// when done.
func (b *Bus) Subscribe(types ...EventType) chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, 64) // Buffer to prevent blocking publishers

	var filter map[EventType]bool
	if len(types) > 0 {
		filter = make(map[EventType]bool, len(types))
		for _, t := range types {
			filter[t] = true
		}
	}
	b.subscribers[ch] = filter

	b.log.Debug().
		Int("total_subscribers", len(b.subscribers)).
		Msg("New subscriber added")

	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Bus) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subscribers[ch]; !ok {
		return
	}
	delete(b.subscribers, ch)
	close(ch)

	b.log.Debug().
		Int("total_subscribers", len(b.subscribers)).
		Msg("Subscriber removed")
}

// Publish broadcasts a typed event to all matching subscribers.
func (b *Bus) Publish(module string, data EventData) {
	event := Event{
		Type:      data.EventType(),
		Timestamp: time.Now().UTC(),
		Module:    module,
		Data:      data,
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch, filter := range b.subscribers {
		if filter != nil && !filter[event.Type] {
			continue
		}
		select {
		case ch <- event:
		default:
			// Channel buffer full, skip this subscriber
			b.log.Warn().
				Str("event_type", string(event.Type)).
				Msg("Subscriber channel full, event dropped")
		}
	}
}

// SubscriberCount returns the number of active subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
