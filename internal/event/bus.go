package event

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// subscriberBuffer absorbs the bursts of one refresh failure: a toast and a
// navigate event for every session page that is open.
const subscriberBuffer = 100

// InMemoryBus fans events out to every subscriber. Publishing never blocks;
// a subscriber that falls behind loses events.
type InMemoryBus struct {
	mu          sync.RWMutex
	closed      bool
	subscribers map[string]chan Event
}

func NewBus() *InMemoryBus {
	return &InMemoryBus{
		subscribers: make(map[string]chan Event),
	}
}

func (b *InMemoryBus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for id, ch := range b.subscribers {
		select {
		case ch <- e:
		default:
			slog.Warn("event dropped for slow subscriber", "subscriber", id, "session", e.SessionID, "type", e.Type)
		}
	}
}

// Subscribe returns a channel of every published event. On a closed bus the
// channel is already closed.
func (b *InMemoryBus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, subscriberBuffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}

	id := uuid.NewString()
	b.subscribers[id] = ch

	unsubscribe := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if ch, exists := b.subscribers[id]; exists {
			close(ch)
			delete(b.subscribers, id)
		}
	}

	return ch, unsubscribe
}

// Close ends every subscription. Later publishes are discarded.
func (b *InMemoryBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subscribers {
		close(ch)
		delete(b.subscribers, id)
	}
}
