package bus

import (
	"strings"
	"sync"
	"time"
)

// Bus is an in-process publish/subscribe event bus. Delivery never blocks
// the publisher: a subscriber with a full buffer misses the event.
type Bus struct {
	mu      sync.RWMutex
	subs    map[int]*subscription
	next    int
	dropped map[string]int
}

type subscription struct {
	prefix string
	ch     chan Event
}

// New creates a new event bus.
func New() *Bus {
	return &Bus{
		subs:    make(map[int]*subscription),
		dropped: make(map[string]int),
	}
}

// Emit publishes payload under kind, stamped with the current time.
func (b *Bus) Emit(kind string, payload any) {
	b.Publish(Event{Kind: kind, Timestamp: time.Now(), Payload: payload})
}

// Publish sends evt to every subscriber whose prefix matches evt.Kind.
func (b *Bus) Publish(evt Event) {
	b.mu.RLock()
	var missed []string
	for _, sub := range b.subs {
		if !strings.HasPrefix(evt.Kind, sub.prefix) {
			continue
		}
		select {
		case sub.ch <- evt:
		default:
			missed = append(missed, sub.prefix)
		}
	}
	b.mu.RUnlock()

	if len(missed) > 0 {
		b.mu.Lock()
		for _, p := range missed {
			b.dropped[p]++
		}
		b.mu.Unlock()
	}
}

// Subscribe returns a channel receiving events whose kind starts with
// prefix, and a function that detaches it. The channel is never closed.
func (b *Bus) Subscribe(prefix string, bufSize int) (<-chan Event, func()) {
	ch := make(chan Event, bufSize)
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = &subscription{prefix: prefix, ch: ch}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}
}

// Dropped reports how many events subscribers with prefix have missed.
func (b *Bus) Dropped(prefix string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.dropped[prefix]
}
