package events

import (
	"sync"
)

const defaultBufSize = 256

// EventBus is a channel-based pub-sub event bus.
// Events are routed by their Topic(); SubscribeAll receives every topic.
type EventBus struct {
	mu      sync.RWMutex
	subs    map[string][]chan Event // topic -> subscriber channels
	allSubs []chan Event
	closed  bool
}

// NewEventBus creates a new event bus.
func NewEventBus() *EventBus {
	return &EventBus{
		subs: make(map[string][]chan Event),
	}
}

// Subscribe returns a channel receiving events of one topic.
// bufSize defaults to 256 if <= 0.
func (b *EventBus) Subscribe(topic string, bufSize int) <-chan Event {
	ch := newChan(bufSize)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		close(ch)
		return ch
	}
	b.subs[topic] = append(b.subs[topic], ch)
	return ch
}

// SubscribeAll returns a channel receiving events of every topic.
func (b *EventBus) SubscribeAll(bufSize int) <-chan Event {
	ch := newChan(bufSize)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		close(ch)
		return ch
	}
	b.allSubs = append(b.allSubs, ch)
	return ch
}

// Publish delivers event to the subscribers of its topic and to every
// SubscribeAll channel. Non-blocking: a full subscriber misses the event.
// A nil bus is a no-op so components can treat the bus as optional.
func (b *EventBus) Publish(event Event) {
	if b == nil || event == nil {
		return
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}
	for _, ch := range b.subs[event.Topic()] {
		trySend(ch, event)
	}
	for _, ch := range b.allSubs {
		trySend(ch, event)
	}
}

// Close closes the bus and every subscriber channel. Idempotent.
func (b *EventBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	for _, channels := range b.subs {
		for _, ch := range channels {
			close(ch)
		}
	}
	for _, ch := range b.allSubs {
		close(ch)
	}
}

func newChan(bufSize int) chan Event {
	if bufSize <= 0 {
		bufSize = defaultBufSize
	}
	return make(chan Event, bufSize)
}

func trySend(ch chan Event, event Event) {
	select {
	case ch <- event:
	default:
		// Subscriber is full, drop
	}
}
