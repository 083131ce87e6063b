package event

import (
	"sync"
	"sync/atomic"
)

// subscriberBufferSize bounds each subscriber's queue. A subscriber that
// falls further behind than this loses messages rather than blocking the
// publisher.
const subscriberBufferSize = 128

// Bus is a process-wide broadcast channel for control messages. Every
// live subscriber receives every message published after it subscribed,
// in publish order. Publishing never blocks: a full subscriber queue
// drops the message for that subscriber only.
type Bus struct {
	mu        sync.Mutex
	subs      map[uint64]chan Message
	nextSubID uint64
	closed    bool
	shutdown  atomic.Bool
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{
		subs: make(map[uint64]chan Message),
	}
}

// Subscribe registers a new subscriber and returns its receive channel
// together with a cancel function. The channel only sees messages
// published after Subscribe returns. Cancel closes the channel.
func (b *Bus) Subscribe() (<-chan Message, func()) {
	ch := make(chan Message, subscriberBufferSize)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	b.nextSubID++
	id := b.nextSubID
	b.subs[id] = ch
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

// Publish delivers msg to every current subscriber without blocking.
// Publishing ShutDown sets the shutdown flag before any delivery.
func (b *Bus) Publish(msg Message) {
	if _, ok := msg.(ShutDown); ok {
		b.shutdown.Store(true)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for _, ch := range b.subs {
		select {
		case ch <- msg:
		default:
			// Subscriber queue full: drop for this subscriber only.
		}
	}
}

// ShuttingDown reports whether a ShutDown message has been published.
// The flag is write-once; it is never reset.
func (b *Bus) ShuttingDown() bool {
	return b.shutdown.Load()
}

// Close tears down the bus and closes all subscriber channels. Publish
// becomes a no-op afterwards.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}

// SubscriberCount returns the number of live subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
