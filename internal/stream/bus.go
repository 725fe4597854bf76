package stream

import (
	"log/slog"
	"sync"

	"github.com/asheshgoplani/termlens/internal/logging"
)

var busLog = logging.ForComponent(logging.CompStream)

// Handler receives events published on a subscribed channel. Handlers run
// synchronously on the publishing goroutine and must not block.
type Handler func(Event)

// Bus is a typed publish/subscribe fanout with named channels per
// concern. Publishing is fire-and-forget: no subscriber is required, no
// back-pressure exists, and a panicking handler is isolated so it cannot
// take down the ingestion path or other subscribers.
type Bus struct {
	mu     sync.RWMutex
	subs   map[Channel]map[int]Handler
	nextID int
	closed bool
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[Channel]map[int]Handler)}
}

// Subscribe attaches a handler to a channel and returns a cancel func
// that detaches it. Subscribing on a closed bus returns a no-op cancel.
func (b *Bus) Subscribe(ch Channel, h Handler) (cancel func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed || h == nil {
		return func() {}
	}

	handlers, ok := b.subs[ch]
	if !ok {
		handlers = make(map[int]Handler)
		b.subs[ch] = handlers
	}
	id := b.nextID
	b.nextID++
	handlers[id] = h

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if hs, ok := b.subs[ch]; ok {
			delete(hs, id)
		}
	}
}

// Publish delivers an event to every handler on the channel.
func (b *Bus) Publish(ch Channel, ev Event) {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.subs[ch]))
	for _, h := range b.subs[ch] {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		b.dispatch(ch, h, ev)
	}
}

func (b *Bus) dispatch(ch Channel, h Handler, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			busLog.Warn("subscriber_panic",
				slog.String("channel", string(ch)),
				slog.Any("panic", r))
		}
	}()
	h(ev)
}

// SubscriberCount returns the number of handlers attached to a channel.
func (b *Bus) SubscriberCount(ch Channel) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[ch])
}

// Close detaches every subscriber and rejects future subscriptions.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = make(map[Channel]map[int]Handler)
	b.closed = true
}
