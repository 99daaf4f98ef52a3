package events

import (
	"context"
	"sync"
)

// ProcessBus is an in-process bus: subscribers are invoked synchronously in
// registration order. It backs tests and single-node development where no
// broker is running.
type ProcessBus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]Handler
}

// NewProcessBus creates an empty in-process bus.
func NewProcessBus() *ProcessBus {
	return &ProcessBus{subs: make(map[int]Handler)}
}

// Publish delivers the event to every current subscriber.
func (b *ProcessBus) Publish(ctx context.Context, ev Event) error {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.subs))
	for _, h := range b.subs {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(ctx, ev)
	}
	return nil
}

// Subscribe registers a handler and returns its cancel function.
func (b *ProcessBus) Subscribe(_ context.Context, h Handler) (func(), error) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = h
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}, nil
}

var _ Bus = (*ProcessBus)(nil)
