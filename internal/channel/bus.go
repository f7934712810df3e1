package channel

import "sync"

// Bus is the in-process Transport. Every published envelope is handed to
// every subscriber on its own goroutine; a slow or stuck subscriber cannot
// stall the publisher or its peers.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]func(Envelope)
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{
		subs: make(map[int]func(Envelope)),
	}
}

// Publish broadcasts env to all current subscribers. Fire-and-forget.
func (b *Bus) Publish(env Envelope) {
	b.mu.RLock()
	handlers := make([]func(Envelope), 0, len(b.subs))
	for _, fn := range b.subs {
		handlers = append(handlers, fn)
	}
	b.mu.RUnlock()

	for _, fn := range handlers {
		go fn(env)
	}
}

// Subscribe registers fn for all future envelopes and returns a function
// that removes the subscription. Safe for concurrent use.
func (b *Bus) Subscribe(fn func(Envelope)) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = fn
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}
