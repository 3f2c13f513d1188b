package bus

import (
	"context"
	"sync"
)

// LocalBus delivers events in process. It is the single-instance counterpart
// of RedisBus and keeps the same contract: only rooms with a live
// subscription at publish time see the event.
type LocalBus struct {
	mu      sync.RWMutex
	rooms   map[string]struct{}
	handler Handler
}

func NewLocalBus(handler Handler) *LocalBus {
	return &LocalBus{
		rooms:   make(map[string]struct{}),
		handler: handler,
	}
}

func (b *LocalBus) Publish(_ context.Context, event Event) error {
	b.mu.RLock()
	_, subscribed := b.rooms[event.RoomId]
	b.mu.RUnlock()

	if subscribed {
		b.handler(event)
	}

	return nil
}

func (b *LocalBus) Subscribe(_ context.Context, roomId string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.rooms[roomId] = struct{}{}
	return nil
}

func (b *LocalBus) Unsubscribe(_ context.Context, roomId string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.rooms, roomId)
	return nil
}

func (b *LocalBus) Close() error { return nil }
