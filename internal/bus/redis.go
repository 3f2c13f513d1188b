package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"
)

// channel names are distinct from the event-log keys of the same room
func roomChannel(roomId string) string { return "chat:room:" + roomId }

// RedisBus fans events out across gateway processes over Redis pub/sub. Each
// process holds one PubSub connection and one receive goroutine; rooms are
// added and removed from it as local connections subscribe.
type RedisBus struct {
	client  *redis.Client
	pubsub  *redis.PubSub
	handler Handler
	log     *log.Logger
	done    chan struct{}
}

func NewRedisBus(client *redis.Client, handler Handler, logger *log.Logger) *RedisBus {
	b := &RedisBus{
		client:  client,
		pubsub:  client.Subscribe(context.Background()),
		handler: handler,
		log:     logger,
		done:    make(chan struct{}),
	}

	go b.receive()
	return b
}

func (b *RedisBus) receive() {
	defer close(b.done)

	for msg := range b.pubsub.Channel() {
		var event Event
		if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
			b.log.Printf("bus: bad payload on %q: %v", msg.Channel, err)
			continue
		}

		b.handler(event)
	}
}

func (b *RedisBus) Publish(ctx context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	if err := b.client.Publish(ctx, roomChannel(event.RoomId), data).Err(); err != nil {
		return fmt.Errorf("publish: %w", err)
	}

	return nil
}

func (b *RedisBus) Subscribe(ctx context.Context, roomId string) error {
	if err := b.pubsub.Subscribe(ctx, roomChannel(roomId)); err != nil {
		return fmt.Errorf("subscribe %q: %w", roomId, err)
	}

	return nil
}

func (b *RedisBus) Unsubscribe(ctx context.Context, roomId string) error {
	if err := b.pubsub.Unsubscribe(ctx, roomChannel(roomId)); err != nil {
		return fmt.Errorf("unsubscribe %q: %w", roomId, err)
	}

	return nil
}

func (b *RedisBus) Close() error {
	err := b.pubsub.Close()
	<-b.done
	return err
}
