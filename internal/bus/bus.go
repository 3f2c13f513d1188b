// Package bus is the cross-instance fanout layer. Accepted messages and
// presence changes are published once and delivered to every gateway process
// with a live subscription for the room; delivery to connections is
// best-effort with no replay for late subscribers.
package bus

import (
	"context"
	"time"

	"github.com/nguyentrongduc2005/chat-high-load/internal/types"
)

type EventType string

const (
	TypeMessage EventType = "message"
	TypeJoined  EventType = "joined"
	TypeLeft    EventType = "left"
	TypeTyping  EventType = "typing"
)

// Event is the closed set of payloads carried by the bus. Message is set
// only for TypeMessage; IsTyping only for TypeTyping.
type Event struct {
	Type      EventType      `json:"type"`
	RoomId    string         `json:"room_id"`
	UserId    string         `json:"user_id,omitempty"`
	Username  string         `json:"username,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Message   *types.Message `json:"message,omitempty"`
	IsTyping  bool           `json:"is_typing,omitempty"`
	// Origin identifies the publishing connection so presence and typing
	// events are not echoed back to it. Messages go to the full room.
	Origin string `json:"origin,omitempty"`
}

// Handler receives events for subscribed rooms. It runs on the bus receive
// goroutine and must not block.
type Handler func(event Event)

type Bus interface {
	Publish(ctx context.Context, event Event) error
	Subscribe(ctx context.Context, roomId string) error
	Unsubscribe(ctx context.Context, roomId string) error
	Close() error
}
