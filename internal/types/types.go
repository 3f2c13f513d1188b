package types

import (
	"time"
)

type Room struct {
	Id          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	// MemberCount is derived from the live membership set, never stored.
	MemberCount int `json:"member_count"`
}

const MessageKind = "message"

type Message struct {
	Id        string    `json:"id"`
	UserId    string    `json:"user_id"`
	RoomId    string    `json:"room_id"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Kind      string    `json:"kind"`
}

type EventType string

const (
	EventJoined EventType = "joined"
	EventLeft   EventType = "left"
)

type RoomEvent struct {
	Type      EventType `json:"type"`
	UserId    string    `json:"user_id"`
	RoomId    string    `json:"room_id"`
	Timestamp time.Time `json:"timestamp"`
}

type User struct {
	UserId   string `json:"user_id"`
	Username string `json:"username,omitempty"`
}

// Session is the ephemeral per-connection record. JoinedRooms tracks rooms
// joined on this connection only; durable membership outlives the session.
type Session struct {
	ConnectionId string    `json:"connection_id"`
	UserId       string    `json:"user_id"`
	Username     string    `json:"username"`
	ConnectedAt  time.Time `json:"connected_at"`
	JoinedRooms  []string  `json:"joined_rooms,omitempty"`
}
