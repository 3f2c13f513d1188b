package gateway

import (
	"encoding/json"
	"time"

	"github.com/nguyentrongduc2005/chat-high-load/internal/types"
)

// client -> server event names
const (
	EventAuthenticate   = "authenticate"
	EventJoinRoom       = "join-room"
	EventLeaveRoom      = "leave-room"
	EventSendMessage    = "send-message"
	EventTypingStart    = "typing-start"
	EventTypingStop     = "typing-stop"
	EventGetOnlineUsers = "get-online-users"
)

// server -> client event names
const (
	EventAuthenticated = "authenticated"
	EventAuthError     = "auth-error"
	EventRoomJoined    = "room-joined"
	EventRoomLeft      = "room-left"
	EventUserJoined    = "user-joined"
	EventUserLeft      = "user-left"
	EventNewMessage    = "new-message"
	EventUserTyping    = "user-typing"
	EventOnlineUsers   = "online-users"
	EventError         = "error"
)

type ClientEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type AuthenticateData struct {
	UserId   string `json:"userId"`
	Username string `json:"username"`
	// Token optionally proves the identity; when set it must verify and
	// its claims override the plain fields.
	Token string `json:"token,omitempty"`
}

type RoomData struct {
	RoomId string `json:"roomId"`
}

type SendMessageData struct {
	RoomId  string `json:"roomId"`
	Message string `json:"message"`
}

type ServerEvent struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

type AuthenticatedData struct {
	UserId   string `json:"userId"`
	Username string `json:"username"`
}

type PresenceData struct {
	UserId    string    `json:"userId"`
	Username  string    `json:"username"`
	Timestamp time.Time `json:"timestamp"`
}

type NewMessageData struct {
	MessageId string    `json:"messageId"`
	UserId    string    `json:"userId"`
	Username  string    `json:"username"`
	RoomId    string    `json:"roomId"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

type UserTypingData struct {
	UserId   string `json:"userId"`
	Username string `json:"username"`
	IsTyping bool   `json:"isTyping"`
}

type OnlineUsersData struct {
	RoomId string       `json:"roomId"`
	Users  []types.User `json:"users"`
}

type RoomChangeData struct {
	RoomId  string `json:"roomId"`
	Message string `json:"message"`
}

type ErrorData struct {
	Message string `json:"message"`
}

func evAuthenticated(userId, username string) *ServerEvent {
	return &ServerEvent{
		Event: EventAuthenticated,
		Data:  AuthenticatedData{UserId: userId, Username: username},
	}
}

func evAuthError(message string) *ServerEvent {
	return &ServerEvent{Event: EventAuthError, Data: ErrorData{Message: message}}
}

func evError(message string) *ServerEvent {
	return &ServerEvent{Event: EventError, Data: ErrorData{Message: message}}
}

func evRoomJoined(roomId string) *ServerEvent {
	return &ServerEvent{
		Event: EventRoomJoined,
		Data:  RoomChangeData{RoomId: roomId, Message: "joined room " + roomId},
	}
}

func evRoomLeft(roomId string) *ServerEvent {
	return &ServerEvent{
		Event: EventRoomLeft,
		Data:  RoomChangeData{RoomId: roomId, Message: "left room " + roomId},
	}
}

func evOnlineUsers(roomId string, users []types.User) *ServerEvent {
	return &ServerEvent{
		Event: EventOnlineUsers,
		Data:  OnlineUsersData{RoomId: roomId, Users: users},
	}
}
