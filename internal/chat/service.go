// Package chat is the control-plane request service: the only entry point
// that mutates durable room, membership and message state.
package chat

import (
	"context"
	"errors"
	"log"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/nguyentrongduc2005/chat-high-load/internal/bus"
	"github.com/nguyentrongduc2005/chat-high-load/internal/store"
	"github.com/nguyentrongduc2005/chat-high-load/internal/types"
)

const defaultMessageLimit = 50

type Service struct {
	log              *log.Logger
	repo             store.ChatRepository
	bus              bus.Bus
	maxMessageLength int
}

func NewService(logger *log.Logger, repo store.ChatRepository, b bus.Bus, maxMessageLength int) *Service {
	return &Service{
		log:              logger,
		repo:             repo,
		bus:              b,
		maxMessageLength: maxMessageLength,
	}
}

// SetBus wires the fanout bus after construction. The bus handler and the
// service are built in either order depending on the deployment mode.
func (s *Service) SetBus(b bus.Bus) {
	s.bus = b
}

type PingResponse struct {
	Ok        bool      `json:"ok"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

func (s *Service) Ping(ctx context.Context) PingResponse {
	if err := s.repo.Ping(ctx); err != nil {
		s.log.Println("ping:", err)
		return PingResponse{Message: "store unreachable", Timestamp: now()}
	}

	return PingResponse{Ok: true, Message: "chat service is running", Timestamp: now()}
}

func (s *Service) CreateRoom(ctx context.Context, name, description string) (types.Room, error) {
	if name == "" {
		return types.Room{}, NewInvalidArgument("room name is required")
	}

	room := types.Room{
		Id:          uuid.NewString(),
		Name:        name,
		Description: description,
		CreatedAt:   now(),
	}

	if err := s.repo.CreateRoom(ctx, room); err != nil {
		return types.Room{}, NewInternal("create room", err)
	}

	s.log.Printf("room created: %s (%s)", room.Name, room.Id)
	return room, nil
}

func (s *Service) ListRooms(ctx context.Context) ([]types.Room, error) {
	rooms, err := s.repo.ListRooms(ctx)
	if err != nil {
		return nil, NewInternal("list rooms", err)
	}

	return rooms, nil
}

func (s *Service) JoinRoom(ctx context.Context, userId, roomId string) error {
	if userId == "" || roomId == "" {
		return NewInvalidArgument("user id and room id are required")
	}

	if _, err := s.repo.GetRoom(ctx, roomId); err != nil {
		if errors.Is(err, store.ErrRoomNotFound) {
			return NewNotFound("room not found")
		}
		return NewInternal("get room", err)
	}

	added, err := s.repo.AddMember(ctx, userId, roomId)
	if err != nil {
		return NewInternal("add member", err)
	}
	if !added {
		// already a member, no-op success
		return nil
	}

	if err := s.repo.AppendEvent(ctx, types.RoomEvent{
		Type:      types.EventJoined,
		UserId:    userId,
		RoomId:    roomId,
		Timestamp: now(),
	}); err != nil {
		s.log.Println("append joined event:", err)
	}

	s.log.Printf("user %s joined room %s", userId, roomId)
	return nil
}

func (s *Service) LeaveRoom(ctx context.Context, userId, roomId string) error {
	if userId == "" || roomId == "" {
		return NewInvalidArgument("user id and room id are required")
	}

	removed, err := s.repo.RemoveMember(ctx, userId, roomId)
	if err != nil {
		return NewInternal("remove member", err)
	}
	if !removed {
		return nil
	}

	if err := s.repo.AppendEvent(ctx, types.RoomEvent{
		Type:      types.EventLeft,
		UserId:    userId,
		RoomId:    roomId,
		Timestamp: now(),
	}); err != nil {
		s.log.Println("append left event:", err)
	}

	s.log.Printf("user %s left room %s", userId, roomId)
	return nil
}

func (s *Service) SendMessage(ctx context.Context, userId, roomId, content string, timestamp time.Time) (types.Message, error) {
	return s.SendMessageFrom(ctx, types.User{UserId: userId}, roomId, content, timestamp)
}

// SendMessageFrom additionally carries the sender's username so the fanout
// event can include it; the durable record is identical to SendMessage.
func (s *Service) SendMessageFrom(ctx context.Context, from types.User, roomId, content string, timestamp time.Time) (types.Message, error) {
	userId := from.UserId
	if userId == "" || roomId == "" || content == "" {
		return types.Message{}, NewInvalidArgument("user id, room id and content are required")
	}
	if len(content) > s.maxMessageLength {
		return types.Message{}, NewInvalidArgument("message too long")
	}

	// membership is re-verified on every send, never cached from join time
	isMember, err := s.repo.IsMember(ctx, userId, roomId)
	if err != nil {
		return types.Message{}, NewInternal("membership check", err)
	}
	if !isMember {
		return types.Message{}, NewPermissionDenied("user is not a member of this room")
	}

	if timestamp.IsZero() {
		timestamp = now()
	}

	msg := types.Message{
		Id:        uuid.NewString(),
		UserId:    userId,
		RoomId:    roomId,
		Content:   content,
		Timestamp: timestamp,
		Kind:      types.MessageKind,
	}

	if err := s.repo.AppendMessage(ctx, msg); err != nil {
		return types.Message{}, NewInternal("append message", err)
	}

	// the message is durable at this point; a fanout failure is logged,
	// history stays available through GetMessages
	if err := s.bus.Publish(ctx, bus.Event{
		Type:      bus.TypeMessage,
		RoomId:    roomId,
		UserId:    userId,
		Username:  from.Username,
		Timestamp: msg.Timestamp,
		Message:   &msg,
	}); err != nil {
		s.log.Println("publish message:", err)
	}

	return msg, nil
}

func (s *Service) GetMessages(ctx context.Context, roomId string, limit, offset int) ([]types.Message, error) {
	if roomId == "" {
		return nil, NewInvalidArgument("room id is required")
	}
	if limit <= 0 {
		limit = defaultMessageLimit
	}
	if offset < 0 {
		offset = 0
	}

	messages, err := s.repo.GetMessages(ctx, roomId, limit, offset)
	if err != nil {
		return nil, NewInternal("get messages", err)
	}

	sortByTimestampDesc(messages)
	return messages, nil
}

// RecentMessages serves low-latency recent history from the cache tier.
func (s *Service) RecentMessages(ctx context.Context, roomId string) ([]types.Message, error) {
	if roomId == "" {
		return nil, NewInvalidArgument("room id is required")
	}

	messages, err := s.repo.RecentMessages(ctx, roomId)
	if err != nil {
		return nil, NewInternal("recent messages", err)
	}

	sortByTimestampDesc(messages)
	return messages, nil
}

func (s *Service) ListUsersInRoom(ctx context.Context, roomId string) ([]string, error) {
	if roomId == "" {
		return nil, NewInvalidArgument("room id is required")
	}

	users, err := s.repo.ListMembers(ctx, roomId)
	if err != nil {
		return nil, NewInternal("list members", err)
	}

	return users, nil
}

// IsMember is the authorization check used by the real-time layer.
func (s *Service) IsMember(ctx context.Context, userId, roomId string) (bool, error) {
	isMember, err := s.repo.IsMember(ctx, userId, roomId)
	if err != nil {
		return false, NewInternal("membership check", err)
	}

	return isMember, nil
}

// sortByTimestampDesc orders newest first. Concurrent senders can interleave
// index insertion order differently from timestamp order, so insertion order
// is never trusted at read time.
func sortByTimestampDesc(messages []types.Message) {
	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].Timestamp.After(messages[j].Timestamp)
	})
}

func now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}
