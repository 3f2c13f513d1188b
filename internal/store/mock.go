package store

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/nguyentrongduc2005/chat-high-load/internal/types"
)

type MockChatRepository struct {
	mock.Mock
}

func (m *MockChatRepository) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockChatRepository) CreateRoom(ctx context.Context, room types.Room) error {
	args := m.Called(ctx, room)
	return args.Error(0)
}

func (m *MockChatRepository) GetRoom(ctx context.Context, roomId string) (types.Room, error) {
	args := m.Called(ctx, roomId)
	return args.Get(0).(types.Room), args.Error(1)
}

func (m *MockChatRepository) ListRooms(ctx context.Context) ([]types.Room, error) {
	args := m.Called(ctx)
	return args.Get(0).([]types.Room), args.Error(1)
}

func (m *MockChatRepository) ListRoomIds(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockChatRepository) AddMember(ctx context.Context, userId, roomId string) (bool, error) {
	args := m.Called(ctx, userId, roomId)
	return args.Bool(0), args.Error(1)
}

func (m *MockChatRepository) RemoveMember(ctx context.Context, userId, roomId string) (bool, error) {
	args := m.Called(ctx, userId, roomId)
	return args.Bool(0), args.Error(1)
}

func (m *MockChatRepository) IsMember(ctx context.Context, userId, roomId string) (bool, error) {
	args := m.Called(ctx, userId, roomId)
	return args.Bool(0), args.Error(1)
}

func (m *MockChatRepository) ListMembers(ctx context.Context, roomId string) ([]string, error) {
	args := m.Called(ctx, roomId)
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockChatRepository) AppendMessage(ctx context.Context, msg types.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

func (m *MockChatRepository) GetMessages(ctx context.Context, roomId string, limit, offset int) ([]types.Message, error) {
	args := m.Called(ctx, roomId, limit, offset)
	return args.Get(0).([]types.Message), args.Error(1)
}

func (m *MockChatRepository) RecentMessages(ctx context.Context, roomId string) ([]types.Message, error) {
	args := m.Called(ctx, roomId)
	return args.Get(0).([]types.Message), args.Error(1)
}

func (m *MockChatRepository) AppendEvent(ctx context.Context, event types.RoomEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockChatRepository) PruneEvents(ctx context.Context, roomId string, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, roomId, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockChatRepository) SaveSession(ctx context.Context, sess types.Session) error {
	args := m.Called(ctx, sess)
	return args.Error(0)
}

func (m *MockChatRepository) DeleteSession(ctx context.Context, connectionId string) error {
	args := m.Called(ctx, connectionId)
	return args.Error(0)
}

func (m *MockChatRepository) Close() error {
	args := m.Called()
	return args.Error(0)
}
