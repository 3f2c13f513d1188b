package store

import (
	"context"
	"sync"
	"time"

	"github.com/nguyentrongduc2005/chat-high-load/internal/types"
)

// MemoryChatRepository keeps the whole store in process memory. It backs
// single-instance deployments and tests; the capping and pruning semantics
// match the Redis tier.
type MemoryChatRepository struct {
	mu        sync.RWMutex
	rooms     map[string]types.Room
	members   map[string]map[string]struct{} // roomId -> userIds
	userRooms map[string]map[string]struct{} // userId -> roomIds
	messages  map[string]types.Message
	index     map[string][]string // roomId -> message ids, newest first
	recent    map[string][]types.Message
	events    map[string][]types.RoomEvent
	sessions  map[string]types.Session
	indexCap  int
	recentCap int
}

func NewMemoryChatRepository(indexCap, recentCap int) *MemoryChatRepository {
	return &MemoryChatRepository{
		rooms:     make(map[string]types.Room),
		members:   make(map[string]map[string]struct{}),
		userRooms: make(map[string]map[string]struct{}),
		messages:  make(map[string]types.Message),
		index:     make(map[string][]string),
		recent:    make(map[string][]types.Message),
		events:    make(map[string][]types.RoomEvent),
		sessions:  make(map[string]types.Session),
		indexCap:  indexCap,
		recentCap: recentCap,
	}
}

func (m *MemoryChatRepository) Ping(_ context.Context) error { return nil }

func (m *MemoryChatRepository) CreateRoom(_ context.Context, room types.Room) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.rooms[room.Id] = room
	return nil
}

func (m *MemoryChatRepository) GetRoom(_ context.Context, roomId string) (types.Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	room, ok := m.rooms[roomId]
	if !ok {
		return types.Room{}, ErrRoomNotFound
	}
	room.MemberCount = len(m.members[roomId])

	return room, nil
}

func (m *MemoryChatRepository) ListRooms(_ context.Context) ([]types.Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rooms := make([]types.Room, 0, len(m.rooms))
	for id, room := range m.rooms {
		room.MemberCount = len(m.members[id])
		rooms = append(rooms, room)
	}

	return rooms, nil
}

func (m *MemoryChatRepository) ListRoomIds(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.rooms))
	for id := range m.rooms {
		ids = append(ids, id)
	}

	return ids, nil
}

func (m *MemoryChatRepository) AddMember(_ context.Context, userId, roomId string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.members[roomId] == nil {
		m.members[roomId] = make(map[string]struct{})
	}
	if _, ok := m.members[roomId][userId]; ok {
		return false, nil
	}

	m.members[roomId][userId] = struct{}{}
	if m.userRooms[userId] == nil {
		m.userRooms[userId] = make(map[string]struct{})
	}
	m.userRooms[userId][roomId] = struct{}{}

	return true, nil
}

func (m *MemoryChatRepository) RemoveMember(_ context.Context, userId, roomId string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.members[roomId][userId]; !ok {
		return false, nil
	}

	delete(m.members[roomId], userId)
	delete(m.userRooms[userId], roomId)

	return true, nil
}

func (m *MemoryChatRepository) IsMember(_ context.Context, userId, roomId string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.members[roomId][userId]
	return ok, nil
}

func (m *MemoryChatRepository) ListMembers(_ context.Context, roomId string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	members := make([]string, 0, len(m.members[roomId]))
	for userId := range m.members[roomId] {
		members = append(members, userId)
	}

	return members, nil
}

func (m *MemoryChatRepository) AppendMessage(_ context.Context, msg types.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.messages[msg.Id] = msg

	index := append([]string{msg.Id}, m.index[msg.RoomId]...)
	for _, evicted := range index[min(len(index), m.indexCap):] {
		delete(m.messages, evicted)
	}
	m.index[msg.RoomId] = index[:min(len(index), m.indexCap)]

	recent := append([]types.Message{msg}, m.recent[msg.RoomId]...)
	m.recent[msg.RoomId] = recent[:min(len(recent), m.recentCap)]

	return nil
}

func (m *MemoryChatRepository) GetMessages(_ context.Context, roomId string, limit, offset int) ([]types.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	index := m.index[roomId]
	if offset >= len(index) {
		return nil, nil
	}

	end := min(offset+limit, len(index))
	messages := make([]types.Message, 0, end-offset)
	for _, id := range index[offset:end] {
		if msg, ok := m.messages[id]; ok {
			messages = append(messages, msg)
		}
	}

	return messages, nil
}

func (m *MemoryChatRepository) RecentMessages(_ context.Context, roomId string) ([]types.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	recent := make([]types.Message, len(m.recent[roomId]))
	copy(recent, m.recent[roomId])

	return recent, nil
}

func (m *MemoryChatRepository) AppendEvent(_ context.Context, event types.RoomEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.events[event.RoomId] = append(m.events[event.RoomId], event)
	return nil
}

func (m *MemoryChatRepository) PruneEvents(_ context.Context, roomId string, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.events[roomId][:0]
	var removed int64
	for _, event := range m.events[roomId] {
		if event.Timestamp.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, event)
	}
	m.events[roomId] = kept

	return removed, nil
}

func (m *MemoryChatRepository) SaveSession(_ context.Context, sess types.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sessions[sess.ConnectionId] = sess
	return nil
}

func (m *MemoryChatRepository) DeleteSession(_ context.Context, connectionId string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.sessions, connectionId)
	return nil
}

func (m *MemoryChatRepository) Close() error { return nil }
