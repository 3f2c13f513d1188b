package gateway

import (
	"sync"
	"time"

	"github.com/nguyentrongduc2005/chat-high-load/internal/types"
)

// session is the ephemeral per-connection state. Presence and durable
// membership are independent relations: dropping a session never removes the
// user from a room's member set.
type session struct {
	connectionId string
	userId       string
	username     string
	connectedAt  time.Time
	joinedRooms  map[string]struct{}
}

type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*session
}

func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{
		sessions: make(map[string]*session),
	}
}

// Authenticate binds an identity to the connection. Re-authenticating an
// already bound connection overwrites the binding but keeps its joined rooms.
func (sr *SessionRegistry) Authenticate(connectionId, userId, username string) types.Session {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	sess, ok := sr.sessions[connectionId]
	if !ok {
		sess = &session{
			connectionId: connectionId,
			connectedAt:  time.Now(),
			joinedRooms:  make(map[string]struct{}),
		}
		sr.sessions[connectionId] = sess
	}
	sess.userId = userId
	sess.username = username

	return snapshot(sess)
}

// Get returns a copy of the session, if the connection is authenticated.
func (sr *SessionRegistry) Get(connectionId string) (types.Session, bool) {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	sess, ok := sr.sessions[connectionId]
	if !ok {
		return types.Session{}, false
	}

	return snapshot(sess), true
}

func (sr *SessionRegistry) BindJoin(connectionId, roomId string) {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	if sess, ok := sr.sessions[connectionId]; ok {
		sess.joinedRooms[roomId] = struct{}{}
	}
}

func (sr *SessionRegistry) BindLeave(connectionId, roomId string) {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	if sess, ok := sr.sessions[connectionId]; ok {
		delete(sess.joinedRooms, roomId)
	}
}

// Remove drops the session and returns its final snapshot so the caller can
// run disconnect cleanup over the joined rooms.
func (sr *SessionRegistry) Remove(connectionId string) (types.Session, bool) {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	sess, ok := sr.sessions[connectionId]
	if !ok {
		return types.Session{}, false
	}
	delete(sr.sessions, connectionId)

	return snapshot(sess), true
}

func (sr *SessionRegistry) Len() int {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	return len(sr.sessions)
}

func snapshot(sess *session) types.Session {
	rooms := make([]string, 0, len(sess.joinedRooms))
	for roomId := range sess.joinedRooms {
		rooms = append(rooms, roomId)
	}

	return types.Session{
		ConnectionId: sess.connectionId,
		UserId:       sess.userId,
		Username:     sess.username,
		ConnectedAt:  sess.connectedAt,
		JoinedRooms:  rooms,
	}
}
