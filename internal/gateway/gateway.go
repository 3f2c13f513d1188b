// Package gateway holds the real-time layer of one process: websocket
// connections, their ephemeral sessions, and the local end of the fanout bus.
package gateway

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/nguyentrongduc2005/chat-high-load/internal/bus"
	"github.com/nguyentrongduc2005/chat-high-load/internal/chat"
	"github.com/nguyentrongduc2005/chat-high-load/internal/ratelimit"
	"github.com/nguyentrongduc2005/chat-high-load/internal/stats"
	"github.com/nguyentrongduc2005/chat-high-load/internal/store"
	"github.com/nguyentrongduc2005/chat-high-load/internal/types"
)

const eventTimeout = 10 * time.Second

type Gateway struct {
	log        *log.Logger
	svc        *chat.Service
	bus        bus.Bus
	limiter    ratelimit.Limiter
	repo       store.ChatRepository
	sessions   *SessionRegistry
	stats      stats.Provider
	signingKey []byte

	mu      sync.RWMutex
	clients map[*Client]struct{}
	// rooms tracks which local connections receive fanout for each room
	rooms map[string]map[*Client]struct{}
}

func NewGateway(logger *log.Logger, svc *chat.Service, limiter ratelimit.Limiter,
	repo store.ChatRepository, st stats.Provider, signingKey []byte) *Gateway {
	return &Gateway{
		log:        logger,
		svc:        svc,
		limiter:    limiter,
		repo:       repo,
		sessions:   NewSessionRegistry(),
		stats:      st,
		signingKey: signingKey,
		clients:    make(map[*Client]struct{}),
		rooms:      make(map[string]map[*Client]struct{}),
	}
}

// SetBus wires the fanout bus. The bus is constructed with g.HandleBusEvent
// as its handler, so the two reference each other.
func (g *Gateway) SetBus(b bus.Bus) {
	g.bus = b
}

func (g *Gateway) RegisterClient(c *Client) {
	g.mu.Lock()
	g.clients[c] = struct{}{}
	g.mu.Unlock()

	g.stats.Incr(stats.ActiveConnections)
	g.stats.Incr(stats.TotalConnections)
	g.log.Printf("connection %s registered", c.id)
}

// HandleBusEvent delivers a fanout event to the local subscribers of its
// room. It runs on the bus receive goroutine; per-client queues are buffered
// and dropped when full so one slow consumer never blocks the rest.
func (g *Gateway) HandleBusEvent(ev bus.Event) {
	se := serverEventFor(ev)
	if se == nil {
		g.log.Printf("bus: unknown event type %q", ev.Type)
		return
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	for c := range g.rooms[ev.RoomId] {
		// presence and typing are not echoed to the originating
		// connection; messages are full-room broadcasts
		if ev.Type != bus.TypeMessage && c.id == ev.Origin {
			continue
		}

		if c.queueEvent(se) && ev.Type == bus.TypeMessage {
			g.stats.Incr(stats.MessagesDelivered)
		}
	}
}

func serverEventFor(ev bus.Event) *ServerEvent {
	switch ev.Type {
	case bus.TypeMessage:
		if ev.Message == nil {
			return nil
		}
		return &ServerEvent{Event: EventNewMessage, Data: NewMessageData{
			MessageId: ev.Message.Id,
			UserId:    ev.Message.UserId,
			Username:  ev.Username,
			RoomId:    ev.Message.RoomId,
			Content:   ev.Message.Content,
			Timestamp: ev.Message.Timestamp,
		}}
	case bus.TypeJoined:
		return &ServerEvent{Event: EventUserJoined, Data: PresenceData{
			UserId:    ev.UserId,
			Username:  ev.Username,
			Timestamp: ev.Timestamp,
		}}
	case bus.TypeLeft:
		return &ServerEvent{Event: EventUserLeft, Data: PresenceData{
			UserId:    ev.UserId,
			Username:  ev.Username,
			Timestamp: ev.Timestamp,
		}}
	case bus.TypeTyping:
		return &ServerEvent{Event: EventUserTyping, Data: UserTypingData{
			UserId:   ev.UserId,
			Username: ev.Username,
			IsTyping: ev.IsTyping,
		}}
	default:
		return nil
	}
}

// dispatch runs a single client event to completion on the connection's read
// goroutine. A failure here is isolated: it is reported to this client and
// never affects other connections.
func (g *Gateway) dispatch(c *Client, ev *ClientEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()

	switch ev.Event {
	case EventAuthenticate:
		g.handleAuthenticate(ctx, c, ev.Data)
	case EventJoinRoom:
		g.handleJoinRoom(ctx, c, ev.Data)
	case EventLeaveRoom:
		g.handleLeaveRoom(ctx, c, ev.Data)
	case EventSendMessage:
		g.handleSendMessage(ctx, c, ev.Data)
	case EventTypingStart:
		g.handleTyping(ctx, c, ev.Data, true)
	case EventTypingStop:
		g.handleTyping(ctx, c, ev.Data, false)
	case EventGetOnlineUsers:
		g.handleGetOnlineUsers(c, ev.Data)
	default:
		c.queueEvent(evError("unknown event"))
	}
}

func (g *Gateway) handleAuthenticate(ctx context.Context, c *Client, data json.RawMessage) {
	var auth AuthenticateData
	if err := json.Unmarshal(data, &auth); err != nil {
		g.stats.Incr(stats.AuthFailures)
		c.queueEvent(evAuthError("invalid authenticate payload"))
		return
	}

	user := types.User{UserId: auth.UserId, Username: auth.Username}
	if auth.Token != "" {
		verified, err := verifyIdentityToken(g.signingKey, auth.Token)
		if err != nil {
			g.log.Printf("connection %s: token rejected: %v", c.id, err)
			g.stats.Incr(stats.AuthFailures)
			c.queueEvent(evAuthError("invalid token"))
			return
		}
		user = verified
	}

	if user.UserId == "" || user.Username == "" {
		g.stats.Incr(stats.AuthFailures)
		c.queueEvent(evAuthError("missing userId or username"))
		return
	}

	sess := g.sessions.Authenticate(c.id, user.UserId, user.Username)
	if err := g.repo.SaveSession(ctx, sess); err != nil {
		// the fleet-wide mirror is best effort
		g.log.Printf("save session %s: %v", c.id, err)
	}

	c.queueEvent(evAuthenticated(user.UserId, user.Username))
	g.log.Printf("user authenticated: %s (%s)", user.Username, user.UserId)
}

func (g *Gateway) handleJoinRoom(ctx context.Context, c *Client, data json.RawMessage) {
	sess, ok := g.sessions.Get(c.id)
	if !ok {
		c.queueEvent(evError("not authenticated"))
		return
	}

	var room RoomData
	if err := json.Unmarshal(data, &room); err != nil || room.RoomId == "" {
		c.queueEvent(evError("room id required"))
		return
	}

	if err := g.svc.JoinRoom(ctx, sess.UserId, room.RoomId); err != nil {
		c.queueEvent(evError(chat.KindOf(err).String() + ": failed to join room"))
		return
	}

	if err := g.subscribeRoom(ctx, c, room.RoomId); err != nil {
		g.log.Printf("subscribe room %s: %v", room.RoomId, err)
		c.queueEvent(evError("failed to join room"))
		return
	}
	g.sessions.BindJoin(c.id, room.RoomId)

	g.publishPresence(ctx, c, bus.TypeJoined, room.RoomId, sess)
	c.queueEvent(evRoomJoined(room.RoomId))
	g.log.Printf("user %s joined room %s", sess.Username, room.RoomId)
}

func (g *Gateway) handleLeaveRoom(ctx context.Context, c *Client, data json.RawMessage) {
	sess, ok := g.sessions.Get(c.id)
	if !ok {
		c.queueEvent(evError("not authenticated"))
		return
	}

	var room RoomData
	if err := json.Unmarshal(data, &room); err != nil || room.RoomId == "" {
		c.queueEvent(evError("room id required"))
		return
	}

	if err := g.svc.LeaveRoom(ctx, sess.UserId, room.RoomId); err != nil {
		c.queueEvent(evError(chat.KindOf(err).String() + ": failed to leave room"))
		return
	}

	g.publishPresence(ctx, c, bus.TypeLeft, room.RoomId, sess)
	g.unsubscribeRoom(ctx, c, room.RoomId)
	g.sessions.BindLeave(c.id, room.RoomId)

	c.queueEvent(evRoomLeft(room.RoomId))
	g.log.Printf("user %s left room %s", sess.Username, room.RoomId)
}

func (g *Gateway) handleSendMessage(ctx context.Context, c *Client, data json.RawMessage) {
	sess, ok := g.sessions.Get(c.id)
	if !ok {
		c.queueEvent(evError("not authenticated"))
		return
	}

	var send SendMessageData
	if err := json.Unmarshal(data, &send); err != nil || send.RoomId == "" || send.Message == "" {
		c.queueEvent(evError("room id and message required"))
		return
	}

	allowed, err := g.limiter.Allow(ctx, sess.UserId)
	if err != nil {
		// fail open: the limiter backend being down should not take
		// messaging down with it
		g.log.Printf("rate limiter: %v", err)
		allowed = true
	}
	if !allowed {
		g.stats.Incr(stats.RateLimitedSends)
		c.queueEvent(evError("rate limit exceeded"))
		return
	}

	from := types.User{UserId: sess.UserId, Username: sess.Username}
	if _, err := g.svc.SendMessageFrom(ctx, from, send.RoomId, send.Message, time.Time{}); err != nil {
		var msg string
		switch chat.KindOf(err) {
		case chat.KindInvalidArgument:
			msg = "invalid message"
		case chat.KindPermissionDenied:
			msg = "not a member of this room"
		default:
			msg = "failed to send message"
			g.log.Printf("send message: %v", err)
		}
		c.queueEvent(evError(msg))
		return
	}

	g.stats.Incr(stats.MessagesSent)
}

func (g *Gateway) handleTyping(ctx context.Context, c *Client, data json.RawMessage, isTyping bool) {
	sess, ok := g.sessions.Get(c.id)
	if !ok {
		// typing pulses from unauthenticated connections are dropped
		return
	}

	var room RoomData
	if err := json.Unmarshal(data, &room); err != nil || room.RoomId == "" {
		return
	}

	// only members may signal typing
	isMember, err := g.svc.IsMember(ctx, sess.UserId, room.RoomId)
	if err != nil || !isMember {
		return
	}

	// fire and forget, no delivery guarantee
	if err := g.bus.Publish(ctx, bus.Event{
		Type:      bus.TypeTyping,
		RoomId:    room.RoomId,
		UserId:    sess.UserId,
		Username:  sess.Username,
		Timestamp: time.Now(),
		IsTyping:  isTyping,
		Origin:    c.id,
	}); err != nil {
		g.log.Printf("publish typing: %v", err)
	}
}

func (g *Gateway) handleGetOnlineUsers(c *Client, data json.RawMessage) {
	var room RoomData
	if err := json.Unmarshal(data, &room); err != nil || room.RoomId == "" {
		c.queueEvent(evError("room id required"))
		return
	}

	c.queueEvent(evOnlineUsers(room.RoomId, g.onlineUsers(room.RoomId)))
}

// onlineUsers lists the authenticated users behind this instance's local
// subscriptions for the room. Fleet-wide presence would need the shared
// session directory instead.
func (g *Gateway) onlineUsers(roomId string) []types.User {
	g.mu.RLock()
	defer g.mu.RUnlock()

	seen := make(map[string]struct{})
	users := make([]types.User, 0, len(g.rooms[roomId]))
	for c := range g.rooms[roomId] {
		sess, ok := g.sessions.Get(c.id)
		if !ok {
			continue
		}
		if _, dup := seen[sess.UserId]; dup {
			continue
		}
		seen[sess.UserId] = struct{}{}
		users = append(users, types.User{UserId: sess.UserId, Username: sess.Username})
	}

	return users
}

// disconnect tears down a connection: every joined room is unsubscribed and
// notified, then the session is released. Individual step failures are
// logged and cleanup continues.
func (g *Gateway) disconnect(c *Client) {
	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()

	sess, ok := g.sessions.Remove(c.id)
	if ok {
		for _, roomId := range sess.JoinedRooms {
			g.publishPresence(ctx, c, bus.TypeLeft, roomId, sess)
			g.unsubscribeRoom(ctx, c, roomId)
		}

		if err := g.repo.DeleteSession(ctx, c.id); err != nil {
			g.log.Printf("delete session %s: %v", c.id, err)
		}
	}

	g.mu.Lock()
	delete(g.clients, c)
	g.mu.Unlock()

	g.stats.Decr(stats.ActiveConnections)
	g.log.Printf("connection %s disconnected", c.id)
}

func (g *Gateway) publishPresence(ctx context.Context, c *Client, t bus.EventType, roomId string, sess types.Session) {
	if err := g.bus.Publish(ctx, bus.Event{
		Type:      t,
		RoomId:    roomId,
		UserId:    sess.UserId,
		Username:  sess.Username,
		Timestamp: time.Now(),
		Origin:    c.id,
	}); err != nil {
		g.log.Printf("publish presence %s for room %s: %v", t, roomId, err)
	}
}

// subscribeRoom adds the connection to the room's local distribution set and
// opens the shared-bus subscription when it is the first one.
func (g *Gateway) subscribeRoom(ctx context.Context, c *Client, roomId string) error {
	g.mu.Lock()
	first := g.rooms[roomId] == nil
	if first {
		g.rooms[roomId] = make(map[*Client]struct{})
	}
	g.rooms[roomId][c] = struct{}{}
	g.mu.Unlock()

	if first {
		if err := g.bus.Subscribe(ctx, roomId); err != nil {
			g.mu.Lock()
			delete(g.rooms[roomId], c)
			if len(g.rooms[roomId]) == 0 {
				delete(g.rooms, roomId)
			}
			g.mu.Unlock()
			return err
		}
	}

	return nil
}

func (g *Gateway) unsubscribeRoom(ctx context.Context, c *Client, roomId string) {
	g.mu.Lock()
	delete(g.rooms[roomId], c)
	last := len(g.rooms[roomId]) == 0
	if last {
		delete(g.rooms, roomId)
	}
	g.mu.Unlock()

	if last {
		if err := g.bus.Unsubscribe(ctx, roomId); err != nil {
			g.log.Printf("unsubscribe room %s: %v", roomId, err)
		}
	}
}

// Shutdown closes every client connection.
func (g *Gateway) Shutdown() {
	g.mu.Lock()
	clients := make([]*Client, 0, len(g.clients))
	for c := range g.clients {
		clients = append(clients, c)
	}
	g.mu.Unlock()

	g.log.Printf("closing %d connections", len(clients))
	for _, c := range clients {
		c.stopClient()
	}
}
