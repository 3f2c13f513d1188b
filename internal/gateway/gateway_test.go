package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/nguyentrongduc2005/chat-high-load/internal/bus"
	"github.com/nguyentrongduc2005/chat-high-load/internal/chat"
	"github.com/nguyentrongduc2005/chat-high-load/internal/ratelimit"
	"github.com/nguyentrongduc2005/chat-high-load/internal/stats"
	"github.com/nguyentrongduc2005/chat-high-load/internal/store"
	"github.com/nguyentrongduc2005/chat-high-load/internal/testutil"
	"github.com/nguyentrongduc2005/chat-high-load/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// newTestGateway wires a gateway over the in-process store and bus so
// dispatch runs end to end without a network.
func newTestGateway(t *testing.T, repo store.ChatRepository, limiter ratelimit.Limiter, su stats.Provider) *Gateway {
	logger := testutil.TestLogger(t)
	svc := chat.NewService(logger, repo, nil, 1000)
	gw := NewGateway(logger, svc, limiter, repo, su, testSigningKey)

	b := bus.NewLocalBus(gw.HandleBusEvent)
	gw.SetBus(b)
	svc.SetBus(b)

	return gw
}

func relaxedStats() *stats.MockStatsUpdater {
	su := &stats.MockStatsUpdater{}
	su.On("Incr", mock.Anything).Maybe()
	su.On("Decr", mock.Anything).Maybe()
	return su
}

func newTestClient(t *testing.T, id string, gw *Gateway) *Client {
	return NewClient(id, nil, gw, testutil.TestLogger(t))
}

func clientEvent(t *testing.T, event string, data any) *ClientEvent {
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	return &ClientEvent{Event: event, Data: raw}
}

// receiveEvent pops the next queued server event, failing the test if the
// queue is empty.
func receiveEvent(t *testing.T, c *Client) *ServerEvent {
	t.Helper()
	select {
	case ev := <-c.send:
		return ev
	default:
		t.Fatal("expected a queued server event")
		return nil
	}
}

func assertNoEvent(t *testing.T, c *Client) {
	t.Helper()
	select {
	case ev := <-c.send:
		t.Fatalf("expected no queued event, got %s", ev.Event)
	default:
	}
}

func authenticate(t *testing.T, gw *Gateway, c *Client, userId, username string) {
	t.Helper()
	gw.dispatch(c, clientEvent(t, EventAuthenticate, AuthenticateData{UserId: userId, Username: username}))
	ev := receiveEvent(t, c)
	require.Equal(t, EventAuthenticated, ev.Event)
}

func TestGatewayAuthenticate(t *testing.T) {
	repo := store.NewMemoryChatRepository(100, 10)

	t.Run("plain identity", func(t *testing.T) {
		gw := newTestGateway(t, repo, &ratelimit.MockLimiter{}, relaxedStats())
		c := newTestClient(t, "conn-1", gw)

		gw.dispatch(c, clientEvent(t, EventAuthenticate, AuthenticateData{UserId: "user-1", Username: "alice"}))

		ev := receiveEvent(t, c)
		require.Equal(t, EventAuthenticated, ev.Event)
		assert.Equal(t, AuthenticatedData{UserId: "user-1", Username: "alice"}, ev.Data)

		sess, ok := gw.sessions.Get("conn-1")
		require.True(t, ok)
		assert.Equal(t, "user-1", sess.UserId)
	})

	t.Run("verified token overrides plain fields", func(t *testing.T) {
		gw := newTestGateway(t, repo, &ratelimit.MockLimiter{}, relaxedStats())
		c := newTestClient(t, "conn-2", gw)

		token := signedToken(t, testSigningKey, map[string]interface{}{
			userIdClaim:   "user-9",
			usernameClaim: "carol",
		})
		gw.dispatch(c, clientEvent(t, EventAuthenticate, AuthenticateData{UserId: "spoofed", Username: "spoofed", Token: token}))

		ev := receiveEvent(t, c)
		require.Equal(t, EventAuthenticated, ev.Event)
		assert.Equal(t, AuthenticatedData{UserId: "user-9", Username: "carol"}, ev.Data)
	})

	t.Run("bad token", func(t *testing.T) {
		su := relaxedStats()
		gw := newTestGateway(t, repo, &ratelimit.MockLimiter{}, su)
		c := newTestClient(t, "conn-3", gw)

		gw.dispatch(c, clientEvent(t, EventAuthenticate, AuthenticateData{Token: "garbage"}))

		ev := receiveEvent(t, c)
		assert.Equal(t, EventAuthError, ev.Event)
		su.AssertCalled(t, "Incr", stats.AuthFailures)
	})

	t.Run("missing identity", func(t *testing.T) {
		gw := newTestGateway(t, repo, &ratelimit.MockLimiter{}, relaxedStats())
		c := newTestClient(t, "conn-4", gw)

		gw.dispatch(c, clientEvent(t, EventAuthenticate, AuthenticateData{UserId: "user-1"}))

		ev := receiveEvent(t, c)
		assert.Equal(t, EventAuthError, ev.Event)
	})
}

func TestGatewayJoinRoom(t *testing.T) {
	repo := store.NewMemoryChatRepository(100, 10)
	require.NoError(t, repo.CreateRoom(context.Background(), types.Room{Id: "room-1", Name: "general"}))

	gw := newTestGateway(t, repo, &ratelimit.MockLimiter{}, relaxedStats())

	alice := newTestClient(t, "conn-a", gw)
	bob := newTestClient(t, "conn-b", gw)
	authenticate(t, gw, alice, "user-a", "alice")
	authenticate(t, gw, bob, "user-b", "bob")

	gw.dispatch(alice, clientEvent(t, EventJoinRoom, RoomData{RoomId: "room-1"}))
	ev := receiveEvent(t, alice)
	assert.Equal(t, EventRoomJoined, ev.Event)
	assertNoEvent(t, alice)

	t.Run("presence reaches members but not the origin", func(t *testing.T) {
		gw.dispatch(bob, clientEvent(t, EventJoinRoom, RoomData{RoomId: "room-1"}))

		ev := receiveEvent(t, alice)
		require.Equal(t, EventUserJoined, ev.Event)
		presence := ev.Data.(PresenceData)
		assert.Equal(t, "user-b", presence.UserId)

		ev = receiveEvent(t, bob)
		assert.Equal(t, EventRoomJoined, ev.Event, "expected only the ack, not an echoed presence event")
		assertNoEvent(t, bob)
	})

	t.Run("unknown room", func(t *testing.T) {
		gw.dispatch(alice, clientEvent(t, EventJoinRoom, RoomData{RoomId: "nope"}))
		ev := receiveEvent(t, alice)
		assert.Equal(t, EventError, ev.Event)
	})

	t.Run("unauthenticated connection", func(t *testing.T) {
		stranger := newTestClient(t, "conn-x", gw)
		gw.dispatch(stranger, clientEvent(t, EventJoinRoom, RoomData{RoomId: "room-1"}))
		ev := receiveEvent(t, stranger)
		assert.Equal(t, EventError, ev.Event)
	})
}

func TestGatewaySendMessage(t *testing.T) {
	newRoomWithMembers := func(t *testing.T, limiter ratelimit.Limiter, su stats.Provider) (*Gateway, *Client, *Client) {
		repo := store.NewMemoryChatRepository(100, 10)
		require.NoError(t, repo.CreateRoom(context.Background(), types.Room{Id: "room-1", Name: "general"}))

		gw := newTestGateway(t, repo, limiter, su)
		alice := newTestClient(t, "conn-a", gw)
		bob := newTestClient(t, "conn-b", gw)
		authenticate(t, gw, alice, "user-a", "alice")
		authenticate(t, gw, bob, "user-b", "bob")

		gw.dispatch(alice, clientEvent(t, EventJoinRoom, RoomData{RoomId: "room-1"}))
		receiveEvent(t, alice)
		gw.dispatch(bob, clientEvent(t, EventJoinRoom, RoomData{RoomId: "room-1"}))
		receiveEvent(t, bob)
		receiveEvent(t, alice) // bob's presence

		return gw, alice, bob
	}

	t.Run("message is delivered to the full room", func(t *testing.T) {
		limiter := &ratelimit.MockLimiter{}
		limiter.On("Allow", mock.Anything, "user-a").Return(true, nil).Once()
		su := relaxedStats()

		gw, alice, bob := newRoomWithMembers(t, limiter, su)

		gw.dispatch(alice, clientEvent(t, EventSendMessage, SendMessageData{RoomId: "room-1", Message: "hello"}))

		for _, c := range []*Client{alice, bob} {
			ev := receiveEvent(t, c)
			require.Equal(t, EventNewMessage, ev.Event, "expected message delivery including the sender")
			msg := ev.Data.(NewMessageData)
			assert.Equal(t, "hello", msg.Content)
			assert.Equal(t, "alice", msg.Username)
		}

		su.AssertCalled(t, "Incr", stats.MessagesSent)
		su.AssertCalled(t, "Incr", stats.MessagesDelivered)
	})

	t.Run("rate limited send is rejected", func(t *testing.T) {
		limiter := &ratelimit.MockLimiter{}
		limiter.On("Allow", mock.Anything, "user-a").Return(false, nil).Once()
		su := relaxedStats()

		gw, alice, bob := newRoomWithMembers(t, limiter, su)

		gw.dispatch(alice, clientEvent(t, EventSendMessage, SendMessageData{RoomId: "room-1", Message: "hello"}))

		ev := receiveEvent(t, alice)
		assert.Equal(t, EventError, ev.Event)
		assertNoEvent(t, bob)
		su.AssertCalled(t, "Incr", stats.RateLimitedSends)
	})

	t.Run("limiter failure fails open", func(t *testing.T) {
		limiter := &ratelimit.MockLimiter{}
		limiter.On("Allow", mock.Anything, "user-a").Return(false, errors.New("redis down")).Once()

		gw, alice, _ := newRoomWithMembers(t, limiter, relaxedStats())

		gw.dispatch(alice, clientEvent(t, EventSendMessage, SendMessageData{RoomId: "room-1", Message: "hello"}))

		ev := receiveEvent(t, alice)
		assert.Equal(t, EventNewMessage, ev.Event, "expected the send to proceed when the limiter is unreachable")
	})

	t.Run("non-member send is denied", func(t *testing.T) {
		limiter := &ratelimit.MockLimiter{}
		limiter.On("Allow", mock.Anything, "user-x").Return(true, nil).Once()

		gw, _, _ := newRoomWithMembers(t, limiter, relaxedStats())
		stranger := newTestClient(t, "conn-x", gw)
		authenticate(t, gw, stranger, "user-x", "mallory")

		gw.dispatch(stranger, clientEvent(t, EventSendMessage, SendMessageData{RoomId: "room-1", Message: "hello"}))

		ev := receiveEvent(t, stranger)
		require.Equal(t, EventError, ev.Event)
		assert.Equal(t, ErrorData{Message: "not a member of this room"}, ev.Data)
	})
}

func TestGatewayTyping(t *testing.T) {
	repo := store.NewMemoryChatRepository(100, 10)
	require.NoError(t, repo.CreateRoom(context.Background(), types.Room{Id: "room-1", Name: "general"}))

	gw := newTestGateway(t, repo, &ratelimit.MockLimiter{}, relaxedStats())
	alice := newTestClient(t, "conn-a", gw)
	bob := newTestClient(t, "conn-b", gw)
	authenticate(t, gw, alice, "user-a", "alice")
	authenticate(t, gw, bob, "user-b", "bob")

	gw.dispatch(alice, clientEvent(t, EventJoinRoom, RoomData{RoomId: "room-1"}))
	receiveEvent(t, alice)
	gw.dispatch(bob, clientEvent(t, EventJoinRoom, RoomData{RoomId: "room-1"}))
	receiveEvent(t, bob)
	receiveEvent(t, alice)

	gw.dispatch(alice, clientEvent(t, EventTypingStart, RoomData{RoomId: "room-1"}))

	ev := receiveEvent(t, bob)
	require.Equal(t, EventUserTyping, ev.Event)
	typing := ev.Data.(UserTypingData)
	assert.True(t, typing.IsTyping)
	assert.Equal(t, "user-a", typing.UserId)
	assertNoEvent(t, alice)

	gw.dispatch(alice, clientEvent(t, EventTypingStop, RoomData{RoomId: "room-1"}))
	ev = receiveEvent(t, bob)
	require.Equal(t, EventUserTyping, ev.Event)
	assert.False(t, ev.Data.(UserTypingData).IsTyping)
}

func TestGatewayGetOnlineUsers(t *testing.T) {
	repo := store.NewMemoryChatRepository(100, 10)
	require.NoError(t, repo.CreateRoom(context.Background(), types.Room{Id: "room-1", Name: "general"}))

	gw := newTestGateway(t, repo, &ratelimit.MockLimiter{}, relaxedStats())
	alice := newTestClient(t, "conn-a", gw)
	bob := newTestClient(t, "conn-b", gw)
	authenticate(t, gw, alice, "user-a", "alice")
	authenticate(t, gw, bob, "user-b", "bob")

	gw.dispatch(alice, clientEvent(t, EventJoinRoom, RoomData{RoomId: "room-1"}))
	receiveEvent(t, alice)
	gw.dispatch(bob, clientEvent(t, EventJoinRoom, RoomData{RoomId: "room-1"}))
	receiveEvent(t, bob)
	receiveEvent(t, alice)

	gw.dispatch(alice, clientEvent(t, EventGetOnlineUsers, RoomData{RoomId: "room-1"}))

	ev := receiveEvent(t, alice)
	require.Equal(t, EventOnlineUsers, ev.Event)
	online := ev.Data.(OnlineUsersData)
	assert.Equal(t, "room-1", online.RoomId)
	assert.ElementsMatch(t, []types.User{
		{UserId: "user-a", Username: "alice"},
		{UserId: "user-b", Username: "bob"},
	}, online.Users)
}

func TestGatewayDisconnect(t *testing.T) {
	repo := store.NewMemoryChatRepository(100, 10)
	require.NoError(t, repo.CreateRoom(context.Background(), types.Room{Id: "room-1", Name: "general"}))

	su := relaxedStats()
	gw := newTestGateway(t, repo, &ratelimit.MockLimiter{}, su)
	alice := newTestClient(t, "conn-a", gw)
	bob := newTestClient(t, "conn-b", gw)
	gw.RegisterClient(alice)
	gw.RegisterClient(bob)
	authenticate(t, gw, alice, "user-a", "alice")
	authenticate(t, gw, bob, "user-b", "bob")

	gw.dispatch(alice, clientEvent(t, EventJoinRoom, RoomData{RoomId: "room-1"}))
	receiveEvent(t, alice)
	gw.dispatch(bob, clientEvent(t, EventJoinRoom, RoomData{RoomId: "room-1"}))
	receiveEvent(t, bob)
	receiveEvent(t, alice)

	gw.disconnect(bob)

	ev := receiveEvent(t, alice)
	require.Equal(t, EventUserLeft, ev.Event)
	assert.Equal(t, "user-b", ev.Data.(PresenceData).UserId)

	_, ok := gw.sessions.Get("conn-b")
	assert.False(t, ok, "expected the session to be removed")
	su.AssertCalled(t, "Decr", stats.ActiveConnections)

	t.Run("durable membership survives the session", func(t *testing.T) {
		isMember, err := repo.IsMember(context.Background(), "user-b", "room-1")
		require.NoError(t, err)
		assert.True(t, isMember, "expected disconnect to leave room membership intact")
	})
}

func TestGatewayUnknownEvent(t *testing.T) {
	repo := store.NewMemoryChatRepository(100, 10)
	gw := newTestGateway(t, repo, &ratelimit.MockLimiter{}, relaxedStats())
	c := newTestClient(t, "conn-1", gw)

	gw.dispatch(c, &ClientEvent{Event: "no-such-event"})
	ev := receiveEvent(t, c)
	assert.Equal(t, EventError, ev.Event)
}
