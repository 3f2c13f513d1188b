package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/nguyentrongduc2005/chat-high-load/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMessage(roomId string, n int, ts time.Time) types.Message {
	return types.Message{
		Id:        fmt.Sprintf("msg-%d", n),
		UserId:    "user-1",
		RoomId:    roomId,
		Content:   fmt.Sprintf("message %d", n),
		Timestamp: ts,
		Kind:      types.MessageKind,
	}
}

func TestMemoryRepositoryRooms(t *testing.T) {
	repo := NewMemoryChatRepository(1000, 100)
	ctx := context.Background()

	room := types.Room{Id: "room-1", Name: "general", CreatedAt: time.Now()}
	require.NoError(t, repo.CreateRoom(ctx, room))

	t.Run("get existing room", func(t *testing.T) {
		got, err := repo.GetRoom(ctx, "room-1")
		assert.NoError(t, err)
		assert.Equal(t, "general", got.Name)
		assert.Zero(t, got.MemberCount, "expected no members yet")
	})

	t.Run("get missing room", func(t *testing.T) {
		_, err := repo.GetRoom(ctx, "nope")
		assert.ErrorIs(t, err, ErrRoomNotFound)
	})

	t.Run("list rooms", func(t *testing.T) {
		rooms, err := repo.ListRooms(ctx)
		assert.NoError(t, err)
		assert.Len(t, rooms, 1)

		ids, err := repo.ListRoomIds(ctx)
		assert.NoError(t, err)
		assert.Equal(t, []string{"room-1"}, ids)
	})

	t.Run("member count is derived", func(t *testing.T) {
		added, err := repo.AddMember(ctx, "user-1", "room-1")
		require.NoError(t, err)
		assert.True(t, added)

		got, err := repo.GetRoom(ctx, "room-1")
		assert.NoError(t, err)
		assert.Equal(t, 1, got.MemberCount)
	})
}

func TestMemoryRepositoryMembership(t *testing.T) {
	repo := NewMemoryChatRepository(1000, 100)
	ctx := context.Background()

	require.NoError(t, repo.CreateRoom(ctx, types.Room{Id: "room-1", Name: "general"}))

	added, err := repo.AddMember(ctx, "user-1", "room-1")
	require.NoError(t, err)
	assert.True(t, added, "expected first join to change membership")

	added, err = repo.AddMember(ctx, "user-1", "room-1")
	require.NoError(t, err)
	assert.False(t, added, "expected re-join to be a no-op")

	isMember, err := repo.IsMember(ctx, "user-1", "room-1")
	require.NoError(t, err)
	assert.True(t, isMember)

	members, err := repo.ListMembers(ctx, "room-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"user-1"}, members)

	removed, err := repo.RemoveMember(ctx, "user-1", "room-1")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = repo.RemoveMember(ctx, "user-1", "room-1")
	require.NoError(t, err)
	assert.False(t, removed, "expected second leave to be a no-op")

	isMember, err = repo.IsMember(ctx, "user-1", "room-1")
	require.NoError(t, err)
	assert.False(t, isMember)
}

func TestMemoryRepositoryMessageCap(t *testing.T) {
	const indexCap, recentCap = 5, 3
	repo := NewMemoryChatRepository(indexCap, recentCap)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	for i := 0; i < indexCap+1; i++ {
		msg := testMessage("room-1", i, base.Add(time.Duration(i)*time.Second))
		require.NoError(t, repo.AppendMessage(ctx, msg))
	}

	msgs, err := repo.GetMessages(ctx, "room-1", indexCap+10, 0)
	require.NoError(t, err)
	assert.Len(t, msgs, indexCap, "expected index to stay at the cap")
	assert.Equal(t, "msg-5", msgs[0].Id, "expected newest message at the head")

	// the oldest message was evicted along with its body
	for _, m := range msgs {
		assert.NotEqual(t, "msg-0", m.Id)
	}

	recent, err := repo.RecentMessages(ctx, "room-1")
	require.NoError(t, err)
	assert.Len(t, recent, recentCap, "expected recent cache to hold its own cap")
	assert.Equal(t, "msg-5", recent[0].Id)
}

func TestMemoryRepositoryMessageCapFull(t *testing.T) {
	const indexCap = 1000
	repo := NewMemoryChatRepository(indexCap, 100)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	for i := 0; i < indexCap+1; i++ {
		require.NoError(t, repo.AppendMessage(ctx, testMessage("room-1", i, base.Add(time.Duration(i)*time.Millisecond))))
	}

	msgs, err := repo.GetMessages(ctx, "room-1", indexCap+10, 0)
	require.NoError(t, err)
	require.Len(t, msgs, indexCap)
	assert.Equal(t, "msg-1000", msgs[0].Id)
	assert.Equal(t, "msg-1", msgs[indexCap-1].Id, "expected only the very first message to be evicted")
}

func TestMemoryRepositoryGetMessagesPaging(t *testing.T) {
	repo := NewMemoryChatRepository(100, 10)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 10; i++ {
		require.NoError(t, repo.AppendMessage(ctx, testMessage("room-1", i, base.Add(time.Duration(i)*time.Second))))
	}

	t.Run("limit", func(t *testing.T) {
		msgs, err := repo.GetMessages(ctx, "room-1", 3, 0)
		require.NoError(t, err)
		assert.Len(t, msgs, 3)
		assert.Equal(t, "msg-9", msgs[0].Id)
	})

	t.Run("offset", func(t *testing.T) {
		msgs, err := repo.GetMessages(ctx, "room-1", 3, 3)
		require.NoError(t, err)
		assert.Len(t, msgs, 3)
		assert.Equal(t, "msg-6", msgs[0].Id)
	})

	t.Run("offset past end", func(t *testing.T) {
		msgs, err := repo.GetMessages(ctx, "room-1", 3, 50)
		require.NoError(t, err)
		assert.Empty(t, msgs)
	})

	t.Run("unknown room", func(t *testing.T) {
		msgs, err := repo.GetMessages(ctx, "nope", 3, 0)
		require.NoError(t, err)
		assert.Empty(t, msgs, "expected empty result for a room with no messages")
	})
}

func TestMemoryRepositoryPruneEvents(t *testing.T) {
	repo := NewMemoryChatRepository(100, 10)
	ctx := context.Background()

	now := time.Now()
	for i := 0; i < 5; i++ {
		ev := types.RoomEvent{
			Type:      types.EventJoined,
			UserId:    fmt.Sprintf("user-%d", i),
			RoomId:    "room-1",
			Timestamp: now.Add(-time.Duration(i) * time.Hour),
		}
		require.NoError(t, repo.AppendEvent(ctx, ev))
	}

	// events at -2h, -3h and -4h are older than the cutoff
	removed, err := repo.PruneEvents(ctx, "room-1", now.Add(-90*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(3), removed)

	removed, err = repo.PruneEvents(ctx, "room-1", now.Add(-90*time.Minute))
	require.NoError(t, err)
	assert.Zero(t, removed, "expected second prune to remove nothing")
}

func TestMemoryRepositorySessions(t *testing.T) {
	repo := NewMemoryChatRepository(100, 10)
	ctx := context.Background()

	sess := types.Session{
		ConnectionId: "conn-1",
		UserId:       "user-1",
		Username:     "alice",
		ConnectedAt:  time.Now(),
	}
	require.NoError(t, repo.SaveSession(ctx, sess))
	require.NoError(t, repo.DeleteSession(ctx, "conn-1"))
	assert.NoError(t, repo.DeleteSession(ctx, "conn-1"), "expected deleting a missing session to succeed")
}
