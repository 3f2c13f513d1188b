package store

import (
	"context"
	"errors"
	"time"

	"github.com/nguyentrongduc2005/chat-high-load/internal/types"
)

var ErrRoomNotFound = errors.New("room not found")

// ChatRepository is the durable tier: rooms, the bidirectional membership
// relation, the capped per-room message log, the time-retained event log and
// the fleet-visible session mirror. Implementations must make each mutation
// atomic with respect to concurrent callers.
type ChatRepository interface {
	Ping(ctx context.Context) error

	CreateRoom(ctx context.Context, room types.Room) error
	GetRoom(ctx context.Context, roomId string) (types.Room, error)
	ListRooms(ctx context.Context) ([]types.Room, error)
	ListRoomIds(ctx context.Context) ([]string, error)

	// AddMember adds userId to the room's member set and roomId to the
	// user's room set as one atomic step. It reports whether membership
	// actually changed, so re-joining is a no-op success.
	AddMember(ctx context.Context, userId, roomId string) (bool, error)
	RemoveMember(ctx context.Context, userId, roomId string) (bool, error)
	IsMember(ctx context.Context, userId, roomId string) (bool, error)
	ListMembers(ctx context.Context, roomId string) ([]string, error)

	// AppendMessage persists the message body, pushes its id at the head of
	// the room index and evicts entries beyond the cap, all as a single
	// atomic step. A reader never observes the index over the cap or
	// missing the just-inserted id.
	AppendMessage(ctx context.Context, msg types.Message) error
	GetMessages(ctx context.Context, roomId string, limit, offset int) ([]types.Message, error)
	// RecentMessages reads the low-latency cache tier.
	RecentMessages(ctx context.Context, roomId string) ([]types.Message, error)

	AppendEvent(ctx context.Context, event types.RoomEvent) error
	// PruneEvents removes events with a timestamp before cutoff as one
	// conditional range delete and returns the number removed.
	PruneEvents(ctx context.Context, roomId string, cutoff time.Time) (int64, error)

	SaveSession(ctx context.Context, sess types.Session) error
	DeleteSession(ctx context.Context, connectionId string) error

	Close() error
}
