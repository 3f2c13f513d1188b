package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nguyentrongduc2005/chat-high-load/internal/types"
)

const (
	roomsKey    = "rooms"
	roomIdsKey  = "room_ids"
	messagesKey = "messages"
	sessionsKey = "connected_users"
)

func roomMembersKey(roomId string) string { return "room:" + roomId + ":members" }
func userRoomsKey(userId string) string   { return "user:" + userId + ":rooms" }
func messageIdsKey(roomId string) string  { return "room:" + roomId + ":message_ids" }
func recentKey(roomId string) string      { return "room:" + roomId + ":recent" }
func roomEventsKey(roomId string) string  { return "room:" + roomId + ":events" }

// appendMessageScript stores the body, pushes the id at the head of the room
// index and trims both the index and the recent cache back to their caps.
// Evicted ids have their bodies deleted so the message hash cannot grow
// without bound. Running as one script keeps the push and trim atomic.
var appendMessageScript = redis.NewScript(`
	redis.call('HSET', KEYS[1], ARGV[1], ARGV[2])
	redis.call('LPUSH', KEYS[2], ARGV[1])
	local evicted = redis.call('LRANGE', KEYS[2], tonumber(ARGV[3]), -1)
	if #evicted > 0 then
		redis.call('LTRIM', KEYS[2], 0, tonumber(ARGV[3]) - 1)
		redis.call('HDEL', KEYS[1], unpack(evicted))
	end
	redis.call('LPUSH', KEYS[3], ARGV[2])
	redis.call('LTRIM', KEYS[3], 0, tonumber(ARGV[4]) - 1)
	return #evicted
`)

type RedisChatRepository struct {
	client    *redis.Client
	indexCap  int
	recentCap int
}

func NewRedisChatRepository(addr, password string, indexCap, recentCap int) (*RedisChatRepository, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &RedisChatRepository{
		client:    client,
		indexCap:  indexCap,
		recentCap: recentCap,
	}, nil
}

func (r *RedisChatRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisChatRepository) CreateRoom(ctx context.Context, room types.Room) error {
	data, err := json.Marshal(room)
	if err != nil {
		return fmt.Errorf("marshal room: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, roomsKey, room.Id, data)
	pipe.SAdd(ctx, roomIdsKey, room.Id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("create room: %w", err)
	}

	return nil
}

func (r *RedisChatRepository) GetRoom(ctx context.Context, roomId string) (types.Room, error) {
	data, err := r.client.HGet(ctx, roomsKey, roomId).Bytes()
	if err != nil {
		if err == redis.Nil {
			return types.Room{}, ErrRoomNotFound
		}
		return types.Room{}, fmt.Errorf("get room: %w", err)
	}

	room, err := decodeRoom(data)
	if err != nil {
		return types.Room{}, err
	}

	count, err := r.client.SCard(ctx, roomMembersKey(roomId)).Result()
	if err != nil {
		return types.Room{}, fmt.Errorf("member count: %w", err)
	}
	room.MemberCount = int(count)

	return room, nil
}

func (r *RedisChatRepository) ListRooms(ctx context.Context) ([]types.Room, error) {
	roomIds, err := r.client.SMembers(ctx, roomIdsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list room ids: %w", err)
	}

	rooms := make([]types.Room, 0, len(roomIds))
	for _, roomId := range roomIds {
		room, err := r.GetRoom(ctx, roomId)
		if err != nil {
			if err == ErrRoomNotFound {
				// id set and record hash can briefly disagree
				continue
			}
			return nil, err
		}
		rooms = append(rooms, room)
	}

	return rooms, nil
}

func (r *RedisChatRepository) ListRoomIds(ctx context.Context) ([]string, error) {
	return r.client.SMembers(ctx, roomIdsKey).Result()
}

func (r *RedisChatRepository) AddMember(ctx context.Context, userId, roomId string) (bool, error) {
	pipe := r.client.TxPipeline()
	added := pipe.SAdd(ctx, roomMembersKey(roomId), userId)
	pipe.SAdd(ctx, userRoomsKey(userId), roomId)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("add member: %w", err)
	}

	return added.Val() > 0, nil
}

func (r *RedisChatRepository) RemoveMember(ctx context.Context, userId, roomId string) (bool, error) {
	pipe := r.client.TxPipeline()
	removed := pipe.SRem(ctx, roomMembersKey(roomId), userId)
	pipe.SRem(ctx, userRoomsKey(userId), roomId)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("remove member: %w", err)
	}

	return removed.Val() > 0, nil
}

func (r *RedisChatRepository) IsMember(ctx context.Context, userId, roomId string) (bool, error) {
	isMember, err := r.client.SIsMember(ctx, roomMembersKey(roomId), userId).Result()
	if err != nil {
		return false, fmt.Errorf("is member: %w", err)
	}

	return isMember, nil
}

func (r *RedisChatRepository) ListMembers(ctx context.Context, roomId string) ([]string, error) {
	members, err := r.client.SMembers(ctx, roomMembersKey(roomId)).Result()
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}

	return members, nil
}

func (r *RedisChatRepository) AppendMessage(ctx context.Context, msg types.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	keys := []string{messagesKey, messageIdsKey(msg.RoomId), recentKey(msg.RoomId)}
	err = appendMessageScript.Run(ctx, r.client, keys, msg.Id, data, r.indexCap, r.recentCap).Err()
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}

	return nil
}

func (r *RedisChatRepository) GetMessages(ctx context.Context, roomId string, limit, offset int) ([]types.Message, error) {
	stop := int64(offset + limit - 1)
	msgIds, err := r.client.LRange(ctx, messageIdsKey(roomId), int64(offset), stop).Result()
	if err != nil {
		return nil, fmt.Errorf("message ids: %w", err)
	}
	if len(msgIds) == 0 {
		return nil, nil
	}

	values, err := r.client.HMGet(ctx, messagesKey, msgIds...).Result()
	if err != nil {
		return nil, fmt.Errorf("message bodies: %w", err)
	}

	messages := make([]types.Message, 0, len(values))
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			// index entry whose body was evicted concurrently
			continue
		}

		msg, err := decodeMessage([]byte(raw))
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}

	return messages, nil
}

func (r *RedisChatRepository) RecentMessages(ctx context.Context, roomId string) ([]types.Message, error) {
	values, err := r.client.LRange(ctx, recentKey(roomId), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("recent messages: %w", err)
	}

	messages := make([]types.Message, 0, len(values))
	for _, raw := range values {
		msg, err := decodeMessage([]byte(raw))
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}

	return messages, nil
}

func (r *RedisChatRepository) AppendEvent(ctx context.Context, event types.RoomEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	err = r.client.ZAdd(ctx, roomEventsKey(event.RoomId), redis.Z{
		Score:  float64(event.Timestamp.UnixMilli()),
		Member: data,
	}).Err()
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}

	return nil
}

func (r *RedisChatRepository) PruneEvents(ctx context.Context, roomId string, cutoff time.Time) (int64, error) {
	// single conditional range delete, safe under concurrent appends
	max := "(" + strconv.FormatInt(cutoff.UnixMilli(), 10)
	removed, err := r.client.ZRemRangeByScore(ctx, roomEventsKey(roomId), "-inf", max).Result()
	if err != nil {
		return 0, fmt.Errorf("prune events: %w", err)
	}

	return removed, nil
}

func (r *RedisChatRepository) SaveSession(ctx context.Context, sess types.Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	if err := r.client.HSet(ctx, sessionsKey, sess.ConnectionId, data).Err(); err != nil {
		return fmt.Errorf("save session: %w", err)
	}

	return nil
}

func (r *RedisChatRepository) DeleteSession(ctx context.Context, connectionId string) error {
	if err := r.client.HDel(ctx, sessionsKey, connectionId).Err(); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}

	return nil
}

func (r *RedisChatRepository) Close() error {
	return r.client.Close()
}

// decodeRoom and decodeMessage validate records at the storage boundary so a
// malformed or partially written blob fails here rather than downstream.

func decodeRoom(data []byte) (types.Room, error) {
	var room types.Room
	if err := json.Unmarshal(data, &room); err != nil {
		return types.Room{}, fmt.Errorf("unmarshal room: %w", err)
	}
	if room.Id == "" || room.Name == "" {
		return types.Room{}, fmt.Errorf("malformed room record: missing id or name")
	}

	return room, nil
}

func decodeMessage(data []byte) (types.Message, error) {
	var msg types.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return types.Message{}, fmt.Errorf("unmarshal message: %w", err)
	}
	if msg.Id == "" || msg.RoomId == "" || msg.UserId == "" {
		return types.Message{}, fmt.Errorf("malformed message record: missing id, room or user")
	}

	return msg, nil
}
