package gateway

import (
	"encoding/json"
	"io"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLoggerDiscard() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func TestClientEventDecoding(t *testing.T) {
	raw := []byte(`{"event":"send-message","data":{"roomId":"room-1","message":"hello"}}`)

	var ev ClientEvent
	require.NoError(t, json.Unmarshal(raw, &ev))
	assert.Equal(t, EventSendMessage, ev.Event)

	var data SendMessageData
	require.NoError(t, json.Unmarshal(ev.Data, &data))
	assert.Equal(t, "room-1", data.RoomId)
	assert.Equal(t, "hello", data.Message)
}

func TestServerEventEncoding(t *testing.T) {
	raw, err := json.Marshal(evRoomJoined("room-1"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"room-joined","data":{"roomId":"room-1","message":"joined room room-1"}}`, string(raw))

	raw, err = json.Marshal(evError("nope"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"error","data":{"message":"nope"}}`, string(raw))
}

func TestClientQueueDropsWhenFull(t *testing.T) {
	c := &Client{
		id:   "conn-1",
		log:  testLoggerDiscard(),
		send: make(chan *ServerEvent, 1),
	}

	assert.True(t, c.queueEvent(evError("first")))
	assert.False(t, c.queueEvent(evError("second")), "expected a full queue to drop the event")
}
