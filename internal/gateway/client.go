package gateway

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// Client owns one websocket connection. Read runs the dispatch loop on its
// own goroutine and Write drains the buffered send queue on another.
type Client struct {
	id       string
	conn     *websocket.Conn
	gw       *Gateway
	log      *log.Logger
	send     chan *ServerEvent
	stop     chan struct{}
	stopOnce sync.Once
}

func NewClient(id string, conn *websocket.Conn, gw *Gateway, l *log.Logger) *Client {
	return &Client{
		id:   id,
		conn: conn,
		gw:   gw,
		log:  l,
		send: make(chan *ServerEvent, 256),
		stop: make(chan struct{}),
	}
}

func (c *Client) Write() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.log.Printf("connection %s: write exiting", c.id)
	}()

	for {
		select {
		case ev, ok := <-c.send:
			if !ok {
				return
			}

			bytes, err := json.Marshal(ev)
			if err != nil {
				c.log.Println("failed to serialize event:", err)
				continue
			}

			if !c.writeFrame(websocket.TextMessage, bytes) {
				return
			}
		case <-c.stop:
			return
		case <-ticker.C:
			if !c.writeFrame(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

func (c *Client) Read() {
	defer func() {
		c.conn.Close()
		c.cleanup()
		c.log.Printf("connection %s: read exiting", c.id)
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(appData string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.log.Printf("ws: read: %v", err)
			}
			break
		}

		var ev ClientEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			c.log.Println("error parsing event:", err)
			c.queueEvent(evError("invalid event"))
			continue
		}

		c.gw.dispatch(c, &ev)
	}
}

// queueEvent enqueues an event for the write pump without blocking. Events
// for a consumer whose queue is full are dropped.
func (c *Client) queueEvent(ev *ServerEvent) bool {
	select {
	case c.send <- ev:
	default:
		c.log.Printf("connection %s: send queue full, dropping %s", c.id, ev.Event)
		return false
	}

	return true
}

func (c *Client) writeFrame(msgType int, msg []byte) bool {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))

	if err := c.conn.WriteMessage(msgType, msg); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			websocket.CloseNormalClosure) {
			c.log.Printf("write frame: %s", err)
		}
		return false
	}

	return true
}

func (c *Client) stopClient() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *Client) cleanup() {
	c.gw.disconnect(c)
	c.stopClient()
}
