package ws

import (
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
	sendQueueSize  = 64
)

// client is one live websocket connection bound to a channel. All writes to
// the conn go through the send queue and the write pump; gorilla connections
// do not allow concurrent writers.
type client struct {
	conn *websocket.Conn
	info ConnInfo

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newClient(conn *websocket.Conn, info ConnInfo) *client {
	return &client{
		conn: conn,
		info: info,
		send: make(chan []byte, sendQueueSize),
		done: make(chan struct{}),
	}
}

// enqueue queues a payload for delivery. Delivery is at-most-once: a slow
// consumer with a full queue misses the payload and catches up via the
// pagination path after reconnect.
func (c *client) enqueue(payload []byte) bool {
	select {
	case c.send <- payload:
		return true
	case <-c.done:
		return false
	default:
		log.Printf("ws: send queue full, dropping payload conn=%s", c.info.ConnID)
		return false
	}
}

// shutdown closes the connection once; safe to call from any goroutine.
func (c *client) shutdown() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// writePump serializes all outbound traffic for this connection and keeps
// it alive with pings.
func (c *client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.shutdown()
	}()

	for {
		select {
		case payload := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				log.Printf("ws: write error conn=%s: %v", c.info.ConnID, err)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}
