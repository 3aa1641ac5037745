package ws

import (
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const maxMessageSize = 4 * 1024

// Client is one WebSocket connection. readPump owns reads, writePump owns writes.
type Client struct {
	conn   *websocket.Conn
	hub    *Hub
	remote string
	send   chan []byte

	mu   sync.Mutex
	subs map[string]bool

	closeOnce sync.Once
	done      chan struct{}
}

func newClient(conn *websocket.Conn, h *Hub) *Client {
	return &Client{
		conn:   conn,
		hub:    h,
		remote: conn.RemoteAddr().String(),
		send:   make(chan []byte, h.sendBuffer),
		subs:   make(map[string]bool),
		done:   make(chan struct{}),
	}
}

func (c *Client) start() {
	go c.writePump()
	go c.readPump()
}

func (c *Client) wants(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs) == 0 || c.subs[strings.ToUpper(id)]
}

func (c *Client) subscribe(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.subs[id] {
		return false
	}
	c.subs[id] = true
	return true
}

// unsubscribe removes ids, or every subscription when ids is nil.
func (c *Client) unsubscribe(ids []string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var removed []string
	if ids == nil {
		for id := range c.subs {
			removed = append(removed, id)
		}
		c.subs = make(map[string]bool)
		sort.Strings(removed)
		return removed
	}
	for _, s := range ids {
		id := strings.ToUpper(strings.TrimSpace(s))
		if c.subs[id] {
			delete(c.subs, id)
			removed = append(removed, id)
		}
	}
	return removed
}

// trySend queues a frame without blocking and reports whether it fit.
func (c *Client) trySend(b []byte) bool {
	select {
	case <-c.done:
		return true
	default:
	}
	select {
	case c.send <- b:
		return true
	default:
		return false
	}
}

func (c *Client) sendJSON(v interface{}) {
	if b, err := json.Marshal(v); err == nil {
		c.trySend(b)
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.hub.pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.hub.pongWait))
	})

	for {
		var req Request
		if err := c.conn.ReadJSON(&req); err != nil {
			if _, ok := err.(*json.SyntaxError); ok {
				c.sendJSON(Response{Type: "error", Message: "invalid JSON"})
				continue
			}
			return
		}
		c.hub.handle(c, req)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(c.hub.pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.hub.writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.hub.writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.hub.unregister(c)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.hub.writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.hub.unregister(c)
				return
			}
		}
	}
}
