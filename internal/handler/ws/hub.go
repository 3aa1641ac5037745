package ws

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"FinPulse/internal/domain/models"
	drepo "FinPulse/internal/domain/repository"
	"FinPulse/pkg/logger"
	"FinPulse/pkg/util"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

const (
	ActionSubscribe      = "subscribe"
	ActionUnsubscribe    = "unsubscribe"
	ActionUnsubscribeAll = "unsubscribe_all"
)

// Request is a client command. An empty subscription set means "everything".
type Request struct {
	Action  string   `json:"action"`
	Symbols []string `json:"symbols"`
	ID      string   `json:"id,omitempty"`
}

// Response is every frame the hub sends: acks, errors and snapshots.
type Response struct {
	Type    string      `json:"type"`
	ID      string      `json:"id,omitempty"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// Hub pushes every appended snapshot to connected WebSocket clients.
// A client whose send buffer is full is disconnected rather than slowing the
// ingestion goroutine that calls OnSnapshot.
type Hub struct {
	mu       sync.RWMutex
	clients  map[*Client]struct{}
	log      *logger.Logger
	metrics  drepo.Metrics
	upgrader websocket.Upgrader
	valid    map[string]bool
	closed   bool

	sendBuffer int
	writeWait  time.Duration
	pongWait   time.Duration
	pingPeriod time.Duration
}

type HubOption func(*Hub)

// WithSendBuffer sets how many frames may queue per client before it is dropped.
func WithSendBuffer(n int) HubOption {
	return func(h *Hub) {
		if n > 0 {
			h.sendBuffer = n
		}
	}
}

// WithKeepalive sets the pong deadline; pings go out at 9/10 of it.
func WithKeepalive(pongWait time.Duration) HubOption {
	return func(h *Hub) {
		if pongWait > 0 {
			h.pongWait = pongWait
			h.pingPeriod = pongWait * 9 / 10
		}
	}
}

// WithUniverse restricts subscriptions to the tracked instrument ids.
func WithUniverse(ids []string) HubOption {
	return func(h *Hub) {
		h.valid = make(map[string]bool, len(ids))
		for _, id := range ids {
			h.valid[strings.ToUpper(id)] = true
		}
	}
}

func NewHub(log *logger.Logger, metrics drepo.Metrics, opts ...HubOption) *Hub {
	if log == nil {
		log = logger.Nop()
	}
	h := &Hub{
		clients:    make(map[*Client]struct{}),
		log:        log,
		metrics:    metrics,
		sendBuffer: 64,
		writeWait:  5 * time.Second,
		pongWait:   60 * time.Second,
		pingPeriod: 54 * time.Second,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Hub) RegisterRoutes(e *echo.Echo) {
	e.GET("/ws/snapshots", h.Handle)
}

// Handle upgrades GET /ws/snapshots. ?symbols=TCS,INFY pre-subscribes to universe ids.
func (h *Hub) Handle(c echo.Context) error {
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade already wrote the HTTP error
		h.log.Warn("websocket upgrade failed", logger.Error(err))
		return nil
	}

	client := newClient(conn, h)
	for _, s := range util.SplitCSV(c.QueryParam("symbols")) {
		if id := strings.ToUpper(s); h.accepts(id) {
			client.subs[id] = true
		}
	}

	if !h.register(client) {
		_ = conn.Close()
		return nil
	}
	client.start()
	return nil
}

// OnSnapshot broadcasts s to every client subscribed to its instrument.
func (h *Hub) OnSnapshot(s models.Snapshot) {
	frame, err := json.Marshal(Response{Type: "snapshot", Data: s})
	if err != nil {
		h.metrics.RecordError("ws_encode")
		return
	}

	var slow []*Client
	h.mu.RLock()
	for c := range h.clients {
		if !c.wants(s.InstrumentID) {
			continue
		}
		if !c.trySend(frame) {
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.metrics.RecordError("ws_slow_client")
		h.log.Warn("dropping slow websocket client", logger.String("remote", c.remote))
		h.unregister(c)
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		h.unregister(c)
	}
}

func (h *Hub) accepts(id string) bool {
	return h.valid == nil || h.valid[id]
}

func (h *Hub) register(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	h.log.Debug("websocket client connected", logger.String("remote", c.remote), logger.Int("clients", len(h.clients)))
	return true
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()
	if ok {
		c.close()
	}
}

func (h *Hub) handle(c *Client, req Request) {
	switch req.Action {
	case ActionSubscribe:
		var added []string
		for _, s := range req.Symbols {
			id := strings.ToUpper(strings.TrimSpace(s))
			if h.accepts(id) && c.subscribe(id) {
				added = append(added, id)
			}
		}
		if len(added) == 0 {
			c.sendJSON(Response{Type: "error", ID: req.ID, Message: "no valid or new symbols"})
			return
		}
		c.sendJSON(Response{Type: "ack", ID: req.ID, Message: "subscribed to " + strings.Join(added, ", ")})
	case ActionUnsubscribe:
		removed := c.unsubscribe(req.Symbols)
		if len(removed) == 0 {
			c.sendJSON(Response{Type: "error", ID: req.ID, Message: "not subscribed to " + strings.Join(req.Symbols, ", ")})
			return
		}
		c.sendJSON(Response{Type: "ack", ID: req.ID, Message: "unsubscribed from " + strings.Join(removed, ", ")})
	case ActionUnsubscribeAll:
		c.unsubscribe(nil)
		c.sendJSON(Response{Type: "ack", ID: req.ID, Message: "receiving all symbols"})
	default:
		c.sendJSON(Response{Type: "error", ID: req.ID, Message: "unknown action: " + req.Action})
	}
}

var _ drepo.SnapshotObserver = (*Hub)(nil)
