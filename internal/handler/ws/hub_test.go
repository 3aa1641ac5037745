package ws

import (
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"FinPulse/internal/domain/models"
	"FinPulse/pkg/metrics"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHub(t *testing.T, opts ...HubOption) (*Hub, string) {
	t.Helper()
	hub := NewHub(nil, metrics.NewWithRegisterer(prometheus.NewRegistry()), opts...)
	e := echo.New()
	hub.RegisterRoutes(e)
	srv := httptest.NewServer(e)
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/snapshots"
}

func dial(t *testing.T, hub *Hub, url string) *websocket.Conn {
	t.Helper()
	before := hub.Clients()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.Eventually(t, func() bool { return hub.Clients() == before+1 }, time.Second, 5*time.Millisecond)
	return conn
}

func readResponse(t *testing.T, conn *websocket.Conn) Response {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var r Response
	require.NoError(t, conn.ReadJSON(&r))
	return r
}

func quote(id string, price float64) models.Snapshot {
	return models.Snapshot{
		InstrumentID: id,
		Price:        price,
		ObservedAt:   time.Date(2026, 3, 2, 9, 15, 0, 0, time.UTC),
		Provenance:   models.ProvenanceLive,
	}
}

func TestHub_BroadcastsToAllByDefault(t *testing.T) {
	hub, url := newTestHub(t)
	conn := dial(t, hub, url)

	hub.OnSnapshot(quote("TCS.NS", 3570))

	r := readResponse(t, conn)
	assert.Equal(t, "snapshot", r.Type)
	data, ok := r.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "TCS.NS", data["instrument_id"])
	assert.Equal(t, 3570.0, data["price"])
}

func TestHub_QuerySubscriptionFilters(t *testing.T) {
	hub, url := newTestHub(t, WithUniverse([]string{"TCS", "INFY"}))
	conn := dial(t, hub, url+"?symbols=infy,UNKNOWN")

	hub.OnSnapshot(quote("TCS", 3570))
	hub.OnSnapshot(quote("INFY", 1490))

	r := readResponse(t, conn)
	data := r.Data.(map[string]interface{})
	assert.Equal(t, "INFY", data["instrument_id"])
}

func TestHub_Commands(t *testing.T) {
	hub, url := newTestHub(t, WithUniverse([]string{"TCS.NS", "INFY.NS"}))
	conn := dial(t, hub, url)

	require.NoError(t, conn.WriteJSON(Request{Action: ActionSubscribe, Symbols: []string{"tcs.ns", "BOGUS"}, ID: "1"}))
	ack := readResponse(t, conn)
	assert.Equal(t, "ack", ack.Type)
	assert.Equal(t, "1", ack.ID)
	assert.Contains(t, ack.Message, "TCS.NS")

	require.NoError(t, conn.WriteJSON(Request{Action: ActionSubscribe, Symbols: []string{"TCS.NS"}, ID: "2"}))
	assert.Equal(t, "error", readResponse(t, conn).Type)

	require.NoError(t, conn.WriteJSON(Request{Action: ActionUnsubscribe, Symbols: []string{"INFY.NS"}, ID: "3"}))
	assert.Equal(t, "error", readResponse(t, conn).Type)

	require.NoError(t, conn.WriteJSON(Request{Action: "explode", ID: "4"}))
	bad := readResponse(t, conn)
	assert.Equal(t, "error", bad.Type)
	assert.Contains(t, bad.Message, "unknown action")

	require.NoError(t, conn.WriteJSON(Request{Action: ActionUnsubscribeAll, ID: "5"}))
	assert.Equal(t, "ack", readResponse(t, conn).Type)
}

func TestHub_DropsSlowClient(t *testing.T) {
	hub, url := newTestHub(t, WithSendBuffer(1))
	dial(t, hub, url)

	// the client never reads, so its buffer overflows
	require.Eventually(t, func() bool {
		for i := 0; i < 50; i++ {
			hub.OnSnapshot(quote("TCS.NS", 3570+float64(i)))
		}
		return hub.Clients() == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHub_CloseDisconnectsClients(t *testing.T) {
	hub, url := newTestHub(t)
	conn := dial(t, hub, url)

	hub.Close()
	assert.Equal(t, 0, hub.Clients())

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}

func TestHub_KeepaliveKeepsAnsweringClients(t *testing.T) {
	hub, url := newTestHub(t, WithKeepalive(200*time.Millisecond))
	conn := dial(t, hub, url)

	var pings, clientsAtThirdPing atomic.Int32
	conn.SetPingHandler(func(data string) error {
		if pings.Add(1) == 3 {
			clientsAtThirdPing.Store(int32(hub.Clients()))
		}
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
	})
	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	require.GreaterOrEqual(t, pings.Load(), int32(3))
	assert.Equal(t, int32(1), clientsAtThirdPing.Load())
}

func TestHub_KeepaliveDropsSilentClients(t *testing.T) {
	hub, url := newTestHub(t, WithKeepalive(100*time.Millisecond))
	dial(t, hub, url)

	// the client never reads, so no pong answers the server's pings
	require.Eventually(t, func() bool { return hub.Clients() == 0 }, 2*time.Second, 10*time.Millisecond)
}
