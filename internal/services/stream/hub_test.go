package stream

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"StratTune/internal/domain/models"
)

func dialHub(t *testing.T, h *Hub) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = h.Serve(w, r)
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)

	var ev Event
	require.NoError(t, json.Unmarshal(payload, &ev))
	return ev
}

func TestHubBroadcastReachesClient(t *testing.T) {
	h := NewHub()
	conn := dialHub(t, h)

	waitClients(t, h, 1)
	h.Broadcast(Event{Type: "sample", Data: map[string]interface{}{"bar": 7}})

	ev := readEvent(t, conn)
	assert.Equal(t, "sample", ev.Type)
	assert.False(t, ev.At.IsZero())
}

func TestHubListenerEvents(t *testing.T) {
	h := NewHub()
	conn := dialHub(t, h)
	waitClients(t, h, 1)

	h.OnSample(&models.DiagnosticSample{Bar: 3})
	h.OnAutoApply(&models.AutoApplyEvent{Param: "min_gradient"})
	h.OnTrade(&models.Trade{Direction: "long"})

	assert.Equal(t, "sample", readEvent(t, conn).Type)
	assert.Equal(t, "auto_apply", readEvent(t, conn).Type)
	assert.Equal(t, "trade", readEvent(t, conn).Type)
}

func TestHubCloseDisconnectsClients(t *testing.T) {
	h := NewHub()
	conn := dialHub(t, h)
	waitClients(t, h, 1)

	require.NoError(t, h.Close())
	assert.Zero(t, h.Clients())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}

func waitClients(t *testing.T, h *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if h.Clients() == n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected %d clients, have %d", n, h.Clients())
}
