package stream

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"StratTune/internal/domain/models"
	applogger "StratTune/pkg/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

// Event is one pushed stream frame.
type Event struct {
	Type string      `json:"type"` // sample | auto_apply | trade
	Data interface{} `json:"data"`
	At   time.Time   `json:"at"`
}

// Hub fans controller events out to connected WebSocket clients. Slow clients
// are dropped rather than allowed to backpressure the controller.
type Hub struct {
	l        *applogger.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
	}
}

// SetLogger injects a structured logger.
func (h *Hub) SetLogger(l *applogger.Logger) { h.l = l }

// Serve upgrades the request and registers the connection until it closes.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	c := &client{conn: conn, send: make(chan []byte, 64)}
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return conn.Close()
	}
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()

	if h.l != nil {
		h.l.Debug("stream client connected", applogger.Int("clients", n))
	}

	go h.writeLoop(c)
	go h.readLoop(c)
	return nil
}

// Broadcast queues an event to every connected client. Full client queues are
// disconnected.
func (h *Hub) Broadcast(ev Event) {
	ev.At = time.Now()
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- payload:
		default:
			delete(h.clients, c)
			close(c.send)
		}
	}
}

// Clients returns the current connection count.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects all clients.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
	return nil
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
	_ = c.conn.Close()
}

func (h *Hub) readLoop(c *client) {
	defer h.remove(c)
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		// clients only listen; any read error ends the session
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writeLoop(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// OnSample implements the controller listener.
func (h *Hub) OnSample(s *models.DiagnosticSample) {
	h.Broadcast(Event{Type: "sample", Data: s})
}

// OnAutoApply implements the controller listener.
func (h *Hub) OnAutoApply(ev *models.AutoApplyEvent) {
	h.Broadcast(Event{Type: "auto_apply", Data: ev})
}

// OnTrade implements the controller listener.
func (h *Hub) OnTrade(t *models.Trade) {
	h.Broadcast(Event{Type: "trade", Data: t})
}
