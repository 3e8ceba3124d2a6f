package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/rustyeddy/backtester/sim"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBufferSize = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// EventMessage is the JSON frame pushed to websocket clients.
type EventMessage struct {
	Type       sim.EventKind `json:"type"`
	Level      sim.Level     `json:"level"`
	Time       time.Time     `json:"time"`
	Phase      string        `json:"phase,omitempty"`
	OrderID    int           `json:"order_id,omitempty"`
	TradeID    int           `json:"trade_id,omitempty"`
	OrderKind  string        `json:"order_kind,omitempty"`
	Direction  string        `json:"direction,omitempty"`
	Price      float64       `json:"price,omitempty"`
	ProfitLoss float64       `json:"profit_loss,omitempty"`
	Reason     string        `json:"reason,omitempty"`
	Text       string        `json:"text,omitempty"`
	Payload    any           `json:"payload,omitempty"`
}

func NewEventMessage(ev sim.Event) EventMessage {
	m := EventMessage{
		Type:       ev.Kind,
		Level:      ev.Level,
		Time:       ev.Time,
		Phase:      ev.Phase,
		OrderID:    ev.OrderID,
		TradeID:    ev.TradeID,
		Price:      ev.Price,
		ProfitLoss: ev.ProfitLoss,
		Reason:     ev.Reason,
		Text:       ev.Text,
		Payload:    ev.Payload,
	}
	if ev.OrderKind != 0 {
		m.OrderKind = ev.OrderKind.String()
	}
	if ev.Direction != 0 {
		m.Direction = ev.Direction.String()
	}
	return m
}

type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// Hub fans engine events out to connected websocket clients. Every event
// is sent regardless of notification level. Slow clients drop frames.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]bool
	closed  bool
	log     zerolog.Logger
}

func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		clients: make(map[*client]bool),
		log:     log.With().Str("component", "ws").Logger(),
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Emit broadcasts ev. It never fails the run.
func (h *Hub) Emit(ctx context.Context, ev sim.Event) error {
	b, err := json.Marshal(NewEventMessage(ev))
	if err != nil {
		return err
	}
	h.Broadcast(b)
	return nil
}

func (h *Hub) Broadcast(data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.log.Warn().Msg("dropping message for slow client")
		}
	}
}

// Close disconnects all clients.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
}

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = true
	h.log.Info().Int("total_clients", len(h.clients)).Msg("client connected")
	return true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
		h.log.Info().Int("total_clients", len(h.clients)).Msg("client disconnected")
	}
}

// ServeHTTP upgrades the request and streams events until the client leaves.
// GET /ws
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("upgrade failed")
		return
	}
	c := &client{hub: h, conn: conn, send: make(chan []byte, sendBufferSize)}
	if !h.register(c) {
		_ = conn.Close()
		return
	}
	go c.writePump()
	go c.readPump()
}

// readPump only services control frames; clients do not send commands.
func (c *client) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.log.Warn().Err(err).Msg("unexpected close")
			}
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
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
