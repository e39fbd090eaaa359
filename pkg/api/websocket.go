package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/feedsim/feedsim/pkg/feed"
	"github.com/feedsim/feedsim/pkg/market"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// CORS handled by the HTTP layer.
		return true
	},
}

// Hub tracks live websocket connections and fans generated ticks out to
// the connections subscribed to each symbol.
type Hub struct {
	engine *feed.Engine
	log    *zap.SugaredLogger

	register   chan *Client
	unregister chan *Client

	mu      sync.RWMutex
	clients map[string]*Client
}

func NewHub(engine *feed.Engine, log *zap.SugaredLogger) *Hub {
	return &Hub{
		engine:     engine,
		log:        log,
		register:   make(chan *Client),
		unregister: make(chan *Client, 16),
		clients:    make(map[string]*Client),
	}
}

// Run serves connection registration for the life of the process.
func (h *Hub) Run() {
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c.id] = c
			total := len(h.clients)
			h.mu.Unlock()
			h.log.Infow("ws_client_connected", "conn", c.id, "total", total)

		case c := <-h.unregister:
			h.remove(c)
		}
	}
}

// remove discards a connection's tracking state and drops its engine
// subscriptions. Safe to call more than once per connection.
func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	_, tracked := h.clients[c.id]
	if tracked {
		delete(h.clients, c.id)
		c.closeSend()
	}
	total := len(h.clients)
	h.mu.Unlock()

	if tracked {
		h.engine.UnsubscribeAll(c.id)
		h.log.Infow("ws_client_disconnected", "conn", c.id, "total", total)
	}
}

// BroadcastTick sends a tick to every open connection subscribed to the
// symbol. A connection that cannot accept the message is evicted; the
// broadcast continues to the others.
func (h *Hub) BroadcastTick(symbol string, tick market.Tick) {
	message, err := json.Marshal(tick)
	if err != nil {
		h.log.Warnw("tick_marshal_failed", "symbol", symbol, "err", err)
		return
	}

	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		if c.IsSubscribed(symbol) {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if !c.trySend(message) {
			// Send buffer full or connection gone: evict, keep going.
			h.unregister <- c
		}
	}
}

// Close closes every tracked connection. Pump teardown drives the usual
// unregister path.
func (h *Hub) Close() {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		c.conn.Close()
	}
}

// Client is one websocket connection with its subscription set.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	id   string

	subsMu        sync.RWMutex
	subscriptions map[string]struct{}

	sendMu sync.Mutex
	closed bool
}

// trySend enqueues a message without blocking. Returns false once the
// connection is being torn down or the buffer is full.
func (c *Client) trySend(message []byte) bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- message:
		return true
	default:
		return false
	}
}

func (c *Client) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *Client) IsSubscribed(symbol string) bool {
	c.subsMu.RLock()
	defer c.subsMu.RUnlock()
	_, ok := c.subscriptions[symbol]
	return ok
}

func (c *Client) addSubscription(symbol string) {
	c.subsMu.Lock()
	c.subscriptions[symbol] = struct{}{}
	c.subsMu.Unlock()
}

func (c *Client) dropSubscription(symbol string) {
	c.subsMu.Lock()
	delete(c.subscriptions, symbol)
	c.subsMu.Unlock()
}

// readPump dispatches inbound messages. Protocol errors are reported back
// as an error message; the connection stays open.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Warnw("ws_read_error", "conn", c.id, "err", err)
			}
			return
		}

		var req clientMessage
		if err := json.Unmarshal(message, &req); err != nil {
			c.sendError("invalid message format, expected JSON")
			continue
		}

		switch req.Action {
		case "subscribe":
			c.handleSubscribe(req.Symbol)
		case "unsubscribe":
			c.handleUnsubscribe(req.Symbol)
		default:
			c.sendError("invalid action, supported actions: subscribe, unsubscribe")
		}
	}
}

func (c *Client) handleSubscribe(symbol string) {
	if symbol == "" {
		c.sendError("symbol is required")
		return
	}
	upper := strings.ToUpper(symbol)

	// Track before subscribing so the engine's immediate first tick is
	// not dropped by the fan-out.
	c.addSubscription(upper)
	if err := c.hub.engine.Subscribe(c.id, upper); err != nil {
		c.dropSubscription(upper)
		c.sendError(fmt.Sprintf("failed to subscribe: %v", err))
		return
	}

	c.sendJSON(ackMessage{
		Action:  "subscribed",
		Symbol:  upper,
		Message: fmt.Sprintf("Subscribed to %s", upper),
	})

	// Synthetic tick so the subscriber sees the current price before the
	// next generated one. Volume 0 marks it as synthetic.
	if price, ok := c.hub.engine.CurrentPrice(upper); ok {
		c.sendJSON(market.Tick{
			Symbol:    upper,
			Price:     price,
			Volume:    0,
			Timestamp: time.Now().Unix(),
		})
	}
}

func (c *Client) handleUnsubscribe(symbol string) {
	if symbol == "" {
		c.sendError("symbol is required")
		return
	}
	upper := strings.ToUpper(symbol)

	c.hub.engine.Unsubscribe(c.id, upper)
	c.dropSubscription(upper)

	c.sendJSON(ackMessage{
		Action:  "unsubscribed",
		Symbol:  upper,
		Message: fmt.Sprintf("Unsubscribed from %s", upper),
	})
}

func (c *Client) sendJSON(v any) {
	message, err := json.Marshal(v)
	if err != nil {
		c.hub.log.Warnw("ws_marshal_failed", "conn", c.id, "err", err)
		return
	}
	if !c.trySend(message) {
		c.hub.log.Warnw("ws_send_dropped", "conn", c.id)
	}
}

func (c *Client) sendError(msg string) {
	c.sendJSON(errorMessage{Error: msg})
}

// writePump flushes outbound messages and keeps the connection alive with
// pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleWebSocket upgrades the request and starts the client pumps.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warnw("ws_upgrade_failed", "err", err)
		return
	}

	client := &Client{
		hub:           s.hub,
		conn:          conn,
		send:          make(chan []byte, 256),
		id:            uuid.NewString(),
		subscriptions: make(map[string]struct{}),
	}

	s.hub.register <- client

	go client.writePump()
	go client.readPump()
}
