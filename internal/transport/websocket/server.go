package websocket

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	sendBuffer      = 64
	broadcastBuffer = 256
)

// Kind names a notification pushed to customers.
type Kind string

const (
	KindDocumentProgress Kind = "document_progress"
	KindDocumentReady    Kind = "document_ready"
	KindDocumentFailed   Kind = "document_failed"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type Message struct {
	CustomerID string    `json:"customer_id,omitempty"`
	Type       Kind      `json:"type"`
	Channel    string    `json:"channel,omitempty"`
	Data       any       `json:"data"`
	SentAt     time.Time `json:"sent_at"`
}

// Channel is the per-customer channel name a client subscribes to.
func Channel(kind Kind, customerID string) string {
	return fmt.Sprintf("%s#%s", kind, customerID)
}

// Hub fans document notifications out to every socket a customer has open.
type Hub struct {
	mu          sync.RWMutex
	connections map[string]map[*Connection]struct{}

	register   chan *Connection
	unregister chan *Connection
	broadcast  chan *Message
	done       chan struct{}
	once       sync.Once

	log zerolog.Logger
}

type Connection struct {
	ws         *websocket.Conn
	customerID string
	send       chan *Message
	hub        *Hub
}

func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		connections: make(map[string]map[*Connection]struct{}),
		register:    make(chan *Connection),
		unregister:  make(chan *Connection),
		broadcast:   make(chan *Message, broadcastBuffer),
		done:        make(chan struct{}),
		log:         log.With().Str("component", "ws_hub").Logger(),
	}
}

// Run owns the connection table until ctx is cancelled, then closes every
// socket.
func (h *Hub) Run(ctx context.Context) {
	defer h.once.Do(func() { close(h.done) })

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case c := <-h.register:
			h.add(c)
		case c := <-h.unregister:
			h.remove(c)
		case m := <-h.broadcast:
			h.deliver(m)
		}
	}
}

func (h *Hub) add(c *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.connections[c.customerID]
	if set == nil {
		set = make(map[*Connection]struct{})
		h.connections[c.customerID] = set
	}
	set[c] = struct{}{}
	h.log.Debug().Str("customer_id", c.customerID).Int("sockets", len(set)).Msg("websocket registered")
}

func (h *Hub) remove(c *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropLocked(c)
}

func (h *Hub) dropLocked(c *Connection) {
	set, ok := h.connections[c.customerID]
	if !ok {
		return
	}
	if _, exists := set[c]; !exists {
		return
	}
	delete(set, c)
	close(c.send)
	if len(set) == 0 {
		delete(h.connections, c.customerID)
	}
}

func (h *Hub) deliver(m *Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.connections[m.CustomerID] {
		select {
		case c.send <- m:
		default:
			// slow reader
			h.log.Warn().Str("customer_id", c.customerID).Msg("websocket send buffer full, closing")
			h.dropLocked(c)
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.RLock()
	var conns []*Connection
	for _, set := range h.connections {
		for c := range set {
			conns = append(conns, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range conns {
		_ = c.ws.Close()
	}
}

// Broadcast queues a message of the given kind for customerID. Messages are
// dropped when the hub queue is full or the hub has stopped.
func (h *Hub) Broadcast(customerID string, kind Kind, data any) {
	m := &Message{
		CustomerID: customerID,
		Type:       kind,
		Channel:    Channel(kind, customerID),
		Data:       data,
		SentAt:     time.Now().UTC(),
	}
	select {
	case h.broadcast <- m:
	default:
		h.log.Warn().Str("customer_id", customerID).Str("type", string(kind)).Msg("broadcast queue full, dropping message")
	}
}

// Connected reports how many sockets customerID has open.
func (h *Hub) Connected(customerID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections[customerID])
}

func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request, customerID string) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := &Connection{
		ws:         ws,
		customerID: customerID,
		send:       make(chan *Message, sendBuffer),
		hub:        h,
	}

	select {
	case h.register <- c:
	case <-h.done:
		_ = ws.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

func (c *Connection) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		_ = c.ws.Close()
	}()

	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.ws.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Warn().Err(err).Str("customer_id", c.customerID).Msg("websocket read error")
			}
			return
		}
	}
}

func (c *Connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case m, ok := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteJSON(m); err != nil {
				c.hub.log.Warn().Err(err).Str("customer_id", c.customerID).Msg("websocket write error")
				return
			}

		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
