package monitor

import (
	"context"
	"net/http"
	"sync"
	"time"

	"apex_hunter_go/engine"
	"apex_hunter_go/logs"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 512
	clientQueue    = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// wsClient owns one connection. Only its writePump writes to conn.
type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub streams engine events to websocket clients. A client whose queue is full,
// whose write times out, or who disconnects is dropped.
type Hub struct {
	clients   map[*wsClient]bool
	broadcast chan []byte
	lock      sync.Mutex
}

var _ engine.Observer = (*Hub)(nil)

func NewHub() *Hub {
	return &Hub{
		clients:   make(map[*wsClient]bool),
		broadcast: make(chan []byte, 256),
	}
}

// Run fans queued messages out to clients until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.lock.Lock()
			for c := range h.clients {
				h.removeLocked(c)
			}
			h.lock.Unlock()
			return
		case message := <-h.broadcast:
			h.lock.Lock()
			for c := range h.clients {
				select {
				case c.send <- message:
				default:
					logs.Debugf("[Monitor] Client %s is too slow, dropping it", c.conn.RemoteAddr())
					h.removeLocked(c)
				}
			}
			h.lock.Unlock()
		}
	}
}

// removeLocked closes the client's queue, which ends its writePump. Safe to call twice.
func (h *Hub) removeLocked(c *wsClient) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
}

func (h *Hub) remove(c *wsClient) {
	h.lock.Lock()
	h.removeLocked(c)
	h.lock.Unlock()
}

// Observe queues an engine event. It never blocks the engine.
func (h *Hub) Observe(ev engine.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		logs.Warnf("[Monitor] Cannot encode %s event: %v", ev.Type, err)
		return
	}
	select {
	case h.broadcast <- data:
	default:
		logs.Debugf("[Monitor] Event stream full, dropping %s event", ev.Type)
	}
}

func (h *Hub) ClientCount() int {
	h.lock.Lock()
	defer h.lock.Unlock()
	return len(h.clients)
}

// ServeWS upgrades the request, registers the client and starts its pumps.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logs.Warnf("[Monitor] WS upgrade error: %v", err)
		return
	}
	c := &wsClient{conn: conn, send: make(chan []byte, clientQueue)}
	h.lock.Lock()
	h.clients[c] = true
	h.lock.Unlock()

	go h.writePump(c)
	go h.readPump(c)
}

// readPump discards client messages and unregisters the client once the connection fails.
func (h *Hub) readPump(c *wsClient) {
	defer func() {
		h.remove(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logs.Debugf("[Monitor] WS read error from %s: %v", c.conn.RemoteAddr(), err)
			}
			return
		}
	}
}

func (h *Hub) writePump(c *wsClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				h.remove(c)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.remove(c)
				return
			}
		}
	}
}
