package surface

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/balaji-balu/codeboard/internal/advisory"
)

// Message is the envelope sent to browser renderers.
type Message struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

const (
	writeWait  = 2 * time.Second
	sendBuffer = 64
)

// client is one renderer. Its writer goroutine owns the connection; the hub
// only ever touches the send channel.
type client struct {
	conn *websocket.Conn
	send chan Message
}

// Hub broadcasts frames to every connected renderer. A renderer that
// connects late is sent the latest message of each type first. Broadcasts
// never wait on a socket: a renderer whose buffer is full is dropped.
type Hub struct {
	upgrader websocket.Upgrader
	logger   *zap.Logger

	mu      sync.Mutex
	clients map[*client]struct{}
	last    map[string]Message
	order   []string
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger:  logger.Named("hub"),
		clients: map[*client]struct{}{},
		last:    map[string]Message{},
	}
}

// ServeHTTP upgrades a renderer connection.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	c := &client{conn: conn, send: make(chan Message, sendBuffer)}

	h.mu.Lock()
	for _, typ := range h.order {
		c.send <- h.last[typ]
	}
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()

	h.logger.Info("renderer connected", zap.String("remote", r.RemoteAddr), zap.Int("clients", n))
	go h.writeLoop(c)
	go h.readLoop(c)
}

func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every renderer.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		h.removeLocked(c)
	}
}

func (h *Hub) writeLoop(c *client) {
	defer c.conn.Close()
	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteJSON(msg); err != nil {
			h.drop(c)
			return
		}
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func (h *Hub) readLoop(c *client) {
	defer h.drop(c)
	for {
		if _, _, err := c.conn.NextReader(); err != nil {
			return
		}
	}
}

func (h *Hub) drop(c *client) {
	h.mu.Lock()
	ok := h.removeLocked(c)
	h.mu.Unlock()
	if ok {
		h.logger.Info("renderer disconnected")
	}
}

// removeLocked unregisters c and closes its send channel, which ends the
// writer. It reports whether c was still registered.
func (h *Hub) removeLocked(c *client) bool {
	if _, ok := h.clients[c]; !ok {
		return false
	}
	delete(h.clients, c)
	close(c.send)
	return true
}

func (h *Hub) broadcast(msg Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, seen := h.last[msg.Type]; !seen {
		h.order = append(h.order, msg.Type)
	}
	h.last[msg.Type] = msg
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			h.logger.Warn("renderer too slow, dropping it")
			h.removeLocked(c)
		}
	}
}

func (h *Hub) ShowCode(f Frame) { h.broadcast(Message{Type: "code", Payload: f}) }

func (h *Hub) HideCode() { h.broadcast(Message{Type: "code"}) }

func (h *Hub) Countdown(n int) { h.broadcast(Message{Type: "countdown", Payload: n}) }

func (h *Hub) Speaking(on bool) { h.broadcast(Message{Type: "speaking", Payload: on}) }

func (h *Hub) QueueSize(n int) { h.broadcast(Message{Type: "queue", Payload: n}) }

func (h *Hub) Screensaver(on bool, bg string) {
	h.broadcast(Message{Type: "screensaver", Payload: map[string]any{"on": on, "background": bg}})
}

func (h *Hub) Advisory(a *advisory.Advisory) {
	if a == nil {
		h.broadcast(Message{Type: "advisory"})
		return
	}
	h.broadcast(Message{Type: "advisory", Payload: a})
}

func (h *Hub) Status(st Status) { h.broadcast(Message{Type: "status", Payload: st}) }
