package jam

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const wsWriteTimeout = 5 * time.Second

// Hub is the host side of the websocket transport. It upgrades guest
// connections and fans every sent message out to all of them. Inbound guest
// traffic is surfaced on Messages so the host can log and discard it; guests
// have no authority in a session.
type Hub struct {
	upgrader websocket.Upgrader
	inbound  chan Message

	mu     sync.Mutex
	conns  map[*websocket.Conn]struct{}
	hello  func() []Message
	closed bool
}

// NewHub returns a hub ready to be mounted on an HTTP mux.
func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		inbound: make(chan Message, 64),
		conns:   make(map[*websocket.Conn]struct{}),
	}
}

// SetHello registers a callback producing the messages sent to each guest
// right after it connects, so late joiners adopt the current session state.
func (h *Hub) SetHello(fn func() []Message) {
	h.mu.Lock()
	h.hello = fn
	h.mu.Unlock()
}

// GuestCount reports the number of connected guests.
func (h *Hub) GuestCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// ServeHTTP upgrades a guest connection and pumps its inbound frames until
// it drops.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("jam: websocket upgrade from %s: %v", r.RemoteAddr, err)
		return
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.conns[conn] = struct{}{}
	hello := h.hello
	var greeting []Message
	if hello != nil {
		greeting = hello()
	}
	for _, m := range greeting {
		conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := conn.WriteJSON(m); err != nil {
			break
		}
	}
	h.mu.Unlock()

	log.Printf("jam: guest joined from %s", r.RemoteAddr)

	for {
		var m Message
		if err := conn.ReadJSON(&m); err != nil {
			break
		}
		select {
		case h.inbound <- m:
		default:
		}
	}

	h.mu.Lock()
	delete(h.conns, conn)
	h.mu.Unlock()
	conn.Close()
	log.Printf("jam: guest from %s left", r.RemoteAddr)
}

// Send broadcasts a message to every connected guest. A guest whose write
// fails is dropped; its read loop cleans up.
func (h *Hub) Send(m Message) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrClosed
	}
	for conn := range h.conns {
		conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := conn.WriteJSON(m); err != nil {
			log.Printf("jam: broadcast to %s failed: %v", conn.RemoteAddr(), err)
			conn.Close()
			delete(h.conns, conn)
		}
	}
	return nil
}

// Messages surfaces inbound guest traffic.
func (h *Hub) Messages() <-chan Message { return h.inbound }

// Close drops all guests.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	for conn := range h.conns {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "session over"),
			time.Now().Add(wsWriteTimeout))
		conn.Close()
		delete(h.conns, conn)
	}
	close(h.inbound)
	return nil
}

type wsClient struct {
	conn *websocket.Conn
	in   chan Message
	done chan struct{}

	mu     sync.Mutex
	closed bool
}

// Dial connects a guest to a host's websocket endpoint
// (ws://host:port/ws?code=XYZ).
func Dial(ctx context.Context, url string) (Transport, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	c := &wsClient{conn: conn, in: make(chan Message, 64), done: make(chan struct{})}
	go c.readPump()
	return c, nil
}

// readPump is the only closer of c.in: Close signals done and shuts the
// connection, and the pump winds down whether it is blocked reading or
// blocked handing a message to a full buffer.
func (c *wsClient) readPump() {
	defer close(c.in)
	defer c.conn.Close()
	for {
		var m Message
		if err := c.conn.ReadJSON(&m); err != nil {
			return
		}
		select {
		case c.in <- m:
		case <-c.done:
			return
		}
	}
}

func (c *wsClient) Send(m Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return c.conn.WriteJSON(m)
}

func (c *wsClient) Messages() <-chan Message { return c.in }

func (c *wsClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	close(c.done)
	return c.conn.Close()
}
