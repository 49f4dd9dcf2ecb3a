package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait = 200 * time.Millisecond

	// sendBuffer is how many messages may queue for a slow client before
	// new ones are dropped.
	sendBuffer = 64
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// hubClient owns one connection. Only its writer goroutine writes to conn.
type hubClient struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
}

// writeLoop drains send until the client goes away. A failed write closes
// the connection, which ends the read loop in ServeHTTP.
func (c *hubClient) writeLoop() {
	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				_ = c.conn.Close()
				return
			}
		}
	}
}

// Hub fans estimate messages out to WebSocket clients. Broadcast never
// blocks: messages for a client whose queue is full are dropped.
type Hub struct {
	mu      sync.Mutex
	clients map[*hubClient]bool
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[*hubClient]bool)}
}

func (h *Hub) add(c *hubClient) {
	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()
}

func (h *Hub) remove(c *hubClient) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

func (h *Hub) snapshot() []*hubClient {
	h.mu.Lock()
	defer h.mu.Unlock()
	clients := make([]*hubClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	return clients
}

// Len returns the number of connected clients.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Broadcast queues a text message for every client. It is safe to call from
// any number of goroutines.
func (h *Hub) Broadcast(msg []byte) {
	for _, c := range h.snapshot() {
		select {
		case c.send <- msg:
		default:
		}
	}
}

// Close disconnects every client.
func (h *Hub) Close() {
	for _, c := range h.snapshot() {
		_ = c.conn.Close()
		h.remove(c)
	}
}

// ServeHTTP upgrades the request and keeps the client registered until it
// disconnects. Incoming messages are ignored.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c := &hubClient{
		conn: conn,
		send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
	}
	h.add(c)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.writeLoop()
	}()

	defer func() {
		h.remove(c)
		close(c.done)
		wg.Wait()
		conn.Close()
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}
