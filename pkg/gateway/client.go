package gateway

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const clientQueueSize = 256

// Client is one connected websocket consumer. Events are handed off through
// a buffered queue drained by a dedicated writer goroutine, so the pool's
// event callback never blocks on a slow connection.
type Client struct {
	ID          string
	Conn        *websocket.Conn
	ConnectedAt time.Time

	queue     chan []byte
	closeOnce sync.Once
	closed    chan struct{}
}

// NewClient wraps an upgraded connection and starts its writer.
func NewClient(id string, conn *websocket.Conn) *Client {
	c := &Client{
		ID:          id,
		Conn:        conn,
		ConnectedAt: time.Now(),
		queue:       make(chan []byte, clientQueueSize),
		closed:      make(chan struct{}),
	}
	go c.writeLoop()
	return c
}

// Enqueue hands a frame to the writer. Frames to a full queue are dropped;
// a client that cannot keep up loses events rather than stalling the pool.
func (c *Client) Enqueue(frame []byte) bool {
	select {
	case c.queue <- frame:
		return true
	case <-c.closed:
		return false
	default:
		return false
	}
}

func (c *Client) writeLoop() {
	for {
		select {
		case frame := <-c.queue:
			if err := c.Conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.Close()
				return
			}
		case <-c.closed:
			return
		}
	}
}

// Close shuts the writer down and closes the connection. Idempotent.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.Conn.Close()
	})
}

// ClientRegistry tracks connected clients.
type ClientRegistry struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

// NewClientRegistry creates an empty registry.
func NewClientRegistry() *ClientRegistry {
	return &ClientRegistry{
		clients: make(map[string]*Client),
	}
}

// Add registers a client.
func (r *ClientRegistry) Add(client *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[client.ID] = client
}

// Remove drops a client.
func (r *ClientRegistry) Remove(clientID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.clients, clientID)
}

// GetAll returns all connected clients.
func (r *ClientRegistry) GetAll() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Client, 0, len(r.clients))
	for _, c := range r.clients {
		out = append(out, c)
	}
	return out
}

// Count returns the connected client count.
func (r *ClientRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}
