package websocket

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/openblog/backend/internal/logger"
)

// ConnectionGauge tracks open feed connections.
type ConnectionGauge interface {
	IncWSConnections()
	DecWSConnections()
}

type envelope struct {
	postID  string
	payload []byte
}

// Hub maintains the set of active clients, grouped by the post they watch,
// and fans comment events out to them.
type Hub struct {
	// Registered clients by post ID
	clients map[string]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan envelope
	done       chan struct{}

	gauge ConnectionGauge
	log   *logger.Logger
	mu    sync.RWMutex
}

// NewHub creates a new Hub instance. gauge may be nil.
func NewHub(gauge ConnectionGauge, log *logger.Logger) *Hub {
	if log == nil {
		log = logger.Default()
	}
	return &Hub{
		clients:    make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan envelope, 64),
		done:       make(chan struct{}),
		gauge:      gauge,
		log:        log.WithComponent("websocket"),
	}
}

// Run is the hub's main loop. It returns when ctx is cancelled, closing
// every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for postID, clients := range h.clients {
				for client := range clients {
					h.drop(postID, client)
				}
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			if h.clients[client.postID] == nil {
				h.clients[client.postID] = make(map[*Client]bool)
			}
			h.clients[client.postID][client] = true
			h.mu.Unlock()
			if h.gauge != nil {
				h.gauge.IncWSConnections()
			}

		case client := <-h.unregister:
			h.mu.Lock()
			if clients, ok := h.clients[client.postID]; ok {
				if _, ok := clients[client]; ok {
					h.drop(client.postID, client)
				}
			}
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients[msg.postID] {
				select {
				case client.send <- msg.payload:
				default:
					// Client's buffer is full, drop it
					h.log.Warn(ctx, "dropping slow feed client", map[string]any{"post_id": msg.postID})
					h.drop(msg.postID, client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// drop removes a registered client. Callers hold h.mu.
func (h *Hub) drop(postID string, client *Client) {
	clients := h.clients[postID]
	delete(clients, client)
	close(client.send)
	if len(clients) == 0 {
		delete(h.clients, postID)
	}
	if h.gauge != nil {
		h.gauge.DecWSConnections()
	}
}

// Publish sends event, encoded as JSON, to every client watching postID.
// It does not block once the hub has stopped.
func (h *Hub) Publish(postID string, event any) {
	payload, err := json.Marshal(event)
	if err != nil {
		h.log.Error(context.Background(), "failed to encode feed event", err, map[string]any{"post_id": postID})
		return
	}

	select {
	case h.broadcast <- envelope{postID: postID, payload: payload}:
	case <-h.done:
	}
}

// Register adds a client; it is a no-op once the hub has stopped.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

// Unregister removes a client; it is a no-op once the hub has stopped.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// ClientCount returns the number of clients watching a post.
func (h *Hub) ClientCount(postID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[postID])
}

// TotalClients returns the total number of connected clients.
func (h *Hub) TotalClients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	count := 0
	for _, clients := range h.clients {
		count += len(clients)
	}
	return count
}
