package ws

import (
	"context"
	"errors"
	"sync"

	"ironflex/backend/pkg/logger"

	"github.com/prometheus/client_golang/prometheus"
)

// ErrHubStopped is returned once Run has exited
var ErrHubStopped = errors.New("ws: hub stopped")

// Hub fans frames out to every connected client
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	log        *logger.Logger
	gauge      prometheus.Gauge

	mu    sync.RWMutex
	count int
}

// NewHub creates a hub. gauge may be nil.
func NewHub(log *logger.Logger, gauge prometheus.Gauge) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		log:        log,
		gauge:      gauge,
	}
}

// Run owns the client set until ctx is cancelled, then disconnects everyone
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			for client := range h.clients {
				h.drop(client)
			}
			return

		case client := <-h.register:
			h.clients[client] = true
			h.setCount(len(h.clients))
			h.log.Debug("client registered", "client_id", client.ID, "user_id", client.UserID)

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				h.drop(client)
				h.log.Debug("client unregistered", "client_id", client.ID)
			}

		case message := <-h.broadcast:
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					h.drop(client)
					h.log.Warn("client removed due to blocked channel", "client_id", client.ID)
				}
			}
		}
	}
}

func (h *Hub) drop(client *Client) {
	delete(h.clients, client)
	client.close()
	h.setCount(len(h.clients))
}

func (h *Hub) setCount(n int) {
	h.mu.Lock()
	h.count = n
	h.mu.Unlock()
	if h.gauge != nil {
		h.gauge.Set(float64(n))
	}
}

// Broadcast queues a frame for every client
func (h *Hub) Broadcast(ctx context.Context, message []byte) error {
	select {
	case h.broadcast <- message:
		return nil
	case <-h.done:
		return ErrHubStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ClientCount returns the number of registered clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}

func (h *Hub) add(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) remove(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}
