package hub

import (
	"context"
	"log/slog"
	"sync"

	"github.com/teslashibe/go-gesture/internal/log"
)

// Hub maintains the set of active clients and broadcasts messages to them.
// The last broadcast is replayed to clients as they join.
type Hub struct {
	name string
	log  *slog.Logger

	clients    map[*Client]struct{}
	broadcast  chan Message
	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	mu      sync.RWMutex
	last    *Message
	onCount func(n int)
}

// Option configures a Hub.
type Option func(*Hub)

// WithClientCount calls fn with the client count whenever it changes.
func WithClientCount(fn func(n int)) Option {
	return func(h *Hub) { h.onCount = fn }
}

// New creates a new Hub.
func New(name string, opts ...Option) *Hub {
	h := &Hub{
		name:       name,
		log:        log.Component("hub").With("hub", name),
		clients:    make(map[*Client]struct{}),
		broadcast:  make(chan Message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run is the hub's main loop. It returns when ctx is done, after
// disconnecting every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			h.countChanged(0)
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = struct{}{}
			if h.last != nil {
				client.send <- *h.last
			}
			count := len(h.clients)
			h.mu.Unlock()
			h.log.Debug("client connected", "clients", count)
			h.countChanged(count)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			count := len(h.clients)
			h.mu.Unlock()
			h.log.Debug("client disconnected", "clients", count)
			h.countChanged(count)

		case message := <-h.broadcast:
			h.mu.Lock()
			h.last = &message
			dropped := 0
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Too slow to keep up.
					close(client.send)
					delete(h.clients, client)
					dropped++
				}
			}
			count := len(h.clients)
			h.mu.Unlock()
			if dropped > 0 {
				h.log.Warn("dropped slow clients", "dropped", dropped)
				h.countChanged(count)
			}
		}
	}
}

func (h *Hub) countChanged(n int) {
	if h.onCount != nil {
		h.onCount(n)
	}
}

// Broadcast queues msg for every connected client. Never blocks.
func (h *Hub) Broadcast(msg Message) {
	select {
	case h.broadcast <- msg:
	default:
		h.log.Warn("broadcast channel full, dropping message")
	}
}

// BroadcastJSON encodes and broadcasts v.
func (h *Hub) BroadcastJSON(v any) error {
	msg, err := EncodeJSON(v)
	if err != nil {
		return err
	}
	h.Broadcast(msg)
	return nil
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Done is closed when Run returns.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}
