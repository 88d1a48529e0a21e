package hub

import (
	"context"
	"log/slog"
	"sync"

	"transitmap/internal/domain"
	"transitmap/internal/filter"
)

// View is one client's current map state: what it looks at and how it
// filters. The hub stores it so cluster pushes after a feed reload can be
// computed per client.
type View struct {
	Viewport   domain.Viewport `json:"viewport"`
	Filter     filter.State    `json:"filter"`
	CellSizePx int             `json:"cellSizePx"`
}

type Client struct {
	ID   string
	Send chan []byte

	mu      sync.RWMutex
	view    View
	hasView bool
}

func NewClient(id string, bufferSize int) *Client {
	return &Client{
		ID:   id,
		Send: make(chan []byte, bufferSize),
	}
}

func (c *Client) SetView(v View) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.view = v
	c.hasView = true
}

// View returns the client's current view and whether one was ever set.
func (c *Client) View() (View, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.view, c.hasView
}

// Hub tracks connected map clients and fans out messages to them. Cluster
// computation stays with the caller; the hub only owns membership and
// delivery.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}

	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte

	logger *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client, 16),
		unregister: make(chan *Client, 16),
		broadcast:  make(chan []byte, 64),
		logger:     logger,
	}
}

func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAllClients()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = struct{}{}
			h.mu.Unlock()
			h.logger.Debug("client registered", "client_id", client.ID, "total", h.ClientCount())

		case client := <-h.unregister:
			h.removeClient(client)

		case data := <-h.broadcast:
			h.fanout(data)
		}
	}
}

func (h *Hub) Register(client *Client) {
	h.register <- client
}

func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// Broadcast sends one pre-marshaled message to every client. Slow clients
// are skipped rather than blocking delivery to the rest.
func (h *Hub) Broadcast(data []byte) {
	if len(data) == 0 {
		return
	}
	select {
	case h.broadcast <- data:
	default:
		h.logger.Warn("broadcast channel full, dropping message", "size_bytes", len(data))
	}
}

// ForEachClient runs fn for every connected client, for per-client pushes
// where the payload depends on the client's view.
func (h *Hub) ForEachClient(fn func(*Client)) {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		fn(c)
	}
}

// TrySend queues data to one client without blocking. The membership check
// and the send both happen under the read lock: removeClient closes the
// channel under the write lock, so a client unregistering between a
// ForEachClient snapshot and the send cannot turn this into a send on a
// closed channel.
func (h *Hub) TrySend(c *Client, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if _, ok := h.clients[c]; !ok {
		return
	}
	select {
	case c.Send <- data:
	default:
		h.logger.Debug("client send buffer full", "client_id", c.ID)
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) fanout(data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients {
		select {
		case client.Send <- data:
		default:
			h.logger.Debug("client send buffer full", "client_id", client.ID)
		}
	}
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	close(client.Send)
	h.logger.Debug("client unregistered", "client_id", client.ID, "total", len(h.clients))
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		close(client.Send)
	}
	h.clients = make(map[*Client]struct{})
}
