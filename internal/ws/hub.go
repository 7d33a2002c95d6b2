package ws

import (
	"context"
	"log/slog"
	"sync"

	"github.com/manpreetbhatti/scribble/internal/presence"
)

// Hub is the set of live clients keyed by connection handle. It implements
// broadcast.Sender.
type Hub struct {
	clients map[presence.Handle]*Client
	mu      sync.RWMutex
	logger  *slog.Logger
	// read loops that have not finished their disconnect path
	loops sync.WaitGroup
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[presence.Handle]*Client),
		logger:  logger.With("component", "hub"),
	}
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	h.clients[c.handle] = c
	n := len(h.clients)
	h.mu.Unlock()

	h.logger.Debug("client connected", "conn", string(c.handle), "clients", n)
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	if cur, ok := h.clients[c.handle]; ok && cur == c {
		delete(h.clients, c.handle)
	}
	n := len(h.clients)
	h.mu.Unlock()

	h.logger.Debug("client disconnected", "conn", string(c.handle), "clients", n)
}

// Send queues msg for one client without blocking. A client whose queue is
// full is disconnected.
func (h *Hub) Send(to presence.Handle, msg []byte) {
	h.mu.RLock()
	c, ok := h.clients[to]
	h.mu.RUnlock()
	if !ok {
		return
	}

	select {
	case c.send <- msg:
	case <-c.done:
	default:
		h.logger.Warn("send queue full, dropping slow client", "conn", string(to))
		c.kick()
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// CloseAll asks every client to close. Their read loops unwind through the
// normal disconnect path.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		c.kick()
	}
}

// Wait blocks until every read loop has run its session disconnect, or ctx
// ends first.
func (h *Hub) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		h.loops.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
