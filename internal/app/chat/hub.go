/*
Package chat holds the persistent connections bound on this instance.

The Hub indexes connections by destination key (room:{id}, location:{id}, user:{subject}).
It is the local delivery target of the fanout router and of direct notification pushes.
*/
package chat

import (
	"sync"

	"github.com/rs/zerolog"

	"marketchat/internal/pkg/logx"
	"marketchat/internal/pkg/metrics"
)

// evictBuffer bounds the queue of slow clients waiting to be disconnected.
const evictBuffer = 64

// Hub tracks every connection bound on this instance and the destinations it listens to.
type Hub struct {
	// topics maps a destination key to the clients subscribed to it.
	topics map[string]map[*Client]struct{}

	// bindings maps a connection id to its client.
	bindings map[string]*Client

	// subjects counts connections per principal subject.
	subjects map[string]int

	// mu protects topics, bindings, subjects and every client's subscriptions.
	mu sync.RWMutex

	// evict receives clients whose send queue overflowed during fanout.
	evict chan *Client

	closed bool
	wg     sync.WaitGroup
	logger zerolog.Logger
}

// NewHub creates a Hub and starts its eviction loop.
func NewHub() *Hub {
	h := &Hub{
		topics:   make(map[string]map[*Client]struct{}),
		bindings: make(map[string]*Client),
		subjects: make(map[string]int),
		evict:    make(chan *Client, evictBuffer),
		logger:   logx.Component("Hub"),
	}

	h.wg.Add(1)
	go h.runEvictLoop()

	return h
}

// runEvictLoop disconnects clients that could not keep up with fanout.
func (h *Hub) runEvictLoop() {
	defer h.wg.Done()

	h.logger.Info().Msg("Evict loop started.")

	for c := range h.evict {
		c.logger.Warn().Msg("Client send queue full. Disconnecting slow consumer.")
		h.Unregister(c)
		c.closeConn()
	}

	h.logger.Info().Msg("Evict loop stopped.")
}

// Register binds c and subscribes it to its own user destination.
func (h *Hub) Register(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return false
	}

	h.bindings[c.binding.ConnectionID] = c
	h.subjects[c.binding.Principal.Subject]++
	h.subscribeLocked(c, c.userDestination())

	metrics.WebSocketConnectionsActive.Inc()
	h.logger.Info().
		Str("connection_id", c.binding.ConnectionID).
		Str("subject", c.binding.Principal.Subject).
		Int("connections", len(h.bindings)).
		Msg("Connection bound.")
	return true
}

// Unregister removes c from every destination and closes its send queue. It is idempotent.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if current, ok := h.bindings[c.binding.ConnectionID]; !ok || current != c {
		return
	}

	for destination := range c.subscriptions {
		h.unsubscribeLocked(c, destination)
	}
	delete(h.bindings, c.binding.ConnectionID)

	subject := c.binding.Principal.Subject
	if h.subjects[subject] <= 1 {
		delete(h.subjects, subject)
	} else {
		h.subjects[subject]--
	}

	c.closeSend()

	metrics.WebSocketConnectionsActive.Dec()
	h.logger.Info().
		Str("connection_id", c.binding.ConnectionID).
		Str("subject", subject).
		Int("connections", len(h.bindings)).
		Msg("Connection released.")
}

// Subscribe adds c to destination. Authorization is the caller's job.
func (h *Hub) Subscribe(c *Client, destination string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.bindings[c.binding.ConnectionID]; !ok {
		return
	}
	h.subscribeLocked(c, destination)
}

// Unsubscribe removes c from destination. The own user destination cannot be left.
func (h *Hub) Unsubscribe(c *Client, destination string) {
	if destination == c.userDestination() {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.unsubscribeLocked(c, destination)
}

func (h *Hub) subscribeLocked(c *Client, destination string) {
	clients, ok := h.topics[destination]
	if !ok {
		clients = make(map[*Client]struct{})
		h.topics[destination] = clients
	}
	clients[c] = struct{}{}
	c.subscriptions[destination] = struct{}{}
}

func (h *Hub) unsubscribeLocked(c *Client, destination string) {
	delete(c.subscriptions, destination)

	clients, ok := h.topics[destination]
	if !ok {
		return
	}
	delete(clients, c)
	if len(clients) == 0 {
		delete(h.topics, destination)
	}
}

// IsBound reports whether subject has a connection on this instance.
func (h *Hub) IsBound(subject string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.subjects[subject] > 0
}

// Deliver queues frame to every client subscribed to destination without blocking.
// Clients with a full queue are scheduled for eviction. It returns the number of clients
// that accepted the frame.
func (h *Hub) Deliver(destination string, frame []byte) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.closed {
		return 0
	}

	delivered := 0
	for c := range h.topics[destination] {
		if c.enqueue(frame) {
			delivered++
			continue
		}
		metrics.FanoutDroppedTotal.WithLabelValues("local", "slow_consumer").Inc()
		select {
		case h.evict <- c:
		default:
		}
	}
	return delivered
}

// Subscribers returns how many clients listen to destination.
func (h *Hub) Subscribers(destination string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[destination])
}

// Connections returns the number of bound connections.
func (h *Hub) Connections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.bindings)
}

// Shutdown disconnects every client and stops the eviction loop.
func (h *Hub) Shutdown() {
	h.logger.Info().Msg("Shutting down Hub...")

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	clients := make([]*Client, 0, len(h.bindings))
	for _, c := range h.bindings {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		h.Unregister(c)
		c.closeConn()
	}

	h.mu.Lock()
	close(h.evict)
	h.mu.Unlock()
	h.wg.Wait()

	h.logger.Info().Msg("Hub shutdown complete.")
}
