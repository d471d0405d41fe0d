package livefeed

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/angelmondragon/auctionhouse-backend/pkg/logger"
	"github.com/angelmondragon/auctionhouse-backend/pkg/metrics"
)

var errHubClosed = errors.New("livefeed hub closed")

// Hub fans auction frames out to the subscribers of each product.
type Hub struct {
	mu      sync.RWMutex
	rooms   map[uuid.UUID]map[*client]struct{}
	closed  bool
	metrics *metrics.LiveFeedMetrics
	logg    *logger.Logger
}

// NewHub builds an empty hub. metrics may be nil.
func NewHub(logg *logger.Logger, m *metrics.LiveFeedMetrics) (*Hub, error) {
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	return &Hub{
		rooms:   make(map[uuid.UUID]map[*client]struct{}),
		metrics: m,
		logg:    logg,
	}, nil
}

func (h *Hub) join(c *client) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return errHubClosed
	}
	room, ok := h.rooms[c.productID]
	if !ok {
		room = make(map[*client]struct{})
		h.rooms[c.productID] = room
	}
	room[c] = struct{}{}
	h.metrics.ConnectionOpened()
	return nil
}

func (h *Hub) leave(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

func (h *Hub) removeLocked(c *client) {
	room, ok := h.rooms[c.productID]
	if !ok {
		return
	}
	if _, ok := room[c]; !ok {
		return
	}
	delete(room, c)
	if len(room) == 0 {
		delete(h.rooms, c.productID)
	}
	h.metrics.ConnectionClosed()
}

// Broadcast queues msg for every subscriber of productID and returns how many
// accepted it. Subscribers whose buffers are full are disconnected.
func (h *Hub) Broadcast(productID uuid.UUID, eventType string, msg []byte) int {
	h.mu.RLock()
	room := h.rooms[productID]
	targets := make([]*client, 0, len(room))
	for c := range room {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	delivered := 0
	var slow []*client
	for _, c := range targets {
		if c.enqueue(msg) {
			delivered++
			continue
		}
		slow = append(slow, c)
	}

	if len(slow) > 0 {
		h.mu.Lock()
		for _, c := range slow {
			h.removeLocked(c)
		}
		h.mu.Unlock()
		for _, c := range slow {
			c.close()
			h.metrics.Dropped()
		}
		h.logg.Warn(h.logg.WithFields(context.Background(), map[string]any{
			"product_id": productID.String(),
			"dropped":    len(slow),
		}), "livefeed dropped slow subscribers")
	}

	h.metrics.Delivered(eventType, delivered)
	return delivered
}

// Subscribers reports the live subscriber count for productID.
func (h *Hub) Subscribers(productID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[productID])
}

// Close disconnects every subscriber and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for productID, room := range h.rooms {
		for c := range room {
			c.close()
			h.metrics.ConnectionClosed()
		}
		delete(h.rooms, productID)
	}
}
