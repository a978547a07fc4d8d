package ws

import (
	"encoding/json"
	"sync"

	"roomchat-service/internal/models"
	"roomchat-service/internal/observability"
)

// Hub is the in-process fan-out registry: channel id -> set of live
// connections. Membership changes only on the Subscribed and Disconnected
// transitions of a connection's lifecycle.
type Hub struct {
	channels map[int64]map[*client]bool
	mu       sync.RWMutex
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{channels: make(map[int64]map[*client]bool)}
}

func (h *Hub) join(channelID int64, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.channels[channelID]; !ok {
		h.channels[channelID] = make(map[*client]bool)
	}
	h.channels[channelID][c] = true
}

func (h *Hub) leave(channelID int64, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.channels[channelID]; ok {
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.channels, channelID)
		}
	}
}

// Broadcast delivers the event to every connection subscribed to the
// channel, the sender's own connections included. Callers invoke it
// synchronously right after a successful append, so per-channel delivery
// order matches the store's append order.
func (h *Hub) Broadcast(channelID int64, event models.ChatEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}

	h.mu.RLock()
	conns := make([]*client, 0, len(h.channels[channelID]))
	for c := range h.channels[channelID] {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		if c.enqueue(payload) {
			observability.IncBroadcastDelivery()
		}
	}
}

// SubscriberCount reports the number of live connections on a channel.
func (h *Hub) SubscriberCount(channelID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels[channelID])
}
