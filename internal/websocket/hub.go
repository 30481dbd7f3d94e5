package websocket

import (
	"encoding/json"
	"log/slog"
	"sync/atomic"

	cmap "github.com/orcaman/concurrent-map/v2"
)

// Message is one frame fanned out to every client of a hub.
type Message struct {
	Type string `json:"type"`
	At   int64  `json:"at"` // unix ms
	Data any    `json:"data,omitempty"`
}

// Hub tracks connected clients by id. The admin feed and the ad bridge each
// own one.
type Hub struct {
	clients cmap.ConcurrentMap[string, *Client]
	dropped atomic.Int64
	logger  *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients: cmap.New[*Client](),
		logger:  logger,
	}
}

func (h *Hub) Register(c *Client) {
	h.clients.Set(c.id, c)
}

// Unregister removes c and closes its send channel. Calling it twice is a no-op.
func (h *Hub) Unregister(c *Client) {
	if _, ok := h.clients.Pop(c.id); ok {
		close(c.send)
	}
}

// Broadcast queues msg on every client and returns how many accepted it.
// A client with a full buffer misses the frame.
func (h *Hub) Broadcast(msg Message) int {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("marshal broadcast", "type", msg.Type, "error", err)
		return 0
	}

	delivered := 0
	// IterCb holds each shard's read lock, so Unregister cannot close a
	// channel mid-send.
	h.clients.IterCb(func(id string, c *Client) {
		select {
		case c.send <- data:
			delivered++
		default:
			h.dropped.Add(1)
			h.logger.Warn("dropped broadcast", "client", id, "type", msg.Type)
		}
	})
	return delivered
}

func (h *Hub) ClientCount() int {
	return h.clients.Count()
}

// Dropped reports how many frames were skipped because a client fell behind.
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}
