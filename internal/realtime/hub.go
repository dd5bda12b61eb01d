// Package realtime provides the room-per-negotiation fan-out fabric.
//
// It offers best-effort delivery with no guarantees regarding ordering,
// durability, or replay: a connection that joins after a publish does
// not receive it. Durable history is recovered through the negotiation
// detail endpoint, not through the hub.
package realtime

import (
	"log/slog"
	"sync"

	"dealroom/internal/common"
)

// Hub keeps the live room registry. Safe for concurrent use by many
// goroutines; Publish never blocks on a slow subscriber.
type Hub struct {
	mu     sync.RWMutex
	rooms  map[string]map[string]common.Connection
	closed bool
	log    *slog.Logger
}

func NewHub(log *slog.Logger) *Hub {
	return &Hub{
		rooms: make(map[string]map[string]common.Connection),
		log:   log,
	}
}

func (h *Hub) Join(conn common.Connection, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	conns, ok := h.rooms[room]
	if !ok {
		conns = make(map[string]common.Connection)
		h.rooms[room] = conns
	}
	conns[conn.ID()] = conn
}

func (h *Hub) Leave(conn common.Connection, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conns, ok := h.rooms[room]
	if !ok {
		return
	}
	delete(conns, conn.ID())
	if len(conns) == 0 {
		delete(h.rooms, room)
	}
}

// LeaveAll removes a connection from every room it joined. Called by
// the transport when a socket disconnects.
func (h *Hub) LeaveAll(conn common.Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for room, conns := range h.rooms {
		delete(conns, conn.ID())
		if len(conns) == 0 {
			delete(h.rooms, room)
		}
	}
}

// Publish fans the event out to every connection joined to the room at
// publish time. Send failures are logged and the subscriber is kept;
// the transport is responsible for reaping dead connections.
func (h *Hub) Publish(room, eventType string, payload interface{}) {
	h.mu.RLock()
	conns := make([]common.Connection, 0, len(h.rooms[room]))
	for _, c := range h.rooms[room] {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	if len(conns) == 0 {
		return
	}

	event := common.Event{Room: room, Type: eventType, Payload: payload}
	for _, conn := range conns {
		if err := conn.Send(event); err != nil {
			h.log.Warn("realtime send failed",
				"room", room, "event", eventType, "conn", conn.ID(), "error", err)
		}
	}
}

// Close empties the registry; later joins are ignored and later
// publishes reach nobody.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	h.rooms = make(map[string]map[string]common.Connection)
}
