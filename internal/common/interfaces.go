package common

import (
	"context"
)

// Directory is the external catalog collaborator: users, orders and
// trucks are owned by another service and read through this interface.
// CancelOrder and LockTruck are the only writes this core performs on
// catalog entities, both on behalf of the truck-contention cascade.
type Directory interface {
	FindUser(ctx context.Context, id string) (*User, error)
	FindOrder(ctx context.Context, id string) (*Order, error)
	CancelOrder(ctx context.Context, orderID string) error
	LockTruck(ctx context.Context, truckID string) error
}

// EmailService sends a single rendered email. Implementations must be
// safe for concurrent use; dispatch retries live above this interface.
type EmailService interface {
	SendEmail(to, subject, body string) error
}

// Notifier accepts fire-and-forget email events after a state
// transition commits. Enqueueing never blocks the caller and failures
// never surface to the triggering command.
type Notifier interface {
	NotifyAsync(event EmailEvent)
}

// Event is the payload fanned out to every connection of a room.
type Event struct {
	Room    string      `json:"room"`
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// Connection is one subscribed client socket. Send must not block
// indefinitely; a connection that cannot keep up may lose events.
type Connection interface {
	ID() string
	Send(event Event) error
}

// Hub is the room-per-negotiation fan-out fabric. Publish delivers to
// the connections joined at publish time only; there is no replay.
type Hub interface {
	Join(conn Connection, room string)
	Leave(conn Connection, room string)
	Publish(room, eventType string, payload interface{})
}
