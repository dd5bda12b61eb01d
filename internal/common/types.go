package common

import (
	"time"
)

type Role string

const (
	RoleBuyer       Role = "buyer"
	RoleSeller      Role = "seller"
	RoleTransporter Role = "transporter"
)

// Principal is the authenticated caller of every engine operation.
// The transport layer extracts it from the bearer token before the
// engine is invoked.
type Principal struct {
	ID   string
	Role Role
}

type NegotiationType string

const (
	NegotiationProduct NegotiationType = "product"
	NegotiationTruck   NegotiationType = "truck"
)

type NegotiationStatus string

const (
	NegotiationOngoing   NegotiationStatus = "ongoing"
	NegotiationCompleted NegotiationStatus = "completed"
	NegotiationCancelled NegotiationStatus = "cancelled"
)

// Terminal reports whether the status admits no further transition.
func (s NegotiationStatus) Terminal() bool {
	return s == NegotiationCompleted || s == NegotiationCancelled
}

type MessageType string

const (
	MessageUser   MessageType = "user"
	MessageSystem MessageType = "system"
)

type MessageStatus string

const (
	MessageSent      MessageStatus = "sent"
	MessageDelivered MessageStatus = "delivered"
	MessageRead      MessageStatus = "read"
)

// rank orders delivery states; a message status only ever moves up.
func (s MessageStatus) rank() int {
	switch s {
	case MessageSent:
		return 0
	case MessageDelivered:
		return 1
	case MessageRead:
		return 2
	}
	return -1
}

// Before reports whether s precedes other along sent -> delivered -> read.
func (s MessageStatus) Before(other MessageStatus) bool {
	return s.rank() < other.rank()
}

// SystemUserID is the sentinel author of system messages.
const SystemUserID = "system"

// Realtime event names published to a negotiation's room.
const (
	EventMessageSent          = "message-sent"
	EventMessageStatusUpdated = "message-status-updated"
	EventSystemMessage        = "system-message"
	EventNegotiationAccepted  = "negotiation-accepted"
	EventNegotiationRejected  = "negotiation-rejected"
	EventNegotiationCancelled = "negotiation-cancelled"
)

// NegotiationRoom returns the hub room name for a negotiation.
func NegotiationRoom(negotiationID string) string {
	return "negotiation:" + negotiationID
}

// UserRoom returns the personal room used for badge/unread pushes.
func UserRoom(profileID string) string {
	return "user:" + profileID
}

// EmailEvent is a rendered-later email request handed to the dispatcher.
type EmailEvent struct {
	To       string
	Subject  string
	Template string
	Context  map[string]interface{}
}

// Directory record shapes. The catalog is owned elsewhere; these carry
// only the fields this core reads.

type User struct {
	ID        string    `bson:"_id"`
	Name      string    `bson:"name"`
	Email     string    `bson:"email"`
	Role      Role      `bson:"role"`
	CreatedAt time.Time `bson:"created_at"`
}

type Order struct {
	ID      string  `bson:"_id"`
	TruckID string  `bson:"truck_id,omitempty"`
	Status  string  `bson:"status"`
	Price   float64 `bson:"price"`
}

const (
	OrderCancelled = "cancelled"
	TruckLocked    = "locked"
)
