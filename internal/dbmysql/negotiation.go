package dbmysql

import (
	"time"

	"dealroom/internal/common"
)

type Negotiation struct {
	ID         string                   `gorm:"primaryKey;size:36"`
	SenderID   string                   `gorm:"index;size:36"`
	ReceiverID string                   `gorm:"index;size:36"`
	Type       common.NegotiationType   `gorm:"index;size:16"`
	OrderID    string                   `gorm:"index;size:36"`
	// TruckID is captured once at creation for truck negotiations so the
	// contention cascade needs no Order join. Order stays the source of
	// truth for truck assignment.
	TruckID string                   `gorm:"index;size:36"`
	Status  common.NegotiationStatus `gorm:"index;size:16"`
	// ActiveKey is "<sender>|<receiver>|<type>|<order>" while ongoing and
	// NULL once terminal. The unique index is the store-level guard for
	// the at-most-one-ongoing rule; MySQL ignores NULLs in unique indexes.
	ActiveKey *string `gorm:"size:200;uniqueIndex"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsParticipant reports whether profileID is one of the two parties.
func (n *Negotiation) IsParticipant(profileID string) bool {
	return n.SenderID == profileID || n.ReceiverID == profileID
}

// Counterpart returns the other party of the negotiation.
func (n *Negotiation) Counterpart(profileID string) string {
	if n.SenderID == profileID {
		return n.ReceiverID
	}
	return n.SenderID
}
