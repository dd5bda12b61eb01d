package dbmysql

import (
	"time"

	"dealroom/internal/common"
)

type Message struct {
	ID string `gorm:"primaryKey;size:26"`
	// Seq is the insertion-order tiebreaker for messages sharing a
	// created_at timestamp.
	Seq           uint64               `gorm:"autoIncrement;uniqueIndex"`
	NegotiationID string               `gorm:"index;size:36"`
	UserID        string               `gorm:"index;size:36"`
	ReceiverID    string               `gorm:"index;size:36"`
	OrderID       string               `gorm:"size:36"`
	Content       string               `gorm:"type:text"`
	OfferPrice    *float64
	MessageType   common.MessageType   `gorm:"size:16"`
	Status        common.MessageStatus `gorm:"index;size:16"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
