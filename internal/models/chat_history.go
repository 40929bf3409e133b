package models

import (
	"strconv"

	"gorm.io/gorm"
)

// ChatHistory represents a saved chat message in the PostgreSQL database.
// The embedded gorm.Model provides ID, CreatedAt, UpdatedAt, and DeletedAt fields;
// ID is the durable message id and CreatedAt the authoritative timestamp.
type ChatHistory struct {
	gorm.Model

	// ConversationID is the thread the message belongs to.
	ConversationID string `gorm:"type:text;not null;index:idx_conversation_created,priority:1"`
	// SenderID is the user id of the author.
	SenderID string `gorm:"type:text;not null"`
	// Content is the trimmed text body.
	Content string `gorm:"type:text;not null"`
}

// ToMessage converts a stored row into a confirmed engine message.
func (h ChatHistory) ToMessage() Message {
	return Message{
		ID:             strconv.FormatUint(uint64(h.ID), 10),
		ConversationID: h.ConversationID,
		SenderID:       h.SenderID,
		Content:        h.Content,
		CreatedAt:      h.CreatedAt,
		DeliveryState:  StateConfirmed,
		Origin:         OriginStore,
	}
}
