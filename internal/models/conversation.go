package models

import "time"

// Conversation is a two-party thread, created when two DJs match.
type Conversation struct {
	// ConversationID is the unique identifier of the thread (UUID).
	ConversationID string `gorm:"primaryKey"`
	// User1ID and User2ID are the participants.
	User1ID string `gorm:"index"`
	User2ID string `gorm:"index"`
	// CreatedAt is when the match opened the thread.
	CreatedAt time.Time
}

// HasParticipant reports whether userID is one of the two parties.
func (c *Conversation) HasParticipant(userID string) bool {
	return userID != "" && (c.User1ID == userID || c.User2ID == userID)
}
