package models

import "time"

// EventKind tags a BroadcastEvent.
type EventKind string

const (
	EventMessage EventKind = "message"
	EventTyping  EventKind = "typing"
)

// BroadcastEvent is what travels over the low-latency channel. Kind decides
// which of the remaining fields are meaningful: Content and ID for "message",
// IsTyping for "typing".
type BroadcastEvent struct {
	Kind           EventKind `json:"kind"`
	ID             string    `json:"id,omitempty"`
	ConversationID string    `json:"conversation_id"`
	SenderID       string    `json:"sender_id"`
	Content        string    `json:"content,omitempty"`
	IsTyping       bool      `json:"is_typing,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}
