package models

import "time"

// DeliveryState tracks an own message from optimistic insert to the durable outcome.
type DeliveryState string

const (
	StatePending   DeliveryState = "pending"
	StateConfirmed DeliveryState = "confirmed"
	StateFailed    DeliveryState = "failed"
)

// Origin records which path produced or last confirmed a message.
// It only drives de-duplication and is never rendered.
type Origin string

const (
	OriginLocal     Origin = "local-optimistic"
	OriginBroadcast Origin = "broadcast"
	OriginStore     Origin = "store"
)

// Message is one chat bubble as held by the reconciliation engine.
type Message struct {
	// ID is the durable id once confirmed, the broadcast id for broadcast-only
	// entries, and the temp id while pending.
	ID string `json:"id"`
	// TempID is the locally generated id of an optimistic insert. It is kept
	// after confirmation so late callbacks can still find the entry.
	TempID         string        `json:"temp_id,omitempty"`
	ConversationID string        `json:"conversation_id"`
	SenderID       string        `json:"sender_id"`
	Content        string        `json:"content"`
	CreatedAt      time.Time     `json:"created_at"`
	DeliveryState  DeliveryState `json:"delivery_state"`
	Origin         Origin        `json:"-"`

	// Seq is the engine append order, used to break createdAt ties.
	Seq uint64 `json:"-"`
}

// IsSent reports whether the message counts as delivered for downstream purposes.
func (m Message) IsSent() bool {
	return m.DeliveryState == StateConfirmed
}
