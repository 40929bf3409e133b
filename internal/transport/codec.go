package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"djchat/backend/internal/models"

	"github.com/google/uuid"
)

// ErrMalformedEvent marks a payload that failed boundary validation.
var ErrMalformedEvent = errors.New("malformed broadcast event")

// DecodeEvent parses and validates one pub/sub payload. A missing timestamp
// is replaced with the local receive time.
func DecodeEvent(payload []byte) (models.BroadcastEvent, error) {
	var ev models.BroadcastEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return models.BroadcastEvent{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if err := validate(&ev); err != nil {
		return models.BroadcastEvent{}, err
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}
	return ev, nil
}

// EncodeEvent validates ev and renders it for publishing. Message events
// without an id get a fresh broadcast id.
func EncodeEvent(ev models.BroadcastEvent) ([]byte, error) {
	if err := validate(&ev); err != nil {
		return nil, err
	}
	if ev.Kind == models.EventMessage && ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}
	return json.Marshal(ev)
}

func validate(ev *models.BroadcastEvent) error {
	if ev.ConversationID == "" || ev.SenderID == "" {
		return fmt.Errorf("%w: conversation_id and sender_id are required", ErrMalformedEvent)
	}
	switch ev.Kind {
	case models.EventMessage:
		if strings.TrimSpace(ev.Content) == "" {
			return fmt.Errorf("%w: empty message content", ErrMalformedEvent)
		}
		ev.IsTyping = false
	case models.EventTyping:
		ev.Content = ""
		ev.ID = ""
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrMalformedEvent, ev.Kind)
	}
	return nil
}
