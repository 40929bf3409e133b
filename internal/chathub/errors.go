package chathub

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation rejects empty or whitespace-only content before any dispatch.
	ErrValidation = errors.New("message content is empty")
	// ErrUnknownMessage is returned when a temp id matches nothing in the list.
	ErrUnknownMessage = errors.New("unknown message")
	// ErrNotFailed is returned by retry and discard for messages that did not fail.
	ErrNotFailed = errors.New("message is not in failed state")

	ErrAlreadyOpened = errors.New("session already opened")
	ErrNotOpen       = errors.New("session is not active")
	ErrSessionClosed = errors.New("session closed")

	// ErrForbidden is returned when a user opens a conversation they are not part of.
	ErrForbidden = errors.New("not a participant of this conversation")
)

// TransportPublishError is a failed best-effort broadcast. It is logged and
// counted, never shown to the user.
type TransportPublishError struct {
	ConversationID string
	Err            error
}

func (e *TransportPublishError) Error() string {
	return fmt.Sprintf("publish to conversation %s: %v", e.ConversationID, e.Err)
}

func (e *TransportPublishError) Unwrap() error { return e.Err }

// StoreWriteError is a failed or timed out durable write of one message.
type StoreWriteError struct {
	TempID  string
	Timeout bool
	Err     error
}

func (e *StoreWriteError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("store write for %s timed out: %v", e.TempID, e.Err)
	}
	return fmt.Sprintf("store write for %s: %v", e.TempID, e.Err)
}

func (e *StoreWriteError) Unwrap() error { return e.Err }

// HistoryLoadError keeps a session from becoming active. Retry with a new session.
type HistoryLoadError struct {
	ConversationID string
	Err            error
}

func (e *HistoryLoadError) Error() string {
	return fmt.Sprintf("loading history of conversation %s: %v", e.ConversationID, e.Err)
}

func (e *HistoryLoadError) Unwrap() error { return e.Err }
