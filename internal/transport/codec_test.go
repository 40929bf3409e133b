package transport_test

import (
	"testing"
	"time"

	"djchat/backend/internal/models"
	"djchat/backend/internal/transport"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeEvent_Message(t *testing.T) {
	payload := []byte(`{"kind":"message","id":"b1","conversation_id":"c1","sender_id":"u2","content":"hi back","created_at":"2026-05-01T21:00:00Z"}`)

	ev, err := transport.DecodeEvent(payload)

	require.NoError(t, err)
	assert.Equal(t, models.EventMessage, ev.Kind)
	assert.Equal(t, "b1", ev.ID)
	assert.Equal(t, "hi back", ev.Content)
	assert.Equal(t, time.Date(2026, 5, 1, 21, 0, 0, 0, time.UTC), ev.CreatedAt.UTC())
}

func TestDecodeEvent_TypingDropsContent(t *testing.T) {
	payload := []byte(`{"kind":"typing","conversation_id":"c1","sender_id":"u2","is_typing":true,"content":"stray"}`)

	ev, err := transport.DecodeEvent(payload)

	require.NoError(t, err)
	assert.Equal(t, models.EventTyping, ev.Kind)
	assert.True(t, ev.IsTyping)
	assert.Empty(t, ev.Content)
	assert.False(t, ev.CreatedAt.IsZero(), "missing timestamp is filled on receive")
}

func TestDecodeEvent_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"not json", `{{`},
		{"unknown kind", `{"kind":"presence","conversation_id":"c1","sender_id":"u2"}`},
		{"missing kind", `{"conversation_id":"c1","sender_id":"u2","content":"x"}`},
		{"missing sender", `{"kind":"message","conversation_id":"c1","content":"x"}`},
		{"missing conversation", `{"kind":"message","sender_id":"u2","content":"x"}`},
		{"blank content", `{"kind":"message","conversation_id":"c1","sender_id":"u2","content":"   "}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := transport.DecodeEvent([]byte(tt.payload))
			assert.ErrorIs(t, err, transport.ErrMalformedEvent)
		})
	}
}

func TestEncodeEvent_AssignsBroadcastID(t *testing.T) {
	data, err := transport.EncodeEvent(models.BroadcastEvent{
		Kind:           models.EventMessage,
		ConversationID: "c1",
		SenderID:       "u1",
		Content:        "hello",
	})
	require.NoError(t, err)

	ev, err := transport.DecodeEvent(data)
	require.NoError(t, err)
	assert.NotEmpty(t, ev.ID)
	assert.False(t, ev.CreatedAt.IsZero())
}

func TestEncodeEvent_RejectsInvalid(t *testing.T) {
	_, err := transport.EncodeEvent(models.BroadcastEvent{Kind: models.EventMessage, ConversationID: "c1", SenderID: "u1"})
	assert.ErrorIs(t, err, transport.ErrMalformedEvent)
}

func TestChannelName(t *testing.T) {
	assert.Equal(t, "chat:c1", transport.ChannelName("c1"))
}
