package models_test

import (
	"testing"
	"time"

	"djchat/backend/internal/models"

	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestChatHistory_ToMessage(t *testing.T) {
	at := time.Date(2026, 3, 1, 22, 0, 0, 0, time.UTC)
	h := models.ChatHistory{
		Model:          gorm.Model{ID: 42, CreatedAt: at},
		ConversationID: "c1",
		SenderID:       "u1",
		Content:        "drop the bass",
	}

	msg := h.ToMessage()

	assert.Equal(t, "42", msg.ID)
	assert.Equal(t, "c1", msg.ConversationID)
	assert.Equal(t, "u1", msg.SenderID)
	assert.Equal(t, at, msg.CreatedAt)
	assert.Equal(t, models.StateConfirmed, msg.DeliveryState)
	assert.Equal(t, models.OriginStore, msg.Origin)
	assert.True(t, msg.IsSent())
}

func TestConversation_HasParticipant(t *testing.T) {
	c := &models.Conversation{ConversationID: "c1", User1ID: "a", User2ID: "b"}

	assert.True(t, c.HasParticipant("a"))
	assert.True(t, c.HasParticipant("b"))
	assert.False(t, c.HasParticipant("x"))
	assert.False(t, c.HasParticipant(""))
}

func TestMessage_IsSent(t *testing.T) {
	assert.False(t, models.Message{DeliveryState: models.StatePending}.IsSent())
	assert.False(t, models.Message{DeliveryState: models.StateFailed}.IsSent())
}
