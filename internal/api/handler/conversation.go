package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

type createConversationRequest struct {
	PeerID string `json:"peer_id" binding:"required"`
}

// CreateConversation opens a thread between the caller and peer_id.
func (h *Handler) CreateConversation(c *gin.Context) {
	var req createConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "peer_id required"})
		return
	}
	userID := c.GetString(userIDKey)
	if req.PeerID == userID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot open a conversation with yourself"})
		return
	}

	conv, err := h.Store.CreateConversation(c.Request.Context(), userID, req.PeerID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create conversation"})
		return
	}
	c.JSON(http.StatusCreated, conv)
}

// GetHistory returns the newest page of a conversation, oldest first.
func (h *Handler) GetHistory(c *gin.Context) {
	conversationID := c.Param("id")
	userID := c.GetString(userIDKey)

	ok, err := h.Store.IsParticipant(c.Request.Context(), conversationID, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load conversation"})
		return
	}
	if !ok {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a participant of this conversation"})
		return
	}

	limit := h.HistoryLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}

	messages, err := h.Store.FetchHistory(c.Request.Context(), conversationID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load history"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversation_id": conversationID, "messages": messages})
}
